package command

import (
	"maps"
	"os/exec"
	"slices"
	"strings"

	"github.com/benchsuite/reproduce/internal/errors"
)

// NixShell wraps shell snippets in nix-shell invocations so every tool the
// build needs comes from the repository's shell.nix.
type NixShell struct {
	Path string
}

// FindNixShell locates nix-shell. An explicit path wins over a PATH lookup.
func FindNixShell(explicit string) (NixShell, error) {
	name := "nix-shell"
	if explicit != "" {
		name = explicit
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return NixShell{}, errors.NewNotFoundError("executable", name).WithCause(err)
	}
	return NixShell{Path: path}, nil
}

// Run builds `nix-shell --run <script>` executed in dir. Every override
// key is forwarded with --keep so it survives a pure shell.
func (n NixShell) Run(script, dir string, env map[string]string) Command {
	args := []string{"--run", script}
	for _, key := range slices.Sorted(maps.Keys(env)) {
		args = append(args, "--keep", key)
	}
	return New(n.Path, args, dir, env)
}

// Shell builds `nix-shell --command <script>`, which keeps the shell's
// process alive for the lifetime of script. Used for the long-running
// simulator.
func (n NixShell) Shell(script, dir string, env map[string]string) Command {
	return New(n.Path, []string{"--command", script}, dir, env)
}

// Quote returns s as a single POSIX shell word.
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:+,@%", r)
}

// Chdir prefixes script with a cd into dir, so nix-shell itself still
// starts in the directory holding shell.nix.
func Chdir(dir, script string) string {
	return "cd " + Quote(dir) + " && " + script
}
