// Package command models the external commands a reproduction run invokes:
// build stage actions, the simulator and the benchmark runner.
//
// A [Command] is immutable once constructed. Environment overrides are kept
// separate from the inherited process environment and merged only at launch
// time, with overrides taking precedence on key collision.
package command

import (
	"maps"
	"slices"
	"strings"
)

// Command is an external program invocation.
type Command struct {
	executable string
	args       []string
	dir        string
	env        map[string]string
}

// New creates a Command. The args slice and env map are copied.
func New(executable string, args []string, dir string, env map[string]string) Command {
	return Command{
		executable: executable,
		args:       slices.Clone(args),
		dir:        dir,
		env:        maps.Clone(env),
	}
}

// Executable returns the program to run.
func (c Command) Executable() string { return c.executable }

// Args returns a copy of the program arguments.
func (c Command) Args() []string { return slices.Clone(c.args) }

// Dir returns the working directory; empty means the caller's directory.
func (c Command) Dir() string { return c.dir }

// Env returns a copy of the environment overrides.
func (c Command) Env() map[string]string { return maps.Clone(c.env) }

// EnvKeys returns the override keys in sorted order.
func (c Command) EnvKeys() []string {
	return slices.Sorted(maps.Keys(c.env))
}

// IsZero reports whether the command has no executable.
func (c Command) IsZero() bool { return c.executable == "" }

// MergedEnv overlays the overrides on base (a KEY=VALUE list such as
// os.Environ()). Overridden keys keep their first position in base; new
// keys are appended in sorted order.
func (c Command) MergedEnv(base []string) []string {
	merged := make([]string, 0, len(base)+len(c.env))
	seen := make(map[string]bool, len(c.env))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := c.env[key]; ok {
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, key+"="+v)
			continue
		}
		merged = append(merged, kv)
	}

	for _, key := range c.EnvKeys() {
		if !seen[key] {
			merged = append(merged, key+"="+c.env[key])
		}
	}
	return merged
}

// String renders the command the way it is echoed to the operator:
// "$ KEY=VALUE … executable arg …".
func (c Command) String() string {
	var b strings.Builder
	b.WriteString("$")
	for _, key := range c.EnvKeys() {
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(c.env[key])
	}
	b.WriteString(" ")
	b.WriteString(c.executable)
	for _, arg := range c.args {
		b.WriteString(" ")
		b.WriteString(arg)
	}
	return b.String()
}
