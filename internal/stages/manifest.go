package stages

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/pipeline"
)

// ManifestVersion is the only supported manifest format version.
const ManifestVersion = "1"

// Manifest is a stage list loaded from YAML.
//
// Strings may reference the layout with ${name} placeholders (see
// [Layout.Vars]); uppercase ${VAR} references are passed to the shell.
// Relative artifact paths and directories are resolved against the
// repository root.
type Manifest struct {
	// Version is the manifest format version (currently "1")
	Version string `yaml:"version"`
	// Stages run in list order
	Stages []ManifestStage `yaml:"stages"`
}

// ManifestStage describes one stage. Exactly one of Run or Exec is set.
type ManifestStage struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Artifacts   []string `yaml:"artifacts"`
	// Run is a shell snippet executed with nix-shell --run
	Run string `yaml:"run,omitempty"`
	// Exec is an argv executed directly, without nix-shell
	Exec []string          `yaml:"exec,omitempty"`
	Dir  string            `yaml:"dir,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing stage manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stage manifest: %w", err)
	}
	return &m, nil
}

// Validate checks the manifest structure. Placeholders are checked later by
// Build, once a layout is known.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return errors.New("manifest version is required")
	}
	if m.Version != ManifestVersion {
		return fmt.Errorf("unsupported manifest version: %s (supported: %s)", m.Version, ManifestVersion)
	}
	if len(m.Stages) == 0 {
		return errors.New("manifest declares no stages")
	}

	seen := make(map[string]bool, len(m.Stages))
	for i, s := range m.Stages {
		switch {
		case s.Name == "":
			return fmt.Errorf("stage %d: name is required", i)
		case seen[s.Name]:
			return fmt.Errorf("stage '%s' is declared twice", s.Name)
		case len(s.Artifacts) == 0:
			return fmt.Errorf("stage '%s': at least one artifact is required", s.Name)
		case s.Run == "" && len(s.Exec) == 0:
			return fmt.Errorf("stage '%s': one of run or exec is required", s.Name)
		case s.Run != "" && len(s.Exec) > 0:
			return fmt.Errorf("stage '%s': run and exec are mutually exclusive", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Build converts the manifest into executable stages for layout l.
func (m *Manifest) Build(l Layout, nix command.NixShell) ([]pipeline.Stage, error) {
	x := expander{vars: l.Vars()}
	out := make([]pipeline.Stage, 0, len(m.Stages))

	for _, s := range m.Stages {
		artifacts := make([]string, 0, len(s.Artifacts))
		for _, a := range s.Artifacts {
			artifacts = append(artifacts, x.path(a, l.RepoRoot))
		}

		dir := l.RepoRoot
		if s.Dir != "" {
			dir = x.path(s.Dir, l.RepoRoot)
		}

		var env map[string]string
		if len(s.Env) > 0 {
			env = make(map[string]string, len(s.Env))
			for k, v := range s.Env {
				env[k] = x.expand(v)
			}
		}

		var action command.Command
		if s.Run != "" {
			action = nix.Run(x.expand(s.Run), dir, env)
		} else {
			argv := make([]string, 0, len(s.Exec))
			for _, arg := range s.Exec {
				argv = append(argv, x.expand(arg))
			}
			action = command.New(argv[0], argv[1:], dir, env)
		}

		if len(x.unknown) > 0 {
			return nil, fmt.Errorf("stage '%s': unknown placeholder(s): %s", s.Name, strings.Join(x.unknown, ", "))
		}

		out = append(out, pipeline.Stage{
			Name:        s.Name,
			Description: s.Description,
			Artifacts:   artifacts,
			Action:      action,
		})
	}
	return out, nil
}

// Export renders stages as a manifest. Actions are written in exec form.
func Export(stages []pipeline.Stage) ([]byte, error) {
	m := Manifest{Version: ManifestVersion}
	for _, s := range stages {
		exec := append([]string{s.Action.Executable()}, s.Action.Args()...)
		env := s.Action.Env()
		if len(env) == 0 {
			env = nil
		}
		m.Stages = append(m.Stages, ManifestStage{
			Name:        s.Name,
			Description: s.Description,
			Artifacts:   slices.Clone(s.Artifacts),
			Exec:        exec,
			Dir:         s.Action.Dir(),
			Env:         env,
		})
	}
	return yaml.Marshal(&m)
}

// placeholder matches ${name} with a lowercase name. Other $ forms are
// left for the shell.
var placeholder = regexp.MustCompile(`\$\{([a-z_]+)\}`)

// expander substitutes placeholders, collecting unknown names.
type expander struct {
	vars    map[string]string
	unknown []string
}

func (x *expander) expand(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := x.vars[name]; ok {
			return v
		}
		if !slices.Contains(x.unknown, name) {
			x.unknown = append(x.unknown, name)
		}
		return m
	})
}

func (x *expander) path(p, root string) string {
	p = x.expand(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
