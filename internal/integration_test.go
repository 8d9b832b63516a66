// Package internal contains integration tests that drive the build stages
// through the pipeline executor the way the run command does.
package internal

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/errors"
	"github.com/benchsuite/reproduce/internal/pipeline"
	"github.com/benchsuite/reproduce/internal/stages"
)

// artifactRunner creates the artifacts of whichever stage owns the command
// it is asked to run.
type artifactRunner struct {
	mu      sync.Mutex
	fs      afero.Fs
	outputs map[string][]string // command line -> artifacts
	skip    map[string]bool     // command lines that produce nothing
	dirs    map[string]bool     // artifacts created as directories
	ran     []string
}

func newArtifactRunner(fs afero.Fs, all []pipeline.Stage) *artifactRunner {
	r := &artifactRunner{
		fs:      fs,
		outputs: make(map[string][]string),
		skip:    make(map[string]bool),
		dirs:    make(map[string]bool),
	}
	for _, s := range all {
		r.outputs[s.Action.String()] = s.Artifacts
	}
	return r
}

// action returns the command line of the named stage.
func action(t *testing.T, all []pipeline.Stage, name string) string {
	t.Helper()
	for _, s := range all {
		if s.Name == name {
			return s.Action.String()
		}
	}
	t.Fatalf("no stage named %s", name)
	return ""
}

func (r *artifactRunner) Run(_ context.Context, cmd command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := cmd.String()
	r.ran = append(r.ran, line)
	if r.skip[line] {
		return nil
	}
	for _, path := range r.outputs[line] {
		if r.dirs[path] {
			if err := r.fs.MkdirAll(path, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := afero.WriteFile(r.fs, path, []byte("x"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestBuiltinStages_RunThenResume(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := stages.DefaultLayout("/repo").Resolve()
	nix := command.NixShell{Path: "/nix/bin/nix-shell"}
	all := stages.Default(layout, nix, stages.DefaultOpenTitanRepo, true)

	runner := newArtifactRunner(fs, all)
	for _, dir := range []string{layout.OpenTitanDir, layout.ToolchainDir} {
		runner.dirs[dir] = true
	}
	// meson_init.sh only configures the build directories.
	runner.skip[action(t, all, stages.MesonInit)] = true

	var out bytes.Buffer
	exec, err := pipeline.NewExecutor(runner, pipeline.WithFs(fs), pipeline.WithConsole(console.Plain(&out)))
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	report, err := exec.Run(context.Background(), all)
	if err != nil {
		t.Fatalf("first Run() error = %v\noutput:\n%s", err, out.String())
	}
	if got := report.Count(pipeline.OutcomeExecuted); got != len(all) {
		t.Errorf("first run executed %d stages, want %d", got, len(all))
	}
	if !report.Verified() {
		t.Errorf("first run left artifacts missing: %v", report.Missing)
	}
	for _, path := range layout.SimulatorArtifacts() {
		if ok, _ := afero.Exists(fs, path); !ok {
			t.Errorf("simulator artifact %s was not produced", path)
		}
	}

	out.Reset()
	runner.ran = nil
	report, err = exec.Run(context.Background(), all)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if got := report.Count(pipeline.OutcomeSkipped); got != len(all) {
		t.Errorf("second run skipped %d stages, want %d", got, len(all))
	}
	if len(runner.ran) != 0 {
		t.Errorf("second run executed %v, want nothing", runner.ran)
	}
	if got := strings.Count(out.String(), "detected, skipping"); got != len(all) {
		t.Errorf("skip notes = %d, want %d\noutput:\n%s", got, len(all), out.String())
	}
}

func TestManifestStages_MissingArtifactAborts(t *testing.T) {
	manifest := []byte(`version: "1"
stages:
  - name: firmware
    description: Firmware image
    artifacts: ["${opentitan_dir}/fw.vmem"]
    run: make firmware
  - name: tool
    artifacts: ["${repo_root}/bin/tool"]
    exec: ["make", "-C", "${repo_root}", "tool"]
`)
	m, err := stages.ParseManifest(manifest)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	fs := afero.NewMemMapFs()
	layout := stages.DefaultLayout("/repo").Resolve()
	all, err := m.Build(layout, command.NixShell{Path: "nix-shell"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	runner := newArtifactRunner(fs, all)
	runner.skip[action(t, all, "firmware")] = true

	var out bytes.Buffer
	exec, err := pipeline.NewExecutor(runner, pipeline.WithFs(fs), pipeline.WithConsole(console.Plain(&out)))
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	report, err := exec.Run(context.Background(), all)
	if err == nil {
		t.Fatal("Run() succeeded with a missing artifact")
	}
	var artifactErr *errors.ArtifactError
	if !errors.As(err, &artifactErr) {
		t.Fatalf("Run() error = %T, want *errors.ArtifactError", err)
	}
	if want := "/repo/target/opentitan/fw.vmem"; len(report.Missing) != 1 || report.Missing[0] != want {
		t.Errorf("Missing = %v, want [%s]", report.Missing, want)
	}
	for _, want := range []string{
		"Error: Firmware image not found at /repo/target/opentitan/fw.vmem",
		"Aborting due to previous errors",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
