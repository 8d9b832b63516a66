package cmd

import (
	"bytes"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/config"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/logging"
	"github.com/benchsuite/reproduce/internal/stages"
)

func testRuntime(t *testing.T) *runtime {
	t.Helper()
	return &runtime{
		cfg:      config.Default(),
		repoRoot: "/repo",
		layout:   stages.DefaultLayout("/repo"),
		fs:       afero.NewMemMapFs(),
		logger:   logging.NopLogger(),
		console:  console.Plain(io.Discard),
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "reproduce" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "reproduce")
	}

	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range []string{"run", "build", "bench", "stages", "config", "logs"} {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestBindFlags(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	config.SetDefaults()

	if err := runCmd.Flags().Set("pty", "true"); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = runCmd.Flags().Set("pty", "false") }()

	if err := bindFlags(runCmd, map[string]string{"pty": "simulator.pty"}); err != nil {
		t.Fatalf("bindFlags: %v", err)
	}
	if !viper.GetBool("simulator.pty") {
		t.Error("flag value not visible through viper")
	}
}

func TestPrintPlan(t *testing.T) {
	rt := testRuntime(t)
	nix := command.NixShell{Path: "nix-shell"}
	all, err := rt.buildStages(nix)
	if err != nil {
		t.Fatal(err)
	}

	// The checkout and toolchain exist; everything else is missing.
	_ = rt.fs.MkdirAll(rt.layout.OpenTitanDir, 0o755)
	_ = rt.fs.MkdirAll(rt.layout.ToolchainDir, 0o755)

	var out bytes.Buffer
	if err := printPlan(&out, rt, all, true); err != nil {
		t.Fatalf("printPlan: %v", err)
	}
	got := out.String()

	for _, want := range []string{"clone", "satisfied", "chip", "pending (1 missing)", "meson-init", "pending (3 missing)"} {
		if !strings.Contains(got, want) {
			t.Errorf("plan missing %q:\n%s", want, got)
		}
	}
	// Commands are listed only for stages that would run.
	if strings.Contains(got, "git clone") {
		t.Errorf("satisfied stage listed with its command:\n%s", got)
	}
	if !strings.Contains(got, "build-chip-verilator.sh") {
		t.Errorf("pending stage command missing:\n%s", got)
	}
}

func TestBuildStages_Manifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "stages.yaml")
	data := "version: \"1\"\nstages:\n  - name: only\n    artifacts: [out.bin]\n    run: make out.bin\n"
	if err := afero.WriteFile(afero.NewOsFs(), manifest, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	rt := testRuntime(t)
	rt.cfg.Build.Manifest = manifest
	all, err := rt.buildStages(command.NixShell{Path: "nix-shell"})
	if err != nil {
		t.Fatalf("buildStages: %v", err)
	}
	if len(all) != 1 || all[0].Name != "only" {
		t.Errorf("stages = %+v", all)
	}
}

func TestBenchmarkFiles(t *testing.T) {
	rt := testRuntime(t)
	_ = afero.WriteFile(rt.fs, "/repo/benchmarks/b.bench", nil, 0o644)
	_ = afero.WriteFile(rt.fs, "/repo/benchmarks/sub/a.bench", nil, 0o644)

	files, err := rt.benchmarkFiles(nil)
	if err != nil {
		t.Fatalf("benchmarkFiles: %v", err)
	}
	if len(files) != 2 || files[0] != "/repo/benchmarks/b.bench" {
		t.Errorf("files = %v", files)
	}

	if _, err := rt.benchmarkFiles([]string{"/repo/benchmarks/missing.bench"}); err == nil {
		t.Error("expected error for a missing explicit file")
	}
	files, err = rt.benchmarkFiles([]string{"/repo/benchmarks/sub/a.bench"})
	if err != nil || len(files) != 1 {
		t.Errorf("explicit files = %v, %v", files, err)
	}
}

func TestWriteConfig(t *testing.T) {
	var out bytes.Buffer
	writeConfig(&out, config.Default(), "")
	got := out.String()

	for _, want := range []string{
		"(none - using defaults)",
		"discovery_timeout: 30m0s",
		`startup_pattern: "UART: Created (.*) for uart0."`,
		"raw: true",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestLogFilter(t *testing.T) {
	now := time.Now()
	entry := &logEntry{
		Time:  now,
		Level: "WARN",
		Msg:   "stage failed",
		Phase: "build",
		Extra: map[string]any{"path": "/repo/target/opentitan"},
	}

	tests := []struct {
		name   string
		filter logFilter
		want   bool
	}{
		{"no filter", logFilter{minLevel: -1}, true},
		{"level below", logFilter{minLevel: levelPriority("info")}, true},
		{"level above", logFilter{minLevel: levelPriority("error")}, false},
		{"since before", logFilter{minLevel: -1, since: now.Add(-time.Minute)}, true},
		{"since after", logFilter{minLevel: -1, since: now.Add(time.Minute)}, false},
		{"phase match", logFilter{minLevel: -1, phase: "build"}, true},
		{"phase mismatch", logFilter{minLevel: -1, phase: "bench"}, false},
		{"grep extra", logFilter{minLevel: -1, grep: regexp.MustCompile("opentitan")}, true},
		{"grep miss", logFilter{minLevel: -1, grep: regexp.MustCompile("simulator")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.match(entry); got != tt.want {
				t.Errorf("match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := newLogFormatter(&buf)

	line := `{"time":"2026-01-02T03:04:05.006Z","level":"INFO","msg":"stage finished","phase":"build","stage":"rom","duration_ms":12}`
	got, ok := f.formatLine(line, logFilter{minLevel: -1})
	if !ok {
		t.Fatal("entry filtered out")
	}
	for _, want := range []string{"[INFO]", "stage finished", "phase=build", "stage=rom", "duration_ms=12"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted line %q missing %q", got, want)
		}
	}

	if got, ok := f.formatLine("plain simulator output", logFilter{minLevel: 3}); !ok || got != "plain simulator output" {
		t.Errorf("raw line = %q, %v", got, ok)
	}
	if _, ok := f.formatLine(line, logFilter{minLevel: 3}); ok {
		t.Error("INFO entry passed an ERROR filter")
	}
}

func TestDisplayLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.NewLogger(filepath.Dir(path), "debug", logging.DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("first")
	logger.WithPhase("bench").Error("second")
	logger.Info("third")
	_ = logger.Close()

	var out bytes.Buffer
	if err := displayLogs(&out, path, 2, newLogFormatter(&out), logFilter{minLevel: -1}); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if strings.Contains(got, "first") || !strings.Contains(got, "second") || !strings.Contains(got, "third") {
		t.Errorf("tail 2 output:\n%s", got)
	}

	out.Reset()
	if err := displayLogs(&out, path, 0, newLogFormatter(&out), logFilter{minLevel: -1, phase: "simulator"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No matching log entries found.") {
		t.Errorf("filtered output:\n%s", out.String())
	}
}
