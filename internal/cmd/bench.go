package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/errors"
)

var benchCmd = &cobra.Command{
	Use:   "bench [benchmark files...]",
	Short: "Run benchmarks against an already built simulator",
	Long: `Bench skips the build. It checks that every build artifact exists, then
boots the simulator and runs the benchmarks exactly as run does.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"manifest": "build.manifest",
			"pty":      "simulator.pty",
			"raw":      "bench.raw",
			"verbose":  "bench.verbose",
			"pattern":  "bench.pattern",
		})
	},
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().String("manifest", "", "YAML stage manifest whose artifacts are checked")
	addBenchFlags(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime("bench")
	if err != nil {
		return err
	}
	defer rt.close()

	nix, err := rt.nixShell()
	if err != nil {
		return err
	}
	return rt.bench(cmd.Context(), nix, args)
}

// bench verifies the build without running it, then boots the simulator.
func (rt *runtime) bench(ctx context.Context, nix command.NixShell, args []string) error {
	all, err := rt.buildStages(nix)
	if err != nil {
		return err
	}

	lock, err := rt.lock("bench")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	exec, err := rt.executor()
	if err != nil {
		return err
	}
	if err := exec.Verify(all); err != nil {
		rt.console.Error("Aborting due to previous errors")
		return errors.Reported(err)
	}

	files, err := rt.benchmarkFiles(args)
	if err != nil {
		return err
	}
	return rt.runBenchmarks(ctx, nix, files)
}
