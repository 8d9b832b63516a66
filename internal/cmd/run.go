package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/errors"
)

var runCmd = &cobra.Command{
	Use:   "run [benchmark files...]",
	Short: "Build everything, boot the simulator and run the benchmarks",
	Long: `Run performs a complete reproduction:

  1. build the OpenTitan simulator and firmware images, skipping every stage
     whose artifacts already exist, then verify all artifacts
  2. boot the benchmark suite on the simulator and wait for its UART
  3. run the benchmark files through the host CLI against that UART
  4. interrupt the simulator's process group

Without arguments every benchmark matching bench.pattern below the
benchmarks directory is run.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"dry-run":      "build.dry_run",
			"cargo-builds": "build.cargo_builds",
			"manifest":     "build.manifest",
			"pty":          "simulator.pty",
			"raw":          "bench.raw",
			"verbose":      "bench.verbose",
			"pattern":      "bench.pattern",
		})
	},
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addBuildFlags(runCmd)
	addBenchFlags(runCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "show the stage plan without running anything")
	cmd.Flags().Bool("cargo-builds", false, "also build the suite and cli in release mode")
	cmd.Flags().String("manifest", "", "YAML stage manifest replacing the built-in stages")
}

func addBenchFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("pty", false, "read the simulator's output through a pseudo-terminal")
	cmd.Flags().BoolP("raw", "r", true, "send benchmark input to the suite verbatim")
	cmd.Flags().BoolP("verbose", "v", false, "verbose cli output")
	cmd.Flags().String("pattern", "", "glob selecting benchmark files (default **/*.bench)")
}

func runRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime("run")
	if err != nil {
		return err
	}
	defer rt.close()

	nix, err := rt.nixShell()
	if err != nil {
		return err
	}
	return rt.run(cmd.Context(), cmd.OutOrStdout(), nix, args)
}

// run builds, verifies and only then boots the simulator.
func (rt *runtime) run(ctx context.Context, out io.Writer, nix command.NixShell, args []string) error {
	all, err := rt.buildStages(nix)
	if err != nil {
		return err
	}
	if rt.cfg.Build.DryRun {
		return printPlan(out, rt, all, true)
	}

	lock, err := rt.lock("run")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	// Fail on a bad benchmark selection before spending hours on a build.
	files, err := rt.benchmarkFiles(args)
	if err != nil {
		return err
	}

	exec, err := rt.executor()
	if err != nil {
		return err
	}
	if report, err := exec.Run(ctx, all); err != nil {
		if report != nil {
			return errors.Reported(err)
		}
		return err
	}

	return rt.runBenchmarks(ctx, nix, files)
}
