package cmd

import (
	"github.com/spf13/cobra"

	"github.com/benchsuite/reproduce/internal/errors"
	"github.com/benchsuite/reproduce/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the simulator and firmware images without running benchmarks",
	Long: `Build runs every stage whose artifacts are missing, in order, and then
verifies that all artifacts exist. A failing stage stops the build; stages
after it are not attempted.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"dry-run":      "build.dry_run",
			"cargo-builds": "build.cargo_builds",
			"manifest":     "build.manifest",
		})
	},
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	addBuildFlags(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime("build")
	if err != nil {
		return err
	}
	defer rt.close()

	nix, err := rt.nixShell()
	if err != nil {
		return err
	}
	all, err := rt.buildStages(nix)
	if err != nil {
		return err
	}
	if rt.cfg.Build.DryRun {
		return printPlan(cmd.OutOrStdout(), rt, all, true)
	}

	lock, err := rt.lock("build")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	exec, err := rt.executor()
	if err != nil {
		return err
	}
	report, err := exec.Run(cmd.Context(), all)
	if report != nil {
		rt.console.Infof("%d stage(s) built, %d skipped",
			report.Count(pipeline.OutcomeExecuted), report.Count(pipeline.OutcomeSkipped))
		if !report.Verified() {
			rt.console.Warnf("%d artifact(s) still missing", len(report.Missing))
		}
		return errors.Reported(err)
	}
	return err
}
