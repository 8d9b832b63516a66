package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/benchsuite/reproduce/internal/pipeline"
	"github.com/benchsuite/reproduce/internal/runlock"
	"github.com/benchsuite/reproduce/internal/stages"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Show the build stages and which of them are satisfied",
	Long: `Stages lists every build stage in execution order with its status: a
stage is satisfied when all of its artifacts exist and will be skipped by
the next build.

Use --export to write the stages as a YAML manifest, which can be edited and
passed back with --manifest.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"cargo-builds": "build.cargo_builds",
			"manifest":     "build.manifest",
		})
	},
	RunE: runStages,
}

var stagesExport string

func init() {
	rootCmd.AddCommand(stagesCmd)

	stagesCmd.Flags().Bool("cargo-builds", false, "include the suite and cli release builds")
	stagesCmd.Flags().String("manifest", "", "YAML stage manifest replacing the built-in stages")
	stagesCmd.Flags().StringVar(&stagesExport, "export", "", "write the stages as a manifest to this file ('-' for stdout)")
}

func runStages(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime("stages")
	if err != nil {
		return err
	}
	defer rt.close()

	all, err := rt.buildStages(rt.displayNixShell())
	if err != nil {
		return err
	}

	if stagesExport != "" {
		data, err := stages.Export(all)
		if err != nil {
			return err
		}
		if stagesExport == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(stagesExport, data, 0o644); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
		rt.console.Infof("Wrote %d stage(s) to %s", len(all), stagesExport)
		return nil
	}

	if err := printPlan(cmd.OutOrStdout(), rt, all, false); err != nil {
		return err
	}
	if lock, ok := runlock.Held(rt.cfg.Paths.ResolveWorkDir(rt.repoRoot)); ok {
		rt.console.Warnf("A '%s' run (pid %d) has held the workspace since %s",
			lock.Command, lock.PID, lock.StartedAt.Format("15:04:05"))
	}
	return nil
}

var (
	satisfiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
)

// printPlan renders the stage table. With commands set, the action of every
// stage that would run is listed below it.
func printPlan(w io.Writer, rt *runtime, all []pipeline.Stage, commands bool) error {
	if err := pipeline.Validate(all); err != nil {
		return err
	}
	exec, err := rt.executor()
	if err != nil {
		return err
	}
	plan := exec.Plan(all)

	rows := make([][]string, 0, len(plan))
	for i, st := range plan {
		status := satisfiedStyle.Render("satisfied")
		if !st.Satisfied {
			status = pendingStyle.Render(fmt.Sprintf("pending (%d missing)", len(st.Missing)))
		}
		rows = append(rows, []string{fmt.Sprint(i + 1), st.Stage.Name, st.Stage.Label(), status})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "STAGE", "DESCRIPTION", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	if !commands {
		return nil
	}
	for _, st := range plan {
		if st.Satisfied {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n  %s\n  missing: %s\n",
			st.Stage.Name, st.Stage.Action.String(), strings.Join(st.Missing, ", "))
	}
	return nil
}
