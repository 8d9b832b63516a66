package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benchsuite/reproduce/internal/config"
	"github.com/benchsuite/reproduce/internal/console"
	"github.com/benchsuite/reproduce/internal/errors"
)

// localConfigFile is picked up from the working directory before the user
// config directory is searched.
const localConfigFile = "reproduce.yaml"

var rootCmd = &cobra.Command{
	Use:   "reproduce",
	Short: "Build the OpenTitan simulator and reproduce the benchmark results",
	Long: `reproduce builds the OpenTitan Verilator simulator and its firmware
images inside nix-shell, boots the benchmark suite on it and runs every
benchmark file through the host CLI against the simulator's UART.

Build stages whose artifacts already exist are skipped, so an interrupted
run picks up where it stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. ctx is canceled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ReportError prints the error a command returned, unless the command
// already showed it, followed by a hint when rerunning may help or when the
// message alone says little.
func ReportError(c *console.Console, err error) {
	if err == nil {
		return
	}
	if !errors.IsReported(err) {
		// Configuration and input problems are the operator's to fix.
		if errors.GetSeverity(err) <= errors.SeverityWarning {
			c.Warnf("Error: %v", err)
		} else {
			c.Errorf("Error: %v", err)
		}
	}

	switch {
	case errors.IsRetryable(err):
		c.Muted("This failure may be transient. Run the command again to resume.")
	case !errors.IsUserFacing(err):
		c.Muted("Run 'reproduce logs --level error' for details.")
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./reproduce.yaml, then $HOME/.config/reproduce/config.yaml)")
	rootCmd.PersistentFlags().String("repo-root", "", "benchmark repository root (default is the current directory)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("paths.repo_root", rootCmd.PersistentFlags().Lookup("repo-root"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if _, err := os.Stat(localConfigFile); err == nil {
		viper.SetConfigFile(localConfigFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("REPRODUCE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., REPRODUCE_SIMULATOR_DISCOVERY_TIMEOUT for simulator.discovery_timeout
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// bindFlags binds the named flags of cmd to viper keys. Flags are bound
// when the command runs, since several commands share a key and viper
// keeps a single binding per key.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}
