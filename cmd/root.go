// =============================================================================
// XML Fee Reconciler - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (feerecon)
//   ├── reconcileCmd (feerecon reconcile)
//   ├── validateCmd  (feerecon validate)
//   ├── serveCmd     (feerecon serve)
//   └── versionCmd   (feerecon version)
//
// CONFIGURATION:
//   Before any subcommand runs, the root command:
//   1. Loads config.yaml (missing file means defaults)
//   2. Overlays FEERECON_* environment variables and changed flags (viper)
//   3. Builds the zerolog logger and stores it in the command context
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/config"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// v carries environment variables and flags into config.Load.
var v = config.NewViper()

// mainConfig is the configuration loaded by initConfig.
var mainConfig *config.MainConfig

// logCloser releases the log file, if any.
var logCloser io.Closer

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "feerecon",
	Short: "XML Fee Reconciler - Fix fee precision in invoice XML exports",
	Long: `XML Fee Reconciler rewrites the fee records of invoice XML documents so that
units, rate and total amount carry at most two decimal places while units x rate
still matches the amount.

Two modes decide which value is kept exactly:
  amount  Amount-fixed: total_amount is kept, units are rounded up to the cent,
          rate is recomputed
  rate    Rate-fixed: rate is kept, total_amount is rounded up to the cent,
          units are recomputed

Every run writes the corrected document ({original}_UPDATED.xml by default)
and a change log listing the original and adjusted values of every fee.

Example Usage:
  feerecon reconcile                          # Reconcile every file in input_dir
  feerecon reconcile --file invoice.xml       # Reconcile a single file
  feerecon reconcile --mode rate --dry-run    # Preview Rate-fixed changes
  feerecon validate invoice.xml               # Report bad quantities
  feerecon serve --addr :8080                 # Start the upload endpoint`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},

	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print the help message.
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "config.yaml", "Path to the main configuration file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: auto, console, json")
	flags.String("log-file", "", "Write logs to this file instead of stderr")
	flags.StringP("mode", "m", "", "Reconciliation mode: amount or rate")

	for key, name := range map[string]string{
		config.KeyLogLevel:  "log-level",
		config.KeyLogFormat: "log-format",
		config.KeyLogFile:   "log-file",
		config.KeyMode:      "mode",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig loads the configuration and builds the logger.
func initConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(cfgFile, v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log, closer, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	mainConfig, logCloser = cfg, closer
	cmd.SetContext(logging.WithLogger(cmd.Context(), log))

	log.Debug().Str("config", cfgFile).Str("mode", cfg.Mode).Msg("Configuration loaded")
	return nil
}

// bindCommandFlag binds a command-local flag to a configuration key.
func bindCommandFlag(cmd *cobra.Command, key, name string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}
