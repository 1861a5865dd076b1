// =============================================================================
// XML Fee Reconciler - Serve Command
// =============================================================================
//
// This file defines the 'serve' command, which exposes reconciliation over
// HTTP. See internal/server for the routes.
//
// COMMAND USAGE:
//   feerecon serve [--addr :8080]
//
// The server stops on SIGINT or SIGTERM.
//
// =============================================================================

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/config"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/converter"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/logging"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/server"
)

// serveCmd represents the 'serve' command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation endpoint over HTTP",
	Long: `The serve command starts an HTTP server that accepts invoice uploads on
POST /reconcile and returns the corrected document, the change log, or a JSON
summary of both. Nothing is written to the output directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.FromContext(cmd.Context())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conv := converter.New(mainConfig, log)
		if err := conv.Files().EnsureDirectories(); err != nil {
			return err
		}

		return server.New(mainConfig, conv, log).ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default :8080)")
	bindCommandFlag(serveCmd, config.KeyServerAddr, "addr")
}
