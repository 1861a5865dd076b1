// =============================================================================
// XML Fee Reconciler - Main Entry Point
// =============================================================================
//
// This is the main entry point for the XML Fee Reconciler CLI application.
// It initializes the Cobra CLI framework and delegates command execution to
// the cmd package.
//
// USAGE:
//   feerecon reconcile     - Reconcile every XML file in the input directory
//   feerecon validate      - Check documents without reconciling them
//   feerecon serve         - Serve the reconciliation endpoint over HTTP
//   feerecon version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : Contains all CLI command definitions (Cobra)
//   - internal/      : Contains core business logic (not for external import)
//   - pkg/           : Contains shared utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/xml-fee-reconciler/cmd"
)

func main() {
	cmd.Execute()
}
