// =============================================================================
// XML Fee Reconciler - Reconcile Command
// =============================================================================
//
// This file defines the 'reconcile' command, which is the main command of the
// application. It orchestrates the entire reconciliation pipeline.
//
// COMMAND USAGE:
//   feerecon reconcile [flags]
//
// FLAGS:
//   --file               : Reconcile only this file instead of scanning input_dir
//   --dry-run            : Reconcile without writing or archiving anything
//   --log-export-format  : Change log format: table, csv, json, yaml, xlsx
//   --show-log           : Print the change log of every file to stdout
//
// PROCESSING PIPELINE:
//   1. Prepare the working directories and clear stale staged copies
//   2. Discover XML files in the input directory (or use --file)
//   3. For each file (concurrently, at most max_concurrency at a time):
//      a. Stage the document
//      b. Parse the fee records
//      c. Validate the quantities
//      d. Reconcile every record in the configured mode
//      e. Write the corrected XML and the change log
//   4. Archive processed files
//   5. Generate summary report
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/config"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/converter"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/logging"
	"github.com/ginjaninja78/xml-fee-reconciler/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun reconciles without writing output files.
var dryRun bool

// filePath is the path to a specific file to reconcile.
var filePath string

// showLog prints each change log as a table.
var showLog bool

// stagingMaxAge is how old a staged copy must be before it is cleared.
const stagingMaxAge = 24 * time.Hour

// =============================================================================
// RECONCILE COMMAND DEFINITION
// =============================================================================

// reconcileCmd represents the 'reconcile' command.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Fix fee precision in the XML files of the input directory",
	Long: `The reconcile command scans the input directory for XML files and rewrites
the units, rate and total_amount of every fee record so that each carries at
most two decimal places.

Files are processed concurrently, at most max_concurrency at a time. Each
document is reconciled as a whole: one bad record rejects the file and no
partial output is written.

On successful processing:
  - The corrected XML is placed in the output directory
  - The change log is written next to it
  - The original XML is moved to the input archive
  - A summary report is generated

On error:
  - The original XML remains in the input directory
  - Processing continues for other files unless continue_on_error is false`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd)
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// init registers the reconcile command with the root command and sets up flags.
func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Reconcile without writing or archiving any file",
	)

	reconcileCmd.Flags().StringVar(
		&filePath,
		"file",
		"",
		"Path to a specific file to reconcile",
	)

	reconcileCmd.Flags().BoolVar(
		&showLog,
		"show-log",
		false,
		"Print the change log of every file",
	)

	reconcileCmd.Flags().String(
		"log-export-format",
		"",
		"Change log format: table, csv, json, yaml, xlsx",
	)
	bindCommandFlag(reconcileCmd, config.KeyLogExportFormat, "log-export-format")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runReconcile is the main function that orchestrates the reconciliation pipeline.
func runReconcile(cmd *cobra.Command) error {
	startTime := time.Now()
	log := logging.FromContext(cmd.Context())
	out := cmd.OutOrStdout()
	mode := mainConfig.ReconcileMode()

	fmt.Fprintln(out, "=== XML Fee Reconciler ===")
	fmt.Fprintf(out, "Mode: %s\n", mode)

	conv := converter.New(mainConfig, log)
	conv.SetDryRun(dryRun)
	files := conv.Files()

	// =========================================================================
	// STEP 1: PREPARE DIRECTORIES
	// =========================================================================

	if err := files.EnsureDirectories(); err != nil {
		return err
	}
	if removed, err := files.CleanStaging(stagingMaxAge); err != nil {
		log.Warn().Err(err).Msg("Failed to clean staging directory")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("Cleared stale staged files")
	}

	// =========================================================================
	// STEP 2: DISCOVER INPUT FILES
	// =========================================================================

	var inputFiles []string
	if filePath != "" {
		if !utils.FileExists(filePath) {
			return fmt.Errorf("input file not found: %s", filePath)
		}
		inputFiles = []string{filePath}
	} else {
		fmt.Fprintln(out, "Discovering input files...")

		discovered, err := files.DiscoverInputFiles("*.xml")
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
		inputFiles = discovered
	}

	if len(inputFiles) == 0 {
		fmt.Fprintln(out, "No XML files found in the input directory.")
		return nil
	}

	fmt.Fprintf(out, "Found %d file(s) to process\n", len(inputFiles))

	// =========================================================================
	// STEP 3: PROCESS FILES CONCURRENTLY
	// =========================================================================

	if dryRun {
		fmt.Fprintln(out, "Processing files (dry run)...")
	} else {
		fmt.Fprintln(out, "Processing files...")
	}

	results := conv.RunAll(inputFiles)

	for _, result := range results {
		name := filepath.Base(result.FilePath)
		if !result.Success {
			fmt.Fprintf(out, "  ✗ %s: %v\n", name, result.Error)
			continue
		}

		target := result.OutputFile
		if dryRun {
			target = "(not written)"
		}
		fmt.Fprintf(out, "  ✓ %s -> %s (%d of %d adjusted)\n",
			name, target, result.Stats.RecordsAdjusted, result.Stats.RecordsProcessed)

		if showLog {
			if err := result.Outcome.ChangeLog.RenderTable(out); err != nil {
				return fmt.Errorf("failed to print change log: %w", err)
			}
		}
	}

	// =========================================================================
	// STEP 4: SUMMARY
	// =========================================================================

	summary := converter.Summarize(results, mode.String(), startTime, time.Now())

	fmt.Fprintln(out, "\n=== Processing Complete ===")
	fmt.Fprintf(out, "Total files:     %d\n", summary.TotalFiles)
	fmt.Fprintf(out, "Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Fprintf(out, "Errors:          %d\n", summary.FailedFiles)
	fmt.Fprintf(out, "Fees adjusted:   %d of %d\n", summary.AdjustedRecords, summary.TotalRecords)
	fmt.Fprintf(out, "Time elapsed:    %s\n", summary.EndTime.Sub(summary.StartTime))

	if !dryRun {
		summaryPath, err := utils.WriteSummaryLog(summary, mainConfig.OutputDir)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to write summary log")
		} else {
			fmt.Fprintf(out, "Summary:         %s\n", summaryPath)
		}
	}

	if summary.FailedFiles > 0 {
		return fmt.Errorf("%d of %d file(s) failed", summary.FailedFiles, summary.TotalFiles)
	}

	return nil
}
