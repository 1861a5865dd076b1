// =============================================================================
// XML Fee Reconciler - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which checks invoice documents
// without reconciling them.
//
// COMMAND USAGE:
//   feerecon validate [file...] [flags]
//
// FLAGS:
//   --error-log : Also write the findings to this file
//
// Without file arguments every XML file in input_dir is checked. The command
// fails if any document is malformed or carries an unparseable quantity.
// Quantities with more than two decimals are reported as warnings only.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/feedoc"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/logging"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/validation"
	"github.com/ginjaninja78/xml-fee-reconciler/pkg/utils"
)

// errorLogPath is where validation findings are written, if set.
var errorLogPath string

// validateCmd represents the 'validate' command.
var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Check invoice documents without reconciling them",
	Long: `The validate command parses each document, extracts its fee records and
checks that every quantity is a decimal number. Findings are printed per file.

Errors (malformed XML, missing fields, unparseable quantities) make the command
fail. Warnings (more than two decimal places, empty charge date) do not.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(
		&errorLogPath,
		"error-log",
		"",
		"Write all findings to this file",
	)
}

// runValidate validates the given files, or every file in input_dir.
func runValidate(cmd *cobra.Command, paths []string) error {
	log := logging.FromContext(cmd.Context())
	out := cmd.OutOrStdout()

	if len(paths) == 0 {
		files := utils.NewFileManager(mainConfig.InputDir, "", "", "")
		discovered, err := files.DiscoverInputFiles("*.xml")
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
		paths = discovered
	}

	if len(paths) == 0 {
		fmt.Fprintln(out, "No XML files found in the input directory.")
		return nil
	}

	validator := validation.NewValidatorWithOptions(mainConfig.ValidationOptions())
	var findings []*validation.ValidationError
	failed := 0

	for _, path := range paths {
		name := filepath.Base(path)

		result, err := validateFile(validator, path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  ✗ %s: %v\n", name, err)
			log.Warn().Err(err).Str("file", path).Msg("Document rejected")
			continue
		}

		findings = append(findings, result.Errors...)
		if !result.IsValid {
			failed++
			fmt.Fprintf(out, "  ✗ %s: %d error(s), %d warning(s)\n", name, result.ErrorCount, result.WarningCount)
		} else {
			fmt.Fprintf(out, "  ✓ %s: %d fee(s), %d warning(s)\n", name, result.RecordsValidated, result.WarningCount)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, validation.FormatErrors(findings))

	if errorLogPath != "" {
		if err := validation.WriteErrorLog(findings, errorLogPath); err != nil {
			return err
		}
		log.Info().Str("path", errorLogPath).Int("findings", len(findings)).Msg("Wrote validation log")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failed, len(paths))
	}
	return nil
}

// validateFile loads one document and validates its fee records.
func validateFile(validator *validation.Validator, path string) (*validation.ValidationResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	doc, err := feedoc.Load(file, mainConfig.DocumentOptions())
	if err != nil {
		return nil, err
	}

	records, err := doc.Records()
	if err != nil {
		return nil, err
	}

	return validator.ValidateAll(records), nil
}
