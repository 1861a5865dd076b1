// =============================================================================
// XML Fee Reconciler - Converter Module
// =============================================================================
//
// This module orchestrates the reconciliation pipeline for a single invoice
// document, from staging the input bytes to writing the corrected XML and its
// change log.
//
// PIPELINE:
//   1. Stage the document under a private name
//   2. Parse the staged copy into an order-preserving tree
//   3. Extract the fee records
//   4. Validate every record, collecting all problems
//   5. Reconcile the records in document order
//   6. Write corrected values back into the tree
//   7. Render the corrected document and build the change log
//   8. Remove the staged copy (always, even on failure)
//
//   Run adds, for files on disk:
//   9. Write the corrected document and change log to the output directory
//  10. Archive the input file
//
// CONCURRENCY:
//   A Converter holds no per-document state. RunAll processes several files
//   at once, bounded by max_concurrency; each document is still reconciled
//   sequentially.
//
// =============================================================================

package converter

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/config"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/feedoc"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/reconciler"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/report"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/validation"
	"github.com/ginjaninja78/xml-fee-reconciler/pkg/utils"
)

// ErrValidationFailed is returned when a document has records that cannot be
// reconciled.
var ErrValidationFailed = errors.New("validation failed")

// =============================================================================
// RESULT STRUCTURES
// =============================================================================

// Outcome is the in-memory result of reconciling one document.
type Outcome struct {
	// Mode is the reconciliation mode that was applied.
	Mode reconciler.Mode

	// Document is the corrected XML.
	Document []byte

	// ChangeLog has one row per fee record, in document order.
	ChangeLog *report.ChangeLog

	// Results are the per-record reconciliation results.
	Results []reconciler.Result

	// Warnings are non-fatal validation findings.
	Warnings []*validation.ValidationError

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// Result represents the outcome of processing a single file.
type Result struct {
	// FilePath is the path to the input file that was processed.
	FilePath string

	// OutputFile is the path to the corrected XML file.
	// This is empty if processing failed or for dry runs.
	OutputFile string

	// LogFile is the path to the exported change log.
	LogFile string

	// ArchivePath is where the input file was moved, if it was archived.
	ArchivePath string

	// Success indicates whether the processing was successful.
	Success bool

	// Error contains the error if processing failed.
	Error error

	// Outcome holds the reconciled document. Nil on failure.
	Outcome *Outcome

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	// RecordsProcessed is the number of fee records found.
	RecordsProcessed int `json:"records_processed"`

	// RecordsAdjusted is the number of records whose values were rewritten.
	RecordsAdjusted int `json:"records_adjusted"`

	// RecordsUnchanged is the number of records already at two decimals.
	RecordsUnchanged int `json:"records_unchanged"`

	// ValidationErrors is the number of fatal validation errors.
	ValidationErrors int `json:"validation_errors"`

	// ValidationWarnings is the number of non-fatal validation findings.
	ValidationWarnings int `json:"validation_warnings"`

	// ProcessingTime is the time taken to process the document.
	ProcessingTime time.Duration `json:"processing_time_ns"`
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Converter reconciles invoice documents.
type Converter struct {
	mainConfig *config.MainConfig
	files      *utils.FileManager
	logger     zerolog.Logger
	dryRun     bool
}

// New creates a new Converter. A nil mainConfig means the defaults.
func New(mainConfig *config.MainConfig, logger zerolog.Logger) *Converter {
	if mainConfig == nil {
		mainConfig = config.DefaultConfig()
	}

	files := utils.NewFileManager(
		mainConfig.InputDir,
		mainConfig.OutputDir,
		mainConfig.StagingDir,
		mainConfig.InputArchiveDir,
	)
	files.ArchiveOnSuccess = mainConfig.ArchiveOnSuccess
	files.ArchiveByDate = mainConfig.ArchiveTimestampSubdirs

	return &Converter{
		mainConfig: mainConfig,
		files:      files,
		logger:     logger,
	}
}

// SetDryRun makes Run reconcile without writing or archiving anything.
func (c *Converter) SetDryRun(dryRun bool) {
	c.dryRun = dryRun
}

// Files returns the file manager used for staging and output.
func (c *Converter) Files() *utils.FileManager {
	return c.files
}

// =============================================================================
// DOCUMENT PROCESSING
// =============================================================================

// Process reconciles one document held in memory. name is used for staging
// and logging only.
func (c *Converter) Process(name string, data []byte, mode reconciler.Mode) (*Outcome, error) {
	// =========================================================================
	// STEP 1: STAGE
	// =========================================================================

	stagedPath, err := c.files.Stage(name, data)
	if err != nil {
		return nil, err
	}
	return c.processStaged(name, stagedPath, mode)
}

// processStaged runs steps 2 to 8 on a staged copy and removes it.
func (c *Converter) processStaged(name, stagedPath string, mode reconciler.Mode) (*Outcome, error) {
	startTime := time.Now()
	logger := c.logger.With().Str("file", filepath.Base(name)).Logger()

	defer func() {
		if err := c.files.RemoveStaged(stagedPath); err != nil {
			logger.Warn().Err(err).Str("staged", stagedPath).Msg("Failed to remove staged file")
		}
	}()

	rec, err := reconciler.New(mode)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("mode", rec.Mode().String()).Logger()

	logger.Debug().Str("staged", stagedPath).Msg("Staged document")

	// =========================================================================
	// STEP 2-3: PARSE AND EXTRACT RECORDS
	// =========================================================================

	staged, err := c.files.ReadStaged(stagedPath)
	if err != nil {
		return nil, err
	}
	doc, err := feedoc.Load(bytes.NewReader(staged), c.mainConfig.DocumentOptions())
	if err != nil {
		return nil, err
	}

	records, err := doc.Records()
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Mode: rec.Mode()}
	outcome.Stats.RecordsProcessed = len(records)

	if len(records) == 0 {
		logger.Warn().Str("record_element", c.mainConfig.Document.RecordElement).Msg("No fee records found")
	}

	// =========================================================================
	// STEP 4: VALIDATE
	// =========================================================================

	validated := validation.NewValidatorWithOptions(c.mainConfig.ValidationOptions()).ValidateAll(records)
	outcome.Stats.ValidationErrors = validated.ErrorCount
	outcome.Stats.ValidationWarnings = validated.WarningCount

	for _, finding := range validated.Errors {
		if finding.IsFatal() {
			logger.Error().Str("rule", finding.Rule).Msg(finding.Error())
			continue
		}
		outcome.Warnings = append(outcome.Warnings, finding)
		logger.Debug().Str("rule", finding.Rule).Msg(finding.Error())
	}

	if !validated.IsValid {
		return nil, fmt.Errorf("%w with %d error(s); first: %s",
			ErrValidationFailed, validated.ErrorCount, validated.Fatal()[0].Error())
	}

	// =========================================================================
	// STEP 5: RECONCILE
	// =========================================================================

	results, err := rec.ReconcileBatch(records)
	if err != nil {
		return nil, err
	}
	outcome.Results = results

	// =========================================================================
	// STEP 6: WRITE BACK
	// =========================================================================

	for _, res := range results {
		units, rate, amount := res.Corrected.Text()
		if err := doc.SetValues(res.Index, units, rate, amount); err != nil {
			return nil, err
		}

		if res.Status == reconciler.Adjusted {
			outcome.Stats.RecordsAdjusted++
			logger.Info().
				Int("record", res.Index+1).
				Str("charge_date", res.ChargeDate).
				Str("units", res.Original.Units+" -> "+units).
				Str("rate", res.Original.Rate+" -> "+rate).
				Str("total_amount", res.Original.Amount+" -> "+amount).
				Msg("Adjusted fee")
		} else {
			outcome.Stats.RecordsUnchanged++
		}
	}

	// =========================================================================
	// STEP 7: RENDER
	// =========================================================================

	rendered, err := doc.Bytes()
	if err != nil {
		return nil, err
	}
	outcome.Document = rendered
	outcome.ChangeLog = report.FromResults(results)
	outcome.Stats.ProcessingTime = time.Since(startTime)

	logger.Info().
		Int("records", outcome.Stats.RecordsProcessed).
		Int("adjusted", outcome.Stats.RecordsAdjusted).
		Dur("elapsed", outcome.Stats.ProcessingTime).
		Msg("Reconciled document")

	return outcome, nil
}

// =============================================================================
// FILE PROCESSING
// =============================================================================

// Run executes the pipeline for the file at inputPath using the configured
// mode, then writes the outputs and archives the input.
func (c *Converter) Run(inputPath string) Result {
	result := Result{FilePath: inputPath}

	mode, err := reconciler.ParseMode(c.mainConfig.Mode)
	if err != nil {
		result.Error = err
		return result
	}

	c.logger.Info().Str("file", inputPath).Msg("Processing file")

	stagedPath, err := c.files.StageFile(inputPath)
	if err != nil {
		result.Error = err
		return result
	}

	outcome, err := c.processStaged(inputPath, stagedPath, mode)
	if err != nil {
		result.Error = err
		return result
	}
	result.Outcome = outcome
	result.Stats = outcome.Stats

	if c.dryRun {
		c.logger.Info().Str("file", inputPath).Msg("Dry run, no files written")
		result.Success = true
		return result
	}

	// =========================================================================
	// WRITE OUTPUTS
	// =========================================================================

	outputName := utils.GenerateOutputFileName(c.mainConfig.OutputNameFormat, map[string]string{
		"original": utils.BaseName(inputPath),
		"mode":     ModeKey(mode),
	})

	outputPath, err := c.files.WriteOutput(outputName, outcome.Document)
	if err != nil {
		result.Error = fmt.Errorf("failed to write output: %w", err)
		return result
	}
	result.OutputFile = outputPath

	logPath, err := c.writeChangeLog(outputName, outcome.ChangeLog)
	if err != nil {
		result.Error = fmt.Errorf("failed to write change log: %w", err)
		return result
	}
	result.LogFile = logPath

	c.logger.Info().Str("output", outputPath).Str("change_log", logPath).Msg("Wrote output")

	// =========================================================================
	// ARCHIVE
	// =========================================================================

	if c.files.ArchiveOnSuccess {
		archivePath, err := c.files.ArchiveInputFile(inputPath)
		if err != nil {
			// Log the error but don't fail the processing.
			c.logger.Warn().Err(err).Str("file", inputPath).Msg("Failed to archive input file")
		} else {
			result.ArchivePath = archivePath
		}
	}

	result.Success = true
	return result
}

// RunAll processes files concurrently, at most max_concurrency at a time, and
// returns the results in the order of paths. Unless continue_on_error is set,
// files not yet started when one fails are skipped with an error result.
func (c *Converter) RunAll(paths []string) []Result {
	results := make([]Result, len(paths))
	limit := c.mainConfig.MaxConcurrency
	if limit < 1 {
		limit = 1
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed bool
	)
	semaphore := make(chan struct{}, limit)

	for i, path := range paths {
		semaphore <- struct{}{}

		mu.Lock()
		stop := failed && !c.mainConfig.ContinueOnError
		mu.Unlock()
		if stop {
			<-semaphore
			results[i] = Result{FilePath: path, Error: errors.New("skipped after an earlier failure")}
			continue
		}

		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			res := c.Run(path)
			results[i] = res

			if !res.Success {
				mu.Lock()
				failed = true
				mu.Unlock()
			}
		}(i, path)
	}

	wg.Wait()
	return results
}

// Summarize builds a processing summary from RunAll results.
func Summarize(results []Result, mode string, start, end time.Time) utils.ProcessingSummary {
	summary := utils.ProcessingSummary{
		StartTime:  start,
		EndTime:    end,
		Mode:       mode,
		TotalFiles: len(results),
	}

	for _, res := range results {
		summary.ValidationErrors += res.Stats.ValidationErrors
		if !res.Success {
			summary.FailedFiles++
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    res.FilePath,
				ErrorMessage: res.Error.Error(),
			})
			continue
		}

		summary.SuccessfulFiles++
		summary.TotalRecords += res.Stats.RecordsProcessed
		summary.AdjustedRecords += res.Stats.RecordsAdjusted
		summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
			InputFile:   res.FilePath,
			OutputFile:  res.OutputFile,
			LogFile:     res.LogFile,
			ArchivePath: res.ArchivePath,
			Records:     res.Stats.RecordsProcessed,
			Adjusted:    res.Stats.RecordsAdjusted,
			ProcessTime: res.Stats.ProcessingTime,
		})
	}

	return summary
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// writeChangeLog exports the change log next to the corrected document, using
// the document's name with the format's extension.
func (c *Converter) writeChangeLog(outputName string, log *report.ChangeLog) (string, error) {
	format := c.mainConfig.ExportFormat()
	logName := strings.TrimSuffix(outputName, filepath.Ext(outputName)) + format.Extension()

	file, err := c.files.CreateOutput(logName)
	if err != nil {
		return "", err
	}

	if err := log.Export(file, format); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	return file.Name(), nil
}

// ModeKey returns the short configuration name of a mode: "amount" or "rate".
func ModeKey(mode reconciler.Mode) string {
	if mode == reconciler.RateFixed {
		return "rate"
	}
	return "amount"
}

// IsInputError reports whether err was caused by the document or the request
// rather than by the environment.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrValidationFailed,
		feedoc.ErrMalformedXML,
		feedoc.ErrNoRoot,
		feedoc.ErrMissingField,
		reconciler.ErrMalformedQuantity,
		reconciler.ErrDivisionByZero,
		reconciler.ErrUnknownMode,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
