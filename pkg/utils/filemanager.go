// =============================================================================
// XML Fee Reconciler - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the reconciler:
//   - File discovery and scanning
//   - Staging (private working copies of uploaded or discovered documents)
//   - File archival (moving processed files)
//   - Output and summary log generation
//   - File naming utilities
//
// STAGING STRATEGY:
//   - Every document is copied into staging_dir under a UUID-prefixed name
//     before it is parsed, so concurrent runs never share a file
//   - Staged copies are removed once processing ends, successful or not
//   - CleanStaging removes copies left behind by interrupted runs
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to input_archive after successful processing
//   - With ArchiveByDate they land in input_archive/YYYY/MM/DD/
//   - Failed files remain in their original location
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the reconciler.
type FileManager struct {
	// InputDir is scanned for invoice documents.
	InputDir string

	// OutputDir receives corrected documents, change logs and summaries.
	OutputDir string

	// StagingDir holds private working copies.
	StagingDir string

	// InputArchiveDir receives input files after successful processing.
	InputArchiveDir string

	// ArchiveByDate files archived inputs under YYYY/MM/DD subdirectories.
	ArchiveByDate bool

	// ArchiveOnSuccess enables ArchiveInputFile. When false inputs stay put.
	ArchiveOnSuccess bool

	// now is replaced in tests; nil means time.Now.
	now func() time.Time
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir, stagingDir, inputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:         inputDir,
		OutputDir:        outputDir,
		StagingDir:       stagingDir,
		InputArchiveDir:  inputArchiveDir,
		ArchiveOnSuccess: true,
	}
}

func (fm *FileManager) clock() time.Time {
	if fm.now != nil {
		return fm.now()
	}
	return time.Now()
}

// EnsureDirectories creates every configured directory. Empty names are
// skipped.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.InputDir, fm.OutputDir, fm.StagingDir, fm.InputArchiveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles lists the regular files of the input directory whose
// names match pattern, sorted by name. An empty pattern means "*.xml".
func (fm *FileManager) DiscoverInputFiles(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*.xml"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(fm.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, entry.Name()); ok {
			files = append(files, filepath.Join(fm.InputDir, entry.Name()))
		}
	}

	return files, nil
}

// =============================================================================
// STAGING
// =============================================================================

// Stage writes data into the staging directory and returns the staged path.
// The file keeps the base of name behind a UUID prefix.
func (fm *FileManager) Stage(name string, data []byte) (string, error) {
	if err := os.MkdirAll(fm.StagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	stagedPath := filepath.Join(fm.StagingDir, uuid.NewString()+"_"+filepath.Base(name))
	if err := os.WriteFile(stagedPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", filepath.Base(name), err)
	}

	return stagedPath, nil
}

// StageFile copies the file at path into the staging directory.
func (fm *FileManager) StageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	return fm.Stage(path, data)
}

// ReadStaged returns the content of a staged file.
func (fm *FileManager) ReadStaged(stagedPath string) ([]byte, error) {
	data, err := os.ReadFile(stagedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged file: %w", err)
	}
	return data, nil
}

// RemoveStaged deletes a staged file. A file that is already gone is not
// an error.
func (fm *FileManager) RemoveStaged(stagedPath string) error {
	if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged file: %w", err)
	}
	return nil
}

// CleanStaging removes staged files older than maxAge and returns how many
// were removed. A maxAge of zero removes everything.
func (fm *FileManager) CleanStaging(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(fm.StagingDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clean staging directory: %w", err)
	}

	cutoff := fm.clock().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if maxAge > 0 && !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fm.StagingDir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to clean staging directory: %w", err)
		}
		removed++
	}

	return removed, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// WriteOutput writes data to name inside the output directory.
func (fm *FileManager) WriteOutput(name string, data []byte) (string, error) {
	if err := os.MkdirAll(fm.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(fm.OutputDir, filepath.Base(name))
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filepath.Base(name), err)
	}

	return outputPath, nil
}

// CreateOutput creates name inside the output directory for streaming writes.
func (fm *FileManager) CreateOutput(name string) (*os.File, error) {
	if err := os.MkdirAll(fm.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filepath.Join(fm.OutputDir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Base(name), err)
	}
	return file, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file into the archive and returns its new
// path. With ArchiveOnSuccess unset the file is left alone and its path is
// returned unchanged.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	target := fm.archivePath(filePath)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, target); err == nil {
		return target, nil
	}

	// Rename fails across devices.
	if err := copyFile(filePath, target); err != nil {
		return "", fmt.Errorf("failed to copy file to archive: %w", err)
	}
	if err := os.Remove(filePath); err != nil {
		return "", fmt.Errorf("failed to remove archived input: %w", err)
	}
	return target, nil
}

func (fm *FileManager) archivePath(filePath string) string {
	dir := fm.InputArchiveDir
	if fm.ArchiveByDate {
		dir = filepath.Join(dir, filepath.FromSlash(fm.clock().Format("2006/01/02")))
	}
	return filepath.Join(dir, filepath.Base(filePath))
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName expands the placeholders of format and makes sure
// the result ends in ".xml".
//
// Built-in placeholders:
//   {uuid}      - A random UUID
//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//   {date}      - Current date (YYYYMMDD)
//   {time}      - Current time (HHMMSS)
//
// params adds or overrides placeholders, e.g. {"original": "invoice_271267"}
// for {original}. Every placeholder is expanded once, left to right; text
// substituted for one placeholder is never expanded again.
func GenerateOutputFileName(format string, params map[string]string) string {
	now := time.Now()

	values := map[string]string{
		"uuid":      uuid.NewString(),
		"timestamp": now.Format("20060102_150405"),
		"date":      now.Format("20060102"),
		"time":      now.Format("150405"),
	}
	for key, value := range params {
		values[key] = value
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		pairs = append(pairs, "{"+key+"}", values[key])
	}

	name := strings.NewReplacer(pairs...).Replace(format)
	if !strings.HasSuffix(strings.ToLower(name), ".xml") {
		name += ".xml"
	}
	return name
}

// BaseName returns the file name of path without directory or extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a processing run.
type ProcessingSummary struct {
	StartTime        time.Time
	EndTime          time.Time
	Mode             string
	TotalFiles       int
	SuccessfulFiles  int
	FailedFiles      int
	TotalRecords     int
	AdjustedRecords  int
	ValidationErrors int
	ProcessedFiles   []ProcessedFileInfo
	FailedFilesList  []FailedFileInfo
}

// ProcessedFileInfo contains information about a successfully processed file.
type ProcessedFileInfo struct {
	InputFile   string
	OutputFile  string
	LogFile     string
	ArchivePath string
	Records     int
	Adjusted    int
	ProcessTime time.Duration
}

// FailedFileInfo contains information about a failed file.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

const (
	summaryRule    = "================================================================================"
	summarySection = "--------------------------------------------------------------------------------"
	summaryTime    = "2006-01-02 15:04:05"
)

// WriteSummaryLog writes the summary to processing_summary_<timestamp>.txt in
// outputDir and returns its path.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	name := fmt.Sprintf("processing_summary_%s.txt", time.Now().Format("20060102_150405"))
	path := filepath.Join(outputDir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	if err := writeSummary(file, summary); err != nil {
		return "", err
	}
	return path, nil
}

func writeSummary(w io.Writer, s ProcessingSummary) error {
	b := bufio.NewWriter(w)

	fmt.Fprintf(b, "XML Fee Reconciler - Processing Summary\n%s\n\n", summaryRule)

	fmt.Fprintln(b, "Run Information:")
	fmt.Fprintf(b, "  Start Time:     %s\n", s.StartTime.Format(summaryTime))
	fmt.Fprintf(b, "  End Time:       %s\n", s.EndTime.Format(summaryTime))
	fmt.Fprintf(b, "  Duration:       %s\n", s.EndTime.Sub(s.StartTime))
	fmt.Fprintf(b, "  Mode:           %s\n\n", s.Mode)

	fmt.Fprintln(b, "Statistics:")
	fmt.Fprintf(b, "  Total Files:        %d\n", s.TotalFiles)
	fmt.Fprintf(b, "  Successful:         %d\n", s.SuccessfulFiles)
	fmt.Fprintf(b, "  Failed:             %d\n", s.FailedFiles)
	fmt.Fprintf(b, "  Total Records:      %d\n", s.TotalRecords)
	fmt.Fprintf(b, "  Adjusted Records:   %d\n", s.AdjustedRecords)
	fmt.Fprintf(b, "  Validation Errors:  %d\n\n", s.ValidationErrors)

	if len(s.ProcessedFiles) > 0 {
		fmt.Fprintf(b, "Successful Files:\n%s\n", summarySection)
		for _, pf := range s.ProcessedFiles {
			fmt.Fprintf(b, "  Input:        %s\n", pf.InputFile)
			fmt.Fprintf(b, "  Output:       %s\n", pf.OutputFile)
			if pf.LogFile != "" {
				fmt.Fprintf(b, "  Change Log:   %s\n", pf.LogFile)
			}
			if pf.ArchivePath != "" {
				fmt.Fprintf(b, "  Archived:     %s\n", pf.ArchivePath)
			}
			fmt.Fprintf(b, "  Records:      %d (%d adjusted)\n", pf.Records, pf.Adjusted)
			fmt.Fprintf(b, "  Process Time: %s\n\n", pf.ProcessTime)
		}
	}

	if len(s.FailedFilesList) > 0 {
		fmt.Fprintf(b, "Failed Files:\n%s\n", summarySection)
		for _, ff := range s.FailedFilesList {
			fmt.Fprintf(b, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(b, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	fmt.Fprintf(b, "%s\nEnd of Summary\n", summaryRule)

	if err := b.Flush(); err != nil {
		return fmt.Errorf("failed to flush summary file: %w", err)
	}
	return nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
