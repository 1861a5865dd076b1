package converter

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/config"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/feedoc"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/reconciler"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/report"
)

const invoiceXML = `<?xml version="1.0" encoding="UTF-8"?>
<invoice id="INV-1">
  <fee>
    <charge_date>2024-01-01</charge_date>
    <units>10.256</units>
    <rate>5.00</rate>
    <total_amount>51.28</total_amount>
  </fee>
  <fee>
    <charge_date>2024-01-02</charge_date>
    <units>10.25</units>
    <rate>5.00</rate>
    <total_amount>51.25</total_amount>
  </fee>
</invoice>
`

func testConfig(t *testing.T) *config.MainConfig {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.InputDir = filepath.Join(root, "input")
	cfg.OutputDir = filepath.Join(root, "output")
	cfg.StagingDir = filepath.Join(root, "staging")
	cfg.InputArchiveDir = filepath.Join(root, "input_archive")
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0755))
	return cfg
}

func writeInput(t *testing.T, cfg *config.MainConfig, name, content string) string {
	t.Helper()
	path := filepath.Join(cfg.InputDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func stagingEmpty(t *testing.T, cfg *config.MainConfig) {
	t.Helper()
	entries, err := os.ReadDir(cfg.StagingDir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcess(t *testing.T) {
	cfg := testConfig(t)
	conv := New(cfg, zerolog.Nop())

	outcome, err := conv.Process("invoice.xml", []byte(invoiceXML), reconciler.AmountFixed)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Stats.RecordsProcessed)
	assert.Equal(t, 1, outcome.Stats.RecordsAdjusted)
	assert.Equal(t, 1, outcome.Stats.RecordsUnchanged)
	assert.Len(t, outcome.Warnings, 1)

	doc := string(outcome.Document)
	assert.Contains(t, doc, "\t\t<units>10.26</units>\n")
	assert.Contains(t, doc, "\t\t<units>10.25</units>\n")
	assert.Contains(t, doc, `<invoice id="INV-1">`)

	require.Equal(t, 2, outcome.ChangeLog.Len())
	assert.Equal(t, "Adjusted", outcome.ChangeLog.Rows[0].Status)
	assert.Equal(t, report.NotApplicable, outcome.ChangeLog.Rows[1].AdjUnits)

	stagingEmpty(t, cfg)
}

func TestProcess_RateFixed(t *testing.T) {
	cfg := testConfig(t)
	conv := New(cfg, zerolog.Nop())

	outcome, err := conv.Process("invoice.xml", []byte(invoiceXML), reconciler.RateFixed)
	require.NoError(t, err)

	units, rate, amount := outcome.Results[0].Corrected.Text()
	assert.Equal(t, "10.26", units)
	assert.Equal(t, "5.00", rate)
	assert.Equal(t, "51.28", amount)
	assert.Equal(t, reconciler.RateFixed, outcome.Mode)
}

func TestProcess_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		is    error
	}{
		{name: "malformed xml", input: "<invoice><fee>", is: feedoc.ErrMalformedXML},
		{name: "missing field", input: "<invoice><fee><charge_date>d</charge_date></fee></invoice>", is: feedoc.ErrMissingField},
		{
			name:  "bad quantity",
			input: "<invoice><fee><charge_date>d</charge_date><units>x</units><rate>1</rate><total_amount>1</total_amount></fee></invoice>",
			is:    ErrValidationFailed,
		},
		{
			name:  "exponent out of range",
			input: "<invoice><fee><charge_date>d</charge_date><units>1e-20000000</units><rate>1.00</rate><total_amount>1.00</total_amount></fee></invoice>",
			is:    ErrValidationFailed,
		},
		{
			name:  "division by zero",
			input: "<invoice><fee><charge_date>d</charge_date><units>0</units><rate>1.234</rate><total_amount>0.00</total_amount></fee></invoice>",
			is:    reconciler.ErrDivisionByZero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			conv := New(cfg, zerolog.Nop())

			_, err := conv.Process("bad.xml", []byte(tt.input), reconciler.AmountFixed)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.is), err.Error())
			assert.True(t, IsInputError(err))

			stagingEmpty(t, cfg)
		})
	}
}

func TestProcess_ReportsConfiguredFieldNames(t *testing.T) {
	cfg := testConfig(t)
	cfg.Document.Fields.Units = "qty"
	conv := New(cfg, zerolog.Nop())

	input := "<invoice><fee><charge_date>d</charge_date><qty>abc</qty><rate>1</rate><total_amount>1</total_amount></fee></invoice>"
	_, err := conv.Process("custom.xml", []byte(input), reconciler.AmountFixed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Contains(t, err.Error(), "Field 'qty'")
}

func TestProcess_NoRecords(t *testing.T) {
	conv := New(testConfig(t), zerolog.Nop())

	outcome, err := conv.Process("empty.xml", []byte("<invoice><header/></invoice>"), reconciler.AmountFixed)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.ChangeLog.Len())
	assert.Contains(t, string(outcome.Document), "<header/>")
}

func TestRun_WritesOutputsAndArchives(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogExportFormat = "json"
	input := writeInput(t, cfg, "invoice_271267.xml", invoiceXML)

	res := New(cfg, zerolog.Nop()).Run(input)
	require.NoError(t, res.Error)
	assert.True(t, res.Success)

	assert.Equal(t, filepath.Join(cfg.OutputDir, "invoice_271267_UPDATED.xml"), res.OutputFile)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "invoice_271267_UPDATED.json"), res.LogFile)
	assert.Equal(t, filepath.Join(cfg.InputArchiveDir, "invoice_271267.xml"), res.ArchivePath)

	out, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<units>10.26</units>")

	log, err := os.ReadFile(res.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(log), `"adj_units": "10.26"`)

	_, err = os.Stat(input)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	stagingEmpty(t, cfg)
}

func TestRun_ArchivesByDate(t *testing.T) {
	cfg := testConfig(t)
	cfg.ArchiveTimestampSubdirs = true
	input := writeInput(t, cfg, "invoice.xml", invoiceXML)

	res := New(cfg, zerolog.Nop()).Run(input)
	require.NoError(t, res.Error)

	rel, err := filepath.Rel(cfg.InputArchiveDir, res.ArchivePath)
	require.NoError(t, err)
	parts := strings.Split(filepath.ToSlash(rel), "/")
	require.Len(t, parts, 4)
	assert.Len(t, parts[0], 4)
	assert.Equal(t, "invoice.xml", parts[3])
	assert.FileExists(t, res.ArchivePath)
}

func TestRun_MissingInput(t *testing.T) {
	cfg := testConfig(t)

	res := New(cfg, zerolog.Nop()).Run(filepath.Join(cfg.InputDir, "missing.xml"))
	assert.False(t, res.Success)
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "failed to read input file")
	stagingEmpty(t, cfg)
}

func TestRun_DryRun(t *testing.T) {
	cfg := testConfig(t)
	input := writeInput(t, cfg, "invoice.xml", invoiceXML)

	conv := New(cfg, zerolog.Nop())
	conv.SetDryRun(true)

	res := conv.Run(input)
	require.NoError(t, res.Error)
	assert.True(t, res.Success)
	assert.Empty(t, res.OutputFile)
	assert.NotNil(t, res.Outcome)

	_, err := os.Stat(input)
	assert.NoError(t, err)
}

func TestRun_FailureLeavesInput(t *testing.T) {
	cfg := testConfig(t)
	input := writeInput(t, cfg, "broken.xml", "<invoice>")

	res := New(cfg, zerolog.Nop()).Run(input)
	assert.False(t, res.Success)
	assert.Error(t, res.Error)

	_, err := os.Stat(input)
	assert.NoError(t, err)
}

func TestRunAll(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrency = 2

	paths := []string{
		writeInput(t, cfg, "a.xml", invoiceXML),
		writeInput(t, cfg, "b.xml", "<invoice>"),
		writeInput(t, cfg, "c.xml", invoiceXML),
	}

	start := time.Now()
	results := New(cfg, zerolog.Nop()).RunAll(paths)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	for i, res := range results {
		assert.Equal(t, paths[i], res.FilePath)
	}

	summary := Summarize(results, "Amount-fixed", start, time.Now())
	assert.Equal(t, 3, summary.TotalFiles)
	assert.Equal(t, 2, summary.SuccessfulFiles)
	assert.Equal(t, 1, summary.FailedFiles)
	assert.Equal(t, 4, summary.TotalRecords)
	assert.Equal(t, 2, summary.AdjustedRecords)
	assert.True(t, strings.HasSuffix(summary.FailedFilesList[0].InputFile, "b.xml"))
}

func TestRunAll_StopsWithoutContinueOnError(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrency = 1
	cfg.ContinueOnError = false

	paths := []string{
		writeInput(t, cfg, "a.xml", "<invoice>"),
		writeInput(t, cfg, "b.xml", invoiceXML),
	}

	results := New(cfg, zerolog.Nop()).RunAll(paths)
	assert.False(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error.Error(), "skipped")
}

func TestModeKey(t *testing.T) {
	assert.Equal(t, "amount", ModeKey(reconciler.AmountFixed))
	assert.Equal(t, "rate", ModeKey(reconciler.RateFixed))
}
