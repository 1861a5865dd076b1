package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/reconciler"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/report"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, reconciler.AmountFixed, cfg.ReconcileMode())
	assert.Equal(t, report.FormatCSV, cfg.ExportFormat())
	assert.Equal(t, "{original}_UPDATED.xml", cfg.OutputNameFormat)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "./input", cfg.InputDir)
}

func TestLoadMainConfig_PartialFile(t *testing.T) {
	path := writeConfig(t, `
mode: rate
continue_on_error: false
archive_timestamp_subdirs: true
document:
  record_element: charge
  fields:
    units: qty
server:
  addr: "127.0.0.1:9000"
`)

	cfg, err := LoadMainConfig(path)
	require.NoError(t, err)

	assert.Equal(t, reconciler.RateFixed, cfg.ReconcileMode())
	assert.False(t, cfg.ContinueOnError)
	assert.True(t, cfg.ArchiveOnSuccess)
	assert.True(t, cfg.ArchiveTimestampSubdirs)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 10<<20, cfg.Server.MaxUploadBytes)

	opts := cfg.DocumentOptions()
	assert.Equal(t, "charge", opts.RecordElement)
	assert.Equal(t, "qty", opts.Fields.Units)
	assert.Equal(t, "rate", opts.Fields.Rate)
	assert.Equal(t, "\t", opts.Indent)

	validationOpts := cfg.ValidationOptions()
	assert.Equal(t, "qty", validationOpts.Fields.Units)
	assert.True(t, validationOpts.ReportPrecision)
}

func TestLoad_ViperOverrides(t *testing.T) {
	path := writeConfig(t, "mode: rate\nmax_concurrency: 2\n")

	v := viper.New()
	v.Set(KeyMode, "amount-fixed")
	v.Set(KeyLogExportFormat, "xlsx")
	v.Set(KeyServerAddr, ":9999")

	cfg, err := Load(path, v)
	require.NoError(t, err)

	assert.Equal(t, reconciler.AmountFixed, cfg.ReconcileMode())
	assert.Equal(t, report.FormatXLSX, cfg.ExportFormat())
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.MaxConcurrency)
}

func TestNewViper_ReadsEnvironment(t *testing.T) {
	t.Setenv("FEERECON_MODE", "rate")
	t.Setenv("FEERECON_SERVER_ADDR", ":7000")

	cfg, err := Load("", NewViper())
	require.NoError(t, err)

	assert.Equal(t, "rate", cfg.Mode)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "mode", content: "mode: volume\n"},
		{name: "export format", content: "log_export_format: pdf\n"},
		{name: "log level", content: "log_level: loud\n"},
		{name: "concurrency", content: "max_concurrency: -1\n"},
		{name: "yaml", content: "mode: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMainConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoggingConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "stderr", cfg.LoggingConfig().Output)

	cfg.LogFile = "/tmp/recon.log"
	cfg.LogLevel = "debug"
	lc := cfg.LoggingConfig()
	assert.Equal(t, "/tmp/recon.log", lc.Output)
	assert.Equal(t, "debug", lc.Level)
}
