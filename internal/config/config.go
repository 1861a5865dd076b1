// =============================================================================
// XML Fee Reconciler - Configuration Module
// =============================================================================
//
// This module is responsible for loading the application configuration.
//
// CONFIGURATION SOURCES (later sources win):
//   1. Built-in defaults (DefaultConfig)
//   2. Main config file (config.yaml)
//   3. Environment variables with the FEERECON_ prefix
//   4. Command line flags bound by the CLI
//
//   Sources 3 and 4 arrive through a viper instance; only keys that are
//   explicitly set there override the file.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/feedoc"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/logging"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/reconciler"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/report"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/validation"
)

// EnvPrefix is the prefix of environment variables read by the CLI.
const EnvPrefix = "FEERECON"

// Override keys understood by Load.
const (
	KeyMode            = "mode"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyLogFile         = "log_file"
	KeyLogExportFormat = "log_export_format"
	KeyInputDir        = "input_dir"
	KeyOutputDir       = "output_dir"
	KeyStagingDir      = "staging_dir"
	KeyMaxConcurrency  = "max_concurrency"
	KeyServerAddr      = "server.addr"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
// This is loaded from the main config.yaml file.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is the directory scanned for invoice XML files.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir is the directory where corrected documents and change logs
	// are written.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// StagingDir holds private copies of documents while they are processed.
	// Staged copies are removed when processing ends, successful or not.
	// Default: "./staging"
	StagingDir string `yaml:"staging_dir"`

	// InputArchiveDir is where processed input files are moved.
	// Files are only moved here after successful processing.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is the path to the application log file. Empty logs to stderr.
	LogFile string `yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "auto", "console" or "json".
	// Default: "auto"
	LogFormat string `yaml:"log_format"`

	// =========================================================================
	// RECONCILIATION SETTINGS
	// =========================================================================

	// Mode selects which quantity is preserved exactly: "amount" or "rate".
	// Default: "amount"
	Mode string `yaml:"mode"`

	// Document describes where fee records live in the invoice XML.
	Document DocumentConfig `yaml:"document"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputNameFormat defines the corrected document's file name.
	// Placeholders:
	//   {original}  - Input file name without extension
	//   {mode}      - "amount" or "rate"
	//   {uuid}      - A random UUID
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
	//   {date}      - Current date (YYYYMMDD)
	//   {time}      - Current time (HHMMSS)
	// Default: "{original}_UPDATED.xml"
	OutputNameFormat string `yaml:"output_name_format"`

	// LogExportFormat is the change log format written next to the output:
	// "table", "csv", "json", "yaml" or "xlsx".
	// Default: "csv"
	LogExportFormat string `yaml:"log_export_format"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of files to process concurrently.
	// Set to 1 for sequential processing.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// ContinueOnError determines whether to continue processing other files
	// if one file fails.
	// Default: true
	ContinueOnError bool `yaml:"continue_on_error"`

	// ArchiveOnSuccess moves each successfully processed input file into
	// InputArchiveDir.
	// Default: true
	ArchiveOnSuccess bool `yaml:"archive_on_success"`

	// ArchiveTimestampSubdirs files archived inputs under YYYY/MM/DD
	// subdirectories of InputArchiveDir.
	// Default: false
	ArchiveTimestampSubdirs bool `yaml:"archive_timestamp_subdirs"`

	// =========================================================================
	// SERVER SETTINGS
	// =========================================================================

	Server ServerConfig `yaml:"server"`
}

// DocumentConfig names the record element and its fields.
type DocumentConfig struct {
	// RecordElement is the repeated element holding one fee.
	// Default: "fee"
	RecordElement string `yaml:"record_element"`

	// Fields are the element names inside each record.
	Fields feedoc.FieldNames `yaml:"fields"`

	// Indent is written once per nesting level in the output.
	// Default: tab
	Indent string `yaml:"indent"`
}

// ServerConfig configures the HTTP upload endpoint.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `yaml:"addr"`

	// MaxUploadBytes limits the request body size.
	// Default: 10 MiB
	MaxUploadBytes int `yaml:"max_upload_bytes"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *MainConfig {
	return &MainConfig{
		InputDir:        "./input",
		OutputDir:       "./output",
		StagingDir:      "./staging",
		InputArchiveDir: "./input_archive",
		LogLevel:        "info",
		LogFormat:       "auto",
		Mode:            "amount",
		Document: DocumentConfig{
			RecordElement: "fee",
			Fields:        feedoc.DefaultFieldNames(),
			Indent:        "\t",
		},
		OutputNameFormat: "{original}_UPDATED.xml",
		LogExportFormat:  "csv",
		MaxConcurrency:   4,
		ContinueOnError:  true,
		ArchiveOnSuccess: true,
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 10 << 20,
		},
	}
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
// Keys missing from the file keep their default values.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	return Load(configPath, nil)
}

// Load reads the YAML file at configPath (a missing file is not an error when
// the path is empty or does not exist), applies explicit overrides from v and
// validates the result. v may be nil.
func Load(configPath string, v *viper.Viper) (*MainConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if v != nil {
		applyOverrides(config, v)
	}

	applyMainConfigDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// NewViper returns a viper instance reading FEERECON_* environment variables,
// e.g. FEERECON_MODE or FEERECON_SERVER_ADDR.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only answers IsSet for bound keys.
	for _, key := range []string{
		KeyMode, KeyLogLevel, KeyLogFormat, KeyLogFile, KeyLogExportFormat,
		KeyInputDir, KeyOutputDir, KeyStagingDir, KeyMaxConcurrency, KeyServerAddr,
	} {
		_ = v.BindEnv(key)
	}
	return v
}

func applyOverrides(config *MainConfig, v *viper.Viper) {
	overrides := []struct {
		key    string
		target *string
	}{
		{KeyMode, &config.Mode},
		{KeyLogLevel, &config.LogLevel},
		{KeyLogFormat, &config.LogFormat},
		{KeyLogFile, &config.LogFile},
		{KeyLogExportFormat, &config.LogExportFormat},
		{KeyInputDir, &config.InputDir},
		{KeyOutputDir, &config.OutputDir},
		{KeyStagingDir, &config.StagingDir},
		{KeyServerAddr, &config.Server.Addr},
	}

	for _, s := range overrides {
		if v.IsSet(s.key) {
			*s.target = v.GetString(s.key)
		}
	}

	if v.IsSet(KeyMaxConcurrency) {
		config.MaxConcurrency = v.GetInt(KeyMaxConcurrency)
	}
}

// applyMainConfigDefaults fills values a config file blanked out explicitly.
func applyMainConfigDefaults(config *MainConfig) {
	def := DefaultConfig()

	if config.InputDir == "" {
		config.InputDir = def.InputDir
	}
	if config.OutputDir == "" {
		config.OutputDir = def.OutputDir
	}
	if config.StagingDir == "" {
		config.StagingDir = def.StagingDir
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = def.InputArchiveDir
	}
	if config.LogLevel == "" {
		config.LogLevel = def.LogLevel
	}
	if config.LogFormat == "" {
		config.LogFormat = def.LogFormat
	}
	if config.Mode == "" {
		config.Mode = def.Mode
	}
	if config.OutputNameFormat == "" {
		config.OutputNameFormat = def.OutputNameFormat
	}
	if config.LogExportFormat == "" {
		config.LogExportFormat = def.LogExportFormat
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.Server.Addr == "" {
		config.Server.Addr = def.Server.Addr
	}
	if config.Server.MaxUploadBytes == 0 {
		config.Server.MaxUploadBytes = def.Server.MaxUploadBytes
	}
}

// Validate checks the values that would otherwise fail late.
func (c *MainConfig) Validate() error {
	if _, err := reconciler.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := report.ParseFormat(c.LogExportFormat); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative, got %d", c.Server.MaxUploadBytes)
	}
	return nil
}

// ReconcileMode returns the parsed reconciliation mode.
func (c *MainConfig) ReconcileMode() reconciler.Mode {
	mode, err := reconciler.ParseMode(c.Mode)
	if err != nil {
		return reconciler.AmountFixed
	}
	return mode
}

// ExportFormat returns the parsed change log format.
func (c *MainConfig) ExportFormat() report.Format {
	format, err := report.ParseFormat(c.LogExportFormat)
	if err != nil {
		return report.FormatCSV
	}
	return format
}

// DocumentOptions converts the document settings for the XML layer.
func (c *MainConfig) DocumentOptions() feedoc.Options {
	return feedoc.Options{
		RecordElement:         c.Document.RecordElement,
		Fields:                c.Document.Fields,
		Indent:                c.Document.Indent,
		IncludeXMLDeclaration: true,
	}
}

// ValidationOptions returns the default validation options reporting the
// configured field names.
func (c *MainConfig) ValidationOptions() validation.ValidationOptions {
	options := validation.DefaultValidationOptions()
	options.Fields = c.Document.Fields
	return options
}

// LoggingConfig converts the logging settings for the logging package.
func (c *MainConfig) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Format = c.LogFormat
	if c.LogFile != "" {
		cfg.Output = c.LogFile
	}
	return cfg
}
