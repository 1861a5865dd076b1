// =============================================================================
// XML Fee Reconciler - Validation Engine
// =============================================================================
//
// This module checks fee records before they are reconciled. Reconciliation
// stops at the first bad record; validation instead collects every problem
// in the document so that it can be fixed in one pass.
//
// VALIDATION RULES:
//   | Rule      | Severity | Applies to           | Fails when                         |
//   |-----------|----------|----------------------|------------------------------------|
//   | decimal   | error    | units, rate, amount  | the text is not a decimal number   |
//   | precision | warning  | units, rate, amount  | more than two decimal places       |
//   | required  | warning  | charge_date          | the date label is empty            |
//
//   Precision warnings are informational: they list the records the
//   reconciler will adjust.
//
// =============================================================================

package validation

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/feedoc"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/reconciler"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Rule names.
const (
	RuleDecimal   = "decimal"
	RulePrecision = "precision"
	RuleRequired  = "required"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation finding.
type ValidationError struct {
	// Severity is "error" for records that cannot be reconciled and
	// "warning" for records that will be adjusted or look suspicious.
	Severity string

	// RecordIndex is the 0-based position of the fee record.
	RecordIndex int

	// ChargeDate is the date label of the record, for display.
	ChargeDate string

	// Field is the element name that failed validation.
	Field string

	// Value is the text that failed validation.
	Value string

	// Rule is the validation rule that was violated.
	Rule string

	// Message is a human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] Fee %d (%s), Field '%s': %s (value: '%s')",
		strings.ToUpper(e.Severity),
		e.RecordIndex+1,
		e.ChargeDate,
		e.Field,
		e.Message,
		e.Value,
	)
}

// IsFatal reports whether the finding prevents reconciliation.
func (e *ValidationError) IsFatal() bool {
	return e.Severity == SeverityError
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	// Errors contains all findings, warnings included.
	Errors []*ValidationError

	// ErrorCount is the number of fatal errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	// RecordsValidated is the number of fee records checked.
	RecordsValidated int
}

// Fatal returns only the findings that prevent reconciliation.
func (r *ValidationResult) Fatal() []*ValidationError {
	var fatal []*ValidationError
	for _, e := range r.Errors {
		if e.IsFatal() {
			fatal = append(fatal, e)
		}
	}
	return fatal
}

// =============================================================================
// VALIDATOR
// =============================================================================

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// StopOnFirstError stops validation after the first fatal error.
	StopOnFirstError bool

	// ReportPrecision adds a warning for every quantity with more than two
	// decimal places.
	ReportPrecision bool

	// Fields are the element names reported in findings. Empty names fall
	// back to the defaults.
	Fields feedoc.FieldNames
}

// DefaultValidationOptions returns the default validation options.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		StopOnFirstError: false,
		ReportPrecision:  true,
		Fields:           feedoc.DefaultFieldNames(),
	}
}

// Validator performs validation on fee records.
type Validator struct {
	options ValidationOptions
}

// NewValidator creates a new Validator with default options.
func NewValidator() *Validator {
	return NewValidatorWithOptions(DefaultValidationOptions())
}

// NewValidatorWithOptions creates a new Validator with custom options.
func NewValidatorWithOptions(options ValidationOptions) *Validator {
	options.Fields = options.Fields.WithDefaults()
	return &Validator{options: options}
}

// Validate returns every fatal error found in records.
func Validate(records []types.FeeRecord) []*ValidationError {
	validator := NewValidatorWithOptions(ValidationOptions{})
	return validator.ValidateAll(records).Fatal()
}

// ValidateAll validates all records and summarises the findings.
func (v *Validator) ValidateAll(records []types.FeeRecord) *ValidationResult {
	result := &ValidationResult{}

	for _, record := range records {
		result.RecordsValidated++

		for _, finding := range v.ValidateRecord(record) {
			result.Errors = append(result.Errors, finding)
			if finding.IsFatal() {
				result.ErrorCount++
			} else {
				result.WarningCount++
			}
		}

		if v.options.StopOnFirstError && result.ErrorCount > 0 {
			break
		}
	}

	result.IsValid = result.ErrorCount == 0
	return result
}

// ValidateRecord validates a single fee record.
func (v *Validator) ValidateRecord(record types.FeeRecord) []*ValidationError {
	var findings []*ValidationError

	newFinding := func(severity, field, value, rule, message string) *ValidationError {
		return &ValidationError{
			Severity:    severity,
			RecordIndex: record.Index,
			ChargeDate:  record.ChargeDate,
			Field:       field,
			Value:       value,
			Rule:        rule,
			Message:     message,
		}
	}

	if strings.TrimSpace(record.ChargeDate) == "" {
		findings = append(findings, newFinding(SeverityWarning, v.options.Fields.ChargeDate, record.ChargeDate, RuleRequired,
			"charge date is empty"))
	}

	fields := v.options.Fields
	quantities := []struct {
		field reconciler.Field
		name  string
		value string
	}{
		{reconciler.FieldUnits, fields.Units, record.Units},
		{reconciler.FieldRate, fields.Rate, record.Rate},
		{reconciler.FieldAmount, fields.TotalAmount, record.TotalAmount},
	}

	for _, q := range quantities {
		d, err := reconciler.ParseQuantity(q.field, q.value)
		if err != nil {
			findings = append(findings, newFinding(SeverityError, q.name, q.value, RuleDecimal,
				"value is not a decimal number"))
			continue
		}

		if v.options.ReportPrecision {
			if scale := reconciler.Scale(d); scale > reconciler.MaxScale {
				findings = append(findings, newFinding(SeverityWarning, q.name, q.value, RulePrecision,
					fmt.Sprintf("%d decimal places, record will be adjusted", scale)))
			}
		}
	}

	return findings
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d finding(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}

// WriteErrorLog writes validation errors to a log file.
func WriteErrorLog(errors []*ValidationError, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	writer.WriteString("XML Fee Reconciler - Validation Log\n")
	writer.WriteString(fmt.Sprintf("Generated: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	writer.WriteString("================================================================================\n\n")
	writer.WriteString(FormatErrors(errors))

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush error log: %w", err)
	}

	return nil
}
