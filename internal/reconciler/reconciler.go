// =============================================================================
// XML Fee Reconciler - Precision Reconciliation
// =============================================================================
//
// This module decides, for each fee record, whether its quantities need to be
// rewritten to two decimal places and, if so, how.
//
// RECONCILIATION POLICY:
//   A record is "unchanged" when units, rate and amount all have a scale of
//   two or less. Otherwise it is "adjusted": two fields are rounded and the
//   third (the dependent field) is recomputed from them.
//
//   | Mode         | rounded normally | rounded up to the cent | recomputed            |
//   |--------------|------------------|------------------------|-----------------------|
//   | AmountFixed  | amount           | units                  | rate = amount / units |
//   | RateFixed    | rate             | amount                 | units = amount / rate |
//
//   The "rounded up to the cent" field only uses floor(x*100)/100 + 0.01 when
//   its original scale exceeds two. Otherwise it is rounded normally.
//
// =============================================================================

package reconciler

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/types"
)

// MaxScale is the largest scale a quantity may carry without being adjusted.
const MaxScale int32 = 2

// MaxExponent bounds the decimal exponent of a parsed quantity in both
// directions. Rounding time grows with the exponent.
const MaxExponent int32 = 64

var (
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -MaxScale)
	ten     = big.NewInt(10)
)

// =============================================================================
// FIELDS, MODES AND STATUSES
// =============================================================================

// Field identifies one of the three numeric quantities of a fee record.
type Field int

const (
	FieldUnits Field = iota
	FieldRate
	FieldAmount
)

// String returns the XML element name of the field.
func (f Field) String() string {
	switch f {
	case FieldUnits:
		return "units"
	case FieldRate:
		return "rate"
	case FieldAmount:
		return "total_amount"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Mode selects which field absorbs the rounding error.
type Mode int

const (
	// AmountFixed keeps the amount and recomputes the rate.
	AmountFixed Mode = iota + 1

	// RateFixed keeps the rate and recomputes the units.
	RateFixed
)

// String returns the display name of the mode.
func (m Mode) String() string {
	switch m {
	case AmountFixed:
		return "Amount-fixed"
	case RateFixed:
		return "Rate-fixed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts user input such as "amount" or "Rate-fixed" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amount", "amount-fixed", "amount_fixed", "amountfixed":
		return AmountFixed, nil
	case "rate", "rate-fixed", "rate_fixed", "ratefixed":
		return RateFixed, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected amount or rate)", ErrUnknownMode, s)
	}
}

// Status is the outcome of classifying a fee record.
type Status string

const (
	Unchanged Status = "unchanged"
	Adjusted  Status = "adjusted"
)

// =============================================================================
// VALUES
// =============================================================================

// Triple holds the three quantities of a fee record.
type Triple struct {
	Units  decimal.Decimal
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

func (t *Triple) get(f Field) decimal.Decimal {
	switch f {
	case FieldUnits:
		return t.Units
	case FieldRate:
		return t.Rate
	default:
		return t.Amount
	}
}

func (t *Triple) set(f Field, d decimal.Decimal) {
	switch f {
	case FieldUnits:
		t.Units = d
	case FieldRate:
		t.Rate = d
	default:
		t.Amount = d
	}
}

// Text renders the triple as plain two-decimal strings.
func (t Triple) Text() (units, rate, amount string) {
	return t.Units.StringFixed(MaxScale), t.Rate.StringFixed(MaxScale), t.Amount.StringFixed(MaxScale)
}

// Original holds the quantities exactly as they appeared in the document.
type Original struct {
	Units  string
	Rate   string
	Amount string
}

// Result is the reconciliation outcome of a single fee record.
type Result struct {
	Index      int
	ChargeDate string
	Status     Status
	Original   Original

	// Corrected holds the values to write back. For unchanged records it is
	// numerically equal to Original.
	Corrected Triple
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Scale returns the number of digits right of the decimal point once
// trailing zeros are stripped. Scale("10.2500") is 2, Scale("100") is 0.
func Scale(d decimal.Decimal) int32 {
	exp := d.Exponent()
	if exp >= 0 {
		return 0
	}

	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return 0
	}

	rem := new(big.Int)
	for exp < 0 {
		q, r := new(big.Int).QuoRem(coef, ten, rem)
		if r.Sign() != 0 {
			break
		}
		coef = q
		exp++
	}

	return -exp
}

// Classify reports whether a record can be left as it is.
// The decision is made on the decimal text, never on a float.
func Classify(units, rate, amount string) (Status, error) {
	values, err := parseTriple(units, rate, amount)
	if err != nil {
		return "", err
	}
	return classifyParsed(values), nil
}

func classifyParsed(values Triple) Status {
	for _, f := range []Field{FieldUnits, FieldRate, FieldAmount} {
		if Scale(values.get(f)) > MaxScale {
			return Adjusted
		}
	}
	return Unchanged
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileUnchanged converts the quantities without rounding or recomputing.
func ReconcileUnchanged(units, rate, amount string) (Triple, error) {
	return parseTriple(units, rate, amount)
}

// ReconcileAdjusted rounds two of the quantities and recomputes the
// dependent one according to mode.
func ReconcileAdjusted(units, rate, amount string, mode Mode) (Triple, error) {
	values, err := parseTriple(units, rate, amount)
	if err != nil {
		return Triple{}, err
	}
	return adjust(values, mode)
}

// policy describes a mode in terms of fields:
//   - fixed is rounded normally
//   - protected is rounded up to the cent when it had excess precision
//   - dependent is recomputed as amount divided by the remaining field
type policy struct {
	fixed     Field
	protected Field
	dependent Field
}

var policies = map[Mode]policy{
	AmountFixed: {fixed: FieldAmount, protected: FieldUnits, dependent: FieldRate},
	RateFixed:   {fixed: FieldRate, protected: FieldAmount, dependent: FieldUnits},
}

func adjust(values Triple, mode Mode) (Triple, error) {
	p, ok := policies[mode]
	if !ok {
		return Triple{}, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}

	var out Triple
	out.set(p.fixed, values.get(p.fixed).Round(MaxScale))
	out.set(p.protected, roundProtected(values.get(p.protected)))

	denominator := FieldUnits
	if p.dependent == FieldUnits {
		denominator = FieldRate
	}

	divisor := out.get(denominator)
	if divisor.IsZero() {
		return Triple{}, &QuantityError{
			Field: p.dependent,
			Value: values.get(p.dependent).String(),
			Err:   fmt.Errorf("%w: rounded %s is zero", ErrDivisionByZero, denominator),
		}
	}

	out.set(p.dependent, out.Amount.Div(divisor).Round(MaxScale))
	return out, nil
}

// roundProtected never rounds a truncated quantity down: anything with more
// than two decimals goes to floor(x*100)/100 + 0.01.
func roundProtected(d decimal.Decimal) decimal.Decimal {
	if Scale(d) <= MaxScale {
		return d.Round(MaxScale)
	}
	return d.Mul(hundred).Floor().Div(hundred).Add(cent).Round(MaxScale)
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler applies one mode to fee records.
type Reconciler struct {
	mode Mode
}

// New returns a Reconciler for the given mode.
func New(mode Mode) (*Reconciler, error) {
	if _, ok := policies[mode]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}
	return &Reconciler{mode: mode}, nil
}

// Mode returns the mode the reconciler applies.
func (r *Reconciler) Mode() Mode {
	return r.mode
}

// Reconcile classifies a record and computes its corrected values.
func (r *Reconciler) Reconcile(record types.FeeRecord) (Result, error) {
	units, rate, amount := record.Quantities()

	result := Result{
		Index:      record.Index,
		ChargeDate: record.ChargeDate,
		Original:   Original{Units: units, Rate: rate, Amount: amount},
	}

	values, err := parseTriple(units, rate, amount)
	if err != nil {
		return result, &RecordError{Index: record.Index, ChargeDate: record.ChargeDate, Err: err}
	}

	result.Status = classifyParsed(values)
	if result.Status == Unchanged {
		result.Corrected = values
		return result, nil
	}

	corrected, err := adjust(values, r.mode)
	if err != nil {
		return result, &RecordError{Index: record.Index, ChargeDate: record.ChargeDate, Err: err}
	}
	result.Corrected = corrected

	return result, nil
}

// ReconcileBatch reconciles records in input order. It stops at the first
// record that fails so that no partially corrected document is produced.
func (r *Reconciler) ReconcileBatch(records []types.FeeRecord) ([]Result, error) {
	results := make([]Result, 0, len(records))
	for _, record := range records {
		result, err := r.Reconcile(record)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// ReconcileBatch is a shorthand for New(mode) followed by ReconcileBatch.
func ReconcileBatch(records []types.FeeRecord, mode Mode) ([]Result, error) {
	r, err := New(mode)
	if err != nil {
		return nil, err
	}
	return r.ReconcileBatch(records)
}

// =============================================================================
// PARSING
// =============================================================================

// ParseQuantity parses the text of a quantity field. Surrounding whitespace
// is ignored; anything else that is not a decimal is rejected.
func ParseQuantity(field Field, text string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return decimal.Decimal{}, &QuantityError{Field: field, Value: text, Err: fmt.Errorf("%w: empty value", ErrMalformedQuantity)}
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, &QuantityError{Field: field, Value: text, Err: fmt.Errorf("%w: %v", ErrMalformedQuantity, err)}
	}

	if exp := d.Exponent(); exp > MaxExponent || exp < -MaxExponent {
		return decimal.Decimal{}, &QuantityError{Field: field, Value: text, Err: fmt.Errorf("%w: exponent %d out of range", ErrMalformedQuantity, exp)}
	}

	return d, nil
}

func parseTriple(units, rate, amount string) (Triple, error) {
	var t Triple
	var err error

	if t.Units, err = ParseQuantity(FieldUnits, units); err != nil {
		return Triple{}, err
	}
	if t.Rate, err = ParseQuantity(FieldRate, rate); err != nil {
		return Triple{}, err
	}
	if t.Amount, err = ParseQuantity(FieldAmount, amount); err != nil {
		return Triple{}, err
	}

	return t, nil
}
