// =============================================================================
// XML Fee Reconciler - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - feedoc      (produces records from the XML document)
//   - validation  (checks records before reconciliation)
//   - reconciler  (consumes records and produces corrected values)
//
// =============================================================================

package types

// =============================================================================
// FEE RECORD TYPES
// =============================================================================

// FeeRecord represents a single <fee> element of an invoice document.
// All quantities are kept as the original text so that their decimal scale
// can be inspected exactly.
type FeeRecord struct {
	// Index is the 0-based position of the record in document order.
	Index int

	// ChargeDate is the text of the <charge_date> element.
	// It is an opaque label and is never parsed.
	ChargeDate string

	// Units is the text of the <units> element.
	Units string

	// Rate is the text of the <rate> element.
	Rate string

	// TotalAmount is the text of the <total_amount> element.
	TotalAmount string
}

// Quantities returns the three numeric fields in (units, rate, amount) order.
func (r FeeRecord) Quantities() (units, rate, amount string) {
	return r.Units, r.Rate, r.TotalAmount
}
