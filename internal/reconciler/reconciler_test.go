package reconciler_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/reconciler"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/types"
)

func TestScale(t *testing.T) {
	tests := []struct {
		in   string
		want int32
	}{
		{"10", 0},
		{"100", 0},
		{"0", 0},
		{"0.000", 0},
		{"10.2", 1},
		{"10.25", 2},
		{"10.2500", 2},
		{"10.256", 3},
		{"-1.2345", 4},
		{"1e-3", 3},
		{"5.00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, reconciler.Scale(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name                string
		units, rate, amount string
		want                reconciler.Status
	}{
		{"all two decimals", "10.25", "5.00", "51.25", reconciler.Unchanged},
		{"trailing zeros ignored", "10.2500", "5.000000", "51.250", reconciler.Unchanged},
		{"integers", "3", "7", "21", reconciler.Unchanged},
		{"units excess", "10.256", "5.00", "51.28", reconciler.Adjusted},
		{"rate excess", "10", "5.125", "51.25", reconciler.Adjusted},
		{"amount excess", "10", "5.12", "51.2001", reconciler.Adjusted},
		{"whitespace tolerated", " 10.25\n", "\t5.00", "51.25 ", reconciler.Unchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reconciler.Classify(tt.units, tt.rate, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Malformed(t *testing.T) {
	for _, bad := range []string{"", "   ", "abc", "1,000.00", "12.3.4", "NaN", "1e-20000000", "1e65", "1e-65"} {
		t.Run(bad, func(t *testing.T) {
			_, err := reconciler.Classify("1.00", bad, "1.00")
			require.Error(t, err)
			assert.True(t, errors.Is(err, reconciler.ErrMalformedQuantity))

			var qe *reconciler.QuantityError
			require.True(t, errors.As(err, &qe))
			assert.Equal(t, reconciler.FieldRate, qe.Field)
		})
	}
}

func TestParseQuantity_ExponentBounds(t *testing.T) {
	d, err := reconciler.ParseQuantity(reconciler.FieldUnits, "1e-64")
	require.NoError(t, err)
	assert.Equal(t, int32(-64), d.Exponent())

	_, err = reconciler.ParseQuantity(reconciler.FieldUnits, "1e64")
	require.NoError(t, err)

	start := time.Now()
	_, err = reconciler.ReconcileAdjusted("1e-20000000", "1.00", "1.00", reconciler.AmountFixed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconciler.ErrMalformedQuantity))
	assert.Less(t, time.Since(start), time.Second)
}

func TestReconcileUnchanged(t *testing.T) {
	got, err := reconciler.ReconcileUnchanged("10.25", "5.00", "51.25")
	require.NoError(t, err)

	assert.True(t, got.Units.Equal(decimal.RequireFromString("10.25")))
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("5")))
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("51.25")))
}

func TestReconcileAdjusted(t *testing.T) {
	tests := []struct {
		name                            string
		units, rate, amount             string
		mode                            reconciler.Mode
		wantUnits, wantRate, wantAmount string
	}{
		{
			name:  "amount fixed, units rounded up to the cent",
			units: "10.256", rate: "5.00", amount: "51.28",
			mode:      reconciler.AmountFixed,
			wantUnits: "10.26", wantRate: "5.00", wantAmount: "51.28",
		},
		{
			name:  "amount fixed, units already two decimals",
			units: "4.00", rate: "2.5555", amount: "10.22",
			mode:      reconciler.AmountFixed,
			wantUnits: "4.00", wantRate: "2.56", wantAmount: "10.22",
		},
		{
			name:  "amount fixed, amount rounds half away from zero",
			units: "2", rate: "1.3", amount: "2.605",
			mode:      reconciler.AmountFixed,
			wantUnits: "2.00", wantRate: "1.31", wantAmount: "2.61",
		},
		{
			name:  "rate fixed, amount rounded up to the cent",
			units: "3", rate: "1.505", amount: "4.515",
			mode:      reconciler.RateFixed,
			wantUnits: "2.99", wantRate: "1.51", wantAmount: "4.52",
		},
		{
			name:  "rate fixed, amount already two decimals",
			units: "7.3333", rate: "1.50", amount: "11.00",
			mode:      reconciler.RateFixed,
			wantUnits: "7.33", wantRate: "1.50", wantAmount: "11.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reconciler.ReconcileAdjusted(tt.units, tt.rate, tt.amount, tt.mode)
			require.NoError(t, err)

			units, rate, amount := got.Text()
			assert.Equal(t, tt.wantUnits, units)
			assert.Equal(t, tt.wantRate, rate)
			assert.Equal(t, tt.wantAmount, amount)
		})
	}
}

func TestReconcileAdjusted_DivisionByZero(t *testing.T) {
	tests := []struct {
		name                string
		units, rate, amount string
		mode                reconciler.Mode
	}{
		{"amount fixed, zero units", "0", "1.234", "0.00", reconciler.AmountFixed},
		{"amount fixed, units round to zero", "-0.001", "1.00", "0.00", reconciler.AmountFixed},
		{"rate fixed, rate rounds to zero", "1", "0.004", "1.00", reconciler.RateFixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reconciler.ReconcileAdjusted(tt.units, tt.rate, tt.amount, tt.mode)
			require.Error(t, err)
			assert.True(t, errors.Is(err, reconciler.ErrDivisionByZero))
		})
	}
}

func TestReconcileAdjusted_NeverUnderbills(t *testing.T) {
	for _, units := range []string{"2.001", "2.009", "10.256", "0.001", "99.9999", "123.4561"} {
		t.Run(units, func(t *testing.T) {
			got, err := reconciler.ReconcileAdjusted(units, "1.00", "10.00", reconciler.AmountFixed)
			require.NoError(t, err)

			original := decimal.RequireFromString(units)
			truncated := original.Mul(decimal.NewFromInt(100)).Floor().Div(decimal.NewFromInt(100))
			assert.True(t, got.Units.GreaterThan(truncated), "units %s not above %s", got.Units, truncated)
			assert.True(t, got.Units.GreaterThanOrEqual(original))
		})
	}
}

func TestReconcileAdjusted_Consistency(t *testing.T) {
	records := [][3]string{
		{"10.256", "5.00", "51.28"},
		{"1.333", "3.3333", "4.4444"},
		{"250", "0.125", "31.25"},
		{"0.5", "19.999", "9.9995"},
		{"17.005", "2.0001", "34.0101"},
	}

	for _, r := range records {
		got, err := reconciler.ReconcileAdjusted(r[0], r[1], r[2], reconciler.AmountFixed)
		require.NoError(t, err)
		assert.True(t, got.Amount.Div(got.Units).Round(2).Equal(got.Rate), "amount fixed %v", r)

		got, err = reconciler.ReconcileAdjusted(r[0], r[1], r[2], reconciler.RateFixed)
		require.NoError(t, err)
		assert.True(t, got.Amount.Div(got.Rate).Round(2).Equal(got.Units), "rate fixed %v", r)
	}
}

func TestReconcileAdjusted_IdempotentOnTwoDecimalInput(t *testing.T) {
	records := [][3]string{
		{"10.25", "5.00", "51.25"},
		{"4", "2.50", "10.00"},
		{"0.50", "20.00", "10.00"},
	}

	for _, mode := range []reconciler.Mode{reconciler.AmountFixed, reconciler.RateFixed} {
		for _, r := range records {
			got, err := reconciler.ReconcileAdjusted(r[0], r[1], r[2], mode)
			require.NoError(t, err)

			assert.True(t, got.Units.Equal(decimal.RequireFromString(r[0])), "%v %v", mode, r)
			assert.True(t, got.Rate.Equal(decimal.RequireFromString(r[1])), "%v %v", mode, r)
			assert.True(t, got.Amount.Equal(decimal.RequireFromString(r[2])), "%v %v", mode, r)
		}
	}
}

func TestReconcileAdjusted_UnknownMode(t *testing.T) {
	_, err := reconciler.ReconcileAdjusted("1.001", "1", "1", reconciler.Mode(42))
	assert.True(t, errors.Is(err, reconciler.ErrUnknownMode))
}

func TestNew_UnknownMode(t *testing.T) {
	r, err := reconciler.New(reconciler.Mode(42))
	assert.Nil(t, r)
	assert.True(t, errors.Is(err, reconciler.ErrUnknownMode))
}

func TestReconciler_ReconcileBatch(t *testing.T) {
	records := []types.FeeRecord{
		{Index: 0, ChargeDate: "2024-01-01", Units: "10.25", Rate: "5.00", TotalAmount: "51.25"},
		{Index: 1, ChargeDate: "2024-01-02", Units: "10.256", Rate: "5.00", TotalAmount: "51.28"},
		{Index: 2, ChargeDate: "2024-01-03", Units: "1", Rate: "9.999", TotalAmount: "9.999"},
	}

	r, err := reconciler.New(reconciler.AmountFixed)
	require.NoError(t, err)
	assert.Equal(t, reconciler.AmountFixed, r.Mode())

	results, err := r.ReconcileBatch(records)
	require.NoError(t, err)
	require.Len(t, results, len(records))

	for i, result := range results {
		assert.Equal(t, i, result.Index)
		assert.Equal(t, records[i].ChargeDate, result.ChargeDate)
		assert.Equal(t, records[i].Units, result.Original.Units)
		assert.Equal(t, records[i].Rate, result.Original.Rate)
		assert.Equal(t, records[i].TotalAmount, result.Original.Amount)
	}

	assert.Equal(t, reconciler.Unchanged, results[0].Status)
	assert.Equal(t, reconciler.Adjusted, results[1].Status)
	assert.Equal(t, reconciler.Adjusted, results[2].Status)

	units, rate, amount := results[0].Corrected.Text()
	assert.Equal(t, []string{"10.25", "5.00", "51.25"}, []string{units, rate, amount})

	units, rate, amount = results[2].Corrected.Text()
	assert.Equal(t, []string{"1.00", "10.00", "10.00"}, []string{units, rate, amount})
}

func TestReconcileBatch_StopsAtFailingRecord(t *testing.T) {
	records := []types.FeeRecord{
		{Index: 0, ChargeDate: "2024-01-01", Units: "1", Rate: "1", TotalAmount: "1"},
		{Index: 1, ChargeDate: "2024-01-02", Units: "one", Rate: "1", TotalAmount: "1"},
		{Index: 2, ChargeDate: "2024-01-03", Units: "1", Rate: "1", TotalAmount: "1"},
	}

	results, err := reconciler.ReconcileBatch(records, reconciler.RateFixed)
	require.Error(t, err)
	assert.Nil(t, results)

	var re *reconciler.RecordError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 1, re.Index)
	assert.Equal(t, "2024-01-02", re.ChargeDate)
	assert.True(t, errors.Is(err, reconciler.ErrMalformedQuantity))
	assert.Contains(t, err.Error(), "fee record 2")
}

func TestReconcileBatch_Empty(t *testing.T) {
	results, err := reconciler.ReconcileBatch(nil, reconciler.AmountFixed)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    reconciler.Mode
		wantErr bool
	}{
		{"amount", reconciler.AmountFixed, false},
		{"Amount-fixed", reconciler.AmountFixed, false},
		{" RATE ", reconciler.RateFixed, false},
		{"rate_fixed", reconciler.RateFixed, false},
		{"units", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := reconciler.ParseMode(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, reconciler.ErrUnknownMode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
