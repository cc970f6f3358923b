package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/anexo/cobro/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTerms() Terms {
	return Terms{
		Principal:    decimal.NewFromInt(500000),
		InterestRate: decimal.NewFromInt(20),
		Installments: 24,
		Frequency:    models.FrequencyDaily,
		StartDate:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Country:      "XX", // no holiday table, only Sundays skipped
	}
}

func TestGenerate_AmortizationExample(t *testing.T) {
	// 500,000 at 20% over 24 daily installments: total 600,000, each 25,000.
	installments, err := Generate(baseTerms())
	require.NoError(t, err)
	require.Len(t, installments, 24)

	sum := decimal.Zero
	for i, inst := range installments {
		assert.Equal(t, i+1, inst.Number)
		assert.True(t, inst.Amount.Equal(decimal.NewFromInt(25000)),
			"installment %d amount = %s", inst.Number, inst.Amount)
		assert.NotEqual(t, time.Sunday, inst.DueDate.Weekday())
		sum = sum.Add(inst.Amount)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(600000)), "sum = %s", sum)

	// Start Jan 1 (Monday): first due Jan 2, Sundays skipped thereafter.
	assert.Equal(t, time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), installments[0].DueDate)
	// Jan 7 is a Sunday; the 6th installment slides to Monday Jan 8.
	assert.Equal(t, time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC), installments[5].DueDate)
}

func TestGenerate_DueDatesStrictlyIncrease(t *testing.T) {
	installments, err := Generate(baseTerms())
	require.NoError(t, err)
	for i := 1; i < len(installments); i++ {
		assert.True(t, installments[i].DueDate.After(installments[i-1].DueDate))
	}
}

func TestGenerate_LastInstallmentAbsorbsRemainder(t *testing.T) {
	tests := []struct {
		name         string
		principal    int64
		rate         int64
		installments int
	}{
		{"thirds leave a residual cent", 1000, 0, 3},
		{"sevenths", 500000, 20, 7},
		{"single installment", 250000, 15, 1},
		{"large count", 1000000, 25, 313},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := baseTerms()
			terms.Principal = decimal.NewFromInt(tt.principal)
			terms.InterestRate = decimal.NewFromInt(tt.rate)
			terms.Installments = tt.installments

			installments, err := Generate(terms)
			require.NoError(t, err)

			sum := decimal.Zero
			for _, inst := range installments {
				sum = sum.Add(inst.Amount)
			}
			assert.True(t, sum.Equal(terms.TotalAmount()),
				"sum %s != total %s", sum, terms.TotalAmount())
		})
	}
}

func TestGenerate_InvalidTerms(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Terms)
	}{
		{"zero installments", func(terms *Terms) { terms.Installments = 0 }},
		{"negative installments", func(terms *Terms) { terms.Installments = -3 }},
		{"zero principal", func(terms *Terms) { terms.Principal = decimal.Zero }},
		{"negative principal", func(terms *Terms) { terms.Principal = decimal.NewFromInt(-100) }},
		{"negative rate", func(terms *Terms) { terms.InterestRate = decimal.NewFromInt(-1) }},
		{"bogus frequency", func(terms *Terms) { terms.Frequency = "hourly" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := baseTerms()
			tt.mutate(&terms)
			_, err := Generate(terms)
			var invalid *InvalidTermsError
			require.Error(t, err)
			assert.True(t, errors.As(err, &invalid))
		})
	}
}

func TestGenerate_SkipsCustomHolidays(t *testing.T) {
	terms := baseTerms()
	terms.Installments = 3
	terms.CustomHolidays = []string{"2024-01-02"}

	installments, err := Generate(terms)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC), installments[0].DueDate)
}

func TestRegenerate_SplicesMarkersByNumber(t *testing.T) {
	terms := baseTerms()
	terms.Installments = 5
	old, err := Generate(terms)
	require.NoError(t, err)

	old[0].Status = models.InstallmentPaid
	old[0].PaidAmount = old[0].Amount
	old[1].Status = models.InstallmentPartial
	old[1].PaidAmount = decimal.NewFromInt(10000)

	// Edit terms: more installments, dates shift.
	edited := terms
	edited.Installments = 8
	edited.StartDate = terms.StartDate.AddDate(0, 0, 3)

	fresh, err := Regenerate(edited, old)
	require.NoError(t, err)
	require.Len(t, fresh, 8)

	assert.Equal(t, models.InstallmentPaid, fresh[0].Status)
	assert.True(t, fresh[0].PaidAmount.Equal(old[0].PaidAmount))
	assert.Equal(t, models.InstallmentPartial, fresh[1].Status)
	assert.True(t, fresh[1].PaidAmount.Equal(decimal.NewFromInt(10000)))

	// Numbers beyond the old schedule start unmarked.
	for _, inst := range fresh[5:] {
		assert.Equal(t, models.InstallmentPending, inst.Status)
		assert.True(t, inst.PaidAmount.IsZero())
	}
}

func TestRegenerate_InvalidTermsRejected(t *testing.T) {
	terms := baseTerms()
	terms.Installments = 0
	_, err := Regenerate(terms, nil)
	var invalid *InvalidTermsError
	assert.True(t, errors.As(err, &invalid))
}
