// Package schedule turns loan terms into an ordered installment plan. The
// whole sequence is generated in one batch at loan creation and replaced
// wholesale when terms are edited.
package schedule

import (
	"fmt"
	"time"

	"github.com/anexo/cobro/pkg/calendar"
	"github.com/anexo/cobro/pkg/models"
	"github.com/shopspring/decimal"
)

// moneyPlaces is the currency's smallest unit expressed as decimal places.
const moneyPlaces = 2

var oneHundred = decimal.NewFromInt(100)

// InvalidTermsError marks loan terms that cannot produce a schedule. It is
// fatal to the generation call; the caller must block loan creation rather
// than save a partial plan.
type InvalidTermsError struct {
	Reason string
}

func (e *InvalidTermsError) Error() string {
	return fmt.Sprintf("invalid loan terms: %s", e.Reason)
}

// Terms are the inputs to schedule generation.
type Terms struct {
	Principal      decimal.Decimal
	InterestRate   decimal.Decimal // flat percent applied once over the term
	Installments   int
	Frequency      models.Frequency
	StartDate      time.Time // disbursement date; first payment is one cycle later
	Country        string
	CustomHolidays []string
}

// Validate rejects configuration errors before any money math runs.
func (t Terms) Validate() error {
	if t.Installments <= 0 {
		return &InvalidTermsError{Reason: "installment count must be positive"}
	}
	if t.Principal.LessThanOrEqual(decimal.Zero) {
		return &InvalidTermsError{Reason: "principal must be positive"}
	}
	if t.InterestRate.IsNegative() {
		return &InvalidTermsError{Reason: "interest rate cannot be negative"}
	}
	if !t.Frequency.Valid() {
		return &InvalidTermsError{Reason: fmt.Sprintf("unknown frequency %q", t.Frequency)}
	}
	return nil
}

// TotalAmount is principal plus flat interest, rounded to the currency unit.
func (t Terms) TotalAmount() decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(t.InterestRate.Div(oneHundred))
	return t.Principal.Mul(factor).RoundBank(moneyPlaces)
}

// InstallmentValue is the per-installment amount before the final-installment
// remainder adjustment.
func (t Terms) InstallmentValue() decimal.Decimal {
	return t.TotalAmount().Div(decimal.NewFromInt(int64(t.Installments))).RoundBank(moneyPlaces)
}

// Generate produces the ordered installment sequence for the given terms.
// The last installment absorbs the rounding residual so the amounts sum to
// TotalAmount exactly. Pure and side-effect free; safe to call on every
// preview recomputation.
func Generate(terms Terms) ([]models.Installment, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	total := terms.TotalAmount()
	value := terms.InstallmentValue()

	installments := make([]models.Installment, 0, terms.Installments)
	due := terms.StartDate
	paidOut := decimal.Zero

	for i := 1; i <= terms.Installments; i++ {
		due = calendar.NextDueDate(due, terms.Frequency, terms.Country, terms.CustomHolidays)

		amount := value
		if i == terms.Installments {
			amount = total.Sub(paidOut)
		}
		paidOut = paidOut.Add(amount)

		installments = append(installments, models.Installment{
			Number:     i,
			DueDate:    due,
			Amount:     amount,
			Status:     models.InstallmentPending,
			PaidAmount: decimal.Zero,
		})
	}
	return installments, nil
}

// Regenerate rebuilds the schedule for edited terms and splices the legacy
// paid markers from the old schedule back in by installment number. Numbers
// are the stable join key across regenerations; due dates shift under edits
// and must never be used to match. Numbers beyond the old schedule's length
// start unmarked.
func Regenerate(terms Terms, old []models.Installment) ([]models.Installment, error) {
	fresh, err := Generate(terms)
	if err != nil {
		return nil, err
	}

	markers := make(map[int]models.Installment, len(old))
	for _, inst := range old {
		markers[inst.Number] = inst
	}
	for i := range fresh {
		if prev, ok := markers[fresh[i].Number]; ok {
			fresh[i].Status = prev.Status
			fresh[i].PaidAmount = prev.PaidAmount
		}
	}
	return fresh, nil
}
