// Package ledger derives a loan's authoritative financial state from its
// append-only collection log. The paid amount is always recomputed from the
// log; no stored or cached balance is ever trusted. Every surface of the
// product (dossier, route sheet, receipts, commission book) reads through
// these functions so all of them report identical figures.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/anexo/cobro/pkg/models"
	"github.com/shopspring/decimal"
)

// Epsilon is the rounding tolerance of one currency unit used everywhere a
// derived sum is compared against a stored total.
var Epsilon = decimal.New(1, -2)

// ErrInvalidAmount rejects non-positive amounts at the point of collection.
var ErrInvalidAmount = errors.New("amount must be positive")

// ErrLogDeleted rejects mutations on a soft-deleted log. A deleted log stays
// in history for audit but accepts no further changes.
var ErrLogDeleted = errors.New("log has been deleted")

// OverpaymentError rejects a proposed payment that exceeds the remaining
// balance. Recoverable: the caller should show the balance and re-prompt.
type OverpaymentError struct {
	Proposed decimal.Decimal
	Balance  decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment %s exceeds remaining balance %s",
		e.Proposed.StringFixed(2), e.Balance.StringFixed(2))
}

// countable reports whether a log contributes to money sums: a PAYMENT for
// this loan, not an opening marker, not soft-deleted, amount non-negative.
// Malformed records are excluded silently; one corrupt row must never crash
// or zero out a loan's history.
func countable(loan *models.Loan, log *models.CollectionLog) bool {
	if log.LoanID != loan.ID {
		return false
	}
	if log.Type != models.LogTypePayment {
		return false
	}
	if log.Deleted() {
		return false
	}
	return !log.Amount.IsNegative()
}

// TotalPaid sums the countable payment logs for the loan. A missing amount
// counts as zero.
func TotalPaid(loan *models.Loan, logs []models.CollectionLog) decimal.Decimal {
	total := decimal.Zero
	for i := range logs {
		if countable(loan, &logs[i]) {
			total = total.Add(logs[i].Amount)
		}
	}
	return total
}

// Balance is the remaining amount owed, never negative. Overpaid loans show
// zero here while the raw sum stays available through TotalPaid for audit.
func Balance(loan *models.Loan, logs []models.CollectionLog) decimal.Decimal {
	balance := loan.TotalAmount.Sub(TotalPaid(loan, logs))
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// Progress expresses how much of the plan the client has covered, both as a
// fraction of installments (2.4 paid) and as whole units for "X/Y" display.
type Progress struct {
	PaidUnits      decimal.Decimal `json:"paid_units"`
	PaidWholeUnits int             `json:"paid_whole_units"`
}

// PaymentProgress divides the reconciled total by the installment value.
func PaymentProgress(loan *models.Loan, logs []models.CollectionLog) Progress {
	if loan.InstallmentValue.IsZero() {
		return Progress{PaidUnits: decimal.Zero}
	}
	units := TotalPaid(loan, logs).Div(loan.InstallmentValue)
	return Progress{
		PaidUnits:      units,
		PaidWholeUnits: int(units.IntPart()),
	}
}

// AllocateInstallments classifies each installment as paid, partial or
// pending by greedily spending the reconciled total in due-date order. The
// result is a display-only projection: it is rebuilt from scratch on every
// call and must never be persisted.
func AllocateInstallments(loan *models.Loan, logs []models.CollectionLog) []models.Installment {
	remaining := TotalPaid(loan, logs)
	out := make([]models.Installment, len(loan.Installments))
	for i, inst := range loan.Installments {
		allocated := decimal.Min(remaining, inst.Amount)
		remaining = remaining.Sub(allocated)

		inst.PaidAmount = allocated
		switch {
		case allocated.GreaterThanOrEqual(inst.Amount.Sub(Epsilon)):
			inst.Status = models.InstallmentPaid
		case allocated.IsPositive():
			inst.Status = models.InstallmentPartial
		default:
			inst.Status = models.InstallmentPending
		}
		out[i] = inst
	}
	return out
}

// DueUntilToday is the cumulative amount that should have been collected
// from every installment due on or before today.
func DueUntilToday(loan *models.Loan, today time.Time) decimal.Decimal {
	due := decimal.Zero
	for _, inst := range loan.Installments {
		if !inst.DueDate.After(today) {
			due = due.Add(inst.Amount)
		}
	}
	return due
}

// OverdueDays reports how many calendar days the loan's shortfall has aged.
func OverdueDays(loan *models.Loan, logs []models.CollectionLog, today time.Time) int {
	return OverdueDaysWithPaid(loan, TotalPaid(loan, logs), today)
}

// OverdueDaysWithPaid is the what-if variant: totalPaid is supplied by the
// caller, typically a reconciled sum plus a pending payment. The shortfall is
// bucketed against the earliest installment the money does not cover and aged
// from that installment's due date.
func OverdueDaysWithPaid(loan *models.Loan, totalPaid decimal.Decimal, today time.Time) int {
	if loan.Status == models.LoanStatusPaid {
		return 0
	}
	if totalPaid.GreaterThanOrEqual(loan.TotalAmount.Sub(Epsilon)) {
		return 0
	}
	if totalPaid.GreaterThanOrEqual(DueUntilToday(loan, today).Sub(Epsilon)) {
		return 0
	}

	covered := decimal.Zero
	for _, inst := range loan.Installments {
		if covered.Add(inst.Amount).GreaterThan(totalPaid.Add(Epsilon)) {
			if !inst.DueDate.Before(today) {
				return 0
			}
			return int(today.Sub(inst.DueDate).Hours() / 24)
		}
		covered = covered.Add(inst.Amount)
	}
	return 0
}

// AssertPaymentWithinBalance rejects a proposed payment larger than the
// remaining balance plus the rounding tolerance. This runs before the log is
// appended; it is the one place the ledger prevents an event instead of
// reconciling past ones.
func AssertPaymentWithinBalance(amount decimal.Decimal, loan *models.Loan, logs []models.CollectionLog) error {
	balance := Balance(loan, logs)
	if amount.GreaterThan(balance.Add(Epsilon)) {
		return &OverpaymentError{Proposed: amount, Balance: balance}
	}
	return nil
}

// DeriveStatus classifies the loan from reconciled figures: PAID when the
// balance reaches zero, DEFAULT once overdue days cross the operator's
// threshold. The classification never blocks further payments.
func DeriveStatus(loan *models.Loan, logs []models.CollectionLog, thresholdDays int, today time.Time) models.LoanStatus {
	if Balance(loan, logs).LessThanOrEqual(Epsilon) {
		return models.LoanStatusPaid
	}
	if thresholdDays > 0 && OverdueDays(loan, logs, today) >= thresholdDays {
		return models.LoanStatusDefault
	}
	return models.LoanStatusActive
}
