package ledger

import (
	"fmt"
	"time"

	"github.com/anexo/cobro/pkg/calendar"
	"github.com/anexo/cobro/pkg/models"
	"github.com/anexo/cobro/pkg/schedule"
	"github.com/anexo/cobro/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Ledger coordinates the write side: it generates schedules, guards payments
// against the reconciled balance and appends collection logs. All money
// figures it reports come from the pure reconciliation functions in this
// package, never from stored running totals.
type Ledger struct {
	storage store.Storage
	log     zerolog.Logger
}

// NewLedger creates a Ledger over the given Storage implementation.
func NewLedger(s store.Storage, log zerolog.Logger) *Ledger {
	return &Ledger{storage: s, log: log}
}

// CreateLoan validates the terms, generates the installment schedule and
// records the disbursement as an OPENING log (excluded from money sums).
func (l *Ledger) CreateLoan(clientID, collectorID uuid.UUID, terms schedule.Terms, isRenewal bool) (*models.Loan, error) {
	installments, err := schedule.Generate(terms)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	loan := &models.Loan{
		ID:                uuid.New(),
		ClientID:          clientID,
		CollectorID:       collectorID,
		Principal:         terms.Principal,
		InterestRate:      terms.InterestRate,
		TotalAmount:       terms.TotalAmount(),
		TotalInstallments: terms.Installments,
		InstallmentValue:  terms.InstallmentValue(),
		Frequency:         terms.Frequency,
		Status:            models.LoanStatusActive,
		IsRenewal:         isRenewal,
		CreatedAt:         terms.StartDate,
		UpdatedAt:         now,
		CustomHolidays:    terms.CustomHolidays,
		Installments:      installments,
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	opening := &models.CollectionLog{
		ID:         uuid.New(),
		ClientID:   clientID,
		LoanID:     loan.ID,
		Type:       models.LogTypeOpening,
		Amount:     decimal.Zero,
		Date:       now,
		RecordedBy: collectorID,
	}
	if err := l.storage.AppendLog(opening); err != nil {
		return nil, fmt.Errorf("failed to store opening log: %w", err)
	}

	l.log.Info().
		Str("loan_id", loan.ID.String()).
		Str("total_amount", loan.TotalAmount.StringFixed(2)).
		Int("installments", loan.TotalInstallments).
		Msg("loan created")
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// PaymentOptions carry the channel flags of a collected payment.
type PaymentOptions struct {
	IsVirtual bool
	IsRenewal bool
}

// RecordPayment appends a PAYMENT log after checking the amount against the
// reconciled balance. The guard runs before the append; once a log exists it
// is only ever reconciled, never rejected.
func (l *Ledger) RecordPayment(loanID uuid.UUID, amount decimal.Decimal, recordedBy uuid.UUID, opts PaymentOptions) (*models.CollectionLog, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	logs, err := l.storage.GetLogsForLoan(loanID)
	if err != nil {
		return nil, err
	}

	if err := AssertPaymentWithinBalance(amount, loan, logs); err != nil {
		return nil, err
	}

	entry := &models.CollectionLog{
		ID:         uuid.New(),
		ClientID:   loan.ClientID,
		LoanID:     loanID,
		Type:       models.LogTypePayment,
		Amount:     amount,
		Date:       time.Now(),
		IsVirtual:  opts.IsVirtual,
		IsRenewal:  opts.IsRenewal,
		RecordedBy: recordedBy,
	}
	if err := l.storage.AppendLog(entry); err != nil {
		return nil, fmt.Errorf("failed to store payment log: %w", err)
	}

	l.refreshStatus(loan, append(logs, *entry))
	l.log.Info().
		Str("loan_id", loanID.String()).
		Str("amount", amount.StringFixed(2)).
		Bool("virtual", opts.IsVirtual).
		Msg("payment recorded")
	return entry, nil
}

// RecordNoPayment appends a NO_PAYMENT visit log. It carries no amount and
// never affects sums; it feeds the delinquency rate.
func (l *Ledger) RecordNoPayment(loanID uuid.UUID, recordedBy uuid.UUID) (*models.CollectionLog, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}

	entry := &models.CollectionLog{
		ID:         uuid.New(),
		ClientID:   loan.ClientID,
		LoanID:     loanID,
		Type:       models.LogTypeNoPayment,
		Amount:     decimal.Zero,
		Date:       time.Now(),
		RecordedBy: recordedBy,
	}
	if err := l.storage.AppendLog(entry); err != nil {
		return nil, fmt.Errorf("failed to store no-payment log: %w", err)
	}
	return entry, nil
}

// CorrectLogAmount mutates a payment log's amount in place. Same id, no new
// log, so reconciled sums never double-count the correction. The corrected
// amount must still fit within the loan's total.
func (l *Ledger) CorrectLogAmount(logID uuid.UUID, amount decimal.Decimal) (*models.CollectionLog, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	entry, err := l.storage.GetLog(logID)
	if err != nil {
		return nil, err
	}
	if entry.Deleted() {
		return nil, ErrLogDeleted
	}
	if entry.Type != models.LogTypePayment {
		return nil, fmt.Errorf("only payment logs carry an amount")
	}

	loan, err := l.storage.GetLoan(entry.LoanID)
	if err != nil {
		return nil, err
	}
	logs, err := l.storage.GetLogsForLoan(entry.LoanID)
	if err != nil {
		return nil, err
	}

	// Reconcile as if this log did not exist, then re-admit the new amount.
	others := make([]models.CollectionLog, 0, len(logs))
	for _, lg := range logs {
		if lg.ID != logID {
			others = append(others, lg)
		}
	}
	if err := AssertPaymentWithinBalance(amount, loan, others); err != nil {
		return nil, err
	}

	if err := l.storage.UpdateLogAmount(logID, amount); err != nil {
		return nil, err
	}
	entry.Amount = amount
	l.refreshStatus(loan, append(others, *entry))
	l.log.Info().
		Str("log_id", logID.String()).
		Str("amount", amount.StringFixed(2)).
		Msg("payment amount corrected")
	return entry, nil
}

// DeleteLog soft-deletes a collection log. The row is never physically
// removed, keeping audit history and sync idempotent.
func (l *Ledger) DeleteLog(logID uuid.UUID) error {
	entry, err := l.storage.GetLog(logID)
	if err != nil {
		return err
	}
	if err := l.storage.SoftDeleteLog(logID, time.Now()); err != nil {
		return err
	}

	loan, err := l.storage.GetLoan(entry.LoanID)
	if err != nil {
		return err
	}
	logs, err := l.storage.GetLogsForLoan(entry.LoanID)
	if err != nil {
		return err
	}
	l.refreshStatus(loan, logs)
	return nil
}

// UpdateLoanTerms regenerates the whole schedule for edited terms, splicing
// legacy paid markers forward by installment number.
func (l *Ledger) UpdateLoanTerms(loanID uuid.UUID, terms schedule.Terms) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}

	installments, err := schedule.Regenerate(terms, loan.Installments)
	if err != nil {
		return nil, err
	}

	loan.Principal = terms.Principal
	loan.InterestRate = terms.InterestRate
	loan.TotalAmount = terms.TotalAmount()
	loan.TotalInstallments = terms.Installments
	loan.InstallmentValue = terms.InstallmentValue()
	loan.Frequency = terms.Frequency
	loan.CustomHolidays = terms.CustomHolidays
	loan.UpdatedAt = time.Now()
	loan.Installments = installments

	if err := l.storage.UpdateLoan(loan); err != nil {
		return nil, err
	}
	if err := l.storage.ReplaceInstallments(loanID, installments); err != nil {
		return nil, err
	}
	l.log.Info().Str("loan_id", loanID.String()).Msg("loan terms updated, schedule regenerated")
	return loan, nil
}

// RenewLoan settles the remaining balance of an existing loan with a renewal
// payment, marks it paid and opens a fresh loan for the new terms. The old
// loan row keeps its history; renewal never mutates past events.
func (l *Ledger) RenewLoan(oldLoanID uuid.UUID, recordedBy uuid.UUID, terms schedule.Terms) (*models.Loan, error) {
	old, err := l.storage.GetLoan(oldLoanID)
	if err != nil {
		return nil, err
	}
	logs, err := l.storage.GetLogsForLoan(oldLoanID)
	if err != nil {
		return nil, err
	}

	remaining := Balance(old, logs)
	if remaining.IsPositive() {
		settle := &models.CollectionLog{
			ID:         uuid.New(),
			ClientID:   old.ClientID,
			LoanID:     oldLoanID,
			Type:       models.LogTypePayment,
			Amount:     remaining,
			Date:       time.Now(),
			IsRenewal:  true,
			RecordedBy: recordedBy,
		}
		if err := l.storage.AppendLog(settle); err != nil {
			return nil, fmt.Errorf("failed to store renewal settlement: %w", err)
		}
	}

	old.Status = models.LoanStatusPaid
	old.UpdatedAt = time.Now()
	if err := l.storage.UpdateLoan(old); err != nil {
		return nil, err
	}

	renewed, err := l.CreateLoan(old.ClientID, old.CollectorID, terms, true)
	if err != nil {
		return nil, err
	}
	l.log.Info().
		Str("old_loan_id", oldLoanID.String()).
		Str("new_loan_id", renewed.ID.String()).
		Str("settled", remaining.StringFixed(2)).
		Msg("loan renewed")
	return renewed, nil
}

// Statement bundles every derived figure for a loan so that all consumers
// (dossier, route sheet, receipts, commission book) report the same numbers.
type Statement struct {
	LoanID       uuid.UUID            `json:"loan_id"`
	Status       models.LoanStatus    `json:"status"`
	TotalAmount  decimal.Decimal      `json:"total_amount"`
	TotalPaid    decimal.Decimal      `json:"total_paid"`
	Balance      decimal.Decimal      `json:"balance"`
	Progress     Progress             `json:"progress"`
	OverdueDays  int                  `json:"overdue_days"`
	Installments []models.Installment `json:"installments"`
}

// Statement reconciles a loan against its full log snapshot.
func (l *Ledger) Statement(loanID uuid.UUID) (*Statement, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	logs, err := l.storage.GetLogsForLoan(loanID)
	if err != nil {
		return nil, err
	}
	settings, err := l.storage.GetSettings()
	if err != nil {
		return nil, err
	}

	today := calendar.Today(settings.Country)
	return &Statement{
		LoanID:       loan.ID,
		Status:       DeriveStatus(loan, logs, settings.DefaultThresholdDays, today),
		TotalAmount:  loan.TotalAmount,
		TotalPaid:    TotalPaid(loan, logs),
		Balance:      Balance(loan, logs),
		Progress:     PaymentProgress(loan, logs),
		OverdueDays:  OverdueDays(loan, logs, today),
		Installments: AllocateInstallments(loan, logs),
	}, nil
}

// refreshStatus persists the derived classification so list views stay
// readable without reconciling every row. Display cache only; read paths
// still derive from the log.
func (l *Ledger) refreshStatus(loan *models.Loan, logs []models.CollectionLog) {
	settings, err := l.storage.GetSettings()
	if err != nil {
		l.log.Warn().Err(err).Msg("could not load settings for status refresh")
		return
	}
	status := DeriveStatus(loan, logs, settings.DefaultThresholdDays, calendar.Today(settings.Country))
	if status == loan.Status {
		return
	}
	loan.Status = status
	loan.UpdatedAt = time.Now()
	if err := l.storage.UpdateLoan(loan); err != nil {
		l.log.Warn().Err(err).Str("loan_id", loan.ID.String()).Msg("could not persist derived status")
	}
}
