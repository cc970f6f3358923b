package store

import (
	"errors"
	"time"

	"github.com/anexo/cobro/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrLoanNotFound = errors.New("loan not found")
	ErrLogNotFound  = errors.New("collection log not found")
)

// Storage defines the database operations for loans, their installment
// schedules and the collection log. The core treats it as a black box
// supplying snapshots; all derived figures are recomputed on read.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	GetAllLoans() ([]*models.Loan, error)

	// ReplaceInstallments swaps a loan's whole schedule in one batch, the
	// only way a schedule ever changes.
	ReplaceInstallments(loanID uuid.UUID, installments []models.Installment) error

	AppendLog(log *models.CollectionLog) error
	GetLog(id uuid.UUID) (*models.CollectionLog, error)
	// UpdateLogAmount corrects a payment in place, keeping the same id so
	// reconciled sums never double-count the correction.
	UpdateLogAmount(id uuid.UUID, amount decimal.Decimal) error
	SoftDeleteLog(id uuid.UUID, at time.Time) error
	GetLogsForLoan(loanID uuid.UUID) ([]models.CollectionLog, error)
	GetLogsForCollector(collectorID uuid.UUID, from, to time.Time) ([]models.CollectionLog, error)

	GetSettings() (*models.Settings, error)
	SaveSettings(settings *models.Settings) error

	Close() error
}
