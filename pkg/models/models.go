package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether f is one of the four supported payment frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "active"
	LoanStatusDefault LoanStatus = "default"
	LoanStatusPaid    LoanStatus = "paid"
)

type Loan struct {
	ID                uuid.UUID       `json:"id"`
	ClientID          uuid.UUID       `json:"client_id"`
	CollectorID       uuid.UUID       `json:"collector_id"`
	Principal         decimal.Decimal `json:"principal"`
	InterestRate      decimal.Decimal `json:"interest_rate"` // flat percent over the full term
	TotalAmount       decimal.Decimal `json:"total_amount"`
	TotalInstallments int             `json:"total_installments"`
	InstallmentValue  decimal.Decimal `json:"installment_value"`
	Frequency         Frequency       `json:"frequency"`
	Status            LoanStatus      `json:"status"`
	IsRenewal         bool            `json:"is_renewal"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CustomHolidays    []string        `json:"custom_holidays,omitempty"` // YYYY-MM-DD dates excluded from scheduling
	Installments      []Installment   `json:"installments"`
}

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
)

// Installment is one scheduled due-date/amount pair within a loan's plan.
// Status and PaidAmount are legacy display fields; the collection log is the
// source of truth and balance math must never read them.
type Installment struct {
	Number     int               `json:"number"`
	DueDate    time.Time         `json:"due_date"`
	Amount     decimal.Decimal   `json:"amount"`
	Status     InstallmentStatus `json:"status"`
	PaidAmount decimal.Decimal   `json:"paid_amount"`
}

type CollectionLogType string

const (
	LogTypePayment   CollectionLogType = "payment"
	LogTypeNoPayment CollectionLogType = "no_payment"
	LogTypeOpening   CollectionLogType = "opening"
)

// CollectionLog is an append-only record of a field visit outcome. Amount may
// be corrected in place by an authorized role (same ID, no new log) and the
// record may be soft-deleted, but it is never physically removed or reordered.
type CollectionLog struct {
	ID         uuid.UUID         `json:"id"`
	ClientID   uuid.UUID         `json:"client_id"`
	LoanID     uuid.UUID         `json:"loan_id"`
	Type       CollectionLogType `json:"type"`
	Amount     decimal.Decimal   `json:"amount"`
	Date       time.Time         `json:"date"`
	IsVirtual  bool              `json:"is_virtual"`
	IsRenewal  bool              `json:"is_renewal"`
	RecordedBy uuid.UUID         `json:"recorded_by"`
	DeletedAt  *time.Time        `json:"deleted_at,omitempty"`
}

// Deleted reports whether the log has been logically removed. Deleted logs
// contribute nothing to any derived sum.
func (l *CollectionLog) Deleted() bool {
	return l.DeletedAt != nil
}

// CommissionBracket maps a delinquency-rate ceiling (inclusive) to the
// percent of the base commission paid when the collector's weekly average
// stays at or under it.
type CommissionBracket struct {
	MaxMora       decimal.Decimal `json:"max_mora"`
	PayoutPercent decimal.Decimal `json:"payout_percent"`
}

// Settings holds operator configuration supplied by the persistence layer.
type Settings struct {
	Country              string              `json:"country"`
	CommissionPercent    decimal.Decimal     `json:"commission_percent"`
	Brackets             []CommissionBracket `json:"brackets"`
	DefaultThresholdDays int                 `json:"default_threshold_days"`
}
