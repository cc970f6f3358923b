package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/anexo/cobro/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T, name string) *SQLiteStore {
	t.Helper()
	os.Remove(name)
	t.Cleanup(func() { os.Remove(name) })

	s, err := NewSQLiteStore(name, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLoan() *models.Loan {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &models.Loan{
		ID:                uuid.New(),
		ClientID:          uuid.New(),
		CollectorID:       uuid.New(),
		Principal:         decimal.NewFromInt(500000),
		InterestRate:      decimal.NewFromInt(20),
		TotalAmount:       decimal.NewFromInt(600000),
		TotalInstallments: 2,
		InstallmentValue:  decimal.NewFromInt(300000),
		Frequency:         models.FrequencyDaily,
		Status:            models.LoanStatusActive,
		CustomHolidays:    []string{"2024-01-10"},
		CreatedAt:         start,
		UpdatedAt:         start,
		Installments: []models.Installment{
			{Number: 1, DueDate: start.AddDate(0, 0, 1), Amount: decimal.NewFromInt(300000), Status: "pending", PaidAmount: decimal.Zero},
			{Number: 2, DueDate: start.AddDate(0, 0, 2), Amount: decimal.NewFromInt(300000), Status: "pending", PaidAmount: decimal.Zero},
		},
	}
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	s := openTestStore(t, "test_store_loans.db")

	loan := testLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}

	if fetched.ClientID != loan.ClientID {
		t.Errorf("Expected ClientID %s, got %s", loan.ClientID, fetched.ClientID)
	}
	if !fetched.Principal.Equal(loan.Principal) {
		t.Errorf("Expected Principal %s, got %s", loan.Principal, fetched.Principal)
	}
	if !fetched.TotalAmount.Equal(loan.TotalAmount) {
		t.Errorf("Expected TotalAmount %s, got %s", loan.TotalAmount, fetched.TotalAmount)
	}
	if len(fetched.Installments) != 2 {
		t.Fatalf("Expected 2 installments, got %d", len(fetched.Installments))
	}
	if fetched.Installments[0].Number != 1 || fetched.Installments[1].Number != 2 {
		t.Error("Installments must come back ordered by number")
	}
	if len(fetched.CustomHolidays) != 1 || fetched.CustomHolidays[0] != "2024-01-10" {
		t.Errorf("Expected custom holidays to round-trip, got %v", fetched.CustomHolidays)
	}
}

func TestSQLiteStore_GetLoan_NotFound(t *testing.T) {
	s := openTestStore(t, "test_store_missing.db")

	_, err := s.GetLoan(uuid.New())
	if !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound, got %v", err)
	}
}

func TestSQLiteStore_ReplaceInstallments(t *testing.T) {
	s := openTestStore(t, "test_store_replace.db")

	loan := testLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	replacement := []models.Installment{
		{Number: 1, DueDate: loan.CreatedAt.AddDate(0, 0, 1), Amount: decimal.NewFromInt(200000), Status: "paid", PaidAmount: decimal.NewFromInt(200000)},
		{Number: 2, DueDate: loan.CreatedAt.AddDate(0, 0, 2), Amount: decimal.NewFromInt(200000), Status: "pending", PaidAmount: decimal.Zero},
		{Number: 3, DueDate: loan.CreatedAt.AddDate(0, 0, 3), Amount: decimal.NewFromInt(200000), Status: "pending", PaidAmount: decimal.Zero},
	}
	if err := s.ReplaceInstallments(loan.ID, replacement); err != nil {
		t.Fatalf("Failed to replace installments: %v", err)
	}

	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if len(fetched.Installments) != 3 {
		t.Fatalf("Expected 3 installments after replace, got %d", len(fetched.Installments))
	}
	if fetched.Installments[0].Status != "paid" {
		t.Errorf("Expected first installment paid, got %s", fetched.Installments[0].Status)
	}
}

func TestSQLiteStore_CollectionLogs(t *testing.T) {
	s := openTestStore(t, "test_store_logs.db")

	loan := testLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	collector := uuid.New()
	entry := &models.CollectionLog{
		ID:         uuid.New(),
		ClientID:   loan.ClientID,
		LoanID:     loan.ID,
		Type:       models.LogTypePayment,
		Amount:     decimal.NewFromInt(25000),
		Date:       time.Date(2024, time.January, 2, 9, 30, 0, 0, time.UTC),
		RecordedBy: collector,
	}
	if err := s.AppendLog(entry); err != nil {
		t.Fatalf("Failed to append log: %v", err)
	}

	fetched, err := s.GetLog(entry.ID)
	if err != nil {
		t.Fatalf("Failed to get log: %v", err)
	}
	if !fetched.Amount.Equal(entry.Amount) {
		t.Errorf("Expected amount %s, got %s", entry.Amount, fetched.Amount)
	}
	if fetched.Deleted() {
		t.Error("Fresh log must not be deleted")
	}

	// Correction keeps the same row.
	if err := s.UpdateLogAmount(entry.ID, decimal.NewFromInt(30000)); err != nil {
		t.Fatalf("Failed to update log amount: %v", err)
	}
	fetched, _ = s.GetLog(entry.ID)
	if !fetched.Amount.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("Expected corrected amount 30000, got %s", fetched.Amount)
	}

	// Soft delete keeps the row but stamps it.
	at := time.Date(2024, time.January, 3, 8, 0, 0, 0, time.UTC)
	if err := s.SoftDeleteLog(entry.ID, at); err != nil {
		t.Fatalf("Failed to soft-delete log: %v", err)
	}
	fetched, err = s.GetLog(entry.ID)
	if err != nil {
		t.Fatalf("Soft-deleted log must still be readable: %v", err)
	}
	if !fetched.Deleted() {
		t.Error("Expected deleted_at to be set")
	}

	logs, err := s.GetLogsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get logs for loan: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("Expected soft-deleted log in loan history, got %d logs", len(logs))
	}
}

func TestSQLiteStore_LogNotFound(t *testing.T) {
	s := openTestStore(t, "test_store_log_missing.db")

	if _, err := s.GetLog(uuid.New()); !errors.Is(err, ErrLogNotFound) {
		t.Errorf("Expected ErrLogNotFound from GetLog, got %v", err)
	}
	if err := s.UpdateLogAmount(uuid.New(), decimal.NewFromInt(1)); !errors.Is(err, ErrLogNotFound) {
		t.Errorf("Expected ErrLogNotFound from UpdateLogAmount, got %v", err)
	}
	if err := s.SoftDeleteLog(uuid.New(), time.Now()); !errors.Is(err, ErrLogNotFound) {
		t.Errorf("Expected ErrLogNotFound from SoftDeleteLog, got %v", err)
	}
}

func TestSQLiteStore_GetLogsForCollector(t *testing.T) {
	s := openTestStore(t, "test_store_collector.db")

	loan := testLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	collector := uuid.New()
	other := uuid.New()
	base := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	for i, who := range []uuid.UUID{collector, collector, other} {
		err := s.AppendLog(&models.CollectionLog{
			ID:         uuid.New(),
			ClientID:   loan.ClientID,
			LoanID:     loan.ID,
			Type:       models.LogTypePayment,
			Amount:     decimal.NewFromInt(10000),
			Date:       base.AddDate(0, 0, i),
			RecordedBy: who,
		})
		if err != nil {
			t.Fatalf("Failed to append log: %v", err)
		}
	}

	logs, err := s.GetLogsForCollector(collector, base.AddDate(0, 0, -1), base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("Failed to get logs for collector: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("Expected 2 logs for collector, got %d", len(logs))
	}

	// Range excludes logs outside [from, to].
	logs, err = s.GetLogsForCollector(collector, base, base)
	if err != nil {
		t.Fatalf("Failed to get logs for collector: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("Expected 1 log in the narrow range, got %d", len(logs))
	}
}

func TestSQLiteStore_Settings(t *testing.T) {
	s := openTestStore(t, "test_store_settings.db")

	// First read creates defaults.
	settings, err := s.GetSettings()
	if err != nil {
		t.Fatalf("Failed to get settings: %v", err)
	}
	if settings.Country != "CO" {
		t.Errorf("Expected default country CO, got %s", settings.Country)
	}
	if !settings.CommissionPercent.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected default commission 10, got %s", settings.CommissionPercent)
	}

	settings.Country = "MX"
	settings.CommissionPercent = decimal.NewFromInt(12)
	settings.Brackets = []models.CommissionBracket{
		{MaxMora: decimal.NewFromInt(10), PayoutPercent: decimal.NewFromInt(100)},
		{MaxMora: decimal.NewFromInt(30), PayoutPercent: decimal.NewFromInt(80)},
	}
	settings.DefaultThresholdDays = 15
	if err := s.SaveSettings(settings); err != nil {
		t.Fatalf("Failed to save settings: %v", err)
	}

	fetched, err := s.GetSettings()
	if err != nil {
		t.Fatalf("Failed to re-read settings: %v", err)
	}
	if fetched.Country != "MX" {
		t.Errorf("Expected country MX, got %s", fetched.Country)
	}
	if len(fetched.Brackets) != 2 {
		t.Fatalf("Expected 2 brackets, got %d", len(fetched.Brackets))
	}
	if !fetched.Brackets[1].PayoutPercent.Equal(decimal.NewFromInt(80)) {
		t.Errorf("Expected second bracket payout 80, got %s", fetched.Brackets[1].PayoutPercent)
	}
	if fetched.DefaultThresholdDays != 15 {
		t.Errorf("Expected threshold 15, got %d", fetched.DefaultThresholdDays)
	}
}
