package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anexo/cobro/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore opens the database and initializes the schema.
func NewSQLiteStore(dataSourceName string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info().Str("dsn", dataSourceName).Msg("database connection established")
	return s, nil
}

// initSchema creates the tables if they don't already exist. Decimal fields
// are TEXT so no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		collector_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		total_installments INTEGER NOT NULL,
		installment_value TEXT NOT NULL,
		frequency TEXT NOT NULL,
		status TEXT NOT NULL,
		is_renewal INTEGER NOT NULL DEFAULT 0,
		custom_holidays TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS installments (
		loan_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		due_date DATETIME NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (loan_id, number),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS collection_logs (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		loan_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		date DATETIME NOT NULL,
		is_virtual INTEGER NOT NULL DEFAULT 0,
		is_renewal INTEGER NOT NULL DEFAULT 0,
		recorded_by TEXT NOT NULL,
		deleted_at DATETIME,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		country TEXT NOT NULL DEFAULT 'CO',
		commission_percent TEXT NOT NULL DEFAULT '10',
		brackets TEXT NOT NULL DEFAULT '[]',
		default_threshold_days INTEGER NOT NULL DEFAULT 30
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the initial release; ignore duplicates.
	columns := []string{
		"custom_holidays TEXT NOT NULL DEFAULT ''",
		"is_renewal INTEGER NOT NULL DEFAULT 0",
	}
	for _, col := range columns {
		if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE loans ADD COLUMN %s", col)); err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}
	return nil
}

// isDuplicateColumnError checks if the error indicates a duplicate column.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

func joinHolidays(holidays []string) string {
	return strings.Join(holidays, ",")
}

func splitHolidays(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// CreateLoan inserts a loan and its installment schedule in one transaction.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (id, client_id, collector_id, principal, interest_rate, total_amount, total_installments, installment_value, frequency, status, is_renewal, custom_holidays, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.ClientID.String(), loan.CollectorID.String(),
		loan.Principal, loan.InterestRate, loan.TotalAmount, loan.TotalInstallments,
		loan.InstallmentValue, loan.Frequency, loan.Status, loan.IsRenewal,
		joinHolidays(loan.CustomHolidays), loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	if err := insertInstallments(tx, loan.ID, loan.Installments); err != nil {
		return err
	}
	return tx.Commit()
}

func insertInstallments(tx *sql.Tx, loanID uuid.UUID, installments []models.Installment) error {
	for _, inst := range installments {
		_, err := tx.Exec(
			`INSERT INTO installments (loan_id, number, due_date, amount, status, paid_amount)
			VALUES (?, ?, ?, ?, ?, ?)`,
			loanID.String(), inst.Number, inst.DueDate, inst.Amount, inst.Status, inst.PaidAmount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", inst.Number, err)
		}
	}
	return nil
}

// GetLoan retrieves a loan with its schedule.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(
		`SELECT id, client_id, collector_id, principal, interest_rate, total_amount, total_installments, installment_value, frequency, status, is_renewal, custom_holidays, created_at, updated_at
		FROM loans WHERE id = ?`, id.String())

	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	installments, err := s.getInstallments(id)
	if err != nil {
		return nil, err
	}
	loan.Installments = installments
	return loan, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, clientStr, collectorStr, holidays string
	var created, updated time.Time
	err := row.Scan(&idStr, &clientStr, &collectorStr, &loan.Principal, &loan.InterestRate,
		&loan.TotalAmount, &loan.TotalInstallments, &loan.InstallmentValue, &loan.Frequency,
		&loan.Status, &loan.IsRenewal, &holidays, &created, &updated)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.ClientID = uuid.MustParse(clientStr)
	loan.CollectorID = uuid.MustParse(collectorStr)
	loan.CustomHolidays = splitHolidays(holidays)
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	return &loan, nil
}

func (s *SQLiteStore) getInstallments(loanID uuid.UUID) ([]models.Installment, error) {
	rows, err := s.db.Query(
		`SELECT number, due_date, amount, status, paid_amount FROM installments WHERE loan_id = ? ORDER BY number ASC`,
		loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get installments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var installments []models.Installment
	for rows.Next() {
		var inst models.Installment
		if err := rows.Scan(&inst.Number, &inst.DueDate, &inst.Amount, &inst.Status, &inst.PaidAmount); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		installments = append(installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during installment rows iteration: %w", err)
	}
	return installments, nil
}

// UpdateLoan updates the loan record (not its schedule; see
// ReplaceInstallments).
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET client_id = ?, collector_id = ?, principal = ?, interest_rate = ?, total_amount = ?, total_installments = ?, installment_value = ?, frequency = ?, status = ?, is_renewal = ?, custom_holidays = ?, updated_at = ? WHERE id = ?`,
		loan.ClientID.String(), loan.CollectorID.String(), loan.Principal, loan.InterestRate,
		loan.TotalAmount, loan.TotalInstallments, loan.InstallmentValue, loan.Frequency,
		loan.Status, loan.IsRenewal, joinHolidays(loan.CustomHolidays), loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// GetAllLoans retrieves all loans with their schedules.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(
		`SELECT id, client_id, collector_id, principal, interest_rate, total_amount, total_installments, installment_value, frequency, status, is_renewal, custom_holidays, created_at, updated_at
		FROM loans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	for _, loan := range loans {
		installments, err := s.getInstallments(loan.ID)
		if err != nil {
			return nil, err
		}
		loan.Installments = installments
	}
	return loans, nil
}

// ReplaceInstallments deletes and rewrites a loan's schedule in one
// transaction. Schedules only ever change wholesale.
func (s *SQLiteStore) ReplaceInstallments(loanID uuid.UUID, installments []models.Installment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM installments WHERE loan_id = ?`, loanID.String()); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	if err := insertInstallments(tx, loanID, installments); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendLog inserts a collection log. Logs are append-only; corrections go
// through UpdateLogAmount and removals through SoftDeleteLog.
func (s *SQLiteStore) AppendLog(log *models.CollectionLog) error {
	_, err := s.db.Exec(
		`INSERT INTO collection_logs (id, client_id, loan_id, type, amount, date, is_virtual, is_renewal, recorded_by, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID.String(), log.ClientID.String(), log.LoanID.String(), log.Type, log.Amount,
		log.Date, log.IsVirtual, log.IsRenewal, log.RecordedBy.String(), log.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append collection log: %w", err)
	}
	return nil
}

// GetLog retrieves a single collection log by id.
func (s *SQLiteStore) GetLog(id uuid.UUID) (*models.CollectionLog, error) {
	row := s.db.QueryRow(
		`SELECT id, client_id, loan_id, type, amount, date, is_virtual, is_renewal, recorded_by, deleted_at
		FROM collection_logs WHERE id = ?`, id.String())

	log, err := scanLog(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLogNotFound
		}
		return nil, fmt.Errorf("failed to get collection log: %w", err)
	}
	return log, nil
}

func scanLog(row rowScanner) (*models.CollectionLog, error) {
	var log models.CollectionLog
	var idStr, clientStr, loanStr, recordedStr string
	var deletedAt sql.NullTime
	err := row.Scan(&idStr, &clientStr, &loanStr, &log.Type, &log.Amount, &log.Date,
		&log.IsVirtual, &log.IsRenewal, &recordedStr, &deletedAt)
	if err != nil {
		return nil, err
	}
	log.ID = uuid.MustParse(idStr)
	log.ClientID = uuid.MustParse(clientStr)
	log.LoanID = uuid.MustParse(loanStr)
	log.RecordedBy = uuid.MustParse(recordedStr)
	if deletedAt.Valid {
		log.DeletedAt = &deletedAt.Time
	}
	return &log, nil
}

// UpdateLogAmount corrects a payment amount in place, keeping the same id.
func (s *SQLiteStore) UpdateLogAmount(id uuid.UUID, amount decimal.Decimal) error {
	result, err := s.db.Exec(`UPDATE collection_logs SET amount = ? WHERE id = ?`, amount, id.String())
	if err != nil {
		return fmt.Errorf("failed to update log amount: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLogNotFound
	}
	return nil
}

// SoftDeleteLog marks a log as logically removed. The row stays so sync and
// audit remain consistent.
func (s *SQLiteStore) SoftDeleteLog(id uuid.UUID, at time.Time) error {
	result, err := s.db.Exec(`UPDATE collection_logs SET deleted_at = ? WHERE id = ?`, at, id.String())
	if err != nil {
		return fmt.Errorf("failed to soft-delete log: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLogNotFound
	}
	return nil
}

// GetLogsForLoan retrieves every log for a loan, soft-deleted ones included,
// ordered by event time.
func (s *SQLiteStore) GetLogsForLoan(loanID uuid.UUID) ([]models.CollectionLog, error) {
	rows, err := s.db.Query(
		`SELECT id, client_id, loan_id, type, amount, date, is_virtual, is_renewal, recorded_by, deleted_at
		FROM collection_logs WHERE loan_id = ? ORDER BY date ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for loan %s: %w", loanID, err)
	}
	defer rows.Close()
	return collectLogs(rows)
}

// GetLogsForCollector retrieves a collector's logs in a time range, ordered
// by event time.
func (s *SQLiteStore) GetLogsForCollector(collectorID uuid.UUID, from, to time.Time) ([]models.CollectionLog, error) {
	rows, err := s.db.Query(
		`SELECT id, client_id, loan_id, type, amount, date, is_virtual, is_renewal, recorded_by, deleted_at
		FROM collection_logs WHERE recorded_by = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		collectorID.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for collector %s: %w", collectorID, err)
	}
	defer rows.Close()
	return collectLogs(rows)
}

func collectLogs(rows *sql.Rows) ([]models.CollectionLog, error) {
	var logs []models.CollectionLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during log rows iteration: %w", err)
	}
	return logs, nil
}

// GetSettings reads the operator settings row, creating defaults on first
// access.
func (s *SQLiteStore) GetSettings() (*models.Settings, error) {
	row := s.db.QueryRow(`SELECT country, commission_percent, brackets, default_threshold_days FROM settings WHERE id = 1`)

	var settings models.Settings
	var bracketsJSON string
	err := row.Scan(&settings.Country, &settings.CommissionPercent, &bracketsJSON, &settings.DefaultThresholdDays)
	if err == sql.ErrNoRows {
		defaults := &models.Settings{
			Country:              "CO",
			CommissionPercent:    decimal.NewFromInt(10),
			Brackets:             []models.CommissionBracket{},
			DefaultThresholdDays: 30,
		}
		if err := s.SaveSettings(defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if err := json.Unmarshal([]byte(bracketsJSON), &settings.Brackets); err != nil {
		return nil, fmt.Errorf("failed to decode commission brackets: %w", err)
	}
	return &settings, nil
}

// SaveSettings upserts the single operator settings row.
func (s *SQLiteStore) SaveSettings(settings *models.Settings) error {
	brackets, err := json.Marshal(settings.Brackets)
	if err != nil {
		return fmt.Errorf("failed to encode commission brackets: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO settings (id, country, commission_percent, brackets, default_threshold_days)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET country = excluded.country, commission_percent = excluded.commission_percent, brackets = excluded.brackets, default_threshold_days = excluded.default_threshold_days`,
		settings.Country, settings.CommissionPercent, string(brackets), settings.DefaultThresholdDays,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
