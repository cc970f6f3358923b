package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/anexo/cobro/pkg/calendar"
	"github.com/anexo/cobro/pkg/commission"
	"github.com/anexo/cobro/pkg/config"
	"github.com/anexo/cobro/pkg/ledger"
	"github.com/anexo/cobro/pkg/logger"
	"github.com/anexo/cobro/pkg/models"
	"github.com/anexo/cobro/pkg/receipt"
	"github.com/anexo/cobro/pkg/schedule"
	"github.com/anexo/cobro/pkg/store"
)

// Server holds the ledger instance and its storage.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage
	log     zerolog.Logger
}

func NewServer(s store.Storage, log zerolog.Logger) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, log),
		storage: s,
		log:     log,
	}
}

// loanRequest is the JSON body for loan creation, term edits and renewals.
type loanRequest struct {
	ClientID       uuid.UUID        `json:"client_id"`
	CollectorID    uuid.UUID        `json:"collector_id"`
	Principal      decimal.Decimal  `json:"principal"`
	InterestRate   decimal.Decimal  `json:"interest_rate"`
	Installments   int              `json:"installments"`
	Frequency      models.Frequency `json:"frequency"`
	StartDate      time.Time        `json:"start_date"`
	CustomHolidays []string         `json:"custom_holidays"`
}

func (s *Server) terms(req loanRequest) (schedule.Terms, error) {
	settings, err := s.storage.GetSettings()
	if err != nil {
		return schedule.Terms{}, err
	}
	start := req.StartDate
	if start.IsZero() {
		start = calendar.Today(settings.Country)
	}
	return schedule.Terms{
		Principal:      req.Principal,
		InterestRate:   req.InterestRate,
		Installments:   req.Installments,
		Frequency:      req.Frequency,
		StartDate:      start,
		Country:        settings.Country,
		CustomHolidays: req.CustomHolidays,
	}, nil
}

// writeError maps domain errors onto HTTP responses. Overpayments return the
// computed remaining balance so the operator can correct the amount.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var overpayment *ledger.OverpaymentError
	var invalidTerms *schedule.InvalidTermsError
	switch {
	case errors.As(err, &overpayment):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error":             overpayment.Error(),
			"remaining_balance": overpayment.Balance,
		})
	case errors.As(err, &invalidTerms), errors.Is(err, ledger.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrLogDeleted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrLoanNotFound), errors.Is(err, store.ErrLogNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	terms, err := s.terms(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	loan, err := s.ledger.CreateLoan(req.ClientID, req.CollectorID, terms, false)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	terms, err := s.terms(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	loan, err := s.ledger.UpdateLoanTerms(loanID, terms)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) renewLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		loanRequest
		RecordedBy uuid.UUID `json:"recorded_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	terms, err := s.terms(req.loanRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}
	loan, err := s.ledger.RenewLoan(loanID, req.RecordedBy, terms)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) statementHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	statement, err := s.ledger.Statement(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statement)
}

func (s *Server) recordCollectionHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Type       models.CollectionLogType `json:"type"`
		Amount     decimal.Decimal          `json:"amount"`
		RecordedBy uuid.UUID                `json:"recorded_by"`
		IsVirtual  bool                     `json:"is_virtual"`
		IsRenewal  bool                     `json:"is_renewal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var entry *models.CollectionLog
	switch req.Type {
	case models.LogTypePayment:
		entry, err = s.ledger.RecordPayment(loanID, req.Amount, req.RecordedBy, ledger.PaymentOptions{
			IsVirtual: req.IsVirtual,
			IsRenewal: req.IsRenewal,
		})
	case models.LogTypeNoPayment:
		entry, err = s.ledger.RecordNoPayment(loanID, req.RecordedBy)
	default:
		http.Error(w, "type must be payment or no_payment", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) correctLogHandler(w http.ResponseWriter, r *http.Request) {
	logID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid log ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.ledger.CorrectLogAmount(logID, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteLogHandler(w http.ResponseWriter, r *http.Request) {
	logID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid log ID", http.StatusBadRequest)
		return
	}

	if err := s.ledger.DeleteLog(logID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) receiptHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	statement, err := s.ledger.Statement(loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	lastDue := loan.CreatedAt
	if n := len(loan.Installments); n > 0 {
		lastDue = loan.Installments[n-1].DueDate
	}
	amountPaid := decimal.Zero
	if v := r.URL.Query().Get("amount"); v != "" {
		if amountPaid, err = decimal.NewFromString(v); err != nil {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}
	}

	data := receipt.Data{
		ClientName:        r.URL.Query().Get("client"),
		LoanRef:           loan.ID.String()[:8],
		AmountPaid:        amountPaid,
		RemainingBalance:  statement.Balance,
		PaidInstallments:  statement.Progress.PaidWholeUnits,
		TotalInstallments: loan.TotalInstallments,
		StartDate:         loan.CreatedAt,
		ExpiryDate:        lastDue,
		OverdueDays:       statement.OverdueDays,
		IsRenewal:         loan.IsRenewal,
		IssuedAt:          time.Now(),
	}

	text := receipt.Payment(data)
	if r.URL.Query().Get("kind") == "no_payment" {
		text = receipt.NoPayment(data)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

func (s *Server) commissionHandler(w http.ResponseWriter, r *http.Request) {
	collectorID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid collector ID", http.StatusBadRequest)
		return
	}

	settings, err := s.storage.GetSettings()
	if err != nil {
		s.writeError(w, err)
		return
	}
	today := calendar.Today(settings.Country)

	// The weekly delinquency average is anchored to the period end so a
	// historical range is measured against its own week, not the current one.
	from := commission.WeekStart(today)
	to := today.AddDate(0, 0, 1)
	anchor := today
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return
		}
		to = parsed.AddDate(0, 0, 1) // inclusive end of day
		anchor = parsed
	}

	logs, err := s.storage.GetLogsForCollector(collectorID, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report := commission.BuildReport(logs, settings, from, to, anchor)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.storage.GetSettings()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) putSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.storage.SaveSettings(&settings); err != nil {
		s.writeError(w, err)
		return
	}

	// Payouts are expected to shrink as the mora ceiling grows; a bracket set
	// that breaks that is legal but worth flagging to the operator.
	resp := map[string]any{"settings": settings}
	if warning := bracketWarning(settings.Brackets); warning != "" {
		resp["warning"] = warning
	}
	writeJSON(w, http.StatusOK, resp)
}

func bracketWarning(brackets []models.CommissionBracket) string {
	for i := 1; i < len(brackets); i++ {
		if brackets[i].MaxMora.LessThan(brackets[i-1].MaxMora) {
			return "brackets are not sorted ascending by max_mora"
		}
		if brackets[i].PayoutPercent.GreaterThan(brackets[i-1].PayoutPercent) {
			return "payout_percent increases with max_mora; higher delinquency would pay more"
		}
	}
	return ""
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}/renewal", s.renewLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/statement", s.statementHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/receipt", s.receiptHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/collections", s.recordCollectionHandler).Methods("POST")
	router.HandleFunc("/collections/{id}", s.correctLogHandler).Methods("PATCH")
	router.HandleFunc("/collections/{id}", s.deleteLogHandler).Methods("DELETE")
	router.HandleFunc("/collectors/{id}/commission", s.commissionHandler).Methods("GET")
	router.HandleFunc("/settings", s.getSettingsHandler).Methods("GET")
	router.HandleFunc("/settings", s.putSettingsHandler).Methods("PUT")

	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Setup(cfg.LoggerConfig()); err != nil {
		panic(err)
	}
	log := logger.WithComponent("api")

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath, logger.WithComponent("store"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize sqlite store")
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, logger.WithComponent("ledger"))

	log.Info().Str("addr", cfg.ListenAddr).Msg("server starting")
	if err := http.ListenAndServe(cfg.ListenAddr, server.routes()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
