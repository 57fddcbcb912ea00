package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mcclellann/pawnLoan/internal/logging"
	"github.com/mcclellann/pawnLoan/pkg/config"
	"github.com/mcclellann/pawnLoan/pkg/dates"
	"github.com/mcclellann/pawnLoan/pkg/ledger"
	"github.com/mcclellann/pawnLoan/pkg/store"
)

const dateLayout = "2006-01-02"

// Server holds the ledger instance and its collaborators.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	cfg     *config.Config
	log     *zap.Logger
}

func NewServer(s store.Storage, cfg *config.Config, log *zap.Logger) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, cfg.StorePolicy(), log),
		storage: s,
		cfg:     cfg,
		log:     log,
	}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	r.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")

	r.HandleFunc("/items", s.createItemHandler).Methods("POST")
	r.HandleFunc("/items/{id}", s.getItemHandler).Methods("GET")

	r.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	r.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	r.HandleFunc("/loans/due", s.dueLoansHandler).Methods("GET")
	r.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")

	r.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	r.HandleFunc("/loans/{id}/payments/preview", s.previewPaymentHandler).Methods("POST")

	r.HandleFunc("/loans/{id}/status", s.loanStatusHandler).Methods("GET")
	r.HandleFunc("/loans/{id}/scenarios", s.scenariosHandler).Methods("GET")
	r.HandleFunc("/loans/{id}/receipt", s.receiptHandler).Methods("GET")
	r.HandleFunc("/loans/{id}/forfeit", s.forfeitHandler).Methods("POST")

	r.HandleFunc("/policy/payment-rules", s.paymentRulesHandler).Methods("GET")

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every error response. Code and Minimum are
// filled for policy violations so staff screens can show the exact threshold.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Minimum string `json:"minimum,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message})
		return
	}

	var pv *ledger.PolicyViolation
	if errors.As(err, &pv) {
		body := errorBody{Error: pv.Message, Code: string(pv.Code)}
		if pv.Minimum.IsPositive() {
			body.Minimum = pv.Minimum.StringFixed(2)
		}
		writeJSON(w, http.StatusBadRequest, body)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, store.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		s.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// parseDate reads a YYYY-MM-DD string, defaulting to today when empty.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return dates.Truncate(time.Now().UTC()), nil
	}
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return d, nil
}

func asOfParam(r *http.Request) (time.Time, error) {
	return parseDate(r.URL.Query().Get("as_of"))
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	customer, err := s.ledger.CreateCustomer(req.FirstName, req.LastName, req.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid customer ID"})
		return
	}
	customer, err := s.ledger.GetCustomer(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) createItemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID  uuid.UUID `json:"customer_id"`
		Description string    `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	item, err := s.ledger.CreateItem(req.CustomerID, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) getItemHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid item ID"})
		return
	}
	item, err := s.ledger.GetItem(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID         uuid.UUID       `json:"customer_id"`
		ItemID             uuid.UUID       `json:"item_id"`
		Principal          decimal.Decimal `json:"principal"`
		MonthlyInterestFee decimal.Decimal `json:"monthly_interest_fee"`
		CreatedDate        string          `json:"created_date"`
		Notes              string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	created, err := parseDate(req.CreatedDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	loan, err := s.ledger.CreatePawnLoan(req.CustomerID, req.ItemID, req.Principal, req.MonthlyInterestFee, created, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan ID"})
		return
	}
	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	Notes       string          `json:"notes"`
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan ID"})
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	when, err := parseDate(req.PaymentDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	result, err := s.ledger.ProcessPayment(id, req.Amount, when, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan ID"})
		return
	}
	if _, err := s.ledger.GetLoan(id); err != nil {
		s.writeError(w, err)
		return
	}
	payments, err := s.ledger.GetPaymentsForLoan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) previewPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan ID"})
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	when, err := parseDate(req.PaymentDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	alloc, err := s.ledger.PreviewPayment(id, req.Amount, when)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

func (s *Server) loanStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan ID"})
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	view, err := s.ledger.LoanStatus(id, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) scenariosHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan ID"})
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	loan, err := s.ledger.GetLoan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	scenarios, err := ledger.PaymentScenarios(loan, asOf, s.ledger.Policy())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

func (s *Server) receiptHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan ID"})
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	receipt, err := s.ledger.Receipt(id, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) forfeitHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid loan ID"})
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	loan, err := s.ledger.Forfeit(id, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) dueLoansHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	summary, err := s.ledger.DueLoans(asOf, s.cfg.DueSoonDays)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) paymentRulesHandler(w http.ResponseWriter, r *http.Request) {
	pol := s.ledger.Policy()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loan_term_days":     pol.LoanTermDays,
		"grace_period_days":  pol.GraceDays,
		"late_fee":           pol.LateFee.StringFixed(2),
		"forfeit_months":     pol.ForfeitMonths,
		"forfeit_grace_days": pol.ForfeitGraceDays,
		"minimum_payment":    "monthly interest fee, plus late fee when applicable",
		"due_date_anchoring": "renewal due dates are offsets from the original due date",
		"accepted_methods":   []string{"cash"},
		"overpayment_policy": "noted on the record, not refunded or carried forward",
	})
}

// runSweep refreshes inactivity counters and logs the due book on a timer.
func (s *Server) runSweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now().UTC()
		s.ledger.RefreshPaymentInactivity(now)

		summary, err := s.ledger.DueLoans(now, s.cfg.DueSoonDays)
		if err != nil {
			s.log.Error("due-loan sweep failed", zap.Error(err))
			continue
		}
		s.log.Info("due-loan sweep",
			zap.Int("open", summary.TotalOpenLoans),
			zap.Int("due_soon", len(summary.DueSoon)),
			zap.Int("overdue", len(summary.Overdue)),
			zap.Int("forfeit_eligible", len(summary.ForfeitEligible)),
			zap.String("principal_at_risk", summary.PrincipalAtRisk.StringFixed(2)),
		)
	}
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to initialize SQLite store", zap.Error(err))
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, cfg, log)

	go server.runSweep(time.Duration(cfg.SweepIntervalMinutes) * time.Minute)

	log.Info("server starting",
		zap.String("addr", cfg.ListenAddr),
		zap.String("database", cfg.DatabasePath),
	)
	if err := http.ListenAndServe(cfg.ListenAddr, server.router()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
