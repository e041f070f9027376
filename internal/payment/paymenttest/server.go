// Package paymenttest fakes a Paystack-compatible mobile-money gateway over
// httptest.
package paymenttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Outcome is the terminal status a charge resolves to.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeFailed    Outcome = "failed"
	OutcomeReversed  Outcome = "reversed"
)

type transaction struct {
	reference string
	amount    int64
	currency  string
	outcome   Outcome
	polls     int
}

// Server resolves every charge to its configured outcome after PendingPolls
// verify calls.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	outcomes     map[string]Outcome
	def          Outcome
	pendingPolls int
	settledDelta int64
	down         bool
	txs          map[string]*transaction
	charges      []ChargeRecord
	seq          int
}

// ChargeRecord is what the fake saw on /charge.
type ChargeRecord struct {
	Email    string
	Amount   int64
	Currency string
	Phone    string
	Provider string
	Auth     string
}

func New() *Server {
	s := &Server{
		outcomes: make(map[string]Outcome),
		def:      OutcomeSuccess,
		txs:      make(map[string]*transaction),
	}
	r := chi.NewRouter()
	r.Post("/charge", s.charge)
	r.Get("/transaction/verify/{reference}", s.verify)
	s.Server = httptest.NewServer(r)
	return s
}

// SetOutcome fixes the outcome for charges from phone.
func (s *Server) SetOutcome(phone string, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[phone] = o
}

// SetPendingPolls makes verify report "pay_offline" n times before resolving.
func (s *Server) SetPendingPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPolls = n
}

// SetSettledDelta makes verify report a settled amount off by delta.
func (s *Server) SetSettledDelta(delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settledDelta = delta
}

func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *Server) Charges() []ChargeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChargeRecord(nil), s.charges...)
}

func (s *Server) charge(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	var body struct {
		Email       string `json:"email"`
		Amount      int64  `json:"amount"`
		Currency    string `json:"currency"`
		MobileMoney struct {
			Phone    string `json:"phone"`
			Provider string `json:"provider"`
		} `json:"mobile_money"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "invalid body", nil)
		return
	}
	s.charges = append(s.charges, ChargeRecord{
		Email:    body.Email,
		Amount:   body.Amount,
		Currency: body.Currency,
		Phone:    body.MobileMoney.Phone,
		Provider: body.MobileMoney.Provider,
		Auth:     r.Header.Get("Authorization"),
	})

	outcome := s.def
	if phone, ok := body.Metadata["phone"].(string); ok {
		if o, ok := s.outcomes[phone]; ok {
			outcome = o
		}
	}
	s.seq++
	tx := &transaction{
		reference: fmt.Sprintf("T%06d", s.seq),
		amount:    body.Amount,
		currency:  body.Currency,
		outcome:   outcome,
	}
	s.txs[tx.reference] = tx
	writeEnvelope(w, http.StatusOK, true, "Charge attempted", map[string]any{
		"reference":    tx.reference,
		"status":       "pay_offline",
		"display_text": "Please complete authorization process on your mobile phone",
	})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	tx, ok := s.txs[chi.URLParam(r, "reference")]
	if !ok {
		writeEnvelope(w, http.StatusBadRequest, false, "Transaction reference not found", nil)
		return
	}
	tx.polls++
	status := string(tx.outcome)
	if tx.polls <= s.pendingPolls {
		status = "pay_offline"
	}
	writeEnvelope(w, http.StatusOK, true, "Verification successful", map[string]any{
		"reference": tx.reference,
		"status":    status,
		"amount":    tx.amount + s.settledDelta,
		"currency":  tx.currency,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, ok bool, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": ok, "message": msg, "data": data})
}
