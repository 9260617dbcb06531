package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quartzlabs/econd/internal/core/domain"
	"github.com/quartzlabs/econd/internal/core/service"
)

// HTTPHandler exposes the ledger operations to external collaborators. It
// translates ledger booleans into status codes and writes audit entries for
// every mutation, the way a presentation layer is expected to.
type HTTPHandler struct {
	ledger *service.Ledger
	audit  *service.AuditLog
}

type MutationRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
	Source    string `json:"source"`
	Detail    string `json:"detail"`
	Notify    string `json:"notify_message"`
}

type AccountRequest struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
}

type BalanceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Balance string `json:"balance,omitempty"`
}

func NewHTTPHandler(ledger *service.Ledger, audit *service.AuditLog) *HTTPHandler {
	return &HTTPHandler{ledger: ledger, audit: audit}
}

// Register wires all routes onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/balance", h.Balance)
	mux.HandleFunc("/api/deposit", h.Deposit)
	mux.HandleFunc("/api/withdraw", h.Withdraw)
	mux.HandleFunc("/api/balance/set", h.SetBalance)
	mux.HandleFunc("/api/balance/reset", h.ResetBalance)
	mux.HandleFunc("/api/accounts", h.Accounts)
	mux.HandleFunc("/api/top", h.TopAccounts)
	mux.HandleFunc("/api/names", h.Names)
	mux.HandleFunc("/api/logs", h.Logs)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Balance resolves ?account=<uuid> or ?name=<display name>.
func (h *HTTPHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var id uuid.UUID
	if raw := r.URL.Query().Get("account"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid account id"})
			return
		}
		id = parsed
	} else if name := r.URL.Query().Get("name"); name != "" {
		resolved, ok := h.ledger.GetUUID(r.Context(), name)
		if !ok {
			writeJSON(w, http.StatusNotFound, BalanceResponse{Message: "unknown account name"})
			return
		}
		id = resolved
	} else {
		writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "account or name required"})
		return
	}

	balance := h.ledger.GetBalance(r.Context(), id)
	writeJSON(w, http.StatusOK, BalanceResponse{Success: true, Balance: balance.String()})
}

func (h *HTTPHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, domain.CategoryTransfer, h.ledger.Credit)
}

func (h *HTTPHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, domain.CategoryTransfer, h.ledger.Debit)
}

// SetBalance is the administrative overwrite. It bypasses the optimistic
// check; the admin's value always wins.
func (h *HTTPHandler) SetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, amount, req, ok := h.decodeMutation(w, r)
	if !ok {
		return
	}

	if err := h.ledger.SetBalance(r.Context(), id, amount); err != nil {
		writeJSON(w, http.StatusInternalServerError, BalanceResponse{Message: "internal error"})
		return
	}

	h.audit.Log(domain.CategoryAdminSet, req.Source, id.String(), amount, req.Detail)
	h.ledger.PublishTransaction(r.Context(), id, amount, domain.CategoryAdminSet, req.Source, req.Notify)
	writeJSON(w, http.StatusOK, BalanceResponse{Success: true, Balance: amount.String()})
}

// ResetBalance puts the account back on the configured default balance.
// Administrative, like SetBalance; the amount field is ignored.
func (h *HTTPHandler) ResetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid request body"})
		return
	}
	id, err := uuid.Parse(req.AccountID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid account id"})
		return
	}

	if err := h.ledger.ResetBalance(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, BalanceResponse{Message: "internal error"})
		return
	}

	balance := h.ledger.GetBalance(r.Context(), id)
	h.audit.Log(domain.CategoryAdminSet, req.Source, id.String(), balance, req.Detail)
	h.ledger.PublishTransaction(r.Context(), id, balance, domain.CategoryAdminSet, req.Source, req.Notify)
	writeJSON(w, http.StatusOK, BalanceResponse{Success: true, Balance: balance.String()})
}

// Accounts handles POST (create, idempotent) and DELETE (hard removal).
func (h *HTTPHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid request body"})
		return
	}
	id, err := uuid.Parse(req.AccountID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid account id"})
		return
	}

	switch r.Method {
	case http.MethodPost:
		if req.Name == "" {
			writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "name required"})
			return
		}
		if err := h.ledger.CreateAccount(r.Context(), id, req.Name); err != nil {
			writeJSON(w, http.StatusInternalServerError, BalanceResponse{Message: "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, BalanceResponse{Success: true})

	case http.MethodDelete:
		if err := h.ledger.DeleteAccount(r.Context(), id); err != nil {
			writeJSON(w, http.StatusInternalServerError, BalanceResponse{Message: "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, BalanceResponse{Success: true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) TopAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid limit"})
			return
		}
		limit = parsed
	}

	type entry struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Balance string `json:"balance"`
	}
	accounts := h.ledger.GetTopAccounts(r.Context(), limit)
	out := make([]entry, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, entry{ID: acct.ID.String(), Name: acct.Name, Balance: acct.Balance.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Names(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.ledger.GetOfflinePlayerNames(r.Context()))
}

// Logs searches the audit log: ?target=<substring|*>&since=<RFC3339>.
func (h *HTTPHandler) Logs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := r.URL.Query().Get("target")
	if target == "" {
		target = "*"
	}

	cutoff := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid since timestamp"})
			return
		}
		cutoff = parsed
	}

	entries, err := h.audit.Search(r.Context(), target, cutoff)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, BalanceResponse{Message: "internal error"})
		return
	}

	type logEntry struct {
		Timestamp string `json:"timestamp"`
		Category  string `json:"category"`
		Source    string `json:"source"`
		Target    string `json:"target"`
		Amount    string `json:"amount"`
		Detail    string `json:"detail"`
	}
	out := make([]logEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntry{
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Category:  e.Category,
			Source:    e.Source,
			Target:    e.Target,
			Amount:    e.Amount.String(),
			Detail:    e.Detail,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// mutate implements the shared deposit/withdraw flow: bounded-retry ledger
// mutation, then audit entry and best-effort broadcast on success.
func (h *HTTPHandler) mutate(w http.ResponseWriter, r *http.Request, category string, op func(ctx context.Context, id uuid.UUID, amount decimal.Decimal) service.MutationOutcome) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, amount, req, ok := h.decodeMutation(w, r)
	if !ok {
		return
	}

	switch op(r.Context(), id, amount) {
	case service.OutcomeApplied:
		balance := h.ledger.GetBalance(r.Context(), id)
		h.audit.Log(category, req.Source, id.String(), amount, req.Detail)
		h.ledger.PublishTransaction(r.Context(), id, balance, category, req.Source, req.Notify)
		writeJSON(w, http.StatusOK, BalanceResponse{Success: true, Balance: balance.String()})

	case service.OutcomeInsufficient:
		writeJSON(w, http.StatusPaymentRequired, BalanceResponse{Message: "insufficient funds"})

	case service.OutcomeContention:
		writeJSON(w, http.StatusConflict, BalanceResponse{Message: "please try again"})

	default:
		writeJSON(w, http.StatusInternalServerError, BalanceResponse{Message: "internal error"})
	}
}

func (h *HTTPHandler) decodeMutation(w http.ResponseWriter, r *http.Request) (uuid.UUID, decimal.Decimal, MutationRequest, bool) {
	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid request body"})
		return uuid.Nil, decimal.Zero, req, false
	}

	id, err := uuid.Parse(req.AccountID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid account id"})
		return uuid.Nil, decimal.Zero, req, false
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, BalanceResponse{Message: "invalid amount"})
		return uuid.Nil, decimal.Zero, req, false
	}

	return id, amount, req, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
