package handlers

import (
	"dream-san/internal/app"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

type TransactionData struct {
	ID        string    `json:"id"`
	Amount    int       `json:"amount"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

type TransactionsResponse struct {
	Transactions []TransactionData `json:"transactions"`
}

type ReconcileResponse struct {
	Balance      int  `json:"balance"`
	TokensSpent  int  `json:"tokens_spent"`
	AuditedNet   int  `json:"audited_net"`
	AuditedSpend int  `json:"audited_spend"`
	Consistent   bool `json:"consistent"`
}

type TokenRequest struct {
	Text string `json:"text"`
}

type EstimateResponse struct {
	Cost       int  `json:"cost"`
	Balance    int  `json:"balance"`
	Sufficient bool `json:"sufficient"`
}

type ChargeResponse struct {
	Success bool `json:"success"`
	Cost    int  `json:"cost"`
	Balance int  `json:"balance"`
}

// AccountHandlers serves the caller's profile and token ledger
type AccountHandlers struct {
	config *app.Config
	auth   *AuthHandlers
}

func NewAccountHandlers(config *app.Config) *AccountHandlers {
	return &AccountHandlers{config: config, auth: NewAuthHandlers(config)}
}

// MeHandler returns the caller's balance and subscription
func (h *AccountHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)

	user, err := h.config.Identity.GetUser(r.Context(), claims.UserID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, h.auth.userData(user))
}

// TransactionsHandler returns the caller's ledger history, newest first
func (h *AccountHandlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			sendError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = parsed
	}

	transactions, err := h.config.Ledger.History(r.Context(), claims.UserID, limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	data := make([]TransactionData, 0, len(transactions))
	for _, tx := range transactions {
		data = append(data, TransactionData{ID: tx.ID, Amount: tx.Amount, Kind: tx.Kind, CreatedAt: tx.CreatedAt})
	}
	sendJSON(w, http.StatusOK, TransactionsResponse{Transactions: data})
}

// ReconcileHandler compares the caller's balance with the audit trail
func (h *AccountHandlers) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)

	report, err := h.config.Ledger.Reconcile(r.Context(), claims.UserID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, ReconcileResponse{
		Balance:      report.Balance,
		TokensSpent:  report.TokensSpent,
		AuditedNet:   report.AuditedNet,
		AuditedSpend: report.AuditedSpend,
		Consistent:   report.Consistent,
	})
}

// EstimateHandler prices text and reports whether the caller can afford it
func (h *AccountHandlers) EstimateHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)

	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.config.Identity.GetUser(r.Context(), claims.UserID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, EstimateResponse{
		Cost:       h.config.Ledger.EstimateCost(req.Text),
		Balance:    user.TokenBalance,
		Sufficient: h.config.Ledger.HasSufficientBalance(user, req.Text),
	})
}

// ChargeHandler debits the caller for text without interpreting it
func (h *AccountHandlers) ChargeHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)

	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receipt, err := h.config.Ledger.Charge(r.Context(), claims.UserID, req.Text)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id": claims.UserID,
		"cost":    receipt.Cost,
	}).Debug("Processed query charge")

	sendJSON(w, http.StatusOK, ChargeResponse{Success: true, Cost: receipt.Cost, Balance: receipt.BalanceAfter})
}

// AdminStatsHandler returns platform totals to admins
func (h *AccountHandlers) AdminStatsHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)
	if !h.config.AppConfig.Admin.IsAdmin(claims.Email) {
		sendError(w, http.StatusForbidden, "Admin access required", nil)
		return
	}

	stats, err := h.config.DB.GetStats(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, statsResponse(stats))
}

type StatsResponse struct {
	TotalUsers  int   `json:"total_users"`
	Subscribers int   `json:"subscribers"`
	Sessions    int   `json:"dream_sessions"`
	TokensSpent int64 `json:"tokens_spent"`
}

func statsResponse(stats *db.Stats) StatsResponse {
	return StatsResponse{
		TotalUsers:  stats.TotalUsers,
		Subscribers: stats.Subscribers,
		Sessions:    stats.Sessions,
		TokensSpent: stats.TokensSpent,
	}
}
