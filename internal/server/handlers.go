package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sayeni/butty/internal/exportsync"
	"github.com/sayeni/butty/internal/period"
	"github.com/sayeni/butty/internal/service"
	"github.com/sayeni/butty/internal/store"
)

// Handler routes the budgeting API.
type Handler struct {
	svc *service.Service
	log zerolog.Logger
	now func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(svc *service.Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log, now: time.Now}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrPeriodMismatch):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPlaidDisabled):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error().Err(err).Msg(msg)
		WriteError(w, http.StatusInternalServerError, msg)
	}
}

// monthYearParams reads ?month= and ?year= and normalizes them through the
// period rules, so month=0 rolls back to December of the prior year and
// month=13 forward to January. Missing params default to the current date.
func (h *Handler) monthYearParams(r *http.Request) (period.Context, error) {
	now := h.now()
	month, year := int(now.Month()), now.Year()

	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return period.Context{}, fmt.Errorf("invalid month %q", raw)
		}
		month = parsed
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return period.Context{}, fmt.Errorf("invalid year %q", raw)
		}
		year = parsed
	}
	return period.Derive(month, year, now), nil
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// -------- Ingest --------

// IngestTransactions handles POST /transactions: the grouped export payload
// the bridge sends.
func (h *Handler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	var groups []exportsync.AccountGroup
	if err := json.NewDecoder(r.Body).Decode(&groups); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	count, err := h.svc.IngestAppleTransactions(r.Context(), groups)
	if err != nil {
		h.writeServiceError(w, err, "Failed to ingest transactions")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// IngestAppleLegacy handles POST /transactions/sync/apple: the superseded
// flat payload, normalized into the grouped path.
func (h *Handler) IngestAppleLegacy(w http.ResponseWriter, r *http.Request) {
	var flat []service.AppleTransaction
	if err := json.NewDecoder(r.Body).Decode(&flat); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	count, err := h.svc.IngestAppleTransactions(r.Context(), service.GroupAppleTransactions(flat))
	if err != nil {
		h.writeServiceError(w, err, "Failed to ingest transactions")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// -------- Transactions --------

// ListTransactions handles GET /transactions?month=&year=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	pc, err := h.monthYearParams(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	views, err := h.svc.RecentTransactions(r.Context(), int(pc.Month), pc.Year)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list transactions")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactionPayload(views),
		"count":        len(views),
	})
}

// UpdateNote handles POST /transactions/{id}/note
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Transaction ID is required")
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.svc.UpdateTransactionNote(r.Context(), id, req.Note); err != nil {
		h.writeServiceError(w, err, "Failed to update note")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UnassignTransaction handles DELETE /transactions/{id}/budget. The budget is
// resolved by reverse lookup, for callers that only know the transaction.
func (h *Handler) UnassignTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Transaction ID is required")
		return
	}

	if err := h.svc.UnassignTransactionFromBudget(r.Context(), 0, id); err != nil {
		h.writeServiceError(w, err, "Failed to unassign transaction")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -------- Budgets --------

type budgetRequest struct {
	Name      string           `json:"name"`
	Allocated *decimal.Decimal `json:"allocated"`
}

// ListBudgets handles GET /budgets?month=&year=. The response carries the
// derived period so the client can render navigation and gate editing on
// read-only past months.
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	pc, err := h.monthYearParams(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	budgets, err := h.svc.Budgets(r.Context(), int(pc.Month), pc.Year)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list budgets")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"budgets": budgetPayload(budgets),
		"count":   len(budgets),
		"period": map[string]interface{}{
			"month":      int(pc.Month),
			"year":       pc.Year,
			"month_name": pc.MonthName,
			"prev_month": pc.PrevMonth,
			"next_month": pc.NextMonth,
			"prev_year":  pc.PrevYear,
			"read_only":  pc.ReadOnly,
		},
	})
}

// CreateBudget handles POST /budgets
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "Name is required")
		return
	}
	allocated := decimal.Zero
	if req.Allocated != nil {
		allocated = *req.Allocated
	}

	id, err := h.svc.CreateBudget(r.Context(), req.Name, allocated)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create budget")
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// CopyBudgets handles POST /budgets/copy
func (h *Handler) CopyBudgets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromMonth int `json:"from_month"`
		FromYear  int `json:"from_year"`
		Month     int `json:"month"`
		Year      int `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.svc.CopyBudgets(r.Context(), req.FromMonth, req.FromYear, req.Month, req.Year); err != nil {
		h.writeServiceError(w, err, "Failed to copy budgets")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetBudget handles GET /budgets/{id}
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}

	b, err := h.svc.Budget(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to load budget")
		return
	}
	WriteJSON(w, http.StatusOK, budgetPayload([]store.Budget{b})[0])
}

// PatchBudget handles PATCH /budgets/{id}: renames and reallocations.
func (h *Handler) PatchBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}

	var req budgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		if err := h.svc.EditBudgetName(r.Context(), id, req.Name); err != nil {
			h.writeServiceError(w, err, "Failed to rename budget")
			return
		}
	}
	if req.Allocated != nil {
		if err := h.svc.EditBudgetAllocated(r.Context(), id, *req.Allocated); err != nil {
			h.writeServiceError(w, err, "Failed to update allocation")
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteBudget handles DELETE /budgets/{id}
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}

	if err := h.svc.DeleteBudget(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "Failed to delete budget")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -------- Budget transactions --------

// ListBudgetTransactions handles GET /budgets/{id}/transactions
func (h *Handler) ListBudgetTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}

	views, err := h.svc.BudgetTransactions(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list budget transactions")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactionPayload(views),
		"count":        len(views),
	})
}

// AttachBudgetTransaction handles POST /budgets/{id}/transactions. With a
// transaction_id in the body it assigns an existing transaction (validated
// against the given month/year); otherwise it creates a manual expense
// directly inside the budget.
func (h *Handler) AttachBudgetTransaction(w http.ResponseWriter, r *http.Request) {
	budgetID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}

	var req struct {
		TransactionID int64            `json:"transaction_id"`
		Month         int              `json:"month"`
		Year          int              `json:"year"`
		Name          string           `json:"name"`
		Amount        *decimal.Decimal `json:"amount"`
		AccountID     int64            `json:"account_id"`
		Date          string           `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TransactionID != 0 {
		err := h.svc.AssignTransactionToBudget(r.Context(), budgetID, req.TransactionID, req.Month, req.Year)
		if err != nil {
			h.writeServiceError(w, err, "Failed to assign transaction")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if req.Name == "" || req.Amount == nil {
		WriteError(w, http.StatusBadRequest, "Name and amount are required")
		return
	}
	occurredAt := h.now()
	if req.Date != "" {
		occurredAt, err = parseDate(req.Date)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid date")
			return
		}
	}

	txID, err := h.svc.CreateBudgetTransaction(r.Context(), budgetID, req.Name, *req.Amount, req.AccountID, occurredAt)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create transaction")
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]int64{"id": txID})
}

// DetachBudgetTransaction handles DELETE /budgets/{id}/transactions/{txid}
func (h *Handler) DetachBudgetTransaction(w http.ResponseWriter, r *http.Request) {
	budgetID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}
	txID, err := pathID(r, "txid")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Transaction ID is required")
		return
	}

	if err := h.svc.UnassignTransactionFromBudget(r.Context(), budgetID, txID); err != nil {
		h.writeServiceError(w, err, "Failed to unassign transaction")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// -------- Tags --------

// ListBudgetTags handles GET /budgets/{id}/tags
func (h *Handler) ListBudgetTags(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}

	tags, err := h.svc.BudgetTags(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list tags")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"tags": tags, "count": len(tags)})
}

// AttachBudgetTag handles POST /budgets/{id}/tags. An existing tag_id is
// linked directly; a name creates the tag first.
func (h *Handler) AttachBudgetTag(w http.ResponseWriter, r *http.Request) {
	budgetID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}

	var req struct {
		TagID int64  `json:"tag_id"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tagID := req.TagID
	if tagID == 0 {
		if req.Name == "" {
			WriteError(w, http.StatusBadRequest, "Tag ID or name is required")
			return
		}
		tagID, err = h.svc.CreateTag(r.Context(), req.Name)
		if err != nil {
			h.writeServiceError(w, err, "Failed to create tag")
			return
		}
	}

	if err := h.svc.AssignTagToBudget(r.Context(), budgetID, tagID); err != nil {
		h.writeServiceError(w, err, "Failed to assign tag")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"tag_id": tagID})
}

// DetachBudgetTag handles DELETE /budgets/{id}/tags/{tagID}
func (h *Handler) DetachBudgetTag(w http.ResponseWriter, r *http.Request) {
	budgetID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Budget ID is required")
		return
	}
	tagID, err := pathID(r, "tagID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Tag ID is required")
		return
	}

	if err := h.svc.UnassignTagFromBudget(r.Context(), budgetID, tagID); err != nil {
		h.writeServiceError(w, err, "Failed to unassign tag")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SearchTags handles GET /budgets/{id}/tags/search?q=
func (h *Handler) SearchTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.SearchTags(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to search tags")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"tags": tags, "count": len(tags)})
}

// -------- Accounts --------

// ListAccounts handles GET /accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.Accounts(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to list accounts")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts, "count": len(accounts)})
}

// -------- Plaid --------

// plaidLinkPage hosts the Plaid Link flow in a browser. Link's onSuccess
// posts the public token back to /plaid/exchange.
const plaidLinkPage = `<!DOCTYPE html>
<html>
<head>
<title>Link Bank</title>
<script src="https://cdn.plaid.com/link/v2/stable/link-initialize.js"></script>
</head>
<body>
<script>
  const handler = Plaid.create({
    token: %q,
    onSuccess: (public_token) => {
      fetch("/plaid/exchange", {
        method: "POST",
        headers: { "Content-Type": "application/json" },
        body: JSON.stringify({ public_token })
      }).then(() => {
        alert("Account linked successfully");
      });
    }
  });

  window.addEventListener("load", () => {
    handler.open();
  });
</script>
</body>
</html>
`

// PlaidLink handles GET /plaid/link
func (h *Handler) PlaidLink(w http.ResponseWriter, r *http.Request) {
	token, err := h.svc.LinkToken(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to create link token")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, plaidLinkPage, token)
}

// PlaidExchange handles POST /plaid/exchange
func (h *Handler) PlaidExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicToken string `json:"public_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PublicToken == "" {
		WriteError(w, http.StatusBadRequest, "public_token is required")
		return
	}

	if err := h.svc.CreateAccountsByPlaid(r.Context(), req.PublicToken); err != nil {
		h.writeServiceError(w, err, "Failed to link accounts")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SyncPlaid handles GET /transactions/sync/plaid
func (h *Handler) SyncPlaid(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.SyncPlaidTransactions(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to sync transactions")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   h.now().Format(time.RFC3339),
	})
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transactions", h.IngestTransactions)
	mux.HandleFunc("POST /transactions/sync/apple", h.IngestAppleLegacy)
	mux.HandleFunc("GET /transactions/sync/plaid", h.SyncPlaid)
	mux.HandleFunc("GET /transactions", h.ListTransactions)
	mux.HandleFunc("POST /transactions/{id}/note", h.UpdateNote)
	mux.HandleFunc("DELETE /transactions/{id}/budget", h.UnassignTransaction)

	mux.HandleFunc("GET /budgets", h.ListBudgets)
	mux.HandleFunc("POST /budgets", h.CreateBudget)
	mux.HandleFunc("POST /budgets/copy", h.CopyBudgets)
	mux.HandleFunc("GET /budgets/{id}", h.GetBudget)
	mux.HandleFunc("PATCH /budgets/{id}", h.PatchBudget)
	mux.HandleFunc("DELETE /budgets/{id}", h.DeleteBudget)

	mux.HandleFunc("GET /budgets/{id}/transactions", h.ListBudgetTransactions)
	mux.HandleFunc("POST /budgets/{id}/transactions", h.AttachBudgetTransaction)
	mux.HandleFunc("DELETE /budgets/{id}/transactions/{txid}", h.DetachBudgetTransaction)

	mux.HandleFunc("GET /budgets/{id}/tags", h.ListBudgetTags)
	mux.HandleFunc("POST /budgets/{id}/tags", h.AttachBudgetTag)
	mux.HandleFunc("GET /budgets/{id}/tags/search", h.SearchTags)
	mux.HandleFunc("DELETE /budgets/{id}/tags/{tagID}", h.DetachBudgetTag)

	mux.HandleFunc("GET /accounts", h.ListAccounts)

	mux.HandleFunc("GET /plaid/link", h.PlaidLink)
	mux.HandleFunc("POST /plaid/exchange", h.PlaidExchange)

	mux.HandleFunc("GET /healthz", h.Health)

	return mux
}
