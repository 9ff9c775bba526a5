package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayeni/butty/internal/logger"
	"github.com/sayeni/butty/internal/service"
	"github.com/sayeni/butty/internal/store/memory"
)

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestHandler(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()
	mem := memory.New()
	svc := service.New(mem, nil)
	h := NewHandler(svc, logger.NewWithWriter(&bytes.Buffer{}))
	h.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return h, mem
}

func doJSON(t *testing.T, h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestIngestGroupedPayload(t *testing.T) {
	h, mem := newTestHandler(t)

	payload := []map[string]interface{}{{
		"account": map[string]interface{}{
			"id":                "A1",
			"display_name":      "Checking",
			"available_balance": nil,
			"institution_name":  nil,
			"card_last4":        nil,
		},
		"transactions": []map[string]interface{}{
			{"id": "T1", "account_id": "A1", "name": "Coffee", "amount": -4.5,
				"direction": "OUT", "date": "2025-06-01T00:00:00Z"},
			{"id": "T2", "account_id": "A1", "name": "Acme Corp", "amount": 2000.0,
				"direction": "IN", "date": "2025-06-02T00:00:00Z"},
		},
	}}

	rec := doJSON(t, h, http.MethodPost, "/transactions", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]int
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp["count"])

	views, err := mem.Transactions(t.Context())
	require.NoError(t, err)
	assert.Len(t, views, 2)

	// Replay is a no-op for storage but still reports the processed count.
	rec = doJSON(t, h, http.MethodPost, "/transactions", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	views, err = mem.Transactions(t.Context())
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestIngestLegacyFlatPayload(t *testing.T) {
	h, mem := newTestHandler(t)

	payload := []map[string]interface{}{
		{"id": "T1", "account_id": "A1", "name": "Coffee", "amount": 4.5,
			"direction": "OUT", "date": "2025-06-01T00:00:00Z"},
	}

	rec := doJSON(t, h, http.MethodPost, "/transactions/sync/apple", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	accounts, err := mem.Accounts(t.Context())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Apple Card", accounts[0].Name, "no display name in legacy payload")
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBudgetLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/budgets", map[string]interface{}{
		"name": "Groceries", "allocated": 500.00,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]int64
	decodeBody(t, rec, &created)
	id := created["id"]
	require.NotZero(t, id)

	rec = doJSON(t, h, http.MethodGet, "/budgets?month=6&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count   int `json:"count"`
		Budgets []struct {
			Name      string      `json:"name"`
			Allocated json.Number `json:"allocated"`
		} `json:"budgets"`
	}
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Groceries", list.Budgets[0].Name)
	assert.Equal(t, "500", list.Budgets[0].Allocated.String())

	rec = doJSON(t, h, http.MethodPatch, fmt.Sprintf("/budgets/%d", id), map[string]interface{}{
		"name": "Food", "allocated": 450.00,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/budgets/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Name      string      `json:"name"`
		Allocated json.Number `json:"allocated"`
	}
	decodeBody(t, rec, &got)
	assert.Equal(t, "Food", got.Name)
	assert.Equal(t, "450", got.Allocated.String())

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/budgets/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/budgets/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignTransactionPeriodMismatch(t *testing.T) {
	h, mem := newTestHandler(t)
	ctx := t.Context()

	budgetID, err := mem.InsertBudget(ctx, "Dining", 20000, nil)
	require.NoError(t, err)

	svc := service.New(mem, nil)
	txID, err := svc.CreateTransaction(ctx, "Dinner", decimalFromFloat(45), 0,
		time.Date(2025, 5, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/budgets/%d/transactions", budgetID),
		map[string]interface{}{"transaction_id": txID, "month": 6, "year": 2025})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/budgets/%d/transactions", budgetID),
		map[string]interface{}{"transaction_id": txID, "month": 5, "year": 2025})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateNote(t *testing.T) {
	h, mem := newTestHandler(t)
	ctx := t.Context()

	svc := service.New(mem, nil)
	txID, err := svc.CreateTransaction(ctx, "Dinner", decimalFromFloat(45), 0,
		time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/transactions/%d/note", txID),
		map[string]string{"note": "team dinner"})
	require.Equal(t, http.StatusOK, rec.Code)

	tx, err := mem.Transaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, "team dinner", tx.Note)

	rec = doJSON(t, h, http.MethodPost, "/transactions/99999/note",
		map[string]string{"note": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTransactionsDefaultsToCurrentMonth(t *testing.T) {
	h, mem := newTestHandler(t)
	ctx := t.Context()

	svc := service.New(mem, nil)
	_, err := svc.CreateTransaction(ctx, "This month", decimalFromFloat(10), 0,
		time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = svc.CreateTransaction(ctx, "Last month", decimalFromFloat(10), 0,
		time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodGet, "/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count        int `json:"count"`
		Transactions []struct {
			Name string `json:"name"`
		} `json:"transactions"`
	}
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "This month", resp.Transactions[0].Name)
}

func TestListBudgetsNormalizesMonthZero(t *testing.T) {
	h, mem := newTestHandler(t)
	ctx := t.Context()

	dec := time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC)
	_, err := mem.InsertBudget(ctx, "Holidays", 10000, &dec)
	require.NoError(t, err)

	// month=0 with year=2025 is January-1 navigation: December 2024.
	rec := doJSON(t, h, http.MethodGet, "/budgets?month=0&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count  int `json:"count"`
		Period struct {
			Month    int  `json:"month"`
			Year     int  `json:"year"`
			ReadOnly bool `json:"read_only"`
		} `json:"period"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 12, resp.Period.Month)
	assert.Equal(t, 2024, resp.Period.Year)
	assert.True(t, resp.Period.ReadOnly, "past months are read-only")
}

func TestPlaidRoutesDisabledWithoutCredentials(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/plaid/link", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/plaid/exchange",
		map[string]string{"public_token": "tok"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/transactions/sync/plaid", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTagRoutes(t *testing.T) {
	h, mem := newTestHandler(t)
	ctx := t.Context()

	budgetID, err := mem.InsertBudget(ctx, "Media", 3000, nil)
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/budgets/%d/tags", budgetID),
		map[string]string{"name": "Subscriptions"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created map[string]int64
	decodeBody(t, rec, &created)
	tagID := created["tag_id"]
	require.NotZero(t, tagID)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/budgets/%d/tags/search?q=sub", budgetID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var search struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &search)
	assert.Equal(t, 1, search.Count)

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/budgets/%d/tags/%d", budgetID, tagID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/budgets/%d/tags", budgetID), nil)
	var tags struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &tags)
	assert.Zero(t, tags.Count)
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "healthy", resp["status"])
}
