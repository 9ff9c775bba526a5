package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sayeni/butty/internal/money"
	"github.com/sayeni/butty/internal/store"
)

// budgetJSON is the wire shape for a budget. Amounts go out as dollar
// decimals even though storage is cents.
type budgetJSON struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Allocated decimal.Decimal   `json:"allocated"`
	Spent     decimal.Decimal   `json:"spent"`
	Level     store.BudgetLevel `json:"level"`
	CreatedAt time.Time         `json:"created_at"`
}

func budgetPayload(budgets []store.Budget) []budgetJSON {
	out := make([]budgetJSON, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, budgetJSON{
			ID:        b.ID,
			Name:      b.Name,
			Allocated: money.CentsToDollars(b.AmountAllocated),
			Spent:     money.CentsToDollars(b.AmountSpent),
			Level:     b.Level,
			CreatedAt: b.CreatedAt,
		})
	}
	return out
}

// transactionJSON is the wire shape for a transaction view.
type transactionJSON struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   money.Direction `json:"direction"`
	AccountID   int64           `json:"account_id,omitempty"`
	AccountName string          `json:"account_name,omitempty"`
	BudgetID    int64           `json:"budget_id,omitempty"`
	BudgetName  string          `json:"budget_name,omitempty"`
	Note        string          `json:"note,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func transactionPayload(views []store.TransactionView) []transactionJSON {
	out := make([]transactionJSON, 0, len(views))
	for _, v := range views {
		out = append(out, transactionJSON{
			ID:          v.ID,
			Name:        v.Name,
			Amount:      money.CentsToDollars(v.AmountCents),
			Direction:   v.Direction,
			AccountID:   v.AccountID,
			AccountName: v.AccountName,
			BudgetID:    v.BudgetID,
			BudgetName:  v.BudgetName,
			Note:        v.Note,
			OccurredAt:  v.OccurredAt,
		})
	}
	return out
}
