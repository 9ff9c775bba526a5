// Package store defines the persistence contract for the budgeting backend.
// All monetary amounts are integer cents. Identity for accounts and
// transactions is fingerprint-based so replayed syncs do not duplicate rows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sayeni/butty/internal/money"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Source identifies where an account was discovered.
type Source string

const (
	SourceApple  Source = "APPLE"
	SourcePlaid  Source = "PLAID"
	SourceManual Source = "MANUAL"
)

// AccountType mirrors the institution account classes Plaid reports.
type AccountType string

const (
	AccountCredit     AccountType = "CREDIT"
	AccountDepository AccountType = "DEPOSITORY"
	AccountInvestment AccountType = "INVESTMENT"
	AccountLoan       AccountType = "LOAN"
)

// BudgetLevel is the coarse health indicator shown on budget cards.
type BudgetLevel string

const (
	LevelLow  BudgetLevel = "LOW"
	LevelMed  BudgetLevel = "MED"
	LevelHigh BudgetLevel = "HIGH"
)

// Budget is one month's envelope for a spending category.
type Budget struct {
	ID              int64
	Name            string
	AmountAllocated int64 // cents
	AmountSpent     int64 // cents, maintained from linked transactions
	Level           BudgetLevel
	CreatedAt       time.Time
}

// Transaction is a persisted transaction row.
type Transaction struct {
	ID          int64
	Name        string
	AmountCents int64
	Direction   money.Direction
	AccountID   int64
	ExternalID  string // upstream identifier, empty for manual entries
	Fingerprint string
	OccurredAt  time.Time
	Note        string
}

// TransactionView is a transaction joined with its account name and, where
// linked, its budget.
type TransactionView struct {
	Transaction
	AccountName string
	BudgetID    int64 // zero when unlinked
	BudgetName  string
}

// Tag is a free-form label attachable to budgets.
type Tag struct {
	ID   int64
	Name string
}

// PlaidAccount is a stored Plaid access token.
type PlaidAccount struct {
	ID    int64
	Token string
}

// Account is a linked financial account.
type Account struct {
	ID           int64
	ExternalID   string
	Source       Source
	Type         AccountType
	Name         string
	BalanceCents int64
	Fingerprint  string
	PlaidID      int64 // zero for non-Plaid accounts
}

// Store is the full persistence surface. Postgres backs production; the
// memory implementation backs tests and dev mode.
type Store interface {
	// Budgets
	InsertBudget(ctx context.Context, name string, allocatedCents int64, createdAt *time.Time) (int64, error)
	UpdateBudget(ctx context.Context, b Budget) error
	DeleteBudget(ctx context.Context, id int64) error
	Budget(ctx context.Context, id int64) (Budget, error)
	FilterBudgets(ctx context.Context, start, end time.Time) ([]Budget, error)
	Budgets(ctx context.Context) ([]Budget, error)

	// Transactions. InsertTransaction dedupes on fingerprint or external
	// id: when a matching row already exists its id is returned and
	// nothing is written.
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	UpdateTransactionNote(ctx context.Context, id int64, note string) error
	DeleteTransaction(ctx context.Context, id int64) error
	Transaction(ctx context.Context, id int64) (Transaction, error)
	TransactionIDByIdentity(ctx context.Context, fingerprint, externalID string) (int64, error)
	Transactions(ctx context.Context) ([]TransactionView, error)
	FilterTransactions(ctx context.Context, start, end time.Time) ([]TransactionView, error)

	// Tags
	InsertTag(ctx context.Context, name string) (int64, error)
	UpdateTag(ctx context.Context, t Tag) error
	DeleteTag(ctx context.Context, id int64) error
	Tag(ctx context.Context, id int64) (Tag, error)
	Tags(ctx context.Context) ([]Tag, error)

	// Budget <-> tag links
	InsertBudgetTag(ctx context.Context, budgetID, tagID int64) error
	DeleteBudgetTag(ctx context.Context, budgetID, tagID int64) error
	BudgetTags(ctx context.Context, budgetID int64) ([]Tag, error)

	// Plaid access tokens
	InsertPlaidAccount(ctx context.Context, token string) (int64, error)
	DeletePlaidAccount(ctx context.Context, id int64) error
	PlaidAccount(ctx context.Context, id int64) (PlaidAccount, error)
	PlaidAccounts(ctx context.Context) ([]PlaidAccount, error)

	// Accounts. InsertAccount dedupes on fingerprint, returning the
	// existing row's id when identity matches.
	AccountIDByFingerprint(ctx context.Context, fingerprint string) (int64, error)
	InsertAccount(ctx context.Context, a Account) (int64, error)
	DeleteAccount(ctx context.Context, id int64) error
	Account(ctx context.Context, id int64) (Account, error)
	AccountByExternalID(ctx context.Context, externalID string) (Account, error)
	Accounts(ctx context.Context) ([]Account, error)

	// Budget <-> transaction links
	InsertBudgetTransaction(ctx context.Context, budgetID, transactionID int64) error
	DeleteBudgetTransaction(ctx context.Context, budgetID, transactionID int64) error
	BudgetTransactions(ctx context.Context, budgetID int64) ([]TransactionView, error)
	BudgetIDForTransaction(ctx context.Context, transactionID int64) (int64, error)
}
