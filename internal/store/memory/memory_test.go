package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sayeni/butty/internal/money"
	"github.com/sayeni/butty/internal/store"
)

var _ store.Store = (*Store)(nil)

func TestInsertTransactionDedupes(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx := store.Transaction{
		Name:        "Coffee",
		AmountCents: -450,
		Direction:   money.Out,
		Fingerprint: "fp-1",
		OccurredAt:  time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
	}
	first, err := s.InsertTransaction(ctx, tx)
	require.NoError(t, err)

	second, err := s.InsertTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same fingerprint must return the existing row")

	byExternal := tx
	byExternal.Fingerprint = "fp-other"
	byExternal.ExternalID = "ext-9"
	extID, err := s.InsertTransaction(ctx, byExternal)
	require.NoError(t, err)

	again, err := s.InsertTransaction(ctx, store.Transaction{ExternalID: "ext-9"})
	require.NoError(t, err)
	assert.Equal(t, extID, again)
}

func TestFilterTransactionsWindow(t *testing.T) {
	s := New()
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	inside, err := s.InsertTransaction(ctx, store.Transaction{
		Name: "inside", Fingerprint: "a", Direction: money.Out,
		OccurredAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = s.InsertTransaction(ctx, store.Transaction{
		Name: "boundary-end", Fingerprint: "b", Direction: money.Out,
		OccurredAt: end,
	})
	require.NoError(t, err)

	_, err = s.InsertTransaction(ctx, store.Transaction{
		Name: "before", Fingerprint: "c", Direction: money.Out,
		OccurredAt: start.Add(-time.Second),
	})
	require.NoError(t, err)

	views, err := s.FilterTransactions(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, views, 1, "window is half-open: [start, end)")
	assert.Equal(t, inside, views[0].ID)
}

func TestTransactionViewJoinsAccountAndBudget(t *testing.T) {
	s := New()
	ctx := context.Background()

	accID, err := s.InsertAccount(ctx, store.Account{
		Name: "Apple Card", Source: store.SourceApple, Type: store.AccountCredit,
		Fingerprint: "acc-fp",
	})
	require.NoError(t, err)

	budgetID, err := s.InsertBudget(ctx, "Groceries", 50000, nil)
	require.NoError(t, err)

	txID, err := s.InsertTransaction(ctx, store.Transaction{
		Name: "Market", AmountCents: -1200, Direction: money.Out,
		AccountID: accID, Fingerprint: "tx-fp",
		OccurredAt: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertBudgetTransaction(ctx, budgetID, txID))

	views, err := s.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Apple Card", views[0].AccountName)
	assert.Equal(t, budgetID, views[0].BudgetID)
	assert.Equal(t, "Groceries", views[0].BudgetName)

	got, err := s.BudgetIDForTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, budgetID, got)
}

func TestBudgetSpentTracksLinkedOutflows(t *testing.T) {
	s := New()
	ctx := context.Background()

	budgetID, err := s.InsertBudget(ctx, "Dining", 20000, nil)
	require.NoError(t, err)

	outID, err := s.InsertTransaction(ctx, store.Transaction{
		Name: "Dinner", AmountCents: -4500, Direction: money.Out,
		Fingerprint: "out", OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	inID, err := s.InsertTransaction(ctx, store.Transaction{
		Name: "Refund", AmountCents: 1000, Direction: money.In,
		Fingerprint: "in", OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.InsertBudgetTransaction(ctx, budgetID, outID))
	require.NoError(t, s.InsertBudgetTransaction(ctx, budgetID, inID))

	b, err := s.Budget(ctx, budgetID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), b.AmountSpent, "spent counts OUT magnitudes only")

	require.NoError(t, s.DeleteBudgetTransaction(ctx, budgetID, outID))
	b, err = s.Budget(ctx, budgetID)
	require.NoError(t, err)
	assert.Zero(t, b.AmountSpent)
}

func TestFilterBudgetsByCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	june := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	july := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)

	juneID, err := s.InsertBudget(ctx, "Groceries", 50000, &june)
	require.NoError(t, err)
	_, err = s.InsertBudget(ctx, "Groceries", 50000, &july)
	require.NoError(t, err)

	got, err := s.FilterBudgets(ctx,
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, juneID, got[0].ID)
}

func TestInsertAccountDedupesByFingerprint(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.InsertAccount(ctx, store.Account{Name: "Checking", Fingerprint: "fp"})
	require.NoError(t, err)
	second, err := s.InsertAccount(ctx, store.Account{Name: "Checking again", Fingerprint: "fp"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	id, err := s.AccountIDByFingerprint(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, first, id)

	_, err = s.AccountIDByFingerprint(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteBudgetRemovesLinks(t *testing.T) {
	s := New()
	ctx := context.Background()

	budgetID, err := s.InsertBudget(ctx, "Travel", 100000, nil)
	require.NoError(t, err)
	txID, err := s.InsertTransaction(ctx, store.Transaction{
		Name: "Flight", AmountCents: -30000, Direction: money.Out,
		Fingerprint: "flight", OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertBudgetTransaction(ctx, budgetID, txID))

	require.NoError(t, s.DeleteBudget(ctx, budgetID))

	_, err = s.Budget(ctx, budgetID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.BudgetIDForTransaction(ctx, txID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTagsRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	tagID, err := s.InsertTag(ctx, "subscriptions")
	require.NoError(t, err)
	budgetID, err := s.InsertBudget(ctx, "Media", 3000, nil)
	require.NoError(t, err)

	require.NoError(t, s.InsertBudgetTag(ctx, budgetID, tagID))
	// Linking twice is a no-op.
	require.NoError(t, s.InsertBudgetTag(ctx, budgetID, tagID))

	tags, err := s.BudgetTags(ctx, budgetID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "subscriptions", tags[0].Name)

	require.NoError(t, s.DeleteBudgetTag(ctx, budgetID, tagID))
	tags, err = s.BudgetTags(ctx, budgetID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}
