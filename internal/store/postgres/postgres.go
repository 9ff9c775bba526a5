// Package postgres backs store.Store with a pgx connection pool. The schema
// is embedded and applied on startup; every statement is idempotent so
// repeated boots are safe.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sayeni/butty/internal/store"
)

//go:embed schema.sql
var schema string

// Store implements store.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and applies the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// -------- Budgets --------

// budgetColumns computes amount_spent live from linked OUT transactions so
// the column never drifts from the links.
const budgetColumns = `b.id, b.name, b.amount_allocated,
	COALESCE((SELECT SUM(ABS(t.amount_cents))
		FROM budget_transactions bt
		JOIN transactions t ON t.id = bt.transaction_id
		WHERE bt.budget_id = b.id AND t.direction = 'OUT'), 0),
	b.level, b.created_at`

func scanBudget(row pgx.Row) (store.Budget, error) {
	var b store.Budget
	err := row.Scan(&b.ID, &b.Name, &b.AmountAllocated, &b.AmountSpent, &b.Level, &b.CreatedAt)
	return b, err
}

func (s *Store) InsertBudget(ctx context.Context, name string, allocatedCents int64, createdAt *time.Time) (int64, error) {
	created := time.Now().UTC()
	if createdAt != nil {
		created = *createdAt
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO budgets (name, amount_allocated, created_at) VALUES ($1, $2, $3) RETURNING id`,
		name, allocatedCents, created).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting budget: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateBudget(ctx context.Context, b store.Budget) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET name = $2, amount_allocated = $3, amount_spent = $4, level = $5 WHERE id = $1`,
		b.ID, b.Name, b.AmountAllocated, b.AmountSpent, b.Level)
	if err != nil {
		return fmt.Errorf("updating budget %d: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteBudget(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM budgets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting budget %d: %w", id, err)
	}
	return nil
}

func (s *Store) Budget(ctx context.Context, id int64) (store.Budget, error) {
	b, err := scanBudget(s.pool.QueryRow(ctx,
		`SELECT `+budgetColumns+` FROM budgets b WHERE b.id = $1`, id))
	if err != nil {
		return store.Budget{}, notFound(err)
	}
	return b, nil
}

func (s *Store) FilterBudgets(ctx context.Context, start, end time.Time) ([]store.Budget, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+budgetColumns+` FROM budgets b
		 WHERE b.created_at >= $1 AND b.created_at < $2 ORDER BY b.id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("filtering budgets: %w", err)
	}
	return collectBudgets(rows)
}

func (s *Store) Budgets(ctx context.Context) ([]store.Budget, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+budgetColumns+` FROM budgets b ORDER BY b.id`)
	if err != nil {
		return nil, fmt.Errorf("listing budgets: %w", err)
	}
	return collectBudgets(rows)
}

func collectBudgets(rows pgx.Rows) ([]store.Budget, error) {
	defer rows.Close()
	var out []store.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// -------- Transactions --------

const viewColumns = `t.id, t.name, t.amount_cents, t.direction,
	COALESCE(t.account_id, 0), t.external_id, t.fingerprint, t.occurred_at, t.note,
	COALESCE(a.name, ''), COALESCE(bt.budget_id, 0), COALESCE(b.name, '')`

const viewJoins = `FROM transactions t
	LEFT JOIN accounts a ON a.id = t.account_id
	LEFT JOIN budget_transactions bt ON bt.transaction_id = t.id
	LEFT JOIN budgets b ON b.id = bt.budget_id`

func scanView(row pgx.Row) (store.TransactionView, error) {
	var v store.TransactionView
	err := row.Scan(&v.ID, &v.Name, &v.AmountCents, &v.Direction,
		&v.AccountID, &v.ExternalID, &v.Fingerprint, &v.OccurredAt, &v.Note,
		&v.AccountName, &v.BudgetID, &v.BudgetName)
	return v, err
}

func collectViews(rows pgx.Rows) ([]store.TransactionView, error) {
	defer rows.Close()
	var out []store.TransactionView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) InsertTransaction(ctx context.Context, tx store.Transaction) (int64, error) {
	if id := s.existingTransaction(ctx, tx.Fingerprint, tx.ExternalID); id != 0 {
		return id, nil
	}
	var accountID any
	if tx.AccountID != 0 {
		accountID = tx.AccountID
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transactions (name, amount_cents, direction, account_id, external_id, fingerprint, occurred_at, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		tx.Name, tx.AmountCents, tx.Direction, accountID, tx.ExternalID, tx.Fingerprint, tx.OccurredAt, tx.Note).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting transaction: %w", err)
	}
	return id, nil
}

func (s *Store) existingTransaction(ctx context.Context, fingerprint, externalID string) int64 {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM transactions
		 WHERE (fingerprint <> '' AND fingerprint = $1) OR (external_id <> '' AND external_id = $2)
		 LIMIT 1`, fingerprint, externalID).Scan(&id)
	if err != nil {
		return 0
	}
	return id
}

func (s *Store) UpdateTransactionNote(ctx context.Context, id int64, note string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE transactions SET note = $2 WHERE id = $1`, id, note)
	if err != nil {
		return fmt.Errorf("updating note on transaction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting transaction %d: %w", id, err)
	}
	return nil
}

func (s *Store) Transaction(ctx context.Context, id int64) (store.Transaction, error) {
	var tx store.Transaction
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, amount_cents, direction, COALESCE(account_id, 0), external_id, fingerprint, occurred_at, note
		 FROM transactions WHERE id = $1`, id).
		Scan(&tx.ID, &tx.Name, &tx.AmountCents, &tx.Direction, &tx.AccountID,
			&tx.ExternalID, &tx.Fingerprint, &tx.OccurredAt, &tx.Note)
	if err != nil {
		return store.Transaction{}, notFound(err)
	}
	return tx, nil
}

func (s *Store) TransactionIDByIdentity(ctx context.Context, fingerprint, externalID string) (int64, error) {
	if id := s.existingTransaction(ctx, fingerprint, externalID); id != 0 {
		return id, nil
	}
	return 0, store.ErrNotFound
}

func (s *Store) Transactions(ctx context.Context) ([]store.TransactionView, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+viewColumns+` `+viewJoins+` ORDER BY t.occurred_at DESC, t.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return collectViews(rows)
}

func (s *Store) FilterTransactions(ctx context.Context, start, end time.Time) ([]store.TransactionView, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+viewColumns+` `+viewJoins+`
		 WHERE t.occurred_at >= $1 AND t.occurred_at < $2
		 ORDER BY t.occurred_at DESC, t.id DESC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("filtering transactions: %w", err)
	}
	return collectViews(rows)
}

// -------- Tags --------

func (s *Store) InsertTag(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO tags (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting tag: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateTag(ctx context.Context, t store.Tag) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tags SET name = $2 WHERE id = $1`, t.ID, t.Name)
	if err != nil {
		return fmt.Errorf("updating tag %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting tag %d: %w", id, err)
	}
	return nil
}

func (s *Store) Tag(ctx context.Context, id int64) (store.Tag, error) {
	var t store.Tag
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM tags WHERE id = $1`, id).Scan(&t.ID, &t.Name)
	if err != nil {
		return store.Tag{}, notFound(err)
	}
	return t, nil
}

func (s *Store) Tags(ctx context.Context) ([]store.Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM tags ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return collectTags(rows)
}

func collectTags(rows pgx.Rows) ([]store.Tag, error) {
	defer rows.Close()
	var out []store.Tag
	for rows.Next() {
		var t store.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// -------- Budget <-> tag links --------

func (s *Store) InsertBudgetTag(ctx context.Context, budgetID, tagID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO budget_tags (budget_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		budgetID, tagID)
	if err != nil {
		return fmt.Errorf("linking tag %d to budget %d: %w", tagID, budgetID, err)
	}
	return nil
}

func (s *Store) DeleteBudgetTag(ctx context.Context, budgetID, tagID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM budget_tags WHERE budget_id = $1 AND tag_id = $2`, budgetID, tagID)
	if err != nil {
		return fmt.Errorf("unlinking tag %d from budget %d: %w", tagID, budgetID, err)
	}
	return nil
}

func (s *Store) BudgetTags(ctx context.Context, budgetID int64) ([]store.Tag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.name FROM tags t
		 JOIN budget_tags bt ON bt.tag_id = t.id
		 WHERE bt.budget_id = $1 ORDER BY t.id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("listing tags for budget %d: %w", budgetID, err)
	}
	return collectTags(rows)
}

// -------- Plaid access tokens --------

func (s *Store) InsertPlaidAccount(ctx context.Context, token string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO plaid_accounts (token) VALUES ($1) RETURNING id`, token).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting plaid account: %w", err)
	}
	return id, nil
}

func (s *Store) DeletePlaidAccount(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM plaid_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting plaid account %d: %w", id, err)
	}
	return nil
}

func (s *Store) PlaidAccount(ctx context.Context, id int64) (store.PlaidAccount, error) {
	var p store.PlaidAccount
	err := s.pool.QueryRow(ctx,
		`SELECT id, token FROM plaid_accounts WHERE id = $1`, id).Scan(&p.ID, &p.Token)
	if err != nil {
		return store.PlaidAccount{}, notFound(err)
	}
	return p, nil
}

func (s *Store) PlaidAccounts(ctx context.Context) ([]store.PlaidAccount, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, token FROM plaid_accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing plaid accounts: %w", err)
	}
	defer rows.Close()
	var out []store.PlaidAccount
	for rows.Next() {
		var p store.PlaidAccount
		if err := rows.Scan(&p.ID, &p.Token); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -------- Accounts --------

const accountColumns = `id, external_id, source, type, name, balance_cents, fingerprint, COALESCE(plaid_id, 0)`

func scanAccount(row pgx.Row) (store.Account, error) {
	var a store.Account
	err := row.Scan(&a.ID, &a.ExternalID, &a.Source, &a.Type, &a.Name,
		&a.BalanceCents, &a.Fingerprint, &a.PlaidID)
	return a, err
}

func (s *Store) AccountIDByFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM accounts WHERE fingerprint = $1`, fingerprint).Scan(&id)
	if err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

func (s *Store) InsertAccount(ctx context.Context, a store.Account) (int64, error) {
	var plaidID any
	if a.PlaidID != 0 {
		plaidID = a.PlaidID
	}
	// ON CONFLICT ... DO UPDATE with a no-op assignment so RETURNING yields
	// the existing id on a fingerprint collision.
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (external_id, source, type, name, balance_cents, fingerprint, plaid_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (fingerprint) DO UPDATE SET fingerprint = EXCLUDED.fingerprint
		 RETURNING id`,
		a.ExternalID, a.Source, a.Type, a.Name, a.BalanceCents, a.Fingerprint, plaidID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting account: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting account %d: %w", id, err)
	}
	return nil
}

func (s *Store) Account(ctx context.Context, id int64) (store.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return store.Account{}, notFound(err)
	}
	return a, nil
}

func (s *Store) AccountByExternalID(ctx context.Context, externalID string) (store.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE external_id = $1 ORDER BY id LIMIT 1`,
		externalID))
	if err != nil {
		return store.Account{}, notFound(err)
	}
	return a, nil
}

func (s *Store) Accounts(ctx context.Context) ([]store.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()
	var out []store.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// -------- Budget <-> transaction links --------

func (s *Store) InsertBudgetTransaction(ctx context.Context, budgetID, transactionID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO budget_transactions (budget_id, transaction_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		budgetID, transactionID)
	if err != nil {
		return fmt.Errorf("linking transaction %d to budget %d: %w", transactionID, budgetID, err)
	}
	return nil
}

func (s *Store) DeleteBudgetTransaction(ctx context.Context, budgetID, transactionID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM budget_transactions WHERE budget_id = $1 AND transaction_id = $2`,
		budgetID, transactionID)
	if err != nil {
		return fmt.Errorf("unlinking transaction %d from budget %d: %w", transactionID, budgetID, err)
	}
	return nil
}

func (s *Store) BudgetTransactions(ctx context.Context, budgetID int64) ([]store.TransactionView, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+viewColumns+` `+viewJoins+`
		 WHERE bt.budget_id = $1
		 ORDER BY t.occurred_at DESC, t.id DESC`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for budget %d: %w", budgetID, err)
	}
	return collectViews(rows)
}

func (s *Store) BudgetIDForTransaction(ctx context.Context, transactionID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT budget_id FROM budget_transactions WHERE transaction_id = $1 LIMIT 1`,
		transactionID).Scan(&id)
	if err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

var _ store.Store = (*Store)(nil)
