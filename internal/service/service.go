// Package service implements the budgeting operations behind the HTTP API.
// It owns all domain rules: period windows, fingerprint identity, direction
// derivation and cents normalization. Handlers stay thin.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sayeni/butty/internal/exportsync"
	"github.com/sayeni/butty/internal/fingerprint"
	"github.com/sayeni/butty/internal/logger"
	"github.com/sayeni/butty/internal/money"
	"github.com/sayeni/butty/internal/plaid"
	"github.com/sayeni/butty/internal/store"
)

// ErrPeriodMismatch is returned when a transaction is assigned to a budget in
// a month it does not belong to.
var ErrPeriodMismatch = errors.New("transaction falls outside the selected month and year")

// ErrPlaidDisabled is returned from Plaid operations when no client is
// configured.
var ErrPlaidDisabled = errors.New("plaid integration is not configured")

// appleAccountName labels Apple Card accounts when the export carries no
// account metadata.
const appleAccountName = "Apple Card"

// Service wires the datastore and the Plaid client together.
type Service struct {
	store store.Store
	plaid plaid.Client // nil when Plaid is not configured
}

// New builds a Service. plaidClient may be nil.
func New(s store.Store, plaidClient plaid.Client) *Service {
	return &Service{store: s, plaid: plaidClient}
}

// monthWindow is the half-open [first of month, first of next month) range.
func monthWindow(month, year int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func transactionFingerprint(name string, amountCents int64, dir money.Direction, occurredAt time.Time) string {
	return fingerprint.Build(name, fmt.Sprintf("%d", amountCents), string(dir), occurredAt.Format(time.RFC3339))
}

// -------- Budgets --------

func (s *Service) CreateBudget(ctx context.Context, name string, allocated decimal.Decimal) (int64, error) {
	return s.store.InsertBudget(ctx, name, money.DollarsToCents(allocated), nil)
}

func (s *Service) DeleteBudget(ctx context.Context, id int64) error {
	return s.store.DeleteBudget(ctx, id)
}

func (s *Service) Budget(ctx context.Context, id int64) (store.Budget, error) {
	return s.store.Budget(ctx, id)
}

// Budgets lists the budgets created within the given month.
func (s *Service) Budgets(ctx context.Context, month, year int) ([]store.Budget, error) {
	start, end := monthWindow(month, year)
	return s.store.FilterBudgets(ctx, start, end)
}

// CopyBudgets creates this month's budgets from the previous month's,
// skipping names that already exist in the target month.
func (s *Service) CopyBudgets(ctx context.Context, fromMonth, fromYear, month, year int) error {
	past, err := s.Budgets(ctx, fromMonth, fromYear)
	if err != nil {
		return fmt.Errorf("loading source budgets: %w", err)
	}
	current, err := s.Budgets(ctx, month, year)
	if err != nil {
		return fmt.Errorf("loading target budgets: %w", err)
	}

	existing := make(map[string]struct{}, len(current))
	for _, b := range current {
		existing[b.Name] = struct{}{}
	}

	createdAt := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	for _, b := range past {
		if _, ok := existing[b.Name]; ok {
			continue
		}
		if _, err := s.store.InsertBudget(ctx, b.Name, b.AmountAllocated, &createdAt); err != nil {
			return fmt.Errorf("copying budget %q: %w", b.Name, err)
		}
	}
	return nil
}

func (s *Service) EditBudgetName(ctx context.Context, id int64, name string) error {
	b, err := s.store.Budget(ctx, id)
	if err != nil {
		return err
	}
	b.Name = name
	return s.store.UpdateBudget(ctx, b)
}

func (s *Service) EditBudgetAllocated(ctx context.Context, id int64, allocated decimal.Decimal) error {
	b, err := s.store.Budget(ctx, id)
	if err != nil {
		return err
	}
	b.AmountAllocated = money.DollarsToCents(allocated)
	return s.store.UpdateBudget(ctx, b)
}

func (s *Service) BudgetTransactions(ctx context.Context, budgetID int64) ([]store.TransactionView, error) {
	return s.store.BudgetTransactions(ctx, budgetID)
}

// -------- Transactions --------

// CreateTransaction records a manual expense. The amount is coerced positive
// and the direction is always OUT: manual entries model money spent.
func (s *Service) CreateTransaction(ctx context.Context, name string, amount decimal.Decimal, accountID int64, occurredAt time.Time) (int64, error) {
	cents := money.DollarsToCents(amount.Abs())
	fp := transactionFingerprint(name, cents, money.Out, occurredAt)
	return s.store.InsertTransaction(ctx, store.Transaction{
		Name:        name,
		AmountCents: cents,
		Direction:   money.Out,
		AccountID:   accountID,
		ExternalID:  "manual-" + uuid.NewString(),
		Fingerprint: fp,
		OccurredAt:  occurredAt,
	})
}

// CreateBudgetTransaction records a manual expense directly inside a budget.
func (s *Service) CreateBudgetTransaction(ctx context.Context, budgetID int64, name string, amount decimal.Decimal, accountID int64, occurredAt time.Time) (int64, error) {
	txID, err := s.CreateTransaction(ctx, name, amount, accountID, occurredAt)
	if err != nil {
		return 0, err
	}
	if err := s.store.InsertBudgetTransaction(ctx, budgetID, txID); err != nil {
		return 0, err
	}
	return txID, nil
}

// RecentTransactions lists the month's transactions, newest first.
func (s *Service) RecentTransactions(ctx context.Context, month, year int) ([]store.TransactionView, error) {
	start, end := monthWindow(month, year)
	return s.store.FilterTransactions(ctx, start, end)
}

func (s *Service) UpdateTransactionNote(ctx context.Context, id int64, note string) error {
	return s.store.UpdateTransactionNote(ctx, id, note)
}

// AssignTransactionToBudget links a transaction to a budget, rejecting the
// link when the transaction occurred outside the selected period.
func (s *Service) AssignTransactionToBudget(ctx context.Context, budgetID, transactionID int64, month, year int) error {
	tx, err := s.store.Transaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if int(tx.OccurredAt.Month()) != month || tx.OccurredAt.Year() != year {
		return ErrPeriodMismatch
	}
	return s.store.InsertBudgetTransaction(ctx, budgetID, transactionID)
}

// UnassignTransactionFromBudget removes the link. A zero budgetID asks the
// store which budget the transaction belongs to.
func (s *Service) UnassignTransactionFromBudget(ctx context.Context, budgetID, transactionID int64) error {
	if budgetID == 0 {
		var err error
		budgetID, err = s.store.BudgetIDForTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
	}
	return s.store.DeleteBudgetTransaction(ctx, budgetID, transactionID)
}

// -------- Apple Card ingest --------

// IngestAppleTransactions stores a grouped export payload. Each group's
// account is upserted once; transactions dedupe on external id, so replaying
// the same export is harmless. Returns the number of records processed.
func (s *Service) IngestAppleTransactions(ctx context.Context, groups []exportsync.AccountGroup) (int, error) {
	log := logger.FromContext(ctx)
	count := 0

	for _, group := range groups {
		name := group.Account.DisplayName
		if name == "" {
			name = appleAccountName
		}
		externalID := group.Account.ID
		var balanceCents int64
		if group.Account.AvailableBalance != nil {
			balanceCents = money.DollarsToCents(*group.Account.AvailableBalance)
		}

		accountID, err := s.store.InsertAccount(ctx, store.Account{
			ExternalID:   externalID,
			Source:       store.SourceApple,
			Type:         store.AccountCredit,
			Name:         name,
			BalanceCents: balanceCents,
			Fingerprint:  fingerprint.Build(string(store.SourceApple), externalID, name),
		})
		if err != nil {
			return count, fmt.Errorf("upserting apple account: %w", err)
		}

		for _, rec := range group.Transactions {
			cents := money.DollarsToCents(rec.Amount)
			dir := rec.Direction
			if !dir.Valid() {
				dir = money.Out
			}
			occurredAt := rec.Date
			_, err := s.store.InsertTransaction(ctx, store.Transaction{
				Name:        rec.Name,
				AmountCents: cents,
				Direction:   dir,
				AccountID:   accountID,
				ExternalID:  rec.ID,
				Fingerprint: transactionFingerprint(rec.Name, cents, dir, occurredAt),
				OccurredAt:  occurredAt,
			})
			if err != nil {
				return count, fmt.Errorf("storing transaction %q: %w", rec.ID, err)
			}
			count++
		}
	}

	log.Info().Int("count", count).Int("groups", len(groups)).Msg("ingested apple transactions")
	return count, nil
}

// AppleTransaction is the flat legacy ingest shape, kept for clients that
// predate the grouped export payload.
type AppleTransaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Direction money.Direction `json:"direction"`
	Date      time.Time       `json:"date"`
}

// GroupAppleTransactions normalizes the flat legacy payload into account
// groups so both ingest routes share one code path. First-appearance order
// of accounts is preserved.
func GroupAppleTransactions(flat []AppleTransaction) []exportsync.AccountGroup {
	var order []string
	grouped := make(map[string][]exportsync.Record)
	for _, tx := range flat {
		if _, ok := grouped[tx.AccountID]; !ok {
			order = append(order, tx.AccountID)
		}
		grouped[tx.AccountID] = append(grouped[tx.AccountID], exportsync.Record{
			ID:        tx.ID,
			AccountID: tx.AccountID,
			Name:      tx.Name,
			Amount:    tx.Amount,
			Direction: tx.Direction,
			Date:      tx.Date,
		})
	}

	groups := make([]exportsync.AccountGroup, 0, len(order))
	for _, accountID := range order {
		groups = append(groups, exportsync.AccountGroup{
			Account:      exportsync.AccountInfo{ID: accountID},
			Transactions: grouped[accountID],
		})
	}
	return groups
}

func parseRecordDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// -------- Tags --------

func (s *Service) CreateTag(ctx context.Context, name string) (int64, error) {
	return s.store.InsertTag(ctx, name)
}

// SearchTags matches the query as a case-insensitive substring of tag names.
func (s *Service) SearchTags(ctx context.Context, query string) ([]store.Tag, error) {
	tags, err := s.store.Tags(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []store.Tag
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t.Name), q) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) BudgetTags(ctx context.Context, budgetID int64) ([]store.Tag, error) {
	return s.store.BudgetTags(ctx, budgetID)
}

func (s *Service) AssignTagToBudget(ctx context.Context, budgetID, tagID int64) error {
	return s.store.InsertBudgetTag(ctx, budgetID, tagID)
}

func (s *Service) UnassignTagFromBudget(ctx context.Context, budgetID, tagID int64) error {
	return s.store.DeleteBudgetTag(ctx, budgetID, tagID)
}

// -------- Accounts --------

func (s *Service) Accounts(ctx context.Context) ([]store.Account, error) {
	return s.store.Accounts(ctx)
}

// -------- Plaid --------

var plaidTypeMap = map[string]store.AccountType{
	"credit":     store.AccountCredit,
	"depository": store.AccountDepository,
	"investment": store.AccountInvestment,
	"loan":       store.AccountLoan,
}

// LinkToken creates a Plaid Link token for the web linking flow.
func (s *Service) LinkToken(ctx context.Context) (string, error) {
	if s.plaid == nil {
		return "", ErrPlaidDisabled
	}
	return s.plaid.LinkToken(ctx)
}

// CreateAccountsByPlaid exchanges the public token and stores the discovered
// accounts. The access token is persisted only when at least one account is
// new: re-linking an already-known institution must not accumulate tokens.
func (s *Service) CreateAccountsByPlaid(ctx context.Context, publicToken string) error {
	if s.plaid == nil {
		return ErrPlaidDisabled
	}
	log := logger.FromContext(ctx)

	accessToken, err := s.plaid.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return err
	}
	accounts, err := s.plaid.Accounts(ctx, accessToken)
	if err != nil {
		return err
	}

	var fresh []plaid.Account
	for _, acc := range accounts {
		fp := accountFingerprint(acc)
		if _, err := s.store.AccountIDByFingerprint(ctx, fp); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		fresh = append(fresh, acc)
	}

	if len(fresh) == 0 {
		log.Info().Msg("plaid link discovered no new accounts, access token discarded")
		return nil
	}

	plaidID, err := s.store.InsertPlaidAccount(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("persisting access token: %w", err)
	}

	for _, acc := range fresh {
		accType, ok := plaidTypeMap[acc.Type]
		if !ok {
			accType = store.AccountDepository
		}
		_, err := s.store.InsertAccount(ctx, store.Account{
			ExternalID:   acc.ExternalID,
			Source:       store.SourcePlaid,
			Type:         accType,
			Name:         acc.Name,
			BalanceCents: acc.BalanceCents,
			Fingerprint:  accountFingerprint(acc),
			PlaidID:      plaidID,
		})
		if err != nil {
			return fmt.Errorf("storing account %q: %w", acc.Name, err)
		}
	}

	log.Info().Int("accounts", len(fresh)).Msg("linked plaid accounts")
	return nil
}

// accountFingerprint identifies an account across re-links. The official
// name is preferred because display names drift.
func accountFingerprint(acc plaid.Account) string {
	name := acc.OfficialName
	if name == "" {
		name = acc.Name
	}
	return fingerprint.Build(acc.InstitutionID, name, acc.Subtype, acc.Mask)
}

// SyncPlaidTransactions pulls transactions for every stored access token.
// Returns the number of transactions fetched (including already-known ones,
// which dedupe silently in the store).
func (s *Service) SyncPlaidTransactions(ctx context.Context) (int, error) {
	if s.plaid == nil {
		return 0, ErrPlaidDisabled
	}
	log := logger.FromContext(ctx)
	count := 0

	tokens, err := s.store.PlaidAccounts(ctx)
	if err != nil {
		return 0, err
	}

	for _, token := range tokens {
		result, err := s.plaid.SyncTransactions(ctx, token.Token, "")
		if err != nil {
			return count, fmt.Errorf("syncing plaid item %d: %w", token.ID, err)
		}

		for _, tx := range result.Added {
			name := tx.Name
			if tx.MerchantName != "" {
				name = tx.MerchantName
			}

			var accountID int64
			isCredit := false
			if acc, err := s.store.AccountByExternalID(ctx, tx.AccountID); err == nil {
				accountID = acc.ID
				isCredit = acc.Type == store.AccountCredit
			} else if !errors.Is(err, store.ErrNotFound) {
				return count, err
			}

			dir := money.DeriveDirection(tx.AmountCents, isCredit)
			occurredAt, err := parseRecordDate(tx.Date)
			if err != nil {
				return count, fmt.Errorf("parsing date for plaid transaction %q: %w", tx.ExternalID, err)
			}

			_, err = s.store.InsertTransaction(ctx, store.Transaction{
				Name:        name,
				AmountCents: tx.AmountCents,
				Direction:   dir,
				AccountID:   accountID,
				ExternalID:  tx.ExternalID,
				Fingerprint: transactionFingerprint(name, tx.AmountCents, dir, occurredAt),
				OccurredAt:  occurredAt,
			})
			if err != nil {
				return count, fmt.Errorf("storing plaid transaction %q: %w", tx.ExternalID, err)
			}
			count++
		}
	}

	log.Info().Int("count", count).Int("items", len(tokens)).Msg("synced plaid transactions")
	return count, nil
}
