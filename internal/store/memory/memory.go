// Package memory is a mutex-guarded in-memory Store used by tests and by
// the server's dev mode. Semantics match the Postgres implementation,
// including fingerprint dedupe and window filtering.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sayeni/butty/internal/money"
	"github.com/sayeni/butty/internal/store"
)

type budgetTxLink struct {
	budgetID      int64
	transactionID int64
}

type budgetTagLink struct {
	budgetID int64
	tagID    int64
}

// Store implements store.Store in memory.
type Store struct {
	mu sync.RWMutex

	nextID int64

	budgets       map[int64]store.Budget
	transactions  map[int64]store.Transaction
	tags          map[int64]store.Tag
	plaidAccounts map[int64]store.PlaidAccount
	accounts      map[int64]store.Account

	budgetTxs  []budgetTxLink
	budgetTags []budgetTagLink
}

// New returns an empty store.
func New() *Store {
	return &Store{
		budgets:       make(map[int64]store.Budget),
		transactions:  make(map[int64]store.Transaction),
		tags:          make(map[int64]store.Tag),
		plaidAccounts: make(map[int64]store.PlaidAccount),
		accounts:      make(map[int64]store.Account),
	}
}

func (s *Store) nextSeq() int64 {
	s.nextID++
	return s.nextID
}

// -------- Budgets --------

func (s *Store) InsertBudget(_ context.Context, name string, allocatedCents int64, createdAt *time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := time.Now().UTC()
	if createdAt != nil {
		created = *createdAt
	}
	id := s.nextSeq()
	s.budgets[id] = store.Budget{
		ID:              id,
		Name:            name,
		AmountAllocated: allocatedCents,
		CreatedAt:       created,
	}
	return id, nil
}

func (s *Store) UpdateBudget(_ context.Context, b store.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.budgets[b.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Name = b.Name
	existing.AmountAllocated = b.AmountAllocated
	existing.AmountSpent = b.AmountSpent
	existing.Level = b.Level
	s.budgets[b.ID] = existing
	return nil
}

func (s *Store) DeleteBudget(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.budgets, id)
	links := s.budgetTxs[:0]
	for _, l := range s.budgetTxs {
		if l.budgetID != id {
			links = append(links, l)
		}
	}
	s.budgetTxs = links
	tagLinks := s.budgetTags[:0]
	for _, l := range s.budgetTags {
		if l.budgetID != id {
			tagLinks = append(tagLinks, l)
		}
	}
	s.budgetTags = tagLinks
	return nil
}

func (s *Store) Budget(_ context.Context, id int64) (store.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.budgets[id]
	if !ok {
		return store.Budget{}, store.ErrNotFound
	}
	b.AmountSpent = s.spentLocked(id)
	return b, nil
}

func (s *Store) FilterBudgets(_ context.Context, start, end time.Time) ([]store.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Budget
	for _, b := range s.budgets {
		if !b.CreatedAt.Before(start) && b.CreatedAt.Before(end) {
			b.AmountSpent = s.spentLocked(b.ID)
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Budgets(_ context.Context) ([]store.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		b.AmountSpent = s.spentLocked(b.ID)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// spentLocked sums the magnitude of OUT transactions linked to the budget.
func (s *Store) spentLocked(budgetID int64) int64 {
	var spent int64
	for _, l := range s.budgetTxs {
		if l.budgetID != budgetID {
			continue
		}
		tx, ok := s.transactions[l.transactionID]
		if !ok || tx.Direction != money.Out {
			continue
		}
		amount := tx.AmountCents
		if amount < 0 {
			amount = -amount
		}
		spent += amount
	}
	return spent
}

// -------- Transactions --------

func (s *Store) InsertTransaction(_ context.Context, tx store.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id := s.transactionIDByIdentityLocked(tx.Fingerprint, tx.ExternalID); id != 0 {
		return id, nil
	}
	id := s.nextSeq()
	tx.ID = id
	s.transactions[id] = tx
	return id, nil
}

func (s *Store) UpdateTransactionNote(_ context.Context, id int64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	tx.Note = note
	s.transactions[id] = tx
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.transactions, id)
	links := s.budgetTxs[:0]
	for _, l := range s.budgetTxs {
		if l.transactionID != id {
			links = append(links, l)
		}
	}
	s.budgetTxs = links
	return nil
}

func (s *Store) Transaction(_ context.Context, id int64) (store.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return store.Transaction{}, store.ErrNotFound
	}
	return tx, nil
}

func (s *Store) TransactionIDByIdentity(_ context.Context, fingerprint, externalID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id := s.transactionIDByIdentityLocked(fingerprint, externalID); id != 0 {
		return id, nil
	}
	return 0, store.ErrNotFound
}

func (s *Store) transactionIDByIdentityLocked(fingerprint, externalID string) int64 {
	for id, tx := range s.transactions {
		if fingerprint != "" && tx.Fingerprint == fingerprint {
			return id
		}
		if externalID != "" && tx.ExternalID == externalID {
			return id
		}
	}
	return 0
}

func (s *Store) Transactions(_ context.Context) ([]store.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.TransactionView, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, s.viewLocked(tx))
	}
	sortViewsByOccurredDesc(out)
	return out, nil
}

func (s *Store) FilterTransactions(_ context.Context, start, end time.Time) ([]store.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.TransactionView
	for _, tx := range s.transactions {
		if !tx.OccurredAt.Before(start) && tx.OccurredAt.Before(end) {
			out = append(out, s.viewLocked(tx))
		}
	}
	sortViewsByOccurredDesc(out)
	return out, nil
}

func (s *Store) viewLocked(tx store.Transaction) store.TransactionView {
	v := store.TransactionView{Transaction: tx}
	if acc, ok := s.accounts[tx.AccountID]; ok {
		v.AccountName = acc.Name
	}
	for _, l := range s.budgetTxs {
		if l.transactionID == tx.ID {
			v.BudgetID = l.budgetID
			if b, ok := s.budgets[l.budgetID]; ok {
				v.BudgetName = b.Name
			}
			break
		}
	}
	return v
}

func sortViewsByOccurredDesc(views []store.TransactionView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].OccurredAt.Equal(views[j].OccurredAt) {
			return views[i].ID > views[j].ID
		}
		return views[i].OccurredAt.After(views[j].OccurredAt)
	})
}

// -------- Tags --------

func (s *Store) InsertTag(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSeq()
	s.tags[id] = store.Tag{ID: id, Name: name}
	return id, nil
}

func (s *Store) UpdateTag(_ context.Context, t store.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[t.ID]; !ok {
		return store.ErrNotFound
	}
	s.tags[t.ID] = t
	return nil
}

func (s *Store) DeleteTag(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tags, id)
	links := s.budgetTags[:0]
	for _, l := range s.budgetTags {
		if l.tagID != id {
			links = append(links, l)
		}
	}
	s.budgetTags = links
	return nil
}

func (s *Store) Tag(_ context.Context, id int64) (store.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tags[id]
	if !ok {
		return store.Tag{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) Tags(_ context.Context) ([]store.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -------- Budget <-> tag links --------

func (s *Store) InsertBudgetTag(_ context.Context, budgetID, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.budgetTags {
		if l.budgetID == budgetID && l.tagID == tagID {
			return nil
		}
	}
	s.budgetTags = append(s.budgetTags, budgetTagLink{budgetID: budgetID, tagID: tagID})
	return nil
}

func (s *Store) DeleteBudgetTag(_ context.Context, budgetID, tagID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	links := s.budgetTags[:0]
	for _, l := range s.budgetTags {
		if !(l.budgetID == budgetID && l.tagID == tagID) {
			links = append(links, l)
		}
	}
	s.budgetTags = links
	return nil
}

func (s *Store) BudgetTags(_ context.Context, budgetID int64) ([]store.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Tag
	for _, l := range s.budgetTags {
		if l.budgetID != budgetID {
			continue
		}
		if t, ok := s.tags[l.tagID]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -------- Plaid access tokens --------

func (s *Store) InsertPlaidAccount(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSeq()
	s.plaidAccounts[id] = store.PlaidAccount{ID: id, Token: token}
	return id, nil
}

func (s *Store) DeletePlaidAccount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.plaidAccounts, id)
	return nil
}

func (s *Store) PlaidAccount(_ context.Context, id int64) (store.PlaidAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plaidAccounts[id]
	if !ok {
		return store.PlaidAccount{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) PlaidAccounts(_ context.Context) ([]store.PlaidAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.PlaidAccount, 0, len(s.plaidAccounts))
	for _, p := range s.plaidAccounts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -------- Accounts --------

func (s *Store) AccountIDByFingerprint(_ context.Context, fingerprint string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, a := range s.accounts {
		if a.Fingerprint == fingerprint {
			return id, nil
		}
	}
	return 0, store.ErrNotFound
}

func (s *Store) InsertAccount(_ context.Context, a store.Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.accounts {
		if existing.Fingerprint == a.Fingerprint {
			return id, nil
		}
	}
	id := s.nextSeq()
	a.ID = id
	s.accounts[id] = a
	return id, nil
}

func (s *Store) DeleteAccount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, id)
	return nil
}

func (s *Store) Account(_ context.Context, id int64) (store.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) AccountByExternalID(_ context.Context, externalID string) (store.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Re-linking can leave duplicates; lowest id wins, the data we care
	// about is identical across them.
	var best store.Account
	for _, a := range s.accounts {
		if a.ExternalID != externalID {
			continue
		}
		if best.ID == 0 || a.ID < best.ID {
			best = a
		}
	}
	if best.ID == 0 {
		return store.Account{}, store.ErrNotFound
	}
	return best, nil
}

func (s *Store) Accounts(_ context.Context) ([]store.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -------- Budget <-> transaction links --------

func (s *Store) InsertBudgetTransaction(_ context.Context, budgetID, transactionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.budgetTxs {
		if l.budgetID == budgetID && l.transactionID == transactionID {
			return nil
		}
	}
	s.budgetTxs = append(s.budgetTxs, budgetTxLink{budgetID: budgetID, transactionID: transactionID})
	return nil
}

func (s *Store) DeleteBudgetTransaction(_ context.Context, budgetID, transactionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	links := s.budgetTxs[:0]
	for _, l := range s.budgetTxs {
		if !(l.budgetID == budgetID && l.transactionID == transactionID) {
			links = append(links, l)
		}
	}
	s.budgetTxs = links
	return nil
}

func (s *Store) BudgetTransactions(_ context.Context, budgetID int64) ([]store.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.TransactionView
	for _, l := range s.budgetTxs {
		if l.budgetID != budgetID {
			continue
		}
		if tx, ok := s.transactions[l.transactionID]; ok {
			out = append(out, s.viewLocked(tx))
		}
	}
	sortViewsByOccurredDesc(out)
	return out, nil
}

func (s *Store) BudgetIDForTransaction(_ context.Context, transactionID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.budgetTxs {
		if l.transactionID == transactionID {
			return l.budgetID, nil
		}
	}
	return 0, store.ErrNotFound
}
