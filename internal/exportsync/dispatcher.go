package exportsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sayeni/butty/internal/logger"
)

// Status strings surfaced to the user. The UI renders these verbatim.
const (
	statusSyncing    = "Syncing transactions…"
	statusInvalidURL = "Invalid backend URL"
)

// ErrInvalidBackendURL is returned when the configured URL cannot be used.
// The check happens before any network traffic.
var ErrInvalidBackendURL = errors.New("invalid backend URL")

// DataSource supplies the account records backing a sync. The transaction
// selection is passed per call, matching the picker flow where the user
// chooses transactions before triggering a sync.
type DataSource interface {
	Accounts(ctx context.Context) ([]Account, error)
}

// Dispatcher performs one-shot delivery of a mapped export to the backend.
// It owns the Busy/Status pair with single-writer discipline; reads are safe
// from any goroutine. It does not retry, batch, or queue: a failed sync is
// terminal and recovery is the user triggering another one.
type Dispatcher struct {
	source     DataSource
	client     *http.Client
	backendURL string

	mu     sync.Mutex
	busy   bool
	status string
}

// NewDispatcher builds a dispatcher posting to backendURL. client may be nil,
// in which case a default client with a conservative timeout is used.
func NewDispatcher(source DataSource, backendURL string, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{
		source:     source,
		client:     client,
		backendURL: backendURL,
	}
}

// Busy reports whether a sync is in flight. The trigger control is expected
// to disable itself while busy; a second concurrent Sync is not rejected here.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Status returns the last status line, empty before the first sync attempt.
func (d *Dispatcher) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Sync maps the selection, serializes it, and POSTs it to the backend. An
// empty selection is a guarded no-op: no busy flip, no status change, no
// network call. The busy flag is cleared on every exit path.
func (d *Dispatcher) Sync(ctx context.Context, selection []Transaction) error {
	if len(selection) == 0 {
		return nil
	}

	log := logger.FromContext(ctx)

	d.setBusy(true)
	d.setStatus(statusSyncing)
	defer d.setBusy(false)

	accounts, err := d.source.Accounts(ctx)
	if err != nil {
		d.setStatus(fmt.Sprintf("Sync error: %v", err))
		return fmt.Errorf("fetching accounts: %w", err)
	}

	groups := MapAccountGroups(selection, accounts)

	target, err := parseBackendURL(d.backendURL)
	if err != nil {
		d.setStatus(statusInvalidURL)
		return err
	}

	payload, err := json.Marshal(groups)
	if err != nil {
		d.setStatus(fmt.Sprintf("Sync error: %v", err))
		return fmt.Errorf("encoding export: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		d.setStatus(fmt.Sprintf("Sync error: %v", err))
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.setStatus(fmt.Sprintf("Sync error: %v", err))
		return fmt.Errorf("posting export: %w", err)
	}
	defer resp.Body.Close()
	// Response body is ignored by contract; drain it so the connection can
	// be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.setStatus(fmt.Sprintf("Sync failed (HTTP %d)", resp.StatusCode))
		return fmt.Errorf("backend returned HTTP %d", resp.StatusCode)
	}

	count := TransactionCount(groups)
	d.setStatus(fmt.Sprintf("Synced %d transactions", count))
	log.Info().
		Int("transactions", count).
		Int("accounts", len(groups)).
		Str("backend_url", target).
		Msg("Export delivered")
	return nil
}

func parseBackendURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidBackendURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidBackendURL
	}
	return u.String(), nil
}

func (d *Dispatcher) setBusy(b bool) {
	d.mu.Lock()
	d.busy = b
	d.mu.Unlock()
}

func (d *Dispatcher) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}
