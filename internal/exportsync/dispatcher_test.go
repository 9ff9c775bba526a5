package exportsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type stubSource struct {
	accounts []Account
	err      error
	calls    atomic.Int32
}

func (s *stubSource) Accounts(context.Context) ([]Account, error) {
	s.calls.Add(1)
	return s.accounts, s.err
}

func sampleSelection() []Transaction {
	return []Transaction{
		{ID: "T1", AccountID: "A1", Description: "Coffee", Amount: decimal.NewFromFloat(-4.5), Indicator: Debit, Date: time.Now()},
		{ID: "T2", AccountID: "A1", MerchantName: "Acme Corp", Description: "Payroll", Amount: decimal.NewFromInt(2000), Indicator: Credit, Date: time.Now()},
	}
}

func TestSyncSuccess(t *testing.T) {
	var received []AccountGroup
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	source := &stubSource{accounts: []Account{{ID: "A1", DisplayName: "Checking"}}}
	d := NewDispatcher(source, srv.URL, srv.Client())

	if err := d.Sync(context.Background(), sampleSelection()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if len(received) != 1 || len(received[0].Transactions) != 2 {
		t.Errorf("payload = %+v", received)
	}
	if got, want := d.Status(), "Synced 2 transactions"; got != want {
		t.Errorf("status = %q, want %q", got, want)
	}
	if d.Busy() {
		t.Error("busy flag must clear after success")
	}
}

func TestSyncEmptySelectionIsNoOp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	source := &stubSource{}
	d := NewDispatcher(source, srv.URL, srv.Client())

	if err := d.Sync(context.Background(), nil); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if hits.Load() != 0 {
		t.Error("empty selection must make zero network calls")
	}
	if source.calls.Load() != 0 {
		t.Error("empty selection must not touch the data source")
	}
	if d.Status() != "" {
		t.Errorf("status must stay unset, got %q", d.Status())
	}
	if d.Busy() {
		t.Error("busy must never be set for a no-op")
	}
}

func TestSyncInvalidBackendURL(t *testing.T) {
	tests := []string{
		"://nope",
		"not a url at all\x7f",
		"relative/path",
		"ftp://host/transactions",
		"http://",
	}
	for _, raw := range tests {
		source := &stubSource{accounts: []Account{{ID: "A1"}}}
		d := NewDispatcher(source, raw, nil)

		err := d.Sync(context.Background(), sampleSelection())
		if !errors.Is(err, ErrInvalidBackendURL) {
			t.Errorf("url %q: err = %v, want ErrInvalidBackendURL", raw, err)
		}
		if got := d.Status(); got != "Invalid backend URL" {
			t.Errorf("url %q: status = %q", raw, got)
		}
		if d.Busy() {
			t.Errorf("url %q: busy flag leaked", raw)
		}
	}
}

func TestSyncHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	source := &stubSource{accounts: []Account{{ID: "A1"}}}
	d := NewDispatcher(source, srv.URL, srv.Client())

	if err := d.Sync(context.Background(), sampleSelection()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if got, want := d.Status(), "Sync failed (HTTP 502)"; got != want {
		t.Errorf("status = %q, want %q", got, want)
	}
	if d.Busy() {
		t.Error("busy flag must clear after HTTP failure")
	}
}

func TestSyncTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	source := &stubSource{accounts: []Account{{ID: "A1"}}}
	d := NewDispatcher(source, srv.URL, nil)

	if err := d.Sync(context.Background(), sampleSelection()); err == nil {
		t.Fatal("expected transport error")
	}
	if d.Status() == "" || d.Status() == statusSyncing {
		t.Errorf("status = %q, want an error description", d.Status())
	}
	if d.Busy() {
		t.Error("busy flag must clear after transport failure")
	}
}

func TestSyncSourceFailure(t *testing.T) {
	source := &stubSource{err: errors.New("framework unavailable")}
	d := NewDispatcher(source, "http://localhost:1/", nil)

	if err := d.Sync(context.Background(), sampleSelection()); err == nil {
		t.Fatal("expected error from data source")
	}
	if got, want := d.Status(), "Sync error: framework unavailable"; got != want {
		t.Errorf("status = %q, want %q", got, want)
	}
	if d.Busy() {
		t.Error("busy flag must clear after source failure")
	}
}

func TestSyncStatusCodeBoundaries(t *testing.T) {
	for _, code := range []int{200, 204, 299} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		source := &stubSource{}
		d := NewDispatcher(source, srv.URL, srv.Client())
		if err := d.Sync(context.Background(), sampleSelection()); err != nil {
			t.Errorf("code %d should classify as success: %v", code, err)
		}
		srv.Close()
	}

	for _, code := range []int{300, 301, 404, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		source := &stubSource{}
		d := NewDispatcher(source, srv.URL, srv.Client())
		if err := d.Sync(context.Background(), sampleSelection()); err == nil {
			t.Errorf("code %d should classify as failure", code)
		}
		srv.Close()
	}
}
