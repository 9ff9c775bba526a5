// Package exportsync implements the device-side export pipeline: it maps raw
// account and transaction records into the transport schema, serializes them
// with ISO-8601 timestamps, and delivers the snapshot to a configured backend
// in a single POST. The same wire types are decoded by the backend's ingest
// handler, so the schema lives here and nowhere else.
package exportsync

import (
	"time"

	"github.com/sayeni/butty/internal/money"
	"github.com/shopspring/decimal"
)

func init() {
	// The backend expects bare JSON numbers for amounts, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// CreditDebitIndicator is the two-valued flag the source framework attaches
// to every transaction.
type CreditDebitIndicator string

const (
	Credit CreditDebitIndicator = "credit"
	Debit  CreditDebitIndicator = "debit"
)

// Account is a source account record, read-only from our perspective.
type Account struct {
	ID               string           `json:"id"`
	DisplayName      string           `json:"display_name"`
	AvailableBalance *decimal.Decimal `json:"available_balance,omitempty"`
	InstitutionName  *string          `json:"institution_name,omitempty"`
	CardLast4        *string          `json:"card_last4,omitempty"`
}

// Transaction is a source transaction record. MerchantName is enrichment data
// and frequently empty; Description is the raw statement text.
type Transaction struct {
	ID           string               `json:"id"`
	AccountID    string               `json:"account_id"`
	MerchantName string               `json:"merchant_name,omitempty"`
	Description  string               `json:"description"`
	Amount       decimal.Decimal      `json:"amount"`
	Indicator    CreditDebitIndicator `json:"indicator"`
	Date         time.Time            `json:"date"`
}

// AccountInfo is the transport projection of an Account. Optional fields are
// nullable on the wire, not omitted.
type AccountInfo struct {
	ID               string           `json:"id"`
	DisplayName      string           `json:"display_name"`
	AvailableBalance *decimal.Decimal `json:"available_balance"`
	InstitutionName  *string          `json:"institution_name"`
	CardLast4        *string          `json:"card_last4"`
}

// Record is the transport projection of a Transaction. Date marshals as
// ISO-8601 via time.Time's RFC 3339 encoding.
type Record struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Direction money.Direction `json:"direction"`
	Date      time.Time       `json:"date"`
}

// AccountGroup pairs one account's info with its transactions in input order.
type AccountGroup struct {
	Account      AccountInfo `json:"account"`
	Transactions []Record    `json:"transactions"`
}

// TransactionCount sums transactions across groups; it backs the success
// status line.
func TransactionCount(groups []AccountGroup) int {
	var n int
	for _, g := range groups {
		n += len(g.Transactions)
	}
	return n
}
