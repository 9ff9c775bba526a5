// Package plaid wraps the Plaid API behind a small interface so the service
// layer can be tested without network access.
package plaid

import (
	"context"
	"fmt"

	plaid "github.com/plaid/plaid-go/v27/plaid"
	"github.com/shopspring/decimal"

	"github.com/sayeni/butty/internal/money"
)

// Account is the subset of a Plaid account the backend cares about.
type Account struct {
	ExternalID    string
	Name          string
	OfficialName  string
	Type          string // plaid account type, e.g. "credit", "depository"
	Subtype       string
	Mask          string
	InstitutionID string
	BalanceCents  int64
}

// Transaction is one transaction from a sync page, already flattened.
type Transaction struct {
	ExternalID   string
	AccountID    string // plaid account id
	Name         string
	MerchantName string
	AmountCents  int64 // positive means money leaving a depository account
	Date         string
	Pending      bool
}

// SyncResult carries one full drain of the transactions/sync cursor.
type SyncResult struct {
	Added      []Transaction
	NextCursor string
}

// Client is what the service layer needs from Plaid.
type Client interface {
	LinkToken(ctx context.Context) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (string, error)
	Accounts(ctx context.Context, accessToken string) ([]Account, error)
	SyncTransactions(ctx context.Context, accessToken, cursor string) (SyncResult, error)
}

// API implements Client against the real Plaid API.
type API struct {
	client *plaid.APIClient
}

// environments maps the PLAID_ENV config value to a Plaid host.
var environments = map[string]plaid.Environment{
	"sandbox":    plaid.Sandbox,
	"production": plaid.Production,
}

// NewAPI builds a Plaid client. env is "sandbox" or "production".
func NewAPI(clientID, secret, env string) (*API, error) {
	host, ok := environments[env]
	if !ok {
		return nil, fmt.Errorf("unknown plaid environment %q", env)
	}
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	cfg.AddDefaultHeader("PLAID-SECRET", secret)
	cfg.UseEnvironment(host)
	return &API{client: plaid.NewAPIClient(cfg)}, nil
}

func (a *API) LinkToken(ctx context.Context) (string, error) {
	user := plaid.LinkTokenCreateRequestUser{ClientUserId: "butty"}
	req := plaid.NewLinkTokenCreateRequest("Butty", "en", []plaid.CountryCode{plaid.COUNTRYCODE_US}, user)
	req.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, _, err := a.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
	if err != nil {
		return "", fmt.Errorf("creating link token: %w", err)
	}
	return resp.GetLinkToken(), nil
}

func (a *API) ExchangePublicToken(ctx context.Context, publicToken string) (string, error) {
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := a.client.PlaidApi.ItemPublicTokenExchange(ctx).
		ItemPublicTokenExchangeRequest(*req).Execute()
	if err != nil {
		return "", fmt.Errorf("exchanging public token: %w", err)
	}
	return resp.GetAccessToken(), nil
}

func (a *API) Accounts(ctx context.Context, accessToken string) ([]Account, error) {
	req := plaid.NewAccountsGetRequest(accessToken)
	resp, _, err := a.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*req).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching accounts: %w", err)
	}

	institutionID := ""
	if id, ok := resp.Item.GetInstitutionIdOk(); ok && id != nil {
		institutionID = *id
	}

	out := make([]Account, 0, len(resp.Accounts))
	for _, acc := range resp.Accounts {
		mapped := Account{
			ExternalID:    acc.GetAccountId(),
			Name:          acc.GetName(),
			OfficialName:  acc.GetOfficialName(),
			Type:          string(acc.GetType()),
			Mask:          acc.GetMask(),
			InstitutionID: institutionID,
		}
		if sub, ok := acc.GetSubtypeOk(); ok && sub != nil {
			mapped.Subtype = string(*sub)
		}
		if cur, ok := acc.Balances.GetCurrentOk(); ok && cur != nil {
			mapped.BalanceCents = dollarsToCents(*cur)
		}
		out = append(out, mapped)
	}
	return out, nil
}

// SyncTransactions drains the cursor until has_more is false and returns
// every added transaction plus the cursor to persist for the next sync.
func (a *API) SyncTransactions(ctx context.Context, accessToken, cursor string) (SyncResult, error) {
	var result SyncResult
	result.NextCursor = cursor

	for {
		req := plaid.NewTransactionsSyncRequest(accessToken)
		if result.NextCursor != "" {
			req.SetCursor(result.NextCursor)
		}
		resp, _, err := a.client.PlaidApi.TransactionsSync(ctx).
			TransactionsSyncRequest(*req).Execute()
		if err != nil {
			return SyncResult{}, fmt.Errorf("syncing transactions: %w", err)
		}

		for _, tx := range resp.Added {
			result.Added = append(result.Added, Transaction{
				ExternalID:   tx.GetTransactionId(),
				AccountID:    tx.GetAccountId(),
				Name:         tx.GetName(),
				MerchantName: tx.GetMerchantName(),
				AmountCents:  dollarsToCents(tx.GetAmount()),
				Date:         tx.GetDate(),
				Pending:      tx.GetPending(),
			})
		}

		result.NextCursor = resp.GetNextCursor()
		if !resp.GetHasMore() {
			return result, nil
		}
	}
}

func dollarsToCents(dollars float64) int64 {
	return money.DollarsToCents(decimal.NewFromFloat(dollars))
}
