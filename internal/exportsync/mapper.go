package exportsync

import "github.com/sayeni/butty/internal/money"

// placeholderName is the display name substituted when a transaction
// references an account the source did not return. A defined degrade path,
// not an error.
const placeholderName = "Unknown Account"

// MapAccountGroups partitions transactions by owning account and converts
// each into its transport record. Pure and total: every input transaction
// lands in exactly one group, groups appear in first-appearance order, and
// transactions keep their input order within a group. Accounts missing from
// the lookup get the placeholder info.
func MapAccountGroups(transactions []Transaction, accounts []Account) []AccountGroup {
	infoByID := make(map[string]AccountInfo, len(accounts))
	for _, acc := range accounts {
		infoByID[acc.ID] = mapAccountInfo(acc)
	}

	var order []string
	grouped := make(map[string][]Record)
	for _, tx := range transactions {
		if _, seen := grouped[tx.AccountID]; !seen {
			order = append(order, tx.AccountID)
		}
		grouped[tx.AccountID] = append(grouped[tx.AccountID], mapRecord(tx))
	}

	groups := make([]AccountGroup, 0, len(order))
	for _, accountID := range order {
		info, ok := infoByID[accountID]
		if !ok {
			info = AccountInfo{ID: accountID, DisplayName: placeholderName}
		}
		groups = append(groups, AccountGroup{
			Account:      info,
			Transactions: grouped[accountID],
		})
	}
	return groups
}

func mapAccountInfo(acc Account) AccountInfo {
	return AccountInfo{
		ID:               acc.ID,
		DisplayName:      acc.DisplayName,
		AvailableBalance: acc.AvailableBalance,
		InstitutionName:  acc.InstitutionName,
		CardLast4:        acc.CardLast4,
	}
}

func mapRecord(tx Transaction) Record {
	name := tx.MerchantName
	if name == "" {
		name = tx.Description
	}

	direction := money.Out
	if tx.Indicator == Credit {
		direction = money.In
	}

	return Record{
		ID:        tx.ID,
		AccountID: tx.AccountID,
		Name:      name,
		Amount:    tx.Amount,
		Direction: direction,
		Date:      tx.Date,
	}
}
