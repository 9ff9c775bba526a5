// Package fingerprint derives stable identities for accounts and transactions
// so re-linking an institution or replaying an export does not create
// duplicate rows.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize trims, lowercases, and collapses internal whitespace so that
// cosmetic differences in upstream names do not change identity.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Build returns a hex SHA-256 over the normalized parts. Part order matters:
// ("a","b") and ("b","a") are distinct identities.
func Build(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = Normalize(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}
