package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// IntegritySignature is the lowercase hex SHA-256 of
// reference + amountInCents + currency + integrityKey.
func IntegritySignature(reference string, amountInCents int64, currency, integrityKey string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountInCents, 10) + currency + integrityKey))
	return hex.EncodeToString(sum[:])
}
