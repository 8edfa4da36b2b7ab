package redisx

import "time"

const (
	// Acceptance token of a merchant: gateway:acceptance_token:{public_key} -> token
	KeyAcceptanceToken = "gateway:acceptance_token:%s"

	// Terminal transaction snapshot: tx:{transaction_id} -> transaction JSON
	KeyTransaction = "tx:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLAcceptanceToken = 1 * time.Hour
	TTLTransaction     = 5 * time.Minute
	TTLDedup           = 48 * time.Hour
)
