package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// IdempotencyRecord caches the full immutable result of the first execution
// of a logical operation. Created at most once per fingerprint, never mutated,
// never deleted from durable storage (audit requirement). ResponseJSON is the
// exact response replayed to retries, including for denials.
type IdempotencyRecord struct {
	Fingerprint   string    `json:"fingerprint"`
	WalletAddress string    `json:"wallet_address"`
	TransactionID string    `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// Fingerprint derives the deterministic key identifying one logical operation
// from the wallet address and the caller-supplied idempotency key.
func Fingerprint(walletAddress, idempotencyKey string) string {
	sum := sha256.Sum256([]byte(walletAddress + ":" + idempotencyKey))
	return hex.EncodeToString(sum[:])
}
