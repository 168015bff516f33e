package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Agent is an autonomous-agent identity bound 1:1 to a wallet. The raw API
// credential is returned exactly once at creation; only its Argon2id hash is
// stored.
type Agent struct {
	ID            string    `json:"agent_id"`
	Name          string    `json:"name"`
	WalletAddress string    `json:"wallet_address"`
	APIKeyHash    string    `json:"-"` // never expose
	CreatedAt     time.Time `json:"created_at"`
}

// NewAgentID generates an agent identifier of the form "agent_<16 hex>".
func NewAgentID() string {
	return "agent_" + hexID(16)
}

// NewAPIKey generates a raw API credential of the form "apl_<32 hex>".
func NewAPIKey() string {
	return "apl_" + hexID(32)
}

// NewWalletAddress generates a random wallet address in the 0x+40-hex format.
func NewWalletAddress() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to uuid
		// entropy rather than returning a zero address.
		u := uuid.New()
		copy(b, u[:])
		u = uuid.New()
		copy(b[16:], u[:4])
	}
	return "0x" + hex.EncodeToString(b)
}

// hexID returns the first n hex characters of a fresh UUID-derived string.
func hexID(n int) string {
	s := hex.EncodeToString(uuidBytes())
	for len(s) < n {
		s += hex.EncodeToString(uuidBytes())
	}
	return s[:n]
}

func uuidBytes() []byte {
	u := uuid.New()
	return u[:]
}
