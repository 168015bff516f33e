package ports

import (
	"context"
	"io"
	"time"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/money"
)

// IdempotencyCache is the bounded-TTL fast path for replay lookups. The
// durable store remains authoritative; cache misses fall through to it.
type IdempotencyCache interface {
	// Get returns the cached response JSON, or nil when absent.
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	Set(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error
}

// CredentialHasher produces and verifies one-way credential fingerprints.
// The raw credential is never stored in recoverable form.
type CredentialHasher interface {
	Hash(credential string) (string, error)
	Verify(credential string, hash string) (bool, error)
}

// --- Service Ports ---

// LedgerService is the authorization engine: it decides APPROVE/DENY against
// balance and period limits, applies the tax split, and commits balance
// mutations atomically with full idempotency on the (wallet, key) pair.
type LedgerService interface {
	AuthorizePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error)
}

// PaymentRequest holds validated input for a spend authorization.
type PaymentRequest struct {
	WalletAddress  string
	Amount         money.Amount
	Vendor         string
	IdempotencyKey string
}

// PaymentResult is the wire-shaped outcome of a payment decision. Replays of
// the same fingerprint return the stored result verbatim.
type PaymentResult struct {
	Status         domain.DecisionStatus `json:"status"`
	NewBalance     money.Amount          `json:"new_balance"`
	TaxCollected   money.Amount          `json:"tax_collected"`
	VendorPaid     money.Amount          `json:"vendor_paid"`
	Detail         string                `json:"detail"`
	TransactionID  string                `json:"transaction_id"`
	IdempotencyKey string                `json:"idempotency_key"`
	Timestamp      string                `json:"timestamp"`
}

// DepositRequest holds validated input for an unconditional credit.
type DepositRequest struct {
	WalletAddress  string
	Amount         money.Amount
	IdempotencyKey string
}

// DepositResult is the wire-shaped outcome of a deposit.
type DepositResult struct {
	Status          string       `json:"status"`
	NewBalance      money.Amount `json:"new_balance"`
	AmountDeposited money.Amount `json:"amount_deposited"`
	Detail          string       `json:"detail"`
	TransactionID   string       `json:"transaction_id"`
}

// RegistryService allocates agent identities and their wallets together.
type RegistryService interface {
	// CreateAgent generates the identity and credential, initializes the
	// wallet, and returns the raw credential exactly once. Duplicate calls
	// create distinct agents; identity creation is not a financial mutation.
	CreateAgent(ctx context.Context, req CreateAgentRequest) (*CreateAgentResult, error)
}

// CreateAgentRequest holds validated input for agent creation.
type CreateAgentRequest struct {
	Name           string
	WalletAddress  string        // empty = generate
	InitialBalance *money.Amount // nil = configured default
}

// CreateAgentResult is returned once at creation; APIKey is not recoverable
// afterwards.
type CreateAgentResult struct {
	AgentID       string       `json:"agent_id"`
	Name          string       `json:"name"`
	WalletAddress string       `json:"wallet_address"`
	APIKey        string       `json:"api_key"`
	Balance       money.Amount `json:"balance"`
	CreatedAt     string       `json:"created_at"`
}

// ReportingService serves read-only listing and audit views. These reads are
// not linearized with in-flight commits.
type ReportingService interface {
	ListAgents(ctx context.Context) ([]AgentSummary, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	GetStats(ctx context.Context) (*LedgerStats, error)
	ExportTransactionsCSV(ctx context.Context, w io.Writer, limit int) error
}

// AgentSummary is an agent joined with its wallet state for listing.
type AgentSummary struct {
	AgentID         string       `json:"agent_id"`
	Name            string       `json:"name"`
	WalletAddress   string       `json:"wallet_address"`
	Balance         money.Amount `json:"balance"`
	PeriodSpent     money.Amount `json:"period_spent"`
	PeriodRemaining money.Amount `json:"period_remaining"`
	CreatedAt       string       `json:"created_at"`
}
