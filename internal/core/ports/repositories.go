package ports

import (
	"context"
	"errors"
	"time"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/money"

	"github.com/jackc/pgx/v5"
)

// ErrDuplicateFingerprint reports that an idempotency record with the same
// fingerprint was committed first by a concurrent request. The caller must
// fetch and replay the winner's record.
var ErrDuplicateFingerprint = errors.New("idempotency record already exists")

// WalletRepository defines persistence for wallet balances and spend
// counters. Methods accepting pgx.Tx run inside the atomic commit section
// under a per-wallet row lock.
type WalletRepository interface {
	// GetByAddress is a non-locking read for listing views; it may lag
	// in-flight commits. Returns nil, nil when the wallet does not exist.
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)

	// GetOrInitForUpdate returns the wallet locked for the duration of the
	// transaction, creating it with the given initial balance and a zeroed
	// spend counter on first use. Idempotent on address.
	GetOrInitForUpdate(ctx context.Context, tx pgx.Tx, address string, initialBalance money.Amount, periodStart time.Time) (*domain.Wallet, error)

	// UpdateBalance writes the post-decision balance and spend counter.
	UpdateBalance(ctx context.Context, tx pgx.Tx, address string, balance, periodSpent money.Amount, periodStart time.Time) error
}

// AgentRepository defines persistence for agent identities.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	List(ctx context.Context) ([]domain.Agent, error)
}

// TransactionRepository defines persistence for immutable decision records.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	// ListRecent returns up to limit decisions, most recent first.
	ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error)
	GetStats(ctx context.Context) (*LedgerStats, error)
}

// LedgerStats aggregates the decision history for the stats endpoint.
type LedgerStats struct {
	TotalTransactions int64
	Approved          int64
	Denied            int64
	Deposits          int64
	GrossVolume       money.Amount
	TaxCollected      money.Amount
	TotalDeposited    money.Amount
}

// IdempotencyRepository defines the durable idempotency record store.
// Records are written once and never mutated or deleted.
type IdempotencyRepository interface {
	// Get is the pure read used before entering the atomic section.
	Get(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error)
	// GetTx re-checks the fingerprint inside the atomic section.
	GetTx(ctx context.Context, tx pgx.Tx, fingerprint string) (*domain.IdempotencyRecord, error)
	// Create persists the record; a concurrent duplicate surfaces as
	// ErrDuplicateFingerprint.
	Create(ctx context.Context, tx pgx.Tx, record *domain.IdempotencyRecord) error
}

// LedgerTransactor provides the atomic commit boundary. Everything between
// Begin and Commit either applies fully or not at all.
type LedgerTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
