package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transactor implements ports.LedgerTransactor over a pgx pool. Each Begin
// opens a database transaction; the per-wallet FOR UPDATE lock taken inside
// it serializes conflicting commits without a process-level mutex.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin opens the atomic commit section.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin ledger transaction: %w", err)
	}
	return tx, nil
}
