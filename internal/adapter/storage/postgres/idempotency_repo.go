package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyRepo implements ports.IdempotencyRepository. The UNIQUE
// constraint on fingerprint is the arbiter when two requests race with the
// same key: exactly one insert commits, the loser gets
// ports.ErrDuplicateFingerprint and replays the winner's record.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

const idempotencyColumns = `fingerprint, wallet_address, transaction_id, response_json, created_at`

// Get is the pure read used before entering the atomic section.
func (r *IdempotencyRepo) Get(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error) {
	query := `SELECT ` + idempotencyColumns + ` FROM idempotency_records WHERE fingerprint = $1`
	return r.get(r.pool.QueryRow(ctx, query, fingerprint))
}

// GetTx re-checks the fingerprint inside the atomic section.
func (r *IdempotencyRepo) GetTx(ctx context.Context, tx pgx.Tx, fingerprint string) (*domain.IdempotencyRecord, error) {
	query := `SELECT ` + idempotencyColumns + ` FROM idempotency_records WHERE fingerprint = $1`
	return r.get(tx.QueryRow(ctx, query, fingerprint))
}

func (r *IdempotencyRepo) get(row pgx.Row) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{}
	err := row.Scan(&rec.Fingerprint, &rec.WalletAddress, &rec.TransactionID, &rec.ResponseJSON, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}

// Create persists the record within the commit transaction. A unique
// violation on fingerprint surfaces as ports.ErrDuplicateFingerprint.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error {
	query := `INSERT INTO idempotency_records (` + idempotencyColumns + `)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, rec.Fingerprint, rec.WalletAddress, rec.TransactionID, rec.ResponseJSON, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrDuplicateFingerprint
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
