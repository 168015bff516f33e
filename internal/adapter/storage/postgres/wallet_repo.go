package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/money"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository. Balances and spend counters
// are stored as BIGINT cents; the per-wallet FOR UPDATE lock serializes
// conflicting commits.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `address, balance, period_spent, period_start, created_at, updated_at`

// GetByAddress fetches a wallet without locking. Listing views tolerate
// reads that lag in-flight commits.
func (r *WalletRepo) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by address: %w", err)
	}
	return w, nil
}

// GetOrInitForUpdate returns the wallet locked for the duration of the
// transaction, creating it on first use. The insert-then-lock sequence is
// race-free: ON CONFLICT DO NOTHING makes creation idempotent on address and
// the subsequent FOR UPDATE blocks on whichever row won.
func (r *WalletRepo) GetOrInitForUpdate(ctx context.Context, tx pgx.Tx, address string, initialBalance money.Amount, periodStart time.Time) (*domain.Wallet, error) {
	insert := `INSERT INTO wallets (address, balance, period_spent, period_start, created_at, updated_at)
		VALUES ($1, $2, 0, $3, NOW(), NOW())
		ON CONFLICT (address) DO NOTHING`

	if _, err := tx.Exec(ctx, insert, address, int64(initialBalance), periodStart); err != nil {
		return nil, fmt.Errorf("init wallet: %w", err)
	}

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1 FOR UPDATE`
	w, err := scanWallet(tx.QueryRow(ctx, query, address))
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

// UpdateBalance writes the post-decision balance and spend counter within a
// transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, address string, balance, periodSpent money.Amount, periodStart time.Time) error {
	query := `UPDATE wallets SET balance = $1, period_spent = $2, period_start = $3, updated_at = NOW() WHERE address = $4`

	tag, err := tx.Exec(ctx, query, int64(balance), int64(periodSpent), periodStart, address)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", address)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var balance, spent int64
	err := row.Scan(&w.Address, &balance, &spent, &w.PeriodStart, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Balance = money.Amount(balance)
	w.PeriodSpent = money.Amount(spent)
	return w, nil
}
