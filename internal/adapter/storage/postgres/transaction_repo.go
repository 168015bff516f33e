package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/money"
	"agent-payment-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository. Rows are the audit
// trail: approvals and denials both land here and are never updated.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, wallet_address, tx_type, status, gross, tax, vendor, vendor_id, detail, new_balance, created_at`

// Create inserts a decision record within the commit transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletAddress, t.Type, t.Status,
		int64(t.Gross), int64(t.Tax), int64(t.Vendor),
		t.VendorID, t.Detail, int64(t.NewBalance), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a decision record.
func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// ListRecent returns up to limit decisions, most recent first.
func (r *TransactionRepo) ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

// GetStats aggregates the full decision history.
func (r *TransactionRepo) GetStats(ctx context.Context) (*ports.LedgerStats, error) {
	query := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'APPROVED' AND tx_type = 'PAYMENT') AS approved,
		COUNT(*) FILTER (WHERE status = 'DENIED') AS denied,
		COUNT(*) FILTER (WHERE tx_type = 'DEPOSIT') AS deposits,
		COALESCE(SUM(gross) FILTER (WHERE status = 'APPROVED' AND tx_type = 'PAYMENT'), 0) AS gross_volume,
		COALESCE(SUM(tax) FILTER (WHERE status = 'APPROVED' AND tx_type = 'PAYMENT'), 0) AS tax_collected,
		COALESCE(SUM(gross) FILTER (WHERE status = 'APPROVED' AND tx_type = 'DEPOSIT'), 0) AS total_deposited
		FROM transactions`

	stats := &ports.LedgerStats{}
	var grossVolume, taxCollected, totalDeposited int64
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalTransactions, &stats.Approved, &stats.Denied, &stats.Deposits,
		&grossVolume, &taxCollected, &totalDeposited,
	)
	if err != nil {
		return nil, fmt.Errorf("get ledger stats: %w", err)
	}
	stats.GrossVolume = money.Amount(grossVolume)
	stats.TaxCollected = money.Amount(taxCollected)
	stats.TotalDeposited = money.Amount(totalDeposited)
	return stats, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	return scanTransactionRow(row)
}

func scanTransactionRow(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var gross, tax, vendor, newBalance int64
	err := row.Scan(
		&t.ID, &t.WalletAddress, &t.Type, &t.Status,
		&gross, &tax, &vendor, &t.VendorID, &t.Detail, &newBalance, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Gross = money.Amount(gross)
	t.Tax = money.Amount(tax)
	t.Vendor = money.Amount(vendor)
	t.NewBalance = money.Amount(newBalance)
	return t, nil
}
