package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/ports"
	"agent-payment-ledger/pkg/apperror"
)

const defaultListLimit = 50

// reportingService implements ports.ReportingService. All reads are
// non-locking snapshots; they may lag in-flight commits.
type reportingService struct {
	txRepo     ports.TransactionRepository
	agentRepo  ports.AgentRepository
	walletRepo ports.WalletRepository
	rules      Rules
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	txRepo ports.TransactionRepository,
	agentRepo ports.AgentRepository,
	walletRepo ports.WalletRepository,
	rules Rules,
) ports.ReportingService {
	return &reportingService{
		txRepo:     txRepo,
		agentRepo:  agentRepo,
		walletRepo: walletRepo,
		rules:      rules,
	}
}

// ListAgents joins each agent with its wallet state. Agents whose wallet has
// never been touched report the configured initial balance.
func (s *reportingService) ListAgents(ctx context.Context) ([]ports.AgentSummary, error) {
	agents, err := s.agentRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	periodStart := time.Now().UTC().Truncate(s.rules.PeriodWindow)
	summaries := make([]ports.AgentSummary, 0, len(agents))
	for _, a := range agents {
		summary := ports.AgentSummary{
			AgentID:       a.ID,
			Name:          a.Name,
			WalletAddress: a.WalletAddress,
			Balance:       s.rules.InitialBalance,
			CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		}

		wallet, err := s.walletRepo.GetByAddress(ctx, a.WalletAddress)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if wallet != nil {
			summary.Balance = wallet.Balance
			if !wallet.RolloverDue(periodStart) {
				summary.PeriodSpent = wallet.PeriodSpent
			}
		}

		remaining := s.rules.PeriodLimit - summary.PeriodSpent
		if remaining < 0 {
			remaining = 0
		}
		summary.PeriodRemaining = remaining

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ListTransactions returns the most recent decisions, newest first.
func (s *reportingService) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	txns, err := s.txRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return txns, nil
}

// GetStats aggregates the full decision history.
func (s *reportingService) GetStats(ctx context.Context) (*ports.LedgerStats, error) {
	stats, err := s.txRepo.GetStats(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return stats, nil
}

// ExportTransactionsCSV streams the audit view as CSV.
func (s *reportingService) ExportTransactionsCSV(ctx context.Context, w io.Writer, limit int) error {
	txns, err := s.ListTransactions(ctx, limit)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"transaction_id", "wallet_address", "type", "status", "gross", "tax", "vendor", "vendor_id", "detail", "new_balance", "created_at"}
	if err := cw.Write(header); err != nil {
		return apperror.InternalError(fmt.Errorf("write csv header: %w", err))
	}

	for _, t := range txns {
		row := []string{
			t.ID,
			t.WalletAddress,
			string(t.Type),
			string(t.Status),
			t.Gross.String(),
			t.Tax.String(),
			t.Vendor.String(),
			t.VendorID,
			t.Detail,
			t.NewBalance.String(),
			t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return apperror.InternalError(fmt.Errorf("write csv row: %w", err))
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperror.InternalError(fmt.Errorf("flush csv: %w", err))
	}
	return nil
}
