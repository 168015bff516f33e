package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agent-payment-ledger/config"
	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/money"
	"agent-payment-ledger/internal/core/ports"
	"agent-payment-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Idempotency key bounds, part of the wire contract.
const (
	minIdempotencyKeyLen = 16
	maxIdempotencyKeyLen = 128
)

// Rules holds the parsed authorization policy. Config carries monetary values
// as decimal strings; parsing happens once at startup so a malformed value
// fails boot instead of a request.
type Rules struct {
	TaxRate        money.Rate
	PeriodLimit    money.Amount
	InitialBalance money.Amount
	PeriodWindow   time.Duration
	CacheTTL       time.Duration
}

// RulesFromConfig parses the ledger policy out of configuration.
func RulesFromConfig(cfg config.LedgerConfig) (Rules, error) {
	taxRate, err := money.ParseRate(cfg.TaxRate)
	if err != nil {
		return Rules{}, fmt.Errorf("parsing tax_rate %q: %w", cfg.TaxRate, err)
	}
	periodLimit, err := money.ParseAmount(cfg.PeriodLimit)
	if err != nil {
		return Rules{}, fmt.Errorf("parsing period_limit %q: %w", cfg.PeriodLimit, err)
	}
	initialBalance, err := money.ParseAmount(cfg.DefaultInitialBalance)
	if err != nil {
		return Rules{}, fmt.Errorf("parsing default_initial_balance %q: %w", cfg.DefaultInitialBalance, err)
	}
	if cfg.PeriodWindow <= 0 {
		return Rules{}, fmt.Errorf("period_window must be positive, got %s", cfg.PeriodWindow)
	}
	return Rules{
		TaxRate:        taxRate,
		PeriodLimit:    periodLimit,
		InitialBalance: initialBalance,
		PeriodWindow:   cfg.PeriodWindow,
		CacheTTL:       cfg.IdempotencyCacheTTL,
	}, nil
}

// LedgerServiceImpl implements ports.LedgerService: the spend decision engine
// with pessimistic per-wallet locking and two-layer idempotency.
type LedgerServiceImpl struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	transactor ports.LedgerTransactor
	rules      Rules
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.LedgerTransactor,
	rules Rules,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		txRepo:     txRepo,
		walletRepo: walletRepo,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		transactor: transactor,
		rules:      rules,
		log:        log,
	}
}

// periodStart returns the UTC boundary of the current spend window.
func (s *LedgerServiceImpl) periodStart(now time.Time) time.Time {
	return now.UTC().Truncate(s.rules.PeriodWindow)
}

func validIdempotencyKey(key string) bool {
	return len(key) >= minIdempotencyKeyLen && len(key) <= maxIdempotencyKeyLen
}

// AuthorizePayment decides APPROVE or DENY for a spend request and commits
// the outcome atomically. Denials are normal results, not errors; both
// outcomes are recorded and replayed verbatim for the same fingerprint.
func (s *LedgerServiceImpl) AuthorizePayment(ctx context.Context, req ports.PaymentRequest) (*ports.PaymentResult, error) {
	if !domain.ValidAddress(req.WalletAddress) {
		return nil, apperror.ErrInvalidAddress(req.WalletAddress)
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !validIdempotencyKey(req.IdempotencyKey) {
		return nil, apperror.ErrInvalidIdempotencyKey()
	}
	if req.Vendor == "" {
		return nil, apperror.ErrMissingVendor()
	}

	fp := domain.Fingerprint(req.WalletAddress, req.IdempotencyKey)

	// Layer 1: Redis fast path
	cached, err := s.idempCache.Get(ctx, fp)
	if err != nil {
		s.log.Warn().Err(err).Str("fingerprint", fp).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalPaymentResult(cached)
	}

	// Layer 2: durable idempotency record
	rec, err := s.idempRepo.Get(ctx, fp)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("db idempotency check: %w", err))
	}
	if rec != nil {
		return unmarshalPaymentResult(rec.ResponseJSON)
	}

	// Begin atomic commit section
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Re-check inside the tx: a racing request may have committed between the
	// pure read above and here.
	rec, err = s.idempRepo.GetTx(ctx, dbTx, fp)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("tx idempotency check: %w", err))
	}
	if rec != nil {
		return unmarshalPaymentResult(rec.ResponseJSON)
	}

	now := time.Now().UTC()
	periodStart := s.periodStart(now)

	// Lock-or-init wallet
	wallet, err := s.walletRepo.GetOrInitForUpdate(ctx, dbTx, req.WalletAddress, s.rules.InitialBalance, periodStart)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("lock wallet: %w", err))
	}

	// Lazy period rollover under the lock
	if wallet.RolloverDue(periodStart) {
		wallet.PeriodSpent = 0
		wallet.PeriodStart = periodStart
	}

	txn := &domain.Transaction{
		ID:            domain.NewTransactionID(),
		WalletAddress: req.WalletAddress,
		Type:          domain.TransactionTypePayment,
		Gross:         req.Amount,
		VendorID:      req.Vendor,
		CreatedAt:     now,
	}

	// Limit check strictly precedes the balance check: an over-limit request
	// from a broke wallet reports the limit reason.
	switch {
	case wallet.PeriodSpent+req.Amount > s.rules.PeriodLimit:
		remaining := s.rules.PeriodLimit - wallet.PeriodSpent
		if remaining < 0 {
			remaining = 0
		}
		txn.Status = domain.DecisionDenied
		txn.Detail = fmt.Sprintf("Daily limit exceeded. Limit: $%s, Spent: $%s, Remaining: $%s",
			s.rules.PeriodLimit, wallet.PeriodSpent, remaining)

	case wallet.Balance < req.Amount:
		txn.Status = domain.DecisionDenied
		txn.Detail = fmt.Sprintf("Insufficient balance. Current: $%s, Requested: $%s",
			wallet.Balance, req.Amount)

	default:
		tax, net, err := money.Split(req.Amount, s.rules.TaxRate)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("tax split: %w", err))
		}
		if tax+net != req.Amount {
			return nil, apperror.ErrPrecisionViolation(fmt.Errorf("split %s into %s + %s", req.Amount, tax, net))
		}
		wallet.Balance -= req.Amount
		wallet.PeriodSpent += req.Amount
		txn.Status = domain.DecisionApproved
		txn.Tax = tax
		txn.Vendor = net
		txn.Detail = fmt.Sprintf("Payment successful. Tax withheld: $%s", tax)
	}
	txn.NewBalance = wallet.Balance

	// Persist wallet state; denials still persist the rollover reset.
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.Address, wallet.Balance, wallet.PeriodSpent, wallet.PeriodStart); err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("update wallet: %w", err))
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("create transaction: %w", err))
	}

	result := &ports.PaymentResult{
		Status:         txn.Status,
		NewBalance:     wallet.Balance,
		TaxCollected:   txn.Tax,
		VendorPaid:     txn.Vendor,
		Detail:         txn.Detail,
		TransactionID:  txn.ID,
		IdempotencyKey: req.IdempotencyKey,
		Timestamp:      now.Format(time.RFC3339),
	}

	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}

	if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyRecord{
		Fingerprint:   fp,
		WalletAddress: req.WalletAddress,
		TransactionID: txn.ID,
		ResponseJSON:  respJSON,
		CreatedAt:     now,
	}); err != nil {
		if errors.Is(err, ports.ErrDuplicateFingerprint) {
			// A concurrent request with the same fingerprint committed first.
			// Discard our decision and replay the winner's.
			return s.replayWinner(ctx, dbTx, fp)
		}
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("save idempotency record: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("commit tx: %w", err))
	}

	// Post-commit: cache in Redis (best-effort)
	if err := s.idempCache.Set(ctx, fp, respJSON, s.rules.CacheTTL); err != nil {
		s.log.Warn().Err(err).Str("fingerprint", fp).Msg("failed to cache idempotency record in redis")
	}

	s.log.Info().
		Str("tx_id", txn.ID).
		Str("wallet", req.WalletAddress).
		Str("status", string(txn.Status)).
		Str("gross", req.Amount.String()).
		Msg("payment decision committed")

	return result, nil
}

// Deposit credits a wallet unconditionally with the same idempotency
// discipline as payments. Deposits are never denied.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, req ports.DepositRequest) (*ports.DepositResult, error) {
	if !domain.ValidAddress(req.WalletAddress) {
		return nil, apperror.ErrInvalidAddress(req.WalletAddress)
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !validIdempotencyKey(req.IdempotencyKey) {
		return nil, apperror.ErrInvalidIdempotencyKey()
	}

	fp := domain.Fingerprint(req.WalletAddress, req.IdempotencyKey)

	cached, err := s.idempCache.Get(ctx, fp)
	if err != nil {
		s.log.Warn().Err(err).Str("fingerprint", fp).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalDepositResult(cached)
	}

	rec, err := s.idempRepo.Get(ctx, fp)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("db idempotency check: %w", err))
	}
	if rec != nil {
		return unmarshalDepositResult(rec.ResponseJSON)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	rec, err = s.idempRepo.GetTx(ctx, dbTx, fp)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("tx idempotency check: %w", err))
	}
	if rec != nil {
		return unmarshalDepositResult(rec.ResponseJSON)
	}

	now := time.Now().UTC()
	periodStart := s.periodStart(now)

	wallet, err := s.walletRepo.GetOrInitForUpdate(ctx, dbTx, req.WalletAddress, s.rules.InitialBalance, periodStart)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("lock wallet: %w", err))
	}

	if wallet.RolloverDue(periodStart) {
		wallet.PeriodSpent = 0
		wallet.PeriodStart = periodStart
	}

	wallet.Balance += req.Amount

	txn := &domain.Transaction{
		ID:            domain.NewTransactionID(),
		WalletAddress: req.WalletAddress,
		Type:          domain.TransactionTypeDeposit,
		Status:        domain.DecisionApproved,
		Gross:         req.Amount,
		Detail:        fmt.Sprintf("Deposited $%s successfully", req.Amount),
		NewBalance:    wallet.Balance,
		CreatedAt:     now,
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.Address, wallet.Balance, wallet.PeriodSpent, wallet.PeriodStart); err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("update wallet: %w", err))
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("create transaction: %w", err))
	}

	result := &ports.DepositResult{
		Status:          "SUCCESS",
		NewBalance:      wallet.Balance,
		AmountDeposited: req.Amount,
		Detail:          txn.Detail,
		TransactionID:   txn.ID,
	}

	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}

	if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyRecord{
		Fingerprint:   fp,
		WalletAddress: req.WalletAddress,
		TransactionID: txn.ID,
		ResponseJSON:  respJSON,
		CreatedAt:     now,
	}); err != nil {
		if errors.Is(err, ports.ErrDuplicateFingerprint) {
			dbTx.Rollback(ctx) //nolint:errcheck
			winner, werr := s.idempRepo.Get(ctx, fp)
			if werr != nil || winner == nil {
				return nil, apperror.ErrStoreUnavailable(fmt.Errorf("fetch winning record: %w", werr))
			}
			return unmarshalDepositResult(winner.ResponseJSON)
		}
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("save idempotency record: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("commit tx: %w", err))
	}

	if err := s.idempCache.Set(ctx, fp, respJSON, s.rules.CacheTTL); err != nil {
		s.log.Warn().Err(err).Str("fingerprint", fp).Msg("failed to cache idempotency record in redis")
	}

	s.log.Info().
		Str("tx_id", txn.ID).
		Str("wallet", req.WalletAddress).
		Str("amount", req.Amount.String()).
		Msg("deposit committed")

	return result, nil
}

// replayWinner aborts the current tx and returns the record committed by the
// concurrent request that won the fingerprint race.
func (s *LedgerServiceImpl) replayWinner(ctx context.Context, dbTx pgx.Tx, fp string) (*ports.PaymentResult, error) {
	dbTx.Rollback(ctx) //nolint:errcheck
	winner, err := s.idempRepo.Get(ctx, fp)
	if err != nil || winner == nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("fetch winning record: %w", err))
	}
	return unmarshalPaymentResult(winner.ResponseJSON)
}

func unmarshalPaymentResult(data []byte) (*ports.PaymentResult, error) {
	result := &ports.PaymentResult{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal stored result: %w", err))
	}
	return result, nil
}

func unmarshalDepositResult(data []byte) (*ports.DepositResult, error) {
	result := &ports.DepositResult{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal stored result: %w", err))
	}
	return result, nil
}
