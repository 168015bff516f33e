package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/money"
	"agent-payment-ledger/internal/core/ports"
	"agent-payment-ledger/internal/core/ports/mocks"
	"agent-payment-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testWallet = "0xabcdef0123456789abcdef0123456789abcdef01"
const testKey = "order-2026-000001"

func testRules() Rules {
	taxRate, _ := money.ParseRate("0.10")
	periodLimit, _ := money.ParseAmount("50.00")
	initialBalance, _ := money.ParseAmount("500.00")
	return Rules{
		TaxRate:        taxRate,
		PeriodLimit:    periodLimit,
		InitialBalance: initialBalance,
		PeriodWindow:   24 * time.Hour,
		CacheTTL:       24 * time.Hour,
	}
}

type ledgerTestDeps struct {
	svc        *LedgerServiceImpl
	txRepo     *mocks.MockTransactionRepository
	walletRepo *mocks.MockWalletRepository
	idempRepo  *mocks.MockIdempotencyRepository
	idempCache *mocks.MockIdempotencyCache
	transactor *mocks.MockLedgerTransactor
	ctrl       *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		idempRepo:  mocks.NewMockIdempotencyRepository(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		transactor: mocks.NewMockLedgerTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(
		d.txRepo, d.walletRepo, d.idempRepo, d.idempCache,
		d.transactor, testRules(), zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func currentWallet(balance, spent money.Amount) *domain.Wallet {
	return &domain.Wallet{
		Address:     testWallet,
		Balance:     balance,
		PeriodSpent: spent,
		PeriodStart: time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// ==================== AuthorizePayment Tests ====================

func TestLedgerService_AuthorizePayment_Approved(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	fp := domain.Fingerprint(testWallet, testKey)

	req := ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(500), // $5.00
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	}

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.idempRepo.EXPECT().GetTx(ctx, tx, fp).Return(nil, nil)
	d.walletRepo.EXPECT().GetOrInitForUpdate(ctx, tx, testWallet, money.Amount(50000), gomock.Any()).
		Return(currentWallet(50000, 0), nil)
	// 500.00 - 5.00 = 495.00, spent 0 + 5.00
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, testWallet, money.Amount(49500), money.Amount(500), gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, fp, gomock.Any(), 24*time.Hour).Return(nil)

	result, err := d.svc.AuthorizePayment(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.DecisionApproved, result.Status)
	assert.Equal(t, money.Amount(49500), result.NewBalance)
	assert.Equal(t, money.Amount(50), result.TaxCollected)  // $0.50
	assert.Equal(t, money.Amount(450), result.VendorPaid)   // $4.50
	assert.Equal(t, "Payment successful. Tax withheld: $0.50", result.Detail)
	assert.Equal(t, testKey, result.IdempotencyKey)
	assert.NotEmpty(t, result.TransactionID)
}

func TestLedgerService_AuthorizePayment_DeniedOverLimit(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	fp := domain.Fingerprint(testWallet, testKey)

	req := ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(60000), // $600.00 > $50.00 limit
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	}

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.idempRepo.EXPECT().GetTx(ctx, tx, fp).Return(nil, nil)
	d.walletRepo.EXPECT().GetOrInitForUpdate(ctx, tx, testWallet, money.Amount(50000), gomock.Any()).
		Return(currentWallet(50000, 0), nil)
	// Denial persists unchanged balance and spend
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, testWallet, money.Amount(50000), money.Amount(0), gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, fp, gomock.Any(), 24*time.Hour).Return(nil)

	result, err := d.svc.AuthorizePayment(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.DecisionDenied, result.Status)
	assert.Equal(t, money.Amount(50000), result.NewBalance)
	assert.Equal(t, money.Amount(0), result.TaxCollected)
	assert.Equal(t, "Daily limit exceeded. Limit: $50.00, Spent: $0.00, Remaining: $50.00", result.Detail)
}

func TestLedgerService_AuthorizePayment_DeniedInsufficientBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	fp := domain.Fingerprint(testWallet, testKey)

	req := ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(1000), // $10.00, under the limit
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	}

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.idempRepo.EXPECT().GetTx(ctx, tx, fp).Return(nil, nil)
	d.walletRepo.EXPECT().GetOrInitForUpdate(ctx, tx, testWallet, money.Amount(50000), gomock.Any()).
		Return(currentWallet(300, 0), nil) // $3.00 left
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, testWallet, money.Amount(300), money.Amount(0), gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, fp, gomock.Any(), 24*time.Hour).Return(nil)

	result, err := d.svc.AuthorizePayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenied, result.Status)
	assert.Equal(t, "Insufficient balance. Current: $3.00, Requested: $10.00", result.Detail)
}

func TestLedgerService_AuthorizePayment_LimitCheckedBeforeBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	fp := domain.Fingerprint(testWallet, testKey)

	// Over limit AND over balance: limit reason wins.
	req := ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(10000), // $100.00
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	}

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.idempRepo.EXPECT().GetTx(ctx, tx, fp).Return(nil, nil)
	d.walletRepo.EXPECT().GetOrInitForUpdate(ctx, tx, testWallet, money.Amount(50000), gomock.Any()).
		Return(currentWallet(200, 4800), nil) // $2.00 balance, $48.00 spent
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, testWallet, money.Amount(200), money.Amount(4800), gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, fp, gomock.Any(), 24*time.Hour).Return(nil)

	result, err := d.svc.AuthorizePayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenied, result.Status)
	assert.Equal(t, "Daily limit exceeded. Limit: $50.00, Spent: $48.00, Remaining: $2.00", result.Detail)
}

func TestLedgerService_AuthorizePayment_Validation(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	valid := ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(500),
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	}

	tests := []struct {
		name     string
		mutate   func(*ports.PaymentRequest)
		wantCode string
	}{
		{"bad address", func(r *ports.PaymentRequest) { r.WalletAddress = "0xNOPE" }, "VAL_002"},
		{"uppercase hex rejected", func(r *ports.PaymentRequest) { r.WalletAddress = "0xABCDEF0123456789ABCDEF0123456789ABCDEF01" }, "VAL_002"},
		{"zero amount", func(r *ports.PaymentRequest) { r.Amount = 0 }, "VAL_003"},
		{"negative amount", func(r *ports.PaymentRequest) { r.Amount = -100 }, "VAL_003"},
		{"short idempotency key", func(r *ports.PaymentRequest) { r.IdempotencyKey = "short" }, "VAL_004"},
		{"missing vendor", func(r *ports.PaymentRequest) { r.Vendor = "" }, "VAL_005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			result, err := d.svc.AuthorizePayment(ctx, req)
			assert.Nil(t, result)
			assertAppError(t, err, tt.wantCode)
		})
	}
}

func TestLedgerService_AuthorizePayment_RedisReplay(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	fp := domain.Fingerprint(testWallet, testKey)

	stored := &ports.PaymentResult{
		Status:        domain.DecisionApproved,
		NewBalance:    money.Amount(49500),
		TaxCollected:  money.Amount(50),
		VendorPaid:    money.Amount(450),
		TransactionID: "tx_1a2b3c4d5e6f7a8b",
	}
	storedJSON, _ := json.Marshal(stored)

	d.idempCache.EXPECT().Get(ctx, fp).Return(storedJSON, nil)

	result, err := d.svc.AuthorizePayment(ctx, ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(500),
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	})
	require.NoError(t, err)
	assert.Equal(t, stored.TransactionID, result.TransactionID)
	assert.Equal(t, stored.NewBalance, result.NewBalance)
}

func TestLedgerService_AuthorizePayment_DurableReplay(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	fp := domain.Fingerprint(testWallet, testKey)

	stored := &ports.PaymentResult{
		Status:        domain.DecisionDenied,
		NewBalance:    money.Amount(50000),
		Detail:        "Daily limit exceeded. Limit: $50.00, Spent: $50.00, Remaining: $0.00",
		TransactionID: "tx_9f8e7d6c5b4a3210",
	}
	storedJSON, _ := json.Marshal(stored)

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(&domain.IdempotencyRecord{
		Fingerprint:  fp,
		ResponseJSON: storedJSON,
	}, nil)

	result, err := d.svc.AuthorizePayment(ctx, ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(500),
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	})
	require.NoError(t, err)
	// Denials replay too: same transaction id, no new decision.
	assert.Equal(t, domain.DecisionDenied, result.Status)
	assert.Equal(t, stored.TransactionID, result.TransactionID)
}

func TestLedgerService_AuthorizePayment_InTxReplay(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	fp := domain.Fingerprint(testWallet, testKey)

	stored := &ports.PaymentResult{
		Status:        domain.DecisionApproved,
		TransactionID: "tx_0011223344556677",
	}
	storedJSON, _ := json.Marshal(stored)

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.idempRepo.EXPECT().GetTx(ctx, tx, fp).Return(&domain.IdempotencyRecord{
		Fingerprint:  fp,
		ResponseJSON: storedJSON,
	}, nil)

	result, err := d.svc.AuthorizePayment(ctx, ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(500),
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	})
	require.NoError(t, err)
	assert.Equal(t, stored.TransactionID, result.TransactionID)
}

func TestLedgerService_AuthorizePayment_DuplicateFingerprintRace(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	fp := domain.Fingerprint(testWallet, testKey)

	winner := &ports.PaymentResult{
		Status:        domain.DecisionApproved,
		NewBalance:    money.Amount(49500),
		TransactionID: "tx_feedfacecafebeef",
	}
	winnerJSON, _ := json.Marshal(winner)

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.idempRepo.EXPECT().GetTx(ctx, tx, fp).Return(nil, nil)
	d.walletRepo.EXPECT().GetOrInitForUpdate(ctx, tx, testWallet, money.Amount(50000), gomock.Any()).
		Return(currentWallet(50000, 0), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, testWallet, money.Amount(49500), money.Amount(500), gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	// The concurrent request committed first; our insert loses.
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(ports.ErrDuplicateFingerprint)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(&domain.IdempotencyRecord{
		Fingerprint:  fp,
		ResponseJSON: winnerJSON,
	}, nil)

	result, err := d.svc.AuthorizePayment(ctx, ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(500),
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	})
	require.NoError(t, err)
	assert.Equal(t, winner.TransactionID, result.TransactionID)
}

func TestLedgerService_AuthorizePayment_PeriodRollover(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	fp := domain.Fingerprint(testWallet, testKey)

	// Wallet exhausted its limit yesterday; the stale period start triggers a
	// reset and the payment goes through.
	staleWallet := &domain.Wallet{
		Address:     testWallet,
		Balance:     money.Amount(40000),
		PeriodSpent: money.Amount(5000), // $50.00, at the cap
		PeriodStart: time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour),
	}

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.idempRepo.EXPECT().GetTx(ctx, tx, fp).Return(nil, nil)
	d.walletRepo.EXPECT().GetOrInitForUpdate(ctx, tx, testWallet, money.Amount(50000), gomock.Any()).
		Return(staleWallet, nil)
	// Spend counter reset, then $5.00 approved.
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, testWallet, money.Amount(39500), money.Amount(500), gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, fp, gomock.Any(), 24*time.Hour).Return(nil)

	result, err := d.svc.AuthorizePayment(ctx, ports.PaymentRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(500),
		Vendor:         "api.vendor.example",
		IdempotencyKey: testKey,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, result.Status)
}

// ==================== Deposit Tests ====================

func TestLedgerService_Deposit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := "deposit-2026-000001"
	fp := domain.Fingerprint(testWallet, key)

	req := ports.DepositRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(10000), // $100.00
		IdempotencyKey: key,
	}

	d.idempCache.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, fp).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.idempRepo.EXPECT().GetTx(ctx, tx, fp).Return(nil, nil)
	d.walletRepo.EXPECT().GetOrInitForUpdate(ctx, tx, testWallet, money.Amount(50000), gomock.Any()).
		Return(currentWallet(50000, 0), nil)
	// 500.00 + 100.00 = 600.00, spend counter untouched
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, testWallet, money.Amount(60000), money.Amount(0), gomock.Any()).Return(nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, fp, gomock.Any(), 24*time.Hour).Return(nil)

	result, err := d.svc.Deposit(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "SUCCESS", result.Status)
	assert.Equal(t, money.Amount(60000), result.NewBalance)
	assert.Equal(t, money.Amount(10000), result.AmountDeposited)
	assert.Equal(t, "Deposited $100.00 successfully", result.Detail)
}

func TestLedgerService_Deposit_Replay(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := "deposit-2026-000001"
	fp := domain.Fingerprint(testWallet, key)

	stored := &ports.DepositResult{
		Status:          "SUCCESS",
		NewBalance:      money.Amount(60000),
		AmountDeposited: money.Amount(10000),
		TransactionID:   "tx_aabbccddeeff0011",
	}
	storedJSON, _ := json.Marshal(stored)

	d.idempCache.EXPECT().Get(ctx, fp).Return(storedJSON, nil)

	// Replay must not credit again: balance stays 600.00.
	result, err := d.svc.Deposit(ctx, ports.DepositRequest{
		WalletAddress:  testWallet,
		Amount:         money.Amount(10000),
		IdempotencyKey: key,
	})
	require.NoError(t, err)
	assert.Equal(t, money.Amount(60000), result.NewBalance)
	assert.Equal(t, stored.TransactionID, result.TransactionID)
}

func TestLedgerService_Deposit_Validation(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()

	result, err := d.svc.Deposit(ctx, ports.DepositRequest{
		WalletAddress:  "not-an-address",
		Amount:         money.Amount(10000),
		IdempotencyKey: "deposit-2026-000001",
	})
	assert.Nil(t, result)
	assertAppError(t, err, "VAL_002")

	result, err = d.svc.Deposit(ctx, ports.DepositRequest{
		WalletAddress:  testWallet,
		Amount:         0,
		IdempotencyKey: "deposit-2026-000001",
	})
	assert.Nil(t, result)
	assertAppError(t, err, "VAL_003")
}

// ==================== Helper ====================

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
