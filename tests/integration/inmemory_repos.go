package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/money"
	"agent-payment-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[string]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[string]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[address]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetOrInitForUpdate(ctx context.Context, tx pgx.Tx, address string, initialBalance money.Amount, periodStart time.Time) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[address]
	if !ok {
		w = &domain.Wallet{
			Address:     address,
			Balance:     initialBalance,
			PeriodSpent: 0,
			PeriodStart: periodStart,
			CreatedAt:   time.Now().UTC(),
		}
		r.wallets[address] = w
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, address string, balance, periodSpent money.Amount, periodStart time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[address]
	if !ok {
		return fmt.Errorf("wallet %s not found", address)
	}
	w.Balance = balance
	w.PeriodSpent = periodSpent
	w.PeriodStart = periodStart
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Agent Repo ---

type inMemoryAgentRepo struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
}

func newInMemoryAgentRepo() *inMemoryAgentRepo {
	return &inMemoryAgentRepo{agents: make(map[string]*domain.Agent)}
}

func (r *inMemoryAgentRepo) Create(ctx context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.agents {
		if existing.WalletAddress == agent.WalletAddress {
			return fmt.Errorf("wallet address already taken")
		}
	}
	r.agents[agent.ID] = agent
	return nil
}

func (r *inMemoryAgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, nil
	}
	return a, nil
}

func (r *inMemoryAgentRepo) List(ctx context.Context) ([]domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions []*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *txn
	r.transactions = append(r.transactions, &cp)
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Transaction, 0, limit)
	for i := len(r.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, *r.transactions[i])
	}
	return result, nil
}

func (r *inMemoryTransactionRepo) GetStats(ctx context.Context) (*ports.LedgerStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &ports.LedgerStats{}
	for _, t := range r.transactions {
		stats.TotalTransactions++
		if t.Type == domain.TransactionTypeDeposit {
			stats.Deposits++
			stats.TotalDeposited += t.Gross
			continue
		}
		switch t.Status {
		case domain.DecisionApproved:
			stats.Approved++
			stats.GrossVolume += t.Gross
			stats.TaxCollected += t.Tax
		case domain.DecisionDenied:
			stats.Denied++
		}
	}
	return stats, nil
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.IdempotencyRecord
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[fingerprint]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

func (r *inMemoryIdempotencyRepo) GetTx(ctx context.Context, tx pgx.Tx, fingerprint string) (*domain.IdempotencyRecord, error) {
	return r.Get(ctx, fingerprint)
}

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, record *domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.Fingerprint]; exists {
		return ports.ErrDuplicateFingerprint
	}
	r.records[record.Fingerprint] = record
	return nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes atomic sections with a global mutex, standing
// in for per-wallet row locks. Begin blocks until the previous transaction
// commits or rolls back, which is exactly the contention shape the
// concurrency tests need.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &serialTx{release: &t.mu}, nil
}

// serialTx is a pgx.Tx that holds the transactor lock until finished. The
// service always Commits then defers Rollback, so release must be once-only.
type serialTx struct {
	release *sync.Mutex
	once    sync.Once
}

func (t *serialTx) done() {
	t.once.Do(t.release.Unlock)
}

func (t *serialTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *serialTx) Commit(ctx context.Context) error          { t.done(); return nil }
func (t *serialTx) Rollback(ctx context.Context) error        { t.done(); return nil }
func (t *serialTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *serialTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *serialTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *serialTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *serialTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *serialTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *serialTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *serialTx) Conn() *pgx.Conn { return nil }
