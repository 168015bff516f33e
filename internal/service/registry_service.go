package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agent-payment-ledger/internal/core/domain"
	"agent-payment-ledger/internal/core/ports"
	"agent-payment-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// RegistryServiceImpl implements ports.RegistryService. Agent creation is an
// identity operation, not a financial mutation: no idempotency key, duplicate
// calls mint distinct agents.
type RegistryServiceImpl struct {
	agentRepo  ports.AgentRepository
	walletRepo ports.WalletRepository
	transactor ports.LedgerTransactor
	hasher     ports.CredentialHasher
	rules      Rules
	log        zerolog.Logger
}

// NewRegistryService creates a new RegistryServiceImpl.
func NewRegistryService(
	agentRepo ports.AgentRepository,
	walletRepo ports.WalletRepository,
	transactor ports.LedgerTransactor,
	hasher ports.CredentialHasher,
	rules Rules,
	log zerolog.Logger,
) *RegistryServiceImpl {
	return &RegistryServiceImpl{
		agentRepo:  agentRepo,
		walletRepo: walletRepo,
		transactor: transactor,
		hasher:     hasher,
		rules:      rules,
		log:        log,
	}
}

// CreateAgent mints an agent identity with its wallet. The raw API key is
// returned exactly once; only its Argon2id hash persists.
func (s *RegistryServiceImpl) CreateAgent(ctx context.Context, req ports.CreateAgentRequest) (*ports.CreateAgentResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("agent name is required")
	}

	address := strings.ToLower(strings.TrimSpace(req.WalletAddress))
	if address == "" {
		address = domain.NewWalletAddress()
	} else if !domain.ValidAddress(address) {
		return nil, apperror.ErrInvalidAddress(req.WalletAddress)
	}

	initialBalance := s.rules.InitialBalance
	if req.InitialBalance != nil {
		if *req.InitialBalance < 0 {
			return nil, apperror.ErrInvalidAmount()
		}
		initialBalance = *req.InitialBalance
	}

	apiKey := domain.NewAPIKey()
	keyHash, err := s.hasher.Hash(apiKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash api key: %w", err))
	}

	now := time.Now().UTC()
	agent := &domain.Agent{
		ID:            domain.NewAgentID(),
		Name:          name,
		WalletAddress: address,
		APIKeyHash:    keyHash,
		CreatedAt:     now,
	}

	if err := s.agentRepo.Create(ctx, agent); err != nil {
		if strings.Contains(err.Error(), "taken") {
			return nil, apperror.ErrAddressTaken(address)
		}
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("create agent: %w", err))
	}

	// Initialize the wallet through the same lock-or-init primitive the
	// decision path uses, so a later payment sees the same row.
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	periodStart := now.Truncate(s.rules.PeriodWindow)
	wallet, err := s.walletRepo.GetOrInitForUpdate(ctx, dbTx, address, initialBalance, periodStart)
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("init wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("agent_id", agent.ID).
		Str("wallet", address).
		Str("balance", wallet.Balance.String()).
		Msg("agent created")

	return &ports.CreateAgentResult{
		AgentID:       agent.ID,
		Name:          agent.Name,
		WalletAddress: address,
		APIKey:        apiKey,
		Balance:       wallet.Balance,
		CreatedAt:     now.Format(time.RFC3339),
	}, nil
}
