package postgres

import (
	"context"
	"errors"
	"fmt"

	"agent-payment-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AgentRepo implements ports.AgentRepository.
type AgentRepo struct {
	pool Pool
}

// NewAgentRepo creates a new AgentRepo.
func NewAgentRepo(pool Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// Create inserts a new agent.
func (r *AgentRepo) Create(ctx context.Context, a *domain.Agent) error {
	query := `INSERT INTO agents (id, name, wallet_address, api_key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, a.ID, a.Name, a.WalletAddress, a.APIKeyHash, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("agent wallet address taken: %w", err)
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetByID fetches an agent by its identifier.
func (r *AgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `SELECT id, name, wallet_address, api_key_hash, created_at FROM agents WHERE id = $1`

	a := &domain.Agent{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.WalletAddress, &a.APIKeyHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get agent by id: %w", err)
	}
	return a, nil
}

// List returns all agents ordered by creation time.
func (r *AgentRepo) List(ctx context.Context) ([]domain.Agent, error) {
	query := `SELECT id, name, wallet_address, api_key_hash, created_at FROM agents ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		a := domain.Agent{}
		if err := rows.Scan(&a.ID, &a.Name, &a.WalletAddress, &a.APIKeyHash, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return agents, nil
}
