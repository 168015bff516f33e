package dto

// PaymentRequest is the request body for a spend authorization. Amounts are
// decimal dollars on the wire; the handler converts to cents exactly.
type PaymentRequest struct {
	WalletAddress  string  `json:"wallet_address" binding:"required,wallet_addr"`
	Amount         float64 `json:"amount" binding:"required,gt=0"`
	Vendor         string  `json:"vendor" binding:"required,max=100"`
	IdempotencyKey string  `json:"idempotency_key" binding:"required,min=16,max=128"`
}

// DepositRequest is the request body for a wallet credit.
type DepositRequest struct {
	WalletAddress  string  `json:"wallet_address" binding:"required,wallet_addr"`
	Amount         float64 `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string  `json:"idempotency_key" binding:"required,min=16,max=128"`
}

// CreateAgentRequest is the request body for agent registration. Address and
// balance are optional; the registry generates or defaults them.
type CreateAgentRequest struct {
	Name           string   `json:"name" binding:"required,min=1,max=100"`
	WalletAddress  string   `json:"wallet_address" binding:"omitempty,wallet_addr"`
	InitialBalance *float64 `json:"initial_balance" binding:"omitempty,gte=0"`
}

// StatsResponse is the response for ledger-wide statistics.
type StatsResponse struct {
	TotalTransactions int64   `json:"total_transactions"`
	Approved          int64   `json:"approved"`
	Denied            int64   `json:"denied"`
	Deposits          int64   `json:"deposits"`
	GrossVolume       float64 `json:"gross_volume"`
	TaxCollected      float64 `json:"tax_collected"`
	TotalDeposited    float64 `json:"total_deposited"`
}
