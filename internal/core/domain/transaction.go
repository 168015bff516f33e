package domain

import (
	"encoding/hex"
	"time"

	"agent-payment-ledger/internal/core/money"

	"github.com/google/uuid"
)

// TransactionType is the kind of money movement a decision concerns.
type TransactionType string

const (
	TransactionTypePayment TransactionType = "PAYMENT"
	TransactionTypeDeposit TransactionType = "DEPOSIT"
)

// DecisionStatus is the terminal outcome of an authorization decision.
// Denials are normal, recorded, idempotent outcomes, not errors.
type DecisionStatus string

const (
	DecisionApproved DecisionStatus = "APPROVED"
	DecisionDenied   DecisionStatus = "DENIED"
)

// Transaction is the immutable record of one authorization decision.
// Approvals carry the tax/vendor split; denials carry zero payouts and the
// denial reason in Detail. Rows are written once and never mutated.
type Transaction struct {
	ID            string          `json:"transaction_id"`
	WalletAddress string          `json:"wallet_address"`
	Type          TransactionType `json:"transaction_type"`
	Status        DecisionStatus  `json:"status"`
	Gross         money.Amount    `json:"gross"`
	Tax           money.Amount    `json:"tax"`
	Vendor        money.Amount    `json:"vendor"`
	VendorID      string          `json:"vendor_id,omitempty"`
	Detail        string          `json:"detail"`
	NewBalance    money.Amount    `json:"new_balance"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsApproved reports whether the decision debited the wallet.
func (t *Transaction) IsApproved() bool {
	return t.Status == DecisionApproved
}

// NewTransactionID generates an identifier of the form "tx_<16 hex>".
// IDs are assigned at decision time and never reused across retries of the
// same fingerprint (retries replay the stored record instead).
func NewTransactionID() string {
	u := uuid.New()
	return "tx_" + hex.EncodeToString(u[:8])
}
