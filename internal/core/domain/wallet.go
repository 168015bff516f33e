package domain

import (
	"regexp"
	"time"

	"agent-payment-ledger/internal/core/money"
)

// AddressPattern is the wallet address format: "0x" followed by 40 lowercase
// hex characters (42 characters total).
var AddressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// Wallet holds an agent's spendable balance and its per-period spend counter.
// Balance never goes below zero; PeriodSpent never exceeds the configured
// period limit after a committed debit.
type Wallet struct {
	Address     string       `json:"address"`
	Balance     money.Amount `json:"balance"`
	PeriodSpent money.Amount `json:"period_spent"`
	PeriodStart time.Time    `json:"period_start"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ValidAddress reports whether addr matches the wallet address format.
func ValidAddress(addr string) bool {
	return AddressPattern.MatchString(addr)
}

// RolloverDue reports whether the wallet's spend period predates the given
// period boundary, meaning PeriodSpent must reset before the next decision.
func (w *Wallet) RolloverDue(periodStart time.Time) bool {
	return w.PeriodStart.Before(periodStart)
}
