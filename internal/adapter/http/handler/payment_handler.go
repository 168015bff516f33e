package handler

import (
	"agent-payment-ledger/internal/adapter/http/dto"
	"agent-payment-ledger/internal/core/money"
	"agent-payment-ledger/internal/core/ports"
	"agent-payment-ledger/pkg/apperror"
	"agent-payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler handles payment and deposit endpoints. Request bodies are
// passed to the service unsanitized: the idempotency key is replay identity
// and must arrive byte-for-byte.
type PaymentHandler struct {
	ledgerSvc ports.LedgerService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(ledgerSvc ports.LedgerService) *PaymentHandler {
	return &PaymentHandler{ledgerSvc: ledgerSvc}
}

// AuthorizePayment handles POST /api/v1/payments.
func (h *PaymentHandler) AuthorizePayment(c *gin.Context) {
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := money.FromFloat64(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	result, err := h.ledgerSvc.AuthorizePayment(c.Request.Context(), ports.PaymentRequest{
		WalletAddress:  req.WalletAddress,
		Amount:         amount,
		Vendor:         req.Vendor,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	// Denials are 200s too: the decision is the payload, not an error.
	response.OK(c, result)
}

// Deposit handles POST /api/v1/deposits.
func (h *PaymentHandler) Deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := money.FromFloat64(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	result, err := h.ledgerSvc.Deposit(c.Request.Context(), ports.DepositRequest{
		WalletAddress:  req.WalletAddress,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}
