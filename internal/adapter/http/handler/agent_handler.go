package handler

import (
	"agent-payment-ledger/internal/adapter/http/dto"
	"agent-payment-ledger/internal/core/money"
	"agent-payment-ledger/internal/core/ports"
	"agent-payment-ledger/pkg/apperror"
	"agent-payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AgentHandler handles agent registration and listing endpoints.
type AgentHandler struct {
	registrySvc  ports.RegistryService
	reportingSvc ports.ReportingService
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(registrySvc ports.RegistryService, reportingSvc ports.ReportingService) *AgentHandler {
	return &AgentHandler{registrySvc: registrySvc, reportingSvc: reportingSvc}
}

// CreateAgent handles POST /api/v1/agents.
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	var req dto.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	svcReq := ports.CreateAgentRequest{
		Name:          req.Name,
		WalletAddress: req.WalletAddress,
	}
	if req.InitialBalance != nil {
		balance, err := money.FromFloat64(*req.InitialBalance)
		if err != nil {
			response.Error(c, apperror.ErrInvalidAmount())
			return
		}
		svcReq.InitialBalance = &balance
	}

	result, err := h.registrySvc.CreateAgent(c.Request.Context(), svcReq)
	if err != nil {
		response.Error(c, err)
		return
	}

	// The API key appears in this response only; it is stored hashed.
	response.Created(c, result)
}

// ListAgents handles GET /api/v1/agents.
func (h *AgentHandler) ListAgents(c *gin.Context) {
	agents, err := h.reportingSvc.ListAgents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"agents": agents,
		"count":  len(agents),
	})
}
