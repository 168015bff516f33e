package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"agent-payment-ledger/internal/adapter/http/dto"
	"agent-payment-ledger/internal/core/ports"
	"agent-payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReportHandler handles read-only audit and statistics endpoints.
type ReportHandler struct {
	reportingSvc ports.ReportingService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportingSvc ports.ReportingService) *ReportHandler {
	return &ReportHandler{reportingSvc: reportingSvc}
}

// ListTransactions handles GET /api/v1/transactions.
func (h *ReportHandler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	txns, err := h.reportingSvc.ListTransactions(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"transactions": txns,
		"count":        len(txns),
	})
}

// ExportTransactions handles GET /api/v1/transactions/export — streams the
// recent ledger as CSV.
func (h *ReportHandler) ExportTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if limit < 1 || limit > 5000 {
		limit = 500
	}

	filename := fmt.Sprintf("ledger-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := h.reportingSvc.ExportTransactionsCSV(c.Request.Context(), c.Writer, limit); err != nil {
		// Headers are already out; all we can do is log via the error path.
		_ = c.Error(err)
	}
}

// GetStats handles GET /api/v1/stats.
func (h *ReportHandler) GetStats(c *gin.Context) {
	stats, err := h.reportingSvc.GetStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.StatsResponse{
		TotalTransactions: stats.TotalTransactions,
		Approved:          stats.Approved,
		Denied:            stats.Denied,
		Deposits:          stats.Deposits,
		GrossVolume:       stats.GrossVolume.Float64(),
		TaxCollected:      stats.TaxCollected.Float64(),
		TotalDeposited:    stats.TotalDeposited.Float64(),
	})
}

// HealthCheck handles GET /health — deep health check verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
