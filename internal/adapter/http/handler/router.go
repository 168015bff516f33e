package handler

import (
	"agent-payment-ledger/internal/adapter/http/middleware"
	redisStore "agent-payment-ledger/internal/adapter/storage/redis"
	"agent-payment-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	RegistrySvc    ports.RegistryService
	ReportingSvc   ports.ReportingService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	paymentHandler := NewPaymentHandler(deps.LedgerSvc)
	v1.POST("/payments", rl("payments"), paymentHandler.AuthorizePayment)
	v1.POST("/deposits", rl("deposits"), paymentHandler.Deposit)

	agentHandler := NewAgentHandler(deps.RegistrySvc, deps.ReportingSvc)
	agents := v1.Group("/agents")
	{
		agents.POST("", rl("agents"), agentHandler.CreateAgent)
		agents.GET("", rl("reports"), agentHandler.ListAgents)
	}

	reportHandler := NewReportHandler(deps.ReportingSvc)
	transactions := v1.Group("/transactions")
	{
		transactions.GET("", rl("reports"), reportHandler.ListTransactions)
		transactions.GET("/export", rl("reports"), reportHandler.ExportTransactions)
	}
	v1.GET("/stats", rl("reports"), reportHandler.GetStats)

	return r
}
