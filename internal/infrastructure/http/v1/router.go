// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/cashflow"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/replication"
	"stockledger/pkg/logger"
)

// RouterConfig holds the services exposed over HTTP.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// TokenValidator resolves bearer tokens to tenant scopes
	TokenValidator middleware.TokenValidator

	Ledger   *ledger.Service
	Payments *ledger.PaymentService
	CashFlow *cashflow.Service

	// Mirror is nil when replication is disabled.
	Mirror *replication.Mirror

	// HealthChecks are pinged by /health/ready.
	HealthChecks map[string]handlers.Pinger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.TokenValidator))

	base := handlers.NewBaseHandler()
	registerLedgerRoutes(v1, base, cfg)
	if cfg.CashFlow != nil {
		registerCashFlowRoutes(v1, base, cfg)
	}
	if cfg.Mirror != nil {
		registerReplicationRoutes(v1, base, cfg)
	}

	return router
}

func registerLedgerRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	movements := handlers.NewMovementHandler(base, cfg.Ledger)
	payments := handlers.NewPaymentHandler(base, cfg.Payments)

	RegisterCRUDRoutes(api.Group("/movements"), movements)
	api.GET("/movements/:id/payments", payments.ListForMovement)

	api.GET("/designations/:id/chain", movements.Chain)
	api.POST("/designations/:id/rebuild", movements.Rebuild)

	group := api.Group("/payments")
	group.POST("", payments.Record)
	group.PATCH("/:id", payments.Update)
	group.DELETE("/:id", payments.Delete)
}

func registerCashFlowRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewCashFlowHandler(base, cfg.CashFlow)
	api.GET("/cashflow", h.Get)
}

func registerReplicationRoutes(api *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewReplicationHandler(base, cfg.Mirror)
	group := api.Group("/replication")
	group.POST("/repair", h.Repair)
	group.GET("/diagnostics", h.Diagnostics)
}
