// Package app wires configuration, database pools and services shared by the
// server, the repair worker and ledgerctl.
package app

import (
	"context"
	"fmt"

	"stockledger/internal/domain/cashflow"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/cashflow_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/mirror_repo"
	"stockledger/internal/replication"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	Primary     *postgres.Pool
	PrimaryTx   *postgres.TxManager
	MirrorPool  *postgres.Pool
	PrimaryRows *mirror_repo.Store

	Ledger   *ledger.Service
	Payments *ledger.PaymentService
	CashFlow *cashflow.Service

	// Mirror is nil when replication is disabled.
	Mirror *replication.Mirror
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	return log, nil
}

// Open connects to the primary store and, when enabled, to the mirror.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	poolCfg := postgres.DefaultPoolConfig(cfg.DB.URL)
	poolCfg.MaxConns = int32(cfg.DB.MaxConns)
	primary, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect primary: %w", err)
	}
	a.Primary = primary
	a.PrimaryTx = postgres.NewTxManager(primary, cfg.DB.StatementTimeout)
	a.PrimaryRows = mirror_repo.New(a.PrimaryTx)
	log.Info("primary database connection established")

	var notifier ledger.Notifier
	if cfg.Mirror.Enabled {
		mirrorCfg := postgres.DefaultPoolConfig(cfg.Mirror.URL)
		mirrorCfg.ApplicationName = "stockledger-mirror"
		mirrorCfg.MaxConns = int32(cfg.Mirror.Workers + 2)
		pool, err := postgres.NewPool(ctx, mirrorCfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect mirror: %w", err)
		}
		a.MirrorPool = pool
		target := mirror_repo.New(postgres.NewTxManager(pool, cfg.DB.StatementTimeout))

		a.Mirror = replication.New(a.PrimaryRows, target, replication.Config{
			Workers:         cfg.Mirror.Workers,
			QueueSize:       cfg.Mirror.QueueSize,
			Timeout:         cfg.Mirror.Timeout,
			DiagnosticsSize: cfg.Mirror.DiagnosticsSize,
		}, log)
		notifier = a.Mirror
		log.Infow("replication enabled",
			"workers", cfg.Mirror.Workers,
			"queue_size", cfg.Mirror.QueueSize,
		)
	}

	repo := ledger_repo.New(a.PrimaryTx)
	a.Ledger = ledger.NewService(repo, a.PrimaryTx, notifier)
	a.Payments = ledger.NewPaymentService(repo, a.PrimaryTx, notifier)
	a.CashFlow = cashflow.NewService(cashflow_repo.New(a.PrimaryTx), a.PrimaryTx)
	return a, nil
}

// HealthChecks returns the pools pinged by the readiness probe.
func (a *App) HealthChecks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{"primary": a.Primary}
	if a.MirrorPool != nil {
		checks["mirror"] = a.MirrorPool
	}
	return checks
}

// LogStats logs pool statistics of every open pool.
func (a *App) LogStats(ctx context.Context) {
	postgres.LogPoolStats(ctx, "primary", a.Primary.Pool)
	if a.MirrorPool != nil {
		postgres.LogPoolStats(ctx, "mirror", a.MirrorPool.Pool)
	}
}

// Close drains the replication queue, then closes the pools.
func (a *App) Close() {
	if a.Mirror != nil {
		a.Mirror.Close()
	}
	if a.MirrorPool != nil {
		a.MirrorPool.Close()
	}
	if a.Primary != nil {
		a.Primary.Close()
	}
}
