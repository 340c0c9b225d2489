// Package main runs the periodic mirror repair for every known scope.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockledger/internal/app"
	"stockledger/internal/replication"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if !cfg.Mirror.Enabled {
		log.Fatal("repair worker requires MIRROR_ENABLED=true")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open stores", "error", err)
	}
	defer a.Close()

	worker := NewRepairWorker(a, cfg.Mirror.RepairInterval, log)
	log.Infow("starting repair worker", "interval", cfg.Mirror.RepairInterval)
	worker.Run(ctx)
	log.Info("worker stopped")
}

// RepairWorker repairs every scope on a fixed interval.
type RepairWorker struct {
	app      *app.App
	interval time.Duration
	log      *logger.Logger
}

func NewRepairWorker(a *app.App, interval time.Duration, log *logger.Logger) *RepairWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RepairWorker{app: a, interval: interval, log: log.WithComponent("repair")}
}

// Run repairs once immediately, then on every tick until ctx is done.
func (w *RepairWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.repairAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.repairAll(ctx)
		}
	}
}

func (w *RepairWorker) repairAll(ctx context.Context) {
	scopes, err := w.app.PrimaryRows.ListScopes(ctx)
	if err != nil {
		w.log.Errorw("failed to list scopes", "error", err)
		return
	}

	var repaired, failed int
	for _, scope := range scopes {
		if ctx.Err() != nil {
			return
		}
		report, err := w.app.Mirror.Repair(ctx, scope)
		if err != nil {
			w.log.Errorw("repair failed", "scope", scope.Key(), "error", err)
			continue
		}
		repaired += countRepaired(report)
		failed += report.Failed()
	}

	w.log.Infow("repair pass finished",
		"scopes", len(scopes),
		"repaired", repaired,
		"failed", failed,
		"diagnostics", w.app.Mirror.Diagnostics().Total(),
	)
	w.app.LogStats(ctx)
}

func countRepaired(r *replication.RepairReport) int {
	n := 0
	for _, t := range r.Tables {
		n += t.Repaired
	}
	return n
}
