// Package main is the entry point for the stock-ledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockledger/internal/app"
	"stockledger/internal/domain/auth"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/pkg/config"
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

	ctx := context.Background()
	log.Info("starting stockledger server")

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open stores", "error", err)
	}
	defer a.Close()

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWT.Secret))

	router := v1.NewRouter(v1.RouterConfig{
		Logger:         log,
		TokenValidator: jwtService,
		Ledger:         a.Ledger,
		Payments:       a.Payments,
		CashFlow:       a.CashFlow,
		Mirror:         a.Mirror,
		HealthChecks:   a.HealthChecks(),
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr, "mirror", a.Mirror != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	a.LogStats(shutdownCtx)

	log.Info("server stopped")
}
