package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OmRakhade/library-admin/internal/auth"
	"github.com/OmRakhade/library-admin/internal/config"
	"github.com/OmRakhade/library-admin/internal/db"
	"github.com/OmRakhade/library-admin/internal/events"
	"github.com/OmRakhade/library-admin/internal/httpapi"
	"github.com/OmRakhade/library-admin/internal/inventory"
	"github.com/OmRakhade/library-admin/internal/metrics"
	"github.com/OmRakhade/library-admin/internal/repo"
	"github.com/OmRakhade/library-admin/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Library service starting")

	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	catalogRepo := repo.NewCatalogRepository(database, log)
	ledgerRepo := repo.NewLedgerRepository(database, log)

	m := metrics.New()
	inventoryService := inventory.NewService(database, ledgerRepo, m, log)

	// Domain events are best effort: without a broker the API still serves.
	var publisher httpapi.EventPublisher
	log.Info("Connecting to RabbitMQ")
	if p, err := events.NewPublisher(cfg.RabbitMQURL, log); err != nil {
		log.Warn("RabbitMQ unavailable, domain events disabled", zap.Error(err))
	} else {
		publisher = p
		defer p.Close()
	}

	gate := auth.NewGate(cfg.IssuePatronOnly, log)
	handlers := httpapi.NewHandlers(database, catalogRepo, inventoryService, publisher, log)
	router := httpapi.NewRouter(handlers, gate, m, log, cfg.RequestTimeout)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
}
