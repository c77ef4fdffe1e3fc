package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/purchase-saga/internal/config"
	"github.com/sheikh-saqib/purchase-saga/internal/events/kafka"
	"github.com/sheikh-saqib/purchase-saga/internal/httpapi"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/issuance"
	"github.com/sheikh-saqib/purchase-saga/internal/ledger"
	"github.com/sheikh-saqib/purchase-saga/internal/logging"
	"github.com/sheikh-saqib/purchase-saga/internal/metrics"
	"github.com/sheikh-saqib/purchase-saga/internal/payment"
	"github.com/sheikh-saqib/purchase-saga/internal/saga"
	"github.com/sheikh-saqib/purchase-saga/internal/storage/memory"
	"github.com/sheikh-saqib/purchase-saga/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var ledgerStore interfaces.LedgerStore = memory.NewMemoryLedgerStore()
	var txStore interfaces.TransactionStore = memory.NewTransactionStore()

	if cfg.Database.URL != "" {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		ledgerStore = postgres.NewPostgresLedgerStore(db)
		txStore = postgres.NewTransactionStore(db)
		logger.Info("using postgres storage")
	} else {
		logger.Warn("DATABASE_URL not set, keeping transactions in memory")
	}

	wallets := memory.NewWalletDirectory()
	if cfg.Wallets.File != "" {
		if err := loadWallets(wallets, cfg.Wallets.File); err != nil {
			return err
		}
	}

	purse := ledger.NewLedger(ledgerStore, ledger.WithReservationTTL(cfg.Purse.ReservationTTL))
	products := issuance.NewRegistry(cfg.Issuance.CancelWindow, cfg.Issuance.NonCancellableSets...)
	payments := payment.NewRegistry()
	payments.Register(payment.SandboxServiceID, payment.NewSandbox(cfg.Payment.SandboxWebviewURL, cfg.Payment.SessionTTL))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := saga.Deps{
		Store:    txStore,
		Purse:    purse,
		Payments: payments,
		Issuer:   products,
		Wallets:  wallets,
		Metrics:  metrics.NewSagaMetrics(reg),
		Logger:   logger,
	}
	if cfg.Kafka.Enabled() {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers)
		defer publisher.Close()
		deps.Events = publisher
		logger.Info("publishing transaction events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	engine := saga.NewEngine(deps, saga.Config{
		CancelTTLMax:  cfg.Purchase.CancelTTLMax,
		DefaultLocale: cfg.Purchase.DefaultLocale,
		EventTopic:    cfg.Kafka.Topic,
	})

	api := httpapi.NewServer(engine, purse, logger, metrics.NewServerMetrics(reg), reg)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      api.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func loadWallets(dir *memory.WalletDirectory, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open wallets file: %w", err)
	}
	defer f.Close()
	return dir.Load(f)
}
