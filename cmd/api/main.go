package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	"github.com/ariefcatur/go-realtime-checkout/internal/gateway"
	"github.com/ariefcatur/go-realtime-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/postgres"
	"github.com/ariefcatur/go-realtime-checkout/internal/reconcile"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"github.com/ariefcatur/go-realtime-checkout/internal/settle"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "checkout-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateGateway(); err != nil {
		return err
	}

	log, err := logging.New(logging.Config{
		ServiceName: cfg.ServiceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return err
	}
	defer logging.Sync(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect %s: %w", config.MaskDSN(cfg.PostgresDSN), err)
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.EventsBuffer, log.Named("producer"))
	prod.Start(ctx)
	events := kafkax.NewEmitter(prod, log)

	// Provider
	client, err := gateway.New(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		PublicKey:    cfg.Gateway.PublicKey,
		PrivateKey:   cfg.Gateway.PrivateKey,
		IntegrityKey: cfg.Gateway.IntegrityKey,
		Timeout:      cfg.Gateway.Timeout,
	}, log, gateway.WithTokenStore(redisx.NewTokenStore(rdb, cfg.Gateway.PublicKey)))
	if err != nil {
		return err
	}
	gw := gateway.NewInstrumentedClient(cfg.Gateway.Provider, client, metrics.GatewayDuration)

	// Repos & use cases
	txs := &postgres.TransactionRepo{DB: db}
	products := &postgres.ProductRepo{DB: db}
	settler := settle.New(txs, products, events, log, cfg.ServiceName)
	orch := checkout.NewOrchestrator(products, txs, gw, settler, payments.UUIDReferences{}, cfg.Gateway.Currency, log)
	rec := reconcile.NewReconciler(txs, settler, cfg.Gateway.EventsSecret, log)
	sweeper := reconcile.NewSweeper(txs, gw, settler, reconcile.SweeperConfig{
		Interval:   cfg.SweepInterval,
		PendingTTL: cfg.PendingTTL,
		Batch:      cfg.SweepBatch,
	}, log)

	router := httpx.NewRouter(log.Named("http"), db.Ping, cfg.RequestTimeout())
	(&httpx.PaymentsHandler{
		Checkout:     orch,
		Transactions: txs,
		Catalog:      products,
		Provider:     gw,
		Cache:        redisx.NewTxCache(rdb),
		Log:          log.Named("http"),
	}).Register(router)
	(&httpx.WebhookHandler{
		Reconciler: rec,
		Provider:   cfg.Gateway.Provider,
		Log:        log.Named("http"),
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if err := sweeper.Run(ctx); err != nil {
			errCh <- fmt.Errorf("sweeper: %w", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	case runErr = <-errCh:
		log.Error("shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	cancel()          // stop sweeper and producer loop
	<-sweepDone
	prod.WaitClosed() // drain
	return runErr
}
