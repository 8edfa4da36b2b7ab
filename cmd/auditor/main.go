package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/audit"
	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/postgres"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "auditor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	serviceName := cfg.ServiceName + "-auditor"

	log, err := logging.New(logging.Config{
		ServiceName: serviceName,
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

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &audit.Service{
		Reviews:     &postgres.ReviewRepo{DB: db},
		Redis:       rdb,
		ServiceName: serviceName,
		Log:         log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroup, payments.TopicInconsistency, cfg.AuditWorkers, log.Named("consumer"))
	done := make(chan error, 1)
	go func() {
		log.Info("auditor consumer started",
			zap.String("group", cfg.AuditGroup),
			zap.String("topic", payments.TopicInconsistency),
			zap.Int("workers", cfg.AuditWorkers))
		done <- cons.Start(ctx, svc.HandleInconsistency)
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down consumer", zap.String("signal", s.String()))
		cancel()
		return <-done
	case err := <-done:
		return err
	}
}
