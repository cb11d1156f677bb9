package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/chain"
	"github.com/creatorhub/creator-ledger/internal/config"
	"github.com/creatorhub/creator-ledger/internal/ledger"
	"github.com/creatorhub/creator-ledger/internal/logger"
	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/provider"
	"github.com/creatorhub/creator-ledger/internal/repo"
	"github.com/creatorhub/creator-ledger/internal/scheduler"
	"github.com/creatorhub/creator-ledger/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Account{}, &model.Wallet{}, &model.DepositAddress{},
		&model.Transaction{}, &model.Webhook{}, &model.OutboxEvent{},
		&model.FreeOffer{}, &model.MonetaryOffer{}, &model.TokenGatedOffer{},
		&model.SubscriptionDetail{}, &model.JobLease{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	repository := repo.NewRepository(gdb, rdb, kw, log)
	book := ledger.New(repository, log)
	pay := provider.NewClient(cfg.Provider, log)
	oracle := chain.NewOracle(cfg.Oracle, log)

	reconciler := service.NewReconciler(repository, book, nil, cfg.Payments, log)
	subscriptions := service.NewSubscriptionService(repository, book, oracle, log)
	treasury := service.NewTreasuryService(repository, pay, cfg.Payments, log)

	sched := scheduler.New(repository, cfg.Jobs.JobTimeout, log)
	sched.Register(scheduler.Job{
		Name:     "webhook_drain",
		Interval: cfg.Jobs.WebhookDrainInterval,
		Run:      reconciler.Drain,
	})
	sched.Register(scheduler.Job{
		Name:     "monetary_renewals",
		Interval: cfg.Jobs.MonetaryRenewalInterval,
		Run:      subscriptions.RenewMonetary,
	})
	sched.Register(scheduler.Job{
		Name:     "token_gated_renewals",
		Interval: cfg.Jobs.TokenRenewalInterval,
		Run:      subscriptions.RenewTokenGated,
	})
	sched.Register(scheduler.Job{
		Name:     "fund_sweep",
		Interval: cfg.Jobs.FundSweepInterval,
		Run:      treasury.MoveFundsToMaster,
	})
	sched.Register(scheduler.Job{
		Name:     "deposit_addresses",
		Interval: cfg.Jobs.AddressSweepInterval,
		Run:      treasury.ProvisionDepositAddresses,
	})
	sched.Register(scheduler.Job{
		Name:     "outbox_publish",
		Interval: cfg.Jobs.OutboxPollInterval,
		Run: func(ctx context.Context) error {
			return publishOutbox(ctx, repository)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("creator-ledger worker starting")
	sched.Start(ctx)
}

// publishOutbox drains pending outbox rows to kafka. Events stay pending
// on publish failure and are retried next tick, so consumers must expect
// duplicates.
func publishOutbox(ctx context.Context, repository *repo.Repository) error {
	events, err := repository.PollOutbox(ctx, 100)
	if err != nil {
		return err
	}
	for _, evt := range events {
		if err := repository.PublishEvent(ctx, evt); err != nil {
			return err
		}
		if err := repository.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			return err
		}
	}
	return nil
}
