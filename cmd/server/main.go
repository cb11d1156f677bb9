package main

import (
	"context"
	"fmt"
	"net/http"

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
	"github.com/creatorhub/creator-ledger/internal/service"
	httptransport "github.com/creatorhub/creator-ledger/internal/transport/http"
)

func main() {
	// 1. env + config
	_ = godotenv.Load()
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
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

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo, ledger, provider, services
	repository := repo.NewRepository(gdb, rdb, kw, log)
	book := ledger.New(repository, log)
	pay := provider.NewClient(cfg.Provider, log)
	oracle := chain.NewOracle(cfg.Oracle, log)

	svcs := httptransport.Services{
		Accounts:      service.NewAccountService(repository, pay, log),
		Wallets:       service.NewWalletService(repository, book, pay, cfg.Payments, log),
		Subscriptions: service.NewSubscriptionService(repository, book, oracle, log),
		Reconciler:    service.NewReconciler(repository, book, nil, cfg.Payments, log),
	}

	// 7. gin router
	router := httptransport.NewRouter(svcs, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("creator-ledger api listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
