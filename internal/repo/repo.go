package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorhub/creator-ledger/internal/model"
)

// ErrOptimisticLock is returned when a wallet row changed under us.
var ErrOptimisticLock = errors.New("optimistic lock conflict")

// Repository wraps every store the service layer touches: postgres rows,
// the redis balance cache and the kafka writer for outbox events.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetWalletForUpdate locks the wallet row for the duration of tx. The
// row-level lock is a postgres feature; the sqlite test databases rely on
// the version column alone.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, walletID uint64) (*model.Wallet, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var w model.Wallet
	if err := q.Where("id = ?", walletID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWalletBalance writes the new balance guarded by the version column.
func (r *Repository) UpdateWalletBalance(ctx context.Context, tx *gorm.DB, walletID uint64, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", walletID, oldVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return tx.WithContext(ctx).Create(w).Error
}

func (r *Repository) GetWallet(ctx context.Context, walletID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", walletID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) GetWalletByAccount(ctx context.Context, accountID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWalletByProviderID resolves the wallet a provider notification targets.
func (r *Repository) GetWalletByProviderID(ctx context.Context, tx *gorm.DB, providerID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).Where("provider_id = ?", providerID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// WalletsWithBalanceAtLeast lists wallets eligible for the fund sweep.
func (r *Repository) WalletsWithBalanceAtLeast(ctx context.Context, min decimal.Decimal) ([]model.Wallet, error) {
	var ws []model.Wallet
	err := r.db.WithContext(ctx).Where("balance >= ?", min).Order("id").Find(&ws).Error
	return ws, err
}

// WalletsMissingDepositAddresses lists wallets holding fewer than total
// deposit addresses.
func (r *Repository) WalletsMissingDepositAddresses(ctx context.Context, total int) ([]model.Wallet, error) {
	var ws []model.Wallet
	err := r.db.WithContext(ctx).
		Model(&model.Wallet{}).
		Select("wallet.*").
		Joins("LEFT JOIN deposit_address ON deposit_address.wallet_id = wallet.id").
		Group("wallet.id").
		Having("COUNT(deposit_address.id) < ?", total).
		Find(&ws).Error
	return ws, err
}

// DepositAddressChains returns the chains a wallet already has addresses on.
func (r *Repository) DepositAddressChains(ctx context.Context, walletID uint64) (map[model.Chain]bool, error) {
	var addrs []model.DepositAddress
	if err := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).Find(&addrs).Error; err != nil {
		return nil, err
	}
	chains := make(map[model.Chain]bool, len(addrs))
	for _, a := range addrs {
		chains[a.Chain] = true
	}
	return chains, nil
}

func (r *Repository) CreateDepositAddress(ctx context.Context, addr *model.DepositAddress) error {
	return r.db.WithContext(ctx).Create(addr).Error
}

// CreateTransaction inserts record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// GetTransactionByReference finds the transaction carrying the provider's
// transfer id.
func (r *Repository) GetTransactionByReference(ctx context.Context, tx *gorm.DB, reference string) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).Where("reference = ?", reference).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransactionStatus transitions a pending transaction to a terminal
// status and refreshes its metadata.
func (r *Repository) UpdateTransactionStatus(ctx context.Context, tx *gorm.DB, id uint64, status model.TransactionStatus, metadata string) error {
	return tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "metadata": metadata}).Error
}

// TransactionsForAccount fetches recent history, newest first.
func (r *Repository) TransactionsForAccount(ctx context.Context, accountID uint64, limit int, since time.Time) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND created_at >= ?", accountID, since).
		Order("created_at desc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, walletID uint64, bal decimal.Decimal) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%d", walletID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, walletID uint64) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, redis.Nil
	}
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%d", walletID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
