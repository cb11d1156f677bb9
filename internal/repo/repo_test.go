package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/logger"
	"github.com/creatorhub/creator-ledger/internal/model"
)

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Wallet{}, &model.Webhook{}, &model.JobLease{}, &model.DepositAddress{},
	))
	return NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger())), db
}

func TestUpdateWalletBalance_StaleVersion(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.Wallet{ID: 1, Balance: decimal.NewFromInt(100), ProviderID: "pw-1"})

	// first writer wins, bumping the version
	assert.NoError(t, r.UpdateWalletBalance(ctx, db, 1, decimal.NewFromInt(110), 0))

	// second writer still holds version 0 and must fail
	err := r.UpdateWalletBalance(ctx, db, 1, decimal.NewFromInt(120), 0)
	assert.ErrorIs(t, err, ErrOptimisticLock)

	var final model.Wallet
	assert.NoError(t, db.First(&final, 1).Error)
	assert.True(t, final.Balance.Equal(decimal.NewFromInt(110)))
	assert.EqualValues(t, 1, final.Version)
}

func TestAcquireLease(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	ok, err := r.AcquireLease(ctx, "renewals", "instance-a", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	// held elsewhere
	ok, err = r.AcquireLease(ctx, "renewals", "instance-b", time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)

	// reentrant for the holder
	ok, err = r.AcquireLease(ctx, "renewals", "instance-a", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	// a different job name is independent
	ok, err = r.AcquireLease(ctx, "fund_sweep", "instance-b", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireLease_StealExpired(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).Unix()
	db.Create(&model.JobLease{Name: "renewals", InstanceID: "instance-a", AcquiredAt: past, ExpiresAt: past})

	ok, err := r.AcquireLease(ctx, "renewals", "instance-b", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseLease(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	ok, _ := r.AcquireLease(ctx, "renewals", "instance-a", time.Minute)
	assert.True(t, ok)

	// only the holder can release
	assert.NoError(t, r.ReleaseLease(ctx, "renewals", "instance-b"))
	ok, _ = r.AcquireLease(ctx, "renewals", "instance-b", time.Minute)
	assert.False(t, ok)

	assert.NoError(t, r.ReleaseLease(ctx, "renewals", "instance-a"))
	ok, _ = r.AcquireLease(ctx, "renewals", "instance-b", time.Minute)
	assert.True(t, ok)
}

func TestCreateWebhook_Dedup(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	wh := func() *model.Webhook {
		return &model.Webhook{
			MessageID:        "msg-1",
			Status:           model.WebhookPending,
			NotificationType: model.WebhookTransfers,
			Payload:          `{}`,
		}
	}
	assert.NoError(t, r.CreateWebhook(ctx, wh()))
	assert.NoError(t, r.CreateWebhook(ctx, wh()))

	var n int64
	assert.NoError(t, db.Model(&model.Webhook{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestWalletsMissingDepositAddresses(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.Wallet{ID: 1, ProviderID: "pw-1"})
	db.Create(&model.Wallet{ID: 2, ProviderID: "pw-2"})

	// wallet 1 fully provisioned, wallet 2 partially
	for _, chain := range model.Chains {
		db.Create(&model.DepositAddress{WalletID: 1, Chain: chain, Address: fmt.Sprintf("w1-%s", chain)})
	}
	db.Create(&model.DepositAddress{WalletID: 2, Chain: model.ChainSolana, Address: "w2-SOL"})

	missing, err := r.WalletsMissingDepositAddresses(ctx, len(model.Chains))
	assert.NoError(t, err)
	assert.Len(t, missing, 1)
	assert.EqualValues(t, 2, missing[0].ID)
}
