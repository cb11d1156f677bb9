package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/logger"
	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}

func newTestLedger(t *testing.T) (*Ledger, *repo.Repository, context.Context) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Account{}, &model.Wallet{}))

	r := repo.NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
	return New(r, must(logger.NewLogger())), r, context.Background()
}

func seedWallet(t *testing.T, r *repo.Repository, balance decimal.Decimal, suspended bool) *model.Wallet {
	ctx := context.Background()
	a := &model.Account{
		UID:         uuid.NewString(),
		Address:     "addr-" + uuid.NewString(),
		IsSuspended: suspended,
	}
	assert.NoError(t, r.CreateAccount(ctx, r.DB(ctx), a))
	w := &model.Wallet{AccountID: &a.ID, Balance: balance, ProviderID: "pw-" + uuid.NewString()}
	assert.NoError(t, r.CreateWallet(ctx, r.DB(ctx), w))
	return w
}

func balanceOf(t *testing.T, r *repo.Repository, walletID uint64) decimal.Decimal {
	w, err := r.GetWallet(context.Background(), walletID)
	assert.NoError(t, err)
	return w.Balance
}

func TestCreditAndDebit(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	w := seedWallet(t, r, decimal.Zero, false)

	assert.NoError(t, l.Credit(ctx, w.ID, decimal.NewFromInt(100)))
	assert.NoError(t, l.Debit(ctx, w.ID, decimal.NewFromInt(30)))
	assert.True(t, balanceOf(t, r, w.ID).Equal(decimal.NewFromInt(70)))
}

func TestDebit_InsufficientBalance(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	w := seedWallet(t, r, decimal.NewFromInt(10), false)

	err := l.Debit(ctx, w.ID, decimal.NewFromInt(12))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, balanceOf(t, r, w.ID).Equal(decimal.NewFromInt(10)))
}

func TestDebit_ExactBalance(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	w := seedWallet(t, r, decimal.NewFromInt(10), false)

	assert.NoError(t, l.Debit(ctx, w.ID, decimal.NewFromInt(10)))
	assert.True(t, balanceOf(t, r, w.ID).IsZero())
}

func TestSuspendedAccountBlocksMutations(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	w := seedWallet(t, r, decimal.NewFromInt(50), true)

	assert.ErrorIs(t, l.Credit(ctx, w.ID, decimal.NewFromInt(10)), ErrAccountSuspended)
	assert.ErrorIs(t, l.Debit(ctx, w.ID, decimal.NewFromInt(10)), ErrAccountSuspended)
	assert.True(t, balanceOf(t, r, w.ID).Equal(decimal.NewFromInt(50)))
}

func TestInvalidAmounts(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	w := seedWallet(t, r, decimal.NewFromInt(50), false)

	assert.ErrorIs(t, l.Credit(ctx, w.ID, decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, l.Debit(ctx, w.ID, decimal.NewFromInt(-5)), ErrInvalidAmount)
}

func TestTransfer(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	from := seedWallet(t, r, decimal.NewFromInt(100), false)
	to := seedWallet(t, r, decimal.NewFromInt(5), false)

	assert.NoError(t, l.Transfer(ctx, from.ID, to.ID, decimal.NewFromInt(40)))
	assert.True(t, balanceOf(t, r, from.ID).Equal(decimal.NewFromInt(60)))
	assert.True(t, balanceOf(t, r, to.ID).Equal(decimal.NewFromInt(45)))
}

func TestTransfer_InsufficientSource(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	from := seedWallet(t, r, decimal.NewFromInt(10), false)
	to := seedWallet(t, r, decimal.Zero, false)

	err := l.Transfer(ctx, from.ID, to.ID, decimal.NewFromInt(40))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, balanceOf(t, r, from.ID).Equal(decimal.NewFromInt(10)))
	assert.True(t, balanceOf(t, r, to.ID).IsZero())
}

func TestTransfer_SuspendedRecipientStillReceives(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	from := seedWallet(t, r, decimal.NewFromInt(100), false)
	to := seedWallet(t, r, decimal.Zero, true)

	assert.NoError(t, l.Transfer(ctx, from.ID, to.ID, decimal.NewFromInt(40)))
	assert.True(t, balanceOf(t, r, to.ID).Equal(decimal.NewFromInt(40)))
}

func TestTransfer_SuspendedSourceBlocked(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	from := seedWallet(t, r, decimal.NewFromInt(100), true)
	to := seedWallet(t, r, decimal.Zero, false)

	err := l.Transfer(ctx, from.ID, to.ID, decimal.NewFromInt(40))
	assert.ErrorIs(t, err, ErrAccountSuspended)
	assert.True(t, balanceOf(t, r, to.ID).IsZero())
}

func TestTransfer_SelfRejected(t *testing.T) {
	l, r, ctx := newTestLedger(t)
	w := seedWallet(t, r, decimal.NewFromInt(100), false)

	assert.Error(t, l.Transfer(ctx, w.ID, w.ID, decimal.NewFromInt(10)))
}
