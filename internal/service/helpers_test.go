package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/config"
	"github.com/creatorhub/creator-ledger/internal/logger"
	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/provider"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}

func testPayments() config.PaymentsConfig {
	return config.PaymentsConfig{
		MinimumDeposit:    decimal.RequireFromString("1.00"),
		MinimumWithdrawal: decimal.RequireFromString("5.00"),
		WithdrawalCut:     decimal.RequireFromString("0.9"),
	}
}

func newTestRepo(t *testing.T) *repo.Repository {
	// SQLite in-memory DB, one per test
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Account{}, &model.Wallet{}, &model.DepositAddress{},
		&model.Transaction{}, &model.Webhook{}, &model.OutboxEvent{},
		&model.FreeOffer{}, &model.MonetaryOffer{}, &model.TokenGatedOffer{},
		&model.SubscriptionDetail{}, &model.JobLease{},
	))
	return repo.NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger()))
}

func newTestRepoWithRedis(t *testing.T) (*repo.Repository, redismock.ClientMock) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Account{}, &model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{},
		&model.FreeOffer{},
	))
	rdb, mock := redismock.NewClientMock()
	return repo.NewRepository(db, rdb, &kafka.Writer{}, must(logger.NewLogger())), mock
}

// seedAccount creates an account with a wallet and an active free offer,
// mirroring what account creation does in production.
func seedAccount(t *testing.T, r *repo.Repository, moniker string, balance decimal.Decimal) (*model.Account, *model.Wallet) {
	ctx := context.Background()
	a := &model.Account{
		UID:       uuid.NewString(),
		Address:   "addr-" + uuid.NewString(),
		Email:     moniker + "@example.com",
		Moniker:   moniker,
		OfferType: model.OfferFree,
	}
	assert.NoError(t, r.CreateAccount(ctx, r.DB(ctx), a))
	w := &model.Wallet{AccountID: &a.ID, Balance: balance, ProviderID: "pw-" + uuid.NewString()}
	assert.NoError(t, r.CreateWallet(ctx, r.DB(ctx), w))
	assert.NoError(t, r.CreateFreeOffer(ctx, r.DB(ctx), &model.FreeOffer{
		CreatorID: &a.ID,
		Status:    model.OfferActive,
	}))
	return a, w
}

func countTransactions(t *testing.T, r *repo.Repository) int64 {
	var n int64
	assert.NoError(t, r.DB(context.Background()).Model(&model.Transaction{}).Count(&n).Error)
	return n
}

func walletBalance(t *testing.T, r *repo.Repository, walletID uint64) decimal.Decimal {
	w, err := r.GetWallet(context.Background(), walletID)
	assert.NoError(t, err)
	return w.Balance
}

type fakeTransfer struct {
	source      provider.Endpoint
	destination provider.Endpoint
	amount      decimal.Decimal
}

// fakeProvider records calls and serves canned custodial balances.
type fakeProvider struct {
	mu          sync.Mutex
	nextWallet  int
	balances    map[string]decimal.Decimal
	transfers   []fakeTransfer
	transferErr error
	addressErr  map[model.Chain]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{balances: map[string]decimal.Decimal{}, addressErr: map[model.Chain]error{}}
}

func (f *fakeProvider) CreateWallet(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWallet++
	return fmt.Sprintf("pw-%d", f.nextWallet), nil
}

func (f *fakeProvider) CreateAddress(_ context.Context, walletID string, chain model.Chain) (string, error) {
	if err := f.addressErr[chain]; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", walletID, chain), nil
}

func (f *fakeProvider) GetWalletInfo(_ context.Context, walletID string) (*provider.WalletInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &provider.WalletInfo{
		WalletID: walletID,
		Balances: []provider.Balance{{Currency: "USD", Amount: f.balances[walletID].String()}},
	}, nil
}

func (f *fakeProvider) Transfer(_ context.Context, source, destination provider.Endpoint, amount decimal.Decimal) (*provider.TransferReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers = append(f.transfers, fakeTransfer{source: source, destination: destination, amount: amount})
	return &provider.TransferReceipt{
		ID:     uuid.NewString(),
		Status: "pending",
		Raw:    json.RawMessage(`{"status":"pending"}`),
	}, nil
}

func (f *fakeProvider) MasterWalletID() string { return "master" }

// fakeOracle serves token balances keyed by holder address.
type fakeOracle struct {
	balances map[string]decimal.Decimal
	err      error
}

func (f *fakeOracle) TokenBalance(_ context.Context, address, _ string, _ int) (decimal.Decimal, bool, error) {
	if f.err != nil {
		return decimal.Zero, false, f.err
	}
	bal, ok := f.balances[address]
	return bal, ok, nil
}
