package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/config"
	"github.com/creatorhub/creator-ledger/internal/ledger"
	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/provider"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

// ErrBelowMinimumWithdrawal rejects withdrawals under the platform floor.
var ErrBelowMinimumWithdrawal = errors.New("amount below minimum withdrawal")

// WalletService exposes the synchronous money operations the request layer
// calls: balance reads, history, withdrawals and content purchases.
type WalletService struct {
	repo     *repo.Repository
	ledger   *ledger.Ledger
	provider ProviderAPI
	payments config.PaymentsConfig
	log      *zap.SugaredLogger
}

func NewWalletService(r *repo.Repository, l *ledger.Ledger, p ProviderAPI, payments config.PaymentsConfig, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, ledger: l, provider: p, payments: payments, log: logger}
}

// Balance returns the wallet balance, cache first.
func (s *WalletService) Balance(ctx context.Context, walletID uint64) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, walletID)
	if err == nil {
		return bal, nil
	}
	w, err := s.repo.GetWallet(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, walletID, w.Balance); err != nil {
		s.log.Warn(err)
	}
	return w.Balance, nil
}

// History fetches recent transactions for an account.
func (s *WalletService) History(ctx context.Context, accountID uint64, limit int, since time.Time) ([]model.Transaction, error) {
	return s.repo.TransactionsForAccount(ctx, accountID, limit, since)
}

// Withdraw pays out from the creator's balance to an on-chain address. The
// provider transfer goes out first; the local debit happens only once the
// provider accepted the instruction, so a provider outage leaves the
// balance untouched. The payout is the requested amount minus the platform
// cut; the webhook reconciler finalizes the pending transaction later.
func (s *WalletService) Withdraw(ctx context.Context, accountID uint64, amount decimal.Decimal, destination string, chain model.Chain) (*model.Transaction, error) {
	if amount.LessThan(s.payments.MinimumWithdrawal) {
		return nil, fmt.Errorf("minimum is %s: %w", s.payments.MinimumWithdrawal, ErrBelowMinimumWithdrawal)
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.repo.GetWalletByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if wallet.Balance.LessThan(amount) {
		return nil, fmt.Errorf("balance %s, attempted withdrawal %s: %w", wallet.Balance, amount, ledger.ErrInsufficientBalance)
	}

	payout := amount.Mul(s.payments.WithdrawalCut).RoundDown(2)
	receipt, err := s.provider.Transfer(
		ctx,
		provider.WalletEndpoint(s.provider.MasterWalletID()),
		provider.BlockchainEndpoint(destination, chain),
		payout,
	)
	if err != nil {
		return nil, fmt.Errorf("initiate withdrawal for account %d: %w", accountID, err)
	}

	txn := &model.Transaction{
		AccountID: &account.ID,
		Type:      model.TransactionDebit,
		Status:    model.TransactionPending,
		Amount:    amount,
		Reference: receipt.ID,
		Metadata:  string(receipt.Raw),
		Narration: fmt.Sprintf("You just withdrew %s USD from your wallet", amount),
	}
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.ledger.DebitTx(ctx, tx, wallet.ID, amount)
		if err != nil {
			return err
		}
		if err := s.repo.CreateTransaction(ctx, tx, txn); err != nil {
			return err
		}
		return appendEvent(ctx, s.repo, tx, "Wallet", w.ID, "Withdrawal", map[string]interface{}{
			"wallet_id": w.ID,
			"amount":    amount,
			"balance":   w.Balance,
			"reference": receipt.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// PurchaseContent moves amount from the subscriber to the creator and
// records the paired transaction rows, one atomic unit.
func (s *WalletService) PurchaseContent(ctx context.Context, creatorID, subscriberID uint64, amount decimal.Decimal) error {
	creator, err := s.repo.GetAccount(ctx, creatorID)
	if err != nil {
		return err
	}
	subscriber, err := s.repo.GetAccount(ctx, subscriberID)
	if err != nil {
		return err
	}
	creatorWallet, err := s.repo.GetWalletByAccount(ctx, creatorID)
	if err != nil {
		return err
	}
	subscriberWallet, err := s.repo.GetWalletByAccount(ctx, subscriberID)
	if err != nil {
		return err
	}

	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		from, to, err := s.ledger.TransferTx(ctx, tx, subscriberWallet.ID, creatorWallet.ID, amount)
		if err != nil {
			return err
		}
		err = createTransferPair(ctx, s.repo, tx, creator, subscriber, amount,
			fmt.Sprintf("@%s just paid %s USD for your content", subscriber.Moniker, amount),
			fmt.Sprintf("You just paid %s USD to view a content from @%s", amount, creator.Moniker),
		)
		if err != nil {
			return err
		}
		return appendEvent(ctx, s.repo, tx, "Wallet", from.ID, "ContentPurchase", map[string]interface{}{
			"from": from.ID, "to": to.ID, "amount": amount,
		})
	})
}
