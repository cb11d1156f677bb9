package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/config"
	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/provider"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

// TreasuryService consolidates custodial funds into the master wallet and
// keeps every wallet provisioned with a deposit address per chain. Both
// operations are periodic, and a failure on one wallet never blocks the
// rest of the batch.
type TreasuryService struct {
	repo     *repo.Repository
	provider ProviderAPI
	payments config.PaymentsConfig
	log      *zap.SugaredLogger
}

func NewTreasuryService(r *repo.Repository, p ProviderAPI, payments config.PaymentsConfig, logger *zap.SugaredLogger) *TreasuryService {
	return &TreasuryService{repo: r, provider: p, payments: payments, log: logger}
}

// MoveFundsToMaster sweeps each wallet holding at least the deposit
// minimum into the master wallet. The ledger balance is untouched; only
// the pending move_to_master transaction records the sweep, and the
// reconciler finalizes it when the provider confirms.
func (s *TreasuryService) MoveFundsToMaster(ctx context.Context) error {
	wallets, err := s.repo.WalletsWithBalanceAtLeast(ctx, s.payments.MinimumDeposit)
	if err != nil {
		return err
	}
	for i := range wallets {
		if err := s.sweepWallet(ctx, &wallets[i]); err != nil {
			s.log.Errorf("sweep wallet %d: %v", wallets[i].ID, err)
		}
	}
	return nil
}

func (s *TreasuryService) sweepWallet(ctx context.Context, w *model.Wallet) error {
	info, err := s.provider.GetWalletInfo(ctx, w.ProviderID)
	if err != nil {
		return err
	}
	held, ok := info.USDBalance()
	if !ok || held.LessThan(s.payments.MinimumDeposit) {
		return nil
	}

	receipt, err := s.provider.Transfer(ctx,
		provider.WalletEndpoint(w.ProviderID),
		provider.WalletEndpoint(s.provider.MasterWalletID()),
		held)
	if err != nil {
		return err
	}

	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		txn := &model.Transaction{
			AccountID: w.AccountID,
			Type:      model.TransactionMoveToMaster,
			Status:    model.TransactionPending,
			Amount:    held,
			Reference: receipt.ID,
			Metadata:  string(receipt.Raw),
			Narration: fmt.Sprintf("%s USDC moved to master wallet", held),
		}
		if err := s.repo.CreateTransaction(ctx, tx, txn); err != nil {
			return err
		}
		return appendEvent(ctx, s.repo, tx, "wallet", w.ID, "funds.swept", map[string]interface{}{
			"wallet_id": w.ID,
			"amount":    held.String(),
			"reference": receipt.ID,
		})
	})
}

// ProvisionDepositAddresses backfills missing per-chain deposit addresses.
// A wallet that fails on one chain still gets its remaining chains tried,
// and the next cycle picks up whatever is left.
func (s *TreasuryService) ProvisionDepositAddresses(ctx context.Context) error {
	wallets, err := s.repo.WalletsMissingDepositAddresses(ctx, len(model.Chains))
	if err != nil {
		return err
	}
	for i := range wallets {
		if err := s.provisionWallet(ctx, &wallets[i]); err != nil {
			s.log.Errorf("provision wallet %d: %v", wallets[i].ID, err)
		}
	}
	return nil
}

func (s *TreasuryService) provisionWallet(ctx context.Context, w *model.Wallet) error {
	have, err := s.repo.DepositAddressChains(ctx, w.ID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, chain := range model.Chains {
		if have[chain] {
			continue
		}
		address, err := s.provider.CreateAddress(ctx, w.ProviderID, chain)
		if err != nil {
			s.log.Warnf("wallet %d chain %s: %v", w.ID, chain, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.repo.CreateDepositAddress(ctx, &model.DepositAddress{
			WalletID: w.ID,
			Chain:    chain,
			Address:  address,
		}); err != nil {
			return err
		}
	}
	return firstErr
}
