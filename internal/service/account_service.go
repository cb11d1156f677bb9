package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

// AccountService creates accounts together with their wallet and default
// free offer in one explicit transaction. The provider wallet is created
// first, outside the database transaction, keyed by the account UID so a
// retry after a partial failure lands on the same custodial wallet.
type AccountService struct {
	repo     *repo.Repository
	provider ProviderAPI
	log      *zap.SugaredLogger
}

func NewAccountService(r *repo.Repository, p ProviderAPI, logger *zap.SugaredLogger) *AccountService {
	return &AccountService{repo: r, provider: p, log: logger}
}

func (s *AccountService) CreateAccount(ctx context.Context, address, email, moniker string) (*model.Account, error) {
	uid := uuid.NewString()
	providerID, err := s.provider.CreateWallet(ctx, uid, fmt.Sprintf("Deposit wallet for %s", address))
	if err != nil {
		return nil, fmt.Errorf("create provider wallet for %s: %w", address, err)
	}

	account := &model.Account{
		UID:       uid,
		Address:   address,
		Email:     email,
		Moniker:   moniker,
		OfferType: model.OfferFree,
	}
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateAccount(ctx, tx, account); err != nil {
			return err
		}
		wallet := &model.Wallet{AccountID: &account.ID, ProviderID: providerID}
		if err := s.repo.CreateWallet(ctx, tx, wallet); err != nil {
			return err
		}
		return s.repo.CreateFreeOffer(ctx, tx, &model.FreeOffer{
			CreatorID: &account.ID,
			Status:    model.OfferActive,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("account %d created for %s, provider wallet %s", account.ID, address, providerID)
	return account, nil
}

// Profile returns an account with its wallet and deposit addresses.
func (s *AccountService) Profile(ctx context.Context, address string) (*model.Account, *model.Wallet, []model.DepositAddress, error) {
	account, err := s.repo.GetAccountByAddress(ctx, address)
	if err != nil {
		return nil, nil, nil, err
	}
	wallet, err := s.repo.GetWalletByAccount(ctx, account.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	var addrs []model.DepositAddress
	if err := s.repo.DB(ctx).Where("wallet_id = ?", wallet.ID).Find(&addrs).Error; err != nil {
		return nil, nil, nil, err
	}
	return account, wallet, addrs, nil
}
