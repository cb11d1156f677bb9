package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/model"
)

func (r *Repository) CreateAccount(ctx context.Context, tx *gorm.DB, a *model.Account) error {
	return tx.WithContext(ctx).Create(a).Error
}

func (r *Repository) GetAccount(ctx context.Context, id uint64) (*model.Account, error) {
	var a model.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetAccountByAddress(ctx context.Context, address string) (*model.Account, error) {
	var a model.Account
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccountOfferType keeps the account discriminant in step with the
// active offer row.
func (r *Repository) UpdateAccountOfferType(ctx context.Context, tx *gorm.DB, accountID uint64, t model.OfferType) error {
	return tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Update("offer_type", t).Error
}
