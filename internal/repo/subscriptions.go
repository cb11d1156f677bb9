package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorhub/creator-ledger/internal/model"
)

func (r *Repository) CreateFreeOffer(ctx context.Context, tx *gorm.DB, o *model.FreeOffer) error {
	return tx.WithContext(ctx).Create(o).Error
}

func (r *Repository) CreateMonetaryOffer(ctx context.Context, tx *gorm.DB, o *model.MonetaryOffer) error {
	return tx.WithContext(ctx).Create(o).Error
}

func (r *Repository) CreateTokenGatedOffer(ctx context.Context, tx *gorm.DB, o *model.TokenGatedOffer) error {
	return tx.WithContext(ctx).Create(o).Error
}

// DeactivateOffers flips every offer the creator owns to inactive, across
// all three kinds. Called before a new active offer is installed.
func (r *Repository) DeactivateOffers(ctx context.Context, tx *gorm.DB, creatorID uint64) error {
	for _, m := range []interface{}{&model.FreeOffer{}, &model.MonetaryOffer{}, &model.TokenGatedOffer{}} {
		err := tx.WithContext(ctx).
			Model(m).
			Where("creator_id = ? AND status = ?", creatorID, model.OfferActive).
			Update("status", model.OfferInactive).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// ActiveFreeOffers returns every active free offer of the creator. The
// caller enforces the exactly-one invariant.
func (r *Repository) ActiveFreeOffers(ctx context.Context, tx *gorm.DB, creatorID uint64) ([]model.FreeOffer, error) {
	var offers []model.FreeOffer
	err := tx.WithContext(ctx).
		Where("creator_id = ? AND status = ?", creatorID, model.OfferActive).
		Find(&offers).Error
	return offers, err
}

func (r *Repository) ActiveMonetaryOffers(ctx context.Context, tx *gorm.DB, creatorID uint64) ([]model.MonetaryOffer, error) {
	var offers []model.MonetaryOffer
	err := tx.WithContext(ctx).
		Where("creator_id = ? AND status = ?", creatorID, model.OfferActive).
		Find(&offers).Error
	return offers, err
}

func (r *Repository) ActiveTokenGatedOffers(ctx context.Context, tx *gorm.DB, creatorID uint64) ([]model.TokenGatedOffer, error) {
	var offers []model.TokenGatedOffer
	err := tx.WithContext(ctx).
		Where("creator_id = ? AND status = ?", creatorID, model.OfferActive).
		Find(&offers).Error
	return offers, err
}

func (r *Repository) GetSubscriptionDetail(ctx context.Context, tx *gorm.DB, creatorID, subscriberID uint64) (*model.SubscriptionDetail, error) {
	var d model.SubscriptionDetail
	err := tx.WithContext(ctx).
		Where("creator_id = ? AND subscriber_id = ?", creatorID, subscriberID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpsertSubscriptionDetail creates the (creator, subscriber) row or, when it
// already exists, updates its state in place. The unique pair constraint is
// never surfaced to callers.
func (r *Repository) UpsertSubscriptionDetail(ctx context.Context, tx *gorm.DB, d *model.SubscriptionDetail) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "creator_id"}, {Name: "subscriber_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"offer_type": d.OfferType,
			"offer_id":   d.OfferID,
			"expires_at": d.ExpiresAt,
			"status":     d.Status,
			"updated_at": time.Now(),
		}),
	}).Create(d).Error
}

// ActiveSubscriptionDetailsByType feeds the renewal sweeps.
func (r *Repository) ActiveSubscriptionDetailsByType(ctx context.Context, offerType model.OfferType) ([]model.SubscriptionDetail, error) {
	var details []model.SubscriptionDetail
	err := r.db.WithContext(ctx).
		Where("status = ? AND offer_type = ?", model.SubscriptionActive, offerType).
		Order("expires_at").
		Find(&details).Error
	return details, err
}
