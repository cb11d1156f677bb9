package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorhub/creator-ledger/internal/model"
)

// CreateWebhook persists a notification. Redelivery of an already-seen
// message id is dropped by the conflict clause, not reported as an error.
func (r *Repository) CreateWebhook(ctx context.Context, w *model.Webhook) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoNothing: true,
	}).Create(w).Error
}

func (r *Repository) PendingWebhooks(ctx context.Context) ([]model.Webhook, error) {
	var whs []model.Webhook
	err := r.db.WithContext(ctx).
		Where("status = ?", model.WebhookPending).
		Order("created_at").
		Find(&whs).Error
	return whs, err
}

func (r *Repository) MarkWebhookCompleted(ctx context.Context, tx *gorm.DB, id uint64) error {
	return tx.WithContext(ctx).
		Model(&model.Webhook{}).
		Where("id = ?", id).
		Update("status", model.WebhookCompleted).Error
}
