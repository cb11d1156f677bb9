package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorhub/creator-ledger/internal/model"
)

// AcquireLease takes the named job lease for ttl. It returns false when a
// live lease is held by another instance; expired leases are stolen.
func (r *Repository) AcquireLease(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	lease := model.JobLease{
		Name:       name,
		InstanceID: instanceID,
		AcquiredAt: now,
		ExpiresAt:  now + int64(ttl.Seconds()),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"instance_id": instanceID,
			"acquired_at": now,
			"expires_at":  now + int64(ttl.Seconds()),
		}),
		Where: clause.Where{
			Exprs: []clause.Expression{
				gorm.Expr("job_lease.expires_at < ? OR job_lease.instance_id = ?", now, instanceID),
			},
		},
	}).Create(&lease)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseLease expires the lease early, but only for its current holder.
func (r *Repository) ReleaseLease(ctx context.Context, name, instanceID string) error {
	return r.db.WithContext(ctx).
		Model(&model.JobLease{}).
		Where("name = ? AND instance_id = ?", name, instanceID).
		Update("expires_at", 0).Error
}
