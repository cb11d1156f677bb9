package model

// JobLease is a database-backed lease used to keep each scheduled job kind
// mutually exclusive across the fleet. An expired lease may be stolen by
// another instance.
type JobLease struct {
	Name       string `gorm:"primaryKey;size:255"`
	InstanceID string `gorm:"size:255;not null"`
	AcquiredAt int64  `gorm:"not null;index"`
	ExpiresAt  int64  `gorm:"not null;index"`
}

func (JobLease) TableName() string { return "job_lease" }
