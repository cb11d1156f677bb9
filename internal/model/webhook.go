package model

import "time"

type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "pending"
	WebhookCompleted WebhookStatus = "completed"
)

type WebhookType string

const (
	WebhookTransfers                WebhookType = "transfers"
	WebhookSubscriptionConfirmation WebhookType = "subscription_confirmation"
)

// Webhook is the durable record of one provider notification. MessageID is
// the dedup boundary: a second delivery of the same message is dropped at
// insert time. Completed only after side effects are durably applied.
type Webhook struct {
	ID               uint64        `gorm:"primaryKey"`
	MessageID        string        `gorm:"size:100;uniqueIndex;not null"`
	Status           WebhookStatus `gorm:"size:10;not null"`
	NotificationType WebhookType   `gorm:"size:50;not null"`
	Payload          string        `gorm:"type:jsonb;not null"`
	CreatedAt        time.Time     `gorm:"autoCreateTime"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime"`
}

func (Webhook) TableName() string { return "webhook" }
