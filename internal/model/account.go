package model

import "time"

// OfferType discriminates which kind of subscription offer a creator
// currently runs. It must agree with the offer row whose status is active.
type OfferType string

const (
	OfferFree       OfferType = "free"
	OfferMonetary   OfferType = "monetary"
	OfferTokenGated OfferType = "token_gated"
)

type Account struct {
	ID uint64 `gorm:"primaryKey"`
	// UID doubles as the idempotency key for provider wallet creation.
	UID              string `gorm:"size:36;uniqueIndex;not null"`
	Address          string `gorm:"size:44;uniqueIndex;not null"`
	Email            string `gorm:"size:254;default:''"`
	Moniker          string `gorm:"size:250;default:''"`
	IsSuspended      bool   `gorm:"not null;default:false"`
	SuspensionReason string `gorm:"default:''"`
	IsVerified       bool   `gorm:"not null;default:false"`
	OfferType        OfferType `gorm:"size:16;not null;default:'free'"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (Account) TableName() string { return "account" }
