package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OfferStatus string

const (
	OfferActive   OfferStatus = "active"
	OfferInactive OfferStatus = "inactive"
)

// FreeOffer grants access with no eligibility check. Details under it run on
// a long horizon and renew unconditionally.
type FreeOffer struct {
	ID        uint64      `gorm:"primaryKey"`
	CreatorID *uint64     `gorm:"index"`
	Status    OfferStatus `gorm:"size:10;not null"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime"`
}

func (FreeOffer) TableName() string { return "free_offer" }

// MonetaryOffer charges the subscriber Amount from their wallet every period.
type MonetaryOffer struct {
	ID        uint64          `gorm:"primaryKey"`
	CreatorID *uint64         `gorm:"index"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status    OfferStatus     `gorm:"size:10;not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (MonetaryOffer) TableName() string { return "monetary_offer" }

// TokenGatedOffer requires the subscriber to hold a minimum balance of a
// token; the balance is checked against the chain oracle on every renewal.
type TokenGatedOffer struct {
	ID                  uint64          `gorm:"primaryKey"`
	CreatorID           *uint64         `gorm:"index"`
	TokenName           string          `gorm:"not null"`
	TokenID             string          `gorm:"size:100;not null"`
	TokenDecimals       int             `gorm:"not null"`
	MinimumTokenBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status              OfferStatus     `gorm:"size:10;not null"`
	CreatedAt           time.Time       `gorm:"autoCreateTime"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime"`
}

func (TokenGatedOffer) TableName() string { return "token_gated_offer" }

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// SubscriptionDetail tracks one subscriber's standing with one creator. At
// most one row exists per (creator, subscriber) pair regardless of how often
// the creator's offer type changes; rows are never hard-deleted.
//
// OfferType + OfferID reference the concrete offer row backing the detail.
type SubscriptionDetail struct {
	ID           uint64             `gorm:"primaryKey"`
	CreatorID    *uint64            `gorm:"uniqueIndex:creator_subscriber"`
	SubscriberID *uint64            `gorm:"uniqueIndex:creator_subscriber"`
	OfferType    OfferType          `gorm:"size:16;not null"`
	OfferID      uint64             `gorm:"not null"`
	ExpiresAt    time.Time          `gorm:"not null"`
	Status       SubscriptionStatus `gorm:"size:10;not null"`
	CreatedAt    time.Time          `gorm:"autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"autoUpdateTime"`
}

func (SubscriptionDetail) TableName() string { return "subscription_detail" }
