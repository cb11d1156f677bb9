package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCredit       TransactionType = "credit"
	TransactionDebit        TransactionType = "debit"
	TransactionMoveToMaster TransactionType = "move_to_master"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionSuccessful TransactionStatus = "successful"
	TransactionFailed     TransactionStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionSuccessful || s == TransactionFailed
}

// Transaction is an append-only record of a balance-affecting event. Only
// Status and Metadata may change after creation, pending -> terminal.
type Transaction struct {
	ID        uint64            `gorm:"primaryKey"`
	AccountID *uint64           `gorm:"index"`
	Type      TransactionType   `gorm:"size:32;not null"`
	Status    TransactionStatus `gorm:"size:16;not null"`
	Amount    decimal.Decimal   `gorm:"type:numeric(20,2);not null"`
	// Reference is the external idempotency key; provider-initiated moves
	// carry the provider transfer id here.
	Reference string    `gorm:"size:200;uniqueIndex;not null"`
	Metadata  string    `gorm:"type:jsonb;not null;default:'{}'"`
	Narration string    `gorm:"default:''"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Transaction) TableName() string { return "transaction" }
