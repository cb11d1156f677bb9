package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies a blockchain the provider can issue deposit addresses on.
type Chain string

const (
	ChainTron      Chain = "TRX"
	ChainBase      Chain = "BASE"
	ChainSolana    Chain = "SOL"
	ChainPolygon   Chain = "MATIC"
	ChainArbitrum  Chain = "ARB"
	ChainEthereum  Chain = "ETH"
	ChainAlgorand  Chain = "ALGO"
	ChainAvalanche Chain = "AVAX"
)

// Chains lists every chain a wallet must hold one deposit address on.
var Chains = []Chain{
	ChainTron,
	ChainBase,
	ChainSolana,
	ChainPolygon,
	ChainArbitrum,
	ChainEthereum,
	ChainAlgorand,
	ChainAvalanche,
}

// Wallet is the internal custodial balance record, one per account. The
// account reference is nullable so deleting an account keeps the financial
// history intact.
type Wallet struct {
	ID        uint64          `gorm:"primaryKey"`
	AccountID *uint64         `gorm:"uniqueIndex"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:'0'"`
	// ProviderID is the external custodial wallet identifier.
	ProviderID string    `gorm:"size:100;uniqueIndex;not null"`
	Version    uint64    `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallet" }

type DepositAddress struct {
	ID        uint64    `gorm:"primaryKey"`
	WalletID  uint64    `gorm:"not null;uniqueIndex:wallet_chain_address"`
	Chain     Chain     `gorm:"size:16;not null;uniqueIndex:wallet_chain_address"`
	Address   string    `gorm:"size:200;not null;uniqueIndex:wallet_chain_address"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (DepositAddress) TableName() string { return "deposit_address" }
