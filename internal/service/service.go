// Package service holds the application operations built on the ledger:
// account and offer management, subscriptions, withdrawals, purchases, the
// webhook reconciler and the treasury sweeps.
package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/provider"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

// ProviderAPI is the slice of the custodial provider the services use.
type ProviderAPI interface {
	CreateWallet(ctx context.Context, idempotencyKey, description string) (string, error)
	CreateAddress(ctx context.Context, walletID string, chain model.Chain) (string, error)
	GetWalletInfo(ctx context.Context, walletID string) (*provider.WalletInfo, error)
	Transfer(ctx context.Context, source, destination provider.Endpoint, amount decimal.Decimal) (*provider.TransferReceipt, error)
	MasterWalletID() string
}

// OracleAPI resolves on-chain token balances for token-gated offers.
type OracleAPI interface {
	TokenBalance(ctx context.Context, address, tokenID string, decimals int) (decimal.Decimal, bool, error)
}

// createTransferPair records the two transaction rows backing one internal
// transfer: a credit for the receiving account and a debit for the paying
// one, equal amounts, both successful. Must run in the same tx as the
// balance mutation.
func createTransferPair(ctx context.Context, r *repo.Repository, tx *gorm.DB, creditAccount, debitAccount *model.Account, amount decimal.Decimal, creditNarration, debitNarration string) error {
	credit := &model.Transaction{
		AccountID: &creditAccount.ID,
		Type:      model.TransactionCredit,
		Status:    model.TransactionSuccessful,
		Amount:    amount,
		Reference: uuid.NewString(),
		Narration: creditNarration,
	}
	if err := r.CreateTransaction(ctx, tx, credit); err != nil {
		return err
	}
	debit := &model.Transaction{
		AccountID: &debitAccount.ID,
		Type:      model.TransactionDebit,
		Status:    model.TransactionSuccessful,
		Amount:    amount,
		Reference: uuid.NewString(),
		Narration: debitNarration,
	}
	return r.CreateTransaction(ctx, tx, debit)
}

// appendEvent writes an outbox row in the caller's transaction.
func appendEvent(ctx context.Context, r *repo.Repository, tx *gorm.DB, aggregate string, aggregateID uint64, eventType string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     string(body),
	})
}
