// Package ledger holds the only code allowed to mutate wallet balances.
// Every mutation runs inside a database transaction against the locked
// wallet row; balances never go below zero.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

var (
	// ErrAccountSuspended is terminal: the owning account is suspended.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrInsufficientBalance is returned when a debit would go negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount means non-positive amount passed.
	ErrInvalidAmount = errors.New("amount must be positive")
)

type Ledger struct {
	repo *repo.Repository
	log  *zap.SugaredLogger
}

func New(r *repo.Repository, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{repo: r, log: logger}
}

// Credit runs CreditTx in its own transaction.
func (l *Ledger) Credit(ctx context.Context, walletID uint64, amount decimal.Decimal) error {
	return l.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := l.CreditTx(ctx, tx, walletID, amount)
		return err
	})
}

// CreditTx adds amount to the wallet inside the caller's transaction. There
// is no upper bound; only suspension blocks a credit.
func (l *Ledger) CreditTx(ctx context.Context, tx *gorm.DB, walletID uint64, amount decimal.Decimal) (*model.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	w, err := l.lockWallet(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}
	if err := l.checkSuspension(ctx, tx, w); err != nil {
		return nil, err
	}
	newBal := w.Balance.Add(amount)
	if err := l.repo.UpdateWalletBalance(ctx, tx, walletID, newBal, w.Version); err != nil {
		return nil, err
	}
	w.Balance = newBal
	w.Version++
	return w, nil
}

// Debit runs DebitTx in its own transaction.
func (l *Ledger) Debit(ctx context.Context, walletID uint64, amount decimal.Decimal) error {
	return l.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := l.DebitTx(ctx, tx, walletID, amount)
		return err
	})
}

// DebitTx subtracts amount, failing rather than letting the balance go
// negative.
func (l *Ledger) DebitTx(ctx context.Context, tx *gorm.DB, walletID uint64, amount decimal.Decimal) (*model.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	w, err := l.lockWallet(ctx, tx, walletID)
	if err != nil {
		return nil, err
	}
	if err := l.checkSuspension(ctx, tx, w); err != nil {
		return nil, err
	}
	if w.Balance.Sub(amount).IsNegative() {
		return nil, fmt.Errorf("balance %s, attempted debit %s: %w", w.Balance, amount, ErrInsufficientBalance)
	}
	newBal := w.Balance.Sub(amount)
	if err := l.repo.UpdateWalletBalance(ctx, tx, walletID, newBal, w.Version); err != nil {
		return nil, err
	}
	w.Balance = newBal
	w.Version++
	return w, nil
}

// Transfer runs TransferTx in its own transaction.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID uint64, amount decimal.Decimal) error {
	return l.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		_, _, err := l.TransferTx(ctx, tx, fromID, toID, amount)
		return err
	})
}

// TransferTx moves amount between two wallets as one unit. Suspension and
// sufficiency are checked against the source only; a suspended recipient
// still receives funds. Wallets lock in ascending id order so two
// opposite-direction transfers cannot deadlock.
func (l *Ledger) TransferTx(ctx context.Context, tx *gorm.DB, fromID, toID uint64, amount decimal.Decimal) (*model.Wallet, *model.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, nil, errors.New("cannot transfer to self")
	}
	firstID, secondID := fromID, toID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	w1, err := l.lockWallet(ctx, tx, firstID)
	if err != nil {
		return nil, nil, err
	}
	w2, err := l.lockWallet(ctx, tx, secondID)
	if err != nil {
		return nil, nil, err
	}
	wFrom, wTo := w1, w2
	if firstID != fromID {
		wFrom, wTo = w2, w1
	}
	if err := l.checkSuspension(ctx, tx, wFrom); err != nil {
		return nil, nil, err
	}
	if wFrom.Balance.Sub(amount).IsNegative() {
		return nil, nil, fmt.Errorf("balance %s, attempted transfer %s: %w", wFrom.Balance, amount, ErrInsufficientBalance)
	}
	newFrom := wFrom.Balance.Sub(amount)
	newTo := wTo.Balance.Add(amount)
	if err := l.repo.UpdateWalletBalance(ctx, tx, wFrom.ID, newFrom, wFrom.Version); err != nil {
		return nil, nil, err
	}
	if err := l.repo.UpdateWalletBalance(ctx, tx, wTo.ID, newTo, wTo.Version); err != nil {
		return nil, nil, err
	}
	wFrom.Balance = newFrom
	wFrom.Version++
	wTo.Balance = newTo
	wTo.Version++
	return wFrom, wTo, nil
}

func (l *Ledger) lockWallet(ctx context.Context, tx *gorm.DB, walletID uint64) (*model.Wallet, error) {
	w, err := l.repo.GetWalletForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet %d: %w", walletID, err)
	}
	return w, nil
}

func (l *Ledger) checkSuspension(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	if w.AccountID == nil {
		return nil
	}
	var a model.Account
	if err := tx.WithContext(ctx).Where("id = ?", *w.AccountID).First(&a).Error; err != nil {
		return fmt.Errorf("load account %d: %w", *w.AccountID, err)
	}
	if a.IsSuspended {
		if a.SuspensionReason != "" {
			return fmt.Errorf("%s: %w", a.SuspensionReason, ErrAccountSuspended)
		}
		return ErrAccountSuspended
	}
	return nil
}
