package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/config"
	"github.com/creatorhub/creator-ledger/internal/ledger"
	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

// notificationEnvelope is the outer shape the provider's notification bus
// delivers: a typed envelope whose Message field carries the transfer JSON
// as a string.
type notificationEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// transferNotification is the decoded Message of a transfers envelope.
type transferNotification struct {
	Transfer transferDetails `json:"transfer"`
}

type transferDetails struct {
	ID     string           `json:"id"`
	Source transferEndpoint `json:"source"`
	Dest   transferEndpoint `json:"destination"`
	Amount transferAmount   `json:"amount"`
	Status string           `json:"status"`
}

type transferEndpoint struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

type transferAmount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Reconciler turns asynchronous provider notifications into ledger and
// transaction state. Ingest is idempotent on the provider message id;
// Drain applies pending webhooks one at a time, isolating failures.
type Reconciler struct {
	repo     *repo.Repository
	ledger   *ledger.Ledger
	http     *http.Client
	payments config.PaymentsConfig
	log      *zap.SugaredLogger
}

func NewReconciler(r *repo.Repository, l *ledger.Ledger, httpClient *http.Client, payments config.PaymentsConfig, logger *zap.SugaredLogger) *Reconciler {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Reconciler{repo: r, ledger: l, http: httpClient, payments: payments, log: logger}
}

// Ingest persists a raw notification for later processing. Unknown types
// are dropped; duplicate message ids are silently absorbed.
func (r *Reconciler) Ingest(ctx context.Context, raw []byte) error {
	var env notificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode notification envelope: %w", err)
	}

	var notificationType model.WebhookType
	switch {
	case env.Type == "SubscriptionConfirmation":
		notificationType = model.WebhookSubscriptionConfirmation
	case env.Type == "Notification" && strings.Contains(env.Message, "transfer"):
		notificationType = model.WebhookTransfers
	default:
		r.log.Debugf("ignoring notification %s of type %s", env.MessageID, env.Type)
		return nil
	}

	return r.repo.CreateWebhook(ctx, &model.Webhook{
		MessageID:        env.MessageID,
		Status:           model.WebhookPending,
		NotificationType: notificationType,
		Payload:          string(raw),
	})
}

// Drain processes every pending webhook. A failure on one item is logged
// and leaves that webhook pending for the next cycle; the rest of the
// batch still runs.
func (r *Reconciler) Drain(ctx context.Context) error {
	webhooks, err := r.repo.PendingWebhooks(ctx)
	if err != nil {
		return err
	}
	for i := range webhooks {
		wh := webhooks[i]
		if err := r.process(ctx, &wh); err != nil {
			r.log.Errorf("webhook %s: %v", wh.MessageID, err)
		}
	}
	return nil
}

func (r *Reconciler) process(ctx context.Context, wh *model.Webhook) error {
	var env notificationEnvelope
	if err := json.Unmarshal([]byte(wh.Payload), &env); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch wh.NotificationType {
	case model.WebhookSubscriptionConfirmation:
		return r.confirmSubscription(ctx, wh, env.SubscribeURL)

	case model.WebhookTransfers:
		var note transferNotification
		if err := json.Unmarshal([]byte(env.Message), &note); err != nil {
			return fmt.Errorf("decode transfer message: %w", err)
		}
		t := note.Transfer
		switch {
		case t.Source.Type == "blockchain" && t.Dest.Type == "wallet":
			return r.applyDeposit(ctx, wh, &t)
		case t.Source.Type == "wallet" && t.Dest.Type == "wallet":
			return r.applyTransferStatus(ctx, wh, &t)
		case t.Source.Type == "wallet" && t.Dest.Type == "blockchain":
			return r.applyTransferStatus(ctx, wh, &t)
		}
		return fmt.Errorf("unrecognized transfer shape %s -> %s", t.Source.Type, t.Dest.Type)
	}
	return fmt.Errorf("unrecognized notification type %q", wh.NotificationType)
}

// confirmSubscription performs the provider's confirmation handshake. On
// any failure the webhook stays pending and the next drain retries.
func (r *Reconciler) confirmSubscription(ctx context.Context, wh *model.Webhook, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("confirmation handshake: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("confirmation handshake: status %d", resp.StatusCode)
	}
	return r.repo.MarkWebhookCompleted(ctx, r.repo.DB(ctx), wh.ID)
}

// applyDeposit credits a wallet for a confirmed on-chain deposit. Dust,
// non-USD and incomplete transfers are acknowledged without side effects.
// Everything else is applied in one transaction so the credit, the
// transaction row and the webhook completion commit together.
func (r *Reconciler) applyDeposit(ctx context.Context, wh *model.Webhook, t *transferDetails) error {
	amount, err := parseTransferAmount(t)
	if err != nil {
		return err
	}
	if amount.LessThan(r.payments.MinimumDeposit) || t.Amount.Currency != "USD" || t.Status != "complete" {
		return r.repo.MarkWebhookCompleted(ctx, r.repo.DB(ctx), wh.ID)
	}

	metadata, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		// redelivery under a fresh message id: the transfer id was already
		// credited, so only the webhook needs completing
		if _, err := r.repo.GetTransactionByReference(ctx, tx, t.ID); err == nil {
			return r.repo.MarkWebhookCompleted(ctx, tx, wh.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		wallet, err := r.repo.GetWalletByProviderID(ctx, tx, t.Dest.ID)
		if err != nil {
			return fmt.Errorf("wallet for provider id %s: %w", t.Dest.ID, err)
		}
		txn := &model.Transaction{
			AccountID: wallet.AccountID,
			Type:      model.TransactionCredit,
			Status:    model.TransactionSuccessful,
			Amount:    amount,
			Reference: t.ID,
			Metadata:  string(metadata),
			Narration: fmt.Sprintf("%s USDC top up via %s", amount, t.Source.Chain),
		}
		if err := r.repo.CreateTransaction(ctx, tx, txn); err != nil {
			return err
		}
		if _, err := r.ledger.CreditTx(ctx, tx, wallet.ID, amount); err != nil {
			return err
		}
		return r.repo.MarkWebhookCompleted(ctx, tx, wh.ID)
	})
}

// applyTransferStatus finalizes a pending transaction (master-wallet sweep
// or withdrawal) from the provider's reported status. Already-terminal
// transactions make this a no-op, so redelivery is safe.
func (r *Reconciler) applyTransferStatus(ctx context.Context, wh *model.Webhook, t *transferDetails) error {
	if t.Status != "complete" && t.Status != "failed" {
		return r.repo.MarkWebhookCompleted(ctx, r.repo.DB(ctx), wh.ID)
	}

	metadata, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := r.repo.GetTransactionByReference(ctx, tx, t.ID)
		if err != nil {
			return fmt.Errorf("transaction for reference %s: %w", t.ID, err)
		}
		if txn.Status.IsTerminal() {
			return r.repo.MarkWebhookCompleted(ctx, tx, wh.ID)
		}
		status := model.TransactionSuccessful
		if t.Status == "failed" {
			status = model.TransactionFailed
		}
		if err := r.repo.UpdateTransactionStatus(ctx, tx, txn.ID, status, string(metadata)); err != nil {
			return err
		}
		return r.repo.MarkWebhookCompleted(ctx, tx, wh.ID)
	})
}

func parseTransferAmount(t *transferDetails) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(t.Amount.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse transfer amount %q: %w", t.Amount.Amount, err)
	}
	return amount, nil
}
