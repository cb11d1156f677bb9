package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/creatorhub/creator-ledger/internal/ledger"
	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/repo"
)

var (
	// ErrInsufficientTokenBalance rejects a token-gated subscribe when the
	// subscriber's on-chain holding is below the offer minimum.
	ErrInsufficientTokenBalance = errors.New("insufficient token balance")
	// ErrInvariantViolation means the creator's offer state is corrupt, for
	// example two active offers at once. The operation aborts.
	ErrInvariantViolation = errors.New("subscription offer invariant violated")
	// ErrSelfSubscription rejects subscribing to oneself.
	ErrSelfSubscription = errors.New("cannot subscribe to yourself")
)

// Renewal horizons per offer kind.
const (
	freeHorizon       = 520 * 7 * 24 * time.Hour // ~10 years
	monetaryHorizon   = 30 * 24 * time.Hour
	tokenGatedHorizon = 24 * time.Hour
)

// The renewal sweeps classify time-to-expiry into escalating windows. An
// attempt fires inside each window; only the final window may flip a
// subscription to expired.
var (
	monetaryWindows   = []time.Duration{3 * 24 * time.Hour, 2 * 24 * time.Hour, 24 * time.Hour, 5 * time.Minute}
	tokenGatedWindows = []time.Duration{time.Hour, 30 * time.Minute, 5 * time.Minute}
)

// activeOffer is the resolved offer a creator currently runs: the
// discriminant plus exactly one concrete row.
type activeOffer struct {
	Type       model.OfferType
	ID         uint64
	Monetary   *model.MonetaryOffer
	TokenGated *model.TokenGatedOffer
}

// SubscriptionService drives the (creator, subscriber) state machine for
// all three offer kinds.
type SubscriptionService struct {
	repo   *repo.Repository
	ledger *ledger.Ledger
	oracle OracleAPI
	log    *zap.SugaredLogger
}

func NewSubscriptionService(r *repo.Repository, l *ledger.Ledger, o OracleAPI, logger *zap.SugaredLogger) *SubscriptionService {
	return &SubscriptionService{repo: r, ledger: l, oracle: o, log: logger}
}

// SetFreeOffer makes a free offer the creator's active one, retiring
// whatever was active before.
func (s *SubscriptionService) SetFreeOffer(ctx context.Context, creatorID uint64) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeactivateOffers(ctx, tx, creatorID); err != nil {
			return err
		}
		offer := &model.FreeOffer{CreatorID: &creatorID, Status: model.OfferActive}
		if err := s.repo.CreateFreeOffer(ctx, tx, offer); err != nil {
			return err
		}
		return s.repo.UpdateAccountOfferType(ctx, tx, creatorID, model.OfferFree)
	})
}

func (s *SubscriptionService) SetMonetaryOffer(ctx context.Context, creatorID uint64, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ledger.ErrInvalidAmount
	}
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeactivateOffers(ctx, tx, creatorID); err != nil {
			return err
		}
		offer := &model.MonetaryOffer{CreatorID: &creatorID, Amount: amount, Status: model.OfferActive}
		if err := s.repo.CreateMonetaryOffer(ctx, tx, offer); err != nil {
			return err
		}
		return s.repo.UpdateAccountOfferType(ctx, tx, creatorID, model.OfferMonetary)
	})
}

func (s *SubscriptionService) SetTokenGatedOffer(ctx context.Context, creatorID uint64, tokenName, tokenID string, tokenDecimals int, minimumBalance decimal.Decimal) error {
	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeactivateOffers(ctx, tx, creatorID); err != nil {
			return err
		}
		offer := &model.TokenGatedOffer{
			CreatorID:           &creatorID,
			TokenName:           tokenName,
			TokenID:             tokenID,
			TokenDecimals:       tokenDecimals,
			MinimumTokenBalance: minimumBalance,
			Status:              model.OfferActive,
		}
		if err := s.repo.CreateTokenGatedOffer(ctx, tx, offer); err != nil {
			return err
		}
		return s.repo.UpdateAccountOfferType(ctx, tx, creatorID, model.OfferTokenGated)
	})
}

// Subscribe creates or reactivates the subscriber's standing with the
// creator under whatever offer the creator currently runs. Subscribing
// while already active and unexpired is a no-op returning the existing row.
func (s *SubscriptionService) Subscribe(ctx context.Context, creatorID, subscriberID uint64) (*model.SubscriptionDetail, error) {
	if creatorID == subscriberID {
		return nil, ErrSelfSubscription
	}
	creator, err := s.repo.GetAccount(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	subscriber, err := s.repo.GetAccount(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetSubscriptionDetail(ctx, s.repo.DB(ctx), creatorID, subscriberID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == model.SubscriptionActive && existing.ExpiresAt.After(time.Now()) {
		return existing, nil
	}

	return s.activate(ctx, creator, subscriber, existing)
}

// activate runs the eligibility check for the creator's current offer and
// upserts the detail row. Shared by Subscribe and the renewal sweeps.
func (s *SubscriptionService) activate(ctx context.Context, creator, subscriber *model.Account, existing *model.SubscriptionDetail) (*model.SubscriptionDetail, error) {
	var detail *model.SubscriptionDetail
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		offer, err := s.resolveActiveOffer(ctx, tx, creator)
		if err != nil {
			return err
		}

		var horizon time.Duration
		switch offer.Type {
		case model.OfferFree:
			horizon = freeHorizon

		case model.OfferMonetary:
			horizon = monetaryHorizon
			if err := s.chargeMonetary(ctx, tx, creator, subscriber, offer.Monetary.Amount); err != nil {
				return err
			}

		case model.OfferTokenGated:
			horizon = tokenGatedHorizon
			if err := s.checkTokenGate(ctx, subscriber, offer.TokenGated); err != nil {
				return err
			}

		default:
			return fmt.Errorf("offer type %q: %w", offer.Type, ErrInvariantViolation)
		}

		detail = &model.SubscriptionDetail{
			CreatorID:    &creator.ID,
			SubscriberID: &subscriber.ID,
			OfferType:    offer.Type,
			OfferID:      offer.ID,
			ExpiresAt:    extendExpiry(existing, horizon),
			Status:       model.SubscriptionActive,
		}
		if err := s.repo.UpsertSubscriptionDetail(ctx, tx, detail); err != nil {
			return err
		}
		// the conflict-update branch leaves the insert attempt's id on the
		// struct; reload so callers always see the persisted row
		detail, err = s.repo.GetSubscriptionDetail(ctx, tx, creator.ID, subscriber.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// chargeMonetary moves the offer amount subscriber -> creator and writes
// the paired transaction rows, all inside tx.
func (s *SubscriptionService) chargeMonetary(ctx context.Context, tx *gorm.DB, creator, subscriber *model.Account, amount decimal.Decimal) error {
	subscriberWallet, err := s.repo.GetWalletByAccount(ctx, subscriber.ID)
	if err != nil {
		return err
	}
	creatorWallet, err := s.repo.GetWalletByAccount(ctx, creator.ID)
	if err != nil {
		return err
	}
	if _, _, err := s.ledger.TransferTx(ctx, tx, subscriberWallet.ID, creatorWallet.ID, amount); err != nil {
		return err
	}
	return createTransferPair(ctx, s.repo, tx, creator, subscriber, amount,
		fmt.Sprintf("@%s just paid %s USD for subscription", subscriber.Moniker, amount),
		fmt.Sprintf("You just paid %s USD to subscribe to @%s", amount, creator.Moniker),
	)
}

func (s *SubscriptionService) checkTokenGate(ctx context.Context, subscriber *model.Account, offer *model.TokenGatedOffer) error {
	balance, found, err := s.oracle.TokenBalance(ctx, subscriber.Address, offer.TokenID, offer.TokenDecimals)
	if err != nil {
		return err
	}
	if !found || balance.LessThan(offer.MinimumTokenBalance) {
		return fmt.Errorf("%s balance below %s: %w", offer.TokenName, offer.MinimumTokenBalance, ErrInsufficientTokenBalance)
	}
	return nil
}

// resolveActiveOffer loads the single active offer matching the account's
// discriminant. Zero or multiple active rows is an invariant violation.
func (s *SubscriptionService) resolveActiveOffer(ctx context.Context, tx *gorm.DB, creator *model.Account) (*activeOffer, error) {
	switch creator.OfferType {
	case model.OfferFree:
		offers, err := s.repo.ActiveFreeOffers(ctx, tx, creator.ID)
		if err != nil {
			return nil, err
		}
		if len(offers) != 1 {
			return nil, offerCountError(creator.ID, model.OfferFree, len(offers))
		}
		return &activeOffer{Type: model.OfferFree, ID: offers[0].ID}, nil

	case model.OfferMonetary:
		offers, err := s.repo.ActiveMonetaryOffers(ctx, tx, creator.ID)
		if err != nil {
			return nil, err
		}
		if len(offers) != 1 {
			return nil, offerCountError(creator.ID, model.OfferMonetary, len(offers))
		}
		return &activeOffer{Type: model.OfferMonetary, ID: offers[0].ID, Monetary: &offers[0]}, nil

	case model.OfferTokenGated:
		offers, err := s.repo.ActiveTokenGatedOffers(ctx, tx, creator.ID)
		if err != nil {
			return nil, err
		}
		if len(offers) != 1 {
			return nil, offerCountError(creator.ID, model.OfferTokenGated, len(offers))
		}
		return &activeOffer{Type: model.OfferTokenGated, ID: offers[0].ID, TokenGated: &offers[0]}, nil
	}
	return nil, fmt.Errorf("account %d offer type %q: %w", creator.ID, creator.OfferType, ErrInvariantViolation)
}

func offerCountError(creatorID uint64, t model.OfferType, n int) error {
	return fmt.Errorf("creator %d has %d active %s offers: %w", creatorID, n, t, ErrInvariantViolation)
}

// extendExpiry extends from the later of now and the current expiry, so
// banked time is never lost and lapsed subscriptions restart from now.
func extendExpiry(existing *model.SubscriptionDetail, horizon time.Duration) time.Time {
	base := time.Now()
	if existing != nil && existing.ExpiresAt.After(base) {
		base = existing.ExpiresAt
	}
	return base.Add(horizon)
}

// RenewMonetary is the scheduled sweep over active monetary subscriptions.
func (s *SubscriptionService) RenewMonetary(ctx context.Context) error {
	return s.renewSweep(ctx, model.OfferMonetary, monetaryWindows)
}

// RenewTokenGated is the scheduled sweep over active token-gated
// subscriptions.
func (s *SubscriptionService) RenewTokenGated(ctx context.Context) error {
	return s.renewSweep(ctx, model.OfferTokenGated, tokenGatedWindows)
}

func (s *SubscriptionService) renewSweep(ctx context.Context, offerType model.OfferType, windows []time.Duration) error {
	details, err := s.repo.ActiveSubscriptionDetailsByType(ctx, offerType)
	if err != nil {
		return err
	}
	final := windows[len(windows)-1]
	for i := range details {
		detail := details[i]
		until := time.Until(detail.ExpiresAt)
		if until > windows[0] {
			continue
		}
		// Only the nearest-to-expiry window may expire the row; failures in
		// outer windows leave it for the next pass.
		authoritative := until <= final
		if err := s.renewOne(ctx, &detail, authoritative); err != nil {
			s.log.Errorf("renew subscription %d: %v", detail.ID, err)
		}
	}
	return nil
}

// renewOne re-runs the subscribe eligibility check for whatever offer the
// creator runs now, which may differ from the one the detail was issued
// under. A successful renewal extends the expiry past every window, so one
// cycle charges at most once.
func (s *SubscriptionService) renewOne(ctx context.Context, detail *model.SubscriptionDetail, authoritative bool) error {
	if detail.CreatorID == nil || detail.SubscriberID == nil {
		return nil
	}
	creator, err := s.repo.GetAccount(ctx, *detail.CreatorID)
	if err != nil {
		return err
	}
	subscriber, err := s.repo.GetAccount(ctx, *detail.SubscriberID)
	if err != nil {
		return err
	}

	_, err = s.activate(ctx, creator, subscriber, detail)
	if err == nil {
		return nil
	}

	if isEligibilityFailure(err) {
		if !authoritative {
			s.log.Infof("subscription %d not yet renewable: %v", detail.ID, err)
			return nil
		}
		return s.expire(ctx, detail, err)
	}
	return err
}

func (s *SubscriptionService) expire(ctx context.Context, detail *model.SubscriptionDetail, cause error) error {
	s.log.Warnf("subscription %d expired: %v", detail.ID, cause)
	return s.repo.DB(ctx).
		Model(&model.SubscriptionDetail{}).
		Where("id = ?", detail.ID).
		Update("status", model.SubscriptionExpired).Error
}

// isEligibilityFailure separates "the subscriber no longer qualifies" from
// operational errors, which never expire a subscription.
func isEligibilityFailure(err error) bool {
	return errors.Is(err, ledger.ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientTokenBalance) ||
		errors.Is(err, ledger.ErrAccountSuspended)
}
