package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// DeductResult is the outcome of CheckAndDeduct.
type DeductResult struct {
	Allowed        bool   `json:"allowed"`
	Success        bool   `json:"success"`
	NewBalance     int    `json:"newBalance"`
	SubscriptionID int64  `json:"subscriptionId,omitempty"`
	Message        string `json:"message"`
}

// Debit describes a charge applied inside a transaction.
type Debit struct {
	SubscriptionID int64
	Amount         int
	NewBalance     int
	EntryID        string
}

// LedgerService is the only writer of subscription balances. Every change is
// a conditional update plus an append to credit_entries in one transaction.
type LedgerService struct {
	store    repository.Store
	balances BalanceCache
	now      func() time.Time
}

// NewLedgerService constructs a LedgerService. balances may be nil.
func NewLedgerService(store repository.Store, balances BalanceCache) *LedgerService {
	return &LedgerService{store: store, balances: balances, now: time.Now}
}

// CheckAndDeduct charges amount against the client's live subscription.
// Refusals are reported in the result; the error is reserved for failures.
func (s *LedgerService) CheckAndDeduct(ctx context.Context, clientID int64, amount int, reference, memo string) (*DeductResult, error) {
	var debit *Debit
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		debit, err = s.Deduct(ctx, r, clientID, amount, reference, memo)
		return err
	})
	if err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) && appErr.Code == utils.CodePreconditionFailed {
			return &DeductResult{Allowed: false, Success: false, Message: appErr.Message}, nil
		}
		return nil, err
	}

	s.Invalidate(ctx, clientID)
	return &DeductResult{
		Allowed:        true,
		Success:        true,
		NewBalance:     debit.NewBalance,
		SubscriptionID: debit.SubscriptionID,
		Message:        fmt.Sprintf("%d credits deducted. %d credits remaining", amount, debit.NewBalance),
	}, nil
}

// Deduct charges amount inside the caller's transaction. The balance check
// and the decrement are one conditional statement, so concurrent deductions
// can never take the balance below zero.
func (s *LedgerService) Deduct(ctx context.Context, r *repository.Repositories, clientID int64, amount int, reference, memo string) (*Debit, error) {
	if amount <= 0 {
		return nil, utils.ErrInvalidRequest.WithMessage("Credit amount must be positive")
	}

	now := s.now()
	sub, err := r.Subscriptions.DebitLive(ctx, clientID, amount, now)
	if isNoRows(err) {
		live, lerr := r.Subscriptions.GetLive(ctx, clientID, now)
		if isNoRows(lerr) {
			log.Info().Int64("client_id", clientID).Int("amount", amount).Msg("Deduction refused: no active subscription")
			return nil, noLiveSubscription(ctx, r, clientID)
		}
		if lerr != nil {
			return nil, fmt.Errorf("load live subscription: %w", lerr)
		}
		log.Info().
			Int64("client_id", clientID).
			Int("amount", amount).
			Int("balance", live.RemainingCredits).
			Msg("Deduction refused: insufficient credits")
		return nil, utils.ErrInsufficientCredits.WithMessage(fmt.Sprintf(
			"Insufficient credits: %d required, %d available. Buy more credits to continue", amount, live.RemainingCredits))
	}
	if err != nil {
		return nil, fmt.Errorf("debit subscription: %w", err)
	}

	entry, err := s.append(ctx, r, sub, -amount, models.CreditDebit, reference, memo)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("client_id", clientID).
		Int64("subscription_id", sub.ID).
		Int("amount", amount).
		Int("balance", sub.RemainingCredits).
		Str("reference", reference).
		Msg("Credits deducted")

	return &Debit{SubscriptionID: sub.ID, Amount: amount, NewBalance: sub.RemainingCredits, EntryID: entry.ID}, nil
}

// Refund returns amount to a subscription inside the caller's transaction.
func (s *LedgerService) Refund(ctx context.Context, r *repository.Repositories, subscriptionID int64, amount int, reference, memo string) (*models.CreditEntry, error) {
	if amount <= 0 {
		return nil, utils.ErrInvalidRequest.WithMessage("Credit amount must be positive")
	}
	sub, err := r.Subscriptions.Credit(ctx, subscriptionID, amount)
	if err != nil {
		return nil, fmt.Errorf("credit subscription %d: %w", subscriptionID, notFound(err, utils.ErrSubscriptionNotFound))
	}
	entry, err := s.append(ctx, r, sub, amount, models.CreditRefund, reference, memo)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int64("client_id", sub.ClientID).
		Int64("subscription_id", sub.ID).
		Int("amount", amount).
		Str("reference", reference).
		Msg("Credits refunded")
	return entry, nil
}

// RecordGrant records the credits a subscription was created or activated
// with. The subscription row already carries the new balance.
func (s *LedgerService) RecordGrant(ctx context.Context, r *repository.Repositories, sub *models.ClientSubscription, reference, memo string) (*models.CreditEntry, error) {
	return s.append(ctx, r, sub, sub.RemainingCredits, models.CreditGrant, reference, memo)
}

// Invalidate drops the cached balance of a client after a committed change.
func (s *LedgerService) Invalidate(ctx context.Context, clientID int64) {
	if s.balances != nil {
		s.balances.Invalidate(ctx, clientID)
	}
}

// History lists a client's ledger entries, newest first.
func (s *LedgerService) History(ctx context.Context, clientID int64, limit, offset int) ([]*models.CreditEntry, int, error) {
	return s.store.Repos().Ledger.ListByClient(ctx, clientID, limit, offset)
}

func (s *LedgerService) append(ctx context.Context, r *repository.Repositories, sub *models.ClientSubscription, delta int, kind models.CreditEntryKind, reference, memo string) (*models.CreditEntry, error) {
	entry := &models.CreditEntry{
		ID:             ulid.Make().String(),
		ClientID:       sub.ClientID,
		SubscriptionID: sub.ID,
		Delta:          delta,
		BalanceAfter:   sub.RemainingCredits,
		Kind:           kind,
		Memo:           memo,
	}
	if reference != "" {
		entry.Reference = &reference
	}
	if err := r.Ledger.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append credit entry: %w", err)
	}
	return entry, nil
}

func requestRef(requestID int64) string {
	return fmt.Sprintf("request:%d", requestID)
}

func revisionRef(requestID int64, n int) string {
	return fmt.Sprintf("request:%d:revision:%d", requestID, n)
}

func paymentRef(paymentID int64) string {
	return fmt.Sprintf("payment:%d", paymentID)
}
