package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/notify"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

var proofExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// ProofUpload is a payment proof file received from a client.
type ProofUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ApproveResult is returned by Approve.
type ApproveResult struct {
	Payment      *models.Payment            `json:"payment"`
	Subscription *models.ClientSubscription `json:"subscription"`
	Message      string                     `json:"message"`
}

// PaymentService runs the manual bank-transfer verification workflow.
type PaymentService struct {
	store    repository.Store
	ledger   *LedgerService
	storage  ProofStorage
	notifier Notifier
	maxProof int64
	now      func() time.Time
}

// NewPaymentService constructs a PaymentService. storage and notifier may be nil.
func NewPaymentService(store repository.Store, ledger *LedgerService, storage ProofStorage, notifier Notifier, maxProofBytes int64) *PaymentService {
	return &PaymentService{
		store:    store,
		ledger:   ledger,
		storage:  storage,
		notifier: notifier,
		maxProof: maxProofBytes,
		now:      time.Now,
	}
}

// SubmitProof stores the transfer receipt of a pending subscription's payment.
func (s *PaymentService) SubmitProof(ctx context.Context, clientID, subscriptionID int64, up ProofUpload) (*models.Payment, error) {
	if s.storage == nil {
		return nil, utils.ErrProofStorageUnavailable
	}
	ext, ok := proofExtensions[strings.ToLower(strings.TrimSpace(up.ContentType))]
	if !ok {
		return nil, utils.ErrInvalidRequest.WithMessage("Payment proof must be a JPEG, PNG, WebP or PDF file")
	}
	if up.Size <= 0 || (s.maxProof > 0 && up.Size > s.maxProof) {
		return nil, utils.ErrInvalidRequest.WithMessage(fmt.Sprintf("Payment proof must be between 1 byte and %d bytes", s.maxProof))
	}

	repos := s.store.Repos()
	sub, err := repos.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, notFound(err, utils.ErrSubscriptionNotFound)
	}
	if sub.ClientID != clientID {
		return nil, utils.ErrSubscriptionNotFound
	}
	if !sub.IsPending() {
		return nil, utils.ErrSubscriptionNotPending
	}

	payment, err := repos.Payments.GetPendingBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, notFound(err, utils.ErrPaymentNotFound)
	}
	if payment.ProofKey != nil {
		return nil, utils.ErrProofExists
	}

	key := path.Join("payments", fmt.Sprintf("%d", payment.ID), uuid.NewString()+ext)
	if err := s.storage.Upload(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return nil, fmt.Errorf("upload payment proof: %w", err)
	}
	if err := repos.Payments.AttachProof(ctx, payment.ID, key); err != nil {
		return nil, notFound(err, utils.ErrProofExists)
	}
	payment.ProofKey = &key

	log.Info().
		Int64("payment_id", payment.ID).
		Int64("client_id", clientID).
		Str("key", key).
		Msg("Payment proof submitted")

	s.notifyAdmins(ctx, notify.Event{
		Type:           notify.EventPaymentSubmitted,
		SubscriptionID: sub.ID,
		PaymentID:      payment.ID,
		Message:        fmt.Sprintf("Payment #%d of %s is waiting for review", payment.ID, payment.Amount.StringFixed(2)),
	})
	return payment, nil
}

// Approve activates the payment's subscription with fresh dates and the
// package's credits. Any other live subscription of the client ends.
func (s *PaymentService) Approve(ctx context.Context, paymentID, adminID int64) (*ApproveResult, error) {
	payment, err := s.store.Repos().Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, utils.ErrPaymentNotFound)
	}
	if payment.Status != models.PaymentPending {
		return nil, utils.ErrPaymentNotPending
	}

	now := s.now()
	var (
		reviewed *models.Payment
		sub      *models.ClientSubscription
		pkg      *models.Package
	)
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		reviewed, err = r.Payments.Review(ctx, payment.ID, models.PaymentApproved, &adminID, nil, now)
		if err != nil {
			return notFound(err, utils.ErrPaymentNotPending)
		}
		pkg, err = r.Packages.GetByID(ctx, payment.PackageID)
		if err != nil {
			return fmt.Errorf("load package %d: %w", payment.PackageID, err)
		}
		if _, err := r.Subscriptions.DeactivateLive(ctx, payment.ClientID, now); err != nil {
			return fmt.Errorf("deactivate live subscriptions: %w", err)
		}
		sub, err = r.Subscriptions.Activate(ctx, payment.SubscriptionID, now, now.AddDate(0, 0, pkg.DurationDays), pkg.Credits)
		if err != nil {
			return notFound(err, utils.ErrSubscriptionNotPending)
		}
		_, err = s.ledger.RecordGrant(ctx, r, sub, paymentRef(payment.ID), "Package: "+pkg.Name)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Invalidate(ctx, payment.ClientID)

	log.Info().
		Int64("payment_id", payment.ID).
		Int64("admin_id", adminID).
		Int64("subscription_id", sub.ID).
		Int("credits", sub.RemainingCredits).
		Msg("Payment approved")

	dispatch(s.notifier, notify.Event{
		Type:           notify.EventPaymentApproved,
		Recipients:     []int64{payment.ClientID},
		SubscriptionID: sub.ID,
		PaymentID:      payment.ID,
		Message:        fmt.Sprintf("Your %s subscription is active with %d credits", pkg.Name, sub.RemainingCredits),
	})

	return &ApproveResult{
		Payment:      reviewed,
		Subscription: sub,
		Message:      fmt.Sprintf("Subscription activated with %d credits until %s", sub.RemainingCredits, sub.EndDate.Format("2006-01-02")),
	}, nil
}

// Reject declines the payment and cancels the pending subscription.
func (s *PaymentService) Reject(ctx context.Context, paymentID, adminID int64, reason string) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, utils.ErrInvalidRequest.WithMessage("A rejection reason is required")
	}
	payment, err := s.store.Repos().Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, utils.ErrPaymentNotFound)
	}
	if payment.Status != models.PaymentPending {
		return nil, utils.ErrPaymentNotPending
	}

	now := s.now()
	var reviewed *models.Payment
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		reviewed, err = r.Payments.Review(ctx, payment.ID, models.PaymentRejected, &adminID, &reason, now)
		if err != nil {
			return notFound(err, utils.ErrPaymentNotPending)
		}
		if err := r.Subscriptions.Cancel(ctx, payment.SubscriptionID, now); err != nil && !isNoRows(err) {
			return fmt.Errorf("cancel subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Invalidate(ctx, payment.ClientID)

	log.Info().Int64("payment_id", payment.ID).Int64("admin_id", adminID).Str("reason", reason).Msg("Payment rejected")

	dispatch(s.notifier, notify.Event{
		Type:           notify.EventPaymentRejected,
		Recipients:     []int64{payment.ClientID},
		SubscriptionID: payment.SubscriptionID,
		PaymentID:      payment.ID,
		Message:        "Your payment was rejected: " + reason,
	})
	return reviewed, nil
}

// List returns payments filtered by status, newest first.
func (s *PaymentService) List(ctx context.Context, status models.PaymentStatus, limit, offset int) ([]*models.Payment, int, error) {
	return s.store.Repos().Payments.List(ctx, status, limit, offset)
}

// ProofURL returns a short-lived link to the payment's proof.
func (s *PaymentService) ProofURL(ctx context.Context, paymentID int64) (string, error) {
	if s.storage == nil {
		return "", utils.ErrProofStorageUnavailable
	}
	payment, err := s.store.Repos().Payments.GetByID(ctx, paymentID)
	if err != nil {
		return "", notFound(err, utils.ErrPaymentNotFound)
	}
	if payment.ProofKey == nil {
		return "", utils.ErrPaymentNotFound.WithMessage("No proof has been submitted for this payment")
	}
	return s.storage.PresignGet(ctx, *payment.ProofKey, 15*time.Minute)
}

func (s *PaymentService) notifyAdmins(ctx context.Context, ev notify.Event) {
	if s.notifier == nil {
		return
	}
	admins, err := s.store.Repos().Users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load admins for notification")
		return
	}
	for _, a := range admins {
		ev.Recipients = append(ev.Recipients, a.ID)
	}
	dispatch(s.notifier, ev)
}
