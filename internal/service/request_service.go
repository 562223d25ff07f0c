package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/notify"
	"github.com/GTDGit/marketplace_api/internal/pricing"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/revision"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// CreateRequestInput is a client's request submission.
type CreateRequestInput struct {
	Title              string                     `json:"title" binding:"required,max=255"`
	Description        string                     `json:"description"`
	ServiceTypeID      int64                      `json:"serviceTypeId" binding:"required,min=1"`
	Priority           int                        `json:"priority" binding:"omitempty,min=1,max=3"`
	AttributeResponses []models.AttributeResponse `json:"attributeResponses"`
	IdempotencyKey     string                     `json:"-"`
}

// CreateRequestResult is returned by Create.
type CreateRequestResult struct {
	Success          bool              `json:"success"`
	Request          *models.Request   `json:"request"`
	Cost             pricing.Breakdown `json:"cost"`
	CreditsRemaining int               `json:"creditsRemaining"`
	Message          string            `json:"message"`
	Replayed         bool              `json:"replayed,omitempty"`
}

// RevisionResult is returned by RequestRevision.
type RevisionResult struct {
	Allowed          bool            `json:"allowed"`
	IsFree           bool            `json:"isFree"`
	CreditsCharged   int             `json:"creditsCharged"`
	CreditsRemaining *int            `json:"creditsRemaining,omitempty"`
	Message          string          `json:"message"`
	Request          *models.Request `json:"request"`
}

// RequestService orchestrates the request lifecycle.
type RequestService struct {
	store       repository.Store
	entitlement *EntitlementService
	ledger      *LedgerService
	notifier    Notifier
	idempotency IdempotencyStore
	now         func() time.Time
}

// NewRequestService constructs a RequestService. notifier and idempotency may be nil.
func NewRequestService(
	store repository.Store,
	entitlement *EntitlementService,
	ledger *LedgerService,
	notifier Notifier,
	idempotency IdempotencyStore,
) *RequestService {
	return &RequestService{
		store:       store,
		entitlement: entitlement,
		ledger:      ledger,
		notifier:    notifier,
		idempotency: idempotency,
		now:         time.Now,
	}
}

// Create prices and files a new request. The deduction, the request row and
// its opening comment commit together or not at all.
func (s *RequestService) Create(ctx context.Context, clientID int64, in CreateRequestInput) (*CreateRequestResult, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, utils.ErrInvalidRequest.WithMessage("Title is required")
	}
	if in.Priority == 0 {
		in.Priority = models.PriorityMedium
	}
	if in.Priority < models.PriorityLow || in.Priority > models.PriorityHigh {
		return nil, utils.ErrInvalidPriority
	}

	scope := strconv.FormatInt(clientID, 10)
	guarded := false
	if in.IdempotencyKey != "" && s.idempotency != nil {
		existingID, reserved, err := s.idempotency.Reserve(ctx, scope, in.IdempotencyKey)
		switch {
		case err != nil:
			log.Warn().Err(err).Int64("client_id", clientID).Msg("Idempotency guard unavailable, continuing without it")
		case reserved:
			guarded = true
		case existingID > 0:
			return s.replay(ctx, clientID, existingID)
		default:
			return nil, utils.ErrDuplicateSubmission
		}
	}

	res, err := s.create(ctx, clientID, in)
	if guarded {
		if err != nil {
			if rerr := s.idempotency.Release(ctx, scope, in.IdempotencyKey); rerr != nil {
				log.Warn().Err(rerr).Msg("Failed to release idempotency key")
			}
		} else if berr := s.idempotency.Bind(ctx, scope, in.IdempotencyKey, res.Request.ID); berr != nil {
			log.Warn().Err(berr).Int64("request_id", res.Request.ID).Msg("Failed to bind idempotency key")
		}
	}
	return res, err
}

func (s *RequestService) create(ctx context.Context, clientID int64, in CreateRequestInput) (*CreateRequestResult, error) {
	repos := s.store.Repos()

	st, err := repos.ServiceTypes.GetByID(ctx, in.ServiceTypeID)
	if err != nil {
		return nil, notFound(err, utils.ErrServiceTypeNotFound)
	}
	if !st.IsAvailable() {
		return nil, utils.ErrServiceTypeNotFound
	}

	if err := s.entitlement.CheckAccess(ctx, clientID, st.ID); err != nil {
		return nil, err
	}

	if problems := pricing.ValidateAttributeResponses(st.Attributes, in.AttributeResponses); len(problems) > 0 {
		return nil, utils.ErrInvalidAttributes.WithDetails(problems)
	}

	cost := pricing.CalculateCost(st, in.AttributeResponses, in.Priority)

	req := &models.Request{
		Title:              in.Title,
		Description:        strings.TrimSpace(in.Description),
		ClientID:           clientID,
		ServiceTypeID:      st.ID,
		Status:             models.StatusPending,
		Priority:           in.Priority,
		CreditCost:         cost.Total,
		BaseCreditCost:     cost.Base,
		AttributeCredits:   cost.AttributeSurcharge,
		PriorityCreditCost: cost.PrioritySurcharge,
		AttributeResponses: models.AttributeResponses(in.AttributeResponses),
	}

	// The debit runs before the insert so a refused charge never reaches the
	// requests table. Its reference is bound once the request has an id.
	var debit *Debit
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		debit, err = s.ledger.Deduct(ctx, r, clientID, cost.Total, "", "Request: "+req.Title)
		if err != nil {
			return err
		}
		if err := r.Requests.Create(ctx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if err := r.Ledger.BindReference(ctx, debit.EntryID, requestRef(req.ID)); err != nil {
			return fmt.Errorf("bind ledger reference: %w", err)
		}
		return r.Comments.Create(ctx, &models.RequestComment{
			RequestID: req.ID,
			Kind:      models.CommentSystem,
			Body: fmt.Sprintf("Request created. %d credits charged (base %d, attributes %d, priority %d).",
				cost.Total, cost.Base, cost.AttributeSurcharge, cost.PrioritySurcharge),
			CreditsCharged: cost.Total,
		})
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Invalidate(ctx, clientID)

	log.Info().
		Int64("request_id", req.ID).
		Int64("client_id", clientID).
		Int64("service_type_id", st.ID).
		Int("credits", cost.Total).
		Int("balance", debit.NewBalance).
		Msg("Request created")

	s.notifyProviders(req, st)

	return &CreateRequestResult{
		Success:          true,
		Request:          req,
		Cost:             cost,
		CreditsRemaining: debit.NewBalance,
		Message:          fmt.Sprintf("Request created. %d credits charged, %d remaining", cost.Total, debit.NewBalance),
	}, nil
}

// replay answers a resubmission with the request created the first time.
func (s *RequestService) replay(ctx context.Context, clientID, requestID int64) (*CreateRequestResult, error) {
	repos := s.store.Repos()
	req, err := repos.Requests.GetByID(ctx, requestID)
	if err != nil || req.ClientID != clientID {
		return nil, utils.ErrDuplicateSubmission
	}
	remaining := 0
	if sub, err := repos.Subscriptions.GetLive(ctx, clientID, s.now()); err == nil {
		remaining = sub.RemainingCredits
	}
	return &CreateRequestResult{
		Success: true,
		Request: req,
		Cost: pricing.Breakdown{
			Base:               req.BaseCreditCost,
			AttributeSurcharge: req.AttributeCredits,
			PrioritySurcharge:  req.PriorityCreditCost,
			Total:              req.CreditCost,
		},
		CreditsRemaining: remaining,
		Message:          "Request already created for this idempotency key",
		Replayed:         true,
	}, nil
}

// RequestRevision sends a delivered request back to its provider. Revisions
// beyond the service type's free allowance are charged at its current paid
// revision cost.
func (s *RequestService) RequestRevision(ctx context.Context, requestID, clientID int64, feedback string) (*RevisionResult, error) {
	repos := s.store.Repos()
	req, err := repos.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, utils.ErrRequestNotFound)
	}
	if req.ClientID != clientID {
		return nil, utils.ErrNotRequestOwner
	}

	st, err := repos.ServiceTypes.GetByID(ctx, req.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("load service type %d: %w", req.ServiceTypeID, err)
	}

	policy := revision.PolicyFor(st)
	dec := revision.Decide(req.Status, revision.Counters{
		RevisionCount: req.RevisionCount,
		FreeUsed:      req.FreeRevisionsUsed,
	}, policy)
	if !dec.Allowed {
		return nil, utils.ErrInvalidStatus.WithMessage(fmt.Sprintf(
			"Revisions can only be requested on delivered work. This request is %s", req.Status))
	}

	now := s.now()
	feedback = strings.TrimSpace(feedback)
	freeUsedAfter := dec.Next.FreeUsed
	var (
		updated *models.Request
		debit   *Debit
	)
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		updated, err = r.Requests.ApplyRevision(ctx, req.ID, req.RevisionCount, dec.Next.RevisionCount, dec.Next.FreeUsed, now)
		if isNoRows(err) {
			return utils.ErrInvalidStatus.WithMessage("This request is no longer awaiting review")
		}
		if err != nil {
			return fmt.Errorf("apply revision: %w", err)
		}

		body := fmt.Sprintf("Revision #%d requested (free, %d of %d free revisions used).",
			dec.Next.RevisionCount, dec.Next.FreeUsed, policy.MaxFree)
		if !dec.IsFree {
			debit, err = s.ledger.Deduct(ctx, r, clientID, dec.Cost,
				revisionRef(req.ID, dec.Next.RevisionCount), fmt.Sprintf("Paid revision #%d: %s", dec.Next.RevisionCount, req.Title))
			if err != nil {
				return err
			}
			body = fmt.Sprintf("Revision #%d requested (paid, %d credits charged).", dec.Next.RevisionCount, dec.Cost)
		}

		if err := r.Comments.Create(ctx, &models.RequestComment{
			RequestID:      req.ID,
			AuthorID:       &clientID,
			Kind:           models.CommentRevision,
			Body:           body,
			CreditsCharged: dec.Cost,
			FreeUsedAfter:  &freeUsedAfter,
		}); err != nil {
			return fmt.Errorf("create revision comment: %w", err)
		}
		if feedback == "" {
			return nil
		}
		return r.Comments.Create(ctx, &models.RequestComment{
			RequestID: req.ID,
			AuthorID:  &clientID,
			Kind:      models.CommentClient,
			Body:      feedback,
		})
	})
	if err != nil {
		return nil, err
	}

	result := &RevisionResult{
		Allowed: true,
		IsFree:  dec.IsFree,
		Request: updated,
	}
	if dec.IsFree {
		left := policy.MaxFree - dec.Next.FreeUsed
		result.Message = fmt.Sprintf("Revision requested. %d free revisions left", left)
	} else {
		s.ledger.Invalidate(ctx, clientID)
		result.CreditsCharged = dec.Cost
		result.CreditsRemaining = &debit.NewBalance
		result.Message = fmt.Sprintf("Revision requested. %d credits charged, %d remaining", dec.Cost, debit.NewBalance)
	}

	log.Info().
		Int64("request_id", req.ID).
		Int64("client_id", clientID).
		Int("revision", dec.Next.RevisionCount).
		Bool("free", dec.IsFree).
		Int("credits", dec.Cost).
		Msg("Revision requested")

	if updated.ProviderID != nil {
		dispatch(s.notifier, notify.Event{
			Type:          notify.EventRevisionRequested,
			Recipients:    []int64{*updated.ProviderID},
			RequestID:     updated.ID,
			ServiceTypeID: updated.ServiceTypeID,
			Status:        string(updated.Status),
			Title:         updated.Title,
			Message:       fmt.Sprintf("Revision #%d requested on %q", dec.Next.RevisionCount, updated.Title),
		})
	}
	return result, nil
}

// notifyProviders tells every provider serving the request's service type
// about new work. It runs in the background and never fails the caller.
func (s *RequestService) notifyProviders(req *models.Request, st *models.ServiceType) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		providers, err := s.store.Repos().Users.ListProvidersForServiceType(ctx, st.ID)
		if err != nil {
			log.Warn().Err(err).Int64("request_id", req.ID).Msg("Failed to load providers for notification")
			return
		}
		ids := make([]int64, 0, len(providers))
		for _, p := range providers {
			ids = append(ids, p.ID)
		}
		if len(ids) == 0 {
			return
		}
		ev := notify.Event{
			Type:          notify.EventRequestCreated,
			Recipients:    ids,
			RequestID:     req.ID,
			ServiceTypeID: st.ID,
			Status:        string(req.Status),
			Title:         req.Title,
			Message:       fmt.Sprintf("New %s request: %s", st.Name, req.Title),
			OccurredAt:    s.now(),
		}
		if err := s.notifier.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Int64("request_id", req.ID).Msg("Failed to publish notification")
		}
	}()
}
