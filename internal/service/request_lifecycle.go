package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/notify"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/revision"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID int64
	Role   models.UserRole
}

// RevisionAudit compares persisted revision counters with the ones rebuilt
// from the request's revision log.
type RevisionAudit struct {
	RequestID  int64             `json:"requestId"`
	Stored     revision.Counters `json:"stored"`
	Recomputed revision.Counters `json:"recomputed"`
	Consistent bool              `json:"consistent"`
}

// Get returns a request visible to the actor.
func (s *RequestService) Get(ctx context.Context, actor Actor, requestID int64) (*models.Request, error) {
	req, err := s.store.Repos().Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, utils.ErrRequestNotFound)
	}
	if err := s.authorizeView(ctx, actor, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) authorizeView(ctx context.Context, actor Actor, req *models.Request) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleClient:
		if req.ClientID == actor.UserID {
			return nil
		}
		return utils.ErrNotRequestOwner
	case models.RoleProvider:
		if req.ProviderID != nil {
			if *req.ProviderID == actor.UserID {
				return nil
			}
			return utils.ErrNotAssignedProvider
		}
		ok, err := s.store.Repos().Users.ProviderServes(ctx, actor.UserID, req.ServiceTypeID)
		if err != nil {
			return fmt.Errorf("check provider service: %w", err)
		}
		if !ok {
			return utils.ErrProviderNotQualified
		}
		return nil
	}
	return utils.ErrRoleNotAllowed
}

// ListForClient lists the client's requests, newest first.
func (s *RequestService) ListForClient(ctx context.Context, clientID int64, limit, offset int) ([]*models.Request, int, error) {
	return s.store.Repos().Requests.ListByClient(ctx, clientID, limit, offset)
}

// ListForProvider lists requests assigned to the provider.
func (s *RequestService) ListForProvider(ctx context.Context, providerID int64, limit, offset int) ([]*models.Request, int, error) {
	return s.store.Repos().Requests.ListByProvider(ctx, providerID, limit, offset)
}

// ListOpenForProvider lists unclaimed requests for the service types the
// provider serves.
func (s *RequestService) ListOpenForProvider(ctx context.Context, providerID int64, limit, offset int) ([]*models.Request, int, error) {
	repos := s.store.Repos()
	ids, err := repos.Users.ListProviderServiceTypes(ctx, providerID)
	if err != nil {
		return nil, 0, fmt.Errorf("load provider service types: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Request{}, 0, nil
	}
	return repos.Requests.ListOpen(ctx, ids, limit, offset)
}

// Claim assigns an unclaimed request to the provider and starts work on it.
func (s *RequestService) Claim(ctx context.Context, requestID, providerID int64) (*models.Request, error) {
	repos := s.store.Repos()
	req, err := repos.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, utils.ErrRequestNotFound)
	}
	ok, err := repos.Users.ProviderServes(ctx, providerID, req.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("check provider service: %w", err)
	}
	if !ok {
		return nil, utils.ErrProviderNotQualified
	}
	if req.ProviderID != nil {
		return nil, utils.ErrAlreadyClaimed
	}
	if req.Status != models.StatusPending {
		return nil, invalidStatus(req.Status, "claimed")
	}

	var updated *models.Request
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		updated, err = r.Requests.Claim(ctx, req.ID, providerID, s.now())
		if isNoRows(err) {
			return utils.ErrAlreadyClaimed
		}
		if err != nil {
			return fmt.Errorf("claim request: %w", err)
		}
		return r.Comments.Create(ctx, &models.RequestComment{
			RequestID: req.ID,
			AuthorID:  &providerID,
			Kind:      models.CommentSystem,
			Body:      "Request claimed by provider. Work has started.",
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("request_id", req.ID).Int64("provider_id", providerID).Msg("Request claimed")
	s.notifyClient(updated, notify.EventRequestClaimed, fmt.Sprintf("Your request %q is now in progress", updated.Title))
	return updated, nil
}

// StartRevision moves a request sent back for revision into progress.
func (s *RequestService) StartRevision(ctx context.Context, requestID, providerID int64) (*models.Request, error) {
	return s.providerTransition(ctx, requestID, providerID,
		[]models.RequestStatus{models.StatusRevisionRequested}, models.StatusInProgress,
		"Provider started working on the revision.", nil)
}

// DeliverInput is a provider's delivery.
type DeliverInput struct {
	Message string  `json:"message"`
	FileURL *string `json:"fileUrl"`
}

// Deliver hands the work to the client for review.
func (s *RequestService) Deliver(ctx context.Context, requestID, providerID int64, in DeliverInput) (*models.Request, error) {
	body := strings.TrimSpace(in.Message)
	if body == "" && in.FileURL == nil {
		return nil, utils.ErrInvalidRequest.WithMessage("A delivery needs a message or a file")
	}
	if body == "" {
		body = "Work delivered."
	}
	delivery := &models.RequestComment{Kind: models.CommentDelivery, Body: body, FileURL: in.FileURL}

	updated, err := s.providerTransition(ctx, requestID, providerID,
		[]models.RequestStatus{models.StatusInProgress, models.StatusRevisionRequested}, models.StatusDelivered,
		"", delivery)
	if err != nil {
		return nil, err
	}
	s.notifyClient(updated, notify.EventRequestDelivered, fmt.Sprintf("Your request %q has been delivered", updated.Title))
	return updated, nil
}

func (s *RequestService) providerTransition(
	ctx context.Context,
	requestID, providerID int64,
	from []models.RequestStatus,
	to models.RequestStatus,
	note string,
	comment *models.RequestComment,
) (*models.Request, error) {
	req, err := s.store.Repos().Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, utils.ErrRequestNotFound)
	}
	if req.ProviderID == nil || *req.ProviderID != providerID {
		return nil, utils.ErrNotAssignedProvider
	}
	if !statusIn(req.Status, from) || !models.CanTransition(req.Status, to) {
		return nil, invalidStatus(req.Status, strings.ToLower(string(to)))
	}

	if comment == nil {
		comment = &models.RequestComment{Kind: models.CommentSystem, Body: note}
	}
	comment.RequestID = req.ID
	comment.AuthorID = &providerID

	var updated *models.Request
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		updated, err = r.Requests.Transition(ctx, req.ID, req.Status, to, s.now())
		if isNoRows(err) {
			return utils.ErrInvalidStatus.WithMessage("Request changed while you were working on it. Reload and try again")
		}
		if err != nil {
			return fmt.Errorf("transition request: %w", err)
		}
		return r.Comments.Create(ctx, comment)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("request_id", req.ID).
		Str("from", string(req.Status)).
		Str("to", string(to)).
		Msg("Request status changed")
	return updated, nil
}

// Complete accepts the delivered work.
func (s *RequestService) Complete(ctx context.Context, requestID, clientID int64) (*models.Request, error) {
	req, err := s.ownedRequest(ctx, requestID, clientID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusDelivered {
		return nil, invalidStatus(req.Status, "completed")
	}

	var updated *models.Request
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		updated, err = r.Requests.Transition(ctx, req.ID, models.StatusDelivered, models.StatusCompleted, s.now())
		if isNoRows(err) {
			return utils.ErrInvalidStatus.WithMessage("This request is no longer awaiting review")
		}
		if err != nil {
			return fmt.Errorf("complete request: %w", err)
		}
		return r.Comments.Create(ctx, &models.RequestComment{
			RequestID: req.ID,
			AuthorID:  &clientID,
			Kind:      models.CommentSystem,
			Body:      "Client accepted the delivery. Request completed.",
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("request_id", req.ID).Msg("Request completed")
	if updated.ProviderID != nil {
		dispatch(s.notifier, notify.Event{
			Type:       notify.EventRequestCompleted,
			Recipients: []int64{*updated.ProviderID},
			RequestID:  updated.ID,
			Status:     string(updated.Status),
			Title:      updated.Title,
			Message:    fmt.Sprintf("%q was accepted by the client", updated.Title),
		})
	}
	return updated, nil
}

// CancelResult is returned by Cancel.
type CancelResult struct {
	Request         *models.Request `json:"request"`
	CreditsRefunded int             `json:"creditsRefunded"`
}

// Cancel withdraws an unclaimed request and refunds its cost. The refund goes
// to the client's live subscription, or to the one originally charged when
// none is live.
func (s *RequestService) Cancel(ctx context.Context, requestID, clientID int64) (*CancelResult, error) {
	req, err := s.ownedRequest(ctx, requestID, clientID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending || req.ProviderID != nil {
		return nil, invalidStatus(req.Status, "cancelled")
	}

	now := s.now()
	var updated *models.Request
	refunded := 0
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		updated, err = r.Requests.Transition(ctx, req.ID, models.StatusPending, models.StatusCancelled, now)
		if isNoRows(err) {
			return utils.ErrInvalidStatus.WithMessage("This request has already been picked up")
		}
		if err != nil {
			return fmt.Errorf("cancel request: %w", err)
		}

		charge, err := r.Ledger.FindByReference(ctx, requestRef(req.ID), models.CreditDebit)
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("find request charge: %w", err)
		}
		if charge != nil {
			target := charge.SubscriptionID
			if live, lerr := r.Subscriptions.GetLive(ctx, clientID, now); lerr == nil {
				target = live.ID
			} else if !isNoRows(lerr) {
				return fmt.Errorf("load live subscription: %w", lerr)
			}
			if _, err := s.ledger.Refund(ctx, r, target, -charge.Delta, requestRef(req.ID)+":refund", "Cancelled: "+req.Title); err != nil {
				return err
			}
			refunded = -charge.Delta
		}

		return r.Comments.Create(ctx, &models.RequestComment{
			RequestID: req.ID,
			AuthorID:  &clientID,
			Kind:      models.CommentSystem,
			Body:      fmt.Sprintf("Request cancelled by client. %d credits refunded.", refunded),
		})
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Invalidate(ctx, clientID)

	log.Info().Int64("request_id", req.ID).Int("refunded", refunded).Msg("Request cancelled")
	return &CancelResult{Request: updated, CreditsRefunded: refunded}, nil
}

// Rate scores a completed request once.
func (s *RequestService) Rate(ctx context.Context, requestID, clientID int64, rating int) (*models.Request, error) {
	if rating < 1 || rating > 5 {
		return nil, utils.ErrInvalidRating
	}
	req, err := s.ownedRequest(ctx, requestID, clientID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusCompleted {
		return nil, invalidStatus(req.Status, "rated")
	}
	if req.Rating != nil {
		return nil, utils.ErrAlreadyRated
	}

	updated, err := s.store.Repos().Requests.SetRating(ctx, req.ID, rating, s.now())
	if isNoRows(err) {
		return nil, utils.ErrAlreadyRated
	}
	if err != nil {
		return nil, fmt.Errorf("rate request: %w", err)
	}
	return updated, nil
}

// CommentInput is a free-form message on a request.
type CommentInput struct {
	Body    string  `json:"body"`
	FileURL *string `json:"fileUrl"`
}

// AddComment appends a client or provider message.
func (s *RequestService) AddComment(ctx context.Context, actor Actor, requestID int64, in CommentInput) (*models.RequestComment, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, utils.ErrInvalidRequest.WithMessage("Comment body is required")
	}
	repos := s.store.Repos()
	req, err := repos.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, utils.ErrRequestNotFound)
	}

	var kind models.CommentKind
	var recipient *int64
	switch {
	case actor.Role == models.RoleClient && req.ClientID == actor.UserID:
		kind = models.CommentClient
		recipient = req.ProviderID
	case actor.Role == models.RoleProvider && req.ProviderID != nil && *req.ProviderID == actor.UserID:
		kind = models.CommentProvider
		recipient = &req.ClientID
	case actor.Role == models.RoleAdmin:
		kind = models.CommentSystem
		recipient = &req.ClientID
	default:
		return nil, utils.ErrNotRequestOwner.WithMessage("Only the request's client and assigned provider can comment")
	}
	if req.Status.IsTerminal() {
		return nil, invalidStatus(req.Status, "commented on")
	}

	c := &models.RequestComment{
		RequestID: req.ID,
		AuthorID:  &actor.UserID,
		Kind:      kind,
		Body:      body,
		FileURL:   in.FileURL,
	}
	if err := repos.Comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	if recipient != nil {
		dispatch(s.notifier, notify.Event{
			Type:       notify.EventCommentAdded,
			Recipients: []int64{*recipient},
			RequestID:  req.ID,
			Status:     string(req.Status),
			Title:      req.Title,
			Message:    fmt.Sprintf("New message on %q", req.Title),
		})
	}
	return c, nil
}

// ListComments returns the request's log, oldest first.
func (s *RequestService) ListComments(ctx context.Context, actor Actor, requestID int64) ([]*models.RequestComment, error) {
	if _, err := s.Get(ctx, actor, requestID); err != nil {
		return nil, err
	}
	return s.store.Repos().Comments.ListByRequest(ctx, requestID)
}

// AuditRevisions rebuilds the revision counters from the revision log.
func (s *RequestService) AuditRevisions(ctx context.Context, requestID int64) (*RevisionAudit, error) {
	repos := s.store.Repos()
	req, err := repos.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, utils.ErrRequestNotFound)
	}
	st, err := repos.ServiceTypes.GetByID(ctx, req.ServiceTypeID)
	if err != nil {
		return nil, fmt.Errorf("load service type %d: %w", req.ServiceTypeID, err)
	}
	entries, err := repos.Comments.ListByRequestAndKind(ctx, req.ID, models.CommentRevision)
	if err != nil {
		return nil, fmt.Errorf("load revision log: %w", err)
	}

	history := make([]revision.Entry, 0, len(entries))
	for _, c := range entries {
		history = append(history, revision.Entry{Paid: c.CreditsCharged > 0, FreeUsedAfter: c.FreeUsedAfter})
	}
	stored := revision.Counters{RevisionCount: req.RevisionCount, FreeUsed: req.FreeRevisionsUsed}
	recomputed := revision.Recount(history, revision.PolicyFor(st))
	return &RevisionAudit{
		RequestID:  req.ID,
		Stored:     stored,
		Recomputed: recomputed,
		Consistent: stored == recomputed,
	}, nil
}

// StaleRequests lists unclaimed requests older than age and alerts admins.
func (s *RequestService) StaleRequests(ctx context.Context, age time.Duration) ([]*models.Request, error) {
	repos := s.store.Repos()
	stale, err := repos.Requests.ListStalePending(ctx, s.now().Add(-age))
	if err != nil {
		return nil, fmt.Errorf("list stale requests: %w", err)
	}
	if len(stale) == 0 {
		return stale, nil
	}

	admins, err := repos.Users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		return stale, fmt.Errorf("list admins: %w", err)
	}
	ids := make([]int64, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	for _, req := range stale {
		dispatch(s.notifier, notify.Event{
			Type:          notify.EventRequestStale,
			Recipients:    ids,
			RequestID:     req.ID,
			ServiceTypeID: req.ServiceTypeID,
			Status:        string(req.Status),
			Title:         req.Title,
			Message:       fmt.Sprintf("%q has not been claimed since %s", req.Title, req.CreatedAt.Format(time.RFC3339)),
		})
	}
	return stale, nil
}

func (s *RequestService) ownedRequest(ctx context.Context, requestID, clientID int64) (*models.Request, error) {
	req, err := s.store.Repos().Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFound(err, utils.ErrRequestNotFound)
	}
	if req.ClientID != clientID {
		return nil, utils.ErrNotRequestOwner
	}
	return req, nil
}

func (s *RequestService) notifyClient(req *models.Request, eventType, msg string) {
	dispatch(s.notifier, notify.Event{
		Type:          eventType,
		Recipients:    []int64{req.ClientID},
		RequestID:     req.ID,
		ServiceTypeID: req.ServiceTypeID,
		Status:        string(req.Status),
		Title:         req.Title,
		Message:       msg,
	})
}

func statusIn(s models.RequestStatus, set []models.RequestStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func invalidStatus(current models.RequestStatus, action string) error {
	return utils.ErrInvalidStatus.WithMessage(fmt.Sprintf("A %s request cannot be %s", current, action))
}
