package service

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/notify"
	"github.com/GTDGit/marketplace_api/internal/repository/memstore"
	"github.com/GTDGit/marketplace_api/internal/revision"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// rushService costs 2 credits, +1 for the "rush" option and +2 at high priority.
func rushService(st *models.ServiceType) {
	st.CreditCost = 2
	st.PriorityCostHigh = 2
	st.Attributes = models.ServiceAttributes{{
		Question: "Turnaround",
		Kind:     models.AttributeSingleChoice,
		Required: true,
		Options: []models.AttributeOption{
			{Label: "standard"},
			{Label: "rush", Surcharge: 1},
		},
	}}
}

func TestCreateFreezesCostAndCharges(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, rushService)
	client, sub := f.client(t, f.pkg(t, false, st.ID), 10)

	res, err := f.requests.Create(f.ctx(), client.ID, CreateRequestInput{
		Title:         "Landing page",
		ServiceTypeID: st.ID,
		Priority:      models.PriorityHigh,
		AttributeResponses: []models.AttributeResponse{
			{Question: "Turnaround", Answer: answer(t, "rush")},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := res.Request
	if req.CreditCost != 5 || req.BaseCreditCost != 2 || req.AttributeCredits != 1 || req.PriorityCreditCost != 2 {
		t.Errorf("cost = %d (%d+%d+%d), want 5 (2+1+2)", req.CreditCost, req.BaseCreditCost, req.AttributeCredits, req.PriorityCreditCost)
	}
	if req.Status != models.StatusPending {
		t.Errorf("status = %s, want %s", req.Status, models.StatusPending)
	}
	if res.CreditsRemaining != 5 {
		t.Errorf("CreditsRemaining = %d, want 5", res.CreditsRemaining)
	}
	if got := f.balance(t, sub.ID); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}

	comments := f.store.Comments(req.ID)
	if len(comments) != 1 || comments[0].Kind != models.CommentSystem || comments[0].CreditsCharged != 5 {
		t.Errorf("comments = %+v", comments)
	}
	entries := f.store.Ledger(client.ID)
	if len(entries) != 1 || entries[0].Reference == nil || *entries[0].Reference != requestRef(req.ID) {
		t.Errorf("ledger = %+v", entries)
	}

	// Repricing the service type must not touch the stored request.
	st.CreditCost = 9
	if err := f.store.Repos().ServiceTypes.Update(f.ctx(), st); err != nil {
		t.Fatalf("update service type: %v", err)
	}
	stored, err := f.store.Repos().Requests.GetByID(f.ctx(), req.ID)
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if stored.CreditCost != 5 || stored.BaseCreditCost != 2 {
		t.Errorf("stored cost = %d/%d after repricing, want 5/2", stored.CreditCost, stored.BaseCreditCost)
	}
}

func TestCreateConcurrentRequestsShareBalance(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, func(st *models.ServiceType) { st.CreditCost = 3 })
	client, sub := f.client(t, f.pkg(t, true), 5)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.requests.Create(f.ctx(), client.ID, CreateRequestInput{Title: "Banner", ServiceTypeID: st.ID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, utils.ErrInsufficientCredits):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", succeeded)
	}
	if got := f.balance(t, sub.ID); got != 2 {
		t.Errorf("balance = %d, want 2", got)
	}
	if got := f.store.RequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestCreateRollsBackOnWriteFailure(t *testing.T) {
	for _, op := range []string{memstore.OpRequestCreate, memstore.OpCommentCreate, memstore.OpLedgerAppend} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			st := f.serviceType(t, nil)
			client, sub := f.client(t, f.pkg(t, true), 10)

			f.store.FailOn(op, errors.New("disk full"))
			if _, err := f.requests.Create(f.ctx(), client.ID, CreateRequestInput{Title: "Logo", ServiceTypeID: st.ID}); err == nil {
				t.Fatal("expected error")
			}

			if got := f.balance(t, sub.ID); got != 10 {
				t.Errorf("balance = %d, want 10", got)
			}
			if got := f.store.RequestCount(); got != 0 {
				t.Errorf("requests = %d, want 0", got)
			}
			if got := len(f.store.Ledger(client.ID)); got != 0 {
				t.Errorf("ledger entries = %d, want 0", got)
			}
		})
	}
}

func TestCreateChargesBeforeInsert(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, nil)
	client, sub := f.client(t, f.pkg(t, true), 1)

	// With the insert broken, a refused charge must still surface as the refusal.
	f.store.FailOn(memstore.OpRequestCreate, errors.New("disk full"))
	_, err := f.requests.Create(f.ctx(), client.ID, CreateRequestInput{Title: "Logo", ServiceTypeID: st.ID})
	assertAppError(t, err, utils.ErrInsufficientCredits)
	f.store.FailOn(memstore.OpRequestCreate, nil)

	if got := f.balance(t, sub.ID); got != 1 {
		t.Errorf("balance = %d, want 1", got)
	}
	if got := len(f.store.Ledger(client.ID)); got != 0 {
		t.Errorf("ledger entries = %d, want 0", got)
	}

	funded, _ := f.client(t, f.pkg(t, true), 5)
	req := f.create(t, funded.ID, st.ID)
	entries := f.store.Ledger(funded.ID)
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	if ref := entries[0].Reference; ref == nil || *ref != "request:"+strconv.FormatInt(req.ID, 10) {
		t.Errorf("reference = %v, want request:%d", ref, req.ID)
	}
}

func TestCreateRefusals(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, rushService)
	other := f.serviceType(t, nil)
	inactive := f.serviceType(t, func(st *models.ServiceType) { st.IsActive = false })
	client, _ := f.client(t, f.pkg(t, false, st.ID, inactive.ID), 1)

	expired := f.user(t, models.RoleClient)
	f.subscription(t, expired.ID, f.pkg(t, true), 100, time.Now().Add(-time.Hour))

	rush := []models.AttributeResponse{{Question: "Turnaround", Answer: answer(t, "rush")}}
	tests := []struct {
		name     string
		clientID int64
		in       CreateRequestInput
		want     *utils.AppError
	}{
		{"missing title", client.ID, CreateRequestInput{ServiceTypeID: st.ID}, utils.ErrInvalidRequest},
		{"bad priority", client.ID, CreateRequestInput{Title: "x", ServiceTypeID: st.ID, Priority: 7}, utils.ErrInvalidPriority},
		{"unknown service", client.ID, CreateRequestInput{Title: "x", ServiceTypeID: 9999}, utils.ErrServiceTypeNotFound},
		{"inactive service", client.ID, CreateRequestInput{Title: "x", ServiceTypeID: inactive.ID}, utils.ErrServiceTypeNotFound},
		{"not in plan", client.ID, CreateRequestInput{Title: "x", ServiceTypeID: other.ID}, utils.ErrServiceNotInPlan},
		{"expired subscription", expired.ID, CreateRequestInput{Title: "x", ServiceTypeID: st.ID, AttributeResponses: rush}, utils.ErrNoActiveSubscription},
		{"missing required attribute", client.ID, CreateRequestInput{Title: "x", ServiceTypeID: st.ID}, utils.ErrInvalidAttributes},
		{"insufficient credits", client.ID, CreateRequestInput{Title: "x", ServiceTypeID: st.ID, AttributeResponses: rush}, utils.ErrInsufficientCredits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.requests.Create(f.ctx(), tt.clientID, tt.in)
			assertAppError(t, err, tt.want)
		})
	}
	if got := f.store.RequestCount(); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestCreateInvalidAttributesListsProblems(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, rushService)
	client, _ := f.client(t, f.pkg(t, true), 10)

	_, err := f.requests.Create(f.ctx(), client.ID, CreateRequestInput{
		Title:              "x",
		ServiceTypeID:      st.ID,
		AttributeResponses: []models.AttributeResponse{{Question: "Turnaround", Answer: answer(t, "yesterday")}},
	})
	appErr := assertAppError(t, err, utils.ErrInvalidAttributes)
	if len(appErr.Details) == 0 {
		t.Error("expected validation details")
	}
}

func TestCreateIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, nil)
	client, sub := f.client(t, f.pkg(t, true), 10)

	in := CreateRequestInput{Title: "Logo", ServiceTypeID: st.ID, IdempotencyKey: "abc"}
	first, err := f.requests.Create(f.ctx(), client.ID, in)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := f.requests.Create(f.ctx(), client.ID, in)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if !second.Replayed || second.Request.ID != first.Request.ID {
		t.Errorf("second = %+v, want replay of request %d", second, first.Request.ID)
	}
	if got := f.balance(t, sub.ID); got != 8 {
		t.Errorf("balance = %d, want 8", got)
	}

	// A key reserved by a submission still in flight is refused.
	scope := strconv.FormatInt(client.ID, 10)
	if _, reserved, err := f.idempotency.Reserve(f.ctx(), scope, "busy"); err != nil || !reserved {
		t.Fatalf("Reserve = %v, %v", reserved, err)
	}
	_, err = f.requests.Create(f.ctx(), client.ID, CreateRequestInput{Title: "Logo", ServiceTypeID: st.ID, IdempotencyKey: "busy"})
	assertAppError(t, err, utils.ErrDuplicateSubmission)

	// Keys are scoped per client.
	other, _ := f.client(t, f.pkg(t, true), 10)
	res, err := f.requests.Create(f.ctx(), other.ID, in)
	if err != nil {
		t.Fatalf("other client Create: %v", err)
	}
	if res.Replayed {
		t.Error("another client's key must not replay")
	}
}

func TestCreateReleasesKeyOnFailure(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, func(st *models.ServiceType) { st.CreditCost = 50 })
	client, _ := f.client(t, f.pkg(t, true), 10)

	in := CreateRequestInput{Title: "Logo", ServiceTypeID: st.ID, IdempotencyKey: "k1"}
	_, err := f.requests.Create(f.ctx(), client.ID, in)
	assertAppError(t, err, utils.ErrInsufficientCredits)

	if _, ok := f.idempotency.keys[strconv.FormatInt(client.ID, 10)+":k1"]; ok {
		t.Error("idempotency key should be released after a failed submission")
	}
}

func TestCreateNotifiesProviders(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, nil)
	provider := f.provider(t, st.ID)
	f.provider(t) // serves nothing
	client, _ := f.client(t, f.pkg(t, true), 10)

	req := f.create(t, client.ID, st.ID)

	ev := f.notifier.wait(t, notify.EventRequestCreated)
	if ev.RequestID != req.ID {
		t.Errorf("event request = %d, want %d", ev.RequestID, req.ID)
	}
	if len(ev.Recipients) != 1 || ev.Recipients[0] != provider.ID {
		t.Errorf("recipients = %v, want [%d]", ev.Recipients, provider.ID)
	}
}

func TestRevisionFreeThenPaidWithReset(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, func(st *models.ServiceType) {
		st.CreditCost = 1
		st.MaxFreeRevisions = 3
		st.PaidRevisionCost = 2
		st.ResetFreeRevisionsOnPaid = true
	})
	provider := f.provider(t, st.ID)
	client, sub := f.client(t, f.pkg(t, true), 10)
	req := f.create(t, client.ID, st.ID)

	wantFree := []bool{true, true, true, false, true, true, true}
	for i, free := range wantFree {
		f.deliver(t, req, provider.ID)
		before := f.balance(t, sub.ID)

		res, err := f.requests.RequestRevision(f.ctx(), req.ID, client.ID, "Please adjust the colours")
		if err != nil {
			t.Fatalf("revision %d: %v", i+1, err)
		}
		if res.IsFree != free {
			t.Errorf("revision %d: IsFree = %v, want %v", i+1, res.IsFree, free)
		}
		if res.Request.Status != models.StatusRevisionRequested {
			t.Errorf("revision %d: status = %s", i+1, res.Request.Status)
		}
		wantCharge := 0
		if !free {
			wantCharge = 2
		}
		if res.CreditsCharged != wantCharge {
			t.Errorf("revision %d: charged = %d, want %d", i+1, res.CreditsCharged, wantCharge)
		}
		if got := f.balance(t, sub.ID); got != before-wantCharge {
			t.Errorf("revision %d: balance = %d, want %d", i+1, got, before-wantCharge)
		}
	}

	audit, err := f.requests.AuditRevisions(f.ctx(), req.ID)
	if err != nil {
		t.Fatalf("AuditRevisions: %v", err)
	}
	if !audit.Consistent || audit.Stored.RevisionCount != 7 || audit.Stored.FreeUsed != 3 {
		t.Errorf("audit = %+v", audit)
	}
}

func TestAuditRevisionsSurvivesPolicyEdit(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, func(st *models.ServiceType) {
		st.MaxFreeRevisions = 1
		st.PaidRevisionCost = 1
		st.ResetFreeRevisionsOnPaid = true
	})
	provider := f.provider(t, st.ID)
	client, _ := f.client(t, f.pkg(t, true), 10)
	req := f.create(t, client.ID, st.ID)

	for i := 0; i < 2; i++ {
		f.deliver(t, req, provider.ID)
		if _, err := f.requests.RequestRevision(f.ctx(), req.ID, client.ID, ""); err != nil {
			t.Fatalf("revision %d: %v", i+1, err)
		}
	}

	st.ResetFreeRevisionsOnPaid = false
	if err := f.store.Repos().ServiceTypes.Update(f.ctx(), st); err != nil {
		t.Fatalf("update service type: %v", err)
	}

	audit, err := f.requests.AuditRevisions(f.ctx(), req.ID)
	if err != nil {
		t.Fatalf("AuditRevisions: %v", err)
	}
	want := revision.Counters{RevisionCount: 2, FreeUsed: 0}
	if audit.Stored != want || audit.Recomputed != want || !audit.Consistent {
		t.Errorf("audit = %+v, want consistent %+v", audit, want)
	}
}

func TestRevisionPaidWithoutCreditsKeepsStatus(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, func(st *models.ServiceType) {
		st.CreditCost = 4
		st.MaxFreeRevisions = 0
		st.PaidRevisionCost = 3
	})
	provider := f.provider(t, st.ID)
	client, sub := f.client(t, f.pkg(t, true), 5)
	req := f.create(t, client.ID, st.ID)
	f.deliver(t, req, provider.ID)

	_, err := f.requests.RequestRevision(f.ctx(), req.ID, client.ID, "")
	assertAppError(t, err, utils.ErrInsufficientCredits)

	stored, _ := f.store.Repos().Requests.GetByID(f.ctx(), req.ID)
	if stored.Status != models.StatusDelivered || stored.RevisionCount != 0 {
		t.Errorf("request = %s/%d, want DELIVERED/0", stored.Status, stored.RevisionCount)
	}
	if got := f.balance(t, sub.ID); got != 1 {
		t.Errorf("balance = %d, want 1", got)
	}
	for _, c := range f.store.Comments(req.ID) {
		if c.Kind == models.CommentRevision {
			t.Errorf("unexpected revision comment %+v", c)
		}
	}
}

func TestRevisionConcurrentCallsChargeOnce(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, func(st *models.ServiceType) {
		st.CreditCost = 1
		st.MaxFreeRevisions = 0
		st.PaidRevisionCost = 2
	})
	provider := f.provider(t, st.ID)
	client, sub := f.client(t, f.pkg(t, true), 10)
	req := f.create(t, client.ID, st.ID)
	f.deliver(t, req, provider.ID)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.requests.RequestRevision(f.ctx(), req.ID, client.ID, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, utils.ErrInvalidStatus):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", succeeded)
	}
	if got := f.balance(t, sub.ID); got != 7 {
		t.Errorf("balance = %d, want 7", got)
	}
}

func TestRevisionRefusals(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, nil)
	client, _ := f.client(t, f.pkg(t, true), 10)
	stranger, _ := f.client(t, f.pkg(t, true), 10)
	req := f.create(t, client.ID, st.ID)

	_, err := f.requests.RequestRevision(f.ctx(), req.ID, stranger.ID, "")
	assertAppError(t, err, utils.ErrNotRequestOwner)

	_, err = f.requests.RequestRevision(f.ctx(), req.ID, client.ID, "")
	appErr := assertAppError(t, err, utils.ErrInvalidStatus)
	if !strings.Contains(appErr.Message, string(models.StatusPending)) {
		t.Errorf("message = %q, want current status", appErr.Message)
	}

	_, err = f.requests.RequestRevision(f.ctx(), 424242, client.ID, "")
	assertAppError(t, err, utils.ErrRequestNotFound)
}

func TestRevisionUsesCurrentPaidCost(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, func(st *models.ServiceType) {
		st.CreditCost = 1
		st.MaxFreeRevisions = 0
		st.PaidRevisionCost = 2
	})
	provider := f.provider(t, st.ID)
	client, _ := f.client(t, f.pkg(t, true), 10)
	req := f.create(t, client.ID, st.ID)
	f.deliver(t, req, provider.ID)

	st.PaidRevisionCost = 4
	if err := f.store.Repos().ServiceTypes.Update(f.ctx(), st); err != nil {
		t.Fatalf("update service type: %v", err)
	}

	res, err := f.requests.RequestRevision(f.ctx(), req.ID, client.ID, "")
	if err != nil {
		t.Fatalf("RequestRevision: %v", err)
	}
	if res.CreditsCharged != 4 {
		t.Errorf("charged = %d, want 4", res.CreditsCharged)
	}
}

func TestRequestLifecycle(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, nil)
	provider := f.provider(t, st.ID)
	rival := f.provider(t, st.ID)
	outsider := f.provider(t)
	client, _ := f.client(t, f.pkg(t, true), 10)
	req := f.create(t, client.ID, st.ID)

	open, total, err := f.requests.ListOpenForProvider(f.ctx(), provider.ID, 10, 0)
	if err != nil || total != 1 || len(open) != 1 {
		t.Fatalf("open = %d/%d, err %v", len(open), total, err)
	}

	_, err = f.requests.Claim(f.ctx(), req.ID, outsider.ID)
	assertAppError(t, err, utils.ErrProviderNotQualified)

	claimed, err := f.requests.Claim(f.ctx(), req.ID, provider.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Status != models.StatusInProgress || claimed.ProviderID == nil || *claimed.ProviderID != provider.ID {
		t.Errorf("claimed = %+v", claimed)
	}
	f.notifier.wait(t, notify.EventRequestClaimed)

	_, err = f.requests.Claim(f.ctx(), req.ID, rival.ID)
	assertAppError(t, err, utils.ErrAlreadyClaimed)

	_, err = f.requests.Deliver(f.ctx(), req.ID, rival.ID, DeliverInput{Message: "mine"})
	assertAppError(t, err, utils.ErrNotAssignedProvider)

	_, err = f.requests.Complete(f.ctx(), req.ID, client.ID)
	assertAppError(t, err, utils.ErrInvalidStatus)

	f.deliver(t, req, provider.ID)
	done, err := f.requests.Complete(f.ctx(), req.ID, client.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != models.StatusCompleted || done.CompletedAt == nil {
		t.Errorf("completed = %+v", done)
	}

	_, err = f.requests.Rate(f.ctx(), req.ID, client.ID, 6)
	assertAppError(t, err, utils.ErrInvalidRating)
	rated, err := f.requests.Rate(f.ctx(), req.ID, client.ID, 5)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if rated.Rating == nil || *rated.Rating != 5 {
		t.Errorf("rating = %v, want 5", rated.Rating)
	}
	_, err = f.requests.Rate(f.ctx(), req.ID, client.ID, 4)
	assertAppError(t, err, utils.ErrAlreadyRated)

	_, err = f.requests.AddComment(f.ctx(), Actor{UserID: client.ID, Role: models.RoleClient}, req.ID, CommentInput{Body: "thanks"})
	assertAppError(t, err, utils.ErrInvalidStatus)
}

func TestCancelRefundsUnclaimedRequest(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, func(st *models.ServiceType) { st.CreditCost = 4 })
	provider := f.provider(t, st.ID)
	client, sub := f.client(t, f.pkg(t, true), 10)

	req := f.create(t, client.ID, st.ID)
	res, err := f.requests.Cancel(f.ctx(), req.ID, client.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.CreditsRefunded != 4 || res.Request.Status != models.StatusCancelled {
		t.Errorf("cancel = %+v", res)
	}
	if got := f.balance(t, sub.ID); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}

	_, err = f.requests.Cancel(f.ctx(), req.ID, client.ID)
	assertAppError(t, err, utils.ErrInvalidStatus)

	claimed := f.create(t, client.ID, st.ID)
	if _, err := f.requests.Claim(f.ctx(), claimed.ID, provider.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	_, err = f.requests.Cancel(f.ctx(), claimed.ID, client.ID)
	assertAppError(t, err, utils.ErrInvalidStatus)
}

func TestCommentsAndVisibility(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, nil)
	provider := f.provider(t, st.ID)
	outsider := f.provider(t)
	client, _ := f.client(t, f.pkg(t, true), 10)
	stranger, _ := f.client(t, f.pkg(t, true), 10)
	req := f.create(t, client.ID, st.ID)

	clientActor := Actor{UserID: client.ID, Role: models.RoleClient}
	if _, err := f.requests.Get(f.ctx(), Actor{UserID: provider.ID, Role: models.RoleProvider}, req.ID); err != nil {
		t.Errorf("qualified provider should see open request: %v", err)
	}
	_, err := f.requests.Get(f.ctx(), Actor{UserID: outsider.ID, Role: models.RoleProvider}, req.ID)
	assertAppError(t, err, utils.ErrProviderNotQualified)
	_, err = f.requests.Get(f.ctx(), Actor{UserID: stranger.ID, Role: models.RoleClient}, req.ID)
	assertAppError(t, err, utils.ErrNotRequestOwner)

	if _, err := f.requests.Claim(f.ctx(), req.ID, provider.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := f.requests.AddComment(f.ctx(), clientActor, req.ID, CommentInput{Body: "Blue please"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	ev := f.notifier.wait(t, notify.EventCommentAdded)
	if len(ev.Recipients) != 1 || ev.Recipients[0] != provider.ID {
		t.Errorf("recipients = %v, want [%d]", ev.Recipients, provider.ID)
	}

	_, err = f.requests.AddComment(f.ctx(), Actor{UserID: stranger.ID, Role: models.RoleClient}, req.ID, CommentInput{Body: "hi"})
	assertAppError(t, err, utils.ErrNotRequestOwner)

	comments, err := f.requests.ListComments(f.ctx(), clientActor, req.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	kinds := make([]models.CommentKind, 0, len(comments))
	for _, c := range comments {
		kinds = append(kinds, c.Kind)
	}
	want := []models.CommentKind{models.CommentSystem, models.CommentSystem, models.CommentClient}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestStaleRequestsAlertAdmins(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, nil)
	admin := f.user(t, models.RoleAdmin)
	client, _ := f.client(t, f.pkg(t, true), 10)
	req := f.create(t, client.ID, st.ID)

	stale, err := f.requests.StaleRequests(f.ctx(), -time.Minute)
	if err != nil {
		t.Fatalf("StaleRequests: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != req.ID {
		t.Fatalf("stale = %v", stale)
	}
	ev := f.notifier.wait(t, notify.EventRequestStale)
	if len(ev.Recipients) != 1 || ev.Recipients[0] != admin.ID {
		t.Errorf("recipients = %v, want [%d]", ev.Recipients, admin.ID)
	}
}
