package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

func TestCheckAndDeductNeverOverdraws(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, true)
	client, sub := f.client(t, p, 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.ledger.CheckAndDeduct(f.ctx(), client.ID, 3, "", "test")
			if err != nil {
				t.Errorf("CheckAndDeduct: %v", err)
				return
			}
			if res.Success {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Errorf("succeeded = %d, want 3", succeeded)
	}
	if got := f.balance(t, sub.ID); got != 1 {
		t.Errorf("balance = %d, want 1", got)
	}
	if got := len(f.store.Ledger(client.ID)); got != succeeded {
		t.Errorf("ledger entries = %d, want %d", got, succeeded)
	}
}

func TestCheckAndDeductBalanceFiveTwoRequestsOfThree(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, true)
	client, sub := f.client(t, p, 5)

	results := make([]*DeductResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.ledger.CheckAndDeduct(f.ctx(), client.ID, 3, "", "request")
			if err != nil {
				t.Errorf("CheckAndDeduct: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	var ok, refused *DeductResult
	for _, r := range results {
		if r == nil {
			t.Fatal("missing result")
		}
		if r.Success {
			ok = r
		} else {
			refused = r
		}
	}
	if ok == nil || refused == nil {
		t.Fatalf("want exactly one success and one refusal, got %+v", results)
	}
	if ok.NewBalance != 2 {
		t.Errorf("NewBalance = %d, want 2", ok.NewBalance)
	}
	if refused.Allowed {
		t.Error("refused result should not be allowed")
	}
	if !strings.Contains(refused.Message, "Insufficient credits") {
		t.Errorf("message = %q, want insufficient credits", refused.Message)
	}
	if got := f.balance(t, sub.ID); got != 2 {
		t.Errorf("balance = %d, want 2", got)
	}
}

func TestCheckAndDeductRefusals(t *testing.T) {
	f := newFixture(t)
	p := f.pkg(t, true)

	none := f.user(t, models.RoleClient)

	expired := f.user(t, models.RoleClient)
	f.subscription(t, expired.ID, p, 50, time.Now().Add(-time.Hour))

	pending := f.user(t, models.RoleClient)
	if err := f.store.Repos().Subscriptions.Create(f.ctx(), &models.ClientSubscription{ClientID: pending.ID, PackageID: p.ID}); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	tests := []struct {
		name     string
		clientID int64
		want     string
	}{
		{"no subscription", none.ID, utils.ErrNoActiveSubscription.Message},
		{"expired but still flagged active", expired.ID, utils.ErrNoActiveSubscription.Message},
		{"pending only", pending.ID, "awaiting payment verification"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.ledger.CheckAndDeduct(f.ctx(), tt.clientID, 1, "", "test")
			if err != nil {
				t.Fatalf("CheckAndDeduct: %v", err)
			}
			if res.Allowed || res.Success {
				t.Errorf("result = %+v, want refusal", res)
			}
			if !strings.Contains(res.Message, tt.want) {
				t.Errorf("message = %q, want it to contain %q", res.Message, tt.want)
			}
		})
	}
}

func TestCheckAndDeductRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	client, _ := f.client(t, f.pkg(t, true), 5)

	_, err := f.ledger.CheckAndDeduct(f.ctx(), client.ID, 0, "", "test")
	assertAppError(t, err, utils.ErrInvalidRequest)
}

func TestDeductRecordsLedgerEntry(t *testing.T) {
	f := newFixture(t)
	client, sub := f.client(t, f.pkg(t, true), 8)

	var debit *Debit
	err := f.store.InTx(f.ctx(), func(r *repository.Repositories) error {
		var err error
		debit, err = f.ledger.Deduct(f.ctx(), r, client.ID, 5, "request:42", "Request: Logo")
		return err
	})
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if debit.NewBalance != 3 {
		t.Errorf("NewBalance = %d, want 3", debit.NewBalance)
	}

	entries := f.store.Ledger(client.ID)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Delta != -5 || e.BalanceAfter != 3 || e.Kind != models.CreditDebit || e.SubscriptionID != sub.ID {
		t.Errorf("entry = %+v", e)
	}
	if e.Reference == nil || *e.Reference != "request:42" {
		t.Errorf("reference = %v, want request:42", e.Reference)
	}
	if e.ID == "" || e.ID != debit.EntryID {
		t.Errorf("entry id = %q, want %q", e.ID, debit.EntryID)
	}
}

func TestRefundCreditsSubscription(t *testing.T) {
	f := newFixture(t)
	client, sub := f.client(t, f.pkg(t, true), 2)

	err := f.store.InTx(f.ctx(), func(r *repository.Repositories) error {
		_, err := f.ledger.Refund(f.ctx(), r, sub.ID, 4, "request:1:refund", "Cancelled")
		return err
	})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got := f.balance(t, sub.ID); got != 6 {
		t.Errorf("balance = %d, want 6", got)
	}
	entries := f.store.Ledger(client.ID)
	if len(entries) != 1 || entries[0].Kind != models.CreditRefund || entries[0].Delta != 4 {
		t.Errorf("entries = %+v", entries)
	}
}
