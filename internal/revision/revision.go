// Package revision decides whether a client may request another revision of a
// delivered request and what it costs.
package revision

import "github.com/GTDGit/marketplace_api/internal/models"

// Policy is the revision pricing of a service type.
type Policy struct {
	MaxFree     int
	PaidCost    int
	ResetOnPaid bool
}

// PolicyFor reads the policy from a service type's current settings.
func PolicyFor(st *models.ServiceType) Policy {
	return Policy{
		MaxFree:     st.MaxFreeRevisions,
		PaidCost:    st.PaidRevisionCost,
		ResetOnPaid: st.ResetFreeRevisionsOnPaid,
	}
}

// Counters are the revision counters persisted on a request.
type Counters struct {
	RevisionCount int
	FreeUsed      int
}

// Decision is the outcome of Decide. Next holds the counters to persist
// when the revision goes through.
type Decision struct {
	Allowed bool
	IsFree  bool
	Cost    int
	Next    Counters
}

// Decide applies the free-then-paid rule. Only delivered requests may be
// sent back for revision.
func Decide(status models.RequestStatus, c Counters, p Policy) Decision {
	if status != models.StatusDelivered {
		return Decision{Allowed: false, Next: c}
	}

	next := Counters{RevisionCount: c.RevisionCount + 1, FreeUsed: c.FreeUsed}
	if c.FreeUsed < p.MaxFree {
		next.FreeUsed++
		return Decision{Allowed: true, IsFree: true, Next: next}
	}

	cost := p.PaidCost
	if cost < 1 {
		cost = 1
	}
	if p.ResetOnPaid {
		next.FreeUsed = 0
	}
	return Decision{Allowed: true, IsFree: false, Cost: cost, Next: next}
}

// Entry is one past revision as recorded in the request log.
type Entry struct {
	Paid bool
	// FreeUsedAfter is the free counter written with the entry, or nil when
	// the log predates it.
	FreeUsedAfter *int
}

// Recount rebuilds counters from the ordered revision log. A paid entry
// replays the reset outcome it recorded, so later policy edits do not change
// the history. Entries without a recorded counter fall back to p.
func Recount(entries []Entry, p Policy) Counters {
	var c Counters
	for _, e := range entries {
		c.RevisionCount++
		if !e.Paid {
			c.FreeUsed++
			continue
		}
		reset := p.ResetOnPaid
		if e.FreeUsedAfter != nil {
			reset = *e.FreeUsedAfter == 0
		}
		if reset {
			c.FreeUsed = 0
		}
	}
	return c
}
