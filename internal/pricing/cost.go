package pricing

import "github.com/GTDGit/marketplace_api/internal/models"

// Breakdown is the frozen cost of a request.
type Breakdown struct {
	Base               int `json:"base"`
	AttributeSurcharge int `json:"attributeSurcharge"`
	PrioritySurcharge  int `json:"prioritySurcharge"`
	Total              int `json:"total"`
}

// CalculateCost prices a request. It never fails: unknown questions and
// malformed answers contribute nothing, an unset base costs 1 and an
// out-of-range priority is priced at the medium tier.
func CalculateCost(st *models.ServiceType, responses []models.AttributeResponse, priority int) Breakdown {
	b := Breakdown{
		Base:               st.CreditCost,
		AttributeSurcharge: AttributeSurcharge(st.Attributes, responses),
		PrioritySurcharge:  PrioritySurcharge(st, priority),
	}
	if b.Base <= 0 {
		b.Base = 1
	}
	b.Total = b.Base + b.AttributeSurcharge + b.PrioritySurcharge
	if b.Total < 1 {
		b.Total = 1
	}
	return b
}

// AttributeSurcharge sums the surcharge of every answered attribute. Only the
// first answer to a question is priced.
func AttributeSurcharge(defs []models.ServiceAttribute, responses []models.AttributeResponse) int {
	_, byQuestion := CompileAll(defs)
	total := 0
	priced := make(map[string]bool, len(responses))
	for _, r := range responses {
		attr, ok := byQuestion[r.Question]
		if !ok || priced[r.Question] || isBlank(r.Answer) {
			continue
		}
		priced[r.Question] = true
		total += attr.Surcharge(r.Answer)
	}
	return total
}

// NormalizePriority maps anything outside 1..3 to medium.
func NormalizePriority(priority int) int {
	if priority < models.PriorityLow || priority > models.PriorityHigh {
		return models.PriorityMedium
	}
	return priority
}

// PrioritySurcharge looks up the tier cost for priority.
func PrioritySurcharge(st *models.ServiceType, priority int) int {
	var cost int
	switch NormalizePriority(priority) {
	case models.PriorityLow:
		cost = st.PriorityCostLow
	case models.PriorityHigh:
		cost = st.PriorityCostHigh
	default:
		cost = st.PriorityCostMedium
	}
	if cost < 0 {
		return 0
	}
	return cost
}
