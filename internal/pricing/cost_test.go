package pricing

import (
	"encoding/json"
	"testing"

	"github.com/GTDGit/marketplace_api/internal/models"
)

func answer(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal answer: %v", err)
	}
	return b
}

func designService() *models.ServiceType {
	lo, hi := 1.0, 10.0
	return &models.ServiceType{
		Name:               "logo-design",
		CreditCost:         2,
		PriorityCostLow:    0,
		PriorityCostMedium: 1,
		PriorityCostHigh:   2,
		Attributes: models.ServiceAttributes{
			{
				Question: "Turnaround",
				Kind:     models.AttributeSingleChoice,
				Required: true,
				Options: []models.AttributeOption{
					{Label: "standard"},
					{Label: "rush", Surcharge: 1},
				},
			},
			{
				Question: "Formats",
				Kind:     models.AttributeMultiChoice,
				Options: []models.AttributeOption{
					{Label: "png"},
					{Label: "svg", Surcharge: 1},
					{Label: "pdf", Surcharge: 2},
				},
			},
			{Question: "Notes", Kind: models.AttributeText},
			{Question: "Concepts", Kind: models.AttributeNumber, Surcharge: 3, Min: &lo, Max: &hi},
		},
	}
}

func TestCalculateCostScenario(t *testing.T) {
	st := designService()
	responses := []models.AttributeResponse{
		{Question: "Turnaround", Answer: answer(t, "rush")},
	}

	got := CalculateCost(st, responses, models.PriorityHigh)
	want := Breakdown{Base: 2, AttributeSurcharge: 1, PrioritySurcharge: 2, Total: 5}
	if got != want {
		t.Errorf("CalculateCost = %+v, want %+v", got, want)
	}
}

func TestCalculateCostDeterministic(t *testing.T) {
	st := designService()
	responses := []models.AttributeResponse{
		{Question: "Turnaround", Answer: answer(t, "rush")},
		{Question: "Formats", Answer: answer(t, []string{"svg", "pdf"})},
	}

	first := CalculateCost(st, responses, models.PriorityLow)
	for i := 0; i < 10; i++ {
		if got := CalculateCost(st, responses, models.PriorityLow); got != first {
			t.Fatalf("run %d: CalculateCost = %+v, want %+v", i, got, first)
		}
	}
	if first.AttributeSurcharge != 4 {
		t.Errorf("AttributeSurcharge = %d, want 4", first.AttributeSurcharge)
	}
}

func TestCalculateCostPriorityTiers(t *testing.T) {
	st := designService()
	tests := []struct {
		priority int
		want     int
	}{
		{models.PriorityLow, 0},
		{models.PriorityMedium, 1},
		{models.PriorityHigh, 2},
		{0, 1},
		{7, 1},
		{-1, 1},
	}
	for _, tt := range tests {
		got := CalculateCost(st, nil, tt.priority)
		if got.PrioritySurcharge != tt.want {
			t.Errorf("priority %d: PrioritySurcharge = %d, want %d", tt.priority, got.PrioritySurcharge, tt.want)
		}
	}
}

func TestCalculateCostUnknownQuestionsContributeNothing(t *testing.T) {
	st := designService()
	responses := []models.AttributeResponse{
		{Question: "Removed question", Answer: answer(t, "anything")},
		{Question: "Turnaround", Answer: answer(t, "no-longer-an-option")},
		{Question: "Formats", Answer: answer(t, "not-a-list")},
	}

	got := CalculateCost(st, responses, models.PriorityLow)
	if got.AttributeSurcharge != 0 {
		t.Errorf("AttributeSurcharge = %d, want 0", got.AttributeSurcharge)
	}
	if got.Total != 2 {
		t.Errorf("Total = %d, want 2", got.Total)
	}
}

func TestCalculateCostDefaultsBase(t *testing.T) {
	st := &models.ServiceType{}
	got := CalculateCost(st, nil, models.PriorityMedium)
	if got.Base != 1 || got.Total != 1 {
		t.Errorf("CalculateCost = %+v, want base 1 total 1", got)
	}
}

func TestCalculateCostNumberAndText(t *testing.T) {
	st := designService()
	st.Attributes[2].Surcharge = 1
	responses := []models.AttributeResponse{
		{Question: "Concepts", Answer: answer(t, 4)},
		{Question: "Notes", Answer: answer(t, "blue palette")},
	}
	got := CalculateCost(st, responses, models.PriorityLow)
	if got.AttributeSurcharge != 4 {
		t.Errorf("AttributeSurcharge = %d, want 4", got.AttributeSurcharge)
	}
}

func TestCalculateCostPricesFirstAnswerOnly(t *testing.T) {
	st := designService()
	responses := []models.AttributeResponse{
		{Question: "Formats", Answer: answer(t, []string{"pdf", "pdf"})},
		{Question: "Formats", Answer: answer(t, []string{"svg"})},
	}
	got := CalculateCost(st, responses, models.PriorityLow)
	if got.AttributeSurcharge != 2 {
		t.Errorf("AttributeSurcharge = %d, want 2", got.AttributeSurcharge)
	}
}
