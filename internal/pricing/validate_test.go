package pricing

import (
	"strings"
	"testing"

	"github.com/GTDGit/marketplace_api/internal/models"
)

func TestValidateAttributeResponses(t *testing.T) {
	st := designService()

	tests := []struct {
		name      string
		responses []models.AttributeResponse
		wantErrs  []string
	}{
		{
			name: "valid",
			responses: []models.AttributeResponse{
				{Question: "Turnaround", Answer: answer(t, "standard")},
				{Question: "Formats", Answer: answer(t, []string{"png", "svg"})},
				{Question: "Concepts", Answer: answer(t, 3)},
			},
		},
		{
			name:      "missing required",
			responses: nil,
			wantErrs:  []string{`"Turnaround": is required`},
		},
		{
			name: "null answer on required",
			responses: []models.AttributeResponse{
				{Question: "Turnaround", Answer: answer(t, nil)},
			},
			wantErrs: []string{`"Turnaround": is required`},
		},
		{
			name: "unknown question",
			responses: []models.AttributeResponse{
				{Question: "Turnaround", Answer: answer(t, "rush")},
				{Question: "Color", Answer: answer(t, "red")},
			},
			wantErrs: []string{`unknown question "Color"`},
		},
		{
			name: "option not declared",
			responses: []models.AttributeResponse{
				{Question: "Turnaround", Answer: answer(t, "overnight")},
			},
			wantErrs: []string{`"overnight" is not a valid option`},
		},
		{
			name: "multi choice bad option",
			responses: []models.AttributeResponse{
				{Question: "Turnaround", Answer: answer(t, "rush")},
				{Question: "Formats", Answer: answer(t, []string{"png", "gif"})},
			},
			wantErrs: []string{`"gif" is not a valid option`},
		},
		{
			name: "wrong shape",
			responses: []models.AttributeResponse{
				{Question: "Turnaround", Answer: answer(t, []string{"rush"})},
			},
			wantErrs: []string{"answer must be a single option"},
		},
		{
			name: "number out of range",
			responses: []models.AttributeResponse{
				{Question: "Turnaround", Answer: answer(t, "rush")},
				{Question: "Concepts", Answer: answer(t, 11)},
			},
			wantErrs: []string{"must be at most 10"},
		},
		{
			name: "answered twice",
			responses: []models.AttributeResponse{
				{Question: "Turnaround", Answer: answer(t, "rush")},
				{Question: "Turnaround", Answer: answer(t, "standard")},
			},
			wantErrs: []string{"answered more than once"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateAttributeResponses(st.Attributes, tt.responses)
			if len(errs) != len(tt.wantErrs) {
				t.Fatalf("got %d errors %v, want %d", len(errs), errs, len(tt.wantErrs))
			}
			for i, want := range tt.wantErrs {
				if !strings.Contains(errs[i], want) {
					t.Errorf("errs[%d] = %q, want it to contain %q", i, errs[i], want)
				}
			}
		})
	}
}

func TestValidateDefinitions(t *testing.T) {
	lo, hi := 5.0, 1.0
	defs := []models.ServiceAttribute{
		{Question: "Size", Kind: models.AttributeSingleChoice},
		{Question: "Size", Kind: models.AttributeText},
		{Question: "Pages", Kind: models.AttributeNumber, Min: &lo, Max: &hi},
		{Question: "Extras", Kind: models.AttributeMultiChoice, Options: []models.AttributeOption{{Label: "a"}, {Label: "a", Surcharge: -1}}},
		{Question: "Mood", Kind: "emoji"},
		{Question: " "},
	}

	errs := ValidateDefinitions(defs)
	want := []string{
		"at least one option is required",
		"duplicate question",
		"min must not exceed max",
		`duplicate option "a"`,
		"surcharge must be >= 0",
		`unknown type "emoji"`,
		"question is required",
	}
	if len(errs) != len(want) {
		t.Fatalf("got %d errors %v, want %d", len(errs), errs, len(want))
	}
	for i, w := range want {
		if !strings.Contains(errs[i], w) {
			t.Errorf("errs[%d] = %q, want it to contain %q", i, errs[i], w)
		}
	}

	if errs := ValidateDefinitions(designService().Attributes); len(errs) != 0 {
		t.Errorf("valid definitions produced errors: %v", errs)
	}
}
