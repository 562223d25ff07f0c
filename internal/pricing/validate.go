package pricing

import (
	"fmt"
	"strings"

	"github.com/GTDGit/marketplace_api/internal/models"
)

// ValidateAttributeResponses checks responses against the definitions and
// returns one message per violation. An empty result means the responses
// are acceptable.
func ValidateAttributeResponses(defs []models.ServiceAttribute, responses []models.AttributeResponse) []string {
	var errs []string
	list, byQuestion := CompileAll(defs)

	answered := make(map[string]bool, len(responses))
	for _, r := range responses {
		attr, ok := byQuestion[r.Question]
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown question %q", r.Question))
			continue
		}
		if answered[r.Question] {
			errs = append(errs, fmt.Sprintf("%q: answered more than once", r.Question))
			continue
		}
		answered[r.Question] = true
		if isBlank(r.Answer) {
			if attr.Required() {
				errs = append(errs, fmt.Sprintf("%q: is required", r.Question))
			}
			continue
		}
		if err := attr.Validate(r.Answer); err != nil {
			errs = append(errs, fmt.Sprintf("%q: %s", r.Question, err.Error()))
		}
	}

	for _, attr := range list {
		if attr.Required() && !answered[attr.Question()] {
			errs = append(errs, fmt.Sprintf("%q: is required", attr.Question()))
		}
	}
	return errs
}

// ValidateDefinitions checks attribute definitions before they are stored on
// a service type.
func ValidateDefinitions(defs []models.ServiceAttribute) []string {
	var errs []string
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		q := strings.TrimSpace(def.Question)
		if q == "" {
			errs = append(errs, fmt.Sprintf("attribute %d: question is required", i+1))
			continue
		}
		if seen[q] {
			errs = append(errs, fmt.Sprintf("%q: duplicate question", q))
		}
		seen[q] = true

		if def.Surcharge < 0 {
			errs = append(errs, fmt.Sprintf("%q: surcharge must be >= 0", q))
		}

		switch def.Kind {
		case models.AttributeText:
		case models.AttributeNumber:
			if def.Min != nil && def.Max != nil && *def.Min > *def.Max {
				errs = append(errs, fmt.Sprintf("%q: min must not exceed max", q))
			}
		case models.AttributeSingleChoice, models.AttributeMultiChoice:
			if len(def.Options) == 0 {
				errs = append(errs, fmt.Sprintf("%q: at least one option is required", q))
			}
			labels := make(map[string]bool, len(def.Options))
			for _, o := range def.Options {
				if strings.TrimSpace(o.Label) == "" {
					errs = append(errs, fmt.Sprintf("%q: option label is required", q))
					continue
				}
				if labels[o.Label] {
					errs = append(errs, fmt.Sprintf("%q: duplicate option %q", q, o.Label))
				}
				labels[o.Label] = true
				if o.Surcharge < 0 {
					errs = append(errs, fmt.Sprintf("%q: option %q surcharge must be >= 0", q, o.Label))
				}
			}
		default:
			errs = append(errs, fmt.Sprintf("%q: unknown type %q", q, def.Kind))
		}
	}
	return errs
}
