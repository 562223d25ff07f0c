// Package pricing computes request credit costs and validates attribute answers
// against a service type's attribute definitions.
package pricing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GTDGit/marketplace_api/internal/models"
)

// Attribute is a compiled attribute definition. Each kind validates and
// prices its own answers.
type Attribute interface {
	Question() string
	Required() bool
	// Validate checks a submitted answer. A nil error means the answer is acceptable.
	Validate(answer json.RawMessage) error
	// Surcharge prices an answer. Malformed answers cost nothing.
	Surcharge(answer json.RawMessage) int
}

type base struct {
	question string
	required bool
}

func (b base) Question() string { return b.question }
func (b base) Required() bool   { return b.required }

// TextAttribute is a free-form answer with an optional flat surcharge.
type TextAttribute struct {
	base
	surcharge int
}

// SingleChoiceAttribute accepts exactly one declared option.
type SingleChoiceAttribute struct {
	base
	options []models.AttributeOption
}

// MultiChoiceAttribute accepts any subset of the declared options.
type MultiChoiceAttribute struct {
	base
	options []models.AttributeOption
}

// NumberAttribute accepts a number within optional bounds.
type NumberAttribute struct {
	base
	surcharge int
	min, max  *float64
}

// Compile turns a stored definition into its Attribute variant.
func Compile(def models.ServiceAttribute) (Attribute, error) {
	b := base{question: def.Question, required: def.Required}
	switch def.Kind {
	case models.AttributeText:
		return &TextAttribute{base: b, surcharge: def.Surcharge}, nil
	case models.AttributeSingleChoice:
		return &SingleChoiceAttribute{base: b, options: def.Options}, nil
	case models.AttributeMultiChoice:
		return &MultiChoiceAttribute{base: b, options: def.Options}, nil
	case models.AttributeNumber:
		return &NumberAttribute{base: b, surcharge: def.Surcharge, min: def.Min, max: def.Max}, nil
	default:
		return nil, fmt.Errorf("unknown attribute type %q", def.Kind)
	}
}

// CompileAll compiles every valid definition, keyed by question. Definitions
// with an unknown type are skipped so that legacy rows still price.
func CompileAll(defs []models.ServiceAttribute) ([]Attribute, map[string]Attribute) {
	list := make([]Attribute, 0, len(defs))
	byQuestion := make(map[string]Attribute, len(defs))
	for _, def := range defs {
		attr, err := Compile(def)
		if err != nil {
			continue
		}
		if _, dup := byQuestion[attr.Question()]; dup {
			continue
		}
		list = append(list, attr)
		byQuestion[attr.Question()] = attr
	}
	return list, byQuestion
}

func (a *TextAttribute) Validate(answer json.RawMessage) error {
	var s string
	if err := json.Unmarshal(answer, &s); err != nil {
		return fmt.Errorf("answer must be text")
	}
	if a.required && strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

func (a *TextAttribute) Surcharge(answer json.RawMessage) int {
	var s string
	if err := json.Unmarshal(answer, &s); err != nil || strings.TrimSpace(s) == "" {
		return 0
	}
	return a.surcharge
}

func (a *SingleChoiceAttribute) Validate(answer json.RawMessage) error {
	var s string
	if err := json.Unmarshal(answer, &s); err != nil {
		return fmt.Errorf("answer must be a single option")
	}
	if _, ok := findOption(a.options, s); !ok {
		return fmt.Errorf("%q is not a valid option", s)
	}
	return nil
}

func (a *SingleChoiceAttribute) Surcharge(answer json.RawMessage) int {
	var s string
	if err := json.Unmarshal(answer, &s); err != nil {
		return 0
	}
	opt, ok := findOption(a.options, s)
	if !ok {
		return 0
	}
	return opt.Surcharge
}

func (a *MultiChoiceAttribute) Validate(answer json.RawMessage) error {
	var picks []string
	if err := json.Unmarshal(answer, &picks); err != nil {
		return fmt.Errorf("answer must be a list of options")
	}
	if a.required && len(picks) == 0 {
		return fmt.Errorf("is required")
	}
	seen := make(map[string]bool, len(picks))
	for _, p := range picks {
		if _, ok := findOption(a.options, p); !ok {
			return fmt.Errorf("%q is not a valid option", p)
		}
		if seen[p] {
			return fmt.Errorf("%q selected more than once", p)
		}
		seen[p] = true
	}
	return nil
}

func (a *MultiChoiceAttribute) Surcharge(answer json.RawMessage) int {
	var picks []string
	if err := json.Unmarshal(answer, &picks); err != nil {
		return 0
	}
	total := 0
	seen := make(map[string]bool, len(picks))
	for _, p := range picks {
		if seen[p] {
			continue
		}
		seen[p] = true
		if opt, ok := findOption(a.options, p); ok {
			total += opt.Surcharge
		}
	}
	return total
}

func (a *NumberAttribute) Validate(answer json.RawMessage) error {
	var n float64
	if err := json.Unmarshal(answer, &n); err != nil {
		return fmt.Errorf("answer must be a number")
	}
	if a.min != nil && n < *a.min {
		return fmt.Errorf("must be at least %g", *a.min)
	}
	if a.max != nil && n > *a.max {
		return fmt.Errorf("must be at most %g", *a.max)
	}
	return nil
}

func (a *NumberAttribute) Surcharge(answer json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(answer, &n); err != nil {
		return 0
	}
	return a.surcharge
}

func findOption(options []models.AttributeOption, label string) (models.AttributeOption, bool) {
	for _, o := range options {
		if o.Label == label {
			return o, true
		}
	}
	return models.AttributeOption{}, false
}

// isBlank reports whether an answer is absent.
func isBlank(answer json.RawMessage) bool {
	s := strings.TrimSpace(string(answer))
	return s == "" || s == "null"
}
