package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AttributeKind discriminates ServiceAttribute definitions.
type AttributeKind string

const (
	AttributeText         AttributeKind = "text"
	AttributeSingleChoice AttributeKind = "single_choice"
	AttributeMultiChoice  AttributeKind = "multi_choice"
	AttributeNumber       AttributeKind = "number"
)

// AttributeOption is a selectable answer with its credit surcharge.
type AttributeOption struct {
	Label     string `json:"label"`
	Surcharge int    `json:"surcharge,omitempty"`
}

// ServiceAttribute is the stored definition of one question asked when a
// request is created. Surcharge applies to text and number answers when
// an answer is given; choice kinds price per option.
type ServiceAttribute struct {
	Question  string            `json:"question"`
	Kind      AttributeKind     `json:"type"`
	Required  bool              `json:"required"`
	Options   []AttributeOption `json:"options,omitempty"`
	Surcharge int               `json:"surcharge,omitempty"`
	Min       *float64          `json:"min,omitempty"`
	Max       *float64          `json:"max,omitempty"`
}

// ServiceAttributes is the ordered JSONB attribute list of a service type.
type ServiceAttributes []ServiceAttribute

// Value implements driver.Valuer.
func (a ServiceAttributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *ServiceAttributes) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// AttributeResponse is the client's answer to one attribute question.
// Answer holds a JSON string, array of strings or number depending on kind.
type AttributeResponse struct {
	Question string          `json:"question"`
	Answer   json.RawMessage `json:"answer"`
}

// AttributeResponses is the JSONB list stored on a request.
type AttributeResponses []AttributeResponse

// Value implements driver.Valuer.
func (r AttributeResponses) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *AttributeResponses) Scan(src interface{}) error {
	return scanJSON(src, r)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported JSON column type")
	}
}

// ServiceType is a purchasable service category.
type ServiceType struct {
	ID                       int64             `db:"id" json:"id"`
	Name                     string            `db:"name" json:"name"`
	DisplayName              *string           `db:"display_name" json:"displayName,omitempty"`
	Description              *string           `db:"description" json:"description,omitempty"`
	Icon                     *string           `db:"icon" json:"icon,omitempty"`
	CreditCost               int               `db:"credit_cost" json:"creditCost"`
	MaxFreeRevisions         int               `db:"max_free_revisions" json:"maxFreeRevisions"`
	PaidRevisionCost         int               `db:"paid_revision_cost" json:"paidRevisionCost"`
	ResetFreeRevisionsOnPaid bool              `db:"reset_free_revisions_on_paid" json:"resetFreeRevisionsOnPaid"`
	PriorityCostLow          int               `db:"priority_cost_low" json:"priorityCostLow"`
	PriorityCostMedium       int               `db:"priority_cost_medium" json:"priorityCostMedium"`
	PriorityCostHigh         int               `db:"priority_cost_high" json:"priorityCostHigh"`
	Attributes               ServiceAttributes `db:"attributes" json:"attributes"`
	IsActive                 bool              `db:"is_active" json:"isActive"`
	DeletedAt                *time.Time        `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt                time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt                time.Time         `db:"updated_at" json:"updatedAt"`
}

// IsAvailable reports whether new requests may be created against the type.
func (s *ServiceType) IsAvailable() bool {
	return s.IsActive && s.DeletedAt == nil
}
