package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Package is a credit bundle clients subscribe to. Exactly one package is
// the free package granted at registration.
type Package struct {
	ID                 int64           `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	Description        *string         `db:"description" json:"description,omitempty"`
	Price              decimal.Decimal `db:"price" json:"price"`
	Credits            int             `db:"credits" json:"credits"`
	DurationDays       int             `db:"duration_days" json:"durationDays"`
	Features           pq.StringArray  `db:"features" json:"features"`
	IsFreePackage      bool            `db:"is_free_package" json:"isFreePackage"`
	SupportAllServices bool            `db:"support_all_services" json:"supportAllServices"`
	IsActive           bool            `db:"is_active" json:"isActive"`
	DeletedAt          *time.Time      `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updatedAt"`

	ServiceTypeIDs []int64 `db:"-" json:"serviceTypeIds"`
}

// Grants reports whether the package entitles its holder to serviceTypeID.
func (p *Package) Grants(serviceTypeID int64) bool {
	if p.SupportAllServices {
		return true
	}
	for _, id := range p.ServiceTypeIDs {
		if id == serviceTypeID {
			return true
		}
	}
	return false
}
