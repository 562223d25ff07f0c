package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/pricing"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// ServiceTypeInput creates or replaces a service type.
type ServiceTypeInput struct {
	Name                     string                    `json:"name" binding:"required,max=100"`
	DisplayName              *string                   `json:"displayName"`
	Description              *string                   `json:"description"`
	Icon                     *string                   `json:"icon"`
	CreditCost               int                       `json:"creditCost" binding:"required,min=1"`
	MaxFreeRevisions         int                       `json:"maxFreeRevisions" binding:"min=0"`
	PaidRevisionCost         int                       `json:"paidRevisionCost" binding:"required,min=1"`
	ResetFreeRevisionsOnPaid bool                      `json:"resetFreeRevisionsOnPaid"`
	PriorityCostLow          int                       `json:"priorityCostLow" binding:"min=0"`
	PriorityCostMedium       int                       `json:"priorityCostMedium" binding:"min=0"`
	PriorityCostHigh         int                       `json:"priorityCostHigh" binding:"min=0"`
	Attributes               []models.ServiceAttribute `json:"attributes"`
	IsActive                 *bool                     `json:"isActive"`
}

// PackageInput creates or replaces a package.
type PackageInput struct {
	Name               string          `json:"name" binding:"required,max=100"`
	Description        *string         `json:"description"`
	Price              decimal.Decimal `json:"price"`
	Credits            int             `json:"credits" binding:"min=0"`
	DurationDays       int             `json:"durationDays" binding:"required,min=1"`
	Features           []string        `json:"features"`
	SupportAllServices bool            `json:"supportAllServices"`
	ServiceTypeIDs     []int64         `json:"serviceTypeIds" binding:"dive,min=1"`
	IsActive           *bool           `json:"isActive"`
}

// CatalogService manages service types and packages.
type CatalogService struct {
	store repository.Store
	now   func() time.Time
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(store repository.Store) *CatalogService {
	return &CatalogService{store: store, now: time.Now}
}

// ListServiceTypes lists the catalog. Admins may include unavailable types.
func (s *CatalogService) ListServiceTypes(ctx context.Context, includeUnavailable bool) ([]*models.ServiceType, error) {
	return s.store.Repos().ServiceTypes.List(ctx, includeUnavailable)
}

// GetServiceType returns an available service type.
func (s *CatalogService) GetServiceType(ctx context.Context, id int64) (*models.ServiceType, error) {
	st, err := s.store.Repos().ServiceTypes.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, utils.ErrServiceTypeNotFound)
	}
	if st.DeletedAt != nil {
		return nil, utils.ErrServiceTypeNotFound
	}
	return st, nil
}

// QuoteInput prices a prospective request without charging.
type QuoteInput struct {
	Priority           int                        `json:"priority" binding:"omitempty,min=1,max=3"`
	AttributeResponses []models.AttributeResponse `json:"attributeResponses"`
}

// Quote validates the answers and returns what a request would cost.
func (s *CatalogService) Quote(ctx context.Context, serviceTypeID int64, in QuoteInput) (*pricing.Breakdown, error) {
	st, err := s.GetServiceType(ctx, serviceTypeID)
	if err != nil {
		return nil, err
	}
	if problems := pricing.ValidateAttributeResponses(st.Attributes, in.AttributeResponses); len(problems) > 0 {
		return nil, utils.ErrInvalidAttributes.WithDetails(problems)
	}
	b := pricing.CalculateCost(st, in.AttributeResponses, in.Priority)
	return &b, nil
}

// CreateServiceType adds a service type to the catalog.
func (s *CatalogService) CreateServiceType(ctx context.Context, in ServiceTypeInput) (*models.ServiceType, error) {
	st, err := buildServiceType(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.Repos().ServiceTypes.Create(ctx, st); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, utils.ErrServiceTypeNameTaken
		}
		return nil, fmt.Errorf("create service type: %w", err)
	}
	log.Info().Int64("service_type_id", st.ID).Str("name", st.Name).Msg("Service type created")
	return st, nil
}

// UpdateServiceType replaces a service type's settings. Existing requests
// keep the costs they were created with.
func (s *CatalogService) UpdateServiceType(ctx context.Context, id int64, in ServiceTypeInput) (*models.ServiceType, error) {
	if _, err := s.GetServiceType(ctx, id); err != nil {
		return nil, err
	}
	st, err := buildServiceType(in)
	if err != nil {
		return nil, err
	}
	st.ID = id
	if err := s.store.Repos().ServiceTypes.Update(ctx, st); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, utils.ErrServiceTypeNameTaken
		}
		return nil, notFound(err, utils.ErrServiceTypeNotFound)
	}
	log.Info().Int64("service_type_id", st.ID).Msg("Service type updated")
	return st, nil
}

// DeleteServiceType soft-deletes a service type so historical requests keep
// their reference.
func (s *CatalogService) DeleteServiceType(ctx context.Context, id int64) error {
	if err := s.store.Repos().ServiceTypes.SoftDelete(ctx, id, s.now()); err != nil {
		return notFound(err, utils.ErrServiceTypeNotFound)
	}
	log.Info().Int64("service_type_id", id).Msg("Service type deleted")
	return nil
}

func buildServiceType(in ServiceTypeInput) (*models.ServiceType, error) {
	var problems []string
	name := strings.TrimSpace(in.Name)
	if name == "" {
		problems = append(problems, "name is required")
	}
	if in.CreditCost < 1 {
		problems = append(problems, "creditCost must be at least 1")
	}
	if in.MaxFreeRevisions < 0 {
		problems = append(problems, "maxFreeRevisions must not be negative")
	}
	if in.PaidRevisionCost < 1 {
		problems = append(problems, "paidRevisionCost must be at least 1")
	}
	if in.PriorityCostLow < 0 || in.PriorityCostMedium < 0 || in.PriorityCostHigh < 0 {
		problems = append(problems, "priority costs must not be negative")
	}
	problems = append(problems, pricing.ValidateDefinitions(in.Attributes)...)
	if len(problems) > 0 {
		return nil, utils.ErrInvalidServiceType.WithDetails(problems)
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return &models.ServiceType{
		Name:                     name,
		DisplayName:              in.DisplayName,
		Description:              in.Description,
		Icon:                     in.Icon,
		CreditCost:               in.CreditCost,
		MaxFreeRevisions:         in.MaxFreeRevisions,
		PaidRevisionCost:         in.PaidRevisionCost,
		ResetFreeRevisionsOnPaid: in.ResetFreeRevisionsOnPaid,
		PriorityCostLow:          in.PriorityCostLow,
		PriorityCostMedium:       in.PriorityCostMedium,
		PriorityCostHigh:         in.PriorityCostHigh,
		Attributes:               models.ServiceAttributes(in.Attributes),
		IsActive:                 active,
	}, nil
}

// ListPackages lists packages. Admins may include unavailable ones.
func (s *CatalogService) ListPackages(ctx context.Context, includeUnavailable bool) ([]*models.Package, error) {
	return s.store.Repos().Packages.List(ctx, includeUnavailable)
}

// GetPackage returns a package that has not been deleted.
func (s *CatalogService) GetPackage(ctx context.Context, id int64) (*models.Package, error) {
	pkg, err := s.store.Repos().Packages.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, utils.ErrPackageNotFound)
	}
	if pkg.DeletedAt != nil {
		return nil, utils.ErrPackageNotFound
	}
	return pkg, nil
}

// CreatePackage adds a paid package. The free package is seeded, never created.
func (s *CatalogService) CreatePackage(ctx context.Context, in PackageInput) (*models.Package, error) {
	pkg, err := s.buildPackage(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.Repos().Packages.Create(ctx, pkg); err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	log.Info().Int64("package_id", pkg.ID).Str("name", pkg.Name).Msg("Package created")
	return pkg, nil
}

// UpdatePackage replaces a package's settings. Live subscriptions keep the
// credits and dates they were activated with.
func (s *CatalogService) UpdatePackage(ctx context.Context, id int64, in PackageInput) (*models.Package, error) {
	existing, err := s.GetPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	pkg, err := s.buildPackage(ctx, in)
	if err != nil {
		return nil, err
	}
	pkg.ID = id
	pkg.IsFreePackage = existing.IsFreePackage
	if existing.IsFreePackage {
		pkg.IsActive = true
	}
	if err := s.store.Repos().Packages.Update(ctx, pkg); err != nil {
		return nil, notFound(err, utils.ErrPackageNotFound)
	}
	log.Info().Int64("package_id", pkg.ID).Msg("Package updated")
	return pkg, nil
}

// DeletePackage soft-deletes a paid package.
func (s *CatalogService) DeletePackage(ctx context.Context, id int64) error {
	pkg, err := s.GetPackage(ctx, id)
	if err != nil {
		return err
	}
	if pkg.IsFreePackage {
		return utils.ErrFreePackage
	}
	if err := s.store.Repos().Packages.SoftDelete(ctx, id, s.now()); err != nil {
		return notFound(err, utils.ErrPackageNotFound)
	}
	log.Info().Int64("package_id", id).Msg("Package deleted")
	return nil
}

func (s *CatalogService) buildPackage(ctx context.Context, in PackageInput) (*models.Package, error) {
	var problems []string
	name := strings.TrimSpace(in.Name)
	if name == "" {
		problems = append(problems, "name is required")
	}
	if in.Price.IsNegative() {
		problems = append(problems, "price must not be negative")
	}
	if in.Credits < 0 {
		problems = append(problems, "credits must not be negative")
	}
	if in.DurationDays < 1 {
		problems = append(problems, "durationDays must be at least 1")
	}
	if !in.SupportAllServices && len(in.ServiceTypeIDs) == 0 {
		problems = append(problems, "serviceTypeIds is required unless supportAllServices is set")
	}
	if len(problems) > 0 {
		return nil, utils.ErrInvalidPackage.WithDetails(problems)
	}
	if err := validateServiceTypes(ctx, s.store.Repos(), in.ServiceTypeIDs); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	features := in.Features
	if features == nil {
		features = []string{}
	}
	ids := in.ServiceTypeIDs
	if in.SupportAllServices {
		ids = nil
	}
	return &models.Package{
		Name:               name,
		Description:        in.Description,
		Price:              in.Price.Round(2),
		Credits:            in.Credits,
		DurationDays:       in.DurationDays,
		Features:           pq.StringArray(features),
		SupportAllServices: in.SupportAllServices,
		ServiceTypeIDs:     ids,
		IsActive:           active,
	}, nil
}
