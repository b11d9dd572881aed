package services

import (
	"context"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/hierarchy"
	"github.com/PorticoEstate/matrikkel-sub000/internal/logger"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/repository"
)

// OrganizeResult describes the coding of one property.
type OrganizeResult struct {
	PropertyID   models.ParcelID `json:"property_id"`
	PropertyCode string          `json:"property_code"`
	Skipped      bool            `json:"skipped"`
	Buildings    int             `json:"buildings"`
	Entrances    int             `json:"entrances"`
	Units        int             `json:"units"`
	Excluded     int             `json:"excluded_units"`
}

// OrganizeSummary counts the outcome of coding all properties.
type OrganizeSummary struct {
	Organized int `json:"organized"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// HierarchyService assigns location codes to imported properties.
type HierarchyService interface {
	// OrganizeProperty codes one property. Already coded properties are
	// skipped unless force is set. Returns ErrPropertyNotFound if the parcel
	// has not been imported.
	OrganizeProperty(ctx context.Context, id models.ParcelID, force bool) (OrganizeResult, error)

	// OrganizeAll codes every imported property in ascending id order.
	// A failing property is counted and the rest are still coded.
	OrganizeAll(ctx context.Context, force bool) (OrganizeSummary, error)
}

type hierarchyService struct {
	repo repository.HierarchyRepository
	log  *logger.Logger
}

// NewHierarchyService creates a new instance of HierarchyService.
func NewHierarchyService(repo repository.HierarchyRepository, log *logger.Logger) HierarchyService {
	return &hierarchyService{
		repo: repo,
		log:  log,
	}
}

func (s *hierarchyService) OrganizeProperty(ctx context.Context, id models.ParcelID, force bool) (OrganizeResult, error) {
	p, err := s.repo.LoadProperty(ctx, id)
	if err != nil {
		return OrganizeResult{}, fmt.Errorf("failed to load property: %w", err)
	}
	if p == nil {
		return OrganizeResult{}, fmt.Errorf("%w: %d", ErrPropertyNotFound, id)
	}

	if !force && p.Coded() {
		s.log.Debug("Property already coded", map[string]interface{}{
			"property_id": id,
			"code":        p.Code,
		})
		return OrganizeResult{PropertyID: id, PropertyCode: p.Code, Skipped: true}, nil
	}

	plan := hierarchy.Assign(*p)
	if err := s.repo.SaveCodes(ctx, plan); err != nil {
		s.log.Error("Failed to save hierarchy codes", err, map[string]interface{}{
			"property_id": id,
		})
		return OrganizeResult{}, fmt.Errorf("failed to save codes: %w", err)
	}

	result := OrganizeResult{
		PropertyID:   id,
		PropertyCode: plan.PropertyCode,
		Buildings:    len(plan.Buildings),
		Entrances:    len(plan.Entrances),
		Units:        len(plan.Units),
		Excluded:     len(plan.Excluded),
	}
	s.log.Info("Property organized", map[string]interface{}{
		"property_id": id,
		"code":        plan.PropertyCode,
		"buildings":   result.Buildings,
		"entrances":   result.Entrances,
		"units":       result.Units,
		"excluded":    result.Excluded,
	})
	return result, nil
}

func (s *hierarchyService) OrganizeAll(ctx context.Context, force bool) (OrganizeSummary, error) {
	ids, err := s.repo.ListPropertyIDs(ctx)
	if err != nil {
		return OrganizeSummary{}, fmt.Errorf("failed to list properties: %w", err)
	}

	var summary OrganizeSummary
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := s.OrganizeProperty(ctx, id, force)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
		case result.Skipped:
			summary.Skipped++
		default:
			summary.Organized++
		}
	}

	s.log.Info("Hierarchy coding finished", map[string]interface{}{
		"organized": summary.Organized,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})
	return summary, nil
}
