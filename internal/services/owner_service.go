package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/logger"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/registry"
	"github.com/PorticoEstate/matrikkel-sub000/internal/repository"
	"github.com/tidwall/gjson"
)

// Shape markers of registry owner objects.
var (
	organizationFields = []string{"registrationNumber", "organizationFormCode"}
	individualFields   = []string{"givenName", "familyName", "nationalIdNumber"}
	typeTagFields      = []string{"personType", "type"}
)

// Classification is the outcome of classifying one owner object. Exactly one
// of Individual and Organization is set.
type Classification struct {
	Kind         models.OwnerKind
	Individual   *models.Individual
	Organization *models.Organization
	// Basis names the field that decided the kind.
	Basis string
}

// Classify decides whether raw is an individual or an organization.
// Organization-only fields win over individual-only fields, which win over
// an explicit type tag. Anything else is ErrUnclassifiable.
func Classify(raw []byte) (Classification, error) {
	if !gjson.ValidBytes(raw) {
		return Classification{}, fmt.Errorf("%w: malformed owner object", ErrUnclassifiable)
	}
	obj := gjson.ParseBytes(raw)

	kind, basis := models.OwnerUnknown, ""
	if f, ok := firstPresent(obj, organizationFields); ok {
		kind, basis = models.OwnerOrganization, f
	} else if f, ok := firstPresent(obj, individualFields); ok {
		kind, basis = models.OwnerIndividual, f
	} else if f, ok := firstPresent(obj, typeTagFields); ok {
		kind, basis = models.OwnerKind(obj.Get(f).String()).Normalize(), f
	}

	switch kind {
	case models.OwnerOrganization:
		org, err := models.Decode[models.Organization](raw)
		if err != nil {
			return Classification{}, err
		}
		return Classification{Kind: kind, Organization: &org, Basis: basis}, nil
	case models.OwnerIndividual:
		ind, err := models.Decode[models.Individual](raw)
		if err != nil {
			return Classification{}, err
		}
		return Classification{Kind: kind, Individual: &ind, Basis: basis}, nil
	}
	return Classification{}, fmt.Errorf("%w: no organization or individual fields", ErrUnclassifiable)
}

func firstPresent(obj gjson.Result, fields []string) (string, bool) {
	for _, f := range fields {
		v := obj.Get(f)
		if v.Exists() && v.Type != gjson.Null && v.String() != "" {
			return f, true
		}
	}
	return "", false
}

// OwnerResult counts the outcome of resolving owners.
type OwnerResult struct {
	Individuals   int   `json:"individuals"`
	Organizations int   `json:"organizations"`
	Failed        int   `json:"failed"`
	Corrected     int64 `json:"corrected_references"`
}

// Add accumulates another result.
func (r *OwnerResult) Add(o OwnerResult) {
	r.Individuals += o.Individuals
	r.Organizations += o.Organizations
	r.Failed += o.Failed
	r.Corrected += o.Corrected
}

// Resolved returns the number of owners stored.
func (r OwnerResult) Resolved() int { return r.Individuals + r.Organizations }

// OwnerService resolves owner references whose kind is not known yet.
type OwnerService interface {
	// ListCandidates returns the owner ids not yet confirmed as organizations.
	ListCandidates(ctx context.Context) ([]models.PersonID, error)

	// ResolveOwners fetches, classifies and stores each owner. A failure for
	// one id is counted and the others are still resolved; only a cancelled
	// context ends resolution early.
	ResolveOwners(ctx context.Context, ids []models.PersonID) (OwnerResult, error)
}

type ownerService struct {
	client registry.Client
	repo   repository.OwnerRepository
	log    *logger.Logger
}

// NewOwnerService creates a new instance of OwnerService.
func NewOwnerService(client registry.Client, repo repository.OwnerRepository, log *logger.Logger) OwnerService {
	return &ownerService{
		client: client,
		repo:   repo,
		log:    log,
	}
}

func (s *ownerService) ListCandidates(ctx context.Context) ([]models.PersonID, error) {
	ids, err := s.repo.ListUnresolvedOwnerIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner candidates: %w", err)
	}
	return ids, nil
}

func (s *ownerService) ResolveOwners(ctx context.Context, ids []models.PersonID) (OwnerResult, error) {
	var result OwnerResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		kind, corrected, err := s.resolve(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed++
			s.log.Warn("Failed to resolve owner", map[string]interface{}{
				"owner_id": id,
				"error":    err.Error(),
			})
			continue
		}

		result.Corrected += corrected
		switch kind {
		case models.OwnerOrganization:
			result.Organizations++
		case models.OwnerIndividual:
			result.Individuals++
		}
	}
	return result, nil
}

func (s *ownerService) resolve(ctx context.Context, id models.PersonID) (models.OwnerKind, int64, error) {
	// The registry serves every owner kind from the person endpoint; the
	// provisional kind is individual until the shape says otherwise.
	obj, err := s.client.FetchOne(ctx, models.EntityPerson, int64(id))
	if err != nil {
		return models.OwnerUnknown, 0, fmt.Errorf("fetch owner: %w", err)
	}

	c, err := Classify(obj.Raw)
	if err != nil {
		return models.OwnerUnknown, 0, err
	}

	var corrected int64
	switch c.Kind {
	case models.OwnerOrganization:
		if c.Organization.ID != id {
			return models.OwnerUnknown, 0, fmt.Errorf("%w: registry returned owner %d for %d", registry.ErrProtocol, c.Organization.ID, id)
		}
		corrected, err = s.repo.StoreOrganization(ctx, *c.Organization)
	case models.OwnerIndividual:
		if c.Individual.ID != id {
			return models.OwnerUnknown, 0, fmt.Errorf("%w: registry returned owner %d for %d", registry.ErrProtocol, c.Individual.ID, id)
		}
		corrected, err = s.repo.StoreIndividual(ctx, *c.Individual)
	default:
		err = errors.New("unexpected owner kind " + string(c.Kind))
	}
	if err != nil {
		return models.OwnerUnknown, 0, err
	}

	s.log.Debug("Owner resolved", map[string]interface{}{
		"owner_id":  id,
		"kind":      c.Kind,
		"basis":     c.Basis,
		"corrected": corrected,
	})
	return c.Kind, corrected, nil
}
