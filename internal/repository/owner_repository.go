package repository

import (
	"context"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/database"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/writer"
	"github.com/jackc/pgx/v5"
)

// OwnerRepository stores classified owners and corrects the provisional
// owner references written during parcel import.
type OwnerRepository interface {
	// ListUnresolvedOwnerIDs returns the distinct referenced owner ids that
	// have no organizations row, ascending. References tagged as organizations
	// at parcel import are included until their organization is stored.
	ListUnresolvedOwnerIDs(ctx context.Context) ([]models.PersonID, error)

	// StoreOrganization upserts the organization and moves every reference
	// filed under the individual column to the organization column.
	// Returns the number of references corrected.
	StoreOrganization(ctx context.Context, org models.Organization) (int64, error)

	// StoreIndividual upserts the individual and marks its unknown references
	// as individual. Returns the number of references corrected.
	StoreIndividual(ctx context.Context, ind models.Individual) (int64, error)
}

type ownerRepository struct {
	db *database.Database
}

// NewOwnerRepository creates a new instance of OwnerRepository.
func NewOwnerRepository(db *database.Database) OwnerRepository {
	return &ownerRepository{db: db}
}

func (r *ownerRepository) ListUnresolvedOwnerIDs(ctx context.Context) ([]models.PersonID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT po.owner_id
		FROM parcel_owners po
		WHERE NOT EXISTS (
			SELECT 1 FROM organizations o WHERE o.id = po.owner_id
		)
		ORDER BY po.owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved owners: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("error iterating owner ids: %w", err)
	}

	result := make([]models.PersonID, len(ids))
	for i, id := range ids {
		result[i] = models.PersonID(id)
	}
	return result, nil
}

const moveToOrganization = `
	UPDATE parcel_owners
	SET organization_ref = individual_ref,
	    individual_ref = NULL,
	    owner_kind = 'organization'
	WHERE individual_ref = $1
`

const confirmIndividual = `
	UPDATE parcel_owners
	SET owner_kind = 'individual'
	WHERE individual_ref = $1 AND owner_kind = 'unknown'
`

func (r *ownerRepository) StoreOrganization(ctx context.Context, org models.Organization) (int64, error) {
	return r.store(ctx, OrganizationsTable, OrganizationRow(org), moveToOrganization, org.ID)
}

func (r *ownerRepository) StoreIndividual(ctx context.Context, ind models.Individual) (int64, error) {
	return r.store(ctx, IndividualsTable, IndividualRow(ind), confirmIndividual, ind.ID)
}

// store writes the owner row and the reference correction in one
// transaction so a reference never points at a missing owner row.
func (r *ownerRepository) store(ctx context.Context, spec writer.TableSpec, row writer.Row, correction string, id models.PersonID) (int64, error) {
	var corrected int64
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		w, err := writer.New(tx, spec, 1)
		if err != nil {
			return err
		}
		if err := w.InsertRow(ctx, row); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, correction, int64(id))
		if err != nil {
			return fmt.Errorf("failed to correct references to owner %d: %w", id, err)
		}
		corrected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store %s %d: %w", spec.Name, id, err)
	}
	return corrected, nil
}
