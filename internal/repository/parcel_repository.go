package repository

import (
	"context"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/database"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

// ParcelRepository defines read access to imported parcels.
type ParcelRepository interface {
	// ListParcelIDs returns the ids of all imported parcels in ascending
	// order, optionally restricted to municipalities. Returns an empty slice
	// if none are imported.
	ListParcelIDs(ctx context.Context, municipalities []string) ([]models.ParcelID, error)
}

// parcelRepository is the concrete implementation of ParcelRepository.
type parcelRepository struct {
	db *database.Database
}

// NewParcelRepository creates a new instance of ParcelRepository.
func NewParcelRepository(db *database.Database) ParcelRepository {
	return &parcelRepository{
		db: db,
	}
}

func (r *parcelRepository) ListParcelIDs(ctx context.Context, municipalities []string) ([]models.ParcelID, error) {
	query := `SELECT id FROM parcels ORDER BY id`
	args := []any{}
	if len(municipalities) > 0 {
		query = `SELECT id FROM parcels WHERE municipality_number = ANY($1) ORDER BY id`
		args = append(args, municipalities)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list parcel ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("error iterating parcel ids: %w", err)
	}

	result := make([]models.ParcelID, len(ids))
	for i, id := range ids {
		result[i] = models.ParcelID(id)
	}
	return result, nil
}
