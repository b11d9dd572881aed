package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/database"
	"github.com/PorticoEstate/matrikkel-sub000/internal/hierarchy"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/writer"
	"github.com/jackc/pgx/v5"
)

// HierarchyRepository loads properties for coding and writes codes back.
type HierarchyRepository interface {
	// ListPropertyIDs returns all parcel ids in ascending order.
	ListPropertyIDs(ctx context.Context) ([]models.ParcelID, error)

	// LoadProperty loads a parcel with its buildings and their units.
	// Returns nil, nil if the parcel does not exist.
	LoadProperty(ctx context.Context, id models.ParcelID) (*hierarchy.Property, error)

	// SaveCodes writes every code of plan in one transaction.
	SaveCodes(ctx context.Context, plan hierarchy.Plan) error
}

type hierarchyRepository struct {
	db *database.Database
}

// NewHierarchyRepository creates a new instance of HierarchyRepository.
func NewHierarchyRepository(db *database.Database) HierarchyRepository {
	return &hierarchyRepository{db: db}
}

func (r *hierarchyRepository) ListPropertyIDs(ctx context.Context) ([]models.ParcelID, error) {
	return NewParcelRepository(r.db).ListParcelIDs(ctx, nil)
}

func (r *hierarchyRepository) LoadProperty(ctx context.Context, id models.ParcelID) (*hierarchy.Property, error) {
	var code *string
	err := r.db.QueryRow(ctx, `SELECT location_code FROM parcels WHERE id = $1`, int64(id)).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load property %d: %w", id, err)
	}

	p := &hierarchy.Property{ID: id}
	if code != nil {
		p.Code = *code
	}

	rows, err := r.db.Query(ctx, `
		SELECT b.id, b.location_code
		FROM parcel_buildings pb
		JOIN buildings b ON b.id = pb.building_id
		WHERE pb.parcel_id = $1
		ORDER BY b.id
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load buildings of property %d: %w", id, err)
	}

	index := make(map[models.BuildingID]int)
	for rows.Next() {
		var (
			buildingID int64
			buildingCd *string
		)
		if err := rows.Scan(&buildingID, &buildingCd); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan building row: %w", err)
		}
		b := hierarchy.Building{ID: models.BuildingID(buildingID)}
		if buildingCd != nil {
			b.Code = *buildingCd
		}
		index[b.ID] = len(p.Buildings)
		p.Buildings = append(p.Buildings, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating building rows: %w", err)
	}
	if len(p.Buildings) == 0 {
		return p, nil
	}

	buildingIDs := make([]int64, len(p.Buildings))
	for i, b := range p.Buildings {
		buildingIDs[i] = int64(b.ID)
	}

	rows, err = r.db.Query(ctx, `
		SELECT u.id, u.building_id, u.floor_number, u.sequence_in_building,
		       a.street_id, a.house_number, a.letter
		FROM units u
		LEFT JOIN addresses a ON a.id = u.address_id
		WHERE u.building_id = ANY($1)
		ORDER BY u.id
	`, buildingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load units of property %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			unitID, buildingID int64
			streetID           *int64
			u                  hierarchy.Unit
		)
		if err := rows.Scan(&unitID, &buildingID, &u.FloorNumber, &u.SequenceInBuilding,
			&streetID, &u.HouseNumber, &u.Letter); err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		u.ID = models.UnitID(unitID)
		if streetID != nil {
			s := models.StreetID(*streetID)
			u.StreetID = &s
		}
		i := index[models.BuildingID(buildingID)]
		p.Buildings[i].Units = append(p.Buildings[i].Units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unit rows: %w", err)
	}

	return p, nil
}

func (r *hierarchyRepository) SaveCodes(ctx context.Context, plan hierarchy.Plan) error {
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`UPDATE parcels SET location_code = $2 WHERE id = $1`, int64(plan.PropertyID), plan.PropertyCode)
		for _, b := range plan.Buildings {
			batch.Queue(`UPDATE buildings SET location_code = $2 WHERE id = $1`, int64(b.ID), b.Code)
		}
		for _, u := range plan.Units {
			batch.Queue(`UPDATE units SET location_code = $2 WHERE id = $1`, int64(u.ID), u.Code)
		}
		if len(plan.Excluded) > 0 {
			excluded := make([]int64, len(plan.Excluded))
			for i, id := range plan.Excluded {
				excluded[i] = int64(id)
			}
			batch.Queue(`UPDATE units SET location_code = NULL WHERE id = ANY($1)`, excluded)
		}
		if len(plan.Buildings) > 0 {
			buildingIDs := make([]int64, len(plan.Buildings))
			for i, b := range plan.Buildings {
				buildingIDs[i] = int64(b.ID)
			}
			batch.Queue(`DELETE FROM entrances WHERE building_id = ANY($1)`, buildingIDs)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to write codes: %w", err)
		}

		if len(plan.Entrances) == 0 {
			return nil
		}
		w, err := writer.New(tx, EntrancesTable, writer.DefaultThreshold)
		if err != nil {
			return err
		}
		for _, e := range plan.Entrances {
			if err := w.InsertRow(ctx, EntranceRow(e)); err != nil {
				return err
			}
		}
		return w.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to save codes for property %d: %w", plan.PropertyID, err)
	}
	return nil
}

// EntranceRow maps a coded entrance onto the entrances table.
func EntranceRow(e hierarchy.Entrance) writer.Row {
	return writer.Row{
		"building_id":   int64(e.BuildingID),
		"street_id":     int64(e.Key.StreetID),
		"house_number":  e.Key.HouseNumber,
		"letter":        e.Key.Letter,
		"sequence":      e.Sequence,
		"location_code": e.Code,
	}
}
