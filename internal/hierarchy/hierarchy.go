// Package hierarchy assigns location codes to a property and everything
// standing on it: buildings, entrances and units.
//
// Assignment is a pure function of the ordering keys, so running it twice
// over unchanged data yields identical codes.
package hierarchy

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"golang.org/x/exp/constraints"
)

// Unit is a unit with the keys that place it in an entrance.
type Unit struct {
	ID                 models.UnitID
	FloorNumber        *int
	SequenceInBuilding *int
	StreetID           *models.StreetID
	HouseNumber        *int
	Letter             *string
}

// Building is a building standing on the property and its units.
type Building struct {
	ID    models.BuildingID
	Code  string
	Units []Unit
}

// Property is the root of a hierarchy as loaded from the store.
type Property struct {
	ID models.ParcelID
	// Code is the property's existing location code, if any.
	Code      string
	Buildings []Building
}

// Coded reports whether the property and all of its buildings already
// carry codes.
func (p Property) Coded() bool {
	if p.Code == "" {
		return false
	}
	for _, b := range p.Buildings {
		if b.Code == "" {
			return false
		}
	}
	return true
}

// EntranceKey identifies an entrance within a building. A missing street is
// stored as zero and a missing letter as the empty string.
type EntranceKey struct {
	StreetID    models.StreetID
	HouseNumber int
	Letter      string
}

// BuildingCode is a coded building.
type BuildingCode struct {
	ID   models.BuildingID
	Code string
}

// Entrance is a coded, derived grouping of units within a building.
type Entrance struct {
	BuildingID models.BuildingID
	Key        EntranceKey
	Sequence   int
	Code       string
	Units      []models.UnitID
}

// UnitCode is a coded unit.
type UnitCode struct {
	ID   models.UnitID
	Code string
}

// Plan is the full set of codes for one property.
type Plan struct {
	PropertyID   models.ParcelID
	PropertyCode string
	Buildings    []BuildingCode
	Entrances    []Entrance
	Units        []UnitCode
	// Excluded lists units without a house number. They get no entrance
	// and no unit code.
	Excluded []models.UnitID
}

// PropertyCode returns the existing code or, failing that, the parcel id.
func PropertyCode(p Property) string {
	if p.Code != "" {
		return p.Code
	}
	return strconv.FormatInt(int64(p.ID), 10)
}

// Assign computes the codes for p.
func Assign(p Property) Plan {
	plan := Plan{PropertyID: p.ID, PropertyCode: PropertyCode(p)}

	buildings := slices.Clone(p.Buildings)
	slices.SortStableFunc(buildings, func(a, b Building) int { return cmp.Compare(a.ID, b.ID) })
	buildings = slices.CompactFunc(buildings, func(a, b Building) bool { return a.ID == b.ID })

	for i, b := range buildings {
		buildingCode := fmt.Sprintf("%s-%02d", plan.PropertyCode, i+1)
		plan.Buildings = append(plan.Buildings, BuildingCode{ID: b.ID, Code: buildingCode})

		groups, excluded := groupEntrances(b.Units)
		plan.Excluded = append(plan.Excluded, excluded...)

		for j, g := range groups {
			entranceCode := fmt.Sprintf("%s-%02d", buildingCode, j+1)
			entrance := Entrance{BuildingID: b.ID, Key: g.key, Sequence: j + 1, Code: entranceCode}

			slices.SortFunc(g.units, compareUnits)
			for k, u := range g.units {
				plan.Units = append(plan.Units, UnitCode{ID: u.ID, Code: fmt.Sprintf("%s-%03d", entranceCode, k+1)})
				entrance.Units = append(entrance.Units, u.ID)
			}
			plan.Entrances = append(plan.Entrances, entrance)
		}
	}

	slices.Sort(plan.Excluded)
	return plan
}

type group struct {
	key      EntranceKey
	streetID *models.StreetID
	units    []Unit
}

func groupEntrances(units []Unit) ([]*group, []models.UnitID) {
	var (
		groups   []*group
		byKey    = make(map[EntranceKey]*group)
		excluded []models.UnitID
	)
	for _, u := range units {
		if u.HouseNumber == nil {
			excluded = append(excluded, u.ID)
			continue
		}
		key := EntranceKey{HouseNumber: *u.HouseNumber}
		if u.StreetID != nil {
			key.StreetID = *u.StreetID
		}
		if u.Letter != nil {
			key.Letter = *u.Letter
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, streetID: u.StreetID}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.units = append(g.units, u)
	}

	// House number, then letter with no letter first, then street.
	slices.SortFunc(groups, func(a, b *group) int {
		if c := cmp.Compare(a.key.HouseNumber, b.key.HouseNumber); c != 0 {
			return c
		}
		if c := cmp.Compare(a.key.Letter, b.key.Letter); c != 0 {
			return c
		}
		return compareNullable(a.streetID, b.streetID)
	})
	return groups, excluded
}

// Floor with unknown floors first, then sequence in building, then id.
func compareUnits(a, b Unit) int {
	if c := compareNullable(a.FloorNumber, b.FloorNumber); c != 0 {
		return c
	}
	if c := compareNullable(a.SequenceInBuilding, b.SequenceInBuilding); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// compareNullable orders nil before any value.
func compareNullable[T constraints.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(*a, *b)
}
