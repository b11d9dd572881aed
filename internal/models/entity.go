package models

import (
	"fmt"
	"strings"
)

// EntityType names a kind of object held by the remote registry.
// Identifiers are only unique within one entity type.
type EntityType string

const (
	EntityParcel   EntityType = "parcel"
	EntityBuilding EntityType = "building"
	EntityUnit     EntityType = "unit"
	EntityAddress  EntityType = "address"
	// EntityPerson is the registry's owner type. Whether a person is an
	// individual or an organization is only known after it has been fetched.
	EntityPerson EntityType = "person"
)

// EntityTypes lists the importable entity types in dependency order.
var EntityTypes = []EntityType{
	EntityParcel,
	EntityPerson,
	EntityBuilding,
	EntityUnit,
	EntityAddress,
}

// ParseEntityType accepts the canonical names and a few plural aliases used on
// the command line ("parcels", "owners").
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parcel", "parcels":
		return EntityParcel, nil
	case "building", "buildings":
		return EntityBuilding, nil
	case "unit", "units":
		return EntityUnit, nil
	case "address", "addresses":
		return EntityAddress, nil
	case "person", "persons", "owner", "owners":
		return EntityPerson, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

func (e EntityType) String() string { return string(e) }

// Relation is a server-side relation from an owner entity type to a related
// entity type, resolved with the two-step find-then-fetch protocol.
type Relation struct {
	Name    string
	Owner   EntityType
	Related EntityType
}

var (
	RelationParcelBuildings = Relation{Name: "parcel-buildings", Owner: EntityParcel, Related: EntityBuilding}
	RelationParcelAddresses = Relation{Name: "parcel-addresses", Owner: EntityParcel, Related: EntityAddress}
	RelationParcelUnits     = Relation{Name: "parcel-units", Owner: EntityParcel, Related: EntityUnit}
)

func (r Relation) String() string { return r.Name }
