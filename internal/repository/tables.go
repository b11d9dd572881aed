package repository

import (
	"time"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/writer"
)

// Table specs for the upsert writers. location_code columns are owned by
// the hierarchy coder and are absent here.
var (
	ParcelsTable = writer.TableSpec{
		Name: "parcels",
		Columns: []string{
			"id", "municipality_number", "farm_number", "holding_number",
			"leasehold_number", "section_number", "area", "is_active", "updated_at",
		},
		Key: []string{"id"},
	}

	// A re-imported parcel must not undo a correction made by the owner
	// resolver, so the classification columns are only set on insert.
	ParcelOwnersTable = writer.TableSpec{
		Name: "parcel_owners",
		Columns: []string{
			"parcel_id", "owner_id", "owner_kind", "individual_ref", "organization_ref",
			"share_numerator", "share_denominator",
		},
		Key:            []string{"parcel_id", "owner_id"},
		KeepOnConflict: []string{"owner_kind", "individual_ref", "organization_ref"},
	}

	IndividualsTable = writer.TableSpec{
		Name:    "individuals",
		Columns: []string{"id", "given_name", "family_name", "national_id"},
		Key:     []string{"id"},
	}

	OrganizationsTable = writer.TableSpec{
		Name:    "organizations",
		Columns: []string{"id", "name", "registration_number", "organization_form"},
		Key:     []string{"id"},
	}

	BuildingsTable = writer.TableSpec{
		Name:    "buildings",
		Columns: []string{"id", "building_number", "building_type_code", "municipality_number"},
		Key:     []string{"id"},
	}

	ParcelBuildingsTable = writer.TableSpec{
		Name:    "parcel_buildings",
		Columns: []string{"parcel_id", "building_id"},
		Key:     []string{"parcel_id", "building_id"},
	}

	AddressesTable = writer.TableSpec{
		Name: "addresses",
		Columns: []string{
			"id", "street_id", "street_name", "house_number", "letter",
			"postal_code", "postal_place", "municipality_number",
		},
		Key: []string{"id"},
	}

	ParcelAddressesTable = writer.TableSpec{
		Name:    "parcel_addresses",
		Columns: []string{"parcel_id", "address_id"},
		Key:     []string{"parcel_id", "address_id"},
	}

	UnitsTable = writer.TableSpec{
		Name: "units",
		Columns: []string{
			"id", "building_id", "parcel_id", "address_id", "unit_number",
			"floor_number", "sequence_in_building", "usable_area",
		},
		Key: []string{"id"},
	}

	EntrancesTable = writer.TableSpec{
		Name:    "entrances",
		Columns: []string{"building_id", "street_id", "house_number", "letter", "sequence", "location_code"},
		Key:     []string{"building_id", "street_id", "house_number", "letter"},
	}
)

// ParcelRow maps a parcel onto the parcels table.
func ParcelRow(p models.Parcel, now time.Time) writer.Row {
	return writer.Row{
		"id":                  int64(p.ID),
		"municipality_number": p.MunicipalityNumber,
		"farm_number":         p.FarmNumber,
		"holding_number":      p.HoldingNumber,
		"leasehold_number":    p.LeaseholdNumber,
		"section_number":      p.SectionNumber,
		"area":                p.Area,
		"is_active":           p.Active,
		"updated_at":          now,
	}
}

// OwnerReferenceRow maps a provisional owner reference onto parcel_owners.
func OwnerReferenceRow(ref models.OwnerReference, o models.Ownership) writer.Row {
	return writer.Row{
		"parcel_id":         int64(ref.ParcelID),
		"owner_id":          int64(ref.OwnerID),
		"owner_kind":        string(ref.Kind),
		"individual_ref":    personRef(ref.IndividualRef),
		"organization_ref":  personRef(ref.OrganizationRef),
		"share_numerator":   o.ShareNumerator,
		"share_denominator": o.ShareDenominator,
	}
}

func IndividualRow(i models.Individual) writer.Row {
	return writer.Row{
		"id":          int64(i.ID),
		"given_name":  i.GivenName,
		"family_name": i.FamilyName,
		"national_id": nullString(i.NationalID),
	}
}

func OrganizationRow(o models.Organization) writer.Row {
	return writer.Row{
		"id":                  int64(o.ID),
		"name":                o.Name,
		"registration_number": nullString(o.RegistrationNumber),
		"organization_form":   nullString(o.OrganizationForm),
	}
}

func BuildingRow(b models.Building) writer.Row {
	return writer.Row{
		"id":                  int64(b.ID),
		"building_number":     b.BuildingNumber,
		"building_type_code":  nullString(b.BuildingTypeCode),
		"municipality_number": nullString(b.MunicipalityNumber),
	}
}

func AddressRow(a models.Address) writer.Row {
	var street *int64
	if a.StreetID != nil {
		s := int64(*a.StreetID)
		street = &s
	}
	return writer.Row{
		"id":                  int64(a.ID),
		"street_id":           street,
		"street_name":         nullString(a.StreetName),
		"house_number":        a.HouseNumber,
		"letter":              a.Letter,
		"postal_code":         nullString(a.PostalCode),
		"postal_place":        nullString(a.PostalPlace),
		"municipality_number": nullString(a.MunicipalityNumber),
	}
}

func UnitRow(u models.Unit) writer.Row {
	var parcel, address *int64
	if u.ParcelID != nil {
		p := int64(*u.ParcelID)
		parcel = &p
	}
	if u.AddressID != nil {
		a := int64(*u.AddressID)
		address = &a
	}
	return writer.Row{
		"id":                   int64(u.ID),
		"building_id":          int64(u.BuildingID),
		"parcel_id":            parcel,
		"address_id":           address,
		"unit_number":          nullString(u.UnitNumber),
		"floor_number":         u.FloorNumber,
		"sequence_in_building": u.SequenceInBuilding,
		"usable_area":          u.UsableArea,
	}
}

// LinkRow maps a parcel linkage onto a two-column linkage table.
func LinkRow(spec writer.TableSpec, parcelID, relatedID int64) writer.Row {
	return writer.Row{
		spec.Key[0]: parcelID,
		spec.Key[1]: relatedID,
	}
}

func personRef(id *models.PersonID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
