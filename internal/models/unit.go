package models

import "github.com/shopspring/decimal"

// UnitID identifies a usable subdivision of a building (bruksenhet).
type UnitID int64

// Unit is a usable subdivision of a building such as an apartment.
type Unit struct {
	ID                 UnitID              `json:"id" validate:"required,gt=0"`
	BuildingID         BuildingID          `json:"buildingId" validate:"required,gt=0"`
	ParcelID           *ParcelID           `json:"parcelId"`
	AddressID          *AddressID          `json:"addressId"`
	UnitNumber         string              `json:"unitNumber"`
	FloorNumber        *int                `json:"floorNumber"`
	SequenceInBuilding *int                `json:"sequenceInBuilding"`
	UsableArea         decimal.NullDecimal `json:"usableArea"`
}
