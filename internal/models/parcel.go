package models

import "github.com/shopspring/decimal"

// ParcelID identifies a cadastral unit (matrikkelenhet).
type ParcelID int64

// Parcel is a registered real-property unit and the root of the location
// hierarchy. Nullable registry fields use pointers.
type Parcel struct {
	ID                 ParcelID            `json:"id" validate:"required,gt=0"`
	MunicipalityNumber string              `json:"municipalityNumber" validate:"required,len=4,numeric"`
	FarmNumber         int                 `json:"farmNumber" validate:"gte=0"`
	HoldingNumber      int                 `json:"holdingNumber" validate:"gte=0"`
	LeaseholdNumber    int                 `json:"leaseholdNumber" validate:"gte=0"`
	SectionNumber      int                 `json:"sectionNumber" validate:"gte=0"`
	Area               decimal.NullDecimal `json:"area"`
	Active             bool                `json:"active"`
	Owners             []Ownership         `json:"owners" validate:"dive"`
}

// Ownership is a parcel's reference to an owner as listed by the registry.
// Kind is a hint only; the registry frequently leaves it empty.
type Ownership struct {
	OwnerID          PersonID  `json:"ownerId" validate:"required,gt=0"`
	Kind             OwnerKind `json:"ownerType"`
	ShareNumerator   *int      `json:"shareNumerator"`
	ShareDenominator *int      `json:"shareDenominator"`
}
