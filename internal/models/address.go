package models

// AddressID identifies an address (adresse).
type AddressID int64

// StreetID identifies a street (adressekode) within a municipality.
type StreetID int64

// Address is an official street address. Matrikkel addresses without a
// street carry no house number.
type Address struct {
	ID                 AddressID `json:"id" validate:"required,gt=0"`
	StreetID           *StreetID `json:"streetId"`
	StreetName         string    `json:"streetName"`
	HouseNumber        *int      `json:"houseNumber" validate:"omitempty,gt=0"`
	Letter             *string   `json:"letter" validate:"omitempty,max=2"`
	PostalCode         string    `json:"postalCode"`
	PostalPlace        string    `json:"postalPlace"`
	MunicipalityNumber string    `json:"municipalityNumber"`
}
