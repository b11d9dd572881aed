package models

// BuildingID identifies a building (bygg).
type BuildingID int64

// Building is a physical structure. One building may stand on several parcels.
type Building struct {
	ID                 BuildingID `json:"id" validate:"required,gt=0"`
	BuildingNumber     int64      `json:"buildingNumber" validate:"gte=0"`
	BuildingTypeCode   string     `json:"buildingTypeCode"`
	MunicipalityNumber string     `json:"municipalityNumber"`
}
