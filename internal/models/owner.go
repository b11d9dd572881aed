package models

// PersonID identifies an owner whose concrete kind may not be known yet.
type PersonID int64

// OwnerKind classifies an owner reference.
type OwnerKind string

const (
	OwnerIndividual   OwnerKind = "individual"
	OwnerOrganization OwnerKind = "organization"
	OwnerUnknown      OwnerKind = "unknown"
)

// Normalize maps registry type tags onto an OwnerKind.
func (k OwnerKind) Normalize() OwnerKind {
	switch k {
	case OwnerIndividual, "FysiskPerson", "fysisk_person", "person":
		return OwnerIndividual
	case OwnerOrganization, "JuridiskPerson", "juridisk_person", "company":
		return OwnerOrganization
	}
	return OwnerUnknown
}

// Individual is a natural person.
type Individual struct {
	ID         PersonID `json:"id" validate:"required,gt=0"`
	GivenName  string   `json:"givenName"`
	FamilyName string   `json:"familyName"`
	NationalID string   `json:"nationalIdNumber" validate:"omitempty,len=11,numeric"`
}

// Organization is a legal person.
type Organization struct {
	ID                 PersonID `json:"id" validate:"required,gt=0"`
	Name               string   `json:"name"`
	RegistrationNumber string   `json:"registrationNumber" validate:"omitempty,len=9,numeric"`
	OrganizationForm   string   `json:"organizationFormCode"`
}

// OwnerReference is a stored pointer from a parcel to an owner. Exactly one
// of IndividualRef and OrganizationRef is set.
type OwnerReference struct {
	ParcelID        ParcelID
	OwnerID         PersonID
	Kind            OwnerKind
	IndividualRef   *PersonID
	OrganizationRef *PersonID
}

// NewOwnerReference creates the provisional reference written during parcel
// import. Anything not known to be an organization is filed under the
// individual column until the owner resolver has looked at it.
func NewOwnerReference(parcel ParcelID, o Ownership) OwnerReference {
	ref := OwnerReference{ParcelID: parcel, OwnerID: o.OwnerID, Kind: o.Kind.Normalize()}
	id := o.OwnerID
	if ref.Kind == OwnerOrganization {
		ref.OrganizationRef = &id
	} else {
		ref.IndividualRef = &id
	}
	return ref
}
