package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		input string
		want  EntityType
	}{
		{"parcel", EntityParcel},
		{"Parcels", EntityParcel},
		{" buildings ", EntityBuilding},
		{"units", EntityUnit},
		{"address", EntityAddress},
		{"owners", EntityPerson},
		{"person", EntityPerson},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEntityType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseEntityType("garage")
	assert.Error(t, err)
}

func TestOwnerKindNormalize(t *testing.T) {
	assert.Equal(t, OwnerIndividual, OwnerKind("FysiskPerson").Normalize())
	assert.Equal(t, OwnerOrganization, OwnerKind("JuridiskPerson").Normalize())
	assert.Equal(t, OwnerOrganization, OwnerOrganization.Normalize())
	assert.Equal(t, OwnerUnknown, OwnerKind("").Normalize())
	assert.Equal(t, OwnerUnknown, OwnerKind("AnnenPerson").Normalize())
}

func TestNewOwnerReference(t *testing.T) {
	t.Run("unknown kind is filed as individual", func(t *testing.T) {
		ref := NewOwnerReference(10, Ownership{OwnerID: 77})

		assert.Equal(t, OwnerUnknown, ref.Kind)
		require.NotNil(t, ref.IndividualRef)
		assert.Equal(t, PersonID(77), *ref.IndividualRef)
		assert.Nil(t, ref.OrganizationRef)
	})

	t.Run("organization hint is filed as organization", func(t *testing.T) {
		ref := NewOwnerReference(10, Ownership{OwnerID: 78, Kind: "JuridiskPerson"})

		assert.Equal(t, OwnerOrganization, ref.Kind)
		assert.Nil(t, ref.IndividualRef)
		require.NotNil(t, ref.OrganizationRef)
		assert.Equal(t, PersonID(78), *ref.OrganizationRef)
	})
}

func TestDecodeParcel(t *testing.T) {
	raw := []byte(`{
		"id": 1001,
		"municipalityNumber": "0301",
		"farmNumber": 208,
		"holdingNumber": 40,
		"area": "512.30",
		"active": true,
		"owners": [{"ownerId": 5, "shareNumerator": 1, "shareDenominator": 2}]
	}`)

	p, err := Decode[Parcel](raw)
	require.NoError(t, err)

	assert.Equal(t, ParcelID(1001), p.ID)
	assert.Equal(t, 208, p.FarmNumber)
	assert.Equal(t, 40, p.HoldingNumber)
	assert.Zero(t, p.LeaseholdNumber)
	assert.True(t, p.Area.Valid)
	assert.Equal(t, "512.3", p.Area.Decimal.String())
	require.Len(t, p.Owners, 1)
	assert.Equal(t, PersonID(5), p.Owners[0].OwnerID)
	assert.Equal(t, 2, *p.Owners[0].ShareDenominator)
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"id": `},
		{"missing id", `{"municipalityNumber": "0301"}`},
		{"bad municipality", `{"id": 1, "municipalityNumber": "301"}`},
		{"owner without id", `{"id": 1, "municipalityNumber": "0301", "owners": [{}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[Parcel]([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestDecodeUnitWithNullFloor(t *testing.T) {
	u, err := Decode[Unit]([]byte(`{"id": 5, "buildingId": 9, "floorNumber": null, "usableArea": 64.5}`))
	require.NoError(t, err)

	assert.Nil(t, u.FloorNumber)
	assert.Equal(t, BuildingID(9), u.BuildingID)
	assert.True(t, u.UsableArea.Valid)
}
