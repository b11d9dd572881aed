package hierarchy

import (
	"testing"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func unitAt(id models.UnitID, street models.StreetID, house int, letter *string) Unit {
	return Unit{ID: id, StreetID: &street, HouseNumber: &house, Letter: letter}
}

func TestAssign_EntranceOrdering(t *testing.T) {
	p := Property{
		ID:   500,
		Code: "P500",
		Buildings: []Building{{
			ID: 1,
			Units: []Unit{
				unitAt(4, 7, 12, ptr("B")),
				unitAt(3, 7, 12, ptr("A")),
				unitAt(2, 7, 10, ptr("A")),
				unitAt(1, 7, 10, nil),
			},
		}},
	}

	plan := Assign(p)

	require.Len(t, plan.Entrances, 4)
	want := []struct {
		house  int
		letter string
		code   string
	}{
		{10, "", "P500-01-01"},
		{10, "A", "P500-01-02"},
		{12, "A", "P500-01-03"},
		{12, "B", "P500-01-04"},
	}
	for i, w := range want {
		e := plan.Entrances[i]
		assert.Equal(t, w.house, e.Key.HouseNumber)
		assert.Equal(t, w.letter, e.Key.Letter)
		assert.Equal(t, w.code, e.Code)
		assert.Equal(t, i+1, e.Sequence)
	}
}

func TestAssign_StreetBreaksTies(t *testing.T) {
	p := Property{ID: 1, Buildings: []Building{{
		ID: 1,
		Units: []Unit{
			unitAt(1, 300, 5, nil),
			unitAt(2, 200, 5, nil),
			{ID: 3, HouseNumber: ptr(5)},
		},
	}}}

	plan := Assign(p)

	require.Len(t, plan.Entrances, 3)
	assert.Equal(t, models.StreetID(0), plan.Entrances[0].Key.StreetID)
	assert.Equal(t, models.StreetID(200), plan.Entrances[1].Key.StreetID)
	assert.Equal(t, models.StreetID(300), plan.Entrances[2].Key.StreetID)
}

func TestAssign_BuildingsAscendingAndFallbackCode(t *testing.T) {
	p := Property{
		ID:        8123,
		Buildings: []Building{{ID: 30}, {ID: 10}, {ID: 20}, {ID: 10}},
	}

	plan := Assign(p)

	assert.Equal(t, "8123", plan.PropertyCode)
	assert.Equal(t, []BuildingCode{
		{ID: 10, Code: "8123-01"},
		{ID: 20, Code: "8123-02"},
		{ID: 30, Code: "8123-03"},
	}, plan.Buildings)
	assert.Empty(t, plan.Entrances)
	assert.Empty(t, plan.Units)
}

func TestAssign_PropertyWithoutBuildingsStillGetsCode(t *testing.T) {
	plan := Assign(Property{ID: 42, Code: "0301-42"})

	assert.Equal(t, "0301-42", plan.PropertyCode)
	assert.Empty(t, plan.Buildings)
}

func TestAssign_UnitOrdering(t *testing.T) {
	p := Property{ID: 1, Code: "X", Buildings: []Building{{
		ID: 1,
		Units: []Unit{
			{ID: 50, FloorNumber: ptr(2), SequenceInBuilding: ptr(1), StreetID: ptr(models.StreetID(1)), HouseNumber: ptr(1)},
			{ID: 40, FloorNumber: ptr(1), SequenceInBuilding: ptr(2), StreetID: ptr(models.StreetID(1)), HouseNumber: ptr(1)},
			{ID: 30, FloorNumber: ptr(1), SequenceInBuilding: ptr(1), StreetID: ptr(models.StreetID(1)), HouseNumber: ptr(1)},
			{ID: 20, FloorNumber: nil, SequenceInBuilding: ptr(9), StreetID: ptr(models.StreetID(1)), HouseNumber: ptr(1)},
			{ID: 11, FloorNumber: ptr(1), SequenceInBuilding: ptr(1), StreetID: ptr(models.StreetID(1)), HouseNumber: ptr(1)},
		},
	}}}

	plan := Assign(p)

	assert.Equal(t, []UnitCode{
		{ID: 20, Code: "X-01-01-001"},
		{ID: 11, Code: "X-01-01-002"},
		{ID: 30, Code: "X-01-01-003"},
		{ID: 40, Code: "X-01-01-004"},
		{ID: 50, Code: "X-01-01-005"},
	}, plan.Units)
}

func TestAssign_UnitsWithoutHouseNumberAreExcluded(t *testing.T) {
	p := Property{ID: 1, Buildings: []Building{{
		ID: 1,
		Units: []Unit{
			{ID: 9},
			unitAt(2, 1, 4, nil),
			{ID: 3, StreetID: ptr(models.StreetID(1))},
		},
	}}}

	plan := Assign(p)

	assert.Equal(t, []models.UnitID{3, 9}, plan.Excluded)
	require.Len(t, plan.Units, 1)
	assert.Equal(t, models.UnitID(2), plan.Units[0].ID)
}

func TestAssign_IsIdempotent(t *testing.T) {
	p := Property{ID: 77, Buildings: []Building{
		{ID: 2, Units: []Unit{unitAt(5, 1, 3, ptr("C")), unitAt(6, 1, 3, nil), {ID: 7}}},
		{ID: 1, Units: []Unit{unitAt(8, 2, 1, nil), unitAt(9, 2, 1, nil)}},
	}}

	first := Assign(p)

	// Feed the assigned codes back in, as a second run would see them.
	p.Code = first.PropertyCode
	for i := range p.Buildings {
		for _, b := range first.Buildings {
			if b.ID == p.Buildings[i].ID {
				p.Buildings[i].Code = b.Code
			}
		}
	}
	second := Assign(p)

	assert.Equal(t, first, second)
	assert.True(t, p.Coded())
}

func TestProperty_Coded(t *testing.T) {
	assert.False(t, Property{ID: 1}.Coded())
	assert.True(t, Property{ID: 1, Code: "1"}.Coded())
	assert.False(t, Property{ID: 1, Code: "1", Buildings: []Building{{ID: 1}}}.Coded())
	assert.True(t, Property{ID: 1, Code: "1", Buildings: []Building{{ID: 1, Code: "1-01"}}}.Coded())
}
