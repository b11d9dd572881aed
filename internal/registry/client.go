// Package registry talks to the remote Matrikkel registry: cursor paging
// over bulk listings, relation lookups and batch object fetches.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

// Object is one registry object in its raw wire form.
type Object struct {
	ID   int64
	Type models.EntityType
	Raw  json.RawMessage
}

// Filter is an opaque, server-interpreted predicate passed through unmodified.
// The empty filter means unfiltered.
type Filter string

// NoFilter selects everything.
const NoFilter Filter = ""

// MunicipalityFilter restricts a listing to the given municipalities.
func MunicipalityFilter(numbers []string) Filter {
	if len(numbers) == 0 {
		return NoFilter
	}
	b, err := json.Marshal(struct {
		Municipalities []string `json:"kommunenummer"`
	}{numbers})
	if err != nil {
		// Marshalling a string slice cannot fail.
		panic(fmt.Sprintf("marshal municipality filter: %v", err))
	}
	return Filter(b)
}

// Client is the remote registry as seen by the import pipeline.
type Client interface {
	// ListAfterCursor lists at most maxCount objects with id greater than
	// after (nil for the beginning), ascending by id.
	ListAfterCursor(ctx context.Context, entity models.EntityType, after *int64, filter Filter, maxCount int) ([]Object, error)

	// FindRelated returns owner id -> related ids for the given relation.
	// Owners without related objects may be absent from the map.
	FindRelated(ctx context.Context, rel models.Relation, ownerIDs []int64) (map[int64][]int64, error)

	// FetchByIDs returns the full objects for ids. Unknown ids are an error.
	FetchByIDs(ctx context.Context, entity models.EntityType, ids []int64) ([]Object, error)

	// FetchByIDsIgnoreMissing returns the objects that exist and skips the rest.
	FetchByIDsIgnoreMissing(ctx context.Context, entity models.EntityType, ids []int64) ([]Object, error)

	// FetchOne returns a single object fetched under the given entity type.
	FetchOne(ctx context.Context, entity models.EntityType, id int64) (Object, error)
}
