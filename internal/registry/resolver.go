package registry

import (
	"context"
	"fmt"
	"slices"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

// DefaultRelationChunkSize bounds the owner ids sent in one relation query.
const DefaultRelationChunkSize = 500

// Relations is the result of a relation lookup: owner id -> related ids.
type Relations struct {
	Relation models.Relation
	byOwner  map[int64][]int64
}

// ByOwner returns owner id -> sorted related ids. Owners without related
// objects are absent.
func (r Relations) ByOwner() map[int64][]int64 { return r.byOwner }

// Empty reports whether no related ids were found.
func (r Relations) Empty() bool { return len(r.byOwner) == 0 }

// RelatedIDs returns the distinct related ids in ascending order.
func (r Relations) RelatedIDs() []int64 {
	var ids []int64
	for _, related := range r.byOwner {
		ids = append(ids, related...)
	}
	return uniqueSorted(ids)
}

// Reverse returns related id -> sorted owner ids. One related object, such
// as a building, may serve several owners.
func (r Relations) Reverse() map[int64][]int64 {
	reverse := make(map[int64][]int64)
	for owner, related := range r.byOwner {
		for _, id := range related {
			reverse[id] = append(reverse[id], owner)
		}
	}
	for id, owners := range reverse {
		reverse[id] = uniqueSorted(owners)
	}
	return reverse
}

// Resolver runs the first step of the find-then-fetch protocol.
type Resolver struct {
	client    Client
	chunkSize int
}

// NewResolver creates a Resolver sending at most chunkSize owner ids per query.
func NewResolver(client Client, chunkSize int) *Resolver {
	if chunkSize < 1 {
		chunkSize = DefaultRelationChunkSize
	}
	return &Resolver{client: client, chunkSize: chunkSize}
}

// ResolveRelated resolves rel for ownerIDs. Finding nothing is not an error.
func (r *Resolver) ResolveRelated(ctx context.Context, rel models.Relation, ownerIDs []int64) (Relations, error) {
	result := Relations{Relation: rel, byOwner: make(map[int64][]int64)}

	for _, part := range chunk(uniqueSorted(ownerIDs), r.chunkSize) {
		if err := ctx.Err(); err != nil {
			return Relations{}, err
		}

		found, err := r.client.FindRelated(ctx, rel, part)
		if err != nil {
			return Relations{}, fmt.Errorf("resolve %s for %d owners: %w", rel, len(part), err)
		}
		for owner, related := range found {
			if len(related) == 0 {
				continue
			}
			if _, ok := slices.BinarySearch(part, owner); !ok {
				return Relations{}, fmt.Errorf("%w: %s returned unrequested owner %d", ErrProtocol, rel, owner)
			}
			result.byOwner[owner] = uniqueSorted(append(result.byOwner[owner], related...))
		}
	}

	return result, nil
}
