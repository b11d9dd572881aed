package registry

import (
	"context"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

// DefaultBatchSize is the registry's default limit on ids per fetch call.
const DefaultBatchSize = 1000

// Fetcher fetches full objects by id in bounded chunks.
type Fetcher struct {
	client Client
}

// NewFetcher creates a Fetcher.
func NewFetcher(client Client) *Fetcher {
	return &Fetcher{client: client}
}

// ChunkFunc receives the objects of one fetched chunk.
type ChunkFunc func(ctx context.Context, objects []Object) error

// FetchObjects fetches all ids. Every id must exist remotely.
func (f *Fetcher) FetchObjects(ctx context.Context, entity models.EntityType, ids []int64, batchSize int) ([]Object, error) {
	return f.collect(ctx, entity, ids, batchSize, false)
}

// FetchObjectsIgnoreMissing fetches the ids that exist and skips the rest.
// It only fails on transport or protocol faults.
func (f *Fetcher) FetchObjectsIgnoreMissing(ctx context.Context, entity models.EntityType, ids []int64, batchSize int) ([]Object, error) {
	return f.collect(ctx, entity, ids, batchSize, true)
}

func (f *Fetcher) collect(ctx context.Context, entity models.EntityType, ids []int64, batchSize int, ignoreMissing bool) ([]Object, error) {
	var all []Object
	err := f.Each(ctx, entity, ids, batchSize, ignoreMissing, func(_ context.Context, objects []Object) error {
		all = append(all, objects...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = []Object{}
	}
	return all, nil
}

// Each fetches ids chunk by chunk and hands each chunk to fn before fetching
// the next one. Ids are de-duplicated and sorted first so the chunk layout
// does not depend on the caller's ordering.
func (f *Fetcher) Each(ctx context.Context, entity models.EntityType, ids []int64, batchSize int, ignoreMissing bool, fn ChunkFunc) error {
	if len(ids) == 0 {
		return nil
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	fetched := 0
	for _, part := range chunk(uniqueSorted(ids), batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			objects []Object
			err     error
		)
		if ignoreMissing {
			objects, err = f.client.FetchByIDsIgnoreMissing(ctx, entity, part)
		} else {
			objects, err = f.client.FetchByIDs(ctx, entity, part)
			if err == nil {
				err = checkComplete(part, objects)
			}
		}
		if err != nil {
			return &ChunkError{Entity: entity, Attempted: len(part), Fetched: fetched, Err: err}
		}

		if err := fn(ctx, objects); err != nil {
			return err
		}
		fetched += len(objects)
	}
	return nil
}

// checkComplete verifies a strict fetch returned every requested id.
func checkComplete(requested []int64, objects []Object) error {
	got := make(map[int64]struct{}, len(objects))
	for _, o := range objects {
		got[o.ID] = struct{}{}
	}
	missing := 0
	first := int64(0)
	for _, id := range requested {
		if _, ok := got[id]; !ok {
			if missing == 0 {
				first = id
			}
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d of %d ids missing (first %d)", ErrNotFound, missing, len(requested), first)
	}
	return nil
}
