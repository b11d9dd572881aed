package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

// fakeClient is an in-memory registry holding ascending ids per entity type.
type fakeClient struct {
	mu        sync.Mutex
	ids       map[models.EntityType][]int64
	relations map[string]map[int64][]int64

	listCalls     int
	fetchCalls    [][]int64
	relationCalls [][]int64

	listErr  error
	failList int // fail the n-th list call (1-based); zero never fails
	fetchErr error
	failAt   int // fail the n-th fetch call (1-based); zero never fails
	dropID   int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		ids:       make(map[models.EntityType][]int64),
		relations: make(map[string]map[int64][]int64),
	}
}

func (f *fakeClient) withRange(entity models.EntityType, from, to int64) *fakeClient {
	for id := from; id <= to; id++ {
		f.ids[entity] = append(f.ids[entity], id)
	}
	return f
}

func object(entity models.EntityType, id int64) Object {
	return Object{ID: id, Type: entity, Raw: json.RawMessage(fmt.Sprintf(`{"id":%d}`, id))}
}

func (f *fakeClient) ListAfterCursor(_ context.Context, entity models.EntityType, after *int64, _ Filter, maxCount int) ([]Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil && (f.failList == 0 || f.failList == f.listCalls) {
		return nil, f.listErr
	}

	objects := []Object{}
	for _, id := range f.ids[entity] {
		if after != nil && id <= *after {
			continue
		}
		if len(objects) == maxCount {
			break
		}
		objects = append(objects, object(entity, id))
	}
	return objects, nil
}

func (f *fakeClient) FindRelated(_ context.Context, rel models.Relation, ownerIDs []int64) (map[int64][]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.relationCalls = append(f.relationCalls, slices.Clone(ownerIDs))
	result := make(map[int64][]int64)
	for _, owner := range ownerIDs {
		if related, ok := f.relations[rel.Name][owner]; ok {
			result[owner] = related
		}
	}
	return result, nil
}

func (f *fakeClient) fetch(entity models.EntityType, ids []int64, ignoreMissing bool) ([]Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls = append(f.fetchCalls, slices.Clone(ids))
	if f.fetchErr != nil && len(f.fetchCalls) == f.failAt {
		return nil, f.fetchErr
	}

	objects := []Object{}
	for _, id := range ids {
		if id == f.dropID || !slices.Contains(f.ids[entity], id) {
			if ignoreMissing {
				continue
			}
			if id != f.dropID {
				return nil, fmt.Errorf("id %d: %w", id, ErrNotFound)
			}
			continue
		}
		objects = append(objects, object(entity, id))
	}
	return objects, nil
}

func (f *fakeClient) FetchByIDs(_ context.Context, entity models.EntityType, ids []int64) ([]Object, error) {
	return f.fetch(entity, ids, false)
}

func (f *fakeClient) FetchByIDsIgnoreMissing(_ context.Context, entity models.EntityType, ids []int64) ([]Object, error) {
	return f.fetch(entity, ids, true)
}

func (f *fakeClient) FetchOne(_ context.Context, entity models.EntityType, id int64) (Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.ids[entity], id) {
		return Object{}, ErrNotFound
	}
	return object(entity, id), nil
}
