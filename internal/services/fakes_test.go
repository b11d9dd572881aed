package services

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/PorticoEstate/matrikkel-sub000/internal/hierarchy"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/registry"
	"github.com/PorticoEstate/matrikkel-sub000/internal/repository"
	"github.com/PorticoEstate/matrikkel-sub000/internal/writer"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// fakeRegistry is an in-memory registry serving raw objects.
type fakeRegistry struct {
	mu        sync.Mutex
	objects   map[models.EntityType]map[int64]json.RawMessage
	relations map[string]map[int64][]int64

	listCalls  int
	listAfter  []*int64
	filters    []registry.Filter
	fetchCalls int
	// failList fails the n-th list call (1-based) with the given error.
	failList map[int]error
	// transient fails this many upcoming calls with a transport fault.
	transient int
	// failFetch fails every fetch of the entity type.
	failFetch map[models.EntityType]error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		objects:   make(map[models.EntityType]map[int64]json.RawMessage),
		relations: make(map[string]map[int64][]int64),
		failList:  make(map[int]error),
		failFetch: make(map[models.EntityType]error),
	}
}

func (f *fakeRegistry) add(entity models.EntityType, id int64, raw string) *fakeRegistry {
	if f.objects[entity] == nil {
		f.objects[entity] = make(map[int64]json.RawMessage)
	}
	f.objects[entity][id] = json.RawMessage(raw)
	return f
}

func (f *fakeRegistry) relate(rel models.Relation, owner int64, related ...int64) *fakeRegistry {
	if f.relations[rel.Name] == nil {
		f.relations[rel.Name] = make(map[int64][]int64)
	}
	f.relations[rel.Name][owner] = append(f.relations[rel.Name][owner], related...)
	return f
}

func (f *fakeRegistry) fault() error {
	if f.transient > 0 {
		f.transient--
		return fmt.Errorf("%w: connection reset", registry.ErrTransport)
	}
	return nil
}

func (f *fakeRegistry) ListAfterCursor(_ context.Context, entity models.EntityType, after *int64, filter registry.Filter, maxCount int) ([]registry.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	f.listAfter = append(f.listAfter, after)
	f.filters = append(f.filters, filter)
	if err := f.fault(); err != nil {
		return nil, err
	}
	if err, ok := f.failList[f.listCalls]; ok {
		return nil, err
	}

	ids := slices.Sorted(maps.Keys(f.objects[entity]))
	objects := []registry.Object{}
	for _, id := range ids {
		if after != nil && id <= *after {
			continue
		}
		if len(objects) == maxCount {
			break
		}
		objects = append(objects, registry.Object{ID: id, Type: entity, Raw: f.objects[entity][id]})
	}
	return objects, nil
}

func (f *fakeRegistry) FindRelated(_ context.Context, rel models.Relation, ownerIDs []int64) (map[int64][]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fault(); err != nil {
		return nil, err
	}
	result := make(map[int64][]int64)
	for _, owner := range ownerIDs {
		if related, ok := f.relations[rel.Name][owner]; ok {
			result[owner] = related
		}
	}
	return result, nil
}

func (f *fakeRegistry) FetchByIDs(ctx context.Context, entity models.EntityType, ids []int64) ([]registry.Object, error) {
	objects, err := f.FetchByIDsIgnoreMissing(ctx, entity, ids)
	if err != nil {
		return nil, err
	}
	if len(objects) != len(ids) {
		return nil, registry.ErrNotFound
	}
	return objects, nil
}

func (f *fakeRegistry) FetchByIDsIgnoreMissing(_ context.Context, entity models.EntityType, ids []int64) ([]registry.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	if err := f.fault(); err != nil {
		return nil, err
	}
	if err := f.failFetch[entity]; err != nil {
		return nil, err
	}
	objects := []registry.Object{}
	for _, id := range ids {
		if raw, ok := f.objects[entity][id]; ok {
			objects = append(objects, registry.Object{ID: id, Type: entity, Raw: raw})
		}
	}
	return objects, nil
}

func (f *fakeRegistry) FetchOne(_ context.Context, entity models.EntityType, id int64) (registry.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fault(); err != nil {
		return registry.Object{}, err
	}
	raw, ok := f.objects[entity][id]
	if !ok {
		return registry.Object{}, fmt.Errorf("%s %d: %w", entity, id, registry.ErrNotFound)
	}
	return registry.Object{ID: id, Type: entity, Raw: raw}, nil
}

var upsertPattern = regexp.MustCompile(`^INSERT INTO (\w+) \(([^)]*)\) VALUES .* ON CONFLICT \(([^)]*)\) (DO NOTHING|DO UPDATE SET (.*))$`)

// foreignKey is a single column reference to the id of another table.
type foreignKey struct {
	column string
	table  string
}

// schemaForeignKeys mirrors the REFERENCES clauses of schema/schema.sql.
var schemaForeignKeys = map[string][]foreignKey{
	"parcel_owners":    {{"parcel_id", "parcels"}},
	"parcel_buildings": {{"parcel_id", "parcels"}, {"building_id", "buildings"}},
	"parcel_addresses": {{"parcel_id", "parcels"}, {"address_id", "addresses"}},
}

// memStore applies the writers' upsert statements to in-memory tables.
type memStore struct {
	mu          sync.Mutex
	tables      map[string]map[string]map[string]any
	execs       int
	foreignKeys map[string][]foreignKey
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]map[string]map[string]any)}
}

func (m *memStore) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	match := upsertPattern.FindStringSubmatch(sql)
	if match == nil {
		return pgconn.CommandTag{}, fmt.Errorf("unsupported statement: %s", sql)
	}
	table, cols, key := match[1], strings.Split(match[2], ", "), strings.Split(match[3], ", ")
	var updates []string
	if match[5] != "" {
		for _, set := range strings.Split(match[5], ", ") {
			updates = append(updates, strings.SplitN(set, " = ", 2)[0])
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs++
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]map[string]any)
	}

	rows := make([]map[string]any, 0, len(args)/len(cols))
	for start := 0; start < len(args); start += len(cols) {
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = derefValue(args[start+i])
		}
		for _, fk := range m.foreignKeys[table] {
			if _, ok := m.tables[fk.table][fmt.Sprint(row[fk.column])]; !ok {
				return pgconn.CommandTag{}, fmt.Errorf("insert on %s violates foreign key: %s=%v is not present in %s",
					table, fk.column, row[fk.column], fk.table)
			}
		}
		rows = append(rows, row)
	}

	for _, row := range rows {
		var parts []string
		for _, k := range key {
			parts = append(parts, fmt.Sprint(row[k]))
		}
		k := strings.Join(parts, "|")

		existing, ok := m.tables[table][k]
		if !ok {
			m.tables[table][k] = row
			continue
		}
		for _, col := range updates {
			existing[col] = row[col]
		}
	}
	return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", len(args)/len(cols))), nil
}

// enforceForeignKeys makes statements fail, without applying any row, when
// a row references a parent the store does not hold yet.
func (m *memStore) enforceForeignKeys() *memStore {
	m.foreignKeys = schemaForeignKeys
	return m
}

func (m *memStore) rows(table string) map[string]map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[string]any, len(m.tables[table]))
	for k, row := range m.tables[table] {
		out[k] = maps.Clone(row)
	}
	return out
}

func (m *memStore) row(table, key string) map[string]any {
	return m.rows(table)[key]
}

func (m *memStore) set(table, key, col string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table][key][col] = v
}

// update applies fn to every row of table and returns how many rows it changed.
func (m *memStore) update(table string, fn func(row map[string]any) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.tables[table] {
		if fn(row) {
			n++
		}
	}
	return n
}

func derefValue(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}

// storeParcels reads imported parcels back from a memStore.
type storeParcels struct {
	store *memStore
}

func (s *storeParcels) ListParcelIDs(_ context.Context, municipalities []string) ([]models.ParcelID, error) {
	var ids []models.ParcelID
	for _, row := range s.store.rows("parcels") {
		if len(municipalities) > 0 && !slices.Contains(municipalities, row["municipality_number"].(string)) {
			continue
		}
		ids = append(ids, models.ParcelID(row["id"].(int64)))
	}
	slices.Sort(ids)
	return ids, nil
}

// storeOwners is an OwnerRepository over a memStore, applying the same
// candidate rule and reference corrections as the PostgreSQL repository.
type storeOwners struct {
	store *memStore
}

func (s *storeOwners) ListUnresolvedOwnerIDs(_ context.Context) ([]models.PersonID, error) {
	organizations := s.store.rows("organizations")
	candidates := map[models.PersonID]bool{}
	for _, row := range s.store.rows("parcel_owners") {
		id := row["owner_id"].(int64)
		if _, stored := organizations[fmt.Sprint(id)]; !stored {
			candidates[models.PersonID(id)] = true
		}
	}
	return slices.Sorted(maps.Keys(candidates)), nil
}

func (s *storeOwners) StoreOrganization(ctx context.Context, org models.Organization) (int64, error) {
	if err := s.insert(ctx, repository.OrganizationsTable, repository.OrganizationRow(org)); err != nil {
		return 0, err
	}
	return s.store.update("parcel_owners", func(row map[string]any) bool {
		if row["individual_ref"] != int64(org.ID) {
			return false
		}
		row["organization_ref"], row["individual_ref"] = row["individual_ref"], nil
		row["owner_kind"] = string(models.OwnerOrganization)
		return true
	}), nil
}

func (s *storeOwners) StoreIndividual(ctx context.Context, ind models.Individual) (int64, error) {
	if err := s.insert(ctx, repository.IndividualsTable, repository.IndividualRow(ind)); err != nil {
		return 0, err
	}
	return s.store.update("parcel_owners", func(row map[string]any) bool {
		if row["individual_ref"] != int64(ind.ID) || row["owner_kind"] != string(models.OwnerUnknown) {
			return false
		}
		row["owner_kind"] = string(models.OwnerIndividual)
		return true
	}), nil
}

func (s *storeOwners) insert(ctx context.Context, spec writer.TableSpec, row writer.Row) error {
	w, err := writer.New(s.store, spec, 1)
	if err != nil {
		return err
	}
	return w.InsertRow(ctx, row)
}

// memCheckpoints is an in-memory checkpoint store.
type memCheckpoints struct {
	mu      sync.Mutex
	cursors map[models.EntityType]registry.Cursor
	saves   int
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{cursors: make(map[models.EntityType]registry.Cursor)}
}

func (c *memCheckpoints) Save(cursor registry.Cursor, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.cursors[cursor.Entity()] = cursor
	return nil
}

func (c *memCheckpoints) Load(entity models.EntityType) (registry.Cursor, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cursor, ok := c.cursors[entity]
	return cursor, ok, nil
}

func (c *memCheckpoints) Clear(entity models.EntityType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, entity)
	return nil
}

func (c *memCheckpoints) Close() error { return nil }

// MockOwnerRepository is a mock implementation of OwnerRepository for testing
type MockOwnerRepository struct {
	mock.Mock
}

func (m *MockOwnerRepository) ListUnresolvedOwnerIDs(ctx context.Context) ([]models.PersonID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]models.PersonID)
	return ids, args.Error(1)
}

func (m *MockOwnerRepository) StoreOrganization(ctx context.Context, org models.Organization) (int64, error) {
	args := m.Called(ctx, org)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOwnerRepository) StoreIndividual(ctx context.Context, ind models.Individual) (int64, error) {
	args := m.Called(ctx, ind)
	return args.Get(0).(int64), args.Error(1)
}

// MockHierarchyRepository is a mock implementation of HierarchyRepository for testing
type MockHierarchyRepository struct {
	mock.Mock
}

func (m *MockHierarchyRepository) ListPropertyIDs(ctx context.Context) ([]models.ParcelID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]models.ParcelID)
	return ids, args.Error(1)
}

func (m *MockHierarchyRepository) LoadProperty(ctx context.Context, id models.ParcelID) (*hierarchy.Property, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*hierarchy.Property), args.Error(1)
}

func (m *MockHierarchyRepository) SaveCodes(ctx context.Context, plan hierarchy.Plan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

// MockOwnerService is a mock implementation of OwnerService for testing
type MockOwnerService struct {
	mock.Mock
}

func (m *MockOwnerService) ListCandidates(ctx context.Context) ([]models.PersonID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]models.PersonID)
	return ids, args.Error(1)
}

func (m *MockOwnerService) ResolveOwners(ctx context.Context, ids []models.PersonID) (OwnerResult, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(OwnerResult), args.Error(1)
}

// MockHierarchyService is a mock implementation of HierarchyService for testing
type MockHierarchyService struct {
	mock.Mock
}

func (m *MockHierarchyService) OrganizeProperty(ctx context.Context, id models.ParcelID, force bool) (OrganizeResult, error) {
	args := m.Called(ctx, id, force)
	return args.Get(0).(OrganizeResult), args.Error(1)
}

func (m *MockHierarchyService) OrganizeAll(ctx context.Context, force bool) (OrganizeSummary, error) {
	args := m.Called(ctx, force)
	return args.Get(0).(OrganizeSummary), args.Error(1)
}
