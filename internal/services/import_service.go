package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/PorticoEstate/matrikkel-sub000/internal/checkpoint"
	"github.com/PorticoEstate/matrikkel-sub000/internal/config"
	"github.com/PorticoEstate/matrikkel-sub000/internal/logger"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/progress"
	"github.com/PorticoEstate/matrikkel-sub000/internal/registry"
	"github.com/PorticoEstate/matrikkel-sub000/internal/repository"
	"github.com/PorticoEstate/matrikkel-sub000/internal/writer"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ownerChunkSize is how many owners are resolved between progress reports.
const ownerChunkSize = 100

// ImportOptions selects what an import run reads.
type ImportOptions struct {
	// Municipalities restricts parcels to these municipality numbers, both
	// in the registry listing and when reading imported parcels back.
	Municipalities []string
	// Filter overrides the registry filter built from Municipalities.
	Filter registry.Filter
	// ResumeCursor starts the run after this position.
	ResumeCursor *registry.Cursor
	// Resume starts the run from the last saved checkpoint, if any.
	Resume bool
}

func (o ImportOptions) filter() registry.Filter {
	if o.Filter != registry.NoFilter {
		return o.Filter
	}
	return registry.MunicipalityFilter(o.Municipalities)
}

// ImportResult reports one entity import run.
type ImportResult struct {
	RunID    string            `json:"run_id"`
	Entity   models.EntityType `json:"entity"`
	State    progress.State    `json:"state"`
	Imported int               `json:"imported"`
	Linked   int               `json:"linked,omitempty"`
	Failed   int               `json:"failed"`
	Cursor   string            `json:"cursor,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Summary reports a full synchronization.
type Summary struct {
	Imports   []ImportResult   `json:"imports"`
	Hierarchy *OrganizeSummary `json:"hierarchy,omitempty"`
}

// ImportService runs entity imports from the registry into the store.
type ImportService interface {
	// ImportParcels pages through all parcels and stores them together with
	// provisional owner references.
	ImportParcels(ctx context.Context, opts ImportOptions) (ImportResult, error)
	// ImportBuildings imports the buildings standing on imported parcels.
	ImportBuildings(ctx context.Context, opts ImportOptions) (ImportResult, error)
	// ImportUnits imports the units on imported parcels.
	ImportUnits(ctx context.Context, opts ImportOptions) (ImportResult, error)
	// ImportAddresses imports the addresses of imported parcels.
	ImportAddresses(ctx context.Context, opts ImportOptions) (ImportResult, error)
	// ImportOwners resolves owner references left by the parcel import.
	ImportOwners(ctx context.Context) (ImportResult, error)

	// Import runs the import of one entity type.
	Import(ctx context.Context, entity models.EntityType, opts ImportOptions) (ImportResult, error)
	// Start begins an import in the background and returns its run id.
	Start(ctx context.Context, entity models.EntityType, opts ImportOptions) (string, error)
	// ImportAll runs parcels, owners, the parcel-derived entity types and
	// finally hierarchy coding.
	ImportAll(ctx context.Context, opts ImportOptions) (Summary, error)
	// Wait blocks until all runs begun with Start have finished.
	Wait()
}

// ImportDependencies are the collaborators of the import service.
type ImportDependencies struct {
	Client      registry.Client
	Store       writer.Execer
	Parcels     repository.ParcelRepository
	Owners      OwnerService
	Hierarchy   HierarchyService
	Tracker     *progress.Tracker
	Sink        progress.Sink
	Checkpoints checkpoint.Store
}

type importService struct {
	client      registry.Client
	store       writer.Execer
	parcels     repository.ParcelRepository
	owners      OwnerService
	hierarchy   HierarchyService
	tracker     *progress.Tracker
	sink        progress.Sink
	checkpoints checkpoint.Store
	cfg         config.ImportConfig
	log         *logger.Logger
	now         func() time.Time
	background  sync.WaitGroup
}

// NewImportService creates a new instance of ImportService. Every remote
// call made by the service is retried on transport faults.
func NewImportService(deps ImportDependencies, cfg config.ImportConfig, log *logger.Logger) ImportService {
	tracker := deps.Tracker
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	var sink progress.Sink = tracker
	if deps.Sink != nil {
		sink = progress.Multi{tracker, deps.Sink}
	}
	checkpoints := deps.Checkpoints
	if checkpoints == nil {
		checkpoints = checkpoint.Nop{}
	}

	return &importService{
		client:      newRetryingClient(deps.Client, cfg.Retries, cfg.RetryBackoff, log),
		store:       deps.Store,
		parcels:     deps.Parcels,
		owners:      deps.Owners,
		hierarchy:   deps.Hierarchy,
		tracker:     tracker,
		sink:        sink,
		checkpoints: checkpoints,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// run is the state of one entity import. It is owned by a single task.
type run struct {
	id      string
	entity  models.EntityType
	state   progress.State
	started time.Time
	log     *logger.Logger
	result  ImportResult
}

func (s *importService) begin(entity models.EntityType) (*run, error) {
	id := uuid.NewString()
	if !s.tracker.Begin(entity, id) {
		return nil, fmt.Errorf("%w: %s", ErrImportRunning, entity)
	}
	r := &run{
		id:      id,
		entity:  entity,
		state:   progress.StatePaging,
		started: s.now(),
		log:     s.log.WithRunID(id).With(map[string]interface{}{"entity": entity}),
	}
	r.result = ImportResult{RunID: id, Entity: entity}
	r.log.Info("Import started", nil)
	return r, nil
}

func (s *importService) setState(r *run, state progress.State) {
	if r.state == state {
		return
	}
	r.state = state
	s.tracker.SetState(r.entity, state)
}

// finish moves the run to its terminal state and reports it. Rows flushed
// before a failure stay in the store.
func (s *importService) finish(r *run, err error) (ImportResult, error) {
	r.result.Duration = s.now().Sub(r.started)
	if err != nil {
		r.state = progress.StateFailed
		r.result.State = progress.StateFailed
		s.sink.Failed(r.entity, err.Error(), r.result.Imported)
		r.log.Error("Import failed", err, map[string]interface{}{
			"imported": r.result.Imported,
			"cursor":   r.result.Cursor,
		})
		return r.result, fmt.Errorf("%w: %s: %w", ErrImportFailed, r.entity, err)
	}

	r.state = progress.StateCompleted
	r.result.State = progress.StateCompleted
	s.sink.Completed(r.entity, r.result.Imported, r.result.Failed)
	if cerr := s.checkpoints.Clear(r.entity); cerr != nil {
		r.log.Warn("Failed to clear checkpoint", map[string]interface{}{"error": cerr.Error()})
	}
	r.log.Info("Import completed", map[string]interface{}{
		"imported": r.result.Imported,
		"linked":   r.result.Linked,
		"failed":   r.result.Failed,
		"duration": r.result.Duration.String(),
	})
	return r.result, nil
}

// scoped applies the configured municipalities to runs that name none.
func (s *importService) scoped(opts ImportOptions) ImportOptions {
	if len(opts.Municipalities) == 0 && opts.Filter == registry.NoFilter {
		opts.Municipalities = s.cfg.Municipalities
	}
	return opts
}

func (s *importService) saveCheckpoint(r *run, cursor registry.Cursor) {
	if err := s.checkpoints.Save(cursor, r.id); err != nil {
		r.log.Warn("Failed to save checkpoint", map[string]interface{}{
			"cursor": cursor.String(),
			"error":  err.Error(),
		})
	}
}

// startCursor picks the position a run starts from: an explicit cursor,
// the saved checkpoint when resuming, or the beginning.
func (s *importService) startCursor(r *run, opts ImportOptions) (registry.Cursor, error) {
	if opts.ResumeCursor != nil {
		if opts.ResumeCursor.Entity() != r.entity {
			return registry.Cursor{}, fmt.Errorf("%w: %s cursor for %s import", registry.ErrCursorMismatch, opts.ResumeCursor.Entity(), r.entity)
		}
		return *opts.ResumeCursor, nil
	}
	if opts.Resume {
		cursor, ok, err := s.checkpoints.Load(r.entity)
		if err != nil {
			return registry.Cursor{}, err
		}
		if ok {
			r.log.Info("Resuming from checkpoint", map[string]interface{}{"cursor": cursor.String()})
			return cursor, nil
		}
	}
	return registry.Start(r.entity), nil
}

func (s *importService) newWriter(spec writer.TableSpec) (*writer.Writer, error) {
	return writer.New(s.store, spec, s.cfg.FlushThreshold)
}

func (s *importService) ImportParcels(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	r, err := s.begin(models.EntityParcel)
	if err != nil {
		return ImportResult{}, err
	}
	return s.finish(r, s.importParcels(ctx, r, opts))
}

func (s *importService) importParcels(ctx context.Context, r *run, opts ImportOptions) error {
	opts = s.scoped(opts)
	start, err := s.startCursor(r, opts)
	if err != nil {
		return err
	}
	r.result.Cursor = start.String()

	parcelW, err := s.newWriter(repository.ParcelsTable)
	if err != nil {
		return err
	}
	ownerW, err := s.newWriter(repository.ParcelOwnersTable)
	if err != nil {
		return err
	}
	ownerW.After(parcelW)

	pager := registry.NewPaginator(s.client, models.EntityParcel)
	_, _, err = pager.Walk(ctx, start, opts.filter(), s.cfg.PageSize, func(ctx context.Context, page registry.Page) error {
		s.setState(r, progress.StateWriting)
		now := s.now().UTC()

		stored := 0
		for _, obj := range page.Objects {
			p, err := models.Decode[models.Parcel](obj.Raw)
			if err != nil {
				r.result.Failed++
				r.log.Warn("Skipping invalid parcel", map[string]interface{}{"id": obj.ID, "error": err.Error()})
				continue
			}
			if err := parcelW.InsertRow(ctx, repository.ParcelRow(p, now)); err != nil {
				return err
			}
			for _, o := range p.Owners {
				if err := ownerW.InsertRow(ctx, repository.OwnerReferenceRow(models.NewOwnerReference(p.ID, o), o)); err != nil {
					return err
				}
			}
			stored++
		}

		if err := parcelW.Flush(ctx); err != nil {
			return err
		}
		if err := ownerW.Flush(ctx); err != nil {
			return err
		}

		r.result.Imported += stored
		r.result.Cursor = page.Next.String()
		s.saveCheckpoint(r, page.Next)
		last, _ := page.Next.LastID()
		s.sink.Page(r.entity, r.result.Imported, last)
		s.setState(r, progress.StatePaging)
		return nil
	})
	return err
}

// derivedImport describes an entity type reached from parcels through a
// registry relation.
type derivedImport struct {
	relation models.Relation
	table    writer.TableSpec
	// link is the parcel linkage table, if the entity type has one.
	link *writer.TableSpec
	// row maps a fetched object onto its table. owners are the parcels the
	// object was found through, ascending.
	row func(raw []byte, owners []int64) (writer.Row, error)
}

var derivedImports = map[models.EntityType]derivedImport{
	models.EntityBuilding: {
		relation: models.RelationParcelBuildings,
		table:    repository.BuildingsTable,
		link:     &repository.ParcelBuildingsTable,
		row: func(raw []byte, _ []int64) (writer.Row, error) {
			b, err := models.Decode[models.Building](raw)
			if err != nil {
				return nil, err
			}
			return repository.BuildingRow(b), nil
		},
	},
	models.EntityAddress: {
		relation: models.RelationParcelAddresses,
		table:    repository.AddressesTable,
		link:     &repository.ParcelAddressesTable,
		row: func(raw []byte, _ []int64) (writer.Row, error) {
			a, err := models.Decode[models.Address](raw)
			if err != nil {
				return nil, err
			}
			return repository.AddressRow(a), nil
		},
	},
	models.EntityUnit: {
		relation: models.RelationParcelUnits,
		table:    repository.UnitsTable,
		row: func(raw []byte, owners []int64) (writer.Row, error) {
			u, err := models.Decode[models.Unit](raw)
			if err != nil {
				return nil, err
			}
			if u.ParcelID == nil && len(owners) > 0 {
				p := models.ParcelID(owners[0])
				u.ParcelID = &p
			}
			return repository.UnitRow(u), nil
		},
	},
}

func (s *importService) ImportBuildings(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	return s.Import(ctx, models.EntityBuilding, opts)
}

func (s *importService) ImportUnits(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	return s.Import(ctx, models.EntityUnit, opts)
}

func (s *importService) ImportAddresses(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	return s.Import(ctx, models.EntityAddress, opts)
}

// importDerived resolves the related ids of all imported parcels, fetches
// them in chunks and writes each chunk with its parcel linkage. Related ids
// are fetched in ascending order, so the checkpoint after a chunk is the
// highest id it held.
func (s *importService) importDerived(ctx context.Context, r *run, d derivedImport, opts ImportOptions) error {
	opts = s.scoped(opts)
	start, err := s.startCursor(r, opts)
	if err != nil {
		return err
	}
	r.result.Cursor = start.String()

	parcelIDs, err := s.parcels.ListParcelIDs(ctx, opts.Municipalities)
	if err != nil {
		return err
	}

	s.setState(r, progress.StateResolving)
	owners := make([]int64, len(parcelIDs))
	for i, id := range parcelIDs {
		owners[i] = int64(id)
	}
	rels, err := registry.NewResolver(s.client, s.cfg.RelationChunkSize).ResolveRelated(ctx, d.relation, owners)
	if err != nil {
		return err
	}
	if rels.Empty() {
		r.log.Info("No related objects found", map[string]interface{}{"parcels": len(parcelIDs)})
		return nil
	}

	ids := rels.RelatedIDs()
	if last, ok := start.LastID(); ok {
		ids = ids[sortedIndexAfter(ids, last):]
	}
	reverse := rels.Reverse()

	entityW, err := s.newWriter(d.table)
	if err != nil {
		return err
	}
	var linkW *writer.Writer
	if d.link != nil {
		if linkW, err = s.newWriter(*d.link); err != nil {
			return err
		}
		linkW.After(entityW)
	}

	s.setState(r, progress.StateFetching)
	received := 0
	cursor := start
	err = registry.NewFetcher(s.client).Each(ctx, r.entity, ids, s.cfg.FetchBatchSize, true, func(ctx context.Context, objects []registry.Object) error {
		s.setState(r, progress.StateWriting)
		received += len(objects)

		stored, linked := 0, 0
		for _, obj := range objects {
			row, err := d.row(obj.Raw, reverse[obj.ID])
			if err != nil {
				r.result.Failed++
				r.log.Warn("Skipping invalid object", map[string]interface{}{"id": obj.ID, "error": err.Error()})
				continue
			}
			if err := entityW.InsertRow(ctx, row); err != nil {
				return err
			}
			if linkW != nil {
				for _, parcel := range reverse[obj.ID] {
					if err := linkW.InsertRow(ctx, repository.LinkRow(*d.link, parcel, obj.ID)); err != nil {
						return err
					}
					linked++
				}
			}
			stored++
		}

		if err := entityW.Flush(ctx); err != nil {
			return err
		}
		if linkW != nil {
			if err := linkW.Flush(ctx); err != nil {
				return err
			}
		}

		r.result.Imported += stored
		r.result.Linked += linked
		if len(objects) > 0 {
			last := slices.MaxFunc(objects, func(a, b registry.Object) int { return cmp.Compare(a.ID, b.ID) }).ID
			if next, ok := advanceCursor(cursor, last); ok {
				cursor = next
				r.result.Cursor = cursor.String()
				s.saveCheckpoint(r, cursor)
			}
			s.sink.Page(r.entity, r.result.Imported, last)
		}
		s.setState(r, progress.StateFetching)
		return nil
	})
	if err != nil {
		return err
	}

	// Ids the relation named but the registry no longer holds.
	if missing := len(ids) - received; missing > 0 {
		r.result.Failed += missing
		r.log.Warn("Related objects missing from registry", map[string]interface{}{"missing": missing})
	}
	return nil
}

func (s *importService) ImportOwners(ctx context.Context) (ImportResult, error) {
	r, err := s.begin(models.EntityPerson)
	if err != nil {
		return ImportResult{}, err
	}
	return s.finish(r, s.importOwners(ctx, r))
}

func (s *importService) importOwners(ctx context.Context, r *run) error {
	ids, err := s.owners.ListCandidates(ctx)
	if err != nil {
		return err
	}

	s.setState(r, progress.StateFetching)
	var total OwnerResult
	for start := 0; start < len(ids); start += ownerChunkSize {
		part := ids[start:min(start+ownerChunkSize, len(ids))]
		result, err := s.owners.ResolveOwners(ctx, part)
		total.Add(result)
		r.result.Imported = total.Resolved()
		r.result.Failed = total.Failed
		if err != nil {
			return err
		}
		s.sink.Page(r.entity, r.result.Imported, int64(part[len(part)-1]))
	}

	r.log.Info("Owners resolved", map[string]interface{}{
		"individuals":   total.Individuals,
		"organizations": total.Organizations,
		"failed":        total.Failed,
		"corrected":     total.Corrected,
	})
	return nil
}

func (s *importService) Import(ctx context.Context, entity models.EntityType, opts ImportOptions) (ImportResult, error) {
	execute, err := s.executor(entity)
	if err != nil {
		return ImportResult{}, err
	}
	r, err := s.begin(entity)
	if err != nil {
		return ImportResult{}, err
	}
	return s.finish(r, execute(ctx, r, opts))
}

func (s *importService) Start(ctx context.Context, entity models.EntityType, opts ImportOptions) (string, error) {
	execute, err := s.executor(entity)
	if err != nil {
		return "", err
	}
	r, err := s.begin(entity)
	if err != nil {
		return "", err
	}

	// The run outlives the request that started it.
	ctx = context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.finish(r, execute(ctx, r, opts))
	}()
	return r.id, nil
}

func (s *importService) executor(entity models.EntityType) (func(context.Context, *run, ImportOptions) error, error) {
	switch entity {
	case models.EntityParcel:
		return s.importParcels, nil
	case models.EntityPerson:
		return func(ctx context.Context, r *run, _ ImportOptions) error { return s.importOwners(ctx, r) }, nil
	}
	if d, ok := derivedImports[entity]; ok {
		return func(ctx context.Context, r *run, opts ImportOptions) error {
			return s.importDerived(ctx, r, d, opts)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entity)
}

func (s *importService) ImportAll(ctx context.Context, opts ImportOptions) (Summary, error) {
	var summary Summary

	parcels, err := s.ImportParcels(ctx, opts)
	summary.Imports = append(summary.Imports, parcels)
	if err != nil {
		return summary, err
	}

	owners, err := s.ImportOwners(ctx)
	summary.Imports = append(summary.Imports, owners)
	if err != nil {
		return summary, err
	}

	// Buildings, units and addresses read disjoint endpoints and write
	// disjoint tables; each run owns its writers. A failed entity type does
	// not cancel the others, and every failure is reported.
	derived := []models.EntityType{models.EntityBuilding, models.EntityUnit, models.EntityAddress}
	results := make([]ImportResult, len(derived))
	errs := make([]error, len(derived))
	var g errgroup.Group
	for i, entity := range derived {
		g.Go(func() error {
			derivedOpts := opts
			derivedOpts.ResumeCursor = nil
			results[i], errs[i] = s.Import(ctx, entity, derivedOpts)
			return errs[i]
		})
	}
	failed := g.Wait()
	summary.Imports = append(summary.Imports, results...)
	if failed != nil {
		return summary, errors.Join(errs...)
	}

	if s.hierarchy == nil {
		return summary, nil
	}
	organized, err := s.hierarchy.OrganizeAll(ctx, false)
	summary.Hierarchy = &organized
	if err != nil {
		return summary, fmt.Errorf("failed to organize properties: %w", err)
	}
	return summary, nil
}

func (s *importService) Wait() {
	s.background.Wait()
}

// sortedIndexAfter returns the index of the first id greater than last.
func sortedIndexAfter(ids []int64, last int64) int {
	i, found := slices.BinarySearch(ids, last)
	if found {
		i++
	}
	return i
}

func advanceCursor(c registry.Cursor, id int64) (registry.Cursor, bool) {
	if last, ok := c.LastID(); ok && id <= last {
		return c, false
	}
	return registry.CursorAfter(c.Entity(), id), true
}
