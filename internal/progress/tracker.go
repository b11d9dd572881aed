package progress

import (
	"sync"
	"time"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

// State is the phase an entity import is in.
type State string

const (
	StateNotStarted State = "not_started"
	StatePaging     State = "paging"
	StateResolving  State = "resolving"
	StateFetching   State = "fetching"
	StateWriting    State = "writing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Status is a snapshot of one entity type's latest import run.
type Status struct {
	Entity     models.EntityType `json:"entity"`
	RunID      string            `json:"run_id,omitempty"`
	State      State             `json:"state"`
	Count      int               `json:"count"`
	Errors     int               `json:"errors"`
	LastID     int64             `json:"last_id,omitempty"`
	Message    string            `json:"message,omitempty"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// Tracker keeps the latest status per entity type for the ops API. It is
// the only progress structure shared between import tasks.
type Tracker struct {
	mu     sync.Mutex
	status map[models.EntityType]*Status
	now    func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{status: make(map[models.EntityType]*Status), now: time.Now}
}

// Begin records the start of a run. It returns false, leaving the tracker
// unchanged, if a run for entity is already in progress.
func (t *Tracker) Begin(entity models.EntityType, runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.status[entity]; ok && s.State != StateNotStarted && !s.State.Terminal() {
		return false
	}
	started := t.now()
	t.status[entity] = &Status{Entity: entity, RunID: runID, State: StatePaging, StartedAt: &started}
	return true
}

// SetState moves a running import to state.
func (t *Tracker) SetState(entity models.EntityType, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(entity).State = state
}

// Running reports whether an import of entity is in progress.
func (t *Tracker) Running(entity models.EntityType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.status[entity]
	return ok && s.State != StateNotStarted && !s.State.Terminal()
}

func (t *Tracker) get(entity models.EntityType) *Status {
	s, ok := t.status[entity]
	if !ok {
		s = &Status{Entity: entity, State: StateNotStarted}
		t.status[entity] = s
	}
	return s
}

func (t *Tracker) Page(entity models.EntityType, count int, lastID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(entity)
	s.Count = count
	s.LastID = lastID
}

func (t *Tracker) Completed(entity models.EntityType, total, errors int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(entity)
	finished := t.now()
	s.State = StateCompleted
	s.Count = total
	s.Errors = errors
	s.FinishedAt = &finished
}

func (t *Tracker) Failed(entity models.EntityType, message string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(entity)
	finished := t.now()
	s.State = StateFailed
	s.Count = count
	s.Errors++
	s.Message = message
	s.FinishedAt = &finished
}

// Get returns the status of entity. Entity types never imported are
// reported as not started.
func (t *Tracker) Get(entity models.EntityType) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.status[entity]; ok {
		return *s
	}
	return Status{Entity: entity, State: StateNotStarted}
}

// Snapshot returns the status of every importable entity type.
func (t *Tracker) Snapshot() []Status {
	out := make([]Status, 0, len(models.EntityTypes))
	for _, e := range models.EntityTypes {
		out = append(out, t.Get(e))
	}
	return out
}
