package registry

import (
	"errors"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

var (
	// ErrTransport marks a remote call that did not complete: connection
	// failures, timeouts and 5xx responses.
	ErrTransport = errors.New("registry transport error")
	// ErrProtocol marks a response that completed but could not be understood.
	ErrProtocol = errors.New("registry protocol error")
	// ErrNotFound marks ids the registry does not know.
	ErrNotFound = errors.New("registry object not found")
	// ErrCursorMismatch is returned when a cursor is used for another entity type.
	ErrCursorMismatch = errors.New("cursor belongs to another entity type")
)

// ChunkError reports a failed batch fetch. Chunks fetched before the failure
// are not rolled back; fetching is read-only.
type ChunkError struct {
	Entity    models.EntityType
	Attempted int
	Fetched   int
	Err       error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("fetch %s chunk of %d ids failed after %d fetched: %v", e.Entity, e.Attempted, e.Fetched, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
