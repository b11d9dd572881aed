package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

const startToken = "start"

// Cursor is an opaque marker of a position in one entity type's listing.
// The zero position means "from the beginning". A cursor only moves forward
// and cannot be used to page another entity type.
type Cursor struct {
	entity models.EntityType
	last   int64
	set    bool
}

// Start returns the cursor positioned before the first object of entity.
func Start(entity models.EntityType) Cursor {
	return Cursor{entity: entity}
}

// CursorAfter returns a cursor positioned after the object with id last.
func CursorAfter(entity models.EntityType, last int64) Cursor {
	return Cursor{entity: entity, last: last, set: true}
}

// Entity returns the entity type the cursor pages.
func (c Cursor) Entity() models.EntityType { return c.entity }

// IsStart reports whether the cursor has not moved yet.
func (c Cursor) IsStart() bool { return !c.set }

// LastID returns the id of the last object seen, if any.
func (c Cursor) LastID() (int64, bool) { return c.last, c.set }

func (c Cursor) after() *int64 {
	if !c.set {
		return nil
	}
	last := c.last
	return &last
}

// advance moves the cursor to id. The registry lists objects in ascending id
// order, so a cursor that does not move forward means the listing is broken
// and paging would never end.
func (c Cursor) advance(id int64) (Cursor, error) {
	if c.set && id <= c.last {
		return c, fmt.Errorf("%w: %s cursor did not advance past %d (got %d)", ErrProtocol, c.entity, c.last, id)
	}
	return Cursor{entity: c.entity, last: id, set: true}, nil
}

// String renders the cursor as "<entity>:<last id>" or "<entity>:start".
func (c Cursor) String() string {
	if !c.set {
		return string(c.entity) + ":" + startToken
	}
	return string(c.entity) + ":" + strconv.FormatInt(c.last, 10)
}

// ParseCursor parses the String form of a cursor.
func ParseCursor(s string) (Cursor, error) {
	entity, pos, ok := strings.Cut(s, ":")
	if !ok || entity == "" {
		return Cursor{}, fmt.Errorf("malformed cursor %q", s)
	}
	if pos == startToken {
		return Start(models.EntityType(entity)), nil
	}
	last, err := strconv.ParseInt(pos, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor %q: %w", s, err)
	}
	return CursorAfter(models.EntityType(entity), last), nil
}
