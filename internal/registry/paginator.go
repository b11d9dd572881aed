package registry

import (
	"context"
	"fmt"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
)

// Page is one listing response.
type Page struct {
	Objects []Object
	// Next is the cursor after the last object of the page, or the
	// requested cursor when the page was empty.
	Next Cursor
}

// Paginator walks one entity type's listing with a cursor.
type Paginator struct {
	client Client
	entity models.EntityType
}

// NewPaginator creates a paginator over entity.
func NewPaginator(client Client, entity models.EntityType) *Paginator {
	return &Paginator{client: client, entity: entity}
}

// FetchPage fetches the page after cursor. Faults are returned as is; the
// caller decides whether to retry.
func (p *Paginator) FetchPage(ctx context.Context, cursor Cursor, filter Filter, maxCount int) (Page, error) {
	if cursor.Entity() != p.entity {
		return Page{}, fmt.Errorf("%w: %s cursor used for %s", ErrCursorMismatch, cursor.Entity(), p.entity)
	}
	if maxCount < 1 {
		return Page{}, fmt.Errorf("maxCount must be at least 1, got %d", maxCount)
	}

	objects, err := p.client.ListAfterCursor(ctx, p.entity, cursor.after(), filter, maxCount)
	if err != nil {
		return Page{}, fmt.Errorf("list %s after %s: %w", p.entity, cursor, err)
	}
	if len(objects) > maxCount {
		return Page{}, fmt.Errorf("%w: asked for %d %s objects, got %d", ErrProtocol, maxCount, p.entity, len(objects))
	}

	next := cursor
	if len(objects) > 0 {
		next, err = cursor.advance(objects[len(objects)-1].ID)
		if err != nil {
			return Page{}, err
		}
	}

	return Page{Objects: objects, Next: next}, nil
}

// PageFunc consumes a page. It must have committed the page when it returns
// nil, because the walk moves past it.
type PageFunc func(ctx context.Context, page Page) error

// Walk pages from start until the listing is exhausted and hands every
// non-empty page to fn. A short page or an empty page ends the walk; a full
// page is always followed by another fetch.
//
// Walk returns the cursor after the last page fn accepted and the number of
// objects handed to fn, also when it fails.
func (p *Paginator) Walk(ctx context.Context, start Cursor, filter Filter, maxCount int, fn PageFunc) (Cursor, int, error) {
	cursor := start
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return cursor, total, err
		}

		page, err := p.FetchPage(ctx, cursor, filter, maxCount)
		if err != nil {
			return cursor, total, err
		}
		if len(page.Objects) == 0 {
			return cursor, total, nil
		}

		if err := fn(ctx, page); err != nil {
			return cursor, total, err
		}
		cursor = page.Next
		total += len(page.Objects)

		if len(page.Objects) < maxCount {
			return cursor, total, nil
		}
	}
}
