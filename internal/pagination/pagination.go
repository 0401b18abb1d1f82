// Package pagination implements keyset pagination: the ordering key of a
// page's boundary row, rather than an offset, bounds the next query, keeping
// pages stable under concurrent writes.
package pagination

import (
	"context"

	"github.com/silvermint/idserver/internal/domain"
)

// Source answers paged queries for one searchable collection.
//
// Search returns up to the parameter limit of items. A nil boundary starts
// from the collection's first page. With backward=false the returned items
// follow the boundary item in search order. With backward=true they precede
// it, returned in reverse search order so that the items nearest the boundary
// come first; the cursor restores search order itself. The backing query must
// apply an id tie-break after the primary ordering column so that the order
// is total.
type Source[T any] interface {
	Count(ctx context.Context, p domain.SearchParameters) (int64, error)
	Search(ctx context.Context, p domain.SearchParameters, boundary *T, backward bool) ([]T, error)
}

// Cursor tracks the current page of one search. Cursors are single-writer:
// callers must not navigate one cursor concurrently.
type Cursor[T any] struct {
	source Source[T]
	params domain.SearchParameters
	index  int
	items  []T
	loaded bool
}

// NewCursor opens a cursor over normalized search parameters, positioned at
// page 1. No query runs until the first navigation call.
func NewCursor[T any](source Source[T], params domain.SearchParameters) *Cursor[T] {
	return &Cursor[T]{source: source, params: params, index: 1}
}

// Current returns the page at the cursor's current index.
func (c *Cursor[T]) Current(ctx context.Context) (domain.Page[T], error) {
	if !c.loaded {
		items, err := c.source.Search(ctx, c.params, nil, false)
		if err != nil {
			return domain.Page[T]{}, err
		}
		c.items = items
		c.index = 1
		c.loaded = true
	}
	return c.page(ctx)
}

// Next advances to the following page. At the last page it returns the same
// page unchanged; there is no wraparound and no error.
func (c *Cursor[T]) Next(ctx context.Context) (domain.Page[T], error) {
	current, err := c.Current(ctx)
	if err != nil {
		return domain.Page[T]{}, err
	}
	if c.index >= current.PageCount || len(c.items) == 0 {
		return current, nil
	}

	last := c.items[len(c.items)-1]
	items, err := c.source.Search(ctx, c.params, &last, false)
	if err != nil {
		return domain.Page[T]{}, err
	}
	if len(items) == 0 {
		// The set shrank between the count and the fetch; stay put.
		return current, nil
	}
	c.items = items
	c.index++
	return c.page(ctx)
}

// Previous rewinds to the preceding page. At page 1 it returns page 1
// unchanged.
func (c *Cursor[T]) Previous(ctx context.Context) (domain.Page[T], error) {
	current, err := c.Current(ctx)
	if err != nil {
		return domain.Page[T]{}, err
	}
	if c.index <= 1 || len(c.items) == 0 {
		return current, nil
	}

	first := c.items[0]
	items, err := c.source.Search(ctx, c.params, &first, true)
	if err != nil {
		return domain.Page[T]{}, err
	}
	if len(items) == 0 {
		return current, nil
	}
	reverse(items)
	c.items = items
	c.index--
	return c.page(ctx)
}

// page assembles the Page value for the cached items, recomputing the page
// count from the current total.
func (c *Cursor[T]) page(ctx context.Context) (domain.Page[T], error) {
	total, err := c.source.Count(ctx, c.params)
	if err != nil {
		return domain.Page[T]{}, err
	}

	limit := int64(c.params.Limit)
	pageCount := 0
	if total > 0 && limit > 0 {
		pageCount = int((total + limit - 1) / limit)
	}
	if c.index > pageCount && pageCount > 0 {
		c.index = pageCount
	}

	items := make([]T, len(c.items))
	copy(items, c.items)
	return domain.Page[T]{
		Items:           items,
		PageIndex:       c.index,
		PageCount:       pageCount,
		PageFirstOffset: int64(c.index-1) * limit,
	}, nil
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
