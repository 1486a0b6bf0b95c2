package listview

import (
	"context"
	"sync"
)

// State is the view lifecycle: Idle -> Loading -> {Ready, Error}. Only a
// reload leaves Ready or Error.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// FetchFunc loads the full entity collection from the backing store.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Controller owns the mutable view state for one list view: the fetched
// entities, the current query, and the load lifecycle. Deriving output stays
// pure (Schema.Assemble); the controller only sequences fetches and guards
// against a stale response overwriting a newer one. Each Load is tagged with
// a monotonically increasing request id and a completion whose id is no
// longer the latest is discarded.
type Controller[T any] struct {
	mu       sync.Mutex
	schema   Schema[T]
	fetch    FetchFunc[T]
	pageSize int

	state    State
	errMsg   string
	entities []T
	query    Query
	reqID    uint64
}

func NewController[T any](schema Schema[T], fetch FetchFunc[T], pageSize int) *Controller[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller[T]{
		schema:   schema,
		fetch:    fetch,
		pageSize: pageSize,
		state:    StateIdle,
		query:    Query{Page: 1, PageSize: pageSize, Facets: map[string]string{}},
	}
}

// Load fetches the collection. A failed fetch retains no partial data; a
// successful fetch replaces the list and resets pagination to page 1.
func (c *Controller[T]) Load(ctx context.Context) {
	c.mu.Lock()
	c.reqID++
	id := c.reqID
	c.state = StateLoading
	c.errMsg = ""
	fetch := c.fetch
	c.mu.Unlock()

	items, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.reqID {
		// Superseded by a newer load.
		return
	}
	if err != nil {
		c.state = StateError
		c.errMsg = err.Error()
		c.entities = nil
		return
	}
	c.state = StateReady
	c.entities = items
	c.query.Page = 1
}

func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller[T]) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// SetSearch updates the free-text query and resets to page 1. Ignored
// outside the Ready state.
func (c *Controller[T]) SetSearch(search string) {
	c.mutate(func() {
		c.query.Search = search
		c.query.Page = 1
	})
}

// SetFacet sets one facet constraint; an empty value clears it. Resets to
// page 1. Ignored outside the Ready state.
func (c *Controller[T]) SetFacet(name, value string) {
	c.mutate(func() {
		if value == "" {
			delete(c.query.Facets, name)
		} else {
			c.query.Facets[name] = value
		}
		c.query.Page = 1
	})
}

// ClearFilters drops the search text and every facet constraint, restoring
// the unfiltered view (sort and page size are kept, page returns to 1).
func (c *Controller[T]) ClearFilters() {
	c.mutate(func() {
		c.query.Search = ""
		c.query.Facets = map[string]string{}
		c.query.Page = 1
	})
}

// SetSort changes the ordering. The page is kept: sorting never changes the
// filtered sequence length.
func (c *Controller[T]) SetSort(column string, dir Direction) {
	c.mutate(func() {
		c.query.SortColumn = column
		c.query.SortDirection = dir
	})
}

// SetPage requests a page; out-of-range values are clamped at assembly.
func (c *Controller[T]) SetPage(page int) {
	c.mutate(func() {
		c.query.Page = page
	})
}

// mutate applies a query change only while Ready; interactions during a
// load (or before the first one) are ignored.
func (c *Controller[T]) mutate(apply func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return
	}
	apply()
}

// ViewModel assembles the current page from the held entities and query.
func (c *Controller[T]) ViewModel() Page[T] {
	c.mu.Lock()
	entities := c.entities
	query := c.query
	query.Facets = make(map[string]string, len(c.query.Facets))
	for k, v := range c.query.Facets {
		query.Facets[k] = v
	}
	c.mu.Unlock()
	return c.schema.Assemble(entities, query)
}
