// Package listview implements the filtered list pipeline shared by the
// analyses, companies, and funding projects views: free-text search, facet
// filtering, stable sorting, pagination, and facet value derivation over an
// already-fetched entity slice. Assemble is pure; all view state belongs to
// the caller.
package listview

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// DefaultPageSize applies when a query carries no explicit page size.
const DefaultPageSize = 10

// Query is the caller-owned view state for one render cycle. An empty
// Search passes every entity; an absent or empty facet value means that
// facet is unconstrained.
type Query struct {
	Search        string
	Facets        map[string]string
	SortColumn    string
	SortDirection Direction
	Page          int
	PageSize      int
}

// SortField declares the comparison policy for one sortable column.
// Exactly one accessor should be set: String compares with locale-aware
// collation (missing values as ""), Number compares numerically (missing as
// 0), Time compares instants (missing or unparsable as the zero time, which
// sorts first ascending).
type SortField[T any] struct {
	String func(T) string
	Number func(T) float64
	Time   func(T) time.Time
}

// Schema describes how one entity type flows through the pipeline.
type Schema[T any] struct {
	SearchFields []func(T) string
	FacetFields  map[string]func(T) string
	SortFields   map[string]SortField[T]
}

// Page is the fully derived view model for one render cycle.
type Page[T any] struct {
	Items       []T                 `json:"items"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"pageSize"`
	TotalItems  int                 `json:"totalItems"`
	TotalPages  int                 `json:"totalPages"`
	FacetValues map[string][]string `json:"facets"`
}

// Assemble derives the current page from the full entity list and the query.
// Facet value sets always come from the unfiltered list so every existing
// value stays selectable regardless of other active filters.
func (s Schema[T]) Assemble(entities []T, q Query) Page[T] {
	facets := s.facetValues(entities)

	filtered := make([]T, 0, len(entities))
	for _, e := range entities {
		if s.matches(e, q) {
			filtered = append(filtered, e)
		}
	}

	if cmp := s.comparator(q.SortColumn, q.SortDirection); cmp != nil {
		sort.SliceStable(filtered, func(i, j int) bool {
			return cmp(filtered[i], filtered[j]) < 0
		})
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(filtered)
	totalPages := (total + pageSize - 1) / pageSize

	page := clampPage(q.Page, totalPages)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return Page[T]{
		Items:       filtered[start:end],
		Page:        page,
		PageSize:    pageSize,
		TotalItems:  total,
		TotalPages:  totalPages,
		FacetValues: facets,
	}
}

// matches is the composed predicate: the search test AND every active facet.
func (s Schema[T]) matches(e T, q Query) bool {
	if needle := strings.ToLower(strings.TrimSpace(q.Search)); needle != "" {
		hit := false
		for _, field := range s.SearchFields {
			if strings.Contains(strings.ToLower(field(e)), needle) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for name, want := range q.Facets {
		if want == "" {
			continue
		}
		field, ok := s.FacetFields[name]
		if !ok {
			// Unknown facet names behave as unconstrained.
			continue
		}
		if field(e) != want {
			return false
		}
	}
	return true
}

// comparator builds the total order for a sort column, or nil for unknown
// columns (no-op ordering, input order preserved).
func (s Schema[T]) comparator(column string, dir Direction) func(a, b T) int {
	field, ok := s.SortFields[column]
	if !ok {
		return nil
	}

	var cmp func(a, b T) int
	switch {
	case field.String != nil:
		c := collate.New(language.English)
		cmp = func(a, b T) int {
			return c.CompareString(field.String(a), field.String(b))
		}
	case field.Number != nil:
		cmp = func(a, b T) int {
			va, vb := field.Number(a), field.Number(b)
			switch {
			case va < vb:
				return -1
			case va > vb:
				return 1
			default:
				return 0
			}
		}
	case field.Time != nil:
		cmp = func(a, b T) int {
			ta, tb := field.Time(a), field.Time(b)
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	default:
		return nil
	}

	if dir == Desc {
		asc := cmp
		cmp = func(a, b T) int { return -asc(a, b) }
	}
	return cmp
}

// facetValues collects the distinct non-empty values per facet field over
// the full unfiltered list, sorted for deterministic output.
func (s Schema[T]) facetValues(entities []T) map[string][]string {
	out := make(map[string][]string, len(s.FacetFields))
	for name, field := range s.FacetFields {
		seen := map[string]struct{}{}
		values := []string{}
		for _, e := range entities {
			v := field(e)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		sort.Strings(values)
		out[name] = values
	}
	return out
}

func clampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if totalPages >= 1 && page > totalPages {
		return totalPages
	}
	if totalPages == 0 {
		return 1
	}
	return page
}
