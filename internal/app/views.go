package app

import (
	"net/http"
	"strconv"
	"time"

	"grantflow/api/internal/listview"
	"grantflow/api/internal/store"
)

// The three list view schemas. Each declares which fields are searchable,
// which act as facets, and the comparison policy per sortable column.

func analysisSchema() listview.Schema[store.Analysis] {
	return listview.Schema[store.Analysis]{
		SearchFields: []func(store.Analysis) string{
			func(a store.Analysis) string { return a.Company.Name },
			func(a store.Analysis) string { return a.Company.Sector },
			func(a store.Analysis) string { return a.Project.Name },
		},
		FacetFields: map[string]func(store.Analysis) string{
			"status":  func(a store.Analysis) string { return a.Status },
			"company": func(a store.Analysis) string { return a.Company.Name },
		},
		SortFields: map[string]listview.SortField[store.Analysis]{
			"date":    {Time: func(a store.Analysis) time.Time { return parseInstant(a.Date) }},
			"company": {String: func(a store.Analysis) string { return a.Company.Name }},
			"project": {String: func(a store.Analysis) string { return a.Project.Name }},
			"status":  {String: func(a store.Analysis) string { return a.Status }},
			"fundingAmount": {Number: func(a store.Analysis) float64 {
				return a.Project.FundingAmount
			}},
			"questions": {Number: func(a store.Analysis) float64 {
				return float64(a.Questions.EffectiveCount())
			}},
			"completedQuestions": {Number: func(a store.Analysis) float64 {
				return float64(a.CompletedQuestions)
			}},
		},
	}
}

func companySchema() listview.Schema[store.Company] {
	return listview.Schema[store.Company]{
		SearchFields: []func(store.Company) string{
			func(c store.Company) string { return c.Name },
			func(c store.Company) string { return c.Industry },
			func(c store.Company) string { return c.Location },
			func(c store.Company) string { return c.PrimaryContact.Name },
		},
		FacetFields: map[string]func(store.Company) string{
			"sector": func(c store.Company) string { return c.Sector },
			"size":   func(c store.Company) string { return c.Size },
		},
		SortFields: map[string]listview.SortField[store.Company]{
			"name":     {String: func(c store.Company) string { return c.Name }},
			"sector":   {String: func(c store.Company) string { return c.Sector }},
			"location": {String: func(c store.Company) string { return c.Location }},
		},
	}
}

func fundingProjectSchema() listview.Schema[store.FundingProject] {
	return listview.Schema[store.FundingProject]{
		SearchFields: []func(store.FundingProject) string{
			func(p store.FundingProject) string { return p.Title },
			func(p store.FundingProject) string { return p.Description },
		},
		FacetFields: map[string]func(store.FundingProject) string{
			"sector": func(p store.FundingProject) string { return p.Sector },
		},
		SortFields: map[string]listview.SortField[store.FundingProject]{
			"title":  {String: func(p store.FundingProject) string { return p.Title }},
			"sector": {String: func(p store.FundingProject) string { return p.Sector }},
			"fundingAmount": {Number: func(p store.FundingProject) float64 {
				return p.FundingAmount
			}},
			"deadline": {Time: func(p store.FundingProject) time.Time {
				return parseInstant(p.Deadline)
			}},
		},
	}
}

// parseInstant turns a stored ISO timestamp or date into an instant. An
// unparsable or empty value maps to the zero time so it sorts first
// ascending instead of failing.
func parseInstant(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseViewQuery maps the request's query string onto a listview.Query.
// Facet names are per schema; absent params mean unconstrained.
func parseViewQuery(r *http.Request, facetNames []string, defaultPageSize int) listview.Query {
	params := r.URL.Query()

	facets := map[string]string{}
	for _, name := range facetNames {
		if v := params.Get(name); v != "" {
			facets[name] = v
		}
	}

	dir := listview.Asc
	if params.Get("dir") == string(listview.Desc) {
		dir = listview.Desc
	}

	page := 1
	if v, err := strconv.Atoi(params.Get("page")); err == nil {
		page = v
	}
	pageSize := defaultPageSize
	if v, err := strconv.Atoi(params.Get("pageSize")); err == nil && v > 0 && v <= 100 {
		pageSize = v
	}

	return listview.Query{
		Search:        params.Get("search"),
		Facets:        facets,
		SortColumn:    params.Get("sort"),
		SortDirection: dir,
		Page:          page,
		PageSize:      pageSize,
	}
}

func (s *HTTPServer) handleAnalysesView(w http.ResponseWriter, r *http.Request) {
	viewQueries.WithLabelValues("analyses").Inc()
	items, err := s.service.ListAnalyses(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	q := parseViewQuery(r, []string{"status", "company"}, s.service.cfg.PageSize)
	writeJSON(w, http.StatusOK, analysisSchema().Assemble(items, q))
}

func (s *HTTPServer) handleCompaniesView(w http.ResponseWriter, r *http.Request) {
	viewQueries.WithLabelValues("companies").Inc()
	items, err := s.service.ListCompanies(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	q := parseViewQuery(r, []string{"sector", "size"}, s.service.cfg.PageSize)
	writeJSON(w, http.StatusOK, companySchema().Assemble(items, q))
}

func (s *HTTPServer) handleFundingProjectsView(w http.ResponseWriter, r *http.Request) {
	viewQueries.WithLabelValues("funding_projects").Inc()
	items, err := s.service.ListFundingProjects(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	q := parseViewQuery(r, []string{"sector"}, s.service.cfg.PageSize)
	writeJSON(w, http.StatusOK, fundingProjectSchema().Assemble(items, q))
}
