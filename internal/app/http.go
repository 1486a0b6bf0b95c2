package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"grantflow/api/internal/store"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantflow_http_requests_total",
		Help: "HTTP requests by method and status code",
	}, []string{"method", "status"})
	viewQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantflow_list_view_queries_total",
		Help: "List view assemblies by collection",
	}, []string{"collection"})
)

type HTTPServer struct {
	service    *Service
	logger     *zap.Logger
	corsOrigin string
}

func NewHTTPServer(service *Service, logger *zap.Logger, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, logger: logger, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/companies", func(r chi.Router) {
		r.Get("/", s.handleListCompanies)
		r.Get("/view", s.handleCompaniesView)
		r.Post("/", s.handleCreateCompany)
		r.Get("/{id}", s.handleGetCompany)
		r.Put("/{id}", s.handleUpdateCompany)
		r.Delete("/{id}", s.handleDeleteCompany)
	})

	r.Route("/api/funding-projects", func(r chi.Router) {
		r.Get("/", s.handleListFundingProjects)
		r.Get("/view", s.handleFundingProjectsView)
		r.Post("/", s.handleCreateFundingProject)
		r.Get("/{id}", s.requireNativeID(s.handleGetFundingProject))
		r.Put("/{id}", s.requireNativeID(s.handleUpdateFundingProject))
		r.Delete("/{id}", s.requireNativeID(s.handleDeleteFundingProject))
	})

	r.Route("/api/analyses", func(r chi.Router) {
		r.Get("/", s.handleListAnalyses)
		r.Get("/view", s.handleAnalysesView)
		r.Post("/", s.handleCreateAnalysis)
		r.Get("/{id}", s.requireNativeID(s.handleGetAnalysis))
		r.Put("/{id}", s.requireNativeID(s.handleUpdateAnalysis))
		r.Delete("/{id}", s.requireNativeID(s.handleDeleteAnalysis))
	})

	r.Route("/api/document-sections", func(r chi.Router) {
		r.Get("/", s.handleListDocumentSections)
		r.Post("/", s.handleCreateDocumentSection)
		r.Get("/{id}", s.requireNativeID(s.handleGetDocumentSection))
		r.Put("/{id}", s.requireNativeID(s.handleUpdateDocumentSection))
		r.Delete("/{id}", s.requireNativeID(s.handleDeleteDocumentSection))
	})

	r.Route("/api/team-members", func(r chi.Router) {
		r.Get("/", s.handleListTeamMembers)
		r.Post("/", s.handleCreateTeamMember)
		r.Get("/{id}", s.handleGetTeamMember)
		r.Put("/{id}", s.handleUpdateTeamMember)
		r.Delete("/{id}", s.handleDeleteTeamMember)
	})

	return r
}

// requireNativeID rejects a malformed native id with a 400 before any store
// access happens. String-id collections skip this gate; their lookups accept
// either key.
func (s *HTTPServer) requireNativeID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !store.ValidID(id) {
			writeError(w, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("malformed id %q", id), nil)
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Companies

func (s *HTTPServer) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListCompanies(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var input CreateCompanyInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreateCompany(r.Context(), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.UpdateCompany(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteCompany(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "company deleted"})
}

// Funding projects

func (s *HTTPServer) handleListFundingProjects(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListFundingProjects(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleGetFundingProject(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetFundingProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleCreateFundingProject(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	project, created, err := s.service.CreateFundingProject(r.Context(), raw)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, project)
}

func (s *HTTPServer) handleUpdateFundingProject(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.UpdateFundingProject(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteFundingProject(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteFundingProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "funding project deleted"})
}

// Analyses

func (s *HTTPServer) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListAnalyses(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var input CreateAnalysisInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreateAnalysis(r.Context(), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleUpdateAnalysis(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.UpdateAnalysis(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteAnalysis(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "analysis deleted"})
}

// Document sections

func (s *HTTPServer) handleListDocumentSections(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListDocumentSections(r.Context(), r.URL.Query().Get("analysisId"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleGetDocumentSection(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetDocumentSection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleCreateDocumentSection(w http.ResponseWriter, r *http.Request) {
	var input CreateDocumentSectionInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreateDocumentSection(r.Context(), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleUpdateDocumentSection(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.UpdateDocumentSection(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteDocumentSection(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDocumentSection(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "document section deleted"})
}

// Team members

func (s *HTTPServer) handleListTeamMembers(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListTeamMembers(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleGetTeamMember(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetTeamMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleCreateTeamMember(w http.ResponseWriter, r *http.Request) {
	var input CreateTeamMemberInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreateTeamMember(r.Context(), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleUpdateTeamMember(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.UpdateTeamMember(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteTeamMember(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTeamMember(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "team member deleted"})
}

// Middleware and helpers

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(writer, r)

		httpRequests.WithLabelValues(r.Method, strconv.Itoa(writer.status)).Inc()
		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

func setCORSHeaders(h http.Header, origin string) {
	if origin == "" {
		origin = "*"
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	// Store failures surface their message for diagnostics; stack traces
	// never leave the process.
	return http.StatusInternalServerError, "STORE_ERROR", err.Error(), nil
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
