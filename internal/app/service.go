package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"grantflow/api/internal/config"
	"grantflow/api/internal/store"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantflow_list_cache_hits_total",
		Help: "Collection list requests served from the cache",
	}, []string{"collection"})
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantflow_list_cache_misses_total",
		Help: "Collection list requests that fell through to the store",
	}, []string{"collection"})
)

type dataStore interface {
	Ping(context.Context) error

	ListCompanies(context.Context) ([]store.Company, error)
	GetCompany(context.Context, string) (store.Company, error)
	InsertCompany(context.Context, store.Company) (store.Company, error)
	UpdateCompany(context.Context, string, store.Patch) (store.Company, error)
	DeleteCompany(context.Context, string) error

	ListFundingProjects(context.Context) ([]store.FundingProject, error)
	GetFundingProject(context.Context, string) (store.FundingProject, error)
	InsertFundingProject(context.Context, store.FundingProject) (store.FundingProject, error)
	UpdateFundingProject(context.Context, string, store.Patch) (store.FundingProject, error)
	DeleteFundingProject(context.Context, string) error

	ListAnalyses(context.Context) ([]store.Analysis, error)
	GetAnalysis(context.Context, string) (store.Analysis, error)
	InsertAnalysis(context.Context, store.Analysis) (store.Analysis, error)
	UpdateAnalysis(context.Context, string, store.Patch) (store.Analysis, error)
	DeleteAnalysis(context.Context, string) error

	ListDocumentSections(context.Context, string) ([]store.DocumentSection, error)
	GetDocumentSection(context.Context, string) (store.DocumentSection, error)
	InsertDocumentSection(context.Context, store.DocumentSection) (store.DocumentSection, error)
	UpdateDocumentSection(context.Context, string, store.Patch) (store.DocumentSection, error)
	DeleteDocumentSection(context.Context, string) error

	ListTeamMembers(context.Context) ([]store.TeamMember, error)
	GetTeamMember(context.Context, string) (store.TeamMember, error)
	InsertTeamMember(context.Context, store.TeamMember) (store.TeamMember, error)
	UpdateTeamMember(context.Context, string, store.Patch) (store.TeamMember, error)
	DeleteTeamMember(context.Context, string) error
}

type listCache interface {
	GetList(ctx context.Context, collection string) ([]byte, bool, error)
	SetList(ctx context.Context, collection string, payload []byte) error
	Invalidate(ctx context.Context, collection string) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	cache  listCache
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func New(cfg config.Config, st dataStore, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		store:  st,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func NewWithCache(cfg config.Config, st dataStore, c listCache, logger *zap.Logger) *Service {
	svc := New(cfg, st, logger)
	svc.cache = c
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// listCached serves a collection listing through the cache when one is
// configured. Cache failures degrade to a store read, never to an error.
func listCached[T any](ctx context.Context, s *Service, collection string, load func(context.Context) ([]T, error)) ([]T, error) {
	if s.cache != nil {
		data, ok, err := s.cache.GetList(ctx, collection)
		if err != nil {
			s.logger.Warn("list cache read failed", zap.String("collection", collection), zap.Error(err))
		} else if ok {
			var items []T
			if err := json.Unmarshal(data, &items); err == nil {
				cacheHits.WithLabelValues(collection).Inc()
				return items, nil
			}
			s.logger.Warn("list cache entry corrupt", zap.String("collection", collection), zap.Error(err))
		}
		cacheMisses.WithLabelValues(collection).Inc()
	}

	items, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(items); err == nil {
			if err := s.cache.SetList(ctx, collection, data); err != nil {
				s.logger.Warn("list cache write failed", zap.String("collection", collection), zap.Error(err))
			}
		}
	}
	return items, nil
}

func (s *Service) invalidate(ctx context.Context, collection string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, collection); err != nil {
		s.logger.Warn("list cache invalidate failed", zap.String("collection", collection), zap.Error(err))
	}
}

// whitelistPatch keeps only the fields a PUT is allowed to touch and maps
// them onto store field paths. Identifier and creation-timestamp fields are
// never updatable.
func whitelistPatch(raw map[string]any, allowed map[string]string) store.Patch {
	patch := store.Patch{}
	for key, value := range raw {
		field, ok := allowed[key]
		if !ok {
			continue
		}
		patch[field] = value
	}
	return patch
}

// Companies

var companyPatchFields = map[string]string{
	"name":           "name",
	"sector":         "sector",
	"industry":       "industry",
	"size":           "size",
	"primaryContact": "primaryContact",
	"location":       "location",
}

var companySizes = map[string]struct{}{
	"Small":  {},
	"Medium": {},
	"Large":  {},
}

type CreateCompanyInput struct {
	Name           string        `json:"name"`
	Sector         string        `json:"sector"`
	Industry       string        `json:"industry"`
	Size           string        `json:"size"`
	PrimaryContact store.Contact `json:"primaryContact"`
	Location       string        `json:"location"`
}

func (s *Service) ListCompanies(ctx context.Context) ([]store.Company, error) {
	return listCached(ctx, s, "companies", s.store.ListCompanies)
}

func (s *Service) GetCompany(ctx context.Context, id string) (store.Company, error) {
	return s.store.GetCompany(ctx, id)
}

func (s *Service) CreateCompany(ctx context.Context, input CreateCompanyInput) (store.Company, error) {
	var missing []string
	if input.Name == "" {
		missing = append(missing, "name")
	}
	if input.Sector == "" {
		missing = append(missing, "sector")
	}
	if len(missing) > 0 {
		return store.Company{}, validationError("missing required fields", missing)
	}
	if input.Size != "" {
		if _, ok := companySizes[input.Size]; !ok {
			return store.Company{}, validationError("size must be one of Small, Medium, Large", nil)
		}
	}

	now := s.now().UTC()
	company := store.Company{
		ID:             s.newID(),
		Name:           input.Name,
		Sector:         input.Sector,
		Industry:       input.Industry,
		Size:           input.Size,
		PrimaryContact: input.PrimaryContact,
		Location:       input.Location,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.store.InsertCompany(ctx, company)
	if err != nil {
		return store.Company{}, err
	}
	s.invalidate(ctx, "companies")
	return created, nil
}

func (s *Service) UpdateCompany(ctx context.Context, id string, raw map[string]any) (store.Company, error) {
	patch := whitelistPatch(raw, companyPatchFields)
	if len(patch) == 0 {
		return store.Company{}, validationError("no updatable fields in payload", nil)
	}
	if size, ok := patch["size"].(string); ok && size != "" {
		if _, valid := companySizes[size]; !valid {
			return store.Company{}, validationError("size must be one of Small, Medium, Large", nil)
		}
	}
	patch["updatedAt"] = s.now().UTC()
	updated, err := s.store.UpdateCompany(ctx, id, patch)
	if err != nil {
		return store.Company{}, err
	}
	s.invalidate(ctx, "companies")
	return updated, nil
}

func (s *Service) DeleteCompany(ctx context.Context, id string) error {
	if err := s.store.DeleteCompany(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "companies")
	return nil
}

// Funding projects

var fundingProjectPatchFields = map[string]string{
	"title":         "title",
	"description":   "description",
	"sector":        "sector",
	"fundingAmount": "fundingAmount",
	"deadline":      "deadline",
}

func (s *Service) ListFundingProjects(ctx context.Context) ([]store.FundingProject, error) {
	return listCached(ctx, s, "funding_projects", s.store.ListFundingProjects)
}

func (s *Service) GetFundingProject(ctx context.Context, id string) (store.FundingProject, error) {
	return s.store.GetFundingProject(ctx, id)
}

// CreateFundingProject implements the upsert-or-create convention: a payload
// carrying a projectId tries a partial update of that project first and only
// falls through to insertion when nothing matches. The fall-through is
// deterministic and logged; the caller learns which path ran via created.
func (s *Service) CreateFundingProject(ctx context.Context, raw map[string]any) (project store.FundingProject, created bool, err error) {
	ref, _ := raw["projectId"].(string)
	if ref != "" {
		if !store.ValidID(ref) {
			return store.FundingProject{}, false, invalidIDError(ref)
		}
		patch := whitelistPatch(raw, fundingProjectPatchFields)
		if len(patch) > 0 {
			updated, err := s.store.UpdateFundingProject(ctx, ref, patch)
			if err == nil {
				s.invalidate(ctx, "funding_projects")
				return updated, false, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return store.FundingProject{}, false, err
			}
			s.logger.Warn("funding project upsert matched nothing, inserting",
				zap.String("projectId", ref))
		}
	}

	// Strip identifier fields before reshaping into a new document.
	delete(raw, "projectId")
	delete(raw, "id")
	delete(raw, "_id")

	var input store.FundingProject
	data, err := json.Marshal(raw)
	if err != nil {
		return store.FundingProject{}, false, validationError("invalid payload", nil)
	}
	if err := json.Unmarshal(data, &input); err != nil {
		return store.FundingProject{}, false, validationError("invalid payload", nil)
	}

	var missing []string
	if input.Title == "" {
		missing = append(missing, "title")
	}
	if input.Sector == "" {
		missing = append(missing, "sector")
	}
	if len(missing) > 0 {
		return store.FundingProject{}, false, validationError("missing required fields", missing)
	}

	input.ID = primitive.NilObjectID
	input.CreatedAt = s.now().UTC()
	inserted, err := s.store.InsertFundingProject(ctx, input)
	if err != nil {
		return store.FundingProject{}, false, err
	}
	s.invalidate(ctx, "funding_projects")
	return inserted, true, nil
}

func (s *Service) UpdateFundingProject(ctx context.Context, id string, raw map[string]any) (store.FundingProject, error) {
	patch := whitelistPatch(raw, fundingProjectPatchFields)
	if len(patch) == 0 {
		return store.FundingProject{}, validationError("no updatable fields in payload", nil)
	}
	updated, err := s.store.UpdateFundingProject(ctx, id, patch)
	if err != nil {
		return store.FundingProject{}, err
	}
	s.invalidate(ctx, "funding_projects")
	return updated, nil
}

func (s *Service) DeleteFundingProject(ctx context.Context, id string) error {
	if err := s.store.DeleteFundingProject(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "funding_projects")
	return nil
}

// Analyses

var analysisPatchFields = map[string]string{
	"company":            "company",
	"project":            "project",
	"date":               "date",
	"status":             "status",
	"questions":          "questions",
	"completedQuestions": "completedQuestions",
}

type CreateAnalysisInput struct {
	Company            store.AnalysisCompany `json:"company"`
	Project            store.AnalysisProject `json:"project"`
	Date               string                `json:"date"`
	Status             string                `json:"status"`
	Questions          store.QuestionsField  `json:"questions"`
	CompletedQuestions int                   `json:"completedQuestions"`
}

func (s *Service) ListAnalyses(ctx context.Context) ([]store.Analysis, error) {
	return listCached(ctx, s, "analyses", s.store.ListAnalyses)
}

func (s *Service) GetAnalysis(ctx context.Context, id string) (store.Analysis, error) {
	return s.store.GetAnalysis(ctx, id)
}

func (s *Service) CreateAnalysis(ctx context.Context, input CreateAnalysisInput) (store.Analysis, error) {
	if input.Company.Name == "" {
		return store.Analysis{}, validationError("missing required fields", []string{"company.name"})
	}
	status := input.Status
	if status == "" {
		status = store.StatusPending
	}
	if _, ok := store.AnalysisStatuses[status]; !ok {
		return store.Analysis{}, validationError("unknown status", status)
	}

	now := s.now().UTC()
	date := input.Date
	if date == "" {
		date = now.Format(time.RFC3339)
	}
	analysis := store.Analysis{
		Company:            input.Company,
		Project:            input.Project,
		Date:               date,
		Status:             status,
		Questions:          input.Questions,
		CompletedQuestions: input.CompletedQuestions,
		CreatedAt:          now,
	}
	created, err := s.store.InsertAnalysis(ctx, analysis)
	if err != nil {
		return store.Analysis{}, err
	}
	s.invalidate(ctx, "analyses")
	return created, nil
}

func (s *Service) UpdateAnalysis(ctx context.Context, id string, raw map[string]any) (store.Analysis, error) {
	patch := whitelistPatch(raw, analysisPatchFields)
	if len(patch) == 0 {
		return store.Analysis{}, validationError("no updatable fields in payload", nil)
	}
	if status, ok := patch["status"].(string); ok {
		if _, valid := store.AnalysisStatuses[status]; !valid {
			return store.Analysis{}, validationError("unknown status", status)
		}
	}
	updated, err := s.store.UpdateAnalysis(ctx, id, patch)
	if err != nil {
		return store.Analysis{}, err
	}
	s.invalidate(ctx, "analyses")
	return updated, nil
}

func (s *Service) DeleteAnalysis(ctx context.Context, id string) error {
	if err := s.store.DeleteAnalysis(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "analyses")
	return nil
}

// Document sections

var sectionPatchFields = map[string]string{
	"title":   "title",
	"content": "content",
	"order":   "order",
}

type CreateDocumentSectionInput struct {
	AnalysisID string `json:"analysisId"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Order      int    `json:"order"`
}

func (s *Service) ListDocumentSections(ctx context.Context, analysisID string) ([]store.DocumentSection, error) {
	// The analysisId filter bypasses the cache; only full listings are cached.
	if analysisID != "" {
		if !store.ValidID(analysisID) {
			return nil, invalidIDError(analysisID)
		}
		return s.store.ListDocumentSections(ctx, analysisID)
	}
	return listCached(ctx, s, "document_sections", func(ctx context.Context) ([]store.DocumentSection, error) {
		return s.store.ListDocumentSections(ctx, "")
	})
}

func (s *Service) GetDocumentSection(ctx context.Context, id string) (store.DocumentSection, error) {
	return s.store.GetDocumentSection(ctx, id)
}

func (s *Service) CreateDocumentSection(ctx context.Context, input CreateDocumentSectionInput) (store.DocumentSection, error) {
	var missing []string
	if input.AnalysisID == "" {
		missing = append(missing, "analysisId")
	}
	if input.Title == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return store.DocumentSection{}, validationError("missing required fields", missing)
	}
	if !store.ValidID(input.AnalysisID) {
		return store.DocumentSection{}, invalidIDError(input.AnalysisID)
	}

	section := store.DocumentSection{
		AnalysisID: input.AnalysisID,
		Title:      input.Title,
		Content:    input.Content,
		Order:      input.Order,
		UpdatedAt:  s.now().UTC(),
	}
	created, err := s.store.InsertDocumentSection(ctx, section)
	if err != nil {
		return store.DocumentSection{}, err
	}
	s.invalidate(ctx, "document_sections")
	return created, nil
}

func (s *Service) UpdateDocumentSection(ctx context.Context, id string, raw map[string]any) (store.DocumentSection, error) {
	patch := whitelistPatch(raw, sectionPatchFields)
	if len(patch) == 0 {
		return store.DocumentSection{}, validationError("no updatable fields in payload", nil)
	}
	patch["updatedAt"] = s.now().UTC()
	updated, err := s.store.UpdateDocumentSection(ctx, id, patch)
	if err != nil {
		return store.DocumentSection{}, err
	}
	s.invalidate(ctx, "document_sections")
	return updated, nil
}

func (s *Service) DeleteDocumentSection(ctx context.Context, id string) error {
	if err := s.store.DeleteDocumentSection(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "document_sections")
	return nil
}

// Team members

var teamMemberPatchFields = map[string]string{
	"name":  "name",
	"email": "email",
	"role":  "role",
}

type CreateTeamMemberInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Service) ListTeamMembers(ctx context.Context) ([]store.TeamMember, error) {
	return listCached(ctx, s, "team_members", s.store.ListTeamMembers)
}

func (s *Service) GetTeamMember(ctx context.Context, id string) (store.TeamMember, error) {
	return s.store.GetTeamMember(ctx, id)
}

func (s *Service) CreateTeamMember(ctx context.Context, input CreateTeamMemberInput) (store.TeamMember, error) {
	var missing []string
	if input.Name == "" {
		missing = append(missing, "name")
	}
	if input.Email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return store.TeamMember{}, validationError("missing required fields", missing)
	}

	member := store.TeamMember{
		ID:       s.newID(),
		Name:     input.Name,
		Email:    input.Email,
		Role:     input.Role,
		JoinedAt: s.now().UTC(),
	}
	created, err := s.store.InsertTeamMember(ctx, member)
	if err != nil {
		return store.TeamMember{}, err
	}
	s.invalidate(ctx, "team_members")
	return created, nil
}

func (s *Service) UpdateTeamMember(ctx context.Context, id string, raw map[string]any) (store.TeamMember, error) {
	patch := whitelistPatch(raw, teamMemberPatchFields)
	if len(patch) == 0 {
		return store.TeamMember{}, validationError("no updatable fields in payload", nil)
	}
	updated, err := s.store.UpdateTeamMember(ctx, id, patch)
	if err != nil {
		return store.TeamMember{}, err
	}
	s.invalidate(ctx, "team_members")
	return updated, nil
}

func (s *Service) DeleteTeamMember(ctx context.Context, id string) error {
	if err := s.store.DeleteTeamMember(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "team_members")
	return nil
}
