package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ErrNotFound is returned when no document matches the given id.
var ErrNotFound = errors.New("not found")

// Patch is a partial update: field name to new value. Services are
// responsible for whitelisting fields before a patch reaches the store.
type Patch = map[string]any

const (
	collCompanies       = "companies"
	collFundingProjects = "funding_projects"
	collAnalyses        = "analyses"
	collSections        = "document_sections"
	collTeamMembers     = "team_members"
)

type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the lookup indexes each collection depends on. It is
// idempotent and runs once at startup, in place of a migration step.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	byStringID := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	for _, coll := range []string{collCompanies, collTeamMembers} {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, byStringID); err != nil {
			return fmt.Errorf("ensure indexes on %s: %w", coll, err)
		}
	}
	sectionIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "analysisId", Value: 1}}},
	}
	if _, err := s.db.Collection(collSections).Indexes().CreateMany(ctx, sectionIdx); err != nil {
		return fmt.Errorf("ensure indexes on %s: %w", collSections, err)
	}
	return nil
}

func listAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) ([]T, error) {
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return items, nil
}

func getOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (T, error) {
	var item T
	err := coll.FindOne(ctx, filter).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return item, ErrNotFound
	}
	if err != nil {
		return item, fmt.Errorf("get %s: %w", coll.Name(), err)
	}
	return item, nil
}

func updateOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, patch Patch) (T, error) {
	var item T
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": patch}, opts).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return item, ErrNotFound
	}
	if err != nil {
		return item, fmt.Errorf("update %s: %w", coll.Name(), err)
	}
	return item, nil
}

func deleteOne(ctx context.Context, coll *mongo.Collection, filter bson.M) error {
	res, err := coll.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete %s: %w", coll.Name(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// nativeFilter matches native-id collections by _id only. Handlers validate
// the hex form before calling in, so a parse failure here maps to not-found.
func nativeFilter(id string) (bson.M, bool) {
	oid, ok := ParseID(id)
	if !ok {
		return nil, false
	}
	return bson.M{"_id": oid}, true
}

// Companies (string-id collection)

func (s *MongoStore) ListCompanies(ctx context.Context) ([]Company, error) {
	return listAll[Company](ctx, s.db.Collection(collCompanies), bson.M{})
}

func (s *MongoStore) GetCompany(ctx context.Context, id string) (Company, error) {
	return getOne[Company](ctx, s.db.Collection(collCompanies), idFilter(id))
}

func (s *MongoStore) InsertCompany(ctx context.Context, company Company) (Company, error) {
	if _, err := s.db.Collection(collCompanies).InsertOne(ctx, company); err != nil {
		return Company{}, fmt.Errorf("insert company: %w", err)
	}
	return company, nil
}

func (s *MongoStore) UpdateCompany(ctx context.Context, id string, patch Patch) (Company, error) {
	return updateOne[Company](ctx, s.db.Collection(collCompanies), idFilter(id), patch)
}

func (s *MongoStore) DeleteCompany(ctx context.Context, id string) error {
	return deleteOne(ctx, s.db.Collection(collCompanies), idFilter(id))
}

// Funding projects (native-id collection)

func (s *MongoStore) ListFundingProjects(ctx context.Context) ([]FundingProject, error) {
	return listAll[FundingProject](ctx, s.db.Collection(collFundingProjects), bson.M{})
}

func (s *MongoStore) GetFundingProject(ctx context.Context, id string) (FundingProject, error) {
	filter, ok := nativeFilter(id)
	if !ok {
		return FundingProject{}, ErrNotFound
	}
	return getOne[FundingProject](ctx, s.db.Collection(collFundingProjects), filter)
}

func (s *MongoStore) InsertFundingProject(ctx context.Context, project FundingProject) (FundingProject, error) {
	res, err := s.db.Collection(collFundingProjects).InsertOne(ctx, project)
	if err != nil {
		return FundingProject{}, fmt.Errorf("insert funding project: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		project.ID = oid
	}
	return project, nil
}

func (s *MongoStore) UpdateFundingProject(ctx context.Context, id string, patch Patch) (FundingProject, error) {
	filter, ok := nativeFilter(id)
	if !ok {
		return FundingProject{}, ErrNotFound
	}
	return updateOne[FundingProject](ctx, s.db.Collection(collFundingProjects), filter, patch)
}

func (s *MongoStore) DeleteFundingProject(ctx context.Context, id string) error {
	filter, ok := nativeFilter(id)
	if !ok {
		return ErrNotFound
	}
	return deleteOne(ctx, s.db.Collection(collFundingProjects), filter)
}

// Analyses (native-id collection)

func (s *MongoStore) ListAnalyses(ctx context.Context) ([]Analysis, error) {
	return listAll[Analysis](ctx, s.db.Collection(collAnalyses), bson.M{})
}

func (s *MongoStore) GetAnalysis(ctx context.Context, id string) (Analysis, error) {
	filter, ok := nativeFilter(id)
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return getOne[Analysis](ctx, s.db.Collection(collAnalyses), filter)
}

func (s *MongoStore) InsertAnalysis(ctx context.Context, analysis Analysis) (Analysis, error) {
	res, err := s.db.Collection(collAnalyses).InsertOne(ctx, analysis)
	if err != nil {
		return Analysis{}, fmt.Errorf("insert analysis: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		analysis.ID = oid
	}
	return analysis, nil
}

func (s *MongoStore) UpdateAnalysis(ctx context.Context, id string, patch Patch) (Analysis, error) {
	filter, ok := nativeFilter(id)
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return updateOne[Analysis](ctx, s.db.Collection(collAnalyses), filter, patch)
}

func (s *MongoStore) DeleteAnalysis(ctx context.Context, id string) error {
	filter, ok := nativeFilter(id)
	if !ok {
		return ErrNotFound
	}
	return deleteOne(ctx, s.db.Collection(collAnalyses), filter)
}

// Document sections (native-id collection)

func (s *MongoStore) ListDocumentSections(ctx context.Context, analysisID string) ([]DocumentSection, error) {
	filter := bson.M{}
	if analysisID != "" {
		filter["analysisId"] = analysisID
	}
	return listAll[DocumentSection](ctx, s.db.Collection(collSections), filter)
}

func (s *MongoStore) GetDocumentSection(ctx context.Context, id string) (DocumentSection, error) {
	filter, ok := nativeFilter(id)
	if !ok {
		return DocumentSection{}, ErrNotFound
	}
	return getOne[DocumentSection](ctx, s.db.Collection(collSections), filter)
}

func (s *MongoStore) InsertDocumentSection(ctx context.Context, section DocumentSection) (DocumentSection, error) {
	res, err := s.db.Collection(collSections).InsertOne(ctx, section)
	if err != nil {
		return DocumentSection{}, fmt.Errorf("insert document section: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		section.ID = oid
	}
	return section, nil
}

func (s *MongoStore) UpdateDocumentSection(ctx context.Context, id string, patch Patch) (DocumentSection, error) {
	filter, ok := nativeFilter(id)
	if !ok {
		return DocumentSection{}, ErrNotFound
	}
	return updateOne[DocumentSection](ctx, s.db.Collection(collSections), filter, patch)
}

func (s *MongoStore) DeleteDocumentSection(ctx context.Context, id string) error {
	filter, ok := nativeFilter(id)
	if !ok {
		return ErrNotFound
	}
	return deleteOne(ctx, s.db.Collection(collSections), filter)
}

// Team members (string-id collection)

func (s *MongoStore) ListTeamMembers(ctx context.Context) ([]TeamMember, error) {
	return listAll[TeamMember](ctx, s.db.Collection(collTeamMembers), bson.M{})
}

func (s *MongoStore) GetTeamMember(ctx context.Context, id string) (TeamMember, error) {
	return getOne[TeamMember](ctx, s.db.Collection(collTeamMembers), idFilter(id))
}

func (s *MongoStore) InsertTeamMember(ctx context.Context, member TeamMember) (TeamMember, error) {
	if _, err := s.db.Collection(collTeamMembers).InsertOne(ctx, member); err != nil {
		return TeamMember{}, fmt.Errorf("insert team member: %w", err)
	}
	return member, nil
}

func (s *MongoStore) UpdateTeamMember(ctx context.Context, id string, patch Patch) (TeamMember, error) {
	return updateOne[TeamMember](ctx, s.db.Collection(collTeamMembers), idFilter(id), patch)
}

func (s *MongoStore) DeleteTeamMember(ctx context.Context, id string) error {
	return deleteOne(ctx, s.db.Collection(collTeamMembers), idFilter(id))
}
