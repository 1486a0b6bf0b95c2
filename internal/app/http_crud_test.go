package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"grantflow/api/internal/store"
)

func newTestServer(fs *fakeStore) *httptest.Server {
	srv := NewHTTPServer(newTestService(fs), zap.NewNop(), "*")
	return httptest.NewServer(srv.Handler())
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestListCompaniesEmpty(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/companies")
	if err != nil {
		t.Fatalf("GET companies: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var items []store.Company
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list, got %d", len(items))
	}
}

func TestCreateCompanyReturns201(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/companies",
		`{"name":"EcoTech Solutions","sector":"Renewable Energy","size":"Medium"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	if body["name"] != "EcoTech Solutions" {
		t.Fatalf("unexpected body: %v", body)
	}
	if id, _ := body["id"].(string); id == "" {
		t.Fatal("created company should carry an assigned id")
	}
}

func TestCreateCompanyMissingFields(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/companies", `{"industry":"Tech"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "VALIDATION" {
		t.Fatalf("expected VALIDATION code, got %v", body)
	}
	if _, ok := body["details"]; !ok {
		t.Fatal("validation error should name the missing fields")
	}
}

func TestCreateCompanyMalformedBody(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/companies", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "INVALID_BODY" {
		t.Fatalf("expected INVALID_BODY code, got %v", body)
	}
}

func TestGetAnalysisMalformedIDRejectedBeforeStore(t *testing.T) {
	storeTouched := false
	fs := &fakeStore{
		getAnalysisFn: func(context.Context, string) (store.Analysis, error) {
			storeTouched = true
			return store.Analysis{}, nil
		},
	}
	ts := newTestServer(fs)
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/analyses/not-a-native-id", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "INVALID_ID" {
		t.Fatalf("expected INVALID_ID code, got %v", body)
	}
	if storeTouched {
		t.Fatal("malformed id must be rejected before any store access")
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/analyses/"+primitive.NewObjectID().Hex(), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND code, got %v", body)
	}
}

func TestGetCompanyAcceptsStringID(t *testing.T) {
	fs := &fakeStore{
		getCompanyFn: func(_ context.Context, id string) (store.Company, error) {
			return store.Company{ID: id, Name: "EcoTech Solutions"}, nil
		},
	}
	ts := newTestServer(fs)
	defer ts.Close()

	// String-id collections take any identifier shape; no 400 gate.
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/companies/a-uuid-style-id", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["id"] != "a-uuid-style-id" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestUpdateAnalysisStatus(t *testing.T) {
	oid := primitive.NewObjectID()
	fs := &fakeStore{
		updateAnalysisFn: func(_ context.Context, id string, p store.Patch) (store.Analysis, error) {
			if p["status"] != store.StatusCompleted {
				return store.Analysis{}, store.ErrNotFound
			}
			return store.Analysis{ID: oid, Status: store.StatusCompleted}, nil
		},
	}
	ts := newTestServer(fs)
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/api/analyses/"+oid.Hex(),
		`{"status":"Completed"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["status"] != store.StatusCompleted {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestUpdateAnalysisRejectsUnknownStatus(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/api/analyses/"+primitive.NewObjectID().Hex(),
		`{"status":"Archived"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %v", resp.StatusCode, body)
	}
}

func TestDeleteCompany(t *testing.T) {
	deleted := ""
	fs := &fakeStore{
		deleteCompanyFn: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	ts := newTestServer(fs)
	defer ts.Close()

	resp, body := doJSON(t, http.MethodDelete, ts.URL+"/api/companies/c1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["message"] != "company deleted" {
		t.Fatalf("unexpected body: %v", body)
	}
	if deleted != "c1" {
		t.Fatalf("expected delete of c1, got %q", deleted)
	}
}

func TestUpsertEndpointStatusCodes(t *testing.T) {
	existing := primitive.NewObjectID()
	fs := &fakeStore{
		updateFundingProjectFn: func(_ context.Context, id string, p store.Patch) (store.FundingProject, error) {
			if id == existing.Hex() {
				return store.FundingProject{ID: existing, Title: "Updated"}, nil
			}
			return store.FundingProject{}, store.ErrNotFound
		},
		insertFundingProjectFn: func(_ context.Context, p store.FundingProject) (store.FundingProject, error) {
			p.ID = primitive.NewObjectID()
			return p, nil
		},
	}
	ts := newTestServer(fs)
	defer ts.Close()

	// Matched update reports 200.
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/funding-projects",
		`{"projectId":"`+existing.Hex()+`","title":"Updated"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("matched upsert: expected 200, got %d", resp.StatusCode)
	}

	// Unmatched ref falls through to insert and reports 201.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/funding-projects",
		`{"projectId":"`+primitive.NewObjectID().Hex()+`","title":"Fresh","sector":"Energy"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("fall-through upsert: expected 201, got %d", resp.StatusCode)
	}

	// Malformed ref is a 400 before anything runs.
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/funding-projects",
		`{"projectId":"bogus","title":"X"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed ref: expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "INVALID_ID" {
		t.Fatalf("expected INVALID_ID code, got %v", body)
	}
}

func TestListDocumentSectionsByAnalysis(t *testing.T) {
	analysisID := primitive.NewObjectID()
	fs := &fakeStore{
		listSectionsFn: func(_ context.Context, aid string) ([]store.DocumentSection, error) {
			if aid != analysisID.Hex() {
				t.Fatalf("expected filter %s, got %s", analysisID.Hex(), aid)
			}
			return []store.DocumentSection{
				{ID: primitive.NewObjectID(), AnalysisID: aid, Title: "Budget", Order: 1},
			}, nil
		},
	}
	ts := newTestServer(fs)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/document-sections?analysisId=" + analysisID.Hex())
	if err != nil {
		t.Fatalf("GET sections: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var items []store.DocumentSection
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Budget" {
		t.Fatalf("unexpected sections: %+v", items)
	}
}

func TestListDocumentSectionsRejectsMalformedFilter(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/document-sections?analysisId=nope", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["code"] != "INVALID_ID" {
		t.Fatalf("expected INVALID_ID code, got %v", body)
	}
}

func TestCreateTeamMember(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/team-members",
		`{"name":"Dana Reyes","email":"dana@example.org","role":"Analyst"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	if id, _ := body["id"].(string); id == "" {
		t.Fatal("created member should carry an assigned id")
	}
}

func TestStoreFailureSurfacesMessage(t *testing.T) {
	fs := &fakeStore{
		listAnalysesFn: func(context.Context) ([]store.Analysis, error) {
			return nil, errTimeout{}
		},
	}
	ts := newTestServer(fs)
	defer ts.Close()

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/analyses", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if body["code"] != "STORE_ERROR" {
		t.Fatalf("expected STORE_ERROR code, got %v", body)
	}
	if body["error"] != "connection timed out" {
		t.Fatalf("store message should pass through, got %v", body["error"])
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "connection timed out" }

func TestRequestIDEchoedBack(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "trace-me" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/companies", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("preflight response missing CORS headers")
	}
}
