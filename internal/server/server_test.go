package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/config"
	"github.com/rfranks/ai-chat-ehr/internal/logger"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	sqlPath := filepath.Join(t.TempDir(), "out.sql")
	cfg := config.GetDefaults()
	cfg.Storage.Mode = "sqlfile"
	cfg.Storage.SQLPath = sqlPath
	cfg.Privacy.ReferenceNow = "2024-06-01T00:00:00Z"

	srv, err := New(cfg, &logger.Logger{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, sqlPath
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleInfo(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Service   string   `json:"service"`
		Detectors []string `json:"enabled_detectors"`
		RuleCount int      `json:"rule_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Service != "ai-chat-ehr-anonymizer" || body.RuleCount == 0 || len(body.Detectors) == 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleCacheClearWithoutCache(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cache/clear", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleAnonymize(t *testing.T) {
	srv, sqlPath := testServer(t)

	doc := `{
		"tenantId": "t-100",
		"name": "Nick Alderman",
		"dob": "1994-03-20",
		"gender": "male",
		"mrn": "ZQ-9X7"
	}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anonymize", strings.NewReader(doc)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var response AnonymizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.PatientID == "" || !response.Persisted {
		t.Errorf("response = %+v", response)
	}
	if response.Summary == nil || response.Summary.TotalTransformations == 0 {
		t.Errorf("summary missing transformations: %+v", response.Summary)
	}

	record := string(response.Record)
	if strings.Contains(record, "Nick") || strings.Contains(record, "Alderman") || strings.Contains(record, "1994-03-20") {
		t.Errorf("sanitized record leaks original values: %s", record)
	}
	if !strings.Contains(record, `"dob":"1994-01-01"`) {
		t.Errorf("dob not generalized: %s", record)
	}

	output, err := os.ReadFile(sqlPath)
	if err != nil {
		t.Fatalf("read sql output: %v", err)
	}
	if !strings.Contains(string(output), "INSERT INTO patient") {
		t.Errorf("row was not written to the dry-run file")
	}
	if strings.Contains(string(output), "Alderman") {
		t.Errorf("sql output leaks original values")
	}
}

func TestHandleAnonymizeBadJSON(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anonymize", strings.NewReader(`{"name":`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleAnonymizeDuplicate(t *testing.T) {
	srv, _ := testServer(t)

	doc := `{"name": "Nick Alderman", "gender": "male"}`
	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/anonymize", strings.NewReader(doc)))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, body = %s", first.Code, first.Body)
	}

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/anonymize", strings.NewReader(doc)))
	if second.Code != http.StatusConflict {
		t.Errorf("second request: status = %d, want 409", second.Code)
	}
}

func TestHandleAnonymizeTooLarge(t *testing.T) {
	srv, _ := testServer(t)

	big := `{"name": "` + strings.Repeat("x", maxRecordBytes) + `"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anonymize", strings.NewReader(big)))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}
