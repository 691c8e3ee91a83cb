package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testRow() *PatientRow {
	dob := "1994-01-01"
	mrn := "7f1a2b3c-0000-4000-8000-000000000000"
	return &PatientRow{
		TenantID:            CoerceUUID("tenant-a", "tenant"),
		FacilityID:          CoerceUUID("facility-b", "facility"),
		NameFirst:           "anon_3773d139b147",
		NameLast:            "anon_8c01de22aa41",
		Gender:              "male",
		DOB:                 &dob,
		MRN:                 &mrn,
		LegalMailingAddress: []byte(`{"city":"Riverton","state":"FL"}`),
	}
}

func TestSQLFileInsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")
	storage, err := NewSQLFileStorage(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLFileStorage: %v", err)
	}
	defer storage.Close()

	id, err := storage.InsertPatient(context.Background(), testRow())
	if err != nil {
		t.Fatalf("InsertPatient: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "-- Anonymizer dry-run output.") {
		t.Errorf("missing header:\n%s", content)
	}
	if !strings.Contains(content, "INSERT INTO patient (") {
		t.Errorf("missing insert statement:\n%s", content)
	}
	if !strings.Contains(content, id.String()) {
		t.Errorf("statement does not carry the derived row id")
	}
	if !strings.Contains(content, `'anon_3773d139b147'`) {
		t.Errorf("name surrogate missing from statement")
	}
	if !strings.Contains(content, `'{"city":"Riverton","state":"FL"}'::jsonb`) {
		t.Errorf("address jsonb cast missing:\n%s", content)
	}
	if !strings.Contains(content, `'inactive'`) {
		t.Errorf("default status not applied")
	}
}

func TestSQLFileHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")
	storage, _ := NewSQLFileStorage(path, zap.NewNop())
	defer storage.Close()

	first := testRow()
	second := testRow()
	second.NameFirst = "anon_ffffffffffff"

	if _, err := storage.InsertPatient(context.Background(), first); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := storage.InsertPatient(context.Background(), second); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "-- Anonymizer dry-run output."); n != 1 {
		t.Errorf("header written %d times", n)
	}
	if n := strings.Count(string(data), "INSERT INTO patient"); n != 2 {
		t.Errorf("got %d statements, want 2", n)
	}
}

func TestSQLFileDuplicateRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")
	storage, _ := NewSQLFileStorage(path, zap.NewNop())
	defer storage.Close()

	if _, err := storage.InsertPatient(context.Background(), testRow()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := storage.InsertPatient(context.Background(), testRow())
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("got %v, want ErrDuplicate", err)
	}
}

func TestSQLFileDeterministicRowIDs(t *testing.T) {
	dir := t.TempDir()

	runOnce := func(path string) string {
		storage, _ := NewSQLFileStorage(path, zap.NewNop())
		defer storage.Close()
		id, err := storage.InsertPatient(context.Background(), testRow())
		if err != nil {
			t.Fatalf("InsertPatient: %v", err)
		}
		return id.String()
	}

	first := runOnce(filepath.Join(dir, "a.sql"))
	second := runOnce(filepath.Join(dir, "b.sql"))
	if first != second {
		t.Errorf("row ids differ across runs: %s vs %s", first, second)
	}
}

func TestSQLFileQuotesEmbeddedQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")
	storage, _ := NewSQLFileStorage(path, zap.NewNop())
	defer storage.Close()

	row := testRow()
	row.NameLast = "O'Brien"
	if _, err := storage.InsertPatient(context.Background(), row); err != nil {
		t.Fatalf("InsertPatient: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "'O''Brien'") {
		t.Errorf("single quote not escaped:\n%s", data)
	}
}

func TestSQLFileTruncatesPreviousOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	storage, err := NewSQLFileStorage(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLFileStorage: %v", err)
	}
	defer storage.Close()

	if _, err := storage.InsertPatient(context.Background(), testRow()); err != nil {
		t.Fatalf("InsertPatient: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "stale") {
		t.Errorf("previous output survived")
	}
}

func TestSQLFileRequiresPath(t *testing.T) {
	if _, err := NewSQLFileStorage("", zap.NewNop()); err == nil {
		t.Errorf("expected error for empty path")
	}
}
