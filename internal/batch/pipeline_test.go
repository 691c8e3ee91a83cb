package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/config"
	"github.com/rfranks/ai-chat-ehr/internal/engine"
	"github.com/rfranks/ai-chat-ehr/internal/logger"
	"github.com/rfranks/ai-chat-ehr/internal/phi"
	"github.com/rfranks/ai-chat-ehr/internal/store"
)

func TestDetectFileFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     FileFormat
	}{
		{"patients.jsonl", FormatJSONL},
		{"patients.json", FormatJSONL},
		{"patients.ndjson", FormatJSONL},
		{"patients.parquet", FormatParquet},
		{"patients.csv", FormatUnknown},
		{"patients", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFileFormat(tt.filename); got != tt.want {
			t.Errorf("DetectFileFormat(%q) = %s, want %s", tt.filename, got, tt.want)
		}
	}
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	log := &logger.Logger{Logger: zap.NewNop()}

	detector, err := phi.New(config.DetectorConfig{Detectors: []string{"all"}, MinScore: 0.3}, log)
	if err != nil {
		t.Fatalf("phi.New: %v", err)
	}

	privacy := config.GetDefaults().Privacy
	privacy.ReferenceNow = "2024-06-01T00:00:00Z"
	eng, err := engine.New(privacy, detector, log)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func TestProcessFileJSONL(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "patients.jsonl")
	lines := strings.Join([]string{
		`{"name": "Nick Alderman", "dob": "1994-03-20", "gender": "male"}`,
		``,
		`{"name": "Rosa Ngata", "dob": "1988-11-02", "gender": "female"}`,
		`{"name": "Rosa Ngata", "dob": "1988-11-02", "gender": "female"}`,
		`not json at all`,
	}, "\n")
	if err := os.WriteFile(input, []byte(lines), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	storage, err := store.NewSQLFileStorage(filepath.Join(dir, "out.sql"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLFileStorage: %v", err)
	}
	defer storage.Close()

	cfg := DefaultConfig()
	cfg.WorkerCount = 2
	cfg.ProgressReport = 1
	pipeline := NewPipeline(testEngine(t), storage, cfg, zap.NewNop())

	result, err := pipeline.ProcessFile(context.Background(), input)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if result.TotalRecords != 4 {
		t.Errorf("total = %d, want 4", result.TotalRecords)
	}
	if result.ProcessedOK != 3 {
		t.Errorf("ok = %d, want 3", result.ProcessedOK)
	}
	if result.ProcessedFailed != 1 {
		t.Errorf("failed = %d, want 1", result.ProcessedFailed)
	}
	if result.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", result.Duplicates)
	}
	if result.TotalTransformations == 0 {
		t.Errorf("no transformations recorded")
	}

	output, err := os.ReadFile(filepath.Join(dir, "out.sql"))
	if err != nil {
		t.Fatalf("read sql output: %v", err)
	}
	if n := strings.Count(string(output), "INSERT INTO patient"); n != 2 {
		t.Errorf("got %d inserts, want 2", n)
	}
	if strings.Contains(string(output), "Alderman") || strings.Contains(string(output), "Ngata") {
		t.Errorf("sql output leaks original names")
	}
}

func TestProcessFileUnsupportedFormat(t *testing.T) {
	pipeline := NewPipeline(testEngine(t), store.Discard{}, DefaultConfig(), zap.NewNop())
	if _, err := pipeline.ProcessFile(context.Background(), "patients.csv"); err == nil {
		t.Errorf("expected error for unsupported format")
	}
}

func TestProcessFileCancelledContext(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "patients.jsonl")
	if err := os.WriteFile(input, []byte(`{"name": "Nick Alderman"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := NewPipeline(testEngine(t), store.Discard{}, DefaultConfig(), zap.NewNop())
	if _, err := pipeline.ProcessFile(ctx, input); err == nil {
		t.Errorf("expected error for cancelled context")
	}
}
