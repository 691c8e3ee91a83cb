package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/engine"
	"github.com/rfranks/ai-chat-ehr/internal/phi"
	"github.com/rfranks/ai-chat-ehr/internal/store"
)

// Pipeline anonymizes record dumps in bulk: it reads patient documents from
// JSONL or Parquet, runs each through the engine, persists rows via the
// configured storage, and optionally exports flattened rows as Parquet.
type Pipeline struct {
	engine  *engine.Engine
	storage store.Storage
	config  *Config
	logger  *zap.Logger
}

// NewPipeline creates a new batch pipeline
func NewPipeline(eng *engine.Engine, storage store.Storage, cfg *Config, logger *zap.Logger) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Pipeline{
		engine:  eng,
		storage: storage,
		config:  cfg,
		logger:  logger,
	}
}

// ProcessFile anonymizes every document in the input file.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*Result, error) {
	format := DetectFileFormat(filePath)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unsupported input format: %s", filePath)
	}

	p.logger.Info("Starting batch anonymization",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("workers", p.config.WorkerCount))

	start := time.Now()
	result := &Result{}

	documents := make(chan []byte, p.config.WorkerCount*2)
	rows := make(chan *ExportRow, p.config.WorkerCount*2)

	readErr := make(chan error, 1)
	go func() {
		defer close(documents)
		switch format {
		case FormatJSONL:
			readErr <- p.readJSONL(ctx, filePath, documents, result)
		case FormatParquet:
			readErr <- p.readParquet(ctx, filePath, documents, result)
		}
	}()

	var workers sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	for i := 0; i < p.config.WorkerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for doc := range documents {
				row, err := p.processDocument(ctx, doc, result)
				if err != nil {
					atomic.AddInt64(&result.ProcessedFailed, 1)
					errOnce.Do(func() { firstErr = err })
					continue
				}
				if row != nil {
					rows <- row
				}
			}
		}()
	}

	go func() {
		workers.Wait()
		close(rows)
	}()

	var exported []*ExportRow
	for row := range rows {
		if p.config.ExportPath != "" {
			exported = append(exported, row)
		}
		if p.config.ProgressReport > 0 && atomic.LoadInt64(&result.ProcessedOK)%int64(p.config.ProgressReport) == 0 {
			p.logger.Info("Batch progress",
				zap.Int64("processed", atomic.LoadInt64(&result.ProcessedOK)),
				zap.Int64("failed", atomic.LoadInt64(&result.ProcessedFailed)))
		}
	}

	if err := <-readErr; err != nil {
		return result, err
	}
	// Per-document parse failures are skipped and counted; a dead detector or
	// a canceled context ends the run.
	if firstErr != nil && (errors.Is(firstErr, context.Canceled) || errors.Is(firstErr, phi.ErrDetectionUnavailable)) {
		return result, firstErr
	}

	if p.config.ExportPath != "" && len(exported) > 0 {
		if err := p.writeExport(exported); err != nil {
			return result, fmt.Errorf("failed to write export: %w", err)
		}
		result.ExportPath = p.config.ExportPath
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch anonymization completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("duplicates", result.Duplicates),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processDocument runs one raw document through the engine and storage.
func (p *Pipeline) processDocument(ctx context.Context, doc []byte, result *Result) (*ExportRow, error) {
	record, err := engine.ParseRecord(doc)
	if err != nil {
		p.logger.Warn("Skipping malformed document", zap.Error(err))
		return nil, err
	}

	sanitized, summary, err := p.engine.Anonymize(ctx, record)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&result.TotalTransformations, int64(summary.TotalTransformations))

	row := store.RowFromRecord(sanitized)
	if row == nil {
		atomic.AddInt64(&result.ProcessedOK, 1)
		return nil, nil
	}

	id, err := p.storage.InsertPatient(ctx, row)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			atomic.AddInt64(&result.Duplicates, 1)
			atomic.AddInt64(&result.ProcessedOK, 1)
			return nil, nil
		}
		return nil, err
	}
	row.ID = id
	atomic.AddInt64(&result.ProcessedOK, 1)

	export := &ExportRow{
		ID:                   row.ID.String(),
		TenantID:             row.TenantID.String(),
		FacilityID:           row.FacilityID.String(),
		NameFirst:            row.NameFirst,
		NameLast:             row.NameLast,
		Gender:               row.Gender,
		Status:               row.Status,
		TotalTransformations: int64(summary.TotalTransformations),
		HashCount:            int64(summary.ByAction[engine.ActionHash]),
		GeneralizeCount:      int64(summary.ByAction[engine.ActionGeneralize]),
		RedactCount:          int64(summary.ByAction[engine.ActionRedact]),
		PseudonymizeCount:    int64(summary.ByAction[engine.ActionPseudonymize]),
		DropCount:            int64(summary.ByAction[engine.ActionDrop]),
	}
	if row.DOB != nil {
		export.DOB = *row.DOB
	}
	if row.MRN != nil {
		export.MRN = *row.MRN
	}
	if len(row.LegalMailingAddress) > 0 {
		export.LegalMailingAddress = string(row.LegalMailingAddress)
	}
	return export, nil
}

func (p *Pipeline) readJSONL(ctx context.Context, filePath string, documents chan<- []byte, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		atomic.AddInt64(&result.TotalRecords, 1)
		select {
		case documents <- []byte(line):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (p *Pipeline) readParquet(ctx context.Context, filePath string, documents chan<- []byte, result *Result) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	for {
		var doc parquetDocument
		err := reader.Read(&doc)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			p.logger.Warn("Failed to read Parquet record", zap.Error(err))
			continue
		}
		if doc.Document == "" {
			continue
		}
		atomic.AddInt64(&result.TotalRecords, 1)
		select {
		case documents <- []byte(doc.Document):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) writeExport(rows []*ExportRow) error {
	file, err := os.Create(p.config.ExportPath)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize export file: %w", err)
	}

	p.logger.Info("Export written",
		zap.String("path", p.config.ExportPath),
		zap.Int("rows", len(rows)))
	return nil
}
