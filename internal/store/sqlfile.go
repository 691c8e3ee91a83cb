package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sqlFileHeader = "-- Anonymizer dry-run output.\n" +
	"-- Review the generated INSERT statements before applying them to Postgres.\n\n"

// SQLFileStorage writes anonymized rows as INSERT statements for review
// instead of executing them. Row identifiers are derived deterministically
// from the row contents so repeated dry runs over the same input produce
// identical files.
type SQLFileStorage struct {
	path   string
	logger *zap.Logger

	mu          sync.Mutex
	initialized bool
	seen        map[uuid.UUID]bool
}

// NewSQLFileStorage truncates any previous output at path.
func NewSQLFileStorage(path string, logger *zap.Logger) (*SQLFileStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlfile storage requires an output path")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to reset SQL output file: %w", err)
	}
	logger.Info("SQL file storage initialized", zap.String("path", path))
	return &SQLFileStorage{
		path:   path,
		logger: logger,
		seen:   make(map[uuid.UUID]bool),
	}, nil
}

// InsertPatient appends one INSERT statement and returns the derived row ID.
func (s *SQLFileStorage) InsertPatient(ctx context.Context, row *PatientRow) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	id := row.ID
	if id == uuid.Nil {
		id = deriveRowID(row)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[id] {
		return uuid.Nil, fmt.Errorf("%w: row %s already written", ErrDuplicate, id)
	}

	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := row.Status
	if status == "" {
		status = DefaultPatientStatus
	}

	columns := []string{"id", "tenant_id", "facility_id", "name_first", "name_last", "gender", "status"}
	values := []string{
		quoteSQL(id.String()),
		quoteSQL(row.TenantID.String()),
		quoteSQL(row.FacilityID.String()),
		quoteSQL(row.NameFirst),
		quoteSQL(row.NameLast),
		quoteSQL(row.Gender),
		quoteSQL(status),
	}
	if row.DOB != nil {
		columns = append(columns, "dob")
		values = append(values, quoteSQL(*row.DOB))
	}
	if row.MRN != nil {
		columns = append(columns, "mrn")
		values = append(values, quoteSQL(*row.MRN))
	}
	if len(row.LegalMailingAddress) > 0 {
		columns = append(columns, "legal_mailing_address")
		values = append(values, quoteSQL(string(row.LegalMailingAddress))+"::jsonb")
	}
	columns = append(columns, "created_at")
	values = append(values, quoteSQL(createdAt.Format(time.RFC3339)))

	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = `"` + name + `"`
	}
	statement := fmt.Sprintf("INSERT INTO patient (%s) VALUES (%s);\n",
		strings.Join(quoted, ", "), strings.Join(values, ", "))

	if err := s.writeStatement(statement); err != nil {
		return uuid.Nil, err
	}
	s.seen[id] = true
	return id, nil
}

func (s *SQLFileStorage) writeStatement(statement string) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create SQL output directory: %w", err)
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open SQL output file: %w", err)
	}
	defer file.Close()

	if !s.initialized {
		if _, err := file.WriteString(sqlFileHeader); err != nil {
			return fmt.Errorf("failed to write SQL header: %w", err)
		}
		s.initialized = true
	}
	if _, err := file.WriteString(statement); err != nil {
		return fmt.Errorf("failed to write SQL statement: %w", err)
	}
	return nil
}

// Path returns the output path for generated SQL statements.
func (s *SQLFileStorage) Path() string { return s.path }

// Close is a no-op; each write opens and closes the file.
func (s *SQLFileStorage) Close() error { return nil }

// deriveRowID computes a stable UUID from the row's identifying surrogate
// values. The inputs are already anonymized.
func deriveRowID(row *PatientRow) uuid.UUID {
	mrn := ""
	if row.MRN != nil {
		mrn = *row.MRN
	}
	name := strings.Join([]string{
		"patient", row.TenantID.String(), row.FacilityID.String(),
		row.NameFirst, row.NameLast, mrn,
	}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
}

func quoteSQL(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
