package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/config"
)

const patientSchema = `
CREATE TABLE IF NOT EXISTS patient (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL,
	facility_id UUID NOT NULL,
	name_first TEXT NOT NULL,
	name_last TEXT NOT NULL,
	gender TEXT NOT NULL,
	status TEXT NOT NULL,
	dob DATE,
	mrn TEXT,
	legal_mailing_address JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, mrn)
);
`

const insertPatientSQL = `
INSERT INTO patient (
	id, tenant_id, facility_id, name_first, name_last,
	gender, status, dob, mrn, legal_mailing_address, created_at
) VALUES (
	:id, :tenant_id, :facility_id, :name_first, :name_last,
	:gender, :status, :dob, :mrn, :legal_mailing_address, :created_at
)`

// PostgresStorage persists anonymized patient rows in Postgres.
type PostgresStorage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStorage connects, configures the pool, and ensures the patient
// table exists.
func NewPostgresStorage(cfg config.StorageConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	storage := &PostgresStorage{db: db, logger: logger}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Postgres storage initialized",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime))
	return storage, nil
}

func (s *PostgresStorage) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, patientSchema)
	return err
}

// InsertPatient inserts one anonymized row. Unique-constraint collisions
// surface as ErrDuplicate so callers can report a conflict instead of a
// server error.
func (s *PostgresStorage) InsertPatient(ctx context.Context, row *PatientRow) (uuid.UUID, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.Status == "" {
		row.Status = DefaultPatientStatus
	}

	if _, err := s.db.NamedExecContext(ctx, insertPatientSQL, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return uuid.Nil, fmt.Errorf("%w: constraint %s", ErrDuplicate, pqErr.Constraint)
		}
		return uuid.Nil, fmt.Errorf("failed to insert patient: %w", err)
	}

	s.logger.Debug("Inserted anonymized patient row", zap.String("id", row.ID.String()))
	return row.ID, nil
}

// Ping verifies database connectivity for health checks.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
