package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicate reports that an insert collided with an existing patient row.
var ErrDuplicate = errors.New("duplicate patient")

// PatientRow is an anonymized patient record in storage shape. Every field
// has already passed through the engine; the storage layer never sees
// original values.
type PatientRow struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	TenantID            uuid.UUID       `db:"tenant_id" json:"tenant_id"`
	FacilityID          uuid.UUID       `db:"facility_id" json:"facility_id"`
	NameFirst           string          `db:"name_first" json:"name_first"`
	NameLast            string          `db:"name_last" json:"name_last"`
	Gender              string          `db:"gender" json:"gender"`
	Status              string          `db:"status" json:"status"`
	DOB                 *string         `db:"dob" json:"dob,omitempty"`
	MRN                 *string         `db:"mrn" json:"mrn,omitempty"`
	LegalMailingAddress json.RawMessage `db:"legal_mailing_address" json:"legal_mailing_address,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// DefaultPatientStatus is assigned to every anonymized row; de-identified
// records never represent an active patient.
const DefaultPatientStatus = "inactive"

// Storage persists anonymized patient rows. Implementations: Postgres for the
// database mode, an SQL file writer for dry runs, and a no-op for disabled
// persistence.
type Storage interface {
	InsertPatient(ctx context.Context, row *PatientRow) (uuid.UUID, error)
	Close() error
}

// Discard is the disabled-persistence storage.
type Discard struct{}

func (Discard) InsertPatient(ctx context.Context, row *PatientRow) (uuid.UUID, error) {
	if row.ID != uuid.Nil {
		return row.ID, nil
	}
	return uuid.New(), nil
}

func (Discard) Close() error { return nil }
