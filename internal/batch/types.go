package batch

import (
	"strings"
	"time"
)

// Config contains batch pipeline configuration
type Config struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int    `yaml:"worker_count" mapstructure:"worker_count"`
	ProgressReport int    `yaml:"progress_report" mapstructure:"progress_report"`
	ExportPath     string `yaml:"export_path" mapstructure:"export_path"` // optional Parquet output
}

// DefaultConfig returns batch defaults sized for local runs.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      500,
		WorkerCount:    4,
		ProgressReport: 1000,
	}
}

// ExportRow is the flattened anonymized patient row written to the Parquet
// export, one row per processed record, with its audit counts alongside.
type ExportRow struct {
	ID                   string `parquet:"id" json:"id"`
	TenantID             string `parquet:"tenant_id" json:"tenant_id"`
	FacilityID           string `parquet:"facility_id" json:"facility_id"`
	NameFirst            string `parquet:"name_first" json:"name_first"`
	NameLast             string `parquet:"name_last" json:"name_last"`
	Gender               string `parquet:"gender" json:"gender"`
	Status               string `parquet:"status" json:"status"`
	DOB                  string `parquet:"dob" json:"dob"`
	MRN                  string `parquet:"mrn" json:"mrn"`
	LegalMailingAddress  string `parquet:"legal_mailing_address" json:"legal_mailing_address"`
	TotalTransformations int64  `parquet:"total_transformations" json:"total_transformations"`
	HashCount            int64  `parquet:"hash_count" json:"hash_count"`
	GeneralizeCount      int64  `parquet:"generalize_count" json:"generalize_count"`
	RedactCount          int64  `parquet:"redact_count" json:"redact_count"`
	PseudonymizeCount    int64  `parquet:"pseudonymize_count" json:"pseudonymize_count"`
	DropCount            int64  `parquet:"drop_count" json:"drop_count"`
}

// Result represents the outcome of one batch run
type Result struct {
	TotalRecords         int64         `json:"total_records"`
	ProcessedOK          int64         `json:"processed_ok"`
	ProcessedFailed      int64         `json:"processed_failed"`
	Duplicates           int64         `json:"duplicates"`
	TotalTransformations int64         `json:"total_transformations"`
	Duration             time.Duration `json:"duration"`
	ExportPath           string        `json:"export_path,omitempty"`
}

// FileFormat represents supported input file formats
type FileFormat string

const (
	FormatJSONL   FileFormat = "jsonl"
	FormatParquet FileFormat = "parquet"
	FormatUnknown FileFormat = "unknown"
)

// DetectFileFormat detects the input format from the file extension.
func DetectFileFormat(filename string) FileFormat {
	switch {
	case strings.HasSuffix(filename, ".jsonl"), strings.HasSuffix(filename, ".json"), strings.HasSuffix(filename, ".ndjson"):
		return FormatJSONL
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet
	}
	return FormatUnknown
}

// parquetDocument is the input shape for Parquet dumps: one serialized
// patient document per row.
type parquetDocument struct {
	Document string `parquet:"document" json:"document"`
}
