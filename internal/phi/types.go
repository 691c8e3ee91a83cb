package phi

import (
	"context"
	"errors"
	"regexp"
)

// Label is a protected-health-information category. The catalog is
// open-ended; the constants below cover the Safe Harbor identifiers the
// built-in recognizers can produce.
type Label string

const (
	LabelPerson              Label = "PERSON"
	LabelPhoneNumber         Label = "PHONE_NUMBER"
	LabelEmailAddress        Label = "EMAIL_ADDRESS"
	LabelSSN                 Label = "US_SSN"
	LabelDateTime            Label = "DATE_TIME"
	LabelLocation            Label = "LOCATION"
	LabelIPAddress           Label = "IP_ADDRESS"
	LabelURL                 Label = "URL"
	LabelAccountNumber       Label = "ACCOUNT_NUMBER"
	LabelMemberID            Label = "MEMBER_ID"
	LabelMedicalRecordNumber Label = "MEDICAL_RECORD_NUMBER"
	LabelFacilityName        Label = "FACILITY_NAME"
	LabelOrganization        Label = "ORGANIZATION"
)

// Entity is a detected span of text classified as a PHI category. Entities
// are consumed once per field evaluation and never persisted.
type Entity struct {
	Label Label   `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Text  string  `json:"-"` // never serialize the original span
	Score float64 `json:"score"`
}

// SpanRef is the cacheable shape of a detection result: offsets and label
// only, no original text. The span text is reconstructed from the input at
// apply time.
type SpanRef struct {
	Label Label   `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// Detector is the pluggable entity detection capability consumed by the
// anonymization engine. An empty allowed set means every label is of
// interest. Failures surface as errors wrapping ErrDetectionUnavailable.
type Detector interface {
	Detect(ctx context.Context, text string, allowed []Label) ([]Entity, error)
}

// ErrDetectionUnavailable reports that the detector failed or timed out for a
// value. The engine treats this as a hard failure for the whole record:
// passing PHI through unredacted is never an acceptable fallback.
var ErrDetectionUnavailable = errors.New("phi detection unavailable")

// ResultCache is an optional cross-request cache of full detection scans,
// keyed by a digest of the text. Implementations must never store the text
// itself. A cache is a performance optimization only; correctness never
// depends on it.
type ResultCache interface {
	Get(ctx context.Context, digest string) ([]SpanRef, bool)
	Store(ctx context.Context, digest string, spans []SpanRef) error
}

// NERBackend is an optional model-based recognizer merged with the pattern
// rules. The ONNX implementation is compiled in with the 'onnx' build tag.
type NERBackend interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
	Ready() bool
}

// DetectionRule represents a single pattern-based PHI detection rule.
// Per-label enablement is tracked by the detector, not here.
type DetectionRule struct {
	Label   Label
	Pattern *regexp.Regexp
	Score   float64
}
