package engine

// Action classifies a single transformation applied to a field value.
type Action string

const (
	// ActionHash replaces a detected entity span with a surrogate token.
	ActionHash Action = "hash"
	// ActionRedact removes a value entirely (e.g. DOB for patients 90+).
	ActionRedact Action = "redact"
	// ActionGeneralize coarsens a quasi-identifier (dates, addresses).
	ActionGeneralize Action = "generalize"
	// ActionPseudonymize replaces an identifier the detector missed with a
	// fallback UUID-shaped token.
	ActionPseudonymize Action = "pseudonymize"
	// ActionPassthrough copies a value unchanged. Never emitted as an event;
	// present so configured rules can name it.
	ActionPassthrough Action = "passthrough"
	// ActionDrop records a field removed because its value could not be
	// parsed for generalization. Counted separately from successful
	// generalization so malformed data stays visible to operators.
	ActionDrop Action = "drop"
	// ActionOverlapDiscard records an entity span discarded because a
	// higher-confidence span overlapped it.
	ActionOverlapDiscard Action = "overlap_discard"
)

// StrategyKind selects the transformation pipeline for a field path.
type StrategyKind string

const (
	StrategyPassThrough          StrategyKind = "passthrough"
	StrategyDetectAndHash        StrategyKind = "detect_hash"
	StrategyGeneralizeDate       StrategyKind = "generalize_date"
	StrategyGeneralizeAddress    StrategyKind = "generalize_address"
	StrategyFallbackPseudonymize StrategyKind = "fallback_pseudonymize"
)

// DatePolicy selects which generalization applies to a date field.
type DatePolicy string

const (
	// DatePolicyBirth applies the Safe Harbor age rule: 90 and older is
	// removed, younger dates truncate to January 1 of the birth year.
	DatePolicyBirth DatePolicy = "birth"
	// DatePolicyEffective truncates any date to January 1 of its year.
	DatePolicyEffective DatePolicy = "effective"
)

// TransformationEvent describes one substitution applied to one field. Events
// are aggregated into counts immediately; they never carry an original value.
type TransformationEvent struct {
	Entity    string `json:"entity"`
	Action    Action `json:"action"`
	FieldPath string `json:"fieldPath"`
}

// EntityStats summarizes transformations for a single entity label.
type EntityStats struct {
	Count    int            `json:"count"`
	ByAction map[Action]int `json:"byAction"`
}

// AuditSummary aggregates every transformation applied during one Anonymize
// call. It holds counts only and is safe to log, persist, and return to
// callers.
type AuditSummary struct {
	TotalTransformations int                    `json:"totalTransformations"`
	ByAction             map[Action]int         `json:"byAction"`
	ByEntity             map[string]EntityStats `json:"byEntity"`
}
