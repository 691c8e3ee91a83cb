package phi

import "regexp"

// GetDefaultRules returns the built-in recognizer table. Scores mirror the
// relative precision of each pattern: formatted identifiers score high,
// context-free heuristics like bare capitalized words score low and rely on
// the per-field label allow-lists to stay precise.
func GetDefaultRules() []DetectionRule {
	return []DetectionRule{
		{
			Label:   LabelEmailAddress,
			Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			Score:   0.9,
		},
		{
			Label:   LabelSSN,
			Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Score:   0.85,
		},
		{
			Label:   LabelPhoneNumber,
			Pattern: regexp.MustCompile(`\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}\b`),
			Score:   0.75,
		},
		{
			Label:   LabelIPAddress,
			Pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			Score:   0.7,
		},
		{
			Label:   LabelURL,
			Pattern: regexp.MustCompile(`\bhttps?://[^\s"'<>]+`),
			Score:   0.7,
		},
		{
			Label:   LabelDateTime,
			Pattern: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{4}\b`),
			Score:   0.6,
		},
		{
			// Insurance member identifiers mix uppercase letters and digits.
			Label:   LabelMemberID,
			Pattern: regexp.MustCompile(`\b[A-Z]{2,5}[0-9]{4,10}\b`),
			Score:   0.5,
		},
		{
			Label:   LabelFacilityName,
			Pattern: regexp.MustCompile(`\b[A-Z][A-Za-z]+(?:\s[A-Z][A-Za-z]+){0,3}\s(?:Center|Clinic|Hospital|Home|Facility)\b`),
			Score:   0.45,
		},
		{
			// Capitalized name tokens. Low precision on free text, which is
			// why name fields restrict their rules to the PERSON label and
			// note fields accept the extra recall.
			Label:   LabelPerson,
			Pattern: regexp.MustCompile(`\b[A-Z][a-z]{1,30}\b`),
			Score:   0.4,
		},
		{
			Label:   LabelAccountNumber,
			Pattern: regexp.MustCompile(`\b\d{6,12}\b`),
			Score:   0.3,
		},
	}
}
