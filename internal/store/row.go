package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rfranks/ai-chat-ehr/internal/engine"
)

// RowFromRecord flattens an already-sanitized record into storage shape.
// Every value read here is a surrogate, generalized, or passthrough-safe
// field; originals never reach this function.
func RowFromRecord(sanitized *engine.Value) *PatientRow {
	if sanitized == nil || sanitized.Kind() != engine.KindObject {
		return nil
	}

	first, last := splitName(stringAt(sanitized, "name"))

	gender := strings.ToLower(stringAt(sanitized, "gender"))
	if gender == "" {
		gender = "unknown"
	}

	row := &PatientRow{
		TenantID:   CoerceUUID(stringAt(sanitized, "tenantId"), "tenant"),
		FacilityID: CoerceUUID(stringAt(sanitized, "facilityId"), "facility"),
		NameFirst:  first,
		NameLast:   last,
		Gender:     gender,
		Status:     DefaultPatientStatus,
	}

	if dob := stringAt(sanitized, "dob"); dob != "" {
		row.DOB = &dob
	}
	if mrn := stringAt(sanitized, "mrn"); mrn != "" {
		row.MRN = &mrn
	}

	if coverage, ok := sanitized.Field("coverage"); ok {
		for _, entry := range coverage.Items() {
			if address, ok := entry.Field("address"); ok && !address.IsNull() {
				if encoded, err := address.MarshalJSON(); err == nil {
					row.LegalMailingAddress = encoded
				}
				break
			}
		}
	}

	return row
}

// CoerceUUID parses a UUID or derives a stable one from the value, matching
// how tenant and facility references are normalized for the patient table.
func CoerceUUID(value, kind string) uuid.UUID {
	token := strings.TrimSpace(value)
	if token == "" {
		token = kind + ":unknown"
	}
	if id, err := uuid.Parse(token); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%s", kind, token)))
}

func stringAt(node *engine.Value, key string) string {
	member, ok := node.Field(key)
	if !ok {
		return ""
	}
	value, _ := member.StringValue()
	return value
}

func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
