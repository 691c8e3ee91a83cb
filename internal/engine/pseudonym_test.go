package engine

import (
	"testing"

	"github.com/google/uuid"
)

func TestPseudonymShape(t *testing.T) {
	pseudo, err := NewPseudonymizer("fallback-secret")
	if err != nil {
		t.Fatalf("NewPseudonymizer: %v", err)
	}

	id := pseudo.Pseudonym("mrn", "ZQ-9X7")
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("output %q is not a UUID: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("version = %d, want 4", parsed.Version())
	}
	if parsed.Variant() != uuid.RFC4122 {
		t.Errorf("variant = %v, want RFC 4122", parsed.Variant())
	}
}

func TestPseudonymDeterminism(t *testing.T) {
	pseudo, _ := NewPseudonymizer("fallback-secret")
	if pseudo.Pseudonym("mrn", "ZQ-9X7") != pseudo.Pseudonym("mrn", "ZQ-9X7") {
		t.Errorf("same input must map to the same pseudonym")
	}
	if pseudo.Pseudonym("mrn", " ZQ-9X7 ") != pseudo.Pseudonym("mrn", "ZQ-9X7") {
		t.Errorf("surrounding whitespace must normalize away")
	}
}

func TestPseudonymKeyedByFieldPath(t *testing.T) {
	pseudo, _ := NewPseudonymizer("fallback-secret")
	if pseudo.Pseudonym("mrn", "ZQ-9X7") == pseudo.Pseudonym("memberId", "ZQ-9X7") {
		t.Errorf("same value in different fields must map to different pseudonyms")
	}
}

func TestPseudonymKeyedBySecret(t *testing.T) {
	a, _ := NewPseudonymizer("secret-a")
	b, _ := NewPseudonymizer("secret-b")
	if a.Pseudonym("mrn", "ZQ-9X7") == b.Pseudonym("mrn", "ZQ-9X7") {
		t.Errorf("different secrets must produce different pseudonyms")
	}
}

func TestNewPseudonymizerRejectsEmptySecret(t *testing.T) {
	if _, err := NewPseudonymizer(""); err == nil {
		t.Errorf("expected error")
	}
}
