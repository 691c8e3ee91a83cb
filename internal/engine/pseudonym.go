package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// Pseudonymizer produces stable UUID-shaped replacements for identifier
// fields that survived the detection stage unchanged. It is keyed with its
// own secret, independent of the surrogate registry, so the two token spaces
// cannot be cross-correlated.
type Pseudonymizer struct {
	secret []byte
}

// NewPseudonymizer validates the fallback secret and returns a pseudonymizer.
func NewPseudonymizer(secret string) (*Pseudonymizer, error) {
	if secret == "" {
		return nil, fmt.Errorf("pseudonymizer requires a non-empty secret")
	}
	return &Pseudonymizer{secret: []byte(secret)}, nil
}

// Pseudonym maps (fieldPath, value) to a deterministic RFC 4122 shaped
// identifier. The digest's first 16 bytes become the UUID with the version
// and variant bits forced, so the output always parses as a valid UUID.
func (p *Pseudonymizer) Pseudonym(fieldPath, value string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(fieldPath + ":" + normalizeValue(value)))
	digest := mac.Sum(nil)

	var raw [16]byte
	copy(raw[:], digest[:16])
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80

	id, err := uuid.FromBytes(raw[:])
	if err != nil {
		// Unreachable with a 16-byte input; kept for interface symmetry.
		return uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(fieldPath+":"), digest...)).String()
	}
	return id.String()
}
