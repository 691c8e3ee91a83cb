package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var surrogatePrefixPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// SurrogateRegistry maps a normalized original value to a deterministic
// surrogate token. The token is a pure function of (secret, label, value), so
// identical inputs yield identical surrogates across calls, processes, and
// records. The registry holds configuration only; it never retains a value
// it was asked about. Safe for concurrent use.
type SurrogateRegistry struct {
	secret []byte
	prefix string
	length int
}

// NewSurrogateRegistry validates the token shape configuration and returns a
// registry. Invalid configuration fails here, at startup, never per record.
func NewSurrogateRegistry(secret, prefix string, length int) (*SurrogateRegistry, error) {
	if secret == "" {
		return nil, fmt.Errorf("surrogate registry requires a non-empty secret")
	}
	if length < 1 || length > sha256.Size*2 {
		return nil, fmt.Errorf("invalid surrogate hash length %d (must be 1-%d)", length, sha256.Size*2)
	}
	if !surrogatePrefixPattern.MatchString(prefix) {
		return nil, fmt.Errorf("invalid surrogate prefix %q", prefix)
	}
	return &SurrogateRegistry{
		secret: []byte(secret),
		prefix: prefix,
		length: length,
	}, nil
}

// SurrogateFor returns the deterministic surrogate token for a detected
// value, e.g. anon_3773d139b147.
func (r *SurrogateRegistry) SurrogateFor(label, value string) string {
	digest := r.digest(label + ":" + normalizeValue(value))
	return r.prefix + "_" + hex.EncodeToString(digest)[:r.length]
}

// surrogateMemo caches surrogate tokens for a single record-processing call.
// Each Anonymize call creates its own memo and drops it when the call
// returns, so the normalized originals in its key set live no longer than
// the record they came from. Not safe for concurrent use; a call walks its
// record on one goroutine.
type surrogateMemo struct {
	registry *SurrogateRegistry
	tokens   map[string]string
}

func newSurrogateMemo(registry *SurrogateRegistry) *surrogateMemo {
	return &surrogateMemo{registry: registry, tokens: make(map[string]string)}
}

func (m *surrogateMemo) surrogateFor(label, value string) string {
	key := label + ":" + normalizeValue(value)
	if token, ok := m.tokens[key]; ok {
		return token
	}
	token := m.registry.SurrogateFor(label, value)
	m.tokens[key] = token
	return token
}

// Seed derives a deterministic 64-bit seed from (secret, label, value). The
// address synthesis transforms use it to index replacement tables with the
// same keyed-hash construction as the surrogate tokens.
func (r *SurrogateRegistry) Seed(label, value string) uint64 {
	digest := r.digest(label + ":" + normalizeValue(value))
	return binary.BigEndian.Uint64(digest[:8])
}

func (r *SurrogateRegistry) digest(message string) []byte {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// normalizeValue collapses insignificant variation before keying so that
// " Nick " and "Nick" share one surrogate.
func normalizeValue(value string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(value)), " ")
}
