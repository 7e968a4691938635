package kb

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeName canonicalizes a concept name for identity and matching:
// lowercased with runs of whitespace collapsed to single spaces.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// deriveID hashes the given parts into a stable 16-byte hex id.
// Ids come from natural keys, never allocation order, so re-extraction
// of unchanged content always yields the same id.
func deriveID(kind string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// ConceptID derives the deterministic id for a concept from its
// normalized name and source repository.
func ConceptID(name, sourceRepo string) string {
	return deriveID("concept", NormalizeName(name), sourceRepo)
}

// RelationshipID derives the deterministic id for an edge. Undirected
// kinds are canonicalized so both endpoint orders yield the same id.
func RelationshipID(kind RelationKind, from, to string) string {
	from, to = CanonicalEndpoints(kind, from, to)
	return deriveID("relationship", string(kind), from, to)
}

// CanonicalEndpoints orders the endpoints of undirected edges so each
// undirected pair is stored exactly once. Directed kinds pass through.
func CanonicalEndpoints(kind RelationKind, from, to string) (string, string) {
	if kind.Undirected() && to < from {
		return to, from
	}
	return from, to
}

// PrincipleID derives the deterministic id for a principle from its
// normalized statement. Re-promotion of the same statement is a no-op.
func PrincipleID(statement string) string {
	return deriveID("principle", NormalizeName(statement))
}

// PatternID derives the deterministic id for a pattern from its shape
// statement.
func PatternID(statement string) string {
	return deriveID("pattern", NormalizeName(statement))
}

// ContentHash hashes raw file content for idempotence checks.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
