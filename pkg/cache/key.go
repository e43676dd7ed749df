package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// componentHashLen is the number of hex characters kept from each
// component's SHA-256 digest. 64 bits per component is ample for a cache
// fingerprint and keeps the string form readable in logs and storage.
const componentHashLen = 16

// volatileContextFields are excluded from key generation: they change
// between semantically identical requests and would defeat caching.
var volatileContextFields = map[string]bool{
	"timestamp":     true,
	"last_activity": true,
	"last_updated":  true,
	"request_id":    true,
}

// Key is the structured, order-independent fingerprint of an evaluation
// request. Equality is structural: two semantically identical requests
// produce identical keys regardless of map-field ordering in the input.
type Key struct {
	// Operation is the raw operation text.
	Operation string

	// ParamsHash is the digest of the normalized parameters.
	ParamsHash string

	// UserHash is the digest of the stable user-context fields.
	UserHash string

	// SessionHash is the digest of the stable session-context fields.
	SessionHash string

	// SecurityLevel tags the security posture the decision was made under.
	SecurityLevel string
}

// String returns the canonical string form used for persistence and
// invalidation matching: "operation:paramsHash:userHash:sessionHash:level".
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		k.Operation, k.ParamsHash, k.UserHash, k.SessionHash, k.SecurityLevel)
}

// ParseKey reconstructs a Key from its string form. Operations may contain
// colons, so the string is split from the right: the last four segments are
// the two context hashes, the parameter hash, and the security level.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 5 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	n := len(parts)
	return Key{
		Operation:     strings.Join(parts[:n-4], ":"),
		ParamsHash:    parts[n-4],
		UserHash:      parts[n-3],
		SessionHash:   parts[n-2],
		SecurityLevel: parts[n-1],
	}, nil
}

// GenerateKey builds the cache key for an evaluation request.
//
// Parameters are normalized before hashing: strings are trimmed,
// filesystem paths are cleaned, and nested maps/sequences are serialized
// with sorted keys. User and session context are hashed over their stable
// fields only; volatile fields such as timestamps and request IDs are
// dropped first.
func GenerateKey(operation string, parameters, userCtx, sessionCtx map[string]any, securityLevel string) Key {
	return Key{
		Operation:     strings.TrimSpace(operation),
		ParamsHash:    hashComponent(normalizeMap(parameters)),
		UserHash:      hashComponent(stableFields(userCtx)),
		SessionHash:   hashComponent(stableFields(sessionCtx)),
		SecurityLevel: securityLevel,
	}
}

// hashComponent serializes the value canonically and returns a truncated
// hex SHA-256 digest. encoding/json emits map keys in sorted order, which
// gives the canonical form for free once values are normalized.
func hashComponent(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Unserializable values (channels, funcs) should never reach a
		// cache key; fall back to a digest of the error text so key
		// generation stays total.
		data = []byte(fmt.Sprintf("unserializable:%v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:componentHashLen]
}

// normalizeMap returns a copy of m with every value normalized. A nil map
// normalizes to an empty one so nil and empty hash identically.
func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

// normalizeValue canonicalizes a single parameter value: strings are
// trimmed and path-like strings cleaned, nested maps and slices are
// normalized recursively, scalars pass through unchanged.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if isPathLike(s) {
			s = filepath.Clean(s)
		}
		return s
	case map[string]any:
		return normalizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// isPathLike reports whether a string is plausibly a filesystem path.
// Only unambiguous forms are cleaned; free text containing slashes is
// left alone so command lines are not rewritten.
func isPathLike(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	return strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../") ||
		strings.HasPrefix(s, "~/")
}

// stableFields drops volatile fields from a context map and normalizes
// the remainder.
func stableFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if volatileContextFields[k] {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}
