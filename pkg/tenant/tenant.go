// Package tenant provides tenant identifier handling for the multi-tenant
// data-access core: sanitization of caller-supplied identifiers, request
// context carriage, and the shared error taxonomy.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

// maxIDLen is the maximum length for a sanitized tenant identifier,
// following K8s DNS label conventions.
const maxIDLen = 63

// sanitizedRe matches an already-sanitized identifier.
var sanitizedRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Sanitize normalizes a caller-supplied tenant identifier to the safe
// charset [a-z0-9_-]. The result is safe to interpolate into generated
// schema names, database names, and connection-string segments. Sanitize
// is idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
//
// Returns ErrInvalidTenantID for an empty identifier, an identifier that
// exceeds the maximum length, or one that contains no alphanumeric
// characters at all.
func Sanitize(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty tenant id", ErrInvalidTenantID)
	}
	if len(id) > maxIDLen {
		return "", fmt.Errorf("%w: tenant id exceeds %d characters", ErrInvalidTenantID, maxIDLen)
	}

	var b strings.Builder
	b.Grow(len(id))
	hasAlnum := false
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			hasAlnum = true
			b.WriteRune(r)
		case r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if !hasAlnum {
		return "", fmt.Errorf("%w: tenant id %q has no usable characters", ErrInvalidTenantID, id)
	}
	return b.String(), nil
}

// IsSanitized reports whether id is already in the sanitized form that
// Sanitize produces.
func IsSanitized(id string) bool {
	return id != "" && len(id) <= maxIDLen && sanitizedRe.MatchString(id)
}
