package domain

import (
	"regexp"
	"strings"

	dErrors "dataregistry/pkg/domain-errors"
)

// CanonicalID is the public, deterministic identifier assigned to a user or
// organization. Individual IDs look like JSMITH1234ACM; organization IDs carry
// the ORG- namespace prefix in front of the same body format.
type CanonicalID string

// OrgPrefix namespaces organization canonical IDs.
const OrgPrefix = "ORG-"

// MaxBodyLen is the upper bound the body format allows.
const MaxBodyLen = 16

// canonicalBody is the format invariant for the ID body: first initial
// followed by 4 to 15 alphanumerics (lastname letters, phone digits, email
// domain hash).
var canonicalBody = regexp.MustCompile(`^[A-Z][A-Z0-9]{4,15}$`)

// ParseCanonicalID validates a canonical ID arriving at a trust boundary.
// Both namespaces are accepted; use IsOrg to distinguish them.
func ParseCanonicalID(s string) (CanonicalID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "canonical id cannot be empty")
	}
	body := s
	if strings.HasPrefix(s, OrgPrefix) {
		body = s[len(OrgPrefix):]
	}
	if !canonicalBody.MatchString(body) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "canonical id does not match the required format")
	}
	return CanonicalID(s), nil
}

// ValidCanonicalBody reports whether the bare ID body (no ORG- prefix)
// satisfies the format invariant.
func ValidCanonicalBody(body string) bool {
	return canonicalBody.MatchString(body)
}

// IsOrg reports whether the ID belongs to the organization namespace.
func (c CanonicalID) IsOrg() bool {
	return strings.HasPrefix(string(c), OrgPrefix)
}

// Body strips the namespace prefix, returning the format-constrained body.
func (c CanonicalID) Body() string {
	return strings.TrimPrefix(string(c), OrgPrefix)
}

func (c CanonicalID) String() string { return string(c) }

// IsNil returns true when the canonical ID is empty.
func (c CanonicalID) IsNil() bool { return c == "" }
