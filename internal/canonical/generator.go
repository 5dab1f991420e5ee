// Package canonical derives and allocates registry-wide canonical IDs.
//
// An individual ID is built from stable attributes of the registrant:
// the first-name initial, the letters of the last name, the last four
// digits of the primary phone, and the first three letters of the email
// domain. Organization IDs follow the same recipe over the organization
// name and carry the ORG- namespace prefix. Names are kept whole; the
// body format's upper bound is the only thing that trims them.
package canonical

import (
	"strings"
	"unicode"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

const (
	phoneDigits   = 4
	domainLetters = 3
	domainPad     = 'X'
	phonePad      = '0'
	firstFallback = "X"
)

// DeriveIndividual computes the base canonical ID for an individual
// registrant. The result satisfies the canonical format before any
// uniqueness suffix is appended. A first name without letters falls
// back to the X initial.
func DeriveIndividual(firstName, lastName, phone, email string) (domain.CanonicalID, error) {
	initial := firstFallback
	if first := letters(firstName); first != "" {
		initial = first[:1]
	}
	last := letters(lastName)
	if last == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "last name must contain a letter")
	}
	last = truncate(last, domain.MaxBodyLen-len(initial)-phoneDigits-domainLetters)
	body := initial + last + phonePart(phone) + domainPart(email)
	if !domain.ValidCanonicalBody(body) {
		return "", dErrors.New(dErrors.CodeInternal, "derived id violates canonical format")
	}
	return domain.CanonicalID(body), nil
}

// DeriveOrganization computes the base canonical ID for an organization.
// The returned ID carries the ORG- namespace prefix.
func DeriveOrganization(name, phone, email string) (domain.CanonicalID, error) {
	org := letters(name)
	if org == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "organization name must contain a letter")
	}
	org = truncate(org, domain.MaxBodyLen-phoneDigits-domainLetters)
	body := org + phonePart(phone) + domainPart(email)
	if !domain.ValidCanonicalBody(body) {
		return "", dErrors.New(dErrors.CodeInternal, "derived id violates canonical format")
	}
	return domain.CanonicalID(domain.OrgPrefix + body), nil
}

// letters keeps ASCII letters only, uppercased.
func letters(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			sb.WriteRune(unicode.ToUpper(r))
		} else if r >= 'A' && r <= 'Z' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// phonePart takes the last four digits of the phone number, left-padded
// with zeros when fewer digits are present.
func phonePart(phone string) string {
	var digits []byte
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) > phoneDigits {
		digits = digits[len(digits)-phoneDigits:]
	}
	for len(digits) < phoneDigits {
		digits = append([]byte{phonePad}, digits...)
	}
	return string(digits)
}

// domainPart takes the first three letters of the email's domain,
// X-padded when the domain is shorter.
func domainPart(email string) string {
	at := strings.LastIndexByte(email, '@')
	var dom string
	if at >= 0 {
		dom = email[at+1:]
	}
	part := truncate(letters(dom), domainLetters)
	for len(part) < domainLetters {
		part += string(rune(domainPad))
	}
	return part
}
