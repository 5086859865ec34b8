// Package pattern holds the learning rules for signal-shape → target
// associations: key normalisation, confidence scoring and blending, and the
// activation policy.
package pattern

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Pattern types the engine learns.
const (
	TypeSenderDomain   = "sender_domain"
	TypeProjectMention = "project_mention"
	TypeContactDomain  = "contact_domain"
)

// Target types a pattern can point at.
const (
	TargetProject = "project"
	TargetCompany = "company"
)

// NormalizeKey canonicalises free text so equivalent keys collide:
// NFKC, case folding and collapsed whitespace. A Caser may keep state, so
// each call builds its own; batch generation calls this concurrently.
func NormalizeKey(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeDomain reduces an email address, URL or host to its bare domain.
func NormalizeDomain(s string) string {
	s = NormalizeKey(s)
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexAny(s, "/?#>"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.Trim(s, ". ")
}
