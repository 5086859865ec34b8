package handler

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/studio-suggest/internal/model"
)

var (
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	amountRe = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d+)?)\s*([kK]\b)?`)
)

// fields resolves handler inputs for one suggestion. Validate, Preview and
// Apply all read through it, so they agree on where data comes from: the
// structured payload first, then the suggestion's title and description.
type fields struct {
	s       *model.Suggestion
	payload map[string]any
}

func newFields(s *model.Suggestion) fields {
	return fields{s: s, payload: s.PayloadMap()}
}

// str returns the first non-empty payload value among keys.
func (f fields) str(keys ...string) string {
	for _, k := range keys {
		switch v := f.payload[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

// num returns the first numeric payload value among keys. Numeric strings
// such as "$50,000" are accepted.
func (f fields) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := f.payload[k].(type) {
		case float64:
			return v, true
		case string:
			if n, ok := parseAmount(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// projectCode resolves the project a suggestion refers to.
func (f fields) projectCode() string {
	if v := f.str("project_code", "project"); v != "" {
		return v
	}
	return f.s.RelatedEntityCode
}

// title falls back to the suggestion title.
func (f fields) title() string {
	if v := f.str("title", "task", "action_item"); v != "" {
		return v
	}
	return strings.TrimSpace(f.s.Title)
}

// email falls back to the first address in the description, then title.
func (f fields) email() string {
	if v := f.str("email", "contact_email"); v != "" {
		return strings.ToLower(v)
	}
	for _, text := range []string{f.s.Description, f.s.Title} {
		if m := emailRe.FindString(text); m != "" {
			return strings.ToLower(m)
		}
	}
	return ""
}

// fee falls back to the first dollar amount in the description, then title.
func (f fields) fee() (float64, bool) {
	if n, ok := f.num("new_fee", "fee", "amount"); ok {
		return n, true
	}
	for _, text := range []string{f.s.Description, f.s.Title} {
		if n, ok := parseAmount(text); ok {
			return n, true
		}
	}
	return 0, false
}

// parseAmount reads "$50,000", "$50k" or a bare number. NaN and
// infinities are not amounts.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	}
	m := amountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if m[2] != "" {
		n *= 1000
	}
	return n, true
}

// missingFields returns the names that did not resolve, sorted.
func missingFields(resolved map[string]bool) []string {
	var out []string
	for name, ok := range resolved {
		if !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
