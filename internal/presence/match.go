package presence

import (
	"strings"

	"kospresensi/internal/geocode"
)

// normalizeArea lowercases an administrative area name, strips the
// "kecamatan"/"kabupaten"/"kota" prefixes, drops any trailing
// comma-delimited suffix, and trims. The not-found sentinel normalizes to
// the empty string so it can never match.
func normalizeArea(s string) string {
	if s == "" || s == geocode.NotFound {
		return ""
	}
	s = strings.ToLower(s)
	for _, token := range []string{"kecamatan", "kabupaten", "kota"} {
		if idx := strings.Index(s, token); idx >= 0 {
			s = s[:idx] + strings.TrimLeft(s[idx+len(token):], " ")
		}
	}
	if idx := strings.Index(s, ","); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// containsEither reports whether either normalized string contains the
// other; empty strings never match.
func containsEither(a, b string) bool {
	return a != "" && b != "" && (strings.Contains(a, b) || strings.Contains(b, a))
}

// LocationMatches compares registered destination names against the names
// detected from a swafoto's coordinates. City names are compared first,
// district names as a fallback. Advisory only: a mismatch flags the
// submission for human review, it does not block anything.
func LocationMatches(registeredKota, registeredKecamatan, detectedKota, detectedKecamatan string) bool {
	if containsEither(normalizeArea(registeredKota), normalizeArea(detectedKota)) {
		return true
	}
	return containsEither(normalizeArea(registeredKecamatan), normalizeArea(detectedKecamatan))
}

// LocationMatches applies the heuristic to this verification's snapshot
// and detected fields.
func (v Verification) LocationMatches() bool {
	return LocationMatches(v.Kota, v.Kecamatan, v.KotaSwafoto, v.KecamatanSwafoto)
}
