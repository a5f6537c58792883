package entityresolve

import (
	"strconv"
	"strings"
)

// DateMatchMode controls how two date-like strings are compared (spec
// §9 supplemented feature "date-aware discriminator scoring"). Ported
// from search_engine.rs's DateMatchMode.
type DateMatchMode string

const (
	DateExact      DateMatchMode = "exact"
	DateYearOnly   DateMatchMode = "year_only"
	DateYearOrExact DateMatchMode = "year_or_exact"
)

// ExtractYear pulls a 4-digit year (1900-2100) out of date_str, trying
// ISO (YYYY-MM-DD), plain-year, and DD/MM/YYYY forms before scanning for
// any 4-digit run in range.
func ExtractYear(dateStr string) (int, bool) {
	s := strings.TrimSpace(dateStr)
	if len(s) >= 4 {
		if y, err := strconv.Atoi(s[:4]); err == nil && y >= 1900 && y <= 2100 {
			if len(s) == 4 || s[4] == '-' {
				return y, true
			}
		}
	}
	if len(s) == 10 && s[2] == '/' && s[5] == '/' {
		if y, err := strconv.Atoi(s[6:10]); err == nil && y >= 1900 && y <= 2100 {
			return y, true
		}
	}
	for i := 0; i+4 <= len(s); i++ {
		chunk := s[i : i+4]
		allDigit := true
		for _, c := range chunk {
			if c < '0' || c > '9' {
				allDigit = false
				break
			}
		}
		if !allDigit {
			continue
		}
		if y, err := strconv.Atoi(chunk); err == nil && y >= 1900 && y <= 2100 {
			return y, true
		}
	}
	return 0, false
}

// NormalizeDate passes ISO (YYYY-MM-DD) and plain-year strings through
// unchanged; anything else is returned trimmed but otherwise
// uninterpreted, since DD/MM vs MM/DD ambiguity cannot be resolved
// without a locale.
func NormalizeDate(dateStr string) string {
	s := strings.TrimSpace(dateStr)
	if len(s) == 10 && s[4] == '-' && s[7] == '-' {
		return s
	}
	if len(s) == 4 {
		if _, err := strconv.Atoi(s); err == nil {
			return s
		}
	}
	return s
}

// CompareDates scores two date-like strings 0..1 according to mode.
func CompareDates(query, candidate string, mode DateMatchMode) float64 {
	switch mode {
	case DateYearOnly:
		qy, qok := ExtractYear(query)
		cy, cok := ExtractYear(candidate)
		if qok && cok && qy == cy {
			return 1.0
		}
		return 0.0
	case DateYearOrExact:
		if NormalizeDate(query) == NormalizeDate(candidate) {
			return 1.0
		}
		qy, qok := ExtractYear(query)
		cy, cok := ExtractYear(candidate)
		if qok && cok && qy == cy {
			return 0.8
		}
		return 0.0
	default: // DateExact
		if NormalizeDate(query) == NormalizeDate(candidate) {
			return 1.0
		}
		return 0.0
	}
}

// CompareDiscriminatorValues scores query against candidate for one
// named field. Date-like fields ("date", "dob", "birth" substrings)
// delegate to CompareDates; everything else is case-insensitive exact
// (1.0), substring-contains-either-way (0.7), or no match (0.0).
func CompareDiscriminatorValues(field, query, candidate string, mode DateMatchMode) float64 {
	lowerField := strings.ToLower(field)
	if strings.Contains(lowerField, "date") || strings.Contains(lowerField, "dob") || strings.Contains(lowerField, "birth") {
		return CompareDates(query, candidate, mode)
	}

	q, c := strings.ToLower(strings.TrimSpace(query)), strings.ToLower(strings.TrimSpace(candidate))
	if q == "" || c == "" {
		return 0.0
	}
	if q == c {
		return 1.0
	}
	if strings.Contains(c, q) || strings.Contains(q, c) {
		return 0.7
	}
	return 0.0
}

// applyDiscriminators boosts each match's score by a selectivity-weighted
// discriminator comparison, up to 30% of the base score, mirroring
// search_engine.rs's score_match_with_data. Matches without Data are
// passed through unchanged.
func applyDiscriminators(matches []Match, discriminators []DiscriminatorQuery) []Match {
	if len(discriminators) == 0 {
		return matches
	}

	out := make([]Match, len(matches))
	copy(out, matches)

	for i, m := range out {
		if len(m.Data) == 0 {
			continue
		}
		var weightedSum, selectivitySum float64
		for _, d := range discriminators {
			candVal, ok := m.Data[d.Field]
			if !ok {
				continue
			}
			score := CompareDiscriminatorValues(d.Field, d.Value, candVal, d.Mode)
			weight := d.Selectivity
			if weight <= 0 {
				weight = 1.0
			}
			weightedSum += score * weight
			selectivitySum += weight
		}
		if selectivitySum == 0 {
			continue
		}
		boost := (weightedSum / selectivitySum) * 0.3
		out[i].Score = m.Score + boost*m.Score
	}
	return out
}

// hasRequiredMismatch reports whether any discriminator is Required and
// at least one candidate that supplied a value for that field fails to
// match it. Missing data is not itself a failure (spec's "required"
// only excludes candidates that actively contradict the query value).
func hasRequiredMismatch(matches []Match, discriminators []DiscriminatorQuery) bool {
	for _, d := range discriminators {
		if !d.Required {
			continue
		}
		for _, m := range matches {
			candVal, ok := m.Data[d.Field]
			if !ok {
				continue
			}
			if CompareDiscriminatorValues(d.Field, d.Value, candVal, d.Mode) == 0.0 {
				return true
			}
		}
	}
	return false
}

// filterRequiredDiscriminators drops candidates that contradict a
// Required discriminator's value.
func filterRequiredDiscriminators(matches []Match, discriminators []DiscriminatorQuery) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		ok := true
		for _, d := range discriminators {
			if !d.Required {
				continue
			}
			candVal, has := m.Data[d.Field]
			if !has {
				continue
			}
			if CompareDiscriminatorValues(d.Field, d.Value, candVal, d.Mode) == 0.0 {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}
