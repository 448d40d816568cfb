package core

// mapping.go binds source headers to canonical fields. Resolution is a pure
// function of (headers, definition, overrides):
//
//  1. Overrides bind or ignore named headers.
//  2. Exact pass: normalized header equals a field name or alias.
//  3. Fuzzy pass: normalized header contains, or is contained in, an alias
//     of at least fuzzyMinLen runes. The longest alias wins.
//
// Each field binds at most once, to the leftmost header that claims it.

import (
	"slices"
	"strings"
	"unicode"
)

// fuzzyMinLen is the minimum normalized length for substring matching.
const fuzzyMinLen = 4

// IgnoreColumn as an override target leaves the header unmapped.
const IgnoreColumn = "-"

// MatchKind records how a header was bound.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchFuzzy    MatchKind = "fuzzy"
	MatchOverride MatchKind = "override"
)

// MappingEntry binds one source column to one target field.
type MappingEntry struct {
	SourceHeader string        `json:"sourceHeader"`
	SourceIndex  int           `json:"sourceIndex"`
	TargetField  string        `json:"targetField"`
	TargetTable  string        `json:"targetTable"`
	Transform    TransformKind `json:"transform"`
	Match        MatchKind     `json:"match"`
}

// ColumnMapping is ordered by source column position.
type ColumnMapping []MappingEntry

// Field returns the entry bound to a target field.
func (m ColumnMapping) Field(name string) (MappingEntry, bool) {
	for _, e := range m {
		if e.TargetField == name {
			return e, true
		}
	}
	return MappingEntry{}, false
}

// Unmapped returns the headers no entry reads from.
func (m ColumnMapping) Unmapped(headers []string) []string {
	used := make(map[int]bool, len(m))
	for _, e := range m {
		used[e.SourceIndex] = true
	}
	var out []string
	for i, h := range headers {
		if !used[i] && strings.TrimSpace(h) != "" {
			out = append(out, h)
		}
	}
	return out
}

// Missing returns required fields that are not mapped. Unsatisfied one-of
// groups are reported as "a|b".
func (m ColumnMapping) Missing(def *ImportDefinition) []string {
	var missing []string
	oneOf := map[string][]string{}
	satisfied := map[string]bool{}
	var order []string

	for _, f := range def.Fields {
		_, mapped := m.Field(f.Name)
		if f.OneOf != "" {
			if _, seen := oneOf[f.OneOf]; !seen {
				order = append(order, f.OneOf)
			}
			oneOf[f.OneOf] = append(oneOf[f.OneOf], f.Name)
			if mapped {
				satisfied[f.OneOf] = true
			}
			continue
		}
		if f.Required && !mapped {
			missing = append(missing, f.Name)
		}
	}
	for _, tag := range order {
		if !satisfied[tag] {
			missing = append(missing, strings.Join(oneOf[tag], "|"))
		}
	}
	return missing
}

// RequireFields returns *MissingRequiredFieldError when Missing is non-empty.
func (m ColumnMapping) RequireFields(def *ImportDefinition) error {
	if missing := m.Missing(def); len(missing) > 0 {
		return &MissingRequiredFieldError{Fields: missing}
	}
	return nil
}

// Clone returns a copy that shares nothing with m.
func (m ColumnMapping) Clone() ColumnMapping {
	if m == nil {
		return nil
	}
	return slices.Clone(m)
}

// NormalizeHeader folds a header for comparison: accents removed,
// lowercased, and everything but letters and digits dropped.
func NormalizeHeader(s string) string {
	s = foldAccents(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveMapping builds the ColumnMapping for headers. overrides maps a source
// header to a target field name; IgnoreColumn or "" drops the column.
func ResolveMapping(headers []string, def *ImportDefinition, overrides map[string]string) (ColumnMapping, error) {
	bound := make(map[int]MappingEntry, len(headers))
	taken := make(map[string]bool, len(def.Fields))
	skipped := make(map[int]bool)

	// Overrides, applied in header order for determinism.
	if len(overrides) > 0 {
		keys := make([]string, 0, len(overrides))
		for k := range overrides {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, header := range keys {
			idx := findHeader(headers, header)
			if idx < 0 {
				return nil, &UnknownColumnError{Header: header}
			}
			target := strings.TrimSpace(overrides[header])
			if target == "" || target == IgnoreColumn {
				skipped[idx] = true
				continue
			}
			f, ok := def.Field(target)
			if !ok {
				return nil, &UnknownFieldError{ImportType: def.Type, Field: target}
			}
			if prev, dup := bound[idx]; dup {
				// Two overrides for one header (raw and normalized spelling): last wins.
				delete(taken, prev.TargetField)
			}
			bound[idx] = entryFor(def, f, headers[idx], idx, MatchOverride)
			taken[f.Name] = true
		}
	}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}

	free := func(i int) bool {
		_, b := bound[i]
		return !b && !skipped[i] && normalized[i] != ""
	}

	// Exact pass.
	for i := range headers {
		if !free(i) {
			continue
		}
		for _, f := range def.Fields {
			if taken[f.Name] {
				continue
			}
			if exactMatch(normalized[i], f) {
				bound[i] = entryFor(def, f, headers[i], i, MatchExact)
				taken[f.Name] = true
				break
			}
		}
	}

	// Fuzzy pass.
	for i := range headers {
		if !free(i) || len([]rune(normalized[i])) < fuzzyMinLen {
			continue
		}
		bestLen := 0
		var best *FieldSpec
		for fi := range def.Fields {
			f := &def.Fields[fi]
			if taken[f.Name] {
				continue
			}
			if n := fuzzyScore(normalized[i], *f); n > bestLen {
				bestLen, best = n, f
			}
		}
		if best != nil {
			bound[i] = entryFor(def, *best, headers[i], i, MatchFuzzy)
			taken[best.Name] = true
		}
	}

	mapping := make(ColumnMapping, 0, len(bound))
	for i := range headers {
		if e, ok := bound[i]; ok {
			mapping = append(mapping, e)
		}
	}
	return mapping, nil
}

func entryFor(def *ImportDefinition, f FieldSpec, header string, idx int, match MatchKind) MappingEntry {
	return MappingEntry{
		SourceHeader: header,
		SourceIndex:  idx,
		TargetField:  f.Name,
		TargetTable:  def.TableFor(f),
		Transform:    f.Kind,
		Match:        match,
	}
}

// findHeader locates an override key: exact text first, then normalized.
func findHeader(headers []string, key string) int {
	key = strings.TrimSpace(key)
	for i, h := range headers {
		if h == key {
			return i
		}
	}
	nk := NormalizeHeader(key)
	if nk == "" {
		return -1
	}
	for i, h := range headers {
		if NormalizeHeader(h) == nk {
			return i
		}
	}
	return -1
}

func candidates(f FieldSpec) []string {
	out := make([]string, 0, len(f.Aliases)+1)
	out = append(out, NormalizeHeader(f.Name))
	for _, a := range f.Aliases {
		out = append(out, NormalizeHeader(a))
	}
	return out
}

func exactMatch(header string, f FieldSpec) bool {
	return slices.Contains(candidates(f), header)
}

// fuzzyScore returns the length of the longest alias in a substring
// relation with header, or 0.
func fuzzyScore(header string, f FieldSpec) int {
	best := 0
	for _, c := range candidates(f) {
		n := len([]rune(c))
		if n < fuzzyMinLen {
			continue
		}
		if strings.Contains(header, c) || strings.Contains(c, header) {
			if n > best {
				best = n
			}
		}
	}
	return best
}
