// Package fieldmap proposes and validates mappings from arbitrary source
// field names onto the unified schema. Suggestions come from a static,
// versioned alias table plus optional per-source builtin maps; analysts can
// override any suggestion before a run commits.
package fieldmap

import (
	"sort"
	"strings"

	"github.com/casetrail/casetrail/internal/schema"
)

// Mapping is a committed assignment of source field names to unified fields.
// A source mapped to "" is deliberately unmapped and lands in extras. The
// zero value is not usable; call New or Suggest.
type Mapping struct {
	pairs      map[string]string
	overridden map[string]bool

	// Defaults supplies literal unified-field values applied when the field
	// is empty after mapping (from analyst mapper configs).
	Defaults map[string]string
	// Transforms carries per-unified-field conversion hints.
	Transforms map[string]Transform
}

// Transform adjusts a mapped value before type conversion.
type Transform struct {
	// Format is a Go time layout for parsing event_ts values.
	Format string `yaml:"format,omitempty"`
	// Type forces a coercion: "int" or "string".
	Type string `yaml:"type,omitempty"`
}

// New returns an empty mapping.
func New() *Mapping {
	return &Mapping{
		pairs:      make(map[string]string),
		overridden: make(map[string]bool),
	}
}

// Set records a suggested pair. Existing analyst overrides are not replaced.
func (m *Mapping) Set(source, unified string) {
	if m.overridden[source] {
		return
	}
	m.pairs[source] = unified
}

// SetOverride records an explicit analyst choice. Overrides win over
// suggestions and are never re-derived.
func (m *Mapping) SetOverride(source, unified string) {
	m.pairs[source] = unified
	m.overridden[source] = true
}

// Unified returns the unified target for a source field, and whether the
// source field appears in the mapping at all.
func (m *Mapping) Unified(source string) (string, bool) {
	u, ok := m.pairs[source]
	return u, ok
}

// Sources returns all mapped source fields in sorted order. This order is
// the deterministic iteration order referenced by SourceFor.
func (m *Mapping) Sources() []string {
	out := make([]string, 0, len(m.pairs))
	for s := range m.pairs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SourceFor picks the single source field feeding a unified target. When
// several sources map to the same target, analyst-overridden pairs win over
// suggestions and ties break on sorted source-name order, so normalization
// output never depends on map iteration.
func (m *Mapping) SourceFor(unified string) string {
	chosen := ""
	chosenOverride := false
	for _, s := range m.Sources() {
		if m.pairs[s] != unified {
			continue
		}
		ov := m.overridden[s]
		if chosen == "" || (ov && !chosenOverride) {
			chosen = s
			chosenOverride = ov
		}
	}
	return chosen
}

// Validate reports the required unified fields with no mapped source.
// A non-empty result means the mapping must be fixed before any row is
// processed.
func (m *Mapping) Validate() []string {
	var missing []string
	for _, req := range schema.Required {
		if m.SourceFor(req) == "" {
			missing = append(missing, req)
		}
	}
	return missing
}

// Collisions returns unified targets claimed by more than one source field,
// with their sources in sorted order. Collisions are accepted (SourceFor
// breaks the tie) but surfaced as warnings.
func (m *Mapping) Collisions() map[string][]string {
	byTarget := make(map[string][]string)
	for _, s := range m.Sources() {
		if u := m.pairs[s]; u != "" {
			byTarget[u] = append(byTarget[u], s)
		}
	}
	for u, sources := range byTarget {
		if len(sources) < 2 {
			delete(byTarget, u)
		}
	}
	return byTarget
}

// NormalizeName canonicalizes a source field name for pattern matching:
// lowercase, separators collapsed to "_", other non-alphanumerics stripped.
func NormalizeName(name string) string {
	var b strings.Builder
	prevSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_':
			b.WriteRune(r)
			prevSep = r == '_'
		case r == '-' || r == ' ' || r == '.' || r == '/':
			if !prevSep && b.Len() > 0 {
				b.WriteByte('_')
				prevSep = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// SuggestField proposes a unified field for one source field name, or ""
// when nothing in the pattern table matches. Exact alias matches are checked
// across the whole table before any containment match, and table order
// decides between competing containment matches.
func SuggestField(source string) string {
	normalized := NormalizeName(source)
	if normalized == "" {
		return ""
	}
	for _, entry := range patternTable {
		for _, alias := range entry.Aliases {
			if normalized == alias {
				return entry.Unified
			}
		}
	}
	for _, entry := range patternTable {
		for _, alias := range entry.Aliases {
			if strings.Contains(normalized, alias) || strings.Contains(alias, normalized) {
				return entry.Unified
			}
		}
	}
	return ""
}

// Suggest builds a mapping for the observed source fields. A builtin
// per-source map (see ForSource) is consulted first, case-insensitively;
// remaining fields fall back to the pattern table. Fields that match nothing
// map to "" and flow to extras.
func Suggest(sourceFields []string, builtin map[string]string) *Mapping {
	m := New()
	for _, sf := range sourceFields {
		if u, ok := builtin[strings.ToLower(sf)]; ok {
			m.Set(sf, u)
			continue
		}
		m.Set(sf, SuggestField(sf))
	}
	return m
}
