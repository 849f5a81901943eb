// Package mapping resolves the store-driven rule tables that bind
// export fields to record-store fields and to programs.
package mapping

import (
	"fmt"
	"strings"
)

// FieldRule binds one export field to the record-store field that
// receives its value.
type FieldRule struct {
	Source string
	Target string
}

// ProgramRule declares that one export field belongs to a program. A
// populated value in that field is membership evidence; a timestamp
// value is an engagement.
type ProgramRule struct {
	Source    string
	ProgramID string
}

// Program is one row of the programs table the rules reference.
type Program struct {
	ID       string
	Name     string
	Category string
}

// Resolved holds the lookup structures built from the rule tables.
type Resolved struct {
	fieldTargets map[string]string
	programs     map[string]string
	names        map[string]string
	categories   map[string]string
	sourceOrder  []string
}

// Resolve validates the rule tables and builds the lookups. Every
// program reference must name a known program; that is checked here, at
// load time, not when a contact is processed. A source field listed
// twice keeps the later rule (last-write-wins) but its first-seen
// position in the rule order.
func Resolve(fieldRules []FieldRule, programRules []ProgramRule, programs []Program) (*Resolved, error) {
	r := &Resolved{
		fieldTargets: make(map[string]string, len(fieldRules)),
		programs:     make(map[string]string, len(programRules)),
		names:        make(map[string]string, len(programs)),
		categories:   make(map[string]string, len(programs)),
	}

	for _, p := range programs {
		if p.ID == "" {
			return nil, fmt.Errorf("program %q has no id", p.Name)
		}
		r.names[p.ID] = p.Name
		r.categories[p.ID] = p.Category
	}

	for i, rule := range fieldRules {
		if rule.Source == "" || rule.Target == "" {
			return nil, fmt.Errorf("field mapping rule %d is incomplete (source=%q target=%q)", i, rule.Source, rule.Target)
		}
		r.fieldTargets[rule.Source] = rule.Target
	}

	for i, rule := range programRules {
		if rule.Source == "" {
			return nil, fmt.Errorf("program mapping rule %d has no source field", i)
		}
		if _, known := r.names[rule.ProgramID]; !known {
			return nil, fmt.Errorf("program mapping rule for %q references unknown program %q", rule.Source, rule.ProgramID)
		}
		if _, seen := r.programs[rule.Source]; !seen {
			r.sourceOrder = append(r.sourceOrder, rule.Source)
		}
		r.programs[rule.Source] = rule.ProgramID
	}

	return r, nil
}

// FieldTarget returns the record-store field for an export field.
func (r *Resolved) FieldTarget(source string) (string, bool) {
	t, ok := r.fieldTargets[source]
	return t, ok
}

// FieldSources returns every export field covered by a field rule.
func (r *Resolved) FieldSources() []string {
	out := make([]string, 0, len(r.fieldTargets))
	for s := range r.fieldTargets {
		out = append(out, s)
	}
	return out
}

// ProgramFor returns the program owning an export field.
func (r *Resolved) ProgramFor(source string) (string, bool) {
	id, ok := r.programs[source]
	return id, ok
}

// ProgramSources returns the program-rule source fields in
// first-encountered rule order, deduplicated.
func (r *Resolved) ProgramSources() []string { return r.sourceOrder }

// ProgramName returns the display name for a program id.
func (r *Resolved) ProgramName(id string) string { return r.names[id] }

// InCategory reports whether the program belongs to the named category
// (case-insensitive).
func (r *Resolved) InCategory(programID, category string) bool {
	return strings.EqualFold(r.categories[programID], category)
}

// Covers reports whether any rule (field or program) names the export
// field. Used by the pre-flight mapping drift report.
func (r *Resolved) Covers(source string) bool {
	if _, ok := r.fieldTargets[source]; ok {
		return true
	}
	_, ok := r.programs[source]
	return ok
}
