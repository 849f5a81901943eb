// Package engagement derives timestamped program interactions from a
// contact row and aggregates them into the summary fields synced to the
// record store.
package engagement

import (
	"time"

	"github.com/ignite/audience-sync/internal/mapping"
	"github.com/ignite/audience-sync/internal/rows"
)

// Engagement is one timestamped interaction of a contact with a
// program, derived from one populated date field.
type Engagement struct {
	Name        string
	Time        time.Time
	ProgramID   string
	ProgramName string
}

// Extract walks the program-mapping rule fields of one normalized row.
// It returns the engagement list (one entry per mapped field holding a
// timestamp) and the deduplicated program ids evidenced by any truthy
// mapped field, timestamp or not, in first-encountered rule order.
func Extract(row rows.Row, resolved *mapping.Resolved) ([]Engagement, []string) {
	var engagements []Engagement
	var programIDs []string
	seen := make(map[string]bool)

	for _, source := range resolved.ProgramSources() {
		val, ok := row[source]
		if !ok || !val.Truthy() {
			continue
		}

		programID, _ := resolved.ProgramFor(source)

		if val.Kind == rows.KindTime {
			engagements = append(engagements, Engagement{
				Name:        source,
				Time:        val.Time,
				ProgramID:   programID,
				ProgramName: resolved.ProgramName(programID),
			})
		}

		if !seen[programID] {
			seen[programID] = true
			programIDs = append(programIDs, programID)
		}
	}

	return engagements, programIDs
}
