package engagement

import (
	"sort"
	"strings"
	"time"

	"github.com/ignite/audience-sync/internal/mapping"
)

// Aggregate holds the derived summary fields for one contact. A nil
// *Aggregate means the contact had zero engagements; none of these
// fields exist for such a contact.
type Aggregate struct {
	LastEngagementAt    time.Time
	LastEngagementName  string
	FirstEngagementAt   time.Time
	FirstEngagementName string

	FirstProgramID  string
	SecondProgramID string // empty when every engagement shares one program

	ApprovedCount int
	ApprovedAt    time.Time
	ApprovedName  string

	TotalEngagements int
	Overview         string
}

// Options tunes the category-approval derivation.
type Options struct {
	// Category selects the program category whose approvals are
	// counted (e.g. "YSWS").
	Category string
	// ApprovalKeyword marks an engagement as an approval when its
	// field name contains the keyword, case-insensitively.
	ApprovalKeyword string
}

// Compute sorts the engagement list descending by time (stable, so
// ties keep their extraction order) and derives the summary fields.
// "Last" is the newest entry, "first" the oldest. Returns nil for an
// empty list.
func Compute(engagements []Engagement, resolved *mapping.Resolved, opts Options) *Aggregate {
	if len(engagements) == 0 {
		return nil
	}

	sorted := make([]Engagement, len(engagements))
	copy(sorted, engagements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.After(sorted[j].Time)
	})

	last := sorted[0]
	first := sorted[len(sorted)-1]

	agg := &Aggregate{
		LastEngagementAt:    last.Time,
		LastEngagementName:  last.Name,
		FirstEngagementAt:   first.Time,
		FirstEngagementName: first.Name,
		FirstProgramID:      first.ProgramID,
		TotalEngagements:    len(sorted),
	}

	// Second program: the first program touched that differs from the
	// first engagement's program, scanning from the earliest onward.
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].ProgramID != agg.FirstProgramID {
			agg.SecondProgramID = sorted[i].ProgramID
			break
		}
	}

	keyword := strings.ToLower(opts.ApprovalKeyword)
	if opts.Category != "" && keyword != "" {
		// sorted is already newest-first, so the first approval hit is
		// the latest one.
		for _, e := range sorted {
			if !resolved.InCategory(e.ProgramID, opts.Category) {
				continue
			}
			if !strings.Contains(strings.ToLower(e.Name), keyword) {
				continue
			}
			if agg.ApprovedCount == 0 {
				agg.ApprovedAt = e.Time
				agg.ApprovedName = e.Name
			}
			agg.ApprovedCount++
		}
	}

	var b strings.Builder
	for i, e := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Name)
		b.WriteByte(' ')
		b.WriteString(e.Time.UTC().Format("2006-01-02"))
	}
	agg.Overview = b.String()

	return agg
}
