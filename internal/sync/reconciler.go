package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/audience-sync/internal/airtable"
	"github.com/ignite/audience-sync/internal/engagement"
	"github.com/ignite/audience-sync/internal/enrich"
	"github.com/ignite/audience-sync/internal/mapping"
	"github.com/ignite/audience-sync/internal/pkg/logger"
	"github.com/ignite/audience-sync/internal/rows"
)

// Action is the outcome of reconciling one contact.
type Action int

const (
	ActionSkip Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
)

// Skip reasons reported in the run summary.
const (
	SkipNoEmail       = "no_email"
	SkipTestDomain    = "test_domain"
	SkipEnrichFailed  = "enrichment_failed"
	SkipWrongGroup    = "wrong_group"
	SkipUnsubscribed  = "unsubscribed_no_record"
	SkipNoEngagements = "no_engagements"
	SkipStale         = "stale"
)

// Record-store field names for the derived per-contact summary.
const (
	fieldLastEngagementAt    = "Last Engagement At"
	fieldLastEngagementName  = "Last Engagement Name"
	fieldFirstEngagementAt   = "First Engagement At"
	fieldFirstEngagementName = "First Engagement Name"
	fieldFirstProgram        = "First Program"
	fieldSecondProgram       = "Second Program"
	fieldApprovedCount       = "Approved Count"
	fieldApprovedAt          = "Approved At"
	fieldApprovedName        = "Approved Name"
	fieldTotalEngagements    = "Total Engagements"
	fieldOverview            = "Engagements Overview"
	fieldPrograms            = "Programs"
)

// Contact-row fields read and written by the enrichment gates.
const (
	colGeocodedLatitude    = "calculatedGeocodedLatitude"
	colGeocodedLongitude   = "calculatedGeocodedLongitude"
	colGeocodedCountry     = "calculatedGeocodedCountryName"
	colGeocodedCountryCode = "calculatedGeocodedCountryCode"
	colGeocodedHash        = "calculatedGeocodedAddressHash"
	colGender              = "calculatedGender"
	colGenderHash          = "calculatedGenderNameHash"
	colBestKnownGender     = "calculatedBestKnownGender"
	colBestKnownGenderHash = "calculatedBestKnownGenderHash"
)

// Decision is the reconciler's verdict for one contact.
type Decision struct {
	Action     Action
	SkipReason string
	RecordID   string // set for UPDATE and DELETE
	Fields     map[string]interface{}
}

// contactWriter persists enrichment results back to the export source
// so the next export carries them.
type contactWriter interface {
	UpdateContact(ctx context.Context, email string, fields map[string]interface{}) error
}

type geocoder interface {
	Geocode(ctx context.Context, address string) (*enrich.Location, error)
}

type genderClassifier interface {
	Classify(ctx context.Context, name, countryHint string) (string, error)
}

// Options tunes the reconciliation gates.
type Options struct {
	EmailField           string
	TargetGroup          string
	TestDomains          []string
	ApprovalCategory     string
	ApprovalKeyword      string
	MaxEngagementAgeDays int // zero disables the recency gate
	Now                  func() time.Time
}

// Reconciler runs the per-contact gate pipeline and produces a
// mutation decision. Geocoder and classifier are optional; a nil one
// disables its gate.
type Reconciler struct {
	resolved *mapping.Resolved
	contacts contactWriter
	geocoder geocoder
	gender   genderClassifier
	opts     Options
}

// NewReconciler builds a reconciler over resolved mappings.
func NewReconciler(resolved *mapping.Resolved, contacts contactWriter, geo geocoder, gender genderClassifier, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		resolved: resolved,
		contacts: contacts,
		geocoder: geo,
		gender:   gender,
		opts:     opts,
	}
}

// Decide evaluates the gates in fixed order for one contact row.
// existing is the matched record-store row for the contact's email, or
// nil. Errors are store failures and abort the run; enrichment
// failures are absorbed into a skip decision.
func (r *Reconciler) Decide(ctx context.Context, row rows.Row, existing *airtable.Record) (Decision, error) {
	email := row.Email()
	if email == "" {
		return Decision{Action: ActionSkip, SkipReason: SkipNoEmail}, nil
	}
	if r.isTestDomain(email) {
		return Decision{Action: ActionSkip, SkipReason: SkipTestDomain}, nil
	}

	row, err := r.enrich(ctx, row)
	if err != nil {
		logger.Warn("enrichment failed, skipping contact", "email", email, "error", err.Error())
		return Decision{Action: ActionSkip, SkipReason: SkipEnrichFailed}, nil
	}

	if !strings.EqualFold(row.GetString("userGroup"), r.opts.TargetGroup) {
		return Decision{Action: ActionSkip, SkipReason: SkipWrongGroup}, nil
	}

	if sub, ok := row["subscribed"]; !ok || !sub.Truthy() {
		if existing != nil {
			return Decision{Action: ActionDelete, RecordID: existing.ID}, nil
		}
		return Decision{Action: ActionSkip, SkipReason: SkipUnsubscribed}, nil
	}

	engagements, programIDs := engagement.Extract(row, r.resolved)
	agg := engagement.Compute(engagements, r.resolved, engagement.Options{
		Category:        r.opts.ApprovalCategory,
		ApprovalKeyword: r.opts.ApprovalKeyword,
	})
	if agg == nil {
		return Decision{Action: ActionSkip, SkipReason: SkipNoEngagements}, nil
	}

	if r.opts.MaxEngagementAgeDays > 0 {
		cutoff := r.opts.Now().AddDate(0, 0, -r.opts.MaxEngagementAgeDays)
		if agg.LastEngagementAt.Before(cutoff) {
			return Decision{Action: ActionSkip, SkipReason: SkipStale}, nil
		}
	}

	fields := r.buildPayload(email, row, agg, programIDs)
	if existing != nil {
		return Decision{Action: ActionUpdate, RecordID: existing.ID, Fields: fields}, nil
	}
	return Decision{Action: ActionCreate, Fields: fields}, nil
}

func (r *Reconciler) isTestDomain(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return true
	}
	domain := email[at+1:]
	for _, d := range r.opts.TestDomains {
		if strings.EqualFold(domain, d) {
			return true
		}
	}
	return false
}

// enrich runs the geocode, gender, and best-known-gender gates against
// a copy of the row, writing refreshed fields back to the export
// source immediately and returning the updated snapshot. Each gate is
// hash-guarded so unchanged inputs cost no provider call.
func (r *Reconciler) enrich(ctx context.Context, row rows.Row) (rows.Row, error) {
	row = row.Clone()

	if r.geocoder != nil {
		if err := r.enrichGeocode(ctx, row); err != nil {
			return nil, err
		}
	}
	if r.gender != nil {
		if err := r.enrichGender(ctx, row); err != nil {
			return nil, err
		}
		if err := r.enrichBestKnownGender(ctx, row); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (r *Reconciler) enrichGeocode(ctx context.Context, row rows.Row) error {
	address := assembleAddress(row)
	if address == "" {
		return nil
	}
	hash := enrich.ContentHash(address)
	if row.GetString(colGeocodedHash) == hash {
		return nil
	}

	loc, err := r.geocoder.Geocode(ctx, address)
	if err != nil {
		return fmt.Errorf("geocode: %w", err)
	}

	update := map[string]interface{}{
		colGeocodedLatitude:    loc.Latitude,
		colGeocodedLongitude:   loc.Longitude,
		colGeocodedCountry:     loc.CountryName,
		colGeocodedCountryCode: loc.CountryCode,
		colGeocodedHash:        hash,
	}
	if err := r.contacts.UpdateContact(ctx, row.Email(), update); err != nil {
		return fmt.Errorf("persist geocode fields: %w", err)
	}

	row[colGeocodedLatitude] = rows.Number(loc.Latitude)
	row[colGeocodedLongitude] = rows.Number(loc.Longitude)
	row[colGeocodedCountry] = rows.String(loc.CountryName)
	row[colGeocodedCountryCode] = rows.String(loc.CountryCode)
	row[colGeocodedHash] = rows.String(hash)
	return nil
}

func (r *Reconciler) enrichGender(ctx context.Context, row rows.Row) error {
	name := fullName(row)
	if name == "" {
		return nil
	}
	hash := enrich.ContentHash(name)
	if row.GetString(colGenderHash) == hash {
		return nil
	}

	// Country hint comes from the geocode gate when it ran this cycle.
	label, err := r.gender.Classify(ctx, name, row.GetString(colGeocodedCountryCode))
	if err != nil {
		return fmt.Errorf("classify gender: %w", err)
	}

	update := map[string]interface{}{
		colGender:     label,
		colGenderHash: hash,
	}
	if err := r.contacts.UpdateContact(ctx, row.Email(), update); err != nil {
		return fmt.Errorf("persist gender fields: %w", err)
	}

	row[colGender] = rows.String(label)
	row[colGenderHash] = rows.String(hash)
	return nil
}

func (r *Reconciler) enrichBestKnownGender(ctx context.Context, row rows.Row) error {
	selfReported := row.GetString("gender")
	inferred := row.GetString(colGender)
	if selfReported == "" && inferred == "" {
		return nil
	}
	hash := enrich.ContentHash(inferred, selfReported)
	if row.GetString(colBestKnownGenderHash) == hash {
		return nil
	}

	best := enrich.BestKnownGender(selfReported, inferred)
	update := map[string]interface{}{
		colBestKnownGender:     best,
		colBestKnownGenderHash: hash,
	}
	if err := r.contacts.UpdateContact(ctx, row.Email(), update); err != nil {
		return fmt.Errorf("persist best-known gender: %w", err)
	}

	row[colBestKnownGender] = rows.String(best)
	row[colBestKnownGenderHash] = rows.String(hash)
	return nil
}

// buildPayload assembles the full-replace field set: mapped direct
// fields, the derived summary, and program membership. Timestamps are
// rendered to RFC3339 here, immediately before dispatch.
func (r *Reconciler) buildPayload(email string, row rows.Row, agg *engagement.Aggregate, programIDs []string) map[string]interface{} {
	fields := map[string]interface{}{
		r.opts.EmailField: email,
	}

	for _, source := range r.resolved.FieldSources() {
		val, ok := row[source]
		if !ok || val.IsEmpty() {
			continue
		}
		target, _ := r.resolved.FieldTarget(source)
		if val.Kind == rows.KindTime {
			fields[target] = val.Render()
		} else {
			fields[target] = val.Interface()
		}
	}

	fields[fieldLastEngagementAt] = agg.LastEngagementAt.UTC().Format(time.RFC3339)
	fields[fieldLastEngagementName] = agg.LastEngagementName
	fields[fieldFirstEngagementAt] = agg.FirstEngagementAt.UTC().Format(time.RFC3339)
	fields[fieldFirstEngagementName] = agg.FirstEngagementName
	fields[fieldTotalEngagements] = agg.TotalEngagements
	fields[fieldOverview] = agg.Overview
	fields[fieldFirstProgram] = []string{agg.FirstProgramID}
	if agg.SecondProgramID != "" {
		fields[fieldSecondProgram] = []string{agg.SecondProgramID}
	}
	if agg.ApprovedCount > 0 {
		fields[fieldApprovedCount] = agg.ApprovedCount
		fields[fieldApprovedAt] = agg.ApprovedAt.UTC().Format(time.RFC3339)
		fields[fieldApprovedName] = agg.ApprovedName
	}
	if len(programIDs) > 0 {
		fields[fieldPrograms] = programIDs
	}

	return fields
}

// assembleAddress joins the contact's postal-address parts in display
// order, skipping blanks.
func assembleAddress(row rows.Row) string {
	parts := []string{
		row.GetString("addressLine1"),
		row.GetString("addressLine2"),
		row.GetString("addressCity"),
		row.GetString("addressState"),
		row.GetString("addressZipCode"),
		row.GetString("addressCountry"),
	}
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func fullName(row rows.Row) string {
	return strings.TrimSpace(strings.TrimSpace(row.GetString("firstName")) + " " + strings.TrimSpace(row.GetString("lastName")))
}
