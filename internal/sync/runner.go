package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/audience-sync/internal/airtable"
	"github.com/ignite/audience-sync/internal/config"
	"github.com/ignite/audience-sync/internal/enrich"
	"github.com/ignite/audience-sync/internal/loops"
	"github.com/ignite/audience-sync/internal/mapping"
	"github.com/ignite/audience-sync/internal/pkg/logger"
	"github.com/ignite/audience-sync/internal/rows"
)

// Runner wires the export client, record store, and reconciler into
// one sequential sync pass over the audience.
type Runner struct {
	cfg   *config.Config
	loops *loops.Client
	store *airtable.Client
}

// NewRunner builds a runner from configuration.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{
		cfg:   cfg,
		loops: loops.NewClient(cfg.Loops),
		store: airtable.NewClient(cfg.Airtable),
	}
}

// Run executes one full sync: export, load, reconcile, flush. Contacts
// are processed strictly in export order; the first store failure
// halts the run with prior writes left applied.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger.Info("starting audience sync", "run_id", runID)

	for _, field := range r.cfg.Sync.NumberOverrides {
		rows.AddNumberOverride(field)
	}

	if err := r.loops.DownloadAudienceExport(ctx, r.cfg.Sync.ExportPath); err != nil {
		return fmt.Errorf("download audience export: %w", err)
	}

	contacts, err := rows.LoadFile(r.cfg.Sync.ExportPath)
	if err != nil {
		return fmt.Errorf("load audience export: %w", err)
	}
	logger.Info("audience export loaded", "run_id", runID, "contacts", len(contacts))

	resolved, err := r.store.FetchMappings(ctx)
	if err != nil {
		return fmt.Errorf("fetch mapping rules: %w", err)
	}

	existing, err := r.store.ListAll(ctx, r.cfg.Sync.ContactsTable)
	if err != nil {
		return fmt.Errorf("list existing records: %w", err)
	}
	byEmail := indexByEmail(existing, r.cfg.Sync.EmailField)
	logger.Info("existing records fetched", "run_id", runID, "records", len(byEmail))

	reportUnmappedDateFields(contacts, resolved)

	reconciler := NewReconciler(resolved, r.loops, r.newGeocoder(), r.newGenderClassifier(ctx), Options{
		EmailField:           r.cfg.Sync.EmailField,
		TargetGroup:          r.cfg.Sync.TargetGroup,
		TestDomains:          r.cfg.Sync.TestDomains,
		ApprovalCategory:     r.cfg.Sync.ApprovalCategory,
		ApprovalKeyword:      r.cfg.Sync.ApprovalKeyword,
		MaxEngagementAgeDays: r.cfg.Sync.MaxEngagementAgeDays,
	})
	batcher := NewBatcher(r.store, r.cfg.Sync.ContactsTable)

	deleted := 0
	skipped := make(map[string]int)
	seen := make(map[string]bool)

	for _, row := range contacts {
		email := row.Email()
		if email != "" && seen[email] {
			skipped["duplicate_email"]++
			continue
		}
		if email != "" {
			seen[email] = true
		}

		decision, err := reconciler.Decide(ctx, row, byEmail[email])
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", logger.RedactEmail(email), err)
		}

		switch decision.Action {
		case ActionSkip:
			skipped[decision.SkipReason]++
			logger.Debug("contact skipped", "email", email, "reason", decision.SkipReason)
		case ActionDelete:
			if err := r.store.DeleteRecord(ctx, r.cfg.Sync.ContactsTable, decision.RecordID); err != nil {
				return fmt.Errorf("delete unsubscribed record: %w", err)
			}
			deleted++
			logger.Info("unsubscribed record deleted", "email", email)
		case ActionCreate:
			if err := batcher.EnqueueCreate(ctx, decision.Fields); err != nil {
				return err
			}
		case ActionUpdate:
			if err := batcher.EnqueueUpdate(ctx, decision.RecordID, decision.Fields); err != nil {
				return err
			}
		}
	}

	if err := batcher.Flush(ctx); err != nil {
		return err
	}

	summary := []interface{}{
		"run_id", runID,
		"created", batcher.Created,
		"updated", batcher.Updated,
		"deleted", deleted,
	}
	for _, reason := range sortedKeys(skipped) {
		summary = append(summary, "skipped_"+reason, skipped[reason])
	}
	logger.Info("audience sync complete", summary...)
	return nil
}

func (r *Runner) newGeocoder() geocoder {
	if r.cfg.Geocode.Token == "" {
		return nil
	}
	cache := enrich.NewGeocodeCache(r.cfg.Geocode.RedisAddr, r.cfg.Geocode.CacheTTL())
	return enrich.NewGeocoder(r.cfg.Geocode.BaseURL, r.cfg.Geocode.Token, cache)
}

func (r *Runner) newGenderClassifier(ctx context.Context) genderClassifier {
	if !r.cfg.Gender.Enabled {
		return nil
	}
	gc, err := enrich.NewGenderClassifier(ctx, r.cfg.Gender.ModelID, r.cfg.Gender.Region)
	if err != nil {
		logger.Warn("gender classifier unavailable, gate disabled", "error", err.Error())
		return nil
	}
	return gc
}

// indexByEmail builds the lookup the email-match gate consults. The
// store may hold several records for one address; the first wins, per
// the query contract.
func indexByEmail(records []airtable.Record, emailField string) map[string]*airtable.Record {
	byEmail := make(map[string]*airtable.Record, len(records))
	for i := range records {
		raw, _ := records[i].Fields[emailField].(string)
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" {
			continue
		}
		if _, ok := byEmail[email]; !ok {
			byEmail[email] = &records[i]
		}
	}
	return byEmail
}

// reportUnmappedDateFields logs, once per run, every export column
// holding date-typed values that no mapping rule covers. Informational
// only; it catches mapping drift when the export grows new fields.
func reportUnmappedDateFields(contacts []rows.Row, resolved *mapping.Resolved) {
	unmapped := make(map[string]int)
	for _, row := range contacts {
		for field, val := range row {
			if val.Kind != rows.KindTime {
				continue
			}
			if strings.HasPrefix(field, "calculated") {
				continue
			}
			if !resolved.Covers(field) {
				unmapped[field]++
			}
		}
	}
	if len(unmapped) == 0 {
		return
	}
	logger.Warn("export date fields not covered by any mapping rule",
		"fields", strings.Join(sortedKeys(unmapped), ", "))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
