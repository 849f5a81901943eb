// Package config loads the sync job's configuration: a yaml file with
// defaults, a .env file for local secrets, and env-var overrides for
// everything credential-shaped.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/audience-sync/internal/airtable"
	"github.com/ignite/audience-sync/internal/loops"
)

// Config holds all configuration for the sync job.
type Config struct {
	Loops    loops.Config    `yaml:"loops"`
	Airtable airtable.Config `yaml:"airtable"`
	Sync     SyncConfig      `yaml:"sync"`
	Geocode  GeocodeConfig   `yaml:"geocode"`
	Gender   GenderConfig    `yaml:"gender"`
}

// SyncConfig holds reconciliation policy knobs.
type SyncConfig struct {
	// ContactsTable is the record-store table receiving the synced
	// contacts.
	ContactsTable string `yaml:"contacts_table"`
	// EmailField is the record-store field matched against the
	// contact's email.
	EmailField string `yaml:"email_field"`
	// TargetGroup gates membership: only contacts whose userGroup
	// equals this are synced.
	TargetGroup string `yaml:"target_group"`
	// TestDomains lists email domains excluded before any store
	// interaction.
	TestDomains []string `yaml:"test_domains"`
	// ApprovalCategory and ApprovalKeyword drive the per-category
	// approval counts.
	ApprovalCategory string `yaml:"approval_category"`
	ApprovalKeyword  string `yaml:"approval_keyword"`
	// MaxEngagementAgeDays skips contacts whose newest engagement is
	// older. Zero disables the recency gate.
	MaxEngagementAgeDays int `yaml:"max_engagement_age_days"`
	// ExportPath is where the audience CSV is downloaded.
	ExportPath string `yaml:"export_path"`
	// NumberOverrides adds export fields to the numeric-coercion set.
	NumberOverrides []string `yaml:"number_overrides"`
}

// GeocodeConfig holds the geocoding provider and its optional cache.
type GeocodeConfig struct {
	BaseURL       string `yaml:"base_url"`
	Token         string `yaml:"token"`
	RedisAddr     string `yaml:"redis_addr"` // empty disables the cache
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
}

// CacheTTL returns the geocode cache TTL as a duration.
func (c GeocodeConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// GenderConfig holds the Bedrock gender-classifier settings.
type GenderConfig struct {
	ModelID string `yaml:"model_id"`
	Region  string `yaml:"region"`
	Enabled bool   `yaml:"enabled"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Loops.BaseURL == "" {
		cfg.Loops.BaseURL = "https://app.loops.so"
	}
	if cfg.Loops.TimeoutSeconds == 0 {
		cfg.Loops.TimeoutSeconds = 60
	}
	if cfg.Loops.PollSeconds == 0 {
		cfg.Loops.PollSeconds = 5
	}
	if cfg.Loops.MaxWaitMinutes == 0 {
		cfg.Loops.MaxWaitMinutes = 30
	}
	if cfg.Airtable.BaseURL == "" {
		cfg.Airtable.BaseURL = "https://api.airtable.com"
	}
	if cfg.Airtable.TimeoutSeconds == 0 {
		cfg.Airtable.TimeoutSeconds = 30
	}
	if cfg.Sync.ContactsTable == "" {
		cfg.Sync.ContactsTable = "Contacts"
	}
	if cfg.Sync.EmailField == "" {
		cfg.Sync.EmailField = "Email"
	}
	if cfg.Sync.TargetGroup == "" {
		cfg.Sync.TargetGroup = "Hack Clubber"
	}
	if cfg.Sync.ApprovalCategory == "" {
		cfg.Sync.ApprovalCategory = "YSWS"
	}
	if cfg.Sync.ApprovalKeyword == "" {
		cfg.Sync.ApprovalKeyword = "approved"
	}
	if cfg.Sync.ExportPath == "" {
		cfg.Sync.ExportPath = "work_files/loops_export.csv"
	}
	if cfg.Geocode.CacheTTLHours == 0 {
		cfg.Geocode.CacheTTLHours = 24 * 30
	}
	if cfg.Gender.ModelID == "" {
		cfg.Gender.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Gender.Region == "" {
		cfg.Gender.Region = "us-east-1"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in
// .env locally and in real env vars on the scheduler host.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		// No config file is fine: defaults plus env vars cover a
		// scheduler-host deployment.
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("LOOPS_SESSION_COOKIE"); v != "" {
		cfg.Loops.SessionCookie = v
	}
	if v := os.Getenv("LOOPS_BASE_URL"); v != "" {
		cfg.Loops.BaseURL = v
	}
	if v := os.Getenv("AIRTABLE_API_KEY"); v != "" {
		cfg.Airtable.APIKey = v
	}
	if v := os.Getenv("AIRTABLE_BASE_ID"); v != "" {
		cfg.Airtable.BaseID = v
	}
	if v := os.Getenv("GEOCODE_TOKEN"); v != "" {
		cfg.Geocode.Token = v
	}
	if v := os.Getenv("GEOCODE_REDIS_ADDR"); v != "" {
		cfg.Geocode.RedisAddr = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Gender.Region = v
	}

	return cfg, nil
}

// Validate checks the credentials the run cannot start without. It is
// called before any I/O so a missing secret fails fast.
func (c *Config) Validate() error {
	var missing []string
	if c.Loops.SessionCookie == "" {
		missing = append(missing, "LOOPS_SESSION_COOKIE")
	}
	if c.Airtable.APIKey == "" {
		missing = append(missing, "AIRTABLE_API_KEY")
	}
	if c.Airtable.BaseID == "" {
		missing = append(missing, "AIRTABLE_BASE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s must be set", strings.Join(missing, ", "))
	}
	return nil
}
