package airtable

import "time"

// Config holds Airtable API settings.
type Config struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	BaseID         string `yaml:"base_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured HTTP timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxBatchSize is the store's per-call mutation ceiling.
const MaxBatchSize = 10

// Record is one row of a table: an opaque store-assigned id, the
// store's creation timestamp, and the field set.
type Record struct {
	ID          string                 `json:"id,omitempty"`
	CreatedTime string                 `json:"createdTime,omitempty"`
	Fields      map[string]interface{} `json:"fields"`
}

// recordPage is one page of a list response.
type recordPage struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// recordBatch is the request/response shape for batched mutations.
type recordBatch struct {
	Records  []Record `json:"records"`
	Typecast bool     `json:"typecast,omitempty"`
}

// deleteResponse confirms a single-record destroy.
type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
