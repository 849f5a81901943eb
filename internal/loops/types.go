package loops

import "time"

// Config holds Loops API settings.
type Config struct {
	BaseURL        string `yaml:"base_url"`
	SessionCookie  string `yaml:"session_cookie"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PollSeconds    int    `yaml:"poll_seconds"`
	MaxWaitMinutes int    `yaml:"max_wait_minutes"`
}

// Timeout returns the configured HTTP timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Export status sentinel reported by the audience download endpoint.
const StatusComplete = "Complete"

// AudienceExport is the export job record returned on creation.
type AudienceExport struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	TeamID    string `json:"teamId"`
	Status    string `json:"status"`
}

// trpcEnvelope is the wrapper every tRPC endpoint responds with.
type trpcEnvelope[T any] struct {
	Result struct {
		Data struct {
			JSON T `json:"json"`
		} `json:"data"`
	} `json:"result"`
}

// exportRequest is the tRPC input for export creation.
type exportRequest struct {
	JSON struct {
		Filter        interface{} `json:"filter"`
		MailingListID string      `json:"mailingListId"`
	} `json:"json"`
}

// downloadRequest is the tRPC input for status and signing calls.
type downloadRequest struct {
	JSON struct {
		ID string `json:"id"`
	} `json:"json"`
}

// downloadStatus is the payload of the status endpoint.
type downloadStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// signedURL is the payload of the presigned-URL endpoint.
type signedURL struct {
	PresignedURL string `json:"presignedUrl"`
}

// contactUpdate is the write-back body for enrichment fields.
type contactUpdate struct {
	Email  string                 `json:"email"`
	Fields map[string]interface{} `json:"fields"`
}
