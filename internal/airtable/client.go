// Package airtable is the client for the relational record store:
// paged listing, batched create/update (at most ten records per call,
// all-or-nothing), and single-record destroy.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/audience-sync/internal/pkg/httpretry"
)

// Client is the Airtable API client, scoped to one base.
type Client struct {
	baseURL    string
	apiKey     string
	baseID     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates an Airtable client from config.
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.airtable.com"
	}
	timeout := config.Timeout()
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  config.APIKey,
		baseID:  config.BaseID,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: timeout,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// doRequest performs an authenticated request and returns the body.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func (c *Client) tablePath(table string) string {
	return "/v0/" + c.baseID + "/" + url.PathEscape(table)
}

// ListAll pages through every record of a table.
func (c *Client) ListAll(ctx context.Context, table string) ([]Record, error) {
	var all []Record
	offset := ""

	for {
		endpoint := c.tablePath(table)
		if offset != "" {
			endpoint += "?offset=" + url.QueryEscape(offset)
		}

		respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", table, err)
		}

		var page recordPage
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("parse %s page: %w", table, err)
		}

		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

// CreateRecords inserts up to MaxBatchSize records in one call. The
// call is all-or-nothing: on error nothing was written.
func (c *Client) CreateRecords(ctx context.Context, table string, records []Record) ([]Record, error) {
	if len(records) == 0 || len(records) > MaxBatchSize {
		return nil, fmt.Errorf("create batch size %d out of range 1..%d", len(records), MaxBatchSize)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, c.tablePath(table), recordBatch{
		Records:  records,
		Typecast: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create records in %s: %w", table, err)
	}

	var created recordBatch
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return created.Records, nil
}

// UpdateRecords replaces up to MaxBatchSize records in one call. PUT
// gives full-replace semantics: the stored field set is substituted
// with the payload, not merged.
func (c *Client) UpdateRecords(ctx context.Context, table string, records []Record) ([]Record, error) {
	if len(records) == 0 || len(records) > MaxBatchSize {
		return nil, fmt.Errorf("update batch size %d out of range 1..%d", len(records), MaxBatchSize)
	}
	for _, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("update record missing id")
		}
	}

	respBody, err := c.doRequest(ctx, http.MethodPut, c.tablePath(table), recordBatch{
		Records:  records,
		Typecast: true,
	})
	if err != nil {
		return nil, fmt.Errorf("update records in %s: %w", table, err)
	}

	var updated recordBatch
	if err := json.Unmarshal(respBody, &updated); err != nil {
		return nil, fmt.Errorf("parse update response: %w", err)
	}
	return updated.Records, nil
}

// DeleteRecord destroys a single record immediately.
func (c *Client) DeleteRecord(ctx context.Context, table, recordID string) error {
	respBody, err := c.doRequest(ctx, http.MethodDelete, c.tablePath(table)+"/"+url.PathEscape(recordID), nil)
	if err != nil {
		return fmt.Errorf("delete record %s from %s: %w", recordID, table, err)
	}

	var deleted deleteResponse
	if err := json.Unmarshal(respBody, &deleted); err != nil {
		return fmt.Errorf("parse delete response: %w", err)
	}
	if !deleted.Deleted {
		return fmt.Errorf("record %s not deleted", recordID)
	}
	return nil
}
