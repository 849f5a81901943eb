// Package loops is the client for the Loops email-marketing platform:
// audience export (async create, poll, presigned download) and the
// contact field write-back used by enrichment.
package loops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ignite/audience-sync/internal/pkg/httpretry"
)

// Client is the Loops API client. Authentication is a browser session
// cookie; the export endpoints have no key-based API.
type Client struct {
	baseURL       string
	sessionCookie string
	httpClient    httpretry.HTTPDoer
	pollInterval  time.Duration
	maxWait       time.Duration
}

// NewClient creates a Loops client from config.
func NewClient(config Config) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://app.loops.so"
	}
	pollSeconds := config.PollSeconds
	if pollSeconds == 0 {
		pollSeconds = 5
	}
	maxWaitMinutes := config.MaxWaitMinutes
	if maxWaitMinutes == 0 {
		maxWaitMinutes = 30
	}
	timeout := config.Timeout()
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:       baseURL,
		sessionCookie: config.SessionCookie,
		httpClient:    httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
		pollInterval:  time.Duration(pollSeconds) * time.Second,
		maxWait:       time.Duration(maxWaitMinutes) * time.Minute,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// doRequest performs a cookie-authenticated request and returns the
// response body. Non-2xx statuses become errors carrying the body.
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
	req.Header.Set("Cookie", c.sessionCookie)

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

// CreateAudienceExport submits a full-audience export job and returns
// its id.
func (c *Client) CreateAudienceExport(ctx context.Context) (string, error) {
	var req exportRequest

	respBody, err := c.doRequest(ctx, http.MethodPost, "/api/trpc/lists.exportContacts", req)
	if err != nil {
		return "", fmt.Errorf("create audience export: %w", err)
	}

	var response trpcEnvelope[AudienceExport]
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("parse export response: %w", err)
	}

	export := response.Result.Data.JSON
	if export.ID == "" {
		return "", fmt.Errorf("export created but no id returned")
	}

	return export.ID, nil
}

// GetExportStatus checks the export job's status.
func (c *Client) GetExportStatus(ctx context.Context, exportID string) (string, error) {
	var req downloadRequest
	req.JSON.ID = exportID

	input, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal status input: %w", err)
	}

	endpoint := "/api/trpc/audienceDownload.getAudienceDownload?input=" + url.QueryEscape(string(input))
	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("check export status: %w", err)
	}

	var response trpcEnvelope[downloadStatus]
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("parse export status: %w", err)
	}

	return response.Result.Data.JSON.Status, nil
}

// SignDownloadURL requests the presigned URL for a completed export.
func (c *Client) SignDownloadURL(ctx context.Context, exportID string) (string, error) {
	var req downloadRequest
	req.JSON.ID = exportID

	respBody, err := c.doRequest(ctx, http.MethodPost, "/api/trpc/audienceDownload.signs3Url", req)
	if err != nil {
		return "", fmt.Errorf("sign download url: %w", err)
	}

	var response trpcEnvelope[signedURL]
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("parse signed url response: %w", err)
	}

	if response.Result.Data.JSON.PresignedURL == "" {
		return "", fmt.Errorf("no presigned url in response")
	}

	return response.Result.Data.JSON.PresignedURL, nil
}

// DownloadAudienceExport runs the full export protocol: create the
// job, poll until the completion sentinel, fetch the presigned URL,
// and stream the file to destPath. Returns once the local file exists.
func (c *Client) DownloadAudienceExport(ctx context.Context, destPath string) error {
	exportID, err := c.CreateAudienceExport(ctx)
	if err != nil {
		return err
	}
	log.Printf("Loops: created audience export %s", exportID)

	deadline := time.Now().Add(c.maxWait)
	for {
		status, err := c.GetExportStatus(ctx, exportID)
		if err != nil {
			return err
		}
		if status == StatusComplete {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("audience export %s timed out after %s (status %q)", exportID, c.maxWait, status)
		}

		log.Printf("Loops: export %s status=%q, waiting %s", exportID, status, c.pollInterval)
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for export %s: %w", exportID, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}

	downloadURL, err := c.SignDownloadURL(ctx, exportID)
	if err != nil {
		return err
	}

	if err := c.downloadFile(ctx, downloadURL, destPath); err != nil {
		return fmt.Errorf("download export %s: %w", exportID, err)
	}
	log.Printf("Loops: export %s downloaded to %s", exportID, destPath)
	return nil
}

// downloadFile streams a presigned URL to disk. Presigned URLs carry
// their own auth, so no cookie is sent.
func (c *Client) downloadFile(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download failed (status %d)", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write download file: %w", err)
	}
	return nil
}

// UpdateContact writes enrichment fields back onto a Loops contact
// immediately, outside the record-store batching.
func (c *Client) UpdateContact(ctx context.Context, email string, fields map[string]interface{}) error {
	body := contactUpdate{Email: email, Fields: fields}
	if _, err := c.doRequest(ctx, http.MethodPut, "/api/v1/contacts/update", body); err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	return nil
}
