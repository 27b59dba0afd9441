// Package api implements the HTTP client for the remote translation
// backend: job creation, job status polling, and the paginated sync
// feed with its completion acknowledgement.
//
// Transport policy: network-level errors retry with capped exponential
// backoff up to a fixed attempt ceiling; a 429 response sleeps for the
// server-specified duration and retries that request once; all other
// non-2xx responses surface immediately with a body snippet.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// DefaultBaseURL is the production backend endpoint.
const DefaultBaseURL = "https://api.localhero.ai"

const (
	// maxAttempts is the ceiling for network-error retries.
	maxAttempts = 3
	// backoffCap bounds the exponential backoff between attempts.
	backoffCap = 30 * time.Second
	// defaultRetryDelay applies when a 429 carries no usable Retry-After.
	defaultRetryDelay = 65 * time.Second
)

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client talks to the translation backend.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// OnLog, if set, receives transport-level log lines.
	OnLog func(format string, args ...any)
}

// New creates a client with the default HTTP timeout.
func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) log(format string, args ...any) {
	if c.OnLog != nil {
		c.OnLog(format, args...)
	}
}

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, truncate(e.Body, 500))
}

// ---------------------------------------------------------------------------
// Wire shapes
// ---------------------------------------------------------------------------

// JobFile is one source file in a create-job request.
type JobFile struct {
	Path        string            `json:"path"`
	Content     string            `json:"content"`
	Format      string            `json:"format"`
	TargetPaths map[string]string `json:"target_paths,omitempty"`
}

// CreateJobRequest creates one remote translation job per target language.
type CreateJobRequest struct {
	TargetLanguages []string  `json:"target_languages"`
	Files           []JobFile `json:"files"`
}

// JobRef identifies a created job.
type JobRef struct {
	ID       string `json:"id"`
	Language string `json:"language"`
}

// CreateJobResponse is the backend's answer to job creation.
type CreateJobResponse struct {
	Jobs     []JobRef `json:"jobs"`
	JobGroup string   `json:"job_group,omitempty"`
}

// JobStatusResponse is one poll result.
type JobStatusResponse struct {
	Status       string            `json:"status"`
	Language     string            `json:"language"`
	Translations map[string]string `json:"translations,omitempty"`
	ResultsURL   string            `json:"results_url,omitempty"`
	ErrorDetails string            `json:"error_details,omitempty"`
}

// OldValue records a key superseded at a timestamp; the chain is
// append-only.
type OldValue struct {
	Key       string `json:"key"`
	Context   string `json:"context,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// SyncTranslation is one translated value in a sync update.
type SyncTranslation struct {
	Key       string     `json:"key"`
	Context   string     `json:"context,omitempty"`
	Value     string     `json:"value"`
	OldValues []OldValue `json:"old_values,omitempty"`
}

// SyncLanguage groups translations by target locale.
type SyncLanguage struct {
	Code         string            `json:"code"`
	Translations []SyncTranslation `json:"translations"`
}

// SyncFile groups languages by source file.
type SyncFile struct {
	Path      string         `json:"path"`
	Languages []SyncLanguage `json:"languages"`
}

// DeletedKey names a key removed remotely.
type DeletedKey struct {
	Name    string `json:"name"`
	Context string `json:"context,omitempty"`
}

// SyncData is the per-page payload of a sync feed.
type SyncData struct {
	Version     int          `json:"version"`
	Files       []SyncFile   `json:"files"`
	DeletedKeys []DeletedKey `json:"deleted_keys,omitempty"`
}

// Pagination carries the page cursor; NextPage is null on the last page.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	NextPage   *int `json:"next_page"`
	TotalPages int  `json:"total_pages"`
}

// SyncPageResponse is one page of the sync feed.
type SyncPageResponse struct {
	Sync       SyncData   `json:"sync"`
	Pagination Pagination `json:"pagination"`
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

// CreateJob submits a batch of files for translation.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResponse, error) {
	var resp CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/translation_jobs", req, &resp); err != nil {
		return nil, fmt.Errorf("creating translation job: %w", err)
	}
	return &resp, nil
}

// JobStatus polls one job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	var resp JobStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/translation_jobs/"+jobID, nil, &resp); err != nil {
		return nil, fmt.Errorf("polling job %s: %w", jobID, err)
	}
	return &resp, nil
}

// SyncPage fetches one page of a sync feed.
func (c *Client) SyncPage(ctx context.Context, syncID string, page, perPage int) (*SyncPageResponse, error) {
	path := fmt.Sprintf("/api/v1/syncs/%s?page=%d&per_page=%d", syncID, page, perPage)
	var resp SyncPageResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching sync %s page %d: %w", syncID, page, err)
	}
	return &resp, nil
}

// CompleteSync acknowledges that a sync version was applied locally.
// The backend is the source of truth for "already completed", so this
// call is safe to retry after a crash between apply and ack.
func (c *Client) CompleteSync(ctx context.Context, syncID string, version int) error {
	body := struct {
		Version int `json:"version"`
	}{Version: version}
	if err := c.do(ctx, http.MethodPost, "/api/v1/syncs/"+syncID+"/complete", body, nil); err != nil {
		return fmt.Errorf("completing sync %s version %d: %w", syncID, version, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	rateLimitRetried := false
	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if attempt < maxAttempts-1 {
				if werr := sleepCtx(ctx, backoff(attempt)); werr != nil {
					return werr
				}
				continue
			}
			return fmt.Errorf("request failed after %d attempts: %w", maxAttempts, err)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if rateLimitRetried {
				return &StatusError{Status: resp.StatusCode, Body: string(respBody)}
			}
			rateLimitRetried = true
			delay := retryAfter(resp)
			c.log("rate limited, waiting %v before retry", delay)
			if werr := sleepCtx(ctx, delay); werr != nil {
				return werr
			}
			attempt--
			continue
		case resp.StatusCode >= 500:
			if attempt < maxAttempts-1 {
				if werr := sleepCtx(ctx, backoff(attempt)); werr != nil {
					return werr
				}
				continue
			}
			return &StatusError{Status: resp.StatusCode, Body: string(respBody)}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return &StatusError{Status: resp.StatusCode, Body: string(respBody)}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted all %d attempts", maxAttempts)
}

// backoff returns the capped exponential delay for the given attempt.
func backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// retryAfter parses the Retry-After header of a 429, in seconds.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultRetryDelay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
