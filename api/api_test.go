package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobRequestShape(t *testing.T) {
	var gotAuth string
	var gotBody CreateJobRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/translation_jobs", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(CreateJobResponse{
			Jobs:     []JobRef{{ID: "job-1", Language: "de"}},
			JobGroup: "grp-1",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key-123")
	resp, err := c.CreateJob(context.Background(), CreateJobRequest{
		TargetLanguages: []string{"de"},
		Files: []JobFile{{
			Path:    "locales/en.yml",
			Content: `{"greeting":"Hello"}`,
			Format:  "yaml",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, []string{"de"}, gotBody.TargetLanguages)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "job-1", resp.Jobs[0].ID)
	assert.Equal(t, "grp-1", resp.JobGroup)
}

func TestRateLimitRetriesOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(JobStatusResponse{Status: "completed"})
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	resp, err := c.JobStatus(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 2, calls)
}

func TestRateLimitSecondHitFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "0.01")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	_, err := c.JobStatus(context.Background(), "j1")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Status)
	assert.Equal(t, 2, calls)
}

func TestServerErrorRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(JobStatusResponse{Status: "processing"})
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	resp, err := c.JobStatus(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, 2, calls)
}

func TestClientErrorDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such job"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	_, err := c.JobStatus(context.Background(), "missing")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
	assert.Contains(t, statusErr.Error(), "no such job")
	assert.Equal(t, 1, calls)
}

func TestSyncPagePagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/syncs/current", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "50", r.URL.Query().Get("per_page"))

		next := 3
		json.NewEncoder(w).Encode(SyncPageResponse{
			Sync: SyncData{
				Version: 7,
				Files: []SyncFile{{
					Path: "locales/en.yml",
					Languages: []SyncLanguage{{
						Code: "de",
						Translations: []SyncTranslation{{
							Key:   "greeting",
							Value: "Hallo",
							OldValues: []OldValue{
								{Key: "hello", UpdatedAt: "2026-01-02T00:00:00Z"},
							},
						}},
					}},
				}},
				DeletedKeys: []DeletedKey{{Name: "obsolete"}},
			},
			Pagination: Pagination{Page: 2, PerPage: 50, NextPage: &next, TotalPages: 3},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	resp, err := c.SyncPage(context.Background(), "current", 2, 50)
	require.NoError(t, err)

	assert.Equal(t, 7, resp.Sync.Version)
	require.NotNil(t, resp.Pagination.NextPage)
	assert.Equal(t, 3, *resp.Pagination.NextPage)
	require.Len(t, resp.Sync.Files, 1)
	tr := resp.Sync.Files[0].Languages[0].Translations[0]
	assert.Equal(t, "greeting", tr.Key)
	require.Len(t, tr.OldValues, 1)
	assert.Equal(t, "hello", tr.OldValues[0].Key)
}

func TestCompleteSyncAck(t *testing.T) {
	var gotVersion int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/syncs/current/complete", r.URL.Path)
		var body struct {
			Version int `json:"version"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotVersion = body.Version
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	require.NoError(t, c.CompleteSync(context.Background(), "current", 7))
	assert.Equal(t, 7, gotVersion)
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, "k")
	_, err := c.JobStatus(ctx, "j1")
	require.True(t, errors.Is(err, context.Canceled))
}

func TestBackoffCapped(t *testing.T) {
	assert.Equal(t, "1s", backoff(0).String())
	assert.Equal(t, "2s", backoff(1).String())
	assert.Equal(t, "4s", backoff(2).String())
	assert.Equal(t, "30s", backoff(10).String())
}
