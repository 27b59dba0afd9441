package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localheroai/cli-sub002/api"
	"github.com/localheroai/cli-sub002/diff"
	"github.com/localheroai/cli-sub002/document"
)

func TestTransition(t *testing.T) {
	timeout := 10 * time.Minute

	cases := []struct {
		name     string
		status   Status
		elapsed  time.Duration
		lastWait time.Duration
		want     Step
	}{
		{"completed", StatusCompleted, time.Minute, time.Second, Step{Kind: StepDone}},
		{"failed", StatusFailed, time.Minute, time.Second, Step{Kind: StepFailed}},
		{"first poll", StatusPending, 0, 0, Step{Kind: StepWait, Wait: time.Second}},
		{"backoff doubles", StatusProcessing, time.Minute, 2 * time.Second, Step{Kind: StepWait, Wait: 4 * time.Second}},
		{"backoff capped", StatusProcessing, time.Minute, 30 * time.Second, Step{Kind: StepWait, Wait: 30 * time.Second}},
		{"timed out", StatusProcessing, timeout, time.Second, Step{Kind: StepTimedOut}},
		{"completed beats timeout", StatusCompleted, timeout + time.Minute, time.Second, Step{Kind: StepDone}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Transition(tc.status, tc.elapsed, tc.lastWait, timeout)
			assert.Equal(t, tc.want, got)
		})
	}
}

// fakeBackend serves job creation and per-job status sequences.
type fakeBackend struct {
	mu       sync.Mutex
	jobs     []api.JobRef
	statuses map[string][]api.JobStatusResponse
	polls    map[string]int
}

func (f *fakeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(api.CreateJobResponse{Jobs: f.jobs})
			return
		}

		jobID := r.URL.Path[len("/api/v1/translation_jobs/"):]
		seq := f.statuses[jobID]
		idx := f.polls[jobID]
		if idx >= len(seq) {
			idx = len(seq) - 1
		}
		f.polls[jobID]++
		json.NewEncoder(w).Encode(seq[idx])
	})
}

func testBatch() diff.Batch {
	return diff.Batch{
		Files:      []diff.BatchFile{{Path: "locales/en.yml", Content: `{"greeting":"Hello"}`}},
		Locales:    []string{"de", "fr"},
		SourcePath: "locales/en.yml",
		TargetPaths: map[string]string{
			"de": "locales/de.yml",
			"fr": "locales/fr.yml",
		},
	}
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRunBatchFanOutAndApply(t *testing.T) {
	backend := &fakeBackend{
		jobs: []api.JobRef{{ID: "j-de", Language: "de"}, {ID: "j-fr", Language: "fr"}},
		statuses: map[string][]api.JobStatusResponse{
			"j-de": {
				{Status: "processing"},
				{Status: "completed", Language: "de", Translations: map[string]string{"greeting": "Hallo"}},
				{Status: "completed", Language: "de", Translations: map[string]string{"greeting": "Hallo"}},
			},
			"j-fr": {
				{Status: "completed", Language: "fr", Translations: map[string]string{"greeting": "Bonjour"}, ResultsURL: "https://app.localhero.ai/r/1"},
				{Status: "completed", Language: "fr", Translations: map[string]string{"greeting": "Bonjour"}, ResultsURL: "https://app.localhero.ai/r/1"},
			},
		},
		polls: map[string]int{},
	}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	var mu sync.Mutex
	var applied []Result
	var urls []string

	orch := &Orchestrator{
		Client: api.New(srv.URL, "k"),
		Apply: func(res Result) error {
			mu.Lock()
			defer mu.Unlock()
			applied = append(applied, res)
			return nil
		},
		OnResults: func(url string) {
			mu.Lock()
			defer mu.Unlock()
			urls = append(urls, url)
		},
		sleep: noSleep,
	}

	err := orch.Run(context.Background(), []diff.Batch{testBatch()})
	require.NoError(t, err)

	require.Len(t, applied, 2)
	sort.Slice(applied, func(i, j int) bool { return applied[i].Language < applied[j].Language })

	assert.Equal(t, "de", applied[0].Language)
	assert.Equal(t, "locales/de.yml", applied[0].TargetPath)
	require.Len(t, applied[0].Entries, 1)
	assert.Equal(t, document.FlatEntry{Key: document.Key{Name: "greeting"}, Value: "Hallo"}, applied[0].Entries[0])

	assert.Equal(t, "fr", applied[1].Language)
	assert.Equal(t, []string{"https://app.localhero.ai/r/1"}, urls)
}

func TestRunBatchFailedJobAborts(t *testing.T) {
	backend := &fakeBackend{
		jobs: []api.JobRef{{ID: "j-de", Language: "de"}},
		statuses: map[string][]api.JobStatusResponse{
			"j-de": {
				{Status: "failed", ErrorDetails: "unsupported placeholder"},
			},
		},
		polls: map[string]int{},
	}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	orch := &Orchestrator{
		Client: api.New(srv.URL, "k"),
		sleep:  noSleep,
	}

	err := orch.Run(context.Background(), []diff.Batch{testBatch()})
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "j-de", jobErr.JobID)
	assert.False(t, jobErr.TimedOut)
	assert.Contains(t, jobErr.Error(), "unsupported placeholder")
}

func TestRunBatchTimeout(t *testing.T) {
	backend := &fakeBackend{
		jobs: []api.JobRef{{ID: "j-de", Language: "de"}},
		statuses: map[string][]api.JobStatusResponse{
			"j-de": {{Status: "processing"}},
		},
		polls: map[string]int{},
	}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	orch := &Orchestrator{
		Client:  api.New(srv.URL, "k"),
		Timeout: time.Millisecond,
		sleep: func(ctx context.Context, d time.Duration) error {
			time.Sleep(2 * time.Millisecond)
			return nil
		},
	}

	err := orch.Run(context.Background(), []diff.Batch{testBatch()})
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.True(t, jobErr.TimedOut)
}

func TestCompleteRejectsUnknownLocale(t *testing.T) {
	backend := &fakeBackend{
		jobs: []api.JobRef{{ID: "j-x", Language: "es"}},
		statuses: map[string][]api.JobStatusResponse{
			"j-x": {{Status: "completed", Language: "es"}},
		},
		polls: map[string]int{},
	}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	orch := &Orchestrator{
		Client: api.New(srv.URL, "k"),
		sleep:  noSleep,
	}

	err := orch.Run(context.Background(), []diff.Batch{testBatch()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unexpected locale "es"`)
}

func TestContextQualifiedTranslationKeys(t *testing.T) {
	id := document.Key{Name: "Open", Context: "verb"}.ID()
	backend := &fakeBackend{
		jobs: []api.JobRef{{ID: "j-de", Language: "de"}},
		statuses: map[string][]api.JobStatusResponse{
			"j-de": {{Status: "completed", Language: "de", Translations: map[string]string{id: "Öffnen"}}},
		},
		polls: map[string]int{},
	}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	var got []document.FlatEntry
	orch := &Orchestrator{
		Client: api.New(srv.URL, "k"),
		Apply: func(res Result) error {
			got = res.Entries
			return nil
		},
		sleep: noSleep,
	}

	batch := testBatch()
	batch.Locales = []string{"de"}
	require.NoError(t, orch.Run(context.Background(), []diff.Batch{batch}))

	require.Len(t, got, 1)
	assert.Equal(t, document.Key{Name: "Open", Context: "verb"}, got[0].Key)
	assert.Equal(t, "Öffnen", got[0].Value)
}
