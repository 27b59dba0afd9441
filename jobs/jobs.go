// Package jobs orchestrates remote translation jobs: submit a batch,
// poll every job to a terminal state, and route completed translations
// to the document codec.
//
// The polling loop is modeled as an explicit state machine with a pure
// transition function, so backoff and timeout behavior is testable
// without real timers. Jobs within one batch are polled concurrently,
// each with an independent backoff clock; batches within one command
// run sequentially to bound the number of concurrent remote jobs.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/localheroai/cli-sub002/api"
	"github.com/localheroai/cli-sub002/codec"
	"github.com/localheroai/cli-sub002/diff"
	"github.com/localheroai/cli-sub002/document"
)

// DefaultTimeout is the client-side wall-clock cap per batch, measured
// from batch submission, not from the last poll.
const DefaultTimeout = 10 * time.Minute

const (
	pollBase = 1 * time.Second
	pollCap  = 30 * time.Second
)

// ---------------------------------------------------------------------------
// Job status state machine
// ---------------------------------------------------------------------------

// Status is the backend-reported job state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StepKind classifies the next action for a polled job.
type StepKind int

const (
	// StepWait: poll again after Step.Wait.
	StepWait StepKind = iota
	// StepDone: job completed, extract translations.
	StepDone
	// StepFailed: backend reported failure. Terminal.
	StepFailed
	// StepTimedOut: client wall-clock cap exceeded. Terminal.
	StepTimedOut
)

// Step is the outcome of one transition.
type Step struct {
	Kind StepKind
	// Wait is the delay before the next poll, for StepWait.
	Wait time.Duration
}

// Transition is the pure poll transition: given the last reported
// status, the time elapsed since batch submission, the previous wait,
// and the timeout cap, it decides the next step. Backoff doubles from
// pollBase and is capped at pollCap.
func Transition(status Status, elapsed, lastWait, timeout time.Duration) Step {
	switch status {
	case StatusCompleted:
		return Step{Kind: StepDone}
	case StatusFailed:
		return Step{Kind: StepFailed}
	}
	if elapsed >= timeout {
		return Step{Kind: StepTimedOut}
	}
	next := pollBase
	if lastWait > 0 {
		next = lastWait * 2
	}
	if next > pollCap {
		next = pollCap
	}
	return Step{Kind: StepWait, Wait: next}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// JobError reports a job that ended in failure or timed out. Job-level
// errors abort the whole command: partial, un-signaled translation loss
// is worse than a hard stop.
type JobError struct {
	JobID    string
	Language string
	TimedOut bool
	Detail   string
}

func (e *JobError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("translation job %s (%s) timed out", e.JobID, e.Language)
	}
	if e.Detail != "" {
		return fmt.Sprintf("translation job %s (%s) failed: %s", e.JobID, e.Language, e.Detail)
	}
	return fmt.Sprintf("translation job %s (%s) failed", e.JobID, e.Language)
}

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

// Result is the payload of one completed job.
type Result struct {
	Language   string
	TargetPath string
	Entries    []document.FlatEntry
	ResultsURL string
}

// Orchestrator submits batches and drives them to completion.
type Orchestrator struct {
	Client *api.Client
	// Timeout is the per-batch wall-clock cap (DefaultTimeout if zero).
	Timeout time.Duration
	// Apply merges one completed job's translations into its target.
	Apply func(res Result) error
	// OnResults receives the backend's results URL, when present.
	OnResults func(url string)
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (o *Orchestrator) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o *Orchestrator) sleepFn() func(context.Context, time.Duration) error {
	if o.sleep != nil {
		return o.sleep
	}
	return func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}
}

// Run processes batches sequentially. A failed or timed-out job aborts
// the remaining batches and propagates the error rather than silently
// skipping locales.
func (o *Orchestrator) Run(ctx context.Context, batches []diff.Batch) error {
	for i, b := range batches {
		o.log("submitting batch %d/%d (%s)", i+1, len(batches), b.SourcePath)
		if err := o.runBatch(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runBatch(ctx context.Context, batch diff.Batch) error {
	req := api.CreateJobRequest{
		TargetLanguages: batch.Locales,
	}
	for _, f := range batch.Files {
		format, err := formatName(f.Path)
		if err != nil {
			return err
		}
		req.Files = append(req.Files, api.JobFile{
			Path:        f.Path,
			Content:     f.Content,
			Format:      format,
			TargetPaths: batch.TargetPaths,
		})
	}

	resp, err := o.Client.CreateJob(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Jobs) == 0 {
		return fmt.Errorf("backend created no jobs for %s", batch.SourcePath)
	}

	// Wall clock starts at submission and is shared by every job in the
	// batch; each job's backoff clock is its own.
	start := time.Now()

	var wg sync.WaitGroup
	errs := make(chan error, len(resp.Jobs))
	for _, job := range resp.Jobs {
		wg.Add(1)
		go func(job api.JobRef) {
			defer wg.Done()
			if err := o.pollJob(ctx, job, batch, start); err != nil {
				errs <- err
			}
		}(job)
	}
	wg.Wait()
	close(errs)

	// Join-on-all: the batch completes only when every job reached a
	// terminal state; the first error wins.
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) pollJob(ctx context.Context, job api.JobRef, batch diff.Batch, start time.Time) error {
	lastWait := time.Duration(0)
	status := StatusPending

	for {
		step := Transition(status, time.Since(start), lastWait, o.timeout())
		switch step.Kind {
		case StepDone:
			return o.complete(ctx, job, batch)
		case StepFailed:
			detail := ""
			if st, err := o.Client.JobStatus(ctx, job.ID); err == nil {
				detail = st.ErrorDetails
			}
			return &JobError{JobID: job.ID, Language: job.Language, Detail: detail}
		case StepTimedOut:
			return &JobError{JobID: job.ID, Language: job.Language, TimedOut: true}
		case StepWait:
			if err := o.sleepFn()(ctx, step.Wait); err != nil {
				return err
			}
			lastWait = step.Wait
			st, err := o.Client.JobStatus(ctx, job.ID)
			if err != nil {
				return err
			}
			status = Status(st.Status)
		}
	}
}

func (o *Orchestrator) complete(ctx context.Context, job api.JobRef, batch diff.Batch) error {
	st, err := o.Client.JobStatus(ctx, job.ID)
	if err != nil {
		return err
	}

	lang := st.Language
	if lang == "" {
		lang = job.Language
	}
	targetPath, ok := batch.TargetPaths[lang]
	if !ok {
		return fmt.Errorf("job %s completed for unexpected locale %q", job.ID, lang)
	}

	entries := make([]document.FlatEntry, 0, len(st.Translations))
	for id, value := range st.Translations {
		entries = append(entries, document.FlatEntry{
			Key:   document.ParseKeyID(id),
			Value: value,
		})
	}

	if st.ResultsURL != "" && o.OnResults != nil {
		o.OnResults(st.ResultsURL)
	}

	o.log("job %s completed: %d translations for %s", job.ID, len(entries), lang)
	if o.Apply == nil {
		return nil
	}
	return o.Apply(Result{
		Language:   lang,
		TargetPath: targetPath,
		Entries:    entries,
		ResultsURL: st.ResultsURL,
	})
}

func formatName(path string) (string, error) {
	f, err := codec.FormatForPath(path)
	if err != nil {
		return "", err
	}
	return string(f), nil
}
