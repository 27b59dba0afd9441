// Package translate drives the end-to-end translation flow: determine
// what is missing per target locale, pack it into batches, run remote
// jobs, and merge completed translations back into the target files.
package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localheroai/cli-sub002/api"
	"github.com/localheroai/cli-sub002/branch"
	"github.com/localheroai/cli-sub002/codec"
	"github.com/localheroai/cli-sub002/config"
	"github.com/localheroai/cli-sub002/diff"
	"github.com/localheroai/cli-sub002/document"
	"github.com/localheroai/cli-sub002/jobs"
)

// Options controls one translate run.
type Options struct {
	// Config is the loaded project configuration.
	Config *config.Config
	// Client talks to the backend.
	Client *api.Client
	// ChangedOnly restricts scope to keys changed vs. the base branch.
	// When the branch comparison is unavailable the run fails; it never
	// silently widens back to full scope.
	ChangedOnly bool
	// MaxBatchSize caps entries per job batch (diff.MaxBatchSize if 0).
	MaxBatchSize int
	// Timeout caps each batch's wall-clock time (jobs.DefaultTimeout if 0).
	Timeout time.Duration
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
	// OnResults receives the backend's results URL, when present.
	OnResults func(url string)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Summary reports what a run did.
type Summary struct {
	// MissingKeys is the total number of entries sent for translation.
	MissingKeys int
	// SkippedWIP counts source entries excluded by the WIP sentinel.
	SkippedWIP int
	// Batches is how many job batches were submitted.
	Batches int
	// Locales lists the locales that received updates.
	Locales []string
}

// Run executes the flow. Codec-level problems with a single file abort
// only that file's locale pair where practical; job-level failures
// abort the whole run.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	cfg := opts.Config

	var changed document.KeySet
	if opts.ChangedOnly {
		filter := branch.New(cfg.Dir())
		base := cfg.BaseBranch
		if base == "" {
			base = "main"
		}
		var err error
		changed, err = filter.ChangedKeys(ctx, base, cfg.SourcePaths())
		if err != nil {
			if errors.Is(err, branch.ErrUnavailable) {
				return nil, fmt.Errorf("cannot restrict to changed keys: %w", err)
			}
			return nil, err
		}
		opts.log("restricting to %d changed keys (base %s)", len(changed), base)
	}

	missing, skipped, err := collectMissing(cfg, changed, opts)
	if err != nil {
		return nil, err
	}

	summary := &Summary{SkippedWIP: skipped}
	localeSet := make(map[string]struct{})
	for _, m := range missing {
		summary.MissingKeys += m.KeyCount
		localeSet[m.Locale] = struct{}{}
	}
	for l := range localeSet {
		summary.Locales = append(summary.Locales, l)
	}
	if summary.MissingKeys == 0 {
		opts.log("all locales up to date")
		return summary, nil
	}

	batches, err := diff.BatchKeysWithMissing(missing, opts.MaxBatchSize)
	if err != nil {
		return nil, err
	}
	summary.Batches = len(batches)
	opts.log("translating %d keys in %d batches", summary.MissingKeys, len(batches))

	orch := &jobs.Orchestrator{
		Client:    opts.Client,
		Timeout:   opts.Timeout,
		Apply:     applyResult(cfg),
		OnResults: opts.OnResults,
		OnLog:     opts.OnLog,
	}
	if err := orch.Run(ctx, batches); err != nil {
		return nil, err
	}
	return summary, nil
}

// collectMissing diffs every (source file, target locale) pair.
func collectMissing(cfg *config.Config, changed document.KeySet, opts Options) ([]diff.MissingLocaleEntry, int, error) {
	var missing []diff.MissingLocaleEntry
	skipped := 0

	for i := range cfg.Targets {
		sourcePath := cfg.SourcePaths()[i]

		src, err := codec.Open(sourcePath)
		if err != nil {
			return nil, 0, err
		}
		sourceEntries := src.Flatten()

		scope := changed
		if scope != nil {
			// A changed base key covers its plural siblings.
			scope = diff.ExpandPlurals(scope, sourceEntries)
		}

		for _, locale := range cfg.OutputLocales {
			targetPath, err := cfg.TargetPath(sourcePath, locale)
			if err != nil {
				return nil, 0, err
			}
			doc, err := codec.OpenTarget(targetPath, sourcePath, locale)
			if err != nil {
				return nil, 0, err
			}

			res := diff.FindMissing(sourceEntries, doc.Flatten(), scope)
			skipped += len(res.Skipped)

			entries := res.Missing
			if scope != nil {
				entries = restrictToScope(entries, scope)
			}
			if len(entries) == 0 {
				continue
			}
			missing = append(missing, diff.MissingLocaleEntry{
				Locale:     locale,
				SourcePath: sourcePath,
				TargetPath: targetPath,
				Keys:       entries,
				KeyCount:   len(entries),
			})
		}
	}
	return missing, skipped, nil
}

// restrictToScope drops entries outside the changed-key scope.
func restrictToScope(entries []document.FlatEntry, scope document.KeySet) []document.FlatEntry {
	kept := entries[:0:0]
	for _, e := range entries {
		if scope.Has(e.Key) {
			kept = append(kept, e)
		}
	}
	return kept
}

// applyResult merges one completed job into its target file. The target
// is read fresh per job: documents are never cached across operations.
func applyResult(cfg *config.Config) func(res jobs.Result) error {
	return func(res jobs.Result) error {
		sourcePath := sourceFor(cfg, res.TargetPath, res.Language)
		doc, err := codec.OpenTarget(res.TargetPath, sourcePath, res.Language)
		if err != nil {
			return err
		}
		if err := doc.Merge(res.Entries); err != nil {
			return err
		}
		return codec.Write(res.TargetPath, doc)
	}
}

func sourceFor(cfg *config.Config, targetPath, locale string) string {
	for _, sourcePath := range cfg.SourcePaths() {
		resolved, err := cfg.TargetPath(sourcePath, locale)
		if err == nil && resolved == targetPath {
			return sourcePath
		}
	}
	return ""
}
