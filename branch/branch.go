// Package branch restricts translation scope to keys that changed in
// the current branch, by comparing working-tree source documents
// against their blobs at the merge-base with a base branch.
//
// "Filter unavailable" (base ref unknown, oversized diff) is a distinct
// outcome from "no keys changed": the former surfaces ErrUnavailable so
// callers fail loudly instead of silently widening scope; the latter is
// an empty set.
package branch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/localheroai/cli-sub002/codec"
	"github.com/localheroai/cli-sub002/diff"
	"github.com/localheroai/cli-sub002/document"
)

// ErrUnavailable means the branch comparison cannot be performed.
// Callers must not treat it as "nothing changed".
var ErrUnavailable = errors.New("branch change filter unavailable")

// maxBlobSize bounds the base-side blob read. Larger diffs make the
// filter unavailable rather than slow.
const maxBlobSize = 10 << 20

// Filter computes changed keys against a git base branch.
type Filter struct {
	// Dir is the repository working directory.
	Dir string

	// run executes a git command; swapped out in tests.
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// New creates a Filter rooted at dir.
func New(dir string) *Filter {
	f := &Filter{Dir: dir}
	f.run = func(ctx context.Context, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = f.Dir
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
		}
		return out, nil
	}
	return f
}

// ChangedKeys returns the set of keys whose value differs between the
// working tree and the merge-base with baseBranch, across the given
// source documents. A key present on only one side counts as changed.
// Plural siblings of changed keys are included.
//
// Returns (nil, ErrUnavailable) when the comparison cannot be performed
// and (empty set, nil) when it ran and found nothing.
func (f *Filter) ChangedKeys(ctx context.Context, baseBranch string, sourcePaths []string) (document.KeySet, error) {
	mergeBase, err := f.run(ctx, "merge-base", baseBranch, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve %s: %v", ErrUnavailable, baseBranch, err)
	}
	base := strings.TrimSpace(string(mergeBase))

	changed := make(document.KeySet)
	for _, path := range sourcePaths {
		current, err := codec.Open(path)
		if err != nil {
			return nil, err
		}
		currentEntries := current.Flatten()

		baseEntries, err := f.entriesAt(ctx, base, path)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return nil, err
			}
			return nil, err
		}

		compare(currentEntries, baseEntries, changed)
		changed = diff.ExpandPlurals(changed, currentEntries)
	}
	return changed, nil
}

// entriesAt reads and flattens the document at rev:path. A file absent
// at the base revision flattens to nothing, making all its current keys
// changed.
func (f *Filter) entriesAt(ctx context.Context, rev, path string) ([]document.FlatEntry, error) {
	spec := rev + ":" + path

	if out, err := f.run(ctx, "cat-file", "-s", spec); err == nil {
		if size, perr := strconv.Atoi(strings.TrimSpace(string(out))); perr == nil && size > maxBlobSize {
			return nil, fmt.Errorf("%w: %s is %d bytes at %s", ErrUnavailable, path, size, rev)
		}
	} else {
		// Blob missing at base: the file is new on this branch.
		return nil, nil
	}

	data, err := f.run(ctx, "show", spec)
	if err != nil {
		return nil, nil
	}
	doc, err := codec.Parse(path, data)
	if err != nil {
		return nil, err
	}
	return doc.Flatten(), nil
}

// compare adds keys whose values differ (or that exist on one side
// only) to the changed set.
func compare(current, base []document.FlatEntry, changed document.KeySet) {
	baseValues := make(map[document.Key]string, len(base))
	for _, e := range base {
		baseValues[e.Key] = e.Value
	}

	seen := make(document.KeySet, len(current))
	for _, e := range current {
		seen.Add(e.Key)
		if v, ok := baseValues[e.Key]; !ok || v != e.Value {
			changed.Add(e.Key)
		}
	}
	for _, e := range base {
		if !seen.Has(e.Key) {
			changed.Add(e.Key)
		}
	}
}
