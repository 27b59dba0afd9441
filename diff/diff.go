// Package diff flattens documents into key/value sets, computes what is
// missing or changed per target locale, and packs the result into
// size-bounded batches for the remote job API.
package diff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localheroai/cli-sub002/document"
)

// MaxBatchSize is the default cap on entries per job batch. The remote
// API caps payload size and concurrent-job count, so this is a hard
// constraint, not an optimization.
const MaxBatchSize = 100

// wipSentinel marks a source value as work-in-progress. Entries whose
// value leads or trails with it are skipped: neither missing nor sent
// for translation.
const wipSentinel = "[WIP]"

// ---------------------------------------------------------------------------
// Missing-key computation
// ---------------------------------------------------------------------------

// Result is the outcome of comparing one source document against one
// target-locale document.
type Result struct {
	// Missing are source entries to translate for this target.
	Missing []document.FlatEntry
	// Skipped are source keys excluded by the WIP sentinel.
	Skipped []document.Key
}

// FindMissing compares source entries against target entries. A source
// entry is missing when its key is absent from the target, present but
// untranslated, or when it appears in changed (keys known to have
// changed in the current branch) even if the target already has it.
// WIP-marked source values are skipped entirely.
func FindMissing(source, target []document.FlatEntry, changed document.KeySet) Result {
	targetKeys := make(document.KeySet, len(target))
	for _, e := range target {
		// An untranslated catalog entry is present by key only; it
		// still needs a translation.
		if e.Meta.Untranslated {
			continue
		}
		targetKeys.Add(e.Key)
	}

	var res Result
	for _, e := range source {
		if isWIP(e.Value) {
			res.Skipped = append(res.Skipped, e.Key)
			continue
		}
		if !targetKeys.Has(e.Key) || (changed != nil && changed.Has(e.Key)) {
			res.Missing = append(res.Missing, e)
		}
	}
	return res
}

// isWIP reports whether a value carries the work-in-progress sentinel
// at its start or end.
func isWIP(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, wipSentinel) || strings.HasSuffix(trimmed, wipSentinel)
}

// pluralSuffixes are the known plural-variant suffixes a base key may
// carry in catalog and object-notation key spaces.
var pluralSuffixes = []string{
	"plural", "zero", "one", "two", "few", "many", "other",
	"0", "1", "2", "3", "4", "5",
}

// ExpandPlurals widens a changed-key set so that a changed base key
// covers all its plural-suffixed siblings present in the universe, and
// a changed sibling covers its base. Returns a new set.
func ExpandPlurals(keys document.KeySet, universe []document.FlatEntry) document.KeySet {
	expanded := make(document.KeySet, len(keys))
	for k := range keys {
		expanded.Add(k)
	}
	for k := range keys {
		base := pluralBase(k.Name)
		for _, e := range universe {
			if pluralBase(e.Key.Name) == base && e.Key.Context == k.Context {
				expanded.Add(e.Key)
			}
		}
	}
	return expanded
}

// pluralBase strips a recognized plural suffix from a key name.
func pluralBase(name string) string {
	idx := strings.LastIndexByte(name, '_')
	if idx < 0 {
		return name
	}
	suffix := name[idx+1:]
	for _, s := range pluralSuffixes {
		if suffix == s {
			return name[:idx]
		}
	}
	return name
}

// ---------------------------------------------------------------------------
// Batching
// ---------------------------------------------------------------------------

// MissingLocaleEntry is the missing-key set for one (source file,
// target locale) pair.
type MissingLocaleEntry struct {
	Locale     string
	SourcePath string
	TargetPath string
	Keys       []document.FlatEntry
	KeyCount   int
}

// BatchFile is one source file's contribution to a batch.
type BatchFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Batch is one unit of work for the remote job API.
type Batch struct {
	Files   []BatchFile
	Locales []string
	// TargetPaths maps locale to the file the translations merge into.
	TargetPaths map[string]string
	// SourcePath is the owning source document; one batch never spans
	// unrelated source files.
	SourcePath string
}

// BatchKeysWithMissing groups missing entries by their owning source
// document, then by locale, then splits into chunks of at most
// maxBatchSize entries. Locales whose missing-key sets for one source
// file are identical chunk-by-chunk share a batch.
func BatchKeysWithMissing(missing []MissingLocaleEntry, maxBatchSize int) ([]Batch, error) {
	if maxBatchSize <= 0 {
		maxBatchSize = MaxBatchSize
	}

	// Explicit grouping map keyed by source path, preserving first-seen
	// order so batch composition is deterministic.
	bySource := make(map[string][]MissingLocaleEntry)
	var order []string
	for _, m := range missing {
		if len(m.Keys) == 0 {
			continue
		}
		if err := checkUnique(m); err != nil {
			return nil, err
		}
		if _, ok := bySource[m.SourcePath]; !ok {
			order = append(order, m.SourcePath)
		}
		bySource[m.SourcePath] = append(bySource[m.SourcePath], m)
	}

	var batches []Batch
	for _, sourcePath := range order {
		for _, m := range bySource[sourcePath] {
			for start := 0; start < len(m.Keys); start += maxBatchSize {
				end := start + maxBatchSize
				if end > len(m.Keys) {
					end = len(m.Keys)
				}
				chunk := m.Keys[start:end]
				batches = append(batches, Batch{
					Files: []BatchFile{{
						Path:    m.SourcePath,
						Content: encodeEntries(chunk),
					}},
					Locales:     []string{m.Locale},
					TargetPaths: map[string]string{m.Locale: m.TargetPath},
					SourcePath:  m.SourcePath,
				})
			}
		}
	}
	return batches, nil
}

// checkUnique enforces key uniqueness within one document/locale pair.
// A collision is a contract violation, not a runtime choice.
func checkUnique(m MissingLocaleEntry) error {
	seen := make(document.KeySet, len(m.Keys))
	for _, e := range m.Keys {
		if seen.Has(e.Key) {
			return fmt.Errorf("%w", &document.DuplicateKeyError{Path: m.SourcePath, Key: e.Key})
		}
		seen.Add(e.Key)
	}
	return nil
}

// encodeEntries renders a chunk as an ordered JSON object, context-
// qualified keys included, matching the job API's file content shape.
func encodeEntries(entries []document.FlatEntry) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(mustQuote(e.Key.ID()))
		b.WriteByte(':')
		b.WriteString(mustQuote(e.Value))
	}
	b.WriteByte('}')
	return b.String()
}

func mustQuote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(data)
}
