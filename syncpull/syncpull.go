// Package syncpull applies backend-initiated sync feeds: paginated
// retrieval, local application through the document codec, and the
// completion acknowledgement.
//
// The local write and the acknowledgement are two separate steps. A
// crash between them is safe to retry: applying the same update twice
// is idempotent, and the backend is the source of truth for "already
// completed".
package syncpull

import (
	"context"
	"fmt"
	"os"

	"github.com/localheroai/cli-sub002/api"
	"github.com/localheroai/cli-sub002/codec"
	"github.com/localheroai/cli-sub002/document"
	"github.com/localheroai/cli-sub002/pofile"
)

// DefaultPerPage is the page size requested from the sync feed.
const DefaultPerPage = 50

// Update is the accumulated sync feed: every page folded into one batch
// of file updates plus the deleted-key list, tagged with the version to
// acknowledge.
type Update struct {
	Version     int
	Files       []api.SyncFile
	DeletedKeys []api.DeletedKey
}

// FetchUpdates retrieves all pages of a sync feed, accumulating them
// into one Update. The loop follows next_page until it is null.
func FetchUpdates(ctx context.Context, client *api.Client, syncID string) (*Update, error) {
	update := &Update{}
	page := 1
	for {
		resp, err := client.SyncPage(ctx, syncID, page, DefaultPerPage)
		if err != nil {
			return nil, err
		}
		update.Version = resp.Sync.Version
		update.Files = append(update.Files, resp.Sync.Files...)
		update.DeletedKeys = append(update.DeletedKeys, resp.Sync.DeletedKeys...)
		if resp.Pagination.NextPage == nil {
			return update, nil
		}
		page = *resp.Pagination.NextPage
	}
}

// Stats reports what an apply changed locally.
type Stats struct {
	TotalUpdates int
	TotalDeleted int
}

// Target is one (source file, locale) pair the project maintains.
type Target struct {
	SourcePath string
	Locale     string
}

// Applier merges a sync update into the working tree.
type Applier struct {
	// TargetPath resolves the target file for a (source path, locale)
	// pair; typically config.TargetPath.
	TargetPath func(sourcePath, locale string) (string, error)
	// Targets enumerates every maintained pair. Deletions apply to all
	// of them, whether or not the feed carries updates for the file.
	Targets []Target
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
}

func (a *Applier) log(format string, args ...any) {
	if a.OnLog != nil {
		a.OnLog(format, args...)
	}
}

// Apply merges every file/language/translation triple of the update,
// then removes every deleted key from every maintained target. A
// deletion-only update therefore still deletes; skipping it and then
// acknowledging the version would lose the deletions for good. Catalog
// entries carrying old_values are renamed in place before the new value
// is written, so translator history stays attached to the evolving
// source string.
func (a *Applier) Apply(update *Update) (Stats, error) {
	var stats Stats

	for _, file := range update.Files {
		for _, lang := range file.Languages {
			n, err := a.applyLanguage(file.Path, lang)
			if err != nil {
				return stats, err
			}
			stats.TotalUpdates += n
		}
	}

	deleted, err := a.applyDeletions(update.DeletedKeys)
	if err != nil {
		return stats, err
	}
	stats.TotalDeleted = deleted
	return stats, nil
}

func (a *Applier) applyLanguage(sourcePath string, lang api.SyncLanguage) (int, error) {
	targetPath, err := a.TargetPath(sourcePath, lang.Code)
	if err != nil {
		return 0, err
	}
	doc, err := codec.OpenTarget(targetPath, sourcePath, lang.Code)
	if err != nil {
		return 0, err
	}

	entries, err := prepare(doc, lang.Translations)
	if err != nil {
		return 0, fmt.Errorf("applying sync to %s: %w", targetPath, err)
	}
	if err := doc.Merge(entries); err != nil {
		return 0, err
	}

	if err := codec.Write(targetPath, doc); err != nil {
		return 0, err
	}
	a.log("updated %s: %d translations", targetPath, len(entries))
	return len(entries), nil
}

// applyDeletions removes the deleted keys from every maintained target
// file that exists. Returns how many distinct keys were actually
// removed somewhere; keys the feed lists but no target carries do not
// count.
func (a *Applier) applyDeletions(deleted []api.DeletedKey) (int, error) {
	if len(deleted) == 0 {
		return 0, nil
	}

	keys := make([]document.Key, 0, len(deleted))
	for _, d := range deleted {
		keys = append(keys, document.Key{Name: d.Name, Context: d.Context})
	}

	removed := make(document.KeySet)
	for _, target := range a.Targets {
		targetPath, err := a.TargetPath(target.SourcePath, target.Locale)
		if err != nil {
			return len(removed), err
		}
		if _, err := os.Stat(targetPath); err != nil {
			// A target that does not exist has nothing to delete, and
			// deleting must never create one.
			continue
		}
		doc, err := codec.OpenTarget(targetPath, target.SourcePath, target.Locale)
		if err != nil {
			return len(removed), err
		}

		present := make(document.KeySet)
		for _, e := range doc.Flatten() {
			present.Add(e.Key)
		}
		hit := false
		for _, k := range keys {
			if present.Has(k) {
				removed.Add(k)
				hit = true
			}
		}
		if !hit {
			continue
		}

		if err := doc.DeleteKeys(keys); err != nil {
			return len(removed), err
		}
		if err := codec.Write(targetPath, doc); err != nil {
			return len(removed), err
		}
		a.log("removed deleted keys from %s", targetPath)
	}
	return len(removed), nil
}

// prepare converts sync translations to flat entries, performing
// old_values renames for catalog targets first. One translation's chain
// may hold any number of superseded keys; they all rename to its
// current key. Two separate translations colliding on the same new key
// are an error, never a silent merge.
func prepare(doc document.Document, translations []api.SyncTranslation) ([]document.FlatEntry, error) {
	poDoc, isCatalog := doc.(*pofile.Doc)

	claimed := make(document.KeySet)
	entries := make([]document.FlatEntry, 0, len(translations))
	for _, tr := range translations {
		newKey := document.Key{Name: tr.Key, Context: tr.Context}
		if len(tr.OldValues) > 0 {
			if claimed.Has(newKey) {
				return nil, fmt.Errorf("conflicting key versions: separate translations supersede to %q", newKey)
			}
			claimed.Add(newKey)
		}
		for _, old := range tr.OldValues {
			if isCatalog {
				// Rename keeps comments, references, and plural forms
				// attached; the merge below only touches the value.
				poDoc.RenameKey(document.Key{Name: old.Key, Context: old.Context}, newKey)
			}
		}
		entries = append(entries, document.FlatEntry{Key: newKey, Value: tr.Value})
	}
	return entries, nil
}

// Pull is the full protocol: fetch all pages, apply locally, then
// acknowledge the version. Returns the stats of the local apply.
func Pull(ctx context.Context, client *api.Client, syncID string, applier *Applier) (Stats, error) {
	update, err := FetchUpdates(ctx, client, syncID)
	if err != nil {
		return Stats{}, err
	}
	stats, err := applier.Apply(update)
	if err != nil {
		return stats, err
	}
	if err := client.CompleteSync(ctx, syncID, update.Version); err != nil {
		return stats, err
	}
	return stats, nil
}
