package syncpull

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localheroai/cli-sub002/api"
)

func intPtr(n int) *int { return &n }

func TestFetchUpdatesFollowsPagination(t *testing.T) {
	pages := map[string]api.SyncPageResponse{
		"1": {
			Sync: api.SyncData{
				Version: 4,
				Files: []api.SyncFile{{
					Path: "locales/en.yml",
					Languages: []api.SyncLanguage{{
						Code:         "de",
						Translations: []api.SyncTranslation{{Key: "greeting", Value: "Hallo"}},
					}},
				}},
			},
			Pagination: api.Pagination{Page: 1, NextPage: intPtr(2), TotalPages: 2},
		},
		"2": {
			Sync: api.SyncData{
				Version: 4,
				Files: []api.SyncFile{{
					Path: "locales/en.yml",
					Languages: []api.SyncLanguage{{
						Code:         "de",
						Translations: []api.SyncTranslation{{Key: "farewell", Value: "Tschuss"}},
					}},
				}},
				DeletedKeys: []api.DeletedKey{{Name: "obsolete"}},
			},
			Pagination: api.Pagination{Page: 2, NextPage: nil, TotalPages: 2},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pages[r.URL.Query().Get("page")])
	}))
	defer srv.Close()

	update, err := FetchUpdates(context.Background(), api.New(srv.URL, "k"), "current")
	require.NoError(t, err)

	assert.Equal(t, 4, update.Version)
	require.Len(t, update.Files, 2)
	assert.Equal(t, "greeting", update.Files[0].Languages[0].Translations[0].Key)
	assert.Equal(t, "farewell", update.Files[1].Languages[0].Translations[0].Key)
	require.Len(t, update.DeletedKeys, 1)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func testApplier(dir string, locales ...string) *Applier {
	a := &Applier{
		TargetPath: func(sourcePath, locale string) (string, error) {
			return filepath.Join(dir, "locales", locale+".yml"), nil
		},
	}
	for _, locale := range locales {
		a.Targets = append(a.Targets, Target{
			SourcePath: filepath.Join(dir, "locales", "en.yml"),
			Locale:     locale,
		})
	}
	return a
}

func TestApplyMergesAndDeletes(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "locales", "en.yml")
	target := filepath.Join(dir, "locales", "de.yml")
	writeFile(t, source, "greeting: Hello\nfarewell: Goodbye\nobsolete: Old\n")
	writeFile(t, target, "greeting: Hallo alt\nobsolete: Alt\n")

	update := &Update{
		Version: 3,
		Files: []api.SyncFile{{
			Path: source,
			Languages: []api.SyncLanguage{{
				Code: "de",
				Translations: []api.SyncTranslation{
					{Key: "greeting", Value: "Hallo"},
					{Key: "farewell", Value: "Tschuss"},
				},
			}},
		}},
		DeletedKeys: []api.DeletedKey{{Name: "obsolete"}},
	}

	stats, err := testApplier(dir, "de").Apply(update)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUpdates)
	assert.Equal(t, 1, stats.TotalDeleted)

	out, err := os.ReadFile(target)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "greeting: Hallo\n")
	assert.Contains(t, text, "farewell: Tschuss")
	assert.NotContains(t, text, "obsolete")
}

func TestApplyCreatesMissingTargetFromSourceDialect(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "locales", "en.yml")
	writeFile(t, source, "en:\n  greeting: Hello\n")

	applier := &Applier{
		TargetPath: func(sourcePath, locale string) (string, error) {
			return filepath.Join(dir, "locales", locale+".yml"), nil
		},
	}

	update := &Update{
		Files: []api.SyncFile{{
			Path: source,
			Languages: []api.SyncLanguage{{
				Code:         "de",
				Translations: []api.SyncTranslation{{Key: "greeting", Value: "Hallo"}},
			}},
		}},
	}

	_, err := applier.Apply(update)
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(dir, "locales", "de.yml"))
	require.NoError(t, err)
	assert.Equal(t, "de:\n  greeting: Hallo\n", string(out))
}

func TestApplyRenamesCatalogKeysViaOldValues(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "po", "en.po")
	target := filepath.Join(dir, "po", "de.po")
	writeFile(t, source, `msgid ""
msgstr ""
"Language: en\n"

msgid "Hello there"
msgstr ""
`)
	writeFile(t, target, `msgid ""
msgstr ""
"Language: de\n"

#: ui/main.go:4
msgid "Hello"
msgstr "Hallo"
`)

	applier := &Applier{
		TargetPath: func(sourcePath, locale string) (string, error) {
			return filepath.Join(dir, "po", locale+".po"), nil
		},
	}

	update := &Update{
		Files: []api.SyncFile{{
			Path: source,
			Languages: []api.SyncLanguage{{
				Code: "de",
				Translations: []api.SyncTranslation{{
					Key:       "Hello there",
					Value:     "Hallo du",
					OldValues: []api.OldValue{{Key: "Hello", UpdatedAt: "2026-02-01T00:00:00Z"}},
				}},
			}},
		}},
	}

	_, err := applier.Apply(update)
	require.NoError(t, err)

	out, err := os.ReadFile(target)
	require.NoError(t, err)
	text := string(out)

	// The old identity is gone, the entry kept its references, and the
	// new value landed on the renamed entry.
	assert.NotContains(t, text, `msgid "Hello"`+"\n")
	assert.Contains(t, text, `msgid "Hello there"`)
	assert.Contains(t, text, `msgstr "Hallo du"`)
	assert.Contains(t, text, "#: ui/main.go:4")
}

func TestApplyConflictingVersionChainsFail(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "po", "en.po")
	writeFile(t, source, `msgid ""
msgstr ""
"Language: en\n"
`)

	applier := &Applier{
		TargetPath: func(sourcePath, locale string) (string, error) {
			return filepath.Join(dir, "po", locale+".po"), nil
		},
	}

	update := &Update{
		Files: []api.SyncFile{{
			Path: source,
			Languages: []api.SyncLanguage{{
				Code: "de",
				Translations: []api.SyncTranslation{
					{Key: "merged", Value: "a", OldValues: []api.OldValue{{Key: "first"}}},
					{Key: "merged", Value: "b", OldValues: []api.OldValue{{Key: "second"}}},
				},
			}},
		}},
	}

	_, err := applier.Apply(update)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting key versions")
}

func TestPullAcknowledgesVersion(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "locales", "en.yml")
	writeFile(t, source, "greeting: Hello\n")

	var acked int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body struct {
				Version int `json:"version"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			acked = body.Version
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(api.SyncPageResponse{
			Sync: api.SyncData{
				Version: 9,
				Files: []api.SyncFile{{
					Path: source,
					Languages: []api.SyncLanguage{{
						Code:         "de",
						Translations: []api.SyncTranslation{{Key: "greeting", Value: "Hallo"}},
					}},
				}},
			},
			Pagination: api.Pagination{Page: 1, NextPage: nil, TotalPages: 1},
		})
	}))
	defer srv.Close()

	stats, err := Pull(context.Background(), api.New(srv.URL, "k"), "current", testApplier(dir))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalUpdates)
	assert.Equal(t, 9, acked)
}

func TestApplyDeletionOnlyUpdate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "locales", "en.yml"), "keep: Keep\n")
	target := filepath.Join(dir, "locales", "de.yml")
	writeFile(t, target, "keep: Behalten\nstale: Alt\n")

	update := &Update{
		Version:     5,
		DeletedKeys: []api.DeletedKey{{Name: "stale"}},
	}

	stats, err := testApplier(dir, "de").Apply(update)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalUpdates)
	assert.Equal(t, 1, stats.TotalDeleted)

	out, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "stale")
	assert.Contains(t, string(out), "keep: Behalten")
}

func TestApplyDeletionCountsKeysOnce(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "locales", "en.yml")
	writeFile(t, source, "greeting: Hello\n")
	writeFile(t, filepath.Join(dir, "locales", "de.yml"), "stale: Alt\n")
	writeFile(t, filepath.Join(dir, "locales", "fr.yml"), "stale: Vieux\n")

	update := &Update{
		Files: []api.SyncFile{{
			Path: source,
			Languages: []api.SyncLanguage{
				{Code: "de", Translations: []api.SyncTranslation{{Key: "greeting", Value: "Hallo"}}},
				{Code: "fr", Translations: []api.SyncTranslation{{Key: "greeting", Value: "Bonjour"}}},
			},
		}},
		DeletedKeys: []api.DeletedKey{{Name: "stale"}},
	}

	stats, err := testApplier(dir, "de", "fr").Apply(update)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUpdates)
	assert.Equal(t, 1, stats.TotalDeleted)

	for _, locale := range []string{"de", "fr"} {
		out, err := os.ReadFile(filepath.Join(dir, "locales", locale+".yml"))
		require.NoError(t, err)
		assert.NotContains(t, string(out), "stale")
	}
}

func TestApplyRenameChainWithSeveralOldValues(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "po", "en.po")
	target := filepath.Join(dir, "po", "de.po")
	writeFile(t, source, `msgid ""
msgstr ""
"Language: en\n"
`)
	writeFile(t, target, `msgid ""
msgstr ""
"Language: de\n"

msgid "Hi"
msgstr "Hallo"
`)

	applier := &Applier{
		TargetPath: func(sourcePath, locale string) (string, error) {
			return filepath.Join(dir, "po", locale+".po"), nil
		},
	}

	// The entry was renamed twice; both superseded keys belong to the
	// same translation's history and rename to its current key.
	update := &Update{
		Files: []api.SyncFile{{
			Path: source,
			Languages: []api.SyncLanguage{{
				Code: "de",
				Translations: []api.SyncTranslation{{
					Key:   "Hi there",
					Value: "Hallo du",
					OldValues: []api.OldValue{
						{Key: "Hello", UpdatedAt: "2026-01-01T00:00:00Z"},
						{Key: "Hi", UpdatedAt: "2026-02-01T00:00:00Z"},
					},
				}},
			}},
		}},
	}

	_, err := applier.Apply(update)
	require.NoError(t, err)

	out, err := os.ReadFile(target)
	require.NoError(t, err)
	text := string(out)
	assert.NotContains(t, text, `msgid "Hi"`+"\n")
	assert.Contains(t, text, `msgid "Hi there"`)
	assert.Contains(t, text, `msgstr "Hallo du"`)
}
