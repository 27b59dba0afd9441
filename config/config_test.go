package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAndResolvePaths(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `source_locale: en
output_locales: [de, fr]
base_branch: main
targets:
  - name: app strings
    source: locales/en.yml
    target_pattern: locales/%lang%.yml
  - name: catalogs
    source: po/en.po
    target_pattern: po/%lang%.po
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.SourceLocale != "en" || cfg.BaseBranch != "main" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Dir() != dir {
		t.Fatalf("Dir = %q, want %q", cfg.Dir(), dir)
	}

	paths := cfg.SourcePaths()
	if len(paths) != 2 || paths[0] != filepath.Join(dir, "locales/en.yml") {
		t.Fatalf("SourcePaths = %v", paths)
	}

	target, err := cfg.TargetPath(paths[0], "de")
	if err != nil {
		t.Fatalf("TargetPath error: %v", err)
	}
	if target != filepath.Join(dir, "locales/de.yml") {
		t.Fatalf("TargetPath = %q", target)
	}

	// The unresolved relative form works too.
	target, err = cfg.TargetPath("po/en.po", "fr")
	if err != nil {
		t.Fatalf("TargetPath error: %v", err)
	}
	if target != filepath.Join(dir, "po/fr.po") {
		t.Fatalf("TargetPath = %q", target)
	}
}

func TestTargetPathUnknownSource(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `source_locale: en
output_locales: [de]
targets:
  - source: locales/en.yml
    target_pattern: locales/%lang%.yml
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if _, err := cfg.TargetPath("undeclared/en.yml", "de"); err == nil {
		t.Fatal("undeclared source should error, not guess a location")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing source locale",
			content: "output_locales: [de]\ntargets: []\n",
			wantErr: "source_locale",
		},
		{
			name:    "missing output locales",
			content: "source_locale: en\ntargets: []\n",
			wantErr: "output_locales",
		},
		{
			name: "pattern without placeholder",
			content: `source_locale: en
output_locales: [de]
targets:
  - source: locales/en.yml
    target_pattern: locales/de.yml
`,
			wantErr: "%lang%",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tc.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestSaveStarterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := Starter().Save(dir); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.SourceLocale != "en" || len(cfg.Targets) != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestAPIKeyEnvOverridesFile(t *testing.T) {
	confDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", confDir)
	t.Setenv(apiKeyEnv, "")

	if got := APIKey(); got != "" {
		t.Fatalf("APIKey with nothing set = %q", got)
	}

	if err := SaveAPIKey("file-key-12345"); err != nil {
		t.Fatalf("SaveAPIKey error: %v", err)
	}
	if got := APIKey(); got != "file-key-12345" {
		t.Fatalf("APIKey from file = %q", got)
	}

	t.Setenv(apiKeyEnv, "env-key-67890")
	if got := APIKey(); got != "env-key-67890" {
		t.Fatalf("APIKey with env set = %q", got)
	}

	// Credentials are written with owner-only permissions.
	info, err := os.Stat(filepath.Join(confDir, configDirName, credentialsFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("credentials mode = %o, want 0600", perm)
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("short"); got != "****" {
		t.Fatalf("MaskKey(short) = %q", got)
	}
	if got := MaskKey("tk_1234567890abcd"); got != "tk_1...abcd" {
		t.Fatalf("MaskKey = %q", got)
	}
}
