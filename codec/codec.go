// Package codec dispatches on file format. It is the single place that
// maps a path to the right parser, so call sites deal with
// document.Document instead of per-format conditionals.
package codec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/localheroai/cli-sub002/document"
	"github.com/localheroai/cli-sub002/jsonfile"
	"github.com/localheroai/cli-sub002/pofile"
	"github.com/localheroai/cli-sub002/yamlfile"
)

// FormatForPath maps a file extension to its format.
func FormatForPath(path string) (document.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return document.FormatYAML, nil
	case ".json":
		return document.FormatJSON, nil
	case ".po", ".pot":
		return document.FormatPO, nil
	}
	return "", fmt.Errorf("unsupported file format: %s", path)
}

// Parse parses content according to the path's format.
func Parse(path string, data []byte) (document.Document, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case document.FormatYAML:
		return yamlfile.Parse(path, data)
	case document.FormatJSON:
		return jsonfile.Parse(path, data)
	case document.FormatPO:
		return pofile.ParseDoc(path, data)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// Open reads and parses the file at path.
func Open(path string) (document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// OpenTarget opens the target-locale file for a merge. When the target
// does not exist there is no structure to infer locally, so the dialect
// is inherited from the source-locale sibling; if the source is also
// unavailable the dialect cannot be resolved and the file is rejected
// rather than written with a guessed format.
func OpenTarget(targetPath, sourcePath, locale string) (document.Document, error) {
	if data, err := os.ReadFile(targetPath); err == nil {
		return Parse(targetPath, data)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	format, err := FormatForPath(targetPath)
	if err != nil {
		return nil, err
	}
	if format == document.FormatPO {
		// Catalogs have no dialect to inherit; a fresh header suffices.
		return pofile.NewEmptyDoc(targetPath, projectName(targetPath), locale), nil
	}

	src, err := Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &document.DialectError{Path: targetPath}
		}
		return nil, err
	}

	switch format {
	case document.FormatYAML:
		return yamlfile.NewEmpty(targetPath, src.Dialect(), locale), nil
	case document.FormatJSON:
		return jsonfile.NewEmpty(targetPath, src.Dialect(), locale), nil
	}
	return nil, &document.DialectError{Path: targetPath}
}

// Write serializes the document and writes it to path, creating parent
// directories as needed.
func Write(path string, doc document.Document) error {
	data, err := doc.Serialize()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func projectName(path string) string {
	base := filepath.Base(filepath.Dir(path))
	if base == "." || base == "/" || base == "po" {
		return "translations"
	}
	return base
}
