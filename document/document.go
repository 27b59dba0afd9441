// Package document defines the shared model for parsed translation files:
// formats, logical keys, flattened entries, the per-file dialect descriptor,
// and the Document interface every format codec implements.
//
// A Document is read fresh per operation, mutated through Merge/DeleteKeys,
// and written back via Serialize. The dialect is inferred once at parse time
// and reused for every later write into the same document, so two merges
// into the same file can never disagree about indentation or nesting style.
package document

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Formats
// ---------------------------------------------------------------------------

// Format identifies one of the three supported file formats.
type Format string

const (
	// FormatYAML: hierarchical mapping files (en.yml, config/locales/*.yml).
	FormatYAML Format = "yaml"
	// FormatJSON: object-notation files (locales/en.json).
	FormatJSON Format = "json"
	// FormatPO: gettext message catalogs (po/de.po).
	FormatPO Format = "po"
)

// ---------------------------------------------------------------------------
// Keys and entries
// ---------------------------------------------------------------------------

// Key is the logical identity of a translation entry.
// Context is only meaningful for catalog entries (msgctxt), where it
// disambiguates identical source strings.
type Key struct {
	Name    string
	Context string
}

// String renders the key for error messages and logs.
func (k Key) String() string {
	if k.Context == "" {
		return k.Name
	}
	return k.Context + "|" + k.Name
}

// keySep joins context and name in the machine form, following the
// gettext convention of EOT between msgctxt and msgid. Names never
// contain it, unlike "|".
const keySep = "\x04"

// ID returns the machine form of the key, reversible via ParseKeyID.
func (k Key) ID() string {
	if k.Context == "" {
		return k.Name
	}
	return k.Context + keySep + k.Name
}

// ParseKeyID reverses Key.ID.
func ParseKeyID(id string) Key {
	if i := strings.Index(id, keySep); i >= 0 {
		return Key{Context: id[:i], Name: id[i+1:]}
	}
	return Key{Name: id}
}

// Metadata holds format-specific extras attached to an entry. It is
// irrelevant to diffing but must survive a round trip through merge.
type Metadata struct {
	// Comments are translator/extracted comment lines (catalog format).
	Comments []string
	// References are source locations, "#:" lines (catalog format).
	References []string
	// Plural indicates the entry belongs to a plural family.
	Plural bool
	// PluralForm is the untranslated plural string (msgid_plural), when set.
	PluralForm string
	// Untranslated marks an entry that exists but carries no translation
	// yet (catalog format, empty msgstr). Its Value falls back to the
	// source string, so presence alone does not mean translated.
	Untranslated bool
}

// FlatEntry is one leaf key of a document, independent of nesting style.
type FlatEntry struct {
	Key   Key
	Value string
	Meta  Metadata
}

// KeySet is a set of logical keys.
type KeySet map[Key]struct{}

// NewKeySet builds a set from the given keys.
func NewKeySet(keys ...Key) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts a key into the set.
func (s KeySet) Add(k Key) { s[k] = struct{}{} }

// Has reports whether the key is in the set.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// ---------------------------------------------------------------------------
// Dialect
// ---------------------------------------------------------------------------

// NestingStyle describes how leaf keys are organized in a document.
type NestingStyle string

const (
	// NestingNested: keys are nested containers ({"nav": {"home": ...}}).
	NestingNested NestingStyle = "nested"
	// NestingFlat: keys are dotted strings at one level ({"nav.home": ...}).
	NestingFlat NestingStyle = "flat"
	// NestingMixed: both styles appear in the same document.
	NestingMixed NestingStyle = "mixed"
)

// Dialect captures the formatting choices of an existing document.
// It is inferred once per document (or inherited from the source-locale
// sibling when the target does not exist yet) and is immutable for the
// life of one update operation.
type Dialect struct {
	// Indent is the indentation width in spaces.
	Indent int
	// IndentSequences reports whether sequence items are indented under
	// their key (mapping format only).
	IndentSequences bool
	// LocaleWrapped reports whether all content lives under a single
	// top-level locale key.
	LocaleWrapped bool
	// WrapperKey is the top-level locale key when LocaleWrapped is set.
	WrapperKey string
	// Nesting is the leaf-key organization (object-notation format).
	Nesting NestingStyle
}

// DefaultDialect is used when writing a brand-new document whose dialect
// was inherited from a source file that itself carried no overrides.
func DefaultDialect() Dialect {
	return Dialect{Indent: 2, Nesting: NestingNested}
}

// ---------------------------------------------------------------------------
// Document interface
// ---------------------------------------------------------------------------

// Document is a parsed translation file. Implementations live in the
// yamlfile, jsonfile, and pofile packages; the codec package dispatches
// on format.
type Document interface {
	// Format returns the document's format.
	Format() Format
	// Dialect returns the dialect inferred at parse time.
	Dialect() Dialect
	// Flatten reduces the document to one entry per leaf key.
	// Keys are unique within one document; a collision is a contract
	// violation surfaced by the parser, not a runtime choice.
	Flatten() []FlatEntry
	// Merge writes the given entries into the document, creating keys
	// that do not exist and updating those that do. Keys not named are
	// never removed or reordered.
	Merge(entries []FlatEntry) error
	// DeleteKeys removes the given leaf keys and any ancestor container
	// they leave empty, without disturbing sibling subtrees.
	DeleteKeys(keys []Key) error
	// Serialize renders the document back to bytes using its dialect.
	Serialize() ([]byte, error)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ParseError reports a malformed document. It is local and never retried.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parsing document: %v", e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DialectError reports a target whose dialect cannot be inferred: the
// file does not exist and no source-locale sibling is available to
// inherit from. Writing such a file would silently fork the format
// across locales, so this is fatal for the file.
type DialectError struct {
	Path string
}

func (e *DialectError) Error() string {
	return fmt.Sprintf("cannot infer dialect for %s: file missing and no source file to inherit from", e.Path)
}

// DuplicateKeyError reports two leaf entries resolving to the same
// logical key within one document.
type DuplicateKeyError struct {
	Path string
	Key  Key
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q in %s", e.Key, e.Path)
}

// ---------------------------------------------------------------------------
// Helpers shared by the codecs
// ---------------------------------------------------------------------------

// SplitPath splits a dotted key path into its segments.
func SplitPath(name string) []string {
	return strings.Split(name, ".")
}

// JoinPath joins key path segments with dots.
func JoinPath(parts ...string) string {
	return strings.Join(parts, ".")
}
