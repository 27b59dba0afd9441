// Catalog-format Document adapter. The underlying File keeps full
// gettext fidelity (comments, references, plural forms); this adapter
// exposes the flatten/merge/delete surface shared with the other
// codecs. Merging is surgical: only the translated-string field of an
// existing entry is ever replaced.
package pofile

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/localheroai/cli-sub002/document"
)

// Doc adapts a PO File to the document.Document interface.
type Doc struct {
	path string
	file *File
	// lang is the catalog's language, read from the header when present.
	lang string
}

var _ document.Document = (*Doc)(nil)

// ParseDoc parses catalog content into a Doc. Duplicate (msgid, msgctxt)
// pairs are a contract violation and fail the parse.
func ParseDoc(path string, data []byte) (*Doc, error) {
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &document.ParseError{Path: path, Err: err}
	}

	seen := make(map[document.Key]struct{}, len(f.Entries))
	for _, e := range f.Entries {
		if e.MsgID == "" || e.Obsolete {
			continue
		}
		k := document.Key{Name: e.MsgID, Context: e.MsgCtxt}
		if _, dup := seen[k]; dup {
			return nil, &document.DuplicateKeyError{Path: path, Key: k}
		}
		seen[k] = struct{}{}
	}

	return &Doc{path: path, file: f, lang: f.HeaderField("Language")}, nil
}

// NewEmptyDoc creates a catalog with a fresh header for the given
// language, used when a target file does not exist yet.
func NewEmptyDoc(path, project, lang string) *Doc {
	f := NewFile()
	f.Header = MakeHeader(project, "1.0", "", "", lang)
	f.SetHeaderField("Plural-Forms", PluralFormsForLang(lang))
	return &Doc{path: path, file: f, lang: lang}
}

// File exposes the underlying catalog for callers that need gettext
// specifics (header fields, fuzzy flags).
func (d *Doc) File() *File { return d.file }

// Format returns document.FormatPO.
func (d *Doc) Format() document.Format { return document.FormatPO }

// Dialect returns the default dialect; catalogs carry no indentation or
// nesting choices to preserve.
func (d *Doc) Dialect() document.Dialect { return document.DefaultDialect() }

// Flatten returns one entry per catalog message. Plural entries collapse
// to a single FlatEntry whose value is the JSON array of plural forms.
func (d *Doc) Flatten() []document.FlatEntry {
	var entries []document.FlatEntry
	for _, e := range d.file.Entries {
		if e.MsgID == "" || e.Obsolete {
			continue
		}
		entries = append(entries, document.FlatEntry{
			Key:   document.Key{Name: e.MsgID, Context: e.MsgCtxt},
			Value: entryValue(e),
			Meta: document.Metadata{
				Comments:     append(append([]string(nil), e.TranslatorComments...), e.ExtractedComments...),
				References:   append([]string(nil), e.References...),
				Plural:       e.MsgIDPlural != "",
				PluralForm:   e.MsgIDPlural,
				Untranslated: untranslated(e),
			},
		})
	}
	return entries
}

func untranslated(e *Entry) bool {
	if e.MsgIDPlural == "" {
		return e.MsgStr == ""
	}
	return len(e.MsgStrPlural) == 0
}

func entryValue(e *Entry) string {
	if e.MsgIDPlural == "" {
		if e.MsgStr != "" {
			return e.MsgStr
		}
		return e.MsgID
	}
	if len(e.MsgStrPlural) == 0 {
		return pluralJSON([]string{e.MsgID, e.MsgIDPlural})
	}
	indices := make([]int, 0, len(e.MsgStrPlural))
	for i := range e.MsgStrPlural {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	forms := make([]string, 0, len(indices))
	for _, i := range indices {
		forms = append(forms, e.MsgStrPlural[i])
	}
	return pluralJSON(forms)
}

func pluralJSON(forms []string) string {
	data, err := json.Marshal(forms)
	if err != nil {
		return ""
	}
	return string(data)
}

// Merge writes translated values into matching entries, replacing only
// the msgstr fields; comments, references, flags, and plural sources
// stay untouched. Entries with no match are appended.
func (d *Doc) Merge(entries []document.FlatEntry) error {
	for _, in := range entries {
		if d.file.SetTranslation(in.Key.Name, in.Key.Context, in.Value) {
			continue
		}
		e := &Entry{
			MsgID:        in.Key.Name,
			MsgCtxt:      in.Key.Context,
			MsgIDPlural:  in.Meta.PluralForm,
			MsgStrPlural: make(map[int]string),
			References:   append([]string(nil), in.Meta.References...),
		}
		applyTranslation(e, in.Value)
		d.file.Entries = append(d.file.Entries, e)
	}
	return nil
}

// RenameKey changes an entry's identity in place, used for key
// versioning chains where the source string of an entry changed.
func (d *Doc) RenameKey(old, new document.Key) bool {
	return d.file.Rename(old.Name, old.Context, new.Name, new.Context)
}

// DeleteKeys removes catalog entries by (msgid, msgctxt).
func (d *Doc) DeleteKeys(keys []document.Key) error {
	for _, k := range keys {
		d.file.RemoveEntry(k.Name, k.Context)
	}
	return nil
}

// Serialize renders the catalog in standard PO syntax.
func (d *Doc) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.file.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Language returns the catalog language code, falling back to deriving
// it from the file name ("po/de.po" -> "de").
func (d *Doc) Language() string {
	if d.lang != "" {
		return d.lang
	}
	base := d.path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".po")
}
