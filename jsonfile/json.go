// Package jsonfile implements the object-notation codec: JSON
// translation files parsed into an order-preserving tree so untouched
// keys round-trip byte-for-byte.
//
// Three nesting dialects exist in the wild and are detected per file:
//
//	{"nav": {"home": "Home"}}          nested objects
//	{"nav.home": "Home"}               flat dotted keys
//	{"nav": {"home": "Home"}, "a.b": "x"}  mixed
//
// A file may additionally be wrapped in a top-level locale key. When a
// target file does not exist yet there is no structure to infer from,
// so its dialect must be inherited from the source-locale sibling;
// writing a new file in the wrong dialect would silently fork the
// format across locales.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localheroai/cli-sub002/document"
	"github.com/localheroai/cli-sub002/langmeta"
)

// ---------------------------------------------------------------------------
// Order-preserving tree
// ---------------------------------------------------------------------------

type nodeKind int

const (
	objectNode nodeKind = iota
	stringNode
	rawNode // numbers, booleans, null, arrays: kept verbatim
)

type member struct {
	key string
	val *node
}

type node struct {
	kind    nodeKind
	members []*member // objectNode
	str     string    // stringNode
	raw     string    // rawNode, original literal text
}

func (n *node) find(key string) *node {
	for _, m := range n.members {
		if m.key == key {
			return m.val
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// File
// ---------------------------------------------------------------------------

// File is a parsed object-notation document.
type File struct {
	path    string
	root    *node
	dialect document.Dialect
	// inner is the object under the locale wrapper, or root itself.
	inner *node
}

var _ document.Document = (*File)(nil)

// Parse parses object-notation content, detecting its dialect.
func Parse(path string, data []byte) (*File, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		root := &node{kind: objectNode}
		return &File{path: path, root: root, inner: root, dialect: document.DefaultDialect()}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	root, err := parseValue(dec, trimmed)
	if err != nil {
		return nil, &document.ParseError{Path: path, Err: err}
	}
	if root.kind != objectNode {
		return nil, &document.ParseError{Path: path, Err: fmt.Errorf("root must be an object")}
	}

	f := &File{path: path, root: root, inner: root}
	f.dialect = detectDialect(trimmed, root)
	if f.dialect.LocaleWrapped {
		f.inner = root.members[0].val
	}
	return f, nil
}

// NewEmpty creates an empty object-notation document carrying an
// inherited dialect. When the dialect is locale-wrapped, locale becomes
// the wrapper key of the new document.
func NewEmpty(path string, dialect document.Dialect, locale string) *File {
	inner := &node{kind: objectNode}
	root := inner
	if dialect.LocaleWrapped {
		root = &node{kind: objectNode, members: []*member{{key: locale, val: inner}}}
		dialect.WrapperKey = locale
	}
	return &File{path: path, root: root, inner: inner, dialect: dialect}
}

func parseValue(dec *json.Decoder, src []byte) (*node, error) {
	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := t.(type) {
	case json.Delim:
		switch v {
		case '{':
			obj := &node{kind: objectNode}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("expected string key, got %v", kt)
				}
				val, err := parseValue(dec, src)
				if err != nil {
					return nil, err
				}
				obj.members = append(obj.members, &member{key: key, val: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			// Arrays are not translated; the original text, whitespace
			// included, is kept verbatim.
			start := dec.InputOffset() - 1
			depth := 1
			for depth > 0 {
				it, err := dec.Token()
				if err != nil {
					return nil, err
				}
				if d, ok := it.(json.Delim); ok {
					switch d {
					case '[', '{':
						depth++
					case ']', '}':
						depth--
					}
				}
			}
			return &node{kind: rawNode, raw: string(src[start:dec.InputOffset()])}, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case string:
		return &node{kind: stringNode, str: v}, nil
	case json.Number:
		return &node{kind: rawNode, raw: v.String()}, nil
	case bool:
		return &node{kind: rawNode, raw: fmt.Sprintf("%v", v)}, nil
	case nil:
		return &node{kind: rawNode, raw: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", t)
}

// ---------------------------------------------------------------------------
// Dialect detection
// ---------------------------------------------------------------------------

func detectDialect(data []byte, root *node) document.Dialect {
	d := document.Dialect{Indent: detectIndent(data)}

	// Locale wrapper: single top-level locale-code key over an object.
	body := root
	if len(root.members) == 1 && langmeta.IsCode(root.members[0].key) && root.members[0].val.kind == objectNode {
		d.LocaleWrapped = true
		d.WrapperKey = root.members[0].key
		body = root.members[0].val
	}

	nested, flat := false, false
	for _, m := range body.members {
		if m.val.kind == objectNode {
			nested = true
		} else if strings.Contains(m.key, ".") {
			flat = true
		}
	}
	switch {
	case nested && flat:
		d.Nesting = document.NestingMixed
	case flat:
		d.Nesting = document.NestingFlat
	default:
		d.Nesting = document.NestingNested
	}
	return d
}

// detectIndent reads the leading whitespace of the first indented line.
func detectIndent(data []byte) int {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == line || strings.TrimSpace(line) == "" {
			continue
		}
		return len(line) - len(strings.TrimLeft(line, " "))
	}
	return 2
}

// ---------------------------------------------------------------------------
// Document interface
// ---------------------------------------------------------------------------

// Format returns document.FormatJSON.
func (f *File) Format() document.Format { return document.FormatJSON }

// Dialect returns the dialect detected at parse time (or inherited for
// new files).
func (f *File) Dialect() document.Dialect { return f.dialect }

// Flatten reduces the document to one entry per leaf string key. Dotted
// flat keys and nested paths collapse into the same key space.
func (f *File) Flatten() []document.FlatEntry {
	var entries []document.FlatEntry
	flattenObject(f.inner, "", &entries)
	return entries
}

func flattenObject(n *node, prefix string, out *[]document.FlatEntry) {
	for _, m := range n.members {
		path := m.key
		if prefix != "" {
			path = prefix + "." + m.key
		}
		switch m.val.kind {
		case objectNode:
			flattenObject(m.val, path, out)
		case stringNode:
			*out = append(*out, document.FlatEntry{
				Key:   document.Key{Name: path},
				Value: m.val.str,
			})
		}
	}
}

// Merge writes the given entries into the tree. Existing keys are
// updated wherever they live (nested or dotted); new keys follow the
// document's nesting dialect. Nothing else is removed or reordered.
func (f *File) Merge(entries []document.FlatEntry) error {
	for _, e := range entries {
		if e.Key.Name == "" {
			return fmt.Errorf("merge into %s: empty key", f.path)
		}
		if f.updateExisting(f.inner, e.Key.Name, e.Value) {
			continue
		}
		f.insert(e.Key.Name, e.Value)
	}
	return nil
}

// updateExisting updates a key in place, trying both a literal dotted
// member and segment-wise descent at every level.
func (f *File) updateExisting(n *node, name, value string) bool {
	for _, m := range n.members {
		if m.key == name && m.val.kind != objectNode {
			m.val.kind = stringNode
			m.val.str = value
			m.val.raw = ""
			return true
		}
		if m.val.kind == objectNode && strings.HasPrefix(name, m.key+".") {
			if f.updateExisting(m.val, name[len(m.key)+1:], value) {
				return true
			}
		}
	}
	return false
}

// insert appends a new key according to the nesting dialect. Flat
// documents get a literal dotted member at the top level; nested and
// mixed documents get segment-wise containers, reusing any that exist.
func (f *File) insert(name, value string) {
	if f.dialect.Nesting == document.NestingFlat {
		f.inner.members = append(f.inner.members, &member{key: name, val: &node{kind: stringNode, str: value}})
		return
	}

	n := f.inner
	segments := document.SplitPath(name)
	for len(segments) > 1 {
		child := n.find(segments[0])
		if child == nil || child.kind != objectNode {
			child = &node{kind: objectNode}
			n.members = append(n.members, &member{key: segments[0], val: child})
		}
		n = child
		segments = segments[1:]
	}
	if existing := n.find(segments[0]); existing != nil {
		existing.kind = stringNode
		existing.str = value
		existing.raw = ""
		return
	}
	n.members = append(n.members, &member{key: segments[0], val: &node{kind: stringNode, str: value}})
}

// DeleteKeys removes the given leaf keys and prunes any object left
// empty along the way.
func (f *File) DeleteKeys(keys []document.Key) error {
	for _, k := range keys {
		deleteKey(f.inner, k.Name)
	}
	return nil
}

// deleteKey removes one key, matching either a literal dotted member or
// a nested path. It returns true when the object is empty afterwards.
func deleteKey(n *node, name string) bool {
	for i, m := range n.members {
		if m.key == name {
			n.members = append(n.members[:i], n.members[i+1:]...)
			return len(n.members) == 0
		}
		if m.val.kind == objectNode && strings.HasPrefix(name, m.key+".") {
			if deleteKey(m.val, name[len(m.key)+1:]) {
				n.members = append(n.members[:i], n.members[i+1:]...)
				return len(n.members) == 0
			}
			return false
		}
	}
	return false
}

// Serialize renders the document with the dialect's indent, preserving
// member order, with a trailing newline.
func (f *File) Serialize() ([]byte, error) {
	var b strings.Builder
	writeNode(&b, f.root, 0, f.dialect.Indent)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func writeNode(b *strings.Builder, n *node, depth, indent int) {
	switch n.kind {
	case stringNode:
		b.WriteString(quote(n.str))
	case rawNode:
		b.WriteString(n.raw)
	case objectNode:
		if len(n.members) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{\n")
		pad := strings.Repeat(" ", (depth+1)*indent)
		for i, m := range n.members {
			b.WriteString(pad)
			b.WriteString(quote(m.key))
			b.WriteString(": ")
			writeNode(b, m.val, depth+1, indent)
			if i < len(n.members)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(" ", depth*indent))
		b.WriteByte('}')
	}
}

// quote returns the JSON encoding of s.
func quote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(data)
}
