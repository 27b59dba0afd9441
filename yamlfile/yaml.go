// Package yamlfile implements the mapping-format codec: parsing,
// dialect detection, merging, key deletion, and re-serialization of
// hierarchical YAML translation files.
//
// Supported shapes:
//
//	greeting: Hello
//	nav:
//	  home: Home
//
// and the locale-wrapped style common in Rails projects:
//
//	en:
//	  greeting: Hello
//	  nav:
//	    home: Home
//
// The codec works on yaml.Node trees so that keys it was not asked to
// touch keep their order, comments, and scalar style on round-trip.
package yamlfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/localheroai/cli-sub002/document"
	"github.com/localheroai/cli-sub002/langmeta"
)

// maxInlineArrayItems bounds how many elements a JSON-array-shaped
// string value may unpack into a native sequence. Longer inputs stay
// plain strings.
const maxInlineArrayItems = 100

// dialectProbeLines is how many non-blank lines dialect detection reads.
const dialectProbeLines = 10

// ---------------------------------------------------------------------------
// File
// ---------------------------------------------------------------------------

// File is a parsed mapping-format document.
type File struct {
	path    string
	node    *yaml.Node
	dialect document.Dialect
	// wrapper points at the mapping under the locale key when the
	// document is locale-wrapped, otherwise at the root mapping.
	wrapper *yaml.Node
}

var _ document.Document = (*File)(nil)

// Parse parses mapping-format content. The path is used in errors only.
func Parse(path string, data []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &document.ParseError{Path: path, Err: err}
	}

	f := &File{
		path:    path,
		node:    &doc,
		dialect: DetectDialect(data),
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		// Empty file: normalize to an empty mapping root.
		root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		f.node = &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
		f.wrapper = root
		return f, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &document.ParseError{Path: path, Err: fmt.Errorf("root must be a mapping, got %s", kindName(root.Kind))}
	}

	f.wrapper = root
	if len(root.Content) == 2 {
		keyNode, valNode := root.Content[0], root.Content[1]
		if keyNode.Kind == yaml.ScalarNode && valNode.Kind == yaml.MappingNode && langmeta.IsCode(keyNode.Value) {
			f.dialect.LocaleWrapped = true
			f.dialect.WrapperKey = keyNode.Value
			f.wrapper = valNode
		}
	}

	return f, nil
}

// NewEmpty creates an empty mapping document carrying an inherited
// dialect. When the dialect is locale-wrapped, locale becomes the
// top-level wrapper key of the new document.
func NewEmpty(path string, dialect document.Dialect, locale string) *File {
	inner := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	root := inner
	if dialect.LocaleWrapped {
		root = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		root.Content = []*yaml.Node{scalarNode(locale, 0), inner}
		dialect.WrapperKey = locale
	}
	return &File{
		path:    path,
		node:    &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}},
		dialect: dialect,
		wrapper: inner,
	}
}

// ---------------------------------------------------------------------------
// Dialect detection
// ---------------------------------------------------------------------------

// DetectDialect infers indentation width and sequence-indent style from
// the first few non-blank lines of content. Locale wrapping is detected
// structurally in Parse.
func DetectDialect(data []byte) document.Dialect {
	d := document.DefaultDialect()

	seen := 0
	indentFixed := false
	prevIndent := -1
	blockIndent := -1
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indentHere := len(line) - len(strings.TrimLeft(line, " "))
		if blockIndent >= 0 {
			if indentHere > blockIndent {
				continue
			}
			blockIndent = -1
		}
		if opensBlockScalar(trimmed) {
			blockIndent = indentHere
			prevIndent = indentHere
			continue
		}
		seen++
		if seen > dialectProbeLines {
			break
		}

		indent := indentHere
		if strings.HasPrefix(trimmed, "- ") || trimmed == "-" {
			// Sequence item indented deeper than the key above it.
			if prevIndent >= 0 && indent > prevIndent {
				d.IndentSequences = true
			}
			continue
		}
		if !indentFixed && prevIndent >= 0 && indent > prevIndent {
			// First nested line fixes the width.
			d.Indent = indent - prevIndent
			indentFixed = true
		}
		prevIndent = indent
	}

	if d.Indent <= 0 {
		d.Indent = 2
	}
	return d
}

// ---------------------------------------------------------------------------
// Document interface
// ---------------------------------------------------------------------------

// Format returns document.FormatYAML.
func (f *File) Format() document.Format { return document.FormatYAML }

// Dialect returns the dialect inferred at parse time.
func (f *File) Dialect() document.Dialect { return f.dialect }

// Flatten reduces the document to one entry per leaf key, using dotted
// paths relative to the locale wrapper (if any).
func (f *File) Flatten() []document.FlatEntry {
	var entries []document.FlatEntry
	collectLeaves(f.wrapper, "", &entries)
	return entries
}

func collectLeaves(node *yaml.Node, prefix string, out *[]document.FlatEntry) {
	if node == nil || node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		path := keyNode.Value
		if prefix != "" {
			path = prefix + "." + keyNode.Value
		}
		switch valNode.Kind {
		case yaml.MappingNode:
			collectLeaves(valNode, path, out)
		case yaml.SequenceNode:
			*out = append(*out, document.FlatEntry{
				Key:   document.Key{Name: path},
				Value: sequenceAsJSON(valNode),
			})
		case yaml.ScalarNode:
			*out = append(*out, document.FlatEntry{
				Key:   document.Key{Name: path},
				Value: valNode.Value,
			})
		}
	}
}

// sequenceAsJSON renders a sequence of scalars as a JSON array string,
// the flat representation used for diffing.
func sequenceAsJSON(node *yaml.Node) string {
	items := make([]string, 0, len(node.Content))
	for _, c := range node.Content {
		items = append(items, c.Value)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(data)
}

// Merge writes the given entries into the node tree. Existing keys are
// updated in place; new keys are appended to their owning mapping.
// Nothing else is removed or reordered.
func (f *File) Merge(entries []document.FlatEntry) error {
	for _, e := range entries {
		if e.Key.Name == "" {
			return fmt.Errorf("merge into %s: empty key", f.path)
		}
		setValue(f.wrapper, document.SplitPath(e.Key.Name), e.Value)
	}
	return nil
}

func setValue(node *yaml.Node, segments []string, value string) {
	head, rest := segments[0], segments[1:]

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != head {
			continue
		}
		valNode := node.Content[i+1]
		if len(rest) == 0 {
			node.Content[i+1] = valueNode(value, valNode)
			return
		}
		if valNode.Kind != yaml.MappingNode {
			// A scalar stands where a container is needed; replace it.
			valNode = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			node.Content[i+1] = valNode
		}
		setValue(valNode, rest, value)
		return
	}

	// Key absent: append to the owning mapping.
	if len(rest) == 0 {
		node.Content = append(node.Content, scalarNode(head, 0), valueNode(value, nil))
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	node.Content = append(node.Content, scalarNode(head, 0), child)
	setValue(child, rest, value)
}

// DeleteKeys removes the given leaf keys and prunes any mapping left
// empty along the way.
func (f *File) DeleteKeys(keys []document.Key) error {
	for _, k := range keys {
		deletePath(f.wrapper, document.SplitPath(k.Name))
	}
	return nil
}

// deletePath removes a key path from a mapping node. It returns true
// when the mapping is empty afterwards, telling the parent to prune.
func deletePath(node *yaml.Node, segments []string) bool {
	head, rest := segments[0], segments[1:]
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != head {
			continue
		}
		valNode := node.Content[i+1]
		if len(rest) > 0 {
			if valNode.Kind != yaml.MappingNode {
				return false
			}
			if !deletePath(valNode, rest) {
				return false
			}
		}
		node.Content = append(node.Content[:i], node.Content[i+2:]...)
		return len(node.Content) == 0
	}
	return false
}

// Serialize renders the document using the detected dialect's indent
// and sequence-indent style.
func (f *File) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(f.dialect.Indent)
	if err := enc.Encode(f.node); err != nil {
		return nil, fmt.Errorf("serializing %s: %w", f.path, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("serializing %s: %w", f.path, err)
	}
	out := buf.Bytes()
	if !f.dialect.IndentSequences {
		out = dedentSequences(out, f.dialect.Indent)
	}
	return out, nil
}

// dedentSequences shifts sequence items back to their key's column. The
// encoder always indents sequence items one level past the key, which
// rewrites every sequence line in documents whose source style keeps
// items flush with the key. Block scalar bodies are left untouched.
func dedentSequences(data []byte, width int) []byte {
	lines := strings.Split(string(data), "\n")
	blockIndent := -1
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		indent := len(line) - len(trimmed)
		if blockIndent >= 0 {
			if strings.TrimSpace(line) == "" || indent > blockIndent {
				continue
			}
			blockIndent = -1
		}
		if opensBlockScalar(trimmed) {
			blockIndent = indent
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || trimmed == "-" {
			cut := width
			if cut > indent {
				cut = indent
			}
			lines[i] = line[cut:]
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

func opensBlockScalar(trimmed string) bool {
	for _, suffix := range []string{": |", ": |-", ": |+", ": >", ": >-", ": >+"} {
		if strings.HasSuffix(trimmed, suffix) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Value serialization policy
// ---------------------------------------------------------------------------

// specialChars force double-quoting when present in a value. Embedded
// quotes are deliberately absent: a value whose only awkward character
// is a quote keeps its existing style to avoid needless escaping.
const specialChars = ":{}[],&*#?|<>=!%@`"

// interpolationMarker is the Ruby-style interpolation opener.
const interpolationMarker = "%{"

// valueNode builds the yaml.Node for a merged value, applying the
// quoting policy. prev is the node being replaced (nil for new keys);
// its style is preserved when the new value does not require quoting.
func valueNode(value string, prev *yaml.Node) *yaml.Node {
	if strings.Contains(value, "\n") {
		return scalarNode(value, yaml.LiteralStyle)
	}

	if seq := tryInlineArray(value); seq != nil {
		return seq
	}

	if forceQuote(value) {
		return scalarNode(value, yaml.DoubleQuotedStyle)
	}

	style := yaml.Style(0)
	if prev != nil && prev.Kind == yaml.ScalarNode {
		style = prev.Style
	}
	if value == "" && style == 0 {
		style = yaml.DoubleQuotedStyle
	}
	return scalarNode(value, style)
}

// forceQuote reports whether the value must be double-quoted: it holds
// an interpolation marker, one of the special characters, or
// significant leading/trailing whitespace. An embedded quote alone,
// without interpolation, does not force quoting.
func forceQuote(value string) bool {
	if strings.Contains(value, interpolationMarker) {
		return true
	}
	if strings.ContainsAny(value, specialChars) {
		return true
	}
	return value != strings.TrimSpace(value) && value != ""
}

// tryInlineArray detects a JSON-array-shaped string and unpacks it into
// a native sequence node, up to maxInlineArrayItems elements.
func tryInlineArray(value string) *yaml.Node {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil
	}
	if len(items) > maxInlineArrayItems {
		return nil
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, item := range items {
		style := yaml.Style(0)
		if forceQuote(item) {
			style = yaml.DoubleQuotedStyle
		}
		seq.Content = append(seq.Content, scalarNode(item, style))
	}
	return seq
}

func scalarNode(value string, style yaml.Style) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, Style: style}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return fmt.Sprintf("kind %d", k)
}
