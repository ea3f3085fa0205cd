// Package frontmatter parses articles made of a "---" delimited YAML metadata
// block followed by a free-form Markdown body.
package frontmatter

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/quill/internal/models"
)

const delimiter = "---"

// Recognized metadata keys.
const (
	KeyTitle      = "title"
	KeyDate       = "date"
	KeyCategories = "categories"
	KeyTags       = "tags"
	KeyTOC        = "toc"
)

var bom = []byte("\xef\xbb\xbf")

// Option configures Parse.
type Option func(*options)

type options struct {
	defaultTOC bool
	location   *time.Location
}

// WithDefaultTOC sets the toc value used when a document does not carry one.
func WithDefaultTOC(v bool) Option {
	return func(o *options) {
		o.defaultTOC = v
	}
}

// WithDefaultLocation lets dates without an explicit offset be read in loc.
// The parsed date still carries the fixed offset loc had at that instant.
func WithDefaultLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// ParseString is Parse for string input.
func ParseString(raw string, opts ...Option) (models.Document, error) {
	return Parse([]byte(raw), opts...)
}

// Parse converts the full text of one document into a Document.
//
// The text must start with a "---" line and contain a matching closing "---"
// line; everything after the closing line is the body, kept verbatim. The
// returned Document shares no memory with raw or with any other call.
func Parse(raw []byte, opts ...Option) (models.Document, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	block, body, err := split(raw)
	if err != nil {
		return models.Document{}, err
	}

	entries, err := decodeBlock(block)
	if err != nil {
		return models.Document{}, err
	}

	doc := models.Document{
		Categories: []string{},
		Tags:       []string{},
		TOC:        o.defaultTOC,
		Extra:      map[string]any{},
		Body:       body,
	}

	for _, e := range entries {
		if err := applyEntry(&doc, e, &o); err != nil {
			return models.Document{}, err
		}
	}

	if err := checkRequired(doc); err != nil {
		return models.Document{}, err
	}

	return doc, nil
}

// split separates the metadata block from the body. Delimiter lines may
// carry trailing spaces or a carriage return.
func split(raw []byte) ([]byte, string, error) {
	data := bytes.TrimPrefix(raw, bom)

	first, rest, _ := cutLine(data)
	if !isDelimiter(first) {
		return nil, "", &MalformedError{Reason: "missing opening delimiter"}
	}

	for pos := 0; pos < len(rest); {
		line, next, _ := cutLine(rest[pos:])
		if isDelimiter(line) {
			return rest[:pos], string(next), nil
		}
		pos = len(rest) - len(next)
	}
	return nil, "", &MalformedError{Reason: "missing closing delimiter"}
}

func cutLine(b []byte) (line, rest []byte, found bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil, false
	}
	return b[:i], b[i+1:], true
}

func isDelimiter(line []byte) bool {
	return string(bytes.TrimRight(line, " \t\r")) == delimiter
}

type entry struct {
	key   string
	value *yaml.Node
}

// decodeBlock reads the metadata block as an ordered list of key/value nodes.
func decodeBlock(block []byte) ([]entry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(block, &root); err != nil {
		return nil, &MalformedError{Reason: "metadata block is not valid YAML", Err: err}
	}
	// Empty or comment-only block.
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}

	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, &MalformedError{Reason: "metadata block is not a list of key: value entries"}
	}

	seen := make(map[string]struct{}, len(mapping.Content)/2)
	out := make([]entry, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k, v := mapping.Content[i], mapping.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, &MalformedError{Reason: "metadata keys must be plain text"}
		}
		if _, dup := seen[k.Value]; dup {
			return nil, &MalformedError{Reason: "duplicate key " + k.Value}
		}
		seen[k.Value] = struct{}{}
		if v.Kind == yaml.AliasNode && v.Alias != nil {
			v = v.Alias
		}
		out = append(out, entry{key: k.Value, value: v})
	}
	return out, nil
}

func applyEntry(doc *models.Document, e entry, o *options) error {
	switch e.key {
	case KeyTitle:
		if isNull(e.value) {
			return nil
		}
		if e.value.Kind != yaml.ScalarNode {
			return &InvalidValueError{Field: KeyTitle, Reason: "expected text"}
		}
		doc.Title = e.value.Value
	case KeyDate:
		if isNull(e.value) {
			return nil
		}
		if e.value.Kind != yaml.ScalarNode {
			return &InvalidValueError{Field: KeyDate, Reason: "expected a date-time"}
		}
		if strings.TrimSpace(e.value.Value) == "" {
			return nil
		}
		t, err := parseDate(e.value.Value, o.location)
		if err != nil {
			return err
		}
		doc.Date = t
	case KeyCategories:
		items, err := decodeList(KeyCategories, e.value)
		if err != nil {
			return err
		}
		doc.Categories = items
	case KeyTags:
		items, err := decodeList(KeyTags, e.value)
		if err != nil {
			return err
		}
		doc.Tags = items
	case KeyTOC:
		if isNull(e.value) {
			return nil
		}
		var v bool
		if e.value.Kind != yaml.ScalarNode || e.value.Decode(&v) != nil {
			return &InvalidValueError{Field: KeyTOC, Reason: "expected true or false"}
		}
		doc.TOC = v
	default:
		var v any
		if err := e.value.Decode(&v); err != nil {
			return &InvalidValueError{Field: e.key, Reason: "undecodable value", Err: err}
		}
		doc.Extra[e.key] = v
	}
	return nil
}

// decodeList accepts bracketed inline lists, line-itemized lists, and a
// single bare value treated as a one-item list.
func decodeList(field string, n *yaml.Node) ([]string, error) {
	if isNull(n) {
		return []string{}, nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for i, item := range n.Content {
			if item.Kind == yaml.AliasNode && item.Alias != nil {
				item = item.Alias
			}
			if item.Kind != yaml.ScalarNode || isNull(item) {
				return nil, &InvalidValueError{
					Field:  field,
					Reason: "item " + strconv.Itoa(i+1) + " is not text",
				}
			}
			out = append(out, item.Value)
		}
		return out, nil
	default:
		return nil, &InvalidValueError{Field: field, Reason: "expected a list of text items"}
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

// checkRequired reports the first of title, date that is missing.
func checkRequired(doc models.Document) error {
	req := struct {
		Title string    `json:"title"`
		Date  time.Time `json:"date"`
	}{
		Title: strings.TrimSpace(doc.Title),
		Date:  doc.Date,
	}
	err := validation.ValidateStruct(&req,
		validation.Field(&req.Title, validation.Required),
		validation.Field(&req.Date, validation.Required),
	)
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		for _, name := range []string{KeyTitle, KeyDate} {
			if _, ok := errs[name]; ok {
				return &MissingFieldError{Field: name}
			}
		}
	}
	return err
}
