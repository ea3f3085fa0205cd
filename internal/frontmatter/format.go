package frontmatter

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/starford/quill/internal/models"
)

// Format encodes doc back into its text form: a "---" block holding title,
// date, categories, tags, toc and then the extra keys in sorted order,
// followed by the body exactly as stored. Parse(Format(doc)) equals doc for
// every document Parse can produce.
func Format(doc models.Document) ([]byte, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}

	add := func(key string, value *yaml.Node) {
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			value,
		)
	}

	add(KeyTitle, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: doc.Title})
	add(KeyDate, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: doc.Date.Format(DateLayout)})
	add(KeyCategories, listNode(doc.Categories))
	add(KeyTags, listNode(doc.Tags))
	add(KeyTOC, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprint(doc.TOC)})

	keys := make([]string, 0, len(doc.Extra))
	for k := range doc.Extra {
		switch k {
		case KeyTitle, KeyDate, KeyCategories, KeyTags, KeyTOC:
			return nil, fmt.Errorf("frontmatter: extra key %q shadows a recognized field", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := EncodeValue(doc.Extra[k])
		if err != nil {
			return nil, fmt.Errorf("frontmatter: encode %q: %w", k, err)
		}
		add(k, v)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("frontmatter: encode metadata: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("frontmatter: encode metadata: %w", err)
	}

	buf.WriteString(delimiter + "\n")
	buf.WriteString(doc.Body)
	return buf.Bytes(), nil
}

func listNode(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, item := range items {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
	}
	return n
}
