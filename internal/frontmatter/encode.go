package frontmatter

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

// EncodeValue encodes v as a YAML node. Floats keep a float form, so a
// whole-number float such as 1.0 decodes back as a float and not an int.
func EncodeValue(v any) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	markFloats(&n, v)
	return &n, nil
}

func markFloats(n *yaml.Node, v any) {
	switch x := v.(type) {
	case float64:
		floatScalar(n)
	case float32:
		floatScalar(n)
	case []any:
		if n.Kind != yaml.SequenceNode || len(n.Content) != len(x) {
			return
		}
		for i, item := range x {
			markFloats(n.Content[i], item)
		}
	case map[string]any:
		if n.Kind != yaml.MappingNode {
			return
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			if item, ok := x[n.Content[i].Value]; ok {
				markFloats(n.Content[i+1], item)
			}
		}
	}
}

func floatScalar(n *yaml.Node) {
	if n.Kind != yaml.ScalarNode {
		return
	}
	if _, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
		n.Value += ".0"
	}
	n.Tag = "!!float"
}
