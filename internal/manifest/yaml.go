package manifest

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ToYAML re-renders a JSON manifest as block-style YAML. Key order is kept
// because the document is decoded into a node tree, not a map.
func ToYAML(manifest []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(manifest, &doc); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	plain(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encoding manifest yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// plain drops the flow and quoting styles JSON input carries. The encoder
// still quotes strings that would otherwise read back as another type.
func plain(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		plain(c)
	}
}
