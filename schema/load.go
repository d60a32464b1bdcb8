package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"
)

// Load reads an effective schema set from path. Files ending in .yaml or
// .yml are decoded as YAML; everything else as JSON.
func Load(path string) (*EffectiveSchemaSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema set: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// Parse decodes a JSON effective schema set.
func Parse(data []byte) (*EffectiveSchemaSet, error) {
	var set EffectiveSchemaSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: decoding JSON: %v", ErrInvalidEffectiveSchema, err)
	}
	return &set, nil
}

// ParseYAML decodes a YAML effective schema set. The YAML is converted to
// JSON first, so the same field names apply.
func ParseYAML(data []byte) (*EffectiveSchemaSet, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding YAML: %v", ErrInvalidEffectiveSchema, err)
	}
	return Parse(jsonData)
}

// Marshal encodes a schema set as indented JSON.
func Marshal(set *EffectiveSchemaSet) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Reversed returns a copy of set with its projects and schema components
// in reverse order. The compiler output must not change; the CLI verify
// command uses this to check that.
func Reversed(set *EffectiveSchemaSet) *EffectiveSchemaSet {
	out := *set
	out.ProjectSchemas = make([]ProjectSchema, len(set.ProjectSchemas))
	for i, p := range set.ProjectSchemas {
		out.ProjectSchemas[len(set.ProjectSchemas)-1-i] = p
	}
	comps := set.EffectiveSchema.SchemaComponentsInEndpointOrder
	out.EffectiveSchema.SchemaComponentsInEndpointOrder = make([]SchemaComponent, len(comps))
	for i, c := range comps {
		out.EffectiveSchema.SchemaComponentsInEndpointOrder[len(comps)-1-i] = c
	}
	return &out
}
