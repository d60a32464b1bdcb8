// Package schema defines the effective schema set consumed by the relational
// model compiler.
//
// An effective schema set is the already-normalized union of a core project
// and any extension projects. It carries a header describing the set (hashes,
// the ordered project components and the dense resource key table) and one
// project schema per project, each holding the resource schemas and abstract
// resources that project declares.
//
// # Input Shape
//
// The document is JSON (or YAML with the same structure):
//
//	effectiveSchema:
//	  apiSchemaFormatVersion: "1.0.0"
//	  resourceKeyCount: 2
//	  schemaComponentsInEndpointOrder: [...]
//	  resourceKeysInIdOrder: [...]
//	projectSchemas:
//	  - projectName: Ed-Fi
//	    projectEndpointName: ed-fi
//	    resourceSchemas:
//	      schools: {...}
//
// Each resource schema carries a JSON Schema for insert plus the metadata
// the compiler needs to lower it: identity paths, the document paths mapping
// (references and descriptors), array uniqueness constraints, decimal
// validation info and optional relational naming overrides.
//
// # Relationship to Other Packages
//
// This package only describes and loads input. All derivation happens in the
// internal build and passes packages; the root relmodel package wires them
// together behind relmodel.Build.
package schema

import (
	"encoding/json"
	"sort"
)

// EffectiveSchemaSet is the whole compiler input.
type EffectiveSchemaSet struct {
	EffectiveSchema EffectiveSchemaInfo `json:"effectiveSchema"`
	ProjectSchemas  []ProjectSchema     `json:"projectSchemas"`
}

// EffectiveSchemaInfo is the schema-set header.
type EffectiveSchemaInfo struct {
	ApiSchemaFormatVersion          string            `json:"apiSchemaFormatVersion"`
	RelationalMappingVersion        string            `json:"relationalMappingVersion"`
	EffectiveSchemaHash             string            `json:"effectiveSchemaHash"`
	ResourceKeyCount                int               `json:"resourceKeyCount"`
	ResourceKeySeedHash             string            `json:"resourceKeySeedHash"`
	SchemaComponentsInEndpointOrder []SchemaComponent `json:"schemaComponentsInEndpointOrder"`
	ResourceKeysInIdOrder           []ResourceKey     `json:"resourceKeysInIdOrder"`
}

// SchemaComponent lists one project of the set.
type SchemaComponent struct {
	ProjectEndpointName string `json:"projectEndpointName"`
	ProjectName         string `json:"projectName"`
	ProjectVersion      string `json:"projectVersion"`
	IsExtensionProject  bool   `json:"isExtensionProject"`
}

// ResourceKey assigns a dense numeric id to a resource.
type ResourceKey struct {
	ResourceKeyID      int16  `json:"resourceKeyId"`
	ProjectName        string `json:"projectName"`
	ResourceName       string `json:"resourceName"`
	ResourceVersion    string `json:"resourceVersion"`
	IsAbstractResource bool   `json:"isAbstractResource"`
}

// ProjectSchema is one project's resources.
type ProjectSchema struct {
	ProjectName         string                    `json:"projectName"`
	ProjectEndpointName string                    `json:"projectEndpointName"`
	ProjectVersion      string                    `json:"projectVersion"`
	IsExtensionProject  bool                      `json:"isExtensionProject"`
	ResourceSchemas     map[string]ResourceSchema `json:"resourceSchemas"`
	AbstractResources   map[string]ResourceSchema `json:"abstractResources"`
}

// ResourceSchema describes one resource. Pointer and nil-able fields are
// required; their absence is reported when the resource is lowered.
type ResourceSchema struct {
	ResourceName                   string                          `json:"resourceName"`
	IsDescriptor                   *bool                           `json:"isDescriptor"`
	IsResourceExtension            bool                            `json:"isResourceExtension"`
	IsSubclass                     bool                            `json:"isSubclass"`
	SuperclassProjectName          string                          `json:"superclassProjectName,omitempty"`
	SuperclassResourceName         string                          `json:"superclassResourceName,omitempty"`
	SuperclassIdentityJsonPath     string                          `json:"superclassIdentityJsonPath,omitempty"`
	AllowIdentityUpdates           bool                            `json:"allowIdentityUpdates"`
	IdentityJsonPaths              []string                        `json:"identityJsonPaths"`
	DocumentPathsMapping           map[string]DocumentPath         `json:"documentPathsMapping,omitempty"`
	ArrayUniquenessConstraints     []ArrayUniquenessConstraint     `json:"arrayUniquenessConstraints,omitempty"`
	DecimalPropertyValidationInfos []DecimalPropertyValidationInfo `json:"decimalPropertyValidationInfos,omitempty"`
	EqualityConstraints            []EqualityConstraint            `json:"equalityConstraints,omitempty"`
	Relational                     *RelationalOverrides            `json:"relational,omitempty"`
	FlatteningMetadata             *FlatteningMetadata             `json:"flatteningMetadata,omitempty"`
	JsonSchemaForInsert            json.RawMessage                 `json:"jsonSchemaForInsert,omitempty"`
	OpenApiFragments               json.RawMessage                 `json:"openApiFragments,omitempty"`
}

// Descriptor reports whether the resource is a descriptor.
func (r ResourceSchema) Descriptor() bool {
	return r.IsDescriptor != nil && *r.IsDescriptor
}

// DocumentPath is one entry of documentPathsMapping.
type DocumentPath struct {
	IsReference        bool                `json:"isReference"`
	IsDescriptor       bool                `json:"isDescriptor"`
	IsRequired         bool                `json:"isRequired"`
	ProjectName        string              `json:"projectName,omitempty"`
	ResourceName       string              `json:"resourceName,omitempty"`
	Path               string              `json:"path,omitempty"`
	ReferenceJsonPaths []ReferenceJsonPath `json:"referenceJsonPaths,omitempty"`
}

// ReferenceJsonPath pairs a target identity path with the local path that
// carries it inside the reference object.
type ReferenceJsonPath struct {
	IdentityJsonPath  string `json:"identityJsonPath"`
	ReferenceJsonPath string `json:"referenceJsonPath"`
}

// ArrayUniquenessConstraint declares paths that must be unique within an
// array. Paths are relative to BasePath when it is set.
type ArrayUniquenessConstraint struct {
	BasePath          string                      `json:"basePath,omitempty"`
	Paths             []string                    `json:"paths"`
	NestedConstraints []ArrayUniquenessConstraint `json:"nestedConstraints,omitempty"`
}

// DecimalPropertyValidationInfo gives the precision and scale of a number path.
type DecimalPropertyValidationInfo struct {
	Path          string `json:"path"`
	TotalDigits   *int   `json:"totalDigits"`
	DecimalPlaces *int   `json:"decimalPlaces"`
}

// EqualityConstraint says two paths always carry the same value.
type EqualityConstraint struct {
	SourceJsonPath string `json:"sourceJsonPath"`
	TargetJsonPath string `json:"targetJsonPath"`
}

// RelationalOverrides carries explicit physical names.
type RelationalOverrides struct {
	RootTableNameOverride *string           `json:"rootTableNameOverride,omitempty"`
	NameOverrides         map[string]string `json:"nameOverrides,omitempty"`
}

// FlatteningMetadata is optional column metadata emitted alongside a
// resource schema. It is read for string length omissions and decimal
// validation info only.
type FlatteningMetadata struct {
	Table *FlatteningTable `json:"table,omitempty"`
}

// FlatteningTable is one table of flattening metadata.
type FlatteningTable struct {
	Columns     []FlatteningColumn `json:"columns,omitempty"`
	ChildTables []FlatteningTable  `json:"childTables,omitempty"`
}

// FlatteningColumn is one column of flattening metadata.
type FlatteningColumn struct {
	JsonPath      string `json:"jsonPath"`
	ColumnType    string `json:"columnType"`
	MaxLength     *int   `json:"maxLength,omitempty"`
	TotalDigits   *int   `json:"totalDigits,omitempty"`
	DecimalPlaces *int   `json:"decimalPlaces,omitempty"`
}

// SortedKeys returns the keys of m in ordinal order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
