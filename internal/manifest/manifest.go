// Package manifest renders relational models as canonical JSON.
//
// The manifest is a projection of the model, never an input to it. Every
// object is an ordered Go struct so key order is fixed by the type, and
// every list is emitted in the model's canonical order. Emitting the same
// model twice gives the same bytes; two builds of one schema set that only
// differ in input order give the same bytes too.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pthm/relmodel/internal/model"
)

// Resource is the manifest of one resource.
type Resource struct {
	Resource                  ResourceRef        `json:"resource"`
	PhysicalSchema            string             `json:"physical_schema"`
	StorageKind               string             `json:"storage_kind"`
	Tables                    []Table            `json:"tables"`
	DocumentReferenceBindings []ReferenceBinding `json:"document_reference_bindings"`
	DescriptorEdgeSources     []DescriptorEdge   `json:"descriptor_edge_sources"`
	ExtensionSites            []ExtensionSite    `json:"extension_sites"`
}

// ResourceRef names a resource.
type ResourceRef struct {
	ProjectName  string `json:"project_name"`
	ResourceName string `json:"resource_name"`
}

// TableRef names a table or view.
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Table is one table with its key, columns and constraints.
type Table struct {
	Schema                string                `json:"schema"`
	Name                  string                `json:"name"`
	Scope                 string                `json:"scope"`
	KeyColumns            []KeyColumn           `json:"key_columns"`
	Columns               []Column              `json:"columns"`
	KeyUnificationClasses []KeyUnificationClass `json:"key_unification_classes"`
	Constraints           []Constraint          `json:"constraints"`
}

type KeyColumn struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type Column struct {
	Name           string       `json:"name"`
	Kind           string       `json:"kind"`
	Type           *ScalarType  `json:"type"`
	IsNullable     bool         `json:"is_nullable"`
	SourcePath     *string      `json:"source_path"`
	TargetResource *ResourceRef `json:"target_resource,omitempty"`
	Storage        Storage      `json:"storage"`
}

// ScalarType carries max_length for bounded strings and precision/scale
// for decimals only.
type ScalarType struct {
	Kind      string `json:"kind"`
	MaxLength *int   `json:"max_length,omitempty"`
	Precision *int   `json:"precision,omitempty"`
	Scale     *int   `json:"scale,omitempty"`
}

type Storage struct {
	Kind            string  `json:"kind"`
	CanonicalColumn string  `json:"canonical_column,omitempty"`
	PresenceColumn  *string `json:"presence_column,omitempty"`
}

type KeyUnificationClass struct {
	CanonicalColumn string   `json:"canonical_column"`
	MemberColumns   []string `json:"member_columns"`
}

// Constraint flattens the constraint kinds into one shape. Fields that do
// not apply to a kind are omitted.
type Constraint struct {
	Kind             string    `json:"kind"`
	Name             string    `json:"name"`
	Columns          []string  `json:"columns,omitempty"`
	TargetTable      *TableRef `json:"target_table,omitempty"`
	TargetColumns    []string  `json:"target_columns,omitempty"`
	OnDelete         string    `json:"on_delete,omitempty"`
	OnUpdate         string    `json:"on_update,omitempty"`
	FkColumn         string    `json:"fk_column,omitempty"`
	DependentColumns []string  `json:"dependent_columns,omitempty"`
}

type ReferenceBinding struct {
	IsIdentityComponent bool              `json:"is_identity_component"`
	ReferenceObjectPath string            `json:"reference_object_path"`
	Table               TableRef          `json:"table"`
	FkColumn            string            `json:"fk_column"`
	TargetResource      ResourceRef       `json:"target_resource"`
	IdentityBindings    []IdentityBinding `json:"identity_bindings"`
}

type IdentityBinding struct {
	ReferenceJsonPath string `json:"reference_json_path"`
	Column            string `json:"column"`
}

type DescriptorEdge struct {
	IsIdentityComponent bool        `json:"is_identity_component"`
	DescriptorValuePath string      `json:"descriptor_value_path"`
	Table               TableRef    `json:"table"`
	FkColumn            string      `json:"fk_column"`
	DescriptorResource  ResourceRef `json:"descriptor_resource"`
}

type ExtensionSite struct {
	OwningScope   string   `json:"owning_scope"`
	ExtensionPath string   `json:"extension_path"`
	ProjectKeys   []string `json:"project_keys"`
}

// EmitResource renders one resource model.
func EmitResource(m model.RelationalResourceModel) ([]byte, error) {
	return encode(resourceManifest(m))
}

// encode writes v as two-space indented JSON with a trailing newline.
// HTML escaping is off so paths and literals appear as written.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

func resourceManifest(m model.RelationalResourceModel) Resource {
	out := Resource{
		Resource:                  resourceRef(m.Resource),
		PhysicalSchema:            string(m.PhysicalSchema),
		StorageKind:               string(m.StorageKind),
		Tables:                    []Table{},
		DocumentReferenceBindings: make([]ReferenceBinding, 0, len(m.DocumentReferenceBindings)),
		DescriptorEdgeSources:     make([]DescriptorEdge, 0, len(m.DescriptorEdgeSources)),
		ExtensionSites:            make([]ExtensionSite, 0, len(m.ExtensionSites)),
	}
	// Descriptor resources share dms.Descriptor, which is not theirs to describe.
	if m.StorageKind != model.SharedDescriptorTable {
		for _, t := range m.TablesInDependencyOrder {
			out.Tables = append(out.Tables, tableManifest(t))
		}
	}
	for _, b := range m.DocumentReferenceBindings {
		ids := make([]IdentityBinding, len(b.IdentityBindings))
		for i, ib := range b.IdentityBindings {
			ids[i] = IdentityBinding{ReferenceJsonPath: ib.ReferenceJsonPath.Canonical(), Column: string(ib.Column)}
		}
		out.DocumentReferenceBindings = append(out.DocumentReferenceBindings, ReferenceBinding{
			IsIdentityComponent: b.IsIdentityComponent,
			ReferenceObjectPath: b.ReferenceObjectPath.Canonical(),
			Table:               tableRef(b.Table),
			FkColumn:            string(b.FkColumn),
			TargetResource:      resourceRef(b.TargetResource),
			IdentityBindings:    ids,
		})
	}
	for _, e := range m.DescriptorEdgeSources {
		out.DescriptorEdgeSources = append(out.DescriptorEdgeSources, DescriptorEdge{
			IsIdentityComponent: e.IsIdentityComponent,
			DescriptorValuePath: e.DescriptorValuePath.Canonical(),
			Table:               tableRef(e.Table),
			FkColumn:            string(e.FkColumn),
			DescriptorResource:  resourceRef(e.DescriptorResource),
		})
	}
	for _, s := range m.ExtensionSites {
		out.ExtensionSites = append(out.ExtensionSites, ExtensionSite{
			OwningScope:   s.OwningScope.Canonical(),
			ExtensionPath: s.ExtensionPath.Canonical(),
			ProjectKeys:   append([]string{}, s.ProjectKeys...),
		})
	}
	return out
}

// tableManifest emits key columns first, in key order, then every other
// column in model order.
func tableManifest(t model.DbTableModel) Table {
	out := Table{
		Schema:                string(t.Table.Schema),
		Name:                  t.Table.Name,
		Scope:                 t.JsonScope.Canonical(),
		KeyColumns:            make([]KeyColumn, len(t.Key.Columns)),
		Columns:               make([]Column, 0, len(t.Columns)),
		KeyUnificationClasses: make([]KeyUnificationClass, len(t.KeyUnificationClasses)),
		Constraints:           make([]Constraint, len(t.Constraints)),
	}

	isKey := make(map[model.DbColumnName]bool, len(t.Key.Columns))
	for i, k := range t.Key.Columns {
		out.KeyColumns[i] = KeyColumn{Name: string(k.Name), Kind: k.Kind.String()}
		isKey[k.Name] = true
	}
	for _, k := range t.Key.Columns {
		if c, ok := t.Column(k.Name); ok {
			out.Columns = append(out.Columns, columnManifest(c))
		}
	}
	for _, c := range t.Columns {
		if !isKey[c.Name] {
			out.Columns = append(out.Columns, columnManifest(c))
		}
	}

	for i, k := range t.KeyUnificationClasses {
		out.KeyUnificationClasses[i] = KeyUnificationClass{CanonicalColumn: string(k.Canonical), MemberColumns: names(k.Members)}
	}
	for i, c := range t.Constraints {
		out.Constraints[i] = constraintManifest(c)
	}
	return out
}

func columnManifest(c model.DbColumnModel) Column {
	out := Column{
		Name:       string(c.Name),
		Kind:       c.Kind.String(),
		IsNullable: c.IsNullable,
		Storage:    storageManifest(c.StorageOrDefault()),
	}
	if c.ScalarType != nil {
		out.Type = scalarManifest(*c.ScalarType)
	}
	if c.SourcePath != nil {
		out.SourcePath = model.Ptr(c.SourcePath.Canonical())
	}
	if c.TargetResource != nil {
		out.TargetResource = model.Ptr(resourceRef(*c.TargetResource))
	}
	return out
}

func scalarManifest(t model.RelationalScalarType) *ScalarType {
	out := &ScalarType{Kind: t.Kind.String()}
	switch t.Kind {
	case model.ScalarString:
		if t.MaxLength > 0 {
			out.MaxLength = model.Ptr(t.MaxLength)
		}
	case model.ScalarDecimal:
		out.Precision = model.Ptr(t.Precision)
		out.Scale = model.Ptr(t.Scale)
	}
	return out
}

func storageManifest(s model.ColumnStorage) Storage {
	alias, ok := s.(model.UnifiedAliasColumn)
	if !ok {
		return Storage{Kind: s.StorageKind()}
	}
	out := Storage{Kind: alias.StorageKind(), CanonicalColumn: string(alias.Canonical)}
	if alias.Presence != "" {
		out.PresenceColumn = model.Ptr(string(alias.Presence))
	}
	return out
}

func constraintManifest(c model.TableConstraint) Constraint {
	out := Constraint{Kind: string(c.ConstraintKind()), Name: c.ConstraintName()}
	switch c := c.(type) {
	case model.UniqueConstraint:
		out.Columns = names(c.Columns)
	case model.ForeignKeyConstraint:
		out.Columns = names(c.Columns)
		out.TargetTable = model.Ptr(tableRef(c.TargetTable))
		out.TargetColumns = names(c.TargetColumns)
		out.OnDelete = c.OnDelete.String()
		out.OnUpdate = c.OnUpdate.String()
	case model.AllOrNoneConstraint:
		out.FkColumn = string(c.FkColumn)
		out.DependentColumns = names(c.DependentColumns)
	}
	return out
}

func resourceRef(q model.QualifiedResourceName) ResourceRef {
	return ResourceRef{ProjectName: q.ProjectName, ResourceName: q.ResourceName}
}

func tableRef(t model.DbTableName) TableRef {
	return TableRef{Schema: string(t.Schema), Name: t.Name}
}

// names never returns nil so empty lists encode as [].
func names(cols []model.DbColumnName) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = string(c)
	}
	return out
}
