package manifest

import (
	"slices"

	"github.com/pthm/relmodel/internal/model"
)

// Set is the manifest of a whole model set.
type Set struct {
	Dialect                string            `json:"dialect"`
	EffectiveSchema        EffectiveSchema   `json:"effective_schema"`
	Projects               []Project         `json:"projects"`
	Resources              []ResourceSummary `json:"resources"`
	AbstractIdentityTables []AbstractTable   `json:"abstract_identity_tables"`
	AbstractUnionViews     []UnionView       `json:"abstract_union_views"`
	Indexes                []Index           `json:"indexes"`
	Triggers               []Trigger         `json:"triggers"`
	ResourceDetails        []Resource        `json:"resource_details,omitempty"`
}

type EffectiveSchema struct {
	ApiSchemaFormatVersion   string        `json:"api_schema_format_version"`
	RelationalMappingVersion string        `json:"relational_mapping_version"`
	EffectiveSchemaHash      string        `json:"effective_schema_hash"`
	ResourceKeyCount         int           `json:"resource_key_count"`
	ResourceKeySeedHash      string        `json:"resource_key_seed_hash"`
	ResourceKeys             []ResourceKey `json:"resource_keys"`
}

type ResourceKey struct {
	ID              int16  `json:"id"`
	ProjectName     string `json:"project_name"`
	ResourceName    string `json:"resource_name"`
	ResourceVersion string `json:"resource_version"`
	IsAbstract      bool   `json:"is_abstract"`
}

type Project struct {
	ProjectEndpointName string `json:"project_endpoint_name"`
	ProjectName         string `json:"project_name"`
	ProjectVersion      string `json:"project_version"`
	IsExtension         bool   `json:"is_extension"`
	PhysicalSchema      string `json:"physical_schema"`
}

type ResourceSummary struct {
	ProjectName    string `json:"project_name"`
	ResourceName   string `json:"resource_name"`
	ResourceKeyID  int16  `json:"resource_key_id"`
	StorageKind    string `json:"storage_kind"`
	PhysicalSchema string `json:"physical_schema"`
	TableCount     int    `json:"table_count"`
}

type AbstractTable struct {
	Resource ResourceRef `json:"resource"`
	Table    Table       `json:"table"`
}

type UnionView struct {
	Resource      ResourceRef  `json:"resource"`
	ViewName      TableRef     `json:"view_name"`
	OutputColumns []ViewColumn `json:"output_columns"`
	UnionArms     []UnionArm   `json:"union_arms"`
}

type ViewColumn struct {
	ColumnName string      `json:"column_name"`
	Type       *ScalarType `json:"type"`
	SourcePath *string     `json:"source_path"`
}

type UnionArm struct {
	ConcreteMember ResourceRef  `json:"concrete_member"`
	FromTable      TableRef     `json:"from_table"`
	Projections    []Projection `json:"projection_expressions"`
}

// Projection is a source column or, for the discriminator, a string
// literal.
type Projection struct {
	Kind       string `json:"kind"`
	ColumnName string `json:"column_name,omitempty"`
	Value      string `json:"value,omitempty"`
}

type Index struct {
	Name       string   `json:"name"`
	Table      TableRef `json:"table"`
	Kind       string   `json:"kind"`
	IsUnique   bool     `json:"is_unique"`
	KeyColumns []string `json:"key_columns"`
}

type Trigger struct {
	Name                      string     `json:"name"`
	Table                     TableRef   `json:"table"`
	Kind                      string     `json:"kind"`
	KeyColumns                []string   `json:"key_columns"`
	IdentityProjectionColumns []string   `json:"identity_projection_columns"`
	TargetTable               *TableRef  `json:"target_table,omitempty"`
	Referrers                 []Referrer `json:"referrers,omitempty"`
}

type Referrer struct {
	Table          TableRef        `json:"table"`
	FkColumn       string          `json:"fk_column"`
	ColumnMappings []ColumnMapping `json:"column_mappings"`
}

type ColumnMapping struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// SetOption configures EmitSet.
type SetOption func(*setOptions)

type setOptions struct {
	details func(model.QualifiedResourceName) bool
}

// WithResourceDetails adds a resource_details entry for each listed
// resource, in resource name order.
func WithResourceDetails(resources ...model.QualifiedResourceName) SetOption {
	return func(o *setOptions) {
		o.details = func(q model.QualifiedResourceName) bool { return slices.Contains(resources, q) }
	}
}

// WithAllResourceDetails adds a resource_details entry for every resource.
func WithAllResourceDetails() SetOption {
	return func(o *setOptions) {
		o.details = func(model.QualifiedResourceName) bool { return true }
	}
}

// EmitSet renders a model set.
func EmitSet(s *model.DerivedRelationalModelSet, opts ...SetOption) ([]byte, error) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return encode(setManifest(s, o))
}

func setManifest(s *model.DerivedRelationalModelSet, o setOptions) Set {
	out := Set{
		Dialect:                string(s.Dialect),
		EffectiveSchema:        effectiveSchemaManifest(s.EffectiveSchema),
		Projects:               make([]Project, len(s.ProjectSchemasInEndpointOrder)),
		Resources:              make([]ResourceSummary, len(s.ConcreteResourcesInNameOrder)),
		AbstractIdentityTables: make([]AbstractTable, len(s.AbstractIdentityTablesInNameOrder)),
		AbstractUnionViews:     make([]UnionView, len(s.AbstractUnionViewsInNameOrder)),
		Indexes:                make([]Index, len(s.IndexesInCreateOrder)),
		Triggers:               make([]Trigger, len(s.TriggersInCreateOrder)),
	}

	for i, p := range s.ProjectSchemasInEndpointOrder {
		out.Projects[i] = Project{
			ProjectEndpointName: p.ProjectEndpointName,
			ProjectName:         p.ProjectName,
			ProjectVersion:      p.ProjectVersion,
			IsExtension:         p.IsExtensionProject,
			PhysicalSchema:      string(p.PhysicalSchema),
		}
	}

	for i, r := range s.ConcreteResourcesInNameOrder {
		tables := len(r.RelationalModel.TablesInDependencyOrder)
		if r.StorageKind == model.SharedDescriptorTable {
			tables = 0
		}
		out.Resources[i] = ResourceSummary{
			ProjectName:    r.ResourceKey.Resource.ProjectName,
			ResourceName:   r.ResourceKey.Resource.ResourceName,
			ResourceKeyID:  r.ResourceKey.ID,
			StorageKind:    string(r.StorageKind),
			PhysicalSchema: string(r.RelationalModel.PhysicalSchema),
			TableCount:     tables,
		}
		if o.details != nil && o.details(r.ResourceKey.Resource) {
			out.ResourceDetails = append(out.ResourceDetails, resourceManifest(r.RelationalModel))
		}
	}

	for i, a := range s.AbstractIdentityTablesInNameOrder {
		out.AbstractIdentityTables[i] = AbstractTable{
			Resource: resourceRef(a.ResourceKey.Resource),
			Table:    tableManifest(a.Table),
		}
	}
	for i, v := range s.AbstractUnionViewsInNameOrder {
		out.AbstractUnionViews[i] = unionViewManifest(v)
	}

	for i, idx := range s.IndexesInCreateOrder {
		out.Indexes[i] = Index{
			Name:       string(idx.Name),
			Table:      tableRef(idx.Table),
			Kind:       string(idx.Kind),
			IsUnique:   idx.IsUnique,
			KeyColumns: names(idx.KeyColumns),
		}
	}
	for i, t := range s.TriggersInCreateOrder {
		out.Triggers[i] = triggerManifest(t)
	}
	return out
}

func effectiveSchemaManifest(in model.EffectiveSchemaInfo) EffectiveSchema {
	out := EffectiveSchema{
		ApiSchemaFormatVersion:   in.ApiSchemaFormatVersion,
		RelationalMappingVersion: in.RelationalMappingVersion,
		EffectiveSchemaHash:      in.EffectiveSchemaHash,
		ResourceKeyCount:         in.ResourceKeyCount,
		ResourceKeySeedHash:      in.ResourceKeySeedHash,
		ResourceKeys:             make([]ResourceKey, len(in.ResourceKeysInIdOrder)),
	}
	for i, k := range in.ResourceKeysInIdOrder {
		out.ResourceKeys[i] = ResourceKey{
			ID:              k.ID,
			ProjectName:     k.Resource.ProjectName,
			ResourceName:    k.Resource.ResourceName,
			ResourceVersion: k.ResourceVersion,
			IsAbstract:      k.IsAbstract,
		}
	}
	return out
}

func unionViewManifest(v model.AbstractUnionViewInfo) UnionView {
	out := UnionView{
		Resource:      resourceRef(v.ResourceKey.Resource),
		ViewName:      tableRef(v.ViewName),
		OutputColumns: make([]ViewColumn, len(v.OutputColumns)),
		UnionArms:     make([]UnionArm, len(v.UnionArms)),
	}
	for i, c := range v.OutputColumns {
		col := ViewColumn{ColumnName: string(c.Name), Type: scalarManifest(c.ScalarType)}
		if c.SourcePath != nil {
			col.SourcePath = model.Ptr(c.SourcePath.Canonical())
		}
		out.OutputColumns[i] = col
	}
	for i, arm := range v.UnionArms {
		projections := make([]Projection, len(arm.Projections))
		for j, p := range arm.Projections {
			if p.IsLiteral {
				projections[j] = Projection{Kind: "StringLiteral", Value: p.Literal}
			} else {
				projections[j] = Projection{Kind: "SourceColumn", ColumnName: string(p.SourceColumn)}
			}
		}
		out.UnionArms[i] = UnionArm{
			ConcreteMember: resourceRef(arm.ConcreteMember.Resource),
			FromTable:      tableRef(arm.FromTable),
			Projections:    projections,
		}
	}
	return out
}

func triggerManifest(t model.DbTriggerInfo) Trigger {
	out := Trigger{
		Name:                      string(t.Name),
		Table:                     tableRef(t.Table),
		Kind:                      string(t.Kind),
		KeyColumns:                names(t.KeyColumns),
		IdentityProjectionColumns: names(t.IdentityProjectionColumns),
	}
	if t.TargetTable != nil {
		out.TargetTable = model.Ptr(tableRef(*t.TargetTable))
	}
	for _, r := range t.Referrers {
		mappings := make([]ColumnMapping, len(r.ColumnMappings))
		for i, m := range r.ColumnMappings {
			mappings[i] = ColumnMapping{Source: string(m.Source), Target: string(m.Target)}
		}
		out.Referrers = append(out.Referrers, Referrer{
			Table:          tableRef(r.Table),
			FkColumn:       string(r.FkColumn),
			ColumnMappings: mappings,
		})
	}
	return out
}
