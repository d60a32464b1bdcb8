package model

import (
	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/jsonpath"
)

// StorageKind says how a resource is stored.
type StorageKind string

const (
	// RelationalTables stores the resource in its own root and child tables.
	RelationalTables StorageKind = "RelationalTables"
	// SharedDescriptorTable stores the resource as rows of dms.Descriptor.
	SharedDescriptorTable StorageKind = "SharedDescriptorTable"
)

// ReferenceIdentityBinding maps one identity path of a reference to the
// local column that mirrors it.
type ReferenceIdentityBinding struct {
	ReferenceJsonPath jsonpath.Expression
	Column            DbColumnName
}

// DocumentReferenceBinding is the resolved form of one document reference.
type DocumentReferenceBinding struct {
	IsIdentityComponent bool
	ReferenceObjectPath jsonpath.Expression
	Table               DbTableName
	FkColumn            DbColumnName
	TargetResource      QualifiedResourceName
	IdentityBindings    []ReferenceIdentityBinding
}

// DescriptorEdgeSource records a descriptor-valued path and the FK column
// that stores it.
type DescriptorEdgeSource struct {
	IsIdentityComponent bool
	DescriptorValuePath jsonpath.Expression
	Table               DbTableName
	FkColumn            DbColumnName
	DescriptorResource  QualifiedResourceName
}

// ExtensionSite is a location where extension projects attach data.
type ExtensionSite struct {
	OwningScope   jsonpath.Expression
	ExtensionPath jsonpath.Expression
	ProjectKeys   []string
}

// RelationalResourceModel is the relational form of one resource. The root
// table is always the first entry of TablesInDependencyOrder.
type RelationalResourceModel struct {
	Resource                  QualifiedResourceName
	PhysicalSchema            DbSchemaName
	StorageKind               StorageKind
	TablesInDependencyOrder   []DbTableModel
	DocumentReferenceBindings []DocumentReferenceBinding
	DescriptorEdgeSources     []DescriptorEdgeSource
	ExtensionSites            []ExtensionSite
}

// Root returns the resource's root table.
func (m RelationalResourceModel) Root() DbTableModel {
	if len(m.TablesInDependencyOrder) == 0 {
		return DbTableModel{}
	}
	return m.TablesInDependencyOrder[0]
}

// TableByName finds a table of this resource.
func (m RelationalResourceModel) TableByName(name DbTableName) (DbTableModel, int, bool) {
	for i, t := range m.TablesInDependencyOrder {
		if t.Table == name {
			return t, i, true
		}
	}
	return DbTableModel{}, -1, false
}

// TableByScope finds the table whose JSON scope equals scope.
func (m RelationalResourceModel) TableByScope(scope jsonpath.Expression) (DbTableModel, bool) {
	for _, t := range m.TablesInDependencyOrder {
		if t.JsonScope.Equal(scope) {
			return t, true
		}
	}
	return DbTableModel{}, false
}

// DescriptorDiscriminatorStrategy says how descriptor rows are told apart.
type DescriptorDiscriminatorStrategy string

const (
	DiscriminatorResourceKeyID    DescriptorDiscriminatorStrategy = "ResourceKeyId"
	DiscriminatorDescriptorColumn DescriptorDiscriminatorStrategy = "DescriptorColumn"
	DiscriminatorBoth             DescriptorDiscriminatorStrategy = "Both"
)

// DescriptorColumnContract names the shared descriptor table columns.
type DescriptorColumnContract struct {
	Namespace          DbColumnName
	CodeValue          DbColumnName
	ShortDescription   DbColumnName
	Description        DbColumnName
	EffectiveBeginDate DbColumnName
	EffectiveEndDate   DbColumnName
	Discriminator      DbColumnName
}

// DescriptorMetadata is attached to resources stored in dms.Descriptor.
type DescriptorMetadata struct {
	ColumnContract DescriptorColumnContract
	Discriminator  DescriptorDiscriminatorStrategy
}

// DefaultDescriptorColumnContract is the column contract of dms.Descriptor.
func DefaultDescriptorColumnContract() DescriptorColumnContract {
	return DescriptorColumnContract{
		Namespace:          "Namespace",
		CodeValue:          "CodeValue",
		ShortDescription:   "ShortDescription",
		Description:        "Description",
		EffectiveBeginDate: "EffectiveBeginDate",
		EffectiveEndDate:   "EffectiveEndDate",
		Discriminator:      DiscriminatorColumn,
	}
}

// ConcreteResourceModel is a non-abstract resource in a model set.
type ConcreteResourceModel struct {
	ResourceKey        ResourceKeyEntry
	StorageKind        StorageKind
	RelationalModel    RelationalResourceModel
	DescriptorMetadata *DescriptorMetadata
}

// AbstractIdentityTableInfo is the shared identity table of an abstract resource.
type AbstractIdentityTableInfo struct {
	ResourceKey ResourceKeyEntry
	Table       DbTableModel
}

// UnionViewOutputColumn is one output column of an abstract union view.
type UnionViewOutputColumn struct {
	Name       DbColumnName
	ScalarType RelationalScalarType
	SourcePath *jsonpath.Expression
}

// UnionViewProjection is either a source column or a string literal.
type UnionViewProjection struct {
	SourceColumn DbColumnName
	Literal      string
	IsLiteral    bool
}

// UnionViewArm selects one concrete member into the union view.
type UnionViewArm struct {
	ConcreteMember ResourceKeyEntry
	FromTable      DbTableName
	Projections    []UnionViewProjection
}

// AbstractUnionViewInfo is the union view over an abstract resource's members.
type AbstractUnionViewInfo struct {
	ResourceKey   ResourceKeyEntry
	ViewName      DbTableName
	OutputColumns []UnionViewOutputColumn
	UnionArms     []UnionViewArm
}

// IndexKind says why an index exists.
type IndexKind string

const (
	IndexPrimaryKey        IndexKind = "PrimaryKey"
	IndexUniqueConstraint  IndexKind = "UniqueConstraint"
	IndexForeignKeySupport IndexKind = "ForeignKeySupport"
	IndexExplicit          IndexKind = "Explicit"
)

// DbIndexInfo is one index in the inventory.
type DbIndexInfo struct {
	Name       DbIndexName
	Table      DbTableName
	KeyColumns []DbColumnName
	IsUnique   bool
	Kind       IndexKind
}

// TriggerKind says what a trigger maintains.
type TriggerKind string

const (
	TriggerDocumentStamping               TriggerKind = "DocumentStamping"
	TriggerReferentialIdentityMaintenance TriggerKind = "ReferentialIdentityMaintenance"
	TriggerAbstractIdentityMaintenance    TriggerKind = "AbstractIdentityMaintenance"
	TriggerIdentityPropagationFallback    TriggerKind = "IdentityPropagationFallback"
)

// TriggerColumnMapping copies Source on the trigger table to Target on a
// referrer.
type TriggerColumnMapping struct {
	Source DbColumnName
	Target DbColumnName
}

// TriggerReferrer is one table updated by an identity propagation trigger.
type TriggerReferrer struct {
	Table          DbTableName
	FkColumn       DbColumnName
	ColumnMappings []TriggerColumnMapping
}

// DbTriggerInfo is one trigger in the inventory.
type DbTriggerInfo struct {
	Name                      DbTriggerName
	Table                     DbTableName
	Kind                      TriggerKind
	KeyColumns                []DbColumnName
	IdentityProjectionColumns []DbColumnName
	TargetTable               *DbTableName
	Referrers                 []TriggerReferrer
}

// ProjectSchemaInfo describes one project and its physical schema.
type ProjectSchemaInfo struct {
	ProjectEndpointName string
	ProjectName         string
	ProjectVersion      string
	IsExtensionProject  bool
	PhysicalSchema      DbSchemaName
}

// EffectiveSchemaInfo carries the schema-set header.
type EffectiveSchemaInfo struct {
	ApiSchemaFormatVersion   string
	RelationalMappingVersion string
	EffectiveSchemaHash      string
	ResourceKeyCount         int
	ResourceKeySeedHash      string
	ResourceKeysInIdOrder    []ResourceKeyEntry
}

// DerivedRelationalModelSet is the full output of a build.
type DerivedRelationalModelSet struct {
	EffectiveSchema                   EffectiveSchemaInfo
	Dialect                           dialect.Dialect
	ProjectSchemasInEndpointOrder     []ProjectSchemaInfo
	ConcreteResourcesInNameOrder      []ConcreteResourceModel
	AbstractIdentityTablesInNameOrder []AbstractIdentityTableInfo
	AbstractUnionViewsInNameOrder     []AbstractUnionViewInfo
	IndexesInCreateOrder              []DbIndexInfo
	TriggersInCreateOrder             []DbTriggerInfo
}
