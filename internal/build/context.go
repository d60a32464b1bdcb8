// Package build lowers one resource schema into a RelationalResourceModel.
//
// Lowering is an ordered list of steps that share a mutable Context. Each
// step reads what earlier steps produced and adds its own part; the final
// step freezes the accumulated tables into the immutable model. Steps never
// look at other resources. Anything that needs the whole schema set
// (references, extensions, abstract identities) happens later in the
// passes package, which reuses the Context built here.
package build

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/schema"
)

// ProjectInfo describes the project that declares a resource.
type ProjectInfo struct {
	ProjectName         string
	ProjectEndpointName string
	ProjectVersion      string
	IsExtensionProject  bool
	PhysicalSchema      model.DbSchemaName
}

// DescriptorPathInfo says that the value at Path is a descriptor URI of
// DescriptorResource.
type DescriptorPathInfo struct {
	Path               jsonpath.Expression
	DescriptorResource model.QualifiedResourceName
}

// ReferenceJsonPathBinding pairs a target identity path with the local path
// that carries its value.
type ReferenceJsonPathBinding struct {
	IdentityJsonPath  jsonpath.Expression
	ReferenceJsonPath jsonpath.Expression
}

// ReferenceMapping is a document reference declared in documentPathsMapping.
type ReferenceMapping struct {
	MappingKey          string
	TargetResource      model.QualifiedResourceName
	IsRequired          bool
	IsPartOfIdentity    bool
	ReferenceObjectPath jsonpath.Expression
	ReferenceJsonPaths  []ReferenceJsonPathBinding
}

// DecimalInfo is the precision and scale for a number path. Either may be
// nil when the input omitted it.
type DecimalInfo struct {
	Path          jsonpath.Expression
	TotalDigits   *int
	DecimalPlaces *int
}

// NameOverride is one relational.nameOverrides entry.
type NameOverride struct {
	RawKey       string
	Path         jsonpath.Expression
	Name         string
	IsCollection bool
}

// ArrayUniqueness is a compiled arrayUniquenessConstraints entry. Paths are
// already resolved against BasePath.
type ArrayUniqueness struct {
	BasePath *jsonpath.Expression
	Paths    []jsonpath.Expression
	Nested   []ArrayUniqueness
}

// EqualityConstraint is a compiled equalityConstraints entry.
type EqualityConstraint struct {
	Source jsonpath.Expression
	Target jsonpath.Expression
}

// TableScope is a table under construction plus the names needed to derive
// its children.
type TableScope struct {
	Builder         *model.TableBuilder
	Scope           jsonpath.Expression
	CollectionBases []string
	// DefaultBases are the collection bases before overrides.
	DefaultBases    []string
	Parent          *TableScope
}

// Context carries one resource through the lowering steps.
type Context struct {
	Project  ProjectInfo
	Resource model.QualifiedResourceName
	Input    schema.ResourceSchema

	// DescriptorPaths may be supplied by the caller before the pipeline
	// runs. When nil, ExtractInputs infers it from the resource alone.
	DescriptorPaths map[string]DescriptorPathInfo

	// Overrides, when set, receives every table and column name that
	// relational overrides could have changed. It is shared across
	// resources so cross-resource collisions are found too.
	Overrides *collision.OverrideDetector

	// Populated by ExtractInputs.
	IsDescriptor          bool
	IsResourceExtension   bool
	AllowIdentityUpdates  bool
	JsonSchema            *jsonschema.Schema
	IdentityPaths         []jsonpath.Expression
	ReferenceMappings     []ReferenceMapping
	DecimalInfos          map[string]DecimalInfo
	StringOmissionPaths   map[string]bool
	ArrayUniqueness       []ArrayUniqueness
	EqualityConstraints   []EqualityConstraint
	RootTableNameOverride string
	NameOverrides         map[string]NameOverride

	// Populated by the derivation steps.
	PhysicalSchema        model.DbSchemaName
	StorageKind           model.StorageKind
	RootBaseName          string
	ExtensionSites        []model.ExtensionSite
	Tables                []*TableScope
	DescriptorEdgeSources []model.DescriptorEdgeSource

	// Result is set by CanonicalizeOrdering.
	Result *model.RelationalResourceModel

	identitySet map[string]bool
	consumed    map[string]bool
}

// NewContext prepares a context for one resource schema.
func NewContext(project ProjectInfo, input schema.ResourceSchema) *Context {
	return &Context{
		Project:  project,
		Resource: model.QualifiedResourceName{ProjectName: project.ProjectName, ResourceName: input.ResourceName},
		Input:    input,
	}
}

// IsIdentityPath reports whether path is one of the resource's identity paths.
func (c *Context) IsIdentityPath(path jsonpath.Expression) bool {
	return c.identitySet[path.Canonical()]
}

// DescriptorPath looks up a descriptor path.
func (c *Context) DescriptorPath(path jsonpath.Expression) (DescriptorPathInfo, bool) {
	info, ok := c.DescriptorPaths[path.Canonical()]
	return info, ok
}

// Override returns the name override registered for path, if any, and
// marks it as consumed.
func (c *Context) Override(path jsonpath.Expression) (NameOverride, bool) {
	o, ok := c.NameOverrides[path.Canonical()]
	if ok {
		if c.consumed == nil {
			c.consumed = make(map[string]bool)
		}
		c.consumed[path.Canonical()] = true
	}
	return o, ok
}

// UnusedOverrides returns the name overrides no derived column or
// collection asked for, ordered by canonical path.
func (c *Context) UnusedOverrides() []NameOverride {
	var out []NameOverride
	for _, key := range schema.SortedKeys(c.NameOverrides) {
		if !c.consumed[key] {
			out = append(out, c.NameOverrides[key])
		}
	}
	return out
}

// TableForScope finds a table scope by exact JSON scope.
func (c *Context) TableForScope(scope jsonpath.Expression) (*TableScope, bool) {
	for _, t := range c.Tables {
		if t.Scope.Equal(scope) {
			return t, true
		}
	}
	return nil, false
}

// Label is the Project:Resource form used in error origins.
func (c *Context) Label() string {
	return c.Resource.String()
}

// Errorf returns an ErrInvalidResourceSchema error naming this resource.
func (c *Context) Errorf(format string, args ...any) error {
	return ResourceErrorf(c.Resource, format, args...)
}

// ResourceErrorf returns an ErrInvalidResourceSchema error naming resource.
func ResourceErrorf(resource model.QualifiedResourceName, format string, args ...any) error {
	return fmt.Errorf("%w: resource '%s': %s", schema.ErrInvalidResourceSchema, resource, fmt.Sprintf(format, args...))
}
