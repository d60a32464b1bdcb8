// Package compiler provides public APIs for deriving relational models and
// rendering their manifests.
//
// This is a thin wrapper around internal/passes and internal/manifest that
// exposes only the types and functions needed by external consumers. Most
// callers want the relmodel package instead; use this one to run a custom
// pass list or to emit per-resource manifests.
package compiler

import (
	"github.com/pthm/relmodel/internal/manifest"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/passes"
)

// ModelSet is the derived relational model of a whole schema set.
type ModelSet = model.DerivedRelationalModelSet

// ConcreteResource is one non-abstract resource of a model set.
type ConcreteResource = model.ConcreteResourceModel

// ResourceModel is the relational form of one resource.
type ResourceModel = model.RelationalResourceModel

// Table is one derived table.
type Table = model.DbTableModel

// ResourceName qualifies a resource by its project.
type ResourceName = model.QualifiedResourceName

// Pass is one whole-set derivation step.
type Pass = passes.Pass

// SetContext is the state shared by every pass of one build.
type SetContext = passes.SetContext

// Builder runs an ordered pass list against a schema set.
type Builder = passes.Builder

// Option configures a Builder.
type Option = passes.Option

// ManifestOption configures EmitSet.
type ManifestOption = manifest.SetOption

// NewBuilder sorts passes by order and rejects duplicate orders.
var NewBuilder = passes.NewBuilder

// DefaultPasses returns the standard pass list.
var DefaultPasses = passes.DefaultPasses

// Build runs the default passes.
var Build = passes.Build

// WithLogger sets the logger used for per-pass debug output.
var WithLogger = passes.WithLogger

// EmitSet renders a model set as canonical JSON.
var EmitSet = manifest.EmitSet

// EmitResource renders one resource model as canonical JSON.
var EmitResource = manifest.EmitResource

// ToYAML re-renders a JSON manifest as YAML with the same key order.
var ToYAML = manifest.ToYAML

// WithResourceDetails adds full detail for the listed resources.
var WithResourceDetails = manifest.WithResourceDetails

// WithAllResourceDetails adds full detail for every resource.
var WithAllResourceDetails = manifest.WithAllResourceDetails
