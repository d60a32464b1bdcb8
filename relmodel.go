// Package relmodel compiles a normalized document schema set into a
// dialect-bound relational model.
//
// # Module Structure
//
//   - github.com/pthm/relmodel (this package): Build and Emit facade, errors.
//   - github.com/pthm/relmodel/schema: the EffectiveSchemaSet input and its loader.
//   - github.com/pthm/relmodel/pkg/compiler: pass pipeline and manifest emission.
//   - github.com/pthm/relmodel/pkg/dialect: dialect rules and identifier shortening.
//
// # Basic Usage
//
//	set, err := schema.Load("effective-schema.json")
//	if err != nil {
//	    return err
//	}
//	models, err := relmodel.Build(set, relmodel.Pgsql)
//	if err != nil {
//	    return err
//	}
//	manifest, err := relmodel.Emit(models)
//
// A build is pure: the same input gives the same model, and the manifest of
// that model does not depend on the order in which projects, resources or
// map keys appear in the input. Nothing connects to a database.
//
// # Errors
//
// Failures are returned, never logged. Use the Is*Err helpers to classify
// them:
//
//	if relmodel.IsIdentifierCollisionErr(err) {
//	    // two names shortened or overridden to the same identifier
//	}
package relmodel

import (
	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/manifest"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/passes"
	"github.com/pthm/relmodel/schema"
)

// Dialect names a target SQL engine.
type Dialect = dialect.Dialect

// Supported dialects.
const (
	Pgsql = dialect.Pgsql
	Mssql = dialect.Mssql
)

// ModelSet is the derived relational model of a whole schema set.
type ModelSet = model.DerivedRelationalModelSet

// Option configures a build.
type Option = passes.Option

// WithLogger sets the logger used for per-pass debug output.
var WithLogger = passes.WithLogger

// ManifestOption configures Emit.
type ManifestOption = manifest.SetOption

// WithResourceDetails adds full per-resource detail for the listed resources.
var WithResourceDetails = manifest.WithResourceDetails

// WithAllResourceDetails adds full per-resource detail for every resource.
var WithAllResourceDetails = manifest.WithAllResourceDetails

// Build derives the relational model of set for dialect d using the
// built-in dialect rules and the default pass list.
func Build(set *schema.EffectiveSchemaSet, d Dialect, opts ...Option) (*ModelSet, error) {
	rules, err := dialect.ForDialect(d)
	if err != nil {
		return nil, err
	}
	return passes.Build(set, d, rules, opts...)
}

// Emit renders a model set as its canonical JSON manifest.
func Emit(set *ModelSet, opts ...ManifestOption) ([]byte, error) {
	return manifest.EmitSet(set, opts...)
}

// Compile is Build followed by Emit.
func Compile(set *schema.EffectiveSchemaSet, d Dialect, opts ...Option) ([]byte, error) {
	models, err := Build(set, d, opts...)
	if err != nil {
		return nil, err
	}
	return Emit(models)
}
