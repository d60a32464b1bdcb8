// Package schema exposes the effective schema set input.
//
// It re-exports the schema package under pkg/ so that the public surface
// lives in one place.
package schema

import "github.com/pthm/relmodel/schema"

// EffectiveSchemaSet is the normalized input of a build.
type EffectiveSchemaSet = schema.EffectiveSchemaSet

// ProjectSchema is one project of a schema set.
type ProjectSchema = schema.ProjectSchema

// ResourceSchema is the schema of one resource.
type ResourceSchema = schema.ResourceSchema

// Load reads a schema set from a .json, .yaml or .yml file.
var Load = schema.Load

// Parse decodes a JSON schema set.
var Parse = schema.Parse

// ParseYAML decodes a YAML schema set.
var ParseYAML = schema.ParseYAML

// Marshal encodes a schema set as indented JSON.
var Marshal = schema.Marshal

// Reversed returns a copy of set with projects and components reversed.
var Reversed = schema.Reversed
