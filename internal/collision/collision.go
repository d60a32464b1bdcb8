// Package collision detects physical identifiers that end up with the same
// final name from different sources.
//
// Two stages use it. Override collisions are found while tables and columns
// are named, after relational.nameOverrides are applied. Shortening
// collisions are found just before dialect shortening rewrites every
// identifier. A collision is only reported when the colliding
// registrations started from different original names; registering the
// same original twice (every descriptor shares dms.Descriptor, for
// example) is not a collision.
package collision

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/model"
)

// ErrIdentifierCollision is returned when two sources produce the same
// physical identifier in one namespace.
var ErrIdentifierCollision = errors.New("relmodel/collision: identifier collision")

// IsIdentifierCollisionErr returns true if err is or wraps ErrIdentifierCollision.
func IsIdentifierCollisionErr(err error) bool {
	return errors.Is(err, ErrIdentifierCollision)
}

// Kind is the namespace an identifier lives in.
type Kind string

const (
	KindSchema     Kind = "schema"
	KindTable      Kind = "table"
	KindColumn     Kind = "column"
	KindConstraint Kind = "constraint"
	KindIndex      Kind = "index"
	KindTrigger    Kind = "trigger"
	KindView       Kind = "view"
)

// Stage names the point in compilation a detector serves. Every reported
// group is prefixed with it.
type Stage string

// StageAfterOverrideNormalization is the stage of override collisions.
const StageAfterOverrideNormalization Stage = "AfterOverrideNormalization"

// AfterDialectShortening is the stage of shortening collisions for rules.
func AfterDialectShortening(rules dialect.Rules) Stage {
	return Stage(fmt.Sprintf("AfterDialectShortening(%s:%d)", rules.Dialect(), rules.MaxIdentifierLength()))
}

// Origin says where an identifier came from.
type Origin struct {
	Description string
	Resource    string
	JsonPath    string
}

func (o Origin) String() string {
	var sb strings.Builder
	sb.WriteString(o.Description)
	if o.Resource != "" {
		fmt.Fprintf(&sb, " (resource %s", o.Resource)
		if o.JsonPath != "" {
			fmt.Fprintf(&sb, ", path %s", o.JsonPath)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// Scope is one identifier namespace. Schema and Table are empty when the
// namespace is wider than them.
type Scope struct {
	Kind   Kind
	Schema string
	Table  string
}

func (s Scope) String() string {
	switch {
	case s.Table != "":
		return fmt.Sprintf("%s %s.%s", s.Kind, s.Schema, s.Table)
	case s.Schema != "":
		return fmt.Sprintf("%s %s", s.Kind, s.Schema)
	default:
		return string(s.Kind)
	}
}

type source struct {
	original string
	final    string
	origin   Origin
}

type key struct {
	scope Scope
	final string
}

// core tracks registrations per scope and final name.
type core struct {
	stage   Stage
	entries map[key][]source
}

func newCore(stage Stage) core {
	return core{stage: stage, entries: make(map[key][]source)}
}

func (c *core) register(scope Scope, final string, src source) {
	k := key{scope: scope, final: final}
	c.entries[k] = append(c.entries[k], src)
}

// check returns an error listing every collision, sorted by scope and
// final name so the message is stable.
func (c *core) check(prefix string, ignore func(Scope, string, Origin) bool) error {
	var report []string
	keys := make([]key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b key) int {
		if d := strings.Compare(a.scope.String(), b.scope.String()); d != 0 {
			return d
		}
		return strings.Compare(a.final, b.final)
	})

	for _, k := range keys {
		sources := c.entries[k]
		originals := make(map[string]bool)
		for _, s := range sources {
			if ignore != nil && ignore(k.scope, k.final, s.origin) {
				continue
			}
			originals[s.original] = true
		}
		if len(originals) < 2 {
			continue
		}

		report = append(report, formatGroup(c.stage, k.scope, k.final, sources))
	}

	if len(report) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s%s", ErrIdentifierCollision, prefix, strings.Join(report, " | "))
}

func formatGroup(stage Stage, scope Scope, final string, sources []source) string {
	lines := make([]string, 0, len(sources))
	seen := make(map[string]bool)
	for _, s := range sources {
		line := fmt.Sprintf("'%s' from %s", s.original, s.origin)
		if seen[line] {
			continue
		}
		seen[line] = true
		lines = append(lines, line)
	}
	slices.Sort(lines)
	return fmt.Sprintf("stage %s, %s '%s': %s", stage, scope, final, strings.Join(lines, "; "))
}

// Source is one contributor to a reported identifier.
type Source struct {
	Original string
	Origin   Origin
}

// Conflict reports sources that were all given the final identifier in
// scope. Unlike the detectors it does not require distinct originals, so
// two paths that derive the same column name are always reported.
func Conflict(scope Scope, final string, sources ...Source) error {
	srcs := make([]source, len(sources))
	for i, s := range sources {
		srcs[i] = source{original: s.Original, final: final, origin: s.Origin}
	}
	return fmt.Errorf("%w: Identifier override collisions detected: %s", ErrIdentifierCollision,
		formatGroup(StageAfterOverrideNormalization, scope, final, srcs))
}

// OverrideDetector finds names made equal by relational overrides.
type OverrideDetector struct {
	core core
}

// NewOverrideDetector returns an empty override detector.
func NewOverrideDetector() *OverrideDetector {
	return &OverrideDetector{core: newCore(StageAfterOverrideNormalization)}
}

// RegisterTable records a table whose final name came from original.
func (d *OverrideDetector) RegisterTable(table model.DbTableName, original string, origin Origin) {
	scope := Scope{Kind: KindTable, Schema: string(table.Schema)}
	d.core.register(scope, table.Name, source{original: original, final: table.Name, origin: origin})
}

// RegisterColumn records a column whose final name came from original.
func (d *OverrideDetector) RegisterColumn(table model.DbTableName, column model.DbColumnName, original string, origin Origin) {
	scope := Scope{Kind: KindColumn, Schema: string(table.Schema), Table: table.Name}
	d.core.register(scope, string(column), source{original: original, final: string(column), origin: origin})
}

// Err reports every override collision found so far.
func (d *OverrideDetector) Err() error {
	return d.core.check("Identifier override collisions detected: ", nil)
}

// ShorteningDetector finds identifiers that would collide once shortened
// for a dialect.
type ShorteningDetector struct {
	core  core
	rules dialect.Rules
}

// NewShorteningDetector returns a detector for rules.
func NewShorteningDetector(rules dialect.Rules) *ShorteningDetector {
	return &ShorteningDetector{core: newCore(AfterDialectShortening(rules)), rules: rules}
}

func (d *ShorteningDetector) register(scope Scope, original string, origin Origin) {
	d.registerSigned(scope, original, original, origin)
}

func (d *ShorteningDetector) registerSigned(scope Scope, original, signature string, origin Origin) {
	final := d.rules.ShortenWithSignature(original, signature)
	d.core.register(scope, final, source{original: original, final: final, origin: origin})
}

// RegisterSchema records a schema name. Schemas share one global namespace.
func (d *ShorteningDetector) RegisterSchema(schema model.DbSchemaName, origin Origin) {
	d.register(Scope{Kind: KindSchema}, string(schema), origin)
}

// RegisterTable records a table name. Tables are unique per schema.
func (d *ShorteningDetector) RegisterTable(table model.DbTableName, origin Origin) {
	d.register(Scope{Kind: KindTable, Schema: string(table.Schema)}, table.Name, origin)
}

// RegisterView records a view name. Views share the table namespace.
func (d *ShorteningDetector) RegisterView(view model.DbTableName, origin Origin) {
	d.register(Scope{Kind: KindTable, Schema: string(view.Schema)}, view.Name, origin)
}

// RegisterColumn records a column name. Columns are unique per table.
func (d *ShorteningDetector) RegisterColumn(table model.DbTableName, column model.DbColumnName, origin Origin) {
	d.register(Scope{Kind: KindColumn, Schema: string(table.Schema), Table: table.Name}, string(column), origin)
}

// RegisterConstraint records a constraint name. Constraints are unique per
// schema. Overlong names shorten with signature as the hash input.
func (d *ShorteningDetector) RegisterConstraint(table model.DbTableName, name, signature string, origin Origin) {
	d.registerSigned(Scope{Kind: KindConstraint, Schema: string(table.Schema)}, name, signature, origin)
}

// RegisterIndex records an index name. PostgreSQL scopes index names to
// the schema; SQL Server scopes them to the table.
// An empty signature hashes the name itself.
func (d *ShorteningDetector) RegisterIndex(table model.DbTableName, name model.DbIndexName, signature string, origin Origin) {
	scope := Scope{Kind: KindIndex, Schema: string(table.Schema)}
	if d.rules.Dialect() == dialect.Mssql {
		scope.Table = table.Name
	}
	if signature == "" {
		signature = string(name)
	}
	d.registerSigned(scope, string(name), signature, origin)
}

// RegisterTrigger records a trigger name. PostgreSQL scopes trigger names
// to the table; SQL Server scopes them to the schema.
func (d *ShorteningDetector) RegisterTrigger(table model.DbTableName, name model.DbTriggerName, origin Origin) {
	scope := Scope{Kind: KindTrigger, Schema: string(table.Schema)}
	if d.rules.Dialect() == dialect.Pgsql {
		scope.Table = table.Name
	}
	d.register(scope, string(name), origin)
}

// Err reports every shortening collision. Registrations of the shared
// descriptor table are ignored.
func (d *ShorteningDetector) Err() error {
	return d.core.check("Identifier shortening collisions detected: ", sharedDescriptorElement)
}

func sharedDescriptorElement(scope Scope, final string, origin Origin) bool {
	if scope.Schema != string(model.CoreSchema) {
		return false
	}
	switch scope.Kind {
	case KindTable:
		return final == model.DescriptorTable.Name
	case KindColumn:
		return scope.Table == model.DescriptorTable.Name
	case KindConstraint, KindIndex, KindTrigger:
		return strings.Contains(origin.Description, model.DescriptorTable.String())
	}
	return false
}
