// Package passes derives the relational model of a whole effective schema
// set.
//
// A build is an ordered list of passes that share one SetContext. The first
// pass lowers every resource on its own (see the build package); the later
// passes add everything that needs more than one resource at a time:
// extension tables, abstract identity tables and union views, reference
// columns and foreign keys, natural keys, array uniqueness, the index and
// trigger inventories, and finally dialect identifier shortening.
//
// Passes run in ascending Order. Orders must be unique so that the pass
// list itself is deterministic. Once every pass has run, the set is
// validated and assembled into a DerivedRelationalModelSet whose ordering
// depends only on names, never on the order of the input.
package passes

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/schema"
)

// ErrDuplicatePassOrder is returned by NewBuilder when two passes share an
// Order value.
var ErrDuplicatePassOrder = errors.New("relmodel/passes: duplicate pass order")

// IsDuplicatePassOrderErr returns true if err is or wraps ErrDuplicatePassOrder.
func IsDuplicatePassOrderErr(err error) bool {
	return errors.Is(err, ErrDuplicatePassOrder)
}

// Pass is one whole-set derivation step.
type Pass interface {
	Name() string
	Order() int
	Execute(*SetContext) error
}

// DefaultPasses returns the standard pass list.
func DefaultPasses() []Pass {
	return []Pass{
		BaseTraversal{},
		ExtensionTables{},
		AbstractIdentityTables{},
		ReferenceBinding{},
		KeyUnification{},
		RootIdentityConstraint{},
		ReferenceConstraint{},
		ArrayUniquenessConstraint{},
		IndexInventory{},
		TriggerInventory{},
		IdentifierShortening{},
	}
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for per-pass debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Builder runs an ordered pass list against a schema set.
type Builder struct {
	passes []Pass
	logger *slog.Logger
}

// NewBuilder sorts passes by Order. It fails when two or more passes share
// an order value.
func NewBuilder(passes []Pass, opts ...Option) (*Builder, error) {
	sorted := slices.Clone(passes)
	slices.SortStableFunc(sorted, func(a, b Pass) int { return a.Order() - b.Order() })

	var dups []string
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Order() == sorted[i].Order() {
			j++
		}
		if j-i > 1 {
			names := make([]string, 0, j-i)
			for _, p := range sorted[i:j] {
				names = append(names, p.Name())
			}
			slices.Sort(names)
			dups = append(dups, fmt.Sprintf("passes %s share order %d", strings.Join(names, ", "), sorted[i].Order()))
		}
		i = j
	}
	if len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePassOrder, strings.Join(dups, "; "))
	}

	b := &Builder{passes: sorted, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Passes returns the passes in execution order.
func (b *Builder) Passes() []Pass { return slices.Clone(b.passes) }

// Build validates set, runs every pass and assembles the result.
func (b *Builder) Build(set *schema.EffectiveSchemaSet, d dialect.Dialect, rules dialect.Rules) (*model.DerivedRelationalModelSet, error) {
	if set == nil {
		return nil, fmt.Errorf("%w: effective schema set is nil", schema.ErrInvalidEffectiveSchema)
	}
	if rules == nil {
		return nil, fmt.Errorf("%w: dialect rules are nil", dialect.ErrUnknownDialect)
	}
	if d != rules.Dialect() {
		return nil, fmt.Errorf("%w: requested dialect %s does not match rules dialect %s",
			dialect.ErrDialectMismatch, d, rules.Dialect())
	}

	s, err := NewSetContext(set, rules)
	if err != nil {
		return nil, err
	}
	s.Logger = b.logger

	start := time.Now()
	for _, p := range b.passes {
		passStart := time.Now()
		if err := p.Execute(s); err != nil {
			b.logger.Debug("pass failed", "pass", p.Name(), "order", p.Order(), "error", err)
			return nil, err
		}
		b.logger.Debug("pass completed", "pass", p.Name(), "order", p.Order(), "elapsed", time.Since(passStart))
	}

	result, err := assemble(s)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("model set built",
		"dialect", d,
		"resources", len(result.ConcreteResourcesInNameOrder),
		"abstract", len(result.AbstractIdentityTablesInNameOrder),
		"indexes", len(result.IndexesInCreateOrder),
		"triggers", len(result.TriggersInCreateOrder),
		"elapsed", time.Since(start))
	return result, nil
}

// Build runs the default passes.
func Build(set *schema.EffectiveSchemaSet, d dialect.Dialect, rules dialect.Rules, opts ...Option) (*model.DerivedRelationalModelSet, error) {
	b, err := NewBuilder(DefaultPasses(), opts...)
	if err != nil {
		return nil, err
	}
	return b.Build(set, d, rules)
}
