package model

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/pthm/relmodel/internal/jsonpath"
)

// columnGroup ranks columns for canonical ordering. Key columns come
// first, then unification support columns (stored, no source path), then
// reference FKs, descriptor FKs, scalars and everything else.
func columnGroup(c DbColumnModel, keyIndex map[DbColumnName]int) int {
	if _, ok := keyIndex[c.Name]; ok {
		return 0
	}
	if _, stored := c.StorageOrDefault().(StoredColumn); stored && c.SourcePath == nil {
		return 1
	}
	switch c.Kind {
	case ColumnDocumentFk:
		return 2
	case ColumnDescriptorFk:
		return 3
	case ColumnScalar:
		return 4
	}
	return 5
}

// CanonicalizeTable returns t with columns and constraints in canonical
// order. Columns are grouped and ordered by key position and then name;
// an alias column is never placed before the columns it reads from.
// Constraints are ordered by kind and then name.
func CanonicalizeTable(t DbTableModel) (DbTableModel, error) {
	keyIndex := make(map[DbColumnName]int, len(t.Key.Columns))
	for i, kc := range t.Key.Columns {
		keyIndex[kc.Name] = i
	}

	byName := make(map[DbColumnName]DbColumnModel, len(t.Columns))
	for _, c := range t.Columns {
		if _, dup := byName[c.Name]; dup {
			return DbTableModel{}, fmt.Errorf("%w: duplicate column '%s' on table '%s'", ErrInvalidModel, c.Name, t.Table)
		}
		byName[c.Name] = c
	}

	less := func(a, b DbColumnName) int {
		ca, cb := byName[a], byName[b]
		if d := cmp.Compare(columnGroup(ca, keyIndex), columnGroup(cb, keyIndex)); d != 0 {
			return d
		}
		ia, oka := keyIndex[a]
		ib, okb := keyIndex[b]
		if oka && okb && ia != ib {
			return cmp.Compare(ia, ib)
		}
		return strings.Compare(string(a), string(b))
	}

	// Alias columns depend on their canonical and presence columns.
	pending := make(map[DbColumnName]int, len(byName))
	dependents := make(map[DbColumnName][]DbColumnName)
	addEdge := func(alias, dep DbColumnName, role string) error {
		if _, ok := byName[dep]; !ok {
			return fmt.Errorf("%w: unified alias column '%s' on table '%s' references missing %s '%s'",
				ErrInvalidModel, alias, t.Table, role, dep)
		}
		if alias == dep {
			return fmt.Errorf("%w: unified alias column '%s' on table '%s' cannot depend on itself",
				ErrInvalidModel, alias, t.Table)
		}
		if slices.Contains(dependents[dep], alias) {
			return nil
		}
		dependents[dep] = append(dependents[dep], alias)
		pending[alias]++
		return nil
	}
	for _, c := range t.Columns {
		alias, ok := c.Storage.(UnifiedAliasColumn)
		if !ok {
			continue
		}
		if err := addEdge(c.Name, alias.Canonical, "canonical column"); err != nil {
			return DbTableModel{}, err
		}
		if alias.Presence != "" {
			if err := addEdge(c.Name, alias.Presence, "presence-gate column"); err != nil {
				return DbTableModel{}, err
			}
		}
	}

	var ready []DbColumnName
	for name := range byName {
		if pending[name] == 0 {
			ready = append(ready, name)
		}
	}
	ordered := make([]DbColumnModel, 0, len(t.Columns))
	for len(ready) > 0 {
		slices.SortFunc(ready, less)
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[next])
		for _, d := range dependents[next] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(ordered) != len(t.Columns) {
		var blocked []string
		for name, n := range pending {
			if n > 0 {
				blocked = append(blocked, string(name))
			}
		}
		slices.Sort(blocked)
		return DbTableModel{}, fmt.Errorf("%w: circular unified alias column dependencies on table '%s': %s",
			ErrInvalidModel, t.Table, strings.Join(blocked, ", "))
	}

	constraints := slices.Clone(t.Constraints)
	slices.SortStableFunc(constraints, func(a, b TableConstraint) int {
		if d := cmp.Compare(ConstraintKindOrder(a.ConstraintKind()), ConstraintKindOrder(b.ConstraintKind())); d != 0 {
			return d
		}
		return strings.Compare(a.ConstraintName(), b.ConstraintName())
	})

	t.Columns = ordered
	t.Constraints = constraints
	return t, nil
}

// ArrayDepth counts the array wildcards in a table scope.
func ArrayDepth(scope jsonpath.Expression) int {
	n := 0
	for _, s := range scope.Segments() {
		if s.IsWildcard() {
			n++
		}
	}
	return n
}

// CompareTableOrder orders tables for TablesInDependencyOrder: shallower
// scopes first, then by scope, schema and name.
func CompareTableOrder(a, b DbTableModel) int {
	if d := cmp.Compare(ArrayDepth(a.JsonScope), ArrayDepth(b.JsonScope)); d != 0 {
		return d
	}
	if d := strings.Compare(a.JsonScope.Canonical(), b.JsonScope.Canonical()); d != 0 {
		return d
	}
	return CompareTables(a.Table, b.Table)
}

// CanonicalizeResource sorts every ordered collection of m. The root table
// (scope $) must be present and ends up first.
func CanonicalizeResource(m RelationalResourceModel) (RelationalResourceModel, error) {
	tables := make([]DbTableModel, 0, len(m.TablesInDependencyOrder))
	hasRoot := false
	for _, t := range m.TablesInDependencyOrder {
		ct, err := CanonicalizeTable(t)
		if err != nil {
			return RelationalResourceModel{}, err
		}
		if ct.JsonScope.IsRoot() {
			hasRoot = true
		}
		tables = append(tables, ct)
	}
	if !hasRoot {
		return RelationalResourceModel{}, fmt.Errorf("%w: resource '%s' has no root table", ErrInvalidModel, m.Resource)
	}
	slices.SortStableFunc(tables, CompareTableOrder)

	refs := slices.Clone(m.DocumentReferenceBindings)
	slices.SortStableFunc(refs, func(a, b DocumentReferenceBinding) int {
		return cmp.Or(
			strings.Compare(a.ReferenceObjectPath.Canonical(), b.ReferenceObjectPath.Canonical()),
			CompareTables(a.Table, b.Table),
			strings.Compare(string(a.FkColumn), string(b.FkColumn)),
			CompareResources(a.TargetResource, b.TargetResource),
			compareBool(a.IsIdentityComponent, b.IsIdentityComponent),
		)
	})

	edges := slices.Clone(m.DescriptorEdgeSources)
	slices.SortStableFunc(edges, func(a, b DescriptorEdgeSource) int {
		return cmp.Or(
			CompareTables(a.Table, b.Table),
			strings.Compare(a.DescriptorValuePath.Canonical(), b.DescriptorValuePath.Canonical()),
			strings.Compare(string(a.FkColumn), string(b.FkColumn)),
			CompareResources(a.DescriptorResource, b.DescriptorResource),
			compareBool(a.IsIdentityComponent, b.IsIdentityComponent),
		)
	})

	sites := make([]ExtensionSite, len(m.ExtensionSites))
	for i, s := range m.ExtensionSites {
		s.ProjectKeys = slices.Clone(s.ProjectKeys)
		slices.Sort(s.ProjectKeys)
		sites[i] = s
	}
	slices.SortStableFunc(sites, func(a, b ExtensionSite) int {
		return cmp.Or(
			strings.Compare(a.OwningScope.Canonical(), b.OwningScope.Canonical()),
			strings.Compare(a.ExtensionPath.Canonical(), b.ExtensionPath.Canonical()),
			strings.Compare(strings.Join(a.ProjectKeys, ","), strings.Join(b.ProjectKeys, ",")),
		)
	})

	m.TablesInDependencyOrder = tables
	m.DocumentReferenceBindings = refs
	m.DescriptorEdgeSources = edges
	m.ExtensionSites = sites
	return m, nil
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
