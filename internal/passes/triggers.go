package passes

import (
	"cmp"
	"slices"

	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

// TriggerInventory lists the triggers that maintain document stamps,
// referential identities and abstract identity rows. Under SQL Server,
// which cannot cascade composite key updates through these FKs, it also
// lists the identity propagation fallbacks.
type TriggerInventory struct{}

func (TriggerInventory) Name() string { return "TriggerInventory" }
func (TriggerInventory) Order() int   { return 90 }

func (TriggerInventory) Execute(s *SetContext) error {
	s.Triggers = s.Triggers[:0]

	for _, e := range s.Resources {
		if e.IsExtension() || e.Model == nil || e.Model.StorageKind == model.SharedDescriptorTable {
			continue
		}
		rm := &e.Model.RelationalModel
		for _, t := range rm.TablesInDependencyOrder {
			s.Triggers = append(s.Triggers, model.DbTriggerInfo{
				Name:       model.DbTriggerName(naming.TriggerName(t.Table, naming.TriggerStamp)),
				Table:      t.Table,
				Kind:       model.TriggerDocumentStamping,
				KeyColumns: t.Key.ColumnNames(),
			})
		}

		if len(e.Context.IdentityPaths) == 0 {
			continue
		}
		cols, err := naturalKeyColumns(e.Context, rm)
		if err != nil {
			return err
		}
		root := rm.Root()
		s.Triggers = append(s.Triggers, model.DbTriggerInfo{
			Name:                      model.DbTriggerName(naming.TriggerName(root.Table, naming.TriggerReferentialIdentity)),
			Table:                     root.Table,
			Kind:                      model.TriggerReferentialIdentityMaintenance,
			KeyColumns:                []model.DbColumnName{model.DocumentIDColumn},
			IdentityProjectionColumns: cols,
		})
	}

	for _, a := range s.Abstracts {
		if a.Table == nil || a.View == nil {
			continue
		}
		target := a.Table.Table.Table
		for _, arm := range a.View.UnionArms {
			var cols []model.DbColumnName
			for _, p := range arm.Projections[1:] {
				if !p.IsLiteral {
					cols = append(cols, p.SourceColumn)
				}
			}
			s.Triggers = append(s.Triggers, model.DbTriggerInfo{
				Name:                      model.DbTriggerName(naming.TriggerName(arm.FromTable, naming.TriggerAbstractIdentity)),
				Table:                     arm.FromTable,
				Kind:                      model.TriggerAbstractIdentityMaintenance,
				KeyColumns:                []model.DbColumnName{model.DocumentIDColumn},
				IdentityProjectionColumns: cols,
				TargetTable:               model.Ptr(target),
			})
		}
	}

	if s.Dialect == dialect.Mssql {
		s.Triggers = append(s.Triggers, propagationTriggers(s.referenceKeys)...)
	}
	return nil
}

// propagationTriggers groups identity-propagating reference FKs by target
// table, one trigger per target.
func propagationTriggers(keys []referenceForeignKey) []model.DbTriggerInfo {
	byTarget := make(map[model.DbTableName][]model.TriggerReferrer)
	var targets []model.DbTableName
	for _, k := range keys {
		if !k.PropagatesKeys || len(k.Columns) == 0 {
			continue
		}
		if _, ok := byTarget[k.TargetTable]; !ok {
			targets = append(targets, k.TargetTable)
		}
		mappings := make([]model.TriggerColumnMapping, len(k.Columns))
		for i := range k.Columns {
			mappings[i] = model.TriggerColumnMapping{Source: k.TargetColumns[i], Target: k.Columns[i]}
		}
		byTarget[k.TargetTable] = append(byTarget[k.TargetTable], model.TriggerReferrer{
			Table:          k.Table,
			FkColumn:       k.FkColumn,
			ColumnMappings: mappings,
		})
	}
	slices.SortFunc(targets, model.CompareTables)

	out := make([]model.DbTriggerInfo, 0, len(targets))
	for _, t := range targets {
		referrers := byTarget[t]
		slices.SortFunc(referrers, func(a, b model.TriggerReferrer) int {
			if d := model.CompareTables(a.Table, b.Table); d != 0 {
				return d
			}
			return cmp.Compare(a.FkColumn, b.FkColumn)
		})
		out = append(out, model.DbTriggerInfo{
			Name:       model.DbTriggerName(naming.TriggerName(t, naming.TriggerPropagateIdentity)),
			Table:      t,
			Kind:       model.TriggerIdentityPropagationFallback,
			KeyColumns: []model.DbColumnName{model.DocumentIDColumn},
			Referrers:  referrers,
		})
	}
	return out
}
