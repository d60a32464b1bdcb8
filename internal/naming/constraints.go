package naming

import (
	"sort"
	"strings"

	"github.com/pthm/relmodel/internal/model"
)

const (
	naturalKeyToken   = "NK"
	referenceKeyToken = "RefKey"
	allNoneToken      = "AllNone"
	documentToken     = "Document"

	descriptorIDSuffix = "_DescriptorId"
)

// Trigger purposes.
const (
	TriggerStamp               = "Stamp"
	TriggerReferentialIdentity = "ReferentialIdentity"
	TriggerAbstractIdentity    = "AbstractIdentity"
	TriggerPropagateIdentity   = "PropagateIdentity"
)

func build(prefix string, table model.DbTableName, tokens ...string) string {
	if len(tokens) == 0 {
		return prefix + "_" + table.Name
	}
	return prefix + "_" + table.Name + "_" + strings.Join(tokens, "_")
}

// PrimaryKeyName is PK_<table>.
func PrimaryKeyName(table model.DbTableName) string {
	return build("PK", table)
}

// NaturalKeyName is UX_<table>_NK.
func NaturalKeyName(table model.DbTableName) string {
	return build("UX", table, naturalKeyToken)
}

// ReferenceKeyName is UX_<table>_RefKey.
func ReferenceKeyName(table model.DbTableName) string {
	return build("UX", table, referenceKeyToken)
}

// UniqueName is UX_<table>_<col1>_<col2>...
func UniqueName(table model.DbTableName, columns ...model.DbColumnName) string {
	tokens := make([]string, len(columns))
	for i, c := range columns {
		tokens[i] = string(c)
	}
	return build("UX", table, tokens...)
}

// DocumentForeignKeyName is FK_<table>_Document.
func DocumentForeignKeyName(table model.DbTableName) string {
	return build("FK", table, documentToken)
}

// ForeignKeyName is FK_<table>_<tokens...>.
func ForeignKeyName(table model.DbTableName, tokens ...string) string {
	return build("FK", table, tokens...)
}

// ReferenceForeignKeyName is FK_<table>_<ref>, with a _RefKey suffix when the
// key is composite.
func ReferenceForeignKeyName(table model.DbTableName, referenceBase string, composite bool) string {
	if composite {
		return build("FK", table, referenceBase, referenceKeyToken)
	}
	return build("FK", table, referenceBase)
}

// DescriptorForeignKeyName is FK_<table>_<column without _DescriptorId>.
func DescriptorForeignKeyName(table model.DbTableName, column model.DbColumnName) string {
	return build("FK", table, strings.TrimSuffix(string(column), descriptorIDSuffix))
}

// AllOrNoneName is CK_<table>_<ref>_AllNone.
func AllOrNoneName(table model.DbTableName, referenceBase string) string {
	return build("CK", table, referenceBase, allNoneToken)
}

// ForeignKeySupportIndexName is IX_<table>_<col1>_<col2>...
func ForeignKeySupportIndexName(table model.DbTableName, columns []model.DbColumnName) string {
	tokens := make([]string, len(columns))
	for i, c := range columns {
		tokens[i] = string(c)
	}
	return build("IX", table, tokens...)
}

// TriggerName is TR_<table>_<purpose>.
func TriggerName(table model.DbTableName, purpose string) string {
	return build("TR", table, purpose)
}

// ArrayUniquenessName is UX_<table>_<tokens>. Column names are split at
// their last underscore; the prefixes are emitted once each, in ordinal
// order, followed by their sorted suffixes.
func ArrayUniquenessName(table model.DbTableName, columns []model.DbColumnName) string {
	return build("UX", table, arrayUniquenessTokens(columns)...)
}

func arrayUniquenessTokens(columns []model.DbColumnName) []string {
	byPrefix := make(map[string][]string)
	var prefixes []string
	for _, c := range columns {
		prefix, suffix := splitColumn(string(c))
		if _, ok := byPrefix[prefix]; !ok {
			prefixes = append(prefixes, prefix)
		}
		byPrefix[prefix] = append(byPrefix[prefix], suffix)
	}
	sort.Strings(prefixes)

	var tokens []string
	for _, prefix := range prefixes {
		suffixes := byPrefix[prefix]
		sort.Strings(suffixes)
		if prefix != "" {
			tokens = append(tokens, prefix)
		}
		tokens = append(tokens, suffixes...)
	}
	return tokens
}

func splitColumn(name string) (prefix, suffix string) {
	i := strings.LastIndexByte(name, '_')
	if i <= 0 || i == len(name)-1 {
		return "", name
	}
	return name[:i], name[i+1:]
}
