package dialect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Dialect
	}{
		{"pgsql", Pgsql},
		{"PGSQL", Pgsql},
		{"Postgres", Pgsql},
		{"mssql", Mssql},
		{" SqlServer ", Mssql},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := Parse("oracle")
	require.Error(t, err)
	assert.True(t, IsUnknownDialectErr(err))
}

func TestShortenIdentifier_UnderLimitUnchanged(t *testing.T) {
	for _, d := range All() {
		r := MustForDialect(d)
		name := strings.Repeat("a", r.MaxIdentifierLength())
		assert.Equal(t, name, r.ShortenIdentifier(name), d)
		assert.Equal(t, "FK_School_Document", r.ShortenIdentifier("FK_School_Document"), d)
	}
}

func TestShortenIdentifier_DeterministicAndBounded(t *testing.T) {
	r := MustForDialect(Pgsql)
	long := "FK_StudentSchoolAssociationAlternativeGraduationPlanReference_RefKey_Extra"

	first := r.ShortenIdentifier(long)
	second := r.ShortenIdentifier(long)

	assert.Equal(t, first, second)
	assert.LessOrEqual(t, len(first), 63)
	assert.Equal(t, 63, len(first))
	assert.True(t, strings.HasPrefix(first, long[:52]))
	assert.Equal(t, byte('_'), first[52])
	assert.NotEqual(t, first, r.ShortenIdentifier(long+"X"))
}

func TestShortenIdentifier_RuneBoundary(t *testing.T) {
	r := MustForDialect(Pgsql)
	// Each 'é' is two UTF-8 bytes, so the byte budget lands mid-rune.
	long := "a" + strings.Repeat("é", 40)

	got := r.ShortenIdentifier(long)

	assert.LessOrEqual(t, r.IdentifierLength(got), 63)
	assert.True(t, strings.HasPrefix(got, "a"+strings.Repeat("é", 25)+"_"))
	assert.True(t, strings.ToValidUTF8(got, "?") == got)
}

func TestMssql_MeasuresUTF16(t *testing.T) {
	r := MustForDialect(Mssql)
	// U+1F600 is one rune, four UTF-8 bytes and two UTF-16 code units.
	assert.Equal(t, 2, r.IdentifierLength("\U0001F600"))
	assert.Equal(t, 1, r.IdentifierLength("é"))

	name := strings.Repeat("é", 128)
	assert.Equal(t, name, r.ShortenIdentifier(name))
	assert.NotEqual(t, name+"x", r.ShortenIdentifier(name+"x"))
}

func TestShortenWithSignature(t *testing.T) {
	r := MustForDialect(Pgsql)
	long := strings.Repeat("N", 80)

	a := r.ShortenWithSignature(long, "ForeignKey|edfi.School|A")
	b := r.ShortenWithSignature(long, "ForeignKey|edfi.School|A")
	c := r.ShortenWithSignature(long, "ForeignKey|edfi.School|B")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "short", r.ShortenWithSignature("short", "anything"))
}
