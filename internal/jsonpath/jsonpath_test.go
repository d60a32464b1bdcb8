package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Valid(t *testing.T) {
	tests := []struct {
		path     string
		segments []Segment
	}{
		{"$", nil},
		{"$.schoolId", []Segment{Prop("schoolId")}},
		{"$.addresses[*].periods[*].beginDate", []Segment{
			Prop("addresses"), Wildcard(), Prop("periods"), Wildcard(), Prop("beginDate"),
		}},
		{"$._ext.sample-ext.flag", []Segment{Prop("_ext"), Prop("sample-ext"), Prop("flag")}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e, err := Compile(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.path, e.Canonical())
			assert.Equal(t, len(tt.segments), e.Len())
			for i, s := range tt.segments {
				assert.Equal(t, s, e.Segments()[i])
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		message string
	}{
		{"empty", "", "must not be empty"},
		{"no root", "schoolId", "must start with '$'"},
		{"numeric index", "$.addresses[0].city", "JsonPath array segments must use the wildcard [*]"},
		{"filter", "$.addresses[?(@.x)]", "JsonPath array segments must use the wildcard [*]"},
		{"leading wildcard", "$[*]", "must follow a property"},
		{"double wildcard", "$.a[*][*]", "consecutive array wildcards"},
		{"empty property", "$..a", "empty property segment"},
		{"unterminated", "$.a[*", "unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.path)
			require.Error(t, err)
			assert.True(t, IsInvalidJsonPathErr(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestExpression_PrefixOperations(t *testing.T) {
	base := MustCompile("$.addresses[*]")
	path := MustCompile("$.addresses[*].periods[*].beginDate")

	assert.True(t, path.HasPrefix(base))
	assert.True(t, path.HasPrefix(Root()))
	assert.False(t, base.HasPrefix(path))

	rest, ok := path.TrimPrefix(base)
	require.True(t, ok)
	assert.Equal(t, []Segment{Prop("periods"), Wildcard(), Prop("beginDate")}, rest)

	scope, ok := path.ArrayScope()
	require.True(t, ok)
	assert.Equal(t, "$.addresses[*].periods[*]", scope.Canonical())

	_, ok = MustCompile("$.schoolId").ArrayScope()
	assert.False(t, ok)

	assert.Equal(t, "$.addresses[*].periods[*]", path.Parent().Canonical())
	assert.Equal(t, "$", Root().Parent().Canonical())
}

func TestExpression_AppendDoesNotAlias(t *testing.T) {
	base := MustCompile("$.a")
	x := base.Child("x")
	y := base.Child("y")

	assert.Equal(t, "$.a.x", x.Canonical())
	assert.Equal(t, "$.a.y", y.Canonical())
	assert.Equal(t, "$.a", base.Canonical())
	assert.Equal(t, "$.a[*]", base.Elements().Canonical())
}

func TestExpression_EqualAndCompare(t *testing.T) {
	a := MustCompile("$.a.b")
	b, err := FromSegments(Prop("a"), Prop("b"))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.Equal(t, 0, Compare(a, b))
	assert.Negative(t, Compare(MustCompile("$.a"), MustCompile("$.b")))

	name, ok := a.LastProperty()
	require.True(t, ok)
	assert.Equal(t, "b", name)
	_, ok = MustCompile("$.a[*]").LastProperty()
	assert.False(t, ok)
}
