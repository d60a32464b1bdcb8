// Package jsonpath compiles the restricted JSONPath dialect used by resource
// schemas into structured expressions.
//
// Only two segment forms are supported: property access (".name") and the
// array wildcard ("[*]"). Every path is rooted at "$". Numeric indices,
// filters, and recursive descent are rejected.
package jsonpath

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidJsonPath is returned when a path does not conform to the
// supported JSONPath subset.
var ErrInvalidJsonPath = errors.New("relmodel/jsonpath: invalid JSON path")

// IsInvalidJsonPathErr returns true if err is or wraps ErrInvalidJsonPath.
func IsInvalidJsonPathErr(err error) bool {
	return errors.Is(err, ErrInvalidJsonPath)
}

// SegmentKind distinguishes property segments from array wildcards.
type SegmentKind int

const (
	// Property selects a named member of an object.
	Property SegmentKind = iota
	// AnyArrayElement selects every element of an array ("[*]").
	AnyArrayElement
)

// Segment is one step of a compiled path.
type Segment struct {
	Kind SegmentKind
	Name string
}

// Prop returns a property segment.
func Prop(name string) Segment {
	return Segment{Kind: Property, Name: name}
}

// Wildcard returns an array wildcard segment.
func Wildcard() Segment {
	return Segment{Kind: AnyArrayElement}
}

// IsWildcard reports whether the segment is "[*]".
func (s Segment) IsWildcard() bool { return s.Kind == AnyArrayElement }

func (s Segment) String() string {
	if s.Kind == AnyArrayElement {
		return "[*]"
	}
	return "." + s.Name
}

// Expression is a compiled path. The canonical form is always regenerated
// from the segments, so two expressions with equal segments have equal
// canonical strings.
type Expression struct {
	canonical string
	segments  []Segment
}

// Root returns the "$" expression.
func Root() Expression {
	return Expression{canonical: "$"}
}

// Compile parses a path string.
func Compile(path string) (Expression, error) {
	if path == "" {
		return Expression{}, fmt.Errorf("%w: path must not be empty", ErrInvalidJsonPath)
	}
	if path[0] != '$' {
		return Expression{}, fmt.Errorf("%w: path %q must start with '$'", ErrInvalidJsonPath, path)
	}

	var segments []Segment
	i := 1
	for i < len(path) {
		switch path[i] {
		case '.':
			start := i + 1
			end := start
			for end < len(path) && isPropertyChar(path[end]) {
				end++
			}
			if end == start {
				return Expression{}, fmt.Errorf("%w: path %q has an empty property segment at offset %d",
					ErrInvalidJsonPath, path, i)
			}
			segments = append(segments, Prop(path[start:end]))
			i = end
		case '[':
			closeIdx := strings.IndexByte(path[i:], ']')
			if closeIdx < 0 {
				return Expression{}, fmt.Errorf("%w: path %q has an unterminated '['", ErrInvalidJsonPath, path)
			}
			if path[i:i+closeIdx+1] != "[*]" {
				return Expression{}, fmt.Errorf("%w: JsonPath array segments must use the wildcard [*]: %q",
					ErrInvalidJsonPath, path)
			}
			segments = append(segments, Wildcard())
			i += closeIdx + 1
		default:
			return Expression{}, fmt.Errorf("%w: unexpected character %q in path %q at offset %d",
				ErrInvalidJsonPath, path[i], path, i)
		}
	}

	return FromSegments(segments...)
}

// MustCompile is like Compile but panics on error. Intended for constants and tests.
func MustCompile(path string) Expression {
	e, err := Compile(path)
	if err != nil {
		panic(err)
	}
	return e
}

// FromSegments builds an expression from segments, validating that a
// wildcard never appears first or twice in a row.
func FromSegments(segments ...Segment) (Expression, error) {
	for i, s := range segments {
		switch s.Kind {
		case AnyArrayElement:
			if i == 0 {
				return Expression{}, fmt.Errorf("%w: array wildcard must follow a property", ErrInvalidJsonPath)
			}
			if segments[i-1].Kind == AnyArrayElement {
				return Expression{}, fmt.Errorf("%w: consecutive array wildcards are not supported", ErrInvalidJsonPath)
			}
		case Property:
			if s.Name == "" {
				return Expression{}, fmt.Errorf("%w: property segment must have a name", ErrInvalidJsonPath)
			}
		default:
			return Expression{}, fmt.Errorf("%w: unknown segment kind %d", ErrInvalidJsonPath, s.Kind)
		}
	}
	return build(segments), nil
}

func build(segments []Segment) Expression {
	if len(segments) == 0 {
		return Root()
	}
	owned := make([]Segment, len(segments))
	copy(owned, segments)

	var sb strings.Builder
	sb.WriteByte('$')
	for _, s := range owned {
		sb.WriteString(s.String())
	}
	return Expression{canonical: sb.String(), segments: owned}
}

func isPropertyChar(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Canonical returns the canonical string form.
func (e Expression) Canonical() string {
	if e.canonical == "" {
		return "$"
	}
	return e.canonical
}

func (e Expression) String() string { return e.Canonical() }

// Segments returns a copy of the segments.
func (e Expression) Segments() []Segment {
	out := make([]Segment, len(e.segments))
	copy(out, e.segments)
	return out
}

// Len returns the number of segments.
func (e Expression) Len() int { return len(e.segments) }

// IsRoot reports whether the expression is "$".
func (e Expression) IsRoot() bool { return len(e.segments) == 0 }

// Equal compares two expressions segment by segment.
func (e Expression) Equal(other Expression) bool {
	if len(e.segments) != len(other.segments) {
		return false
	}
	for i := range e.segments {
		if e.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// Child appends a property segment.
func (e Expression) Child(name string) Expression {
	return e.Append(Prop(name))
}

// Elements appends an array wildcard segment.
func (e Expression) Elements() Expression {
	return e.Append(Wildcard())
}

// Append returns a new expression with segs appended. The receiver is not modified.
func (e Expression) Append(segs ...Segment) Expression {
	all := make([]Segment, 0, len(e.segments)+len(segs))
	all = append(all, e.segments...)
	all = append(all, segs...)
	return build(all)
}

// Parent drops the last segment. The parent of "$" is "$".
func (e Expression) Parent() Expression {
	if len(e.segments) == 0 {
		return e
	}
	return build(e.segments[:len(e.segments)-1])
}

// HasPrefix reports whether prefix's segments are a leading run of e's segments.
func (e Expression) HasPrefix(prefix Expression) bool {
	if len(prefix.segments) > len(e.segments) {
		return false
	}
	for i := range prefix.segments {
		if e.segments[i] != prefix.segments[i] {
			return false
		}
	}
	return true
}

// TrimPrefix returns the segments of e that follow prefix. ok is false when
// prefix is not a prefix of e.
func (e Expression) TrimPrefix(prefix Expression) (rest []Segment, ok bool) {
	if !e.HasPrefix(prefix) {
		return nil, false
	}
	rest = make([]Segment, len(e.segments)-len(prefix.segments))
	copy(rest, e.segments[len(prefix.segments):])
	return rest, true
}

// LastProperty returns the name of the final property segment, if the path
// ends in one.
func (e Expression) LastProperty() (string, bool) {
	if len(e.segments) == 0 {
		return "", false
	}
	last := e.segments[len(e.segments)-1]
	if last.Kind != Property {
		return "", false
	}
	return last.Name, true
}

// HasWildcard reports whether any segment is "[*]".
func (e Expression) HasWildcard() bool {
	for _, s := range e.segments {
		if s.Kind == AnyArrayElement {
			return true
		}
	}
	return false
}

// ArrayScope returns the prefix of e through its last wildcard.
func (e Expression) ArrayScope() (Expression, bool) {
	for i := len(e.segments) - 1; i >= 0; i-- {
		if e.segments[i].Kind == AnyArrayElement {
			return build(e.segments[:i+1]), true
		}
	}
	return Expression{}, false
}

// Compare orders expressions by ordinal comparison of their canonical form.
func Compare(a, b Expression) int {
	return strings.Compare(a.Canonical(), b.Canonical())
}
