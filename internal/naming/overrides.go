package naming

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrOverrideMissingSuffix is returned when a collection override is only
// an implied prefix and names nothing of its own.
var ErrOverrideMissingSuffix = errors.New("relmodel/naming: collection override must extend its implied prefix")

// CollectionOverridePrefixes lists the prefixes a collection override may
// repeat. Authors often write the full table name ("SchoolAddressPeriod")
// where only the collection segment ("Period") is meant.
func CollectionOverridePrefixes(rootBase, parentSuffix string, additionalRoots ...string) []string {
	var out []string
	add := func(v string) {
		if strings.TrimSpace(v) != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	add(rootBase + parentSuffix)
	add(rootBase)
	add(parentSuffix)
	for _, r := range additionalRoots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		add(r + parentSuffix)
		add(r)
	}
	return out
}

// ResolveCollectionOverride strips the longest implied prefix, or any
// PascalCase suffix of one, from an override value. The longest candidate
// wins. An override equal to a candidate is rejected.
func ResolveCollectionOverride(override string, prefixes []string) (string, error) {
	var candidates []string
	for _, p := range prefixes {
		for _, s := range pascalSuffixes(p) {
			if !slices.Contains(candidates, s) {
				candidates = append(candidates, s)
			}
		}
	}
	slices.SortFunc(candidates, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})

	for _, s := range candidates {
		if !strings.HasPrefix(override, s) {
			continue
		}
		rest := override[len(s):]
		if strings.TrimSpace(rest) == "" {
			return "", fmt.Errorf("%w '%s'", ErrOverrideMissingSuffix, s)
		}
		return rest, nil
	}
	return override, nil
}

// pascalSuffixes returns value and every suffix that starts at a word
// boundary: "SchoolAddress" gives "SchoolAddress" and "Address".
func pascalSuffixes(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	runes := []rune(value)
	bounds := []int{0}
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if unicode.IsLower(runes[i-1]) || nextLower {
			bounds = append(bounds, i)
		}
	}
	out := make([]string, 0, len(bounds))
	for _, b := range bounds {
		s := string(runes[b:])
		if utf8.RuneCountInString(strings.TrimSpace(s)) > 0 {
			out = append(out, s)
		}
	}
	return out
}
