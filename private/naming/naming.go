// Package naming provides strategies for converting the field names
// requested by a query layer into column and relation names used by
// the store.
package naming

import (
	"strings"
	"unicode"
)

// Instances of the different strategies
var (
	Snake SnakeStrategy
	Lower LowerStrategy
	Same  SameStrategy
)

// SnakeStrategy converts camelCase and PascalCase names into "snake_case".
// So the field name "ownerId" would be converted to "owner_id", and
// "UserID" to "user_id".
type SnakeStrategy struct{}

// Convert converts name into snake_case.
func (SnakeStrategy) Convert(name string) string {
	runes := []rune(name)
	n := len(runes)
	var sb strings.Builder
	sb.Grow(n + 4)

	for i := 0; i < n; i++ {
		r := runes[i]
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < n && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				sb.WriteRune('_')
			}
		}
		sb.WriteRune(unicode.ToLower(r))
	}

	return sb.String()
}

// Export converts a snake_case name into lowerCamelCase, which is
// the inverse of Convert for names that contain no acronyms.
func (SnakeStrategy) Export(name string) string {
	parts := strings.Split(name, "_")
	var sb strings.Builder
	sb.Grow(len(name))
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 || sb.Len() == 0 {
			sb.WriteString(part)
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		sb.WriteString(string(runes))
	}
	return sb.String()
}

// LowerStrategy converts names to lower case.
type LowerStrategy struct{}

// Convert converts the name to lower case.
func (LowerStrategy) Convert(name string) string {
	return strings.ToLower(name)
}

// SameStrategy does not alter names.
type SameStrategy struct{}

// Convert returns name unchanged.
func (SameStrategy) Convert(name string) string {
	return name
}

// Export returns name unchanged.
func (SameStrategy) Export(name string) string {
	return name
}
