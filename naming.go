package sqlload

import (
	"strings"

	"github.com/jjeffery/errors"
	"github.com/jjeffery/sqlload/private/naming"
)

// The NamingStrategy interface converts names requested by the
// query layer into the names of columns and relations in the registry.
type NamingStrategy interface {
	// Convert converts an external field name according to the strategy.
	Convert(name string) string
}

// Pre-defined naming strategies. If a naming strategy is not specified
// for a session, it defaults to snake_case.
var (
	SnakeCase NamingStrategy // eg "ownerId" -> "owner_id"
	SameCase  NamingStrategy // eg "ownerId" -> "ownerId"
	LowerCase NamingStrategy // eg "ownerId" -> "ownerid"
)

var (
	// defaultNaming is used for a session if no naming
	// strategy has been specified
	defaultNaming NamingStrategy = naming.Snake
)

func init() {
	SnakeCase = naming.Snake
	SameCase = naming.Same
	LowerCase = naming.Lower
}

// ParseNaming returns the naming strategy with the given name.
// Recognised names are "snake", "same" (or "identity") and "lower".
func ParseNaming(name string) (NamingStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "snake", "snake_case", "":
		return SnakeCase, nil
	case "same", "identity":
		return SameCase, nil
	case "lower", "lowercase":
		return LowerCase, nil
	}
	return nil, errors.New("unknown naming strategy").With("name", name)
}

// ExternalName returns the name that the query layer should use for
// the internal name. If the strategy cannot be reversed, the internal
// name is returned unchanged.
func ExternalName(strategy NamingStrategy, name string) string {
	if exporter, ok := strategy.(interface {
		Export(string) string
	}); ok {
		return exporter.Export(name)
	}
	return name
}
