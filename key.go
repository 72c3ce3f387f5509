package sqlload

import (
	"fmt"
	"strings"

	"github.com/jjeffery/sqlload/private/keycodec"
)

// Tuple is an ordered list of values that together make up a composite key.
// A Tuple with one element identifies the same thing as its only element.
type Tuple []interface{}

// Fingerprint identifies a load request. Two requests with equal
// fingerprints are the same request, and are loaded only once in
// a session.
//
// A point load has Kind and Key. A relation load also has the Relation
// name, and Key is the parent key. A load by filter has the Filter, which
// is the comma-separated list of filtered columns in sorted order, and Key
// is the list of column values.
type Fingerprint struct {
	Kind     string
	Relation string
	Filter   string
	Key      string
}

// batchSeparators are the characters that separate the parts of a
// batch class name. They are not allowed in kind or relation names.
const batchSeparators = "/?#"

// Batch returns the name of the batch class for the fingerprint. All
// requests in the same class are loaded together.
func (fp Fingerprint) Batch() string {
	switch {
	case fp.Relation != "":
		return fp.Kind + "/" + fp.Relation
	case fp.Filter != "":
		return fp.Kind + "?" + fp.Filter
	}
	return fp.Kind
}

func (fp Fingerprint) String() string {
	return fp.Batch() + "#" + fp.Key
}

// normalizeKey checks that key has one value for each column, and returns
// it as either a single value or a Tuple.
func normalizeKey(columns []string, key interface{}) (interface{}, error) {
	var values []interface{}
	switch k := key.(type) {
	case Tuple:
		values = k
	case []interface{}:
		values = k
	default:
		if len(columns) != 1 {
			return nil, fmt.Errorf("want %d key values for (%s), got 1", len(columns), strings.Join(columns, ","))
		}
		return key, nil
	}
	if len(values) != len(columns) {
		return nil, fmt.Errorf("want %d key values for (%s), got %d", len(columns), strings.Join(columns, ","), len(values))
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return Tuple(values), nil
}

// encodeKey normalizes and encodes key.
func encodeKey(columns []string, key interface{}) (interface{}, string, error) {
	nk, err := normalizeKey(columns, key)
	if err != nil {
		return nil, "", err
	}
	enc, err := keycodec.Encode(nk)
	if err != nil {
		return nil, "", err
	}
	return nk, enc, nil
}
