package sqlstore

import (
	"fmt"
	"strings"

	"github.com/jjeffery/sqlload"
	"github.com/jjeffery/sqlload/private/keycodec"
)

// keyMatcher maps the key of a returned row back to the requested keys
// that it satisfies. The database converts a key to the column type
// before comparing, so the string "1" finds the row with the integer
// key 1. Rows are matched on the canonical encoding of the key, and
// then on the text of each key value.
type keyMatcher struct {
	exact map[string][]interface{}
	text  map[string][]interface{}
}

func newKeyMatcher(keys []interface{}) *keyMatcher {
	m := &keyMatcher{
		exact: make(map[string][]interface{}, len(keys)),
		text:  make(map[string][]interface{}, len(keys)),
	}
	for _, key := range keys {
		if enc, err := keycodec.Encode(key); err == nil {
			m.exact[enc] = append(m.exact[enc], key)
		}
		text := textKey(key)
		m.text[text] = append(m.text[text], key)
	}
	return m
}

// match returns the requested keys satisfied by the row key. Each
// requested key is returned once.
func (m *keyMatcher) match(rowKey interface{}) []interface{} {
	var keys []interface{}
	seen := make(map[string]bool)
	add := func(candidates []interface{}) {
		for _, key := range candidates {
			enc, err := keycodec.Encode(key)
			if err != nil || seen[enc] {
				continue
			}
			seen[enc] = true
			keys = append(keys, key)
		}
	}
	if enc, err := keycodec.Encode(rowKey); err == nil {
		add(m.exact[enc])
	}
	add(m.text[textKey(rowKey)])
	return keys
}

// putResults adds each entity to results under every requested key
// that its primary key satisfies.
func (m *keyMatcher) putResults(results *sqlload.Results, kind *sqlload.Kind, entities []sqlload.Entity) error {
	for _, e := range entities {
		rowKey, ok := e.Key(kind.PrimaryKey)
		if !ok {
			continue
		}
		keys := m.match(rowKey)
		if len(keys) == 0 {
			keys = []interface{}{rowKey}
		}
		for _, key := range keys {
			if err := results.Put(key, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// addGroups adds each entity to the group of every requested key
// that the values of its columns satisfy.
func (m *keyMatcher) addGroups(groups *sqlload.Groups, columns []string, entities []sqlload.Entity) error {
	for _, e := range entities {
		rowKey, ok := e.Key(columns)
		if !ok {
			continue
		}
		if err := m.addGroup(groups, rowKey, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *keyMatcher) addGroup(groups *sqlload.Groups, rowKey interface{}, e sqlload.Entity) error {
	keys := m.match(rowKey)
	if len(keys) == 0 {
		keys = []interface{}{rowKey}
	}
	for _, key := range keys {
		if err := groups.AddTo(key, e); err != nil {
			return err
		}
	}
	return nil
}

// textKey returns the text form of a key, with the values of a
// composite key separated by NUL.
func textKey(key interface{}) string {
	var values []interface{}
	switch k := key.(type) {
	case sqlload.Tuple:
		values = k
	case []interface{}:
		values = k
	default:
		values = []interface{}{key}
	}
	parts := make([]string, len(values))
	for i, v := range values {
		switch v := v.(type) {
		case []byte:
			parts[i] = string(v)
		case fmt.Stringer:
			parts[i] = v.String()
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, "\x00")
}
