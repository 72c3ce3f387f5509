package sqlload

// Entity is a single loaded row. Values are keyed by column name.
type Entity map[string]interface{}

// Key returns the values of the columns as a key. If there is one column
// the key is its value, otherwise it is a Tuple. The boolean result is
// false if any of the values is missing or nil.
func (e Entity) Key(columns []string) (interface{}, bool) {
	if len(columns) == 0 || e == nil {
		return nil, false
	}
	if len(columns) == 1 {
		v := e[columns[0]]
		return v, v != nil
	}
	key := make(Tuple, len(columns))
	for i, col := range columns {
		v := e[col]
		if v == nil {
			return nil, false
		}
		key[i] = v
	}
	return key, true
}

// Collection is the result of loading the entities related to
// one parent, or matching one filter.
type Collection struct {
	// Entities is never nil for a successful load. It is empty if
	// nothing matched.
	Entities []Entity

	// Missing is true if the adapter reported that the parent
	// itself does not exist, as opposed to existing but having
	// no related entities.
	Missing bool
}

// First returns the first entity in the collection, or nil.
func (c Collection) First() Entity {
	if len(c.Entities) == 0 {
		return nil
	}
	return c.Entities[0]
}
