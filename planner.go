package sqlload

import (
	"github.com/jjeffery/sqlload/private/keycodec"
)

// Related holds the entities related to one parent.
type Related struct {
	// Entity is the related entity for a relation with cardinality One,
	// or nil if there is none.
	Entity Entity

	// Entities holds the related entities. It is never nil, and for
	// cardinality One it has at most one element.
	Entities []Entity

	// Missing is true if the parent refers to something that does not
	// exist: for a belongs-to relation the target was not found, and for
	// other relations the adapter reported that the parent does not exist.
	// A parent with a null foreign key is not missing, it just has nothing
	// related.
	Missing bool

	// Err is the error from loading the related entities.
	Err error
}

// Resolution holds the related entities for each parent passed
// to ResolveRelation.
type Resolution struct {
	Relation *Relation

	related []Related
	index   map[string]int
}

// Len returns the number of parents.
func (res *Resolution) Len() int {
	return len(res.related)
}

// At returns the related entities for the i'th parent.
func (res *Resolution) At(i int) Related {
	return res.related[i]
}

// For returns the related entities for the parent with the primary key.
func (res *Resolution) For(parentKey interface{}) (Related, bool) {
	enc, err := keycodec.Encode(parentKey)
	if err != nil {
		return Related{}, false
	}
	i, ok := res.index[enc]
	if !ok {
		return Related{}, false
	}
	return res.related[i], true
}

// Err returns the first error for any parent, or nil.
func (res *Resolution) Err() error {
	for _, r := range res.related {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// RelationThunk returns the resolved relation. The Resolution is
// returned even when there is an error, so that the results for
// parents that were loaded successfully can be used.
type RelationThunk func() (*Resolution, error)

// ResolveRelation returns a thunk for the entities related to each of
// the parents by the named relation of kind. The relation name is looked
// up as given, and then converted with the session's naming strategy.
//
// For a relation where the parent holds the foreign key, the targets are
// loaded by primary key, so they share a batch with every other Load of
// the target kind. Other relations are loaded by parent key. In either
// case a parent with a null key has nothing related, and is not an error.
func (sess *Session) ResolveRelation(parents []Entity, kind, relation string) (RelationThunk, error) {
	if sess.isClosed() {
		return nil, ErrClosed
	}
	rel, err := sess.relation(kind, relation)
	if err != nil {
		return nil, err
	}
	return sess.resolveRelation(rel, parents)
}

type relationSlot struct {
	one  Thunk
	many CollectionThunk
}

func (sess *Session) resolveRelation(rel *Relation, parents []Entity) (RelationThunk, error) {
	columns := rel.ParentColumns()
	slots := make([]relationSlot, len(parents))
	index := make(map[string]int, len(parents))
	for i, parent := range parents {
		if pk, ok := parent.Key(rel.OwnerKind().PrimaryKey); ok {
			if enc, err := keycodec.Encode(pk); err == nil {
				if _, dup := index[enc]; !dup {
					index[enc] = i
				}
			}
		}
		key, ok := parent.Key(columns)
		if !ok {
			continue
		}
		if _, err := keycodec.Encode(key); err != nil {
			// a key that cannot be encoded refers to nothing
			continue
		}
		var err error
		if rel.Scoped() {
			slots[i].many, err = sess.loadMany(rel, key)
		} else {
			slots[i].one, err = sess.load(rel.TargetKind(), key)
		}
		if err != nil {
			return nil, err
		}
	}

	return func() (*Resolution, error) {
		res := &Resolution{
			Relation: rel,
			related:  make([]Related, len(slots)),
			index:    index,
		}
		for i, slot := range slots {
			r := Related{Entities: []Entity{}}
			switch {
			case slot.one != nil:
				e, err := slot.one()
				if err != nil {
					r.Err = err
				} else if e == nil {
					r.Missing = true
				} else {
					r.Entity = e
					r.Entities = []Entity{e}
				}
			case slot.many != nil:
				c, err := slot.many()
				if err != nil {
					r.Err = err
					break
				}
				r.Missing = c.Missing
				r.Entities = c.Entities
				if rel.Cardinality == One && len(c.Entities) > 0 {
					r.Entity = c.Entities[0]
					r.Entities = c.Entities[:1]
				}
			}
			res.related[i] = r
		}
		return res, res.Err()
	}, nil
}
