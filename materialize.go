package sqlload

import (
	"sort"
)

// Include names the relations to load for an entity. Each relation
// maps to the Include for its target entities, which may be nil.
type Include map[string]Include

// Node is a materialized entity, with the related entities
// named by an Include.
type Node struct {
	Kind    *Kind
	Entity  Entity
	Related map[string][]*Node
}

// Materialize loads the entities of kind with the keys, and then the
// relations named by include, to any depth. The result has one node for
// each key, which is nil if the entity was not found.
//
// Relations are loaded one depth at a time: every relation at a depth
// is requested before any of them is fetched, so all of the requests of
// the same kind at that depth are fetched in one batch. Materialize
// returns the first error encountered.
func (sess *Session) Materialize(kind string, keys []interface{}, include Include) ([]*Node, error) {
	if sess.isClosed() {
		return nil, ErrClosed
	}
	k, err := sess.kind(kind)
	if err != nil {
		return nil, err
	}
	thunks := make([]Thunk, len(keys))
	for i, key := range keys {
		if thunks[i], err = sess.load(k, key); err != nil {
			return nil, err
		}
	}
	nodes := make([]*Node, len(keys))
	var found []*Node
	for i, thunk := range thunks {
		e, err := thunk()
		if err != nil {
			return nil, err
		}
		if e != nil {
			nodes[i] = &Node{Kind: k, Entity: e}
			found = append(found, nodes[i])
		}
	}

	type level struct {
		kind    *Kind
		nodes   []*Node
		include Include
	}
	type step struct {
		parents []*Node
		name    string
		rel     *Relation
		include Include
		thunk   RelationThunk
	}

	current := []level{{kind: k, nodes: found, include: include}}
	for len(current) > 0 {
		var steps []step
		for _, lv := range current {
			if len(lv.nodes) == 0 {
				continue
			}
			parents := make([]Entity, len(lv.nodes))
			for i, n := range lv.nodes {
				parents[i] = n.Entity
			}
			for _, name := range includeNames(lv.include) {
				rel, err := sess.relation(lv.kind.Name, name)
				if err != nil {
					return nil, err
				}
				thunk, err := sess.resolveRelation(rel, parents)
				if err != nil {
					return nil, err
				}
				steps = append(steps, step{
					parents: lv.nodes,
					name:    name,
					rel:     rel,
					include: lv.include[name],
					thunk:   thunk,
				})
			}
		}

		var next []level
		for _, st := range steps {
			res, err := st.thunk()
			if err != nil {
				return nil, err
			}
			var children []*Node
			for i, parent := range st.parents {
				related := res.At(i)
				kids := make([]*Node, 0, len(related.Entities))
				for _, e := range related.Entities {
					kids = append(kids, &Node{Kind: st.rel.TargetKind(), Entity: e})
				}
				if parent.Related == nil {
					parent.Related = make(map[string][]*Node)
				}
				parent.Related[st.name] = kids
				children = append(children, kids...)
			}
			next = append(next, level{kind: st.rel.TargetKind(), nodes: children, include: st.include})
		}
		current = next
	}
	return nodes, nil
}

func includeNames(include Include) []string {
	names := make([]string, 0, len(include))
	for name := range include {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
