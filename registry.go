package sqlload

import (
	"fmt"
	"strings"
)

// Cardinality is the number of target entities related to an owner.
type Cardinality string

// Cardinalities of a relation.
const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Side identifies which end of a relation holds the foreign key.
type Side string

// Foreign key sides.
const (
	// OnOwner means the owner holds a foreign key that references the
	// target's primary key, as in "post belongs to user".
	OnOwner Side = "owner"

	// OnTarget means the target holds a foreign key that references the
	// owner, as in "user has many posts".
	OnTarget Side = "target"
)

// Kind describes a type of entity that can be loaded.
type Kind struct {
	// Name of the kind, eg "User".
	Name string `yaml:"name"`

	// Table is the name of the table (or DynamoDB table) that holds
	// entities of this kind. Defaults to the snake_case kind name.
	Table string `yaml:"table,omitempty"`

	// PrimaryKey lists the primary key columns. Required.
	PrimaryKey []string `yaml:"primary_key"`

	// Columns lists the columns that are loaded. If empty,
	// all columns are loaded.
	Columns []string `yaml:"columns,omitempty"`

	relations []*Relation
}

// Relation returns the relation owned by this kind with the given name, or nil.
func (k *Kind) Relation(name string) *Relation {
	for _, rel := range k.relations {
		if rel.Name == name {
			return rel
		}
	}
	return nil
}

// Relations returns the relations owned by this kind in the order
// they were registered.
func (k *Kind) Relations() []*Relation {
	return append([]*Relation(nil), k.relations...)
}

// HasColumn reports whether col is a column of the kind. If the
// kind does not list its columns, any column is accepted.
func (k *Kind) HasColumn(col string) bool {
	if len(k.Columns) == 0 {
		return true
	}
	for _, c := range k.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// ForeignKey describes the columns that correlate owners and targets.
type ForeignKey struct {
	// Side is the end of the relation that holds the foreign key columns.
	// Ignored for relations with a junction table.
	Side Side `yaml:"side,omitempty"`

	// Columns are the foreign key columns on the Side entity.
	Columns []string `yaml:"columns,omitempty"`

	// References are the columns referenced by the foreign key on the
	// other entity. For OnOwner they must be the target's primary key.
	// For OnTarget, and for junction tables, they are owner columns.
	// Defaults to the primary key of the referenced kind.
	References []string `yaml:"references,omitempty"`
}

// Through describes a junction table for a many-to-many relation.
type Through struct {
	Table string `yaml:"table"`

	// OwnerColumns are junction columns that reference the owner's
	// ForeignKey.References columns.
	OwnerColumns []string `yaml:"owner_columns"`

	// TargetColumns are junction columns that reference the
	// target's primary key.
	TargetColumns []string `yaml:"target_columns"`
}

// Relation describes how to load the target entities related
// to an owner entity.
//
// There are three variants:
//  belongs to:   ForeignKey.Side == OnOwner, Cardinality == One
//  has one/many: ForeignKey.Side == OnTarget
//  many to many: Through != nil
type Relation struct {
	Name        string      `yaml:"name"`
	Owner       string      `yaml:"owner"`
	Target      string      `yaml:"target"`
	Cardinality Cardinality `yaml:"cardinality"`
	ForeignKey  ForeignKey  `yaml:"foreign_key"`
	Through     *Through    `yaml:"through,omitempty"`

	// OrderBy lists target columns used to order the entities in
	// each collection. Adapters that cannot order ignore it.
	OrderBy []string `yaml:"order_by,omitempty"`

	owner  *Kind
	target *Kind
}

// OwnerKind returns the kind that owns the relation.
func (rel *Relation) OwnerKind() *Kind {
	return rel.owner
}

// TargetKind returns the kind of the related entities.
func (rel *Relation) TargetKind() *Kind {
	return rel.target
}

// Scoped reports whether the relation is loaded by parent key, rather
// than by the primary key of the target.
func (rel *Relation) Scoped() bool {
	return rel.Through != nil || rel.ForeignKey.Side == OnTarget
}

// ParentColumns returns the owner columns whose values identify the
// related entities. For belongs-to relations this is the foreign key,
// otherwise it is the referenced owner columns.
func (rel *Relation) ParentColumns() []string {
	if rel.Scoped() {
		return rel.ForeignKey.References
	}
	return rel.ForeignKey.Columns
}

// Registry holds the kinds and relations known to a session.
// It must not be modified once it has been created, and it is
// safe to share between sessions.
type Registry struct {
	kinds []*Kind
	index map[string]*Kind
}

// NewRegistry validates the kinds and relations and returns a registry.
// Missing table names and foreign key references are filled in with
// their defaults. The registry takes ownership of the kinds and relations.
func NewRegistry(kinds []*Kind, relations []*Relation) (*Registry, error) {
	reg := &Registry{
		index: make(map[string]*Kind),
	}
	for _, k := range kinds {
		if err := reg.addKind(k); err != nil {
			return nil, err
		}
	}
	for _, rel := range relations {
		if err := reg.addRelation(rel); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// MustRegistry is like NewRegistry, but panics on error.
func MustRegistry(kinds []*Kind, relations []*Relation) *Registry {
	reg, err := NewRegistry(kinds, relations)
	if err != nil {
		panic(err)
	}
	return reg
}

// Kind returns the kind with the given name, or nil.
func (reg *Registry) Kind(name string) *Kind {
	return reg.index[name]
}

// Kinds returns all kinds in the order they were registered.
func (reg *Registry) Kinds() []*Kind {
	return append([]*Kind(nil), reg.kinds...)
}

// Relation returns the relation for the kind, or nil.
func (reg *Registry) Relation(kind, name string) *Relation {
	k := reg.index[kind]
	if k == nil {
		return nil
	}
	return k.Relation(name)
}

func (reg *Registry) addKind(k *Kind) error {
	if k == nil || k.Name == "" {
		return configError("", "", "kind name is required")
	}
	if strings.ContainsAny(k.Name, batchSeparators) {
		return configError(k.Name, "", "kind name cannot contain any of "+batchSeparators)
	}
	if reg.index[k.Name] != nil {
		return configError(k.Name, "", "duplicate kind")
	}
	if len(k.PrimaryKey) == 0 {
		return configError(k.Name, "", "primary key is required")
	}
	if err := checkColumns(k, k.PrimaryKey); err != nil {
		return configError(k.Name, "", "primary key "+err.Error())
	}
	if k.Table == "" {
		k.Table = SnakeCase.Convert(k.Name)
	}
	k.relations = nil
	reg.kinds = append(reg.kinds, k)
	reg.index[k.Name] = k
	return nil
}

func (reg *Registry) addRelation(rel *Relation) error {
	if rel == nil || rel.Name == "" {
		return configError("", "", "relation name is required")
	}
	if strings.ContainsAny(rel.Name, batchSeparators) {
		return configError(rel.Owner, rel.Name, "relation name cannot contain any of "+batchSeparators)
	}
	owner := reg.index[rel.Owner]
	if owner == nil {
		return configError(rel.Owner, rel.Name, "unknown owner kind")
	}
	target := reg.index[rel.Target]
	if target == nil {
		return configError(rel.Target, rel.Name, "unknown target kind")
	}
	if owner.Relation(rel.Name) != nil {
		return configError(owner.Name, rel.Name, "duplicate relation")
	}
	fail := func(format string, args ...interface{}) error {
		return configError(owner.Name, rel.Name, fmt.Sprintf(format, args...))
	}

	switch rel.Cardinality {
	case One, Many:
	case "":
		rel.Cardinality = One
		if rel.Through != nil || rel.ForeignKey.Side == OnTarget {
			rel.Cardinality = Many
		}
	default:
		return fail("invalid cardinality %q", rel.Cardinality)
	}

	fk := &rel.ForeignKey
	switch {
	case rel.Through != nil:
		if fk.Side != "" || len(fk.Columns) != 0 {
			return fail("junction relation cannot have foreign key columns")
		}
		if rel.Through.Table == "" {
			return fail("junction table name is required")
		}
		if len(fk.References) == 0 {
			fk.References = owner.PrimaryKey
		}
		if err := checkColumns(owner, fk.References); err != nil {
			return fail("references %v", err)
		}
		if len(rel.Through.OwnerColumns) != len(fk.References) {
			return fail("junction owner columns do not match references")
		}
		if len(rel.Through.TargetColumns) != len(target.PrimaryKey) {
			return fail("junction target columns do not match target primary key")
		}
	case fk.Side == OnOwner:
		if rel.Cardinality != One {
			return fail("foreign key on owner requires cardinality %q", One)
		}
		if len(fk.References) == 0 {
			fk.References = target.PrimaryKey
		}
		if !sameColumns(fk.References, target.PrimaryKey) {
			return fail("foreign key on owner must reference the target primary key")
		}
		if len(fk.Columns) != len(fk.References) {
			return fail("foreign key columns do not match references")
		}
		if err := checkColumns(owner, fk.Columns); err != nil {
			return fail("foreign key %v", err)
		}
	case fk.Side == OnTarget:
		if len(fk.References) == 0 {
			fk.References = owner.PrimaryKey
		}
		if len(fk.Columns) != len(fk.References) {
			return fail("foreign key columns do not match references")
		}
		if err := checkColumns(target, fk.Columns); err != nil {
			return fail("foreign key %v", err)
		}
		if err := checkColumns(owner, fk.References); err != nil {
			return fail("references %v", err)
		}
	default:
		return fail("invalid foreign key side %q", fk.Side)
	}
	if err := checkColumns(target, rel.OrderBy); err != nil {
		return fail("order by %v", err)
	}

	rel.owner = owner
	rel.target = target
	owner.relations = append(owner.relations, rel)
	return nil
}

func checkColumns(k *Kind, columns []string) error {
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if col == "" {
			return fmt.Errorf("has an empty column name")
		}
		if seen[col] {
			return fmt.Errorf("has duplicate column %q", col)
		}
		seen[col] = true
		if !k.HasColumn(col) {
			return fmt.Errorf("has unknown column %q", col)
		}
	}
	return nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
