package gqlbind

import (
	"context"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/jjeffery/errors"
	"github.com/jjeffery/sqlload"
)

// Config determines how a registry is exposed as a schema.
type Config struct {
	// Naming is the strategy used to name the fields of each object.
	// Column and relation names are exported with sqlload.ExternalName.
	// Defaults to sqlload.SnakeCase, so the column "owner_id" becomes
	// the field "ownerId".
	Naming sqlload.NamingStrategy

	// NoWhere omits the "<kind>Where" root fields, for adapters that
	// do not implement sqlload.FilterAdapter.
	NoWhere bool
}

// ErrNoSession is returned by resolvers when the context does not
// carry a session.
var ErrNoSession = errors.New("no session in context")

// NewSchema returns a GraphQL schema for the registry. Each kind is an
// object type with a field for each of its columns and relations. The
// root query type has, for each kind with the root name "user":
//
//  user(key: Value!): User
//  userList(keys: [Value!]!): [User]
//  userWhere(<column>: Value, ...): [User!]
//
// List fields are nullable, so that a failed batch is reported as an
// error on the field without discarding the rest of the result.
//
// Resolvers load through the session in the context, and return thunks
// so that the fields of one level of the query are fetched in one batch
// per kind.
func NewSchema(reg *sqlload.Registry, config Config) (graphql.Schema, error) {
	if reg == nil {
		return graphql.Schema{}, errors.New("registry cannot be nil")
	}
	b := &builder{
		reg:     reg,
		naming:  config.Naming,
		objects: make(map[string]*graphql.Object),
	}
	if b.naming == nil {
		b.naming = sqlload.SnakeCase
	}

	fields := graphql.Fields{}
	for _, k := range reg.Kinds() {
		obj := b.object(k)
		name := rootName(k.Name)
		fields[name] = b.rootField(k, obj)
		fields[name+"List"] = b.rootListField(k, obj)
		if !config.NoWhere {
			fields[name+"Where"] = b.rootWhereField(k, obj)
		}
	}
	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: fields,
		}),
	})
	if err != nil {
		return graphql.Schema{}, errors.Wrap(err, "cannot build schema")
	}
	return schema, nil
}

// Execute runs a query against the schema, loading through sess.
func Execute(ctx context.Context, schema graphql.Schema, sess *sqlload.Session, query string, variables map[string]interface{}) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  query,
		VariableValues: variables,
		Context:        sqlload.NewContext(ctx, sess),
	})
}

type builder struct {
	reg     *sqlload.Registry
	naming  sqlload.NamingStrategy
	objects map[string]*graphql.Object
}

// object returns the object type for the kind. Fields are built
// lazily, because relations refer to each other's objects.
func (b *builder) object(k *sqlload.Kind) *graphql.Object {
	if obj, ok := b.objects[k.Name]; ok {
		return obj
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: k.Name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, col := range b.columns(k) {
				fields[sqlload.ExternalName(b.naming, col)] = &graphql.Field{
					Type:    Value,
					Resolve: resolveColumn(col),
				}
			}
			for _, rel := range k.Relations() {
				target := b.object(rel.TargetKind())
				var typ graphql.Output = target
				if rel.Cardinality == sqlload.Many {
					// nullable, so a failed batch nulls only this field
					typ = graphql.NewList(graphql.NewNonNull(target))
				}
				fields[sqlload.ExternalName(b.naming, rel.Name)] = &graphql.Field{
					Type:    typ,
					Resolve: resolveRelation(rel),
				}
			}
			return fields
		}),
	})
	b.objects[k.Name] = obj
	return obj
}

// columns returns the columns exposed for a kind. A kind that does not
// list its columns exposes its keys, and the foreign keys of its relations.
func (b *builder) columns(k *sqlload.Kind) []string {
	if len(k.Columns) > 0 {
		return k.Columns
	}
	seen := make(map[string]bool)
	var columns []string
	add := func(cols ...string) {
		for _, col := range cols {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}
	add(k.PrimaryKey...)
	for _, rel := range k.Relations() {
		if rel.Through == nil {
			if rel.ForeignKey.Side == sqlload.OnOwner {
				add(rel.ForeignKey.Columns...)
			} else {
				add(rel.ParentColumns()...)
			}
		}
	}
	for _, other := range b.reg.Kinds() {
		for _, rel := range other.Relations() {
			if rel.Target == k.Name && rel.Through == nil && rel.ForeignKey.Side == sqlload.OnTarget {
				add(rel.ForeignKey.Columns...)
			}
		}
	}
	return columns
}

func (b *builder) rootField(k *sqlload.Kind, obj *graphql.Object) *graphql.Field {
	return &graphql.Field{
		Type: obj,
		Args: graphql.FieldConfigArgument{
			"key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(Value)},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			sess, err := session(p.Context)
			if err != nil {
				return nil, err
			}
			thunk, err := sess.Load(k.Name, p.Args["key"])
			if err != nil {
				return nil, err
			}
			return func() (interface{}, error) {
				e, err := thunk()
				if err != nil || e == nil {
					return nil, err
				}
				return e, nil
			}, nil
		},
	}
}

func (b *builder) rootListField(k *sqlload.Kind, obj *graphql.Object) *graphql.Field {
	return &graphql.Field{
		Type: graphql.NewList(obj),
		Args: graphql.FieldConfigArgument{
			"keys": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(Value))),
			},
		},
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			sess, err := session(p.Context)
			if err != nil {
				return nil, err
			}
			keys, _ := p.Args["keys"].([]interface{})
			thunks := make([]sqlload.Thunk, len(keys))
			for i, key := range keys {
				if thunks[i], err = sess.Load(k.Name, key); err != nil {
					return nil, err
				}
			}
			return func() (interface{}, error) {
				list := make([]interface{}, len(thunks))
				for i, thunk := range thunks {
					e, err := thunk()
					if err != nil {
						return nil, err
					}
					if e != nil {
						list[i] = e
					}
				}
				return list, nil
			}, nil
		},
	}
}

func (b *builder) rootWhereField(k *sqlload.Kind, obj *graphql.Object) *graphql.Field {
	args := graphql.FieldConfigArgument{}
	columns := make(map[string]string)
	for _, col := range b.columns(k) {
		name := sqlload.ExternalName(b.naming, col)
		args[name] = &graphql.ArgumentConfig{Type: Value}
		columns[name] = col
	}
	return &graphql.Field{
		Type: graphql.NewList(graphql.NewNonNull(obj)),
		Args: args,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			sess, err := session(p.Context)
			if err != nil {
				return nil, err
			}
			filter := make(map[string]interface{}, len(p.Args))
			for name, v := range p.Args {
				if col, ok := columns[name]; ok && v != nil {
					filter[col] = v
				}
			}
			thunk, err := sess.LoadWhere(k.Name, filter)
			if err != nil {
				return nil, err
			}
			return func() (interface{}, error) {
				c, err := thunk()
				if err != nil {
					return nil, err
				}
				return c.Entities, nil
			}, nil
		},
	}
}

func resolveColumn(col string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		e, _ := p.Source.(sqlload.Entity)
		return e[col], nil
	}
}

func resolveRelation(rel *sqlload.Relation) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		sess, err := session(p.Context)
		if err != nil {
			return nil, err
		}
		parent, _ := p.Source.(sqlload.Entity)
		thunk, err := sess.ResolveRelation([]sqlload.Entity{parent}, rel.Owner, rel.Name)
		if err != nil {
			return nil, err
		}
		return func() (interface{}, error) {
			res, err := thunk()
			if err != nil {
				return nil, err
			}
			related := res.At(0)
			if rel.Cardinality == sqlload.Many {
				return related.Entities, nil
			}
			if related.Entity == nil {
				return nil, nil
			}
			return related.Entity, nil
		}, nil
	}
}

func session(ctx context.Context) (*sqlload.Session, error) {
	if ctx == nil {
		return nil, ErrNoSession
	}
	sess, ok := sqlload.FromContext(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

// rootName returns the lowerCamelCase name for a kind, eg
// "BlogPost" -> "blogPost".
func rootName(kind string) string {
	return sqlload.ExternalName(sqlload.SnakeCase, sqlload.SnakeCase.Convert(kind))
}

// Value is a scalar that holds any column value. Keys for composite
// primary keys are passed as lists, eg [1, "a"].
var Value = graphql.NewScalar(graphql.ScalarConfig{
	Name:         "Value",
	Description:  "A column value: a string, number, boolean, or list of values for a composite key.",
	Serialize:    serializeValue,
	ParseValue:   func(value interface{}) interface{} { return value },
	ParseLiteral: parseLiteral,
})

func serializeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.Format(time.RFC3339Nano)
	}
	return value
}

func parseLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.IntValue:
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil
		}
		return f
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.ListValue:
		list := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			value := parseLiteral(item)
			if value == nil {
				return nil
			}
			list = append(list, value)
		}
		return list
	}
	return nil
}
