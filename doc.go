/*
Package sqlload coordinates the loading of entities for a single
request, such as a GraphQL query. It collects the point lookups made
while a query is resolved into batches, fetches each batch with a single
call to a store, removes duplicate lookups, and caches what it loads
for the lifetime of the request. This avoids the "N+1 queries" problem
that arises when a hierarchical query is resolved one field at a time.

This package does not generate SQL itself. Stores are accessed through
the Adapter interface, which fetches entities by a set of primary keys,
or by a set of parent keys for a relation. Package sqlstore provides an
adapter for SQL databases, and package dynamostore provides one for
DynamoDB.

Registry

A Registry describes the kinds of entity that can be loaded, and the
relations between them. A registry can be built in code:

 reg, err := sqlload.NewRegistry(
	 []*sqlload.Kind{
		 {Name: "User", Table: "users", PrimaryKey: []string{"id"}},
		 {Name: "Post", Table: "posts", PrimaryKey: []string{"id"}},
	 },
	 []*sqlload.Relation{
		 {
			 Name:   "posts",
			 Owner:  "User",
			 Target: "Post",
			 ForeignKey: sqlload.ForeignKey{
				 Side:    sqlload.OnTarget,
				 Columns: []string{"owner_id"},
			 },
		 },
	 },
 )

or read from YAML with ParseRegistry. Registries are validated when
they are created, and are read-only after that.

Sessions

A Session is created for each request:

 sess := sqlload.NewSession(ctx, adapter, reg)
 defer sess.Close()

Loading returns a thunk, which is a function that returns the
entity when called:

 thunk1, err := sess.Load("User", 1)
 thunk2, err := sess.Load("User", 2)

 // one call to the adapter, for keys 1 and 2
 user1, err := thunk1()

Requests are collected into an open batch until a thunk is called,
or until Flush is called. All open batches are fetched at that point.
Query executors that resolve a query breadth-first, and return thunks
from their resolvers, get one batch per kind per depth of the query.
For hosts that issue requests from many goroutines, the WithWait option
dispatches each batch after a fixed period instead.

Entities that are not found are not errors: Load returns a nil entity,
and LoadMany returns an empty collection. If the adapter fails, every
request in the batch receives an *AdapterError, and nothing is cached,
so a later request for the same entity tries again. Requests for
unknown kinds and relations fail immediately with a *ConfigurationError.

Relations

ResolveRelation loads the related entities for a set of parents:

 thunk, err := sess.ResolveRelation(users, "User", "posts")
 res, err := thunk()
 for i := range users {
	 posts := res.At(i).Entities
 }

Materialize loads entities and an include tree of relations to any
depth, one batch per kind at each depth.

Naming

Names requested by the query layer, such as "ownerId", are converted to
the names used in the registry with a NamingStrategy. The default strategy
is SnakeCase, which converts "ownerId" to "owner_id".
*/
package sqlload
