/*
Package sqlstore provides an adapter that loads entities from an SQL
database for a sqlload session.

The store builds simple SELECT statements from the kinds and relations
in the registry:

 select "id", "name" from "users" where "id" in ($1, $2)
 select "id", "author_id", "title" from "posts" where "author_id" in ($1, $2) order by "id"

Composite keys are matched with a list of conditions:

 select * from "lines" where ("order_id" = $1 and "line_no" = $2) or ("order_id" = $3 and "line_no" = $4)

Many-to-many relations join the target table to the junction table, and
select the junction's owner columns under reserved aliases so that the
rows can be grouped by parent. The aliases are removed from the entities.

Large key sets are split into queries of at most 100 keys (see WithMaxKeys),
which are run concurrently.

Column values of type []byte are returned as strings, so that keys and
text columns compare the same way for every driver.
*/
package sqlstore
