package sqlstore

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/jjeffery/sqlload"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func createDatabase(t *testing.T) *sqlx.DB {
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// each connection to :memory: is a new database
	db.SetMaxOpenConns(1)

	for _, cmd := range create {
		if _, err := db.Exec(cmd); err != nil {
			t.Fatalf("SQL failed: %v\n%s", err, cmd)
		}
	}
	return db
}

var create = []string{
	`create table users(id integer primary key, name text)`,
	`create table posts(id integer primary key, author_id integer, title text)`,
	`create table tags(id integer primary key, label text)`,
	`create table post_tags(post_id integer, tag_id integer)`,
	`create table lines(order_id integer, line_no integer, sku text, primary key(order_id, line_no))`,
	`insert into users(id, name) values(1, 'alice'), (2, 'bob'), (3, 'carol')`,
	`insert into posts(id, author_id, title) values(10, 1, 'first'), (11, 1, 'second'), (12, 2, 'third')`,
	`insert into tags(id, label) values(100, 'go'), (101, 'sql')`,
	`insert into post_tags(post_id, tag_id) values(10, 100), (10, 101), (12, 101)`,
	`insert into lines(order_id, line_no, sku) values(1, 1, 'A'), (1, 2, 'B'), (2, 1, 'C')`,
}

const registryYAML = `
kinds:
  - name: User
    table: users
    primary_key: [id]
    columns: [id, name]
  - name: Post
    table: posts
    primary_key: [id]
  - name: Tag
    table: tags
    primary_key: [id]
  - name: Line
    table: lines
    primary_key: [order_id, line_no]
relations:
  - name: posts
    owner: User
    target: Post
    foreign_key:
      side: target
      columns: [author_id]
    order_by: [id]
  - name: author
    owner: Post
    target: User
    foreign_key:
      side: owner
      columns: [author_id]
  - name: tags
    owner: Post
    target: Tag
    through:
      table: post_tags
      owner_columns: [post_id]
      target_columns: [tag_id]
    order_by: [label]
`

func testRegistry(t *testing.T) *sqlload.Registry {
	reg, err := sqlload.ParseRegistry([]byte(registryYAML))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

type sqlLog struct {
	mu      sync.Mutex
	queries []string
}

func (l *sqlLog) LogSQL(query string, args []interface{}, rowsAffected int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, query)
}

func TestFetchByKeys(t *testing.T) {
	db := createDatabase(t)
	defer db.Close()
	reg := testRegistry(t)
	store := New(db)

	res, err := store.FetchByKeys(context.Background(), reg.Kind("User"), []interface{}{1, 3, 42})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, res.Len())

	res, err = store.FetchByKeys(context.Background(), reg.Kind("Line"), []interface{}{
		sqlload.Tuple{1, 2},
		sqlload.Tuple{2, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, res.Len())
}

func TestSession(t *testing.T) {
	db := createDatabase(t)
	defer db.Close()
	log := &sqlLog{}
	sess := sqlload.NewSession(context.Background(), New(db, WithSQLLogger(log)), testRegistry(t))

	u1, err := sess.Load("User", 1)
	assert.NoError(t, err)
	u2, err := sess.Load("User", 2)
	assert.NoError(t, err)
	u42, err := sess.Load("User", 42)
	assert.NoError(t, err)

	alice, err := u1()
	assert.NoError(t, err)
	bob, err := u2()
	assert.NoError(t, err)
	nobody, err := u42()
	assert.NoError(t, err)

	assert.Equal(t, sqlload.Entity{"id": int64(1), "name": "alice"}, alice)
	assert.Equal(t, "bob", bob["name"])
	assert.Nil(t, nobody)
	assert.Equal(t, []string{"select `id`, `name` from `users` where `id` in (?, ?, ?)"}, log.queries)

	line, err := sess.Load("Line", sqlload.Tuple{1, 2})
	assert.NoError(t, err)
	e, err := line()
	assert.NoError(t, err)
	assert.Equal(t, "B", e["sku"])
}

func TestRelations(t *testing.T) {
	db := createDatabase(t)
	defer db.Close()
	log := &sqlLog{}
	sess := sqlload.NewSession(context.Background(), New(db, WithSQLLogger(log)), testRegistry(t))

	users := []sqlload.Entity{
		{"id": int64(1)},
		{"id": int64(2)},
		{"id": int64(3)},
	}
	thunk, err := sess.ResolveRelation(users, "User", "posts")
	assert.NoError(t, err)
	posts, err := thunk()
	assert.NoError(t, err)

	titles := func(entities []sqlload.Entity, col string) []interface{} {
		list := []interface{}{}
		for _, e := range entities {
			list = append(list, e[col])
		}
		return list
	}
	assert.Equal(t, []interface{}{"first", "second"}, titles(posts.At(0).Entities, "title"))
	assert.Equal(t, []interface{}{"third"}, titles(posts.At(1).Entities, "title"))
	assert.Equal(t, []interface{}{}, titles(posts.At(2).Entities, "title"))

	var allPosts []sqlload.Entity
	for i := 0; i < posts.Len(); i++ {
		allPosts = append(allPosts, posts.At(i).Entities...)
	}
	tagThunk, err := sess.ResolveRelation(allPosts, "Post", "tags")
	assert.NoError(t, err)
	authorThunk, err := sess.ResolveRelation(allPosts, "Post", "author")
	assert.NoError(t, err)

	tags, err := tagThunk()
	assert.NoError(t, err)
	authors, err := authorThunk()
	assert.NoError(t, err)

	assert.Equal(t, []interface{}{"go", "sql"}, titles(tags.At(0).Entities, "label"))
	assert.Equal(t, []interface{}{}, titles(tags.At(1).Entities, "label"))
	assert.Equal(t, []interface{}{"sql"}, titles(tags.At(2).Entities, "label"))
	for i := 0; i < tags.Len(); i++ {
		for _, tag := range tags.At(i).Entities {
			assert.NotContains(t, tag, ownerAlias+"0")
		}
	}
	assert.Equal(t, "alice", authors.At(0).Entity["name"])
	assert.Equal(t, "bob", authors.At(2).Entity["name"])

	if assert.Len(t, log.queries, 3) {
		assert.Equal(t, "select * from `posts` where `author_id` in (?, ?, ?) order by `id`", log.queries[0])
		later := log.queries[1:]
		sort.Strings(later)
		assert.Equal(t, []string{
			"select `id`, `name` from `users` where `id` in (?, ?)",
			"select `t`.*, `j`.`post_id` as `sqlload_owner_0` from `tags` t inner join `post_tags` j on `t`.`id` = `j`.`tag_id` where `j`.`post_id` in (?, ?, ?) order by `t`.`label`",
		}, later)
	}
}

func TestLoadWhere(t *testing.T) {
	db := createDatabase(t)
	defer db.Close()
	sess := sqlload.NewSession(context.Background(), New(db), testRegistry(t))

	t1, err := sess.LoadWhere("Post", map[string]interface{}{"authorId": 1})
	assert.NoError(t, err)
	t2, err := sess.LoadWhere("Line", map[string]interface{}{"orderId": 1, "sku": "A"})
	assert.NoError(t, err)

	c1, err := t1()
	assert.NoError(t, err)
	c2, err := t2()
	assert.NoError(t, err)
	assert.Len(t, c1.Entities, 2)
	if assert.Len(t, c2.Entities, 1) {
		assert.Equal(t, int64(1), c2.Entities[0]["line_no"])
	}
}

func TestCoercedKeys(t *testing.T) {
	db := createDatabase(t)
	defer db.Close()
	log := &sqlLog{}
	sess := sqlload.NewSession(context.Background(), New(db, WithSQLLogger(log)), testRegistry(t))

	// the database converts "1" to the integer column type
	t1, err := sess.Load("User", "1")
	assert.NoError(t, err)
	t2, err := sess.Load("User", 1)
	assert.NoError(t, err)
	t3, err := sess.Load("Line", sqlload.Tuple{"1", 2})
	assert.NoError(t, err)
	posts, err := sess.LoadMany("User", "posts", "2")
	assert.NoError(t, err)
	where, err := sess.LoadWhere("Post", map[string]interface{}{"authorId": "1"})
	assert.NoError(t, err)

	u1, err := t1()
	assert.NoError(t, err)
	u2, err := t2()
	assert.NoError(t, err)
	line, err := t3()
	assert.NoError(t, err)
	if assert.NotNil(t, u1) {
		assert.Equal(t, "alice", u1["name"])
	}
	if assert.NotNil(t, u2) {
		assert.Equal(t, "alice", u2["name"])
	}
	if assert.NotNil(t, line) {
		assert.Equal(t, "B", line["sku"])
	}

	c, err := posts()
	assert.NoError(t, err)
	if assert.Len(t, c.Entities, 1) {
		assert.Equal(t, "third", c.Entities[0]["title"])
	}
	c, err = where()
	assert.NoError(t, err)
	assert.Len(t, c.Entities, 2)
}
