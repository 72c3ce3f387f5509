package sqlstore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	jerrors "github.com/jjeffery/errors"
	"github.com/jjeffery/sqlload"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"
)

func newMock(t *testing.T, driverName string) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	return sqlx.NewDb(db, driverName), mock
}

func TestPostgresQueries(t *testing.T) {
	db, mock := newMock(t, "postgres")
	defer db.Close()
	reg := testRegistry(t)
	store := New(db, WithMaxKeys(2), WithConcurrency(1))

	mock.ExpectQuery(toRE(`select "id", "name" from "users" where "id" in ($1, $2)`)).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "alice").AddRow(2, []byte("bob")))
	mock.ExpectQuery(toRE(`select "id", "name" from "users" where "id" in ($1)`)).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "carol"))

	res, err := store.FetchByKeys(context.Background(), reg.Kind("User"), []interface{}{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 3, res.Len())
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCompositeKeys(t *testing.T) {
	db, mock := newMock(t, "postgres")
	defer db.Close()
	reg := testRegistry(t)
	store := New(db)

	mock.ExpectQuery(toRE(`select * from "lines" where ("order_id" = $1 and "line_no" = $2) or ("order_id" = $3 and "line_no" = $4)`)).
		WithArgs(1, 2, 2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "line_no", "sku"}).AddRow(1, 2, "B"))

	res, err := store.FetchByKeys(context.Background(), reg.Kind("Line"), []interface{}{
		sqlload.Tuple{1, 2},
		sqlload.Tuple{2, 1},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Len())
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}

	_, err = store.FetchByKeys(context.Background(), reg.Kind("Line"), []interface{}{1})
	assert.Error(t, err)
}

func TestMySQLQuoting(t *testing.T) {
	db, mock := newMock(t, "mysql")
	defer db.Close()
	reg := testRegistry(t)
	store := New(db)

	mock.ExpectQuery(toRE("select * from `posts` where `author_id` in (?) order by `id`")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id"}))

	groups, err := store.FetchByForeignKey(context.Background(), reg.Relation("User", "posts"), []interface{}{7})
	assert.NoError(t, err)
	assert.Equal(t, 0, groups.Len())
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestQueryError(t *testing.T) {
	db, mock := newMock(t, "postgres")
	defer db.Close()
	reg := testRegistry(t)
	cause := errors.New("connection reset")

	mock.ExpectQuery(`select .* from "users"`).WillReturnError(cause)
	mock.ExpectQuery(`select .* from "posts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "title"}).AddRow(10, 1, "first"))

	sess := sqlload.NewSession(context.Background(), New(db), reg)
	userThunk, err := sess.Load("User", 1)
	assert.NoError(t, err)
	_, err = userThunk()

	var aerr *sqlload.AdapterError
	if assert.True(t, errors.As(err, &aerr)) {
		assert.Equal(t, "User", aerr.Batch)
		assert.Equal(t, cause, jerrors.Cause(aerr.Err))
	}

	// a later batch for another kind is unaffected
	postThunk, err := sess.Load("Post", 10)
	assert.NoError(t, err)
	post, err := postThunk()
	assert.NoError(t, err)
	assert.Equal(t, "first", post["title"])
}

func toRE(s string) string {
	var buf bytes.Buffer
	for _, ch := range s {
		switch ch {
		case '?', '(', ')', '\\', '.', '+', '$', '^', '*', '[', ']':
			buf.WriteRune('\\')
		}
		buf.WriteRune(ch)
	}
	return buf.String()
}
