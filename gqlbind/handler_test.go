package gqlbind

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jjeffery/sqlload"
	"github.com/stretchr/testify/assert"
)

func TestHandler(t *testing.T) {
	f := newFixture(t)
	defer f.db.Close()

	var sessions []*sqlload.Session
	h := NewHandler(f.schema, func(r *http.Request) *sqlload.Session {
		sess := sqlload.NewSession(r.Context(), f.adapter, f.reg)
		sessions = append(sessions, sess)
		return sess
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	body, err := json.Marshal(Request{
		Query:     `query($id: Value!) { user(key: $id) { name } }`,
		Variables: map[string]interface{}{"id": 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var result struct {
		Data   json.RawMessage `json:"data"`
		Errors []interface{}   `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, result.Errors)
	assert.JSONEq(t, `{"user": {"name": "bob"}}`, string(result.Data))

	resp2, err := http.Get(srv.URL + "?query=" + url.QueryEscape(`{ post(key: 10) { title } }`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	// one session for each request, closed when the request is done
	if got, want := len(sessions), 2; got != want {
		t.Fatalf("got=%d, want=%d", got, want)
	}
	for _, sess := range sessions {
		_, err := sess.Load("User", 1)
		assert.Equal(t, sqlload.ErrClosed, err)
	}
}

func TestHandlerBadRequest(t *testing.T) {
	f := newFixture(t)
	defer f.db.Close()
	h := NewHandler(f.schema, func(r *http.Request) *sqlload.Session {
		return sqlload.NewSession(r.Context(), f.adapter, f.reg)
	})

	tests := []struct {
		method string
		body   string
		want   int
	}{
		{http.MethodPost, `not json`, http.StatusBadRequest},
		{http.MethodPost, `{"query": ""}`, http.StatusBadRequest},
		{http.MethodPut, `{}`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(tt.method, "/graphql", bytes.NewBufferString(tt.body))
		h.ServeHTTP(w, r)
		if got := w.Code; got != tt.want {
			t.Errorf("%s %q: got=%d, want=%d", tt.method, tt.body, got, tt.want)
		}
	}
}
