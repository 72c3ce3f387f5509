package sqlstore

import (
	"testing"

	"github.com/jjeffery/sqlload"
	"github.com/stretchr/testify/assert"
)

func TestKeyMatcher(t *testing.T) {
	m := newKeyMatcher([]interface{}{
		"1",
		int64(1),
		2,
		sqlload.Tuple{"7", "a"},
		[]byte("x"),
	})

	tests := []struct {
		rowKey interface{}
		want   []interface{}
	}{
		{int64(1), []interface{}{int64(1), "1"}},
		{int64(2), []interface{}{2}},
		{sqlload.Tuple{int64(7), "a"}, []interface{}{sqlload.Tuple{"7", "a"}}},
		{"x", []interface{}{[]byte("x")}},
		{int64(3), nil},
	}
	for _, tt := range tests {
		got := m.match(tt.rowKey)
		assert.Equal(t, tt.want, got, "row key %v", tt.rowKey)
	}
}
