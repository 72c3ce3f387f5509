package sqlload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNaming(t *testing.T) {
	tests := []struct {
		name string
		want NamingStrategy
	}{
		{"snake", SnakeCase},
		{"", SnakeCase},
		{"Same", SameCase},
		{"identity", SameCase},
		{" lower ", LowerCase},
	}
	for _, tt := range tests {
		got, err := ParseNaming(tt.name)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got=%T, want=%T", tt.name, got, tt.want)
		}
	}

	_, err := ParseNaming("kebab")
	assert.Error(t, err)
}

func TestExternalName(t *testing.T) {
	tests := []struct {
		strategy NamingStrategy
		name     string
		want     string
	}{
		{SnakeCase, "owner_id", "ownerId"},
		{SnakeCase, "id", "id"},
		{SameCase, "owner_id", "owner_id"},
		{LowerCase, "ownerid", "ownerid"},
	}
	for _, tt := range tests {
		if got := ExternalName(tt.strategy, tt.name); got != tt.want {
			t.Errorf("%q: got=%q, want=%q", tt.name, got, tt.want)
		}
		if got := tt.strategy.Convert(ExternalName(tt.strategy, tt.name)); got != tt.name {
			t.Errorf("%q: round trip got=%q", tt.name, got)
		}
	}
}
