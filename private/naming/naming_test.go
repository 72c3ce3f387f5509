package naming

import (
	"fmt"
	"testing"
)

func Example() {
	type strategy interface {
		Convert(string) string
	}
	strategies := []strategy{Snake, Same, Lower}
	names := []string{"snake", "same", "lower"}

	for i, s := range strategies {
		fmt.Printf("\n%s:\n\n", names[i])
		fmt.Println(s.Convert("ownerId"))
		fmt.Println(s.Convert("UserID"))
		fmt.Println(s.Convert("HTMLElement"))
	}

	// Output:
	//
	// snake:
	//
	// owner_id
	// user_id
	// html_element
	//
	// same:
	//
	// ownerId
	// UserID
	// HTMLElement
	//
	// lower:
	//
	// ownerid
	// userid
	// htmlelement
}

func TestSnakeConvert(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"id", "id"},
		{"ownerId", "owner_id"},
		{"OwnerID", "owner_id"},
		{"createdAt", "created_at"},
		{"address2Line", "address2_line"},
		{"line2Address", "line2_address"},
		{"already_snake", "already_snake"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Snake.Convert(tt.name); got != tt.want {
			t.Errorf("%q: got=%q, want=%q", tt.name, got, tt.want)
		}
	}
}

func TestSnakeExport(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"id", "id"},
		{"owner_id", "ownerId"},
		{"created_at", "createdAt"},
		{"_private", "private"},
		{"owner__id", "ownerId"},
	}
	for _, tt := range tests {
		if got := Snake.Export(tt.name); got != tt.want {
			t.Errorf("%q: got=%q, want=%q", tt.name, got, tt.want)
		}
	}
}

func TestSnakeRoundTrip(t *testing.T) {
	for _, name := range []string{"id", "owner_id", "created_at", "line2_address"} {
		if got := Snake.Convert(Snake.Export(name)); got != name {
			t.Errorf("%q: got=%q", name, got)
		}
	}
}
