package livediff

import (
	"errors"
	"testing"
)

func TestNewTree(t *testing.T) {
	tests := []struct {
		name     string
		statics  []string
		dynamics []Dynamic
		wantErr  bool
	}{
		{
			name:     "no dynamics",
			statics:  []string{"<p>hello</p>"},
			dynamics: nil,
		},
		{
			name:     "one dynamic",
			statics:  []string{"<p>", "</p>"},
			dynamics: []Dynamic{Scalar("hi")},
		},
		{
			name:     "three dynamics",
			statics:  []string{"a", "b", "c", "d"},
			dynamics: []Dynamic{Scalar("1"), Scalar("2"), Scalar("3")},
		},
		{
			name:     "empty statics",
			statics:  nil,
			dynamics: nil,
			wantErr:  true,
		},
		{
			name:     "too few dynamics",
			statics:  []string{"a", "b", "c"},
			dynamics: []Dynamic{Scalar("1")},
			wantErr:  true,
		},
		{
			name:     "too many dynamics",
			statics:  []string{"a", "b"},
			dynamics: []Dynamic{Scalar("1"), Scalar("2")},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := NewTree(tt.statics, tt.dynamics...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				if !errors.Is(err, ErrArityMismatch) {
					t.Errorf("expected ErrArityMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTree failed: %v", err)
			}
			if tree.Slots() != len(tt.dynamics) {
				t.Errorf("Slots = %d, want %d", tree.Slots(), len(tt.dynamics))
			}
		})
	}
}

func TestTreeImmutability(t *testing.T) {
	statics := []string{"<p>", "</p>"}
	tree := MustTree(statics, Scalar("hi"))

	// Mutating the input slice must not affect the tree.
	statics[0] = "<div>"
	if got := tree.Statics()[0]; got != "<p>" {
		t.Errorf("tree statics changed via input slice: %q", got)
	}

	// Mutating the accessor's return must not affect the tree.
	tree.Statics()[1] = "</div>"
	if got := tree.Statics()[1]; got != "</p>" {
		t.Errorf("tree statics changed via accessor: %q", got)
	}
}

func TestMustTreePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on arity violation")
		}
	}()
	MustTree([]string{"a", "b"})
}

func TestNewComprehension(t *testing.T) {
	tests := []struct {
		name    string
		statics []string
		entries [][]Dynamic
		wantErr bool
	}{
		{
			name:    "empty comprehension",
			statics: []string{"<li>", "</li>"},
			entries: nil,
		},
		{
			name:    "two entries",
			statics: []string{"<li>", "</li>"},
			entries: [][]Dynamic{{Scalar("a")}, {Scalar("b")}},
		},
		{
			name:    "no statics",
			statics: nil,
			wantErr: true,
		},
		{
			name:    "row arity mismatch",
			statics: []string{"<li>", "</li>"},
			entries: [][]Dynamic{{Scalar("a"), Scalar("b")}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewComprehension(tt.statics, tt.entries...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				if !errors.Is(err, ErrArityMismatch) {
					t.Errorf("expected ErrArityMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewComprehension failed: %v", err)
			}
			if c.Len() != len(tt.entries) {
				t.Errorf("Len = %d, want %d", c.Len(), len(tt.entries))
			}
		})
	}
}

func TestComprehensionEntryCopies(t *testing.T) {
	c := MustComprehension([]string{"<li>", "</li>"}, []Dynamic{Scalar("a")})

	row := c.Entry(0)
	row[0] = Scalar("mutated")

	if got := c.Entry(0)[0]; got != Scalar("a") {
		t.Errorf("comprehension entry changed via accessor: %v", got)
	}
}
