package livediff

import (
	"errors"
	"fmt"
)

var (
	// ErrArityMismatch is returned when statics and dynamics disagree in
	// length at construction time. This always indicates a bug in the
	// template-compilation layer, never bad user data.
	ErrArityMismatch = errors.New("livediff: statics/dynamics arity mismatch")

	// ErrStructuralMismatch is returned when two trees that should share a
	// template site turn out to have different statics. Diffing across
	// template sites is a framework bug upstream.
	ErrStructuralMismatch = errors.New("livediff: statics differ between renders")
)

// Dynamic is the value of a single dynamic slot in a rendered tree. It is a
// closed union: the only implementations are Scalar, *Tree, and
// *Comprehension. Diff, Merge, and Flatten switch exhaustively over these
// three kinds.
type Dynamic interface {
	isDynamic()
}

// Scalar is a plain text value occupying a dynamic slot.
type Scalar string

func (Scalar) isDynamic() {}

// Tree is one server render: ordered static fragments interleaved with
// dynamic values. Invariant: len(statics) == len(dynamics)+1, and
// concatenating statics[0], dynamics[0], statics[1], ..., statics[n] yields
// the flattened output. Statics never change shape across renders of the
// same template instantiation; only dynamics vary.
//
// A Tree is immutable after construction. Every render produces a new value;
// Merge shares unchanged slots structurally with the previous tree.
type Tree struct {
	statics  []string
	dynamics []Dynamic
}

func (*Tree) isDynamic() {}

// NewTree constructs a rendered tree from its static fragments and dynamic
// slot values. It fails fast with ErrArityMismatch when
// len(dynamics) != len(statics)-1.
func NewTree(statics []string, dynamics ...Dynamic) (*Tree, error) {
	if len(statics) == 0 || len(dynamics) != len(statics)-1 {
		return nil, fmt.Errorf("%w: %d statics, %d dynamics", ErrArityMismatch, len(statics), len(dynamics))
	}
	t := &Tree{
		statics:  make([]string, len(statics)),
		dynamics: make([]Dynamic, len(dynamics)),
	}
	copy(t.statics, statics)
	copy(t.dynamics, dynamics)
	return t, nil
}

// MustTree is NewTree that panics on arity violation. Intended for
// template-compilation codepaths and tests where the arity is static.
func MustTree(statics []string, dynamics ...Dynamic) *Tree {
	t, err := NewTree(statics, dynamics...)
	if err != nil {
		panic(err)
	}
	return t
}

// Slots returns the number of dynamic slots.
func (t *Tree) Slots() int { return len(t.dynamics) }

// Dynamic returns the value at slot i.
func (t *Tree) Dynamic(i int) Dynamic { return t.dynamics[i] }

// Statics returns a copy of the static fragments.
func (t *Tree) Statics() []string {
	s := make([]string, len(t.statics))
	copy(s, t.statics)
	return s
}

// Comprehension represents a repeated block: one static template shared by
// every iteration and an ordered sequence of per-iteration dynamic rows.
// Unlike a Tree's statics, the entry count may grow, shrink, or reorder
// between renders.
type Comprehension struct {
	statics []string
	entries [][]Dynamic
}

func (*Comprehension) isDynamic() {}

// NewComprehension constructs a comprehension. Every entry row must align
// positionally to the item statics; a row of the wrong arity fails with
// ErrArityMismatch.
func NewComprehension(statics []string, entries ...[]Dynamic) (*Comprehension, error) {
	if len(statics) == 0 {
		return nil, fmt.Errorf("%w: comprehension requires at least one static fragment", ErrArityMismatch)
	}
	c := &Comprehension{
		statics: make([]string, len(statics)),
		entries: make([][]Dynamic, len(entries)),
	}
	copy(c.statics, statics)
	for i, row := range entries {
		if len(row) != len(statics)-1 {
			return nil, fmt.Errorf("%w: entry %d has %d values for %d statics", ErrArityMismatch, i, len(row), len(statics))
		}
		c.entries[i] = make([]Dynamic, len(row))
		copy(c.entries[i], row)
	}
	return c, nil
}

// MustComprehension is NewComprehension that panics on arity violation.
func MustComprehension(statics []string, entries ...[]Dynamic) *Comprehension {
	c, err := NewComprehension(statics, entries...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of iteration entries.
func (c *Comprehension) Len() int { return len(c.entries) }

// Entry returns a copy of the dynamic row for iteration i.
func (c *Comprehension) Entry(i int) []Dynamic {
	row := make([]Dynamic, len(c.entries[i]))
	copy(row, c.entries[i])
	return row
}

// ItemStatics returns a copy of the per-iteration static template.
func (c *Comprehension) ItemStatics() []string {
	s := make([]string, len(c.statics))
	copy(s, c.statics)
	return s
}

// staticsEqual reports whether two static sequences are identical. Trees
// produced from the same template site are identical by construction; this
// check catches diffs across sites and conditional branch changes.
func staticsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
