package livediff

import "fmt"

// Change describes what happened to a single dynamic slot between two
// renders. Like Dynamic it is a closed union: Scalar (new scalar value),
// ChangeSet (sparse changes inside a nested tree), *CompChange (delta on a
// comprehension), or Replace (full new value when the slot changed kind or
// template identity).
type Change interface {
	isChange()
}

func (Scalar) isChange() {}

// ChangeSet is the sparse diff between two trees with identical statics:
// slot index to change. Slots whose value is identical to the previous
// render are absent; an empty ChangeSet means nothing changed and no wire
// message needs sending.
type ChangeSet map[int]Change

func (ChangeSet) isChange() {}

// Replace carries a full new value for a slot. It is the fallback for slots
// whose dynamic kind changed between renders (a conditional branch switching
// from text to markup, say) and for nested trees or comprehensions whose
// statics changed identity. Never an error: branch changes are legitimate.
type Replace struct {
	Value Dynamic
}

func (Replace) isChange() {}

// RowChange holds the sparse per-slot changes for one comprehension entry.
type RowChange map[int]Change

// CompChange is the delta between two comprehensions sharing item statics.
// Entries present in both renders are diffed positionally into Rows; a
// longer next render appends full rows; a shorter one truncates. Reordering
// is not detected here: the client matches iteration elements by their key
// attribute in the markup, the tree diff only tracks positional changes.
type CompChange struct {
	Rows     map[int]RowChange
	Appended [][]Dynamic
	Truncate int // new entry count, or -1 when no truncation
}

func (*CompChange) isChange() {}

// Diff computes the minimal change set between two renders of the same
// template instantiation. Diffing a tree against itself yields an empty
// ChangeSet. Trees with different statics are a contract violation and
// return ErrStructuralMismatch.
func Diff(prev, next *Tree) (ChangeSet, error) {
	if prev == nil || next == nil {
		return nil, fmt.Errorf("livediff: diff requires two trees, got prev=%v next=%v", prev != nil, next != nil)
	}
	if !staticsEqual(prev.statics, next.statics) {
		return nil, fmt.Errorf("%w: %d vs %d statics", ErrStructuralMismatch, len(prev.statics), len(next.statics))
	}
	cs := make(ChangeSet)
	for i := range next.dynamics {
		if ch, changed := diffValue(prev.dynamics[i], next.dynamics[i]); changed {
			cs[i] = ch
		}
	}
	return cs, nil
}

// diffValue compares one slot across renders. A kind or identity change
// falls back to Replace with the full new value rather than failing.
func diffValue(prev, next Dynamic) (Change, bool) {
	switch nv := next.(type) {
	case Scalar:
		if pv, ok := prev.(Scalar); ok {
			if pv == nv {
				return nil, false
			}
			return nv, true
		}
		return Replace{Value: nv}, true

	case *Tree:
		pv, ok := prev.(*Tree)
		if !ok || !staticsEqual(pv.statics, nv.statics) {
			return Replace{Value: nv}, true
		}
		sub := make(ChangeSet)
		for i := range nv.dynamics {
			if ch, changed := diffValue(pv.dynamics[i], nv.dynamics[i]); changed {
				sub[i] = ch
			}
		}
		if len(sub) == 0 {
			return nil, false
		}
		return sub, true

	case *Comprehension:
		pv, ok := prev.(*Comprehension)
		if !ok || !staticsEqual(pv.statics, nv.statics) {
			return Replace{Value: nv}, true
		}
		return diffComprehension(pv, nv)
	}
	// Unreachable for the closed kind set.
	return Replace{Value: next}, true
}

func diffComprehension(prev, next *Comprehension) (Change, bool) {
	cc := &CompChange{Truncate: -1}

	shared := len(prev.entries)
	if len(next.entries) < shared {
		shared = len(next.entries)
	}
	for j := 0; j < shared; j++ {
		row := make(RowChange)
		for k := range next.entries[j] {
			if ch, changed := diffValue(prev.entries[j][k], next.entries[j][k]); changed {
				row[k] = ch
			}
		}
		if len(row) > 0 {
			if cc.Rows == nil {
				cc.Rows = make(map[int]RowChange)
			}
			cc.Rows[j] = row
		}
	}

	if len(next.entries) > len(prev.entries) {
		// New entries have no prior counterpart: send them in full.
		appended := next.entries[len(prev.entries):]
		cc.Appended = make([][]Dynamic, len(appended))
		for i, row := range appended {
			cc.Appended[i] = make([]Dynamic, len(row))
			copy(cc.Appended[i], row)
		}
	} else if len(next.entries) < len(prev.entries) {
		cc.Truncate = len(next.entries)
	}

	if cc.Rows == nil && cc.Appended == nil && cc.Truncate == -1 {
		return nil, false
	}
	return cc, true
}
