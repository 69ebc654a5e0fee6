package livediff

import "fmt"

// Merge applies a change set onto a previous tree and returns the resulting
// tree. It is the exact inverse of Diff: for any two trees a, b with
// identical statics, Merge(a, Diff(a, b)) flattens to the same string as b.
// Slots absent from the change set keep the previous value; the result
// shares those slots structurally with prev. Merging an empty ChangeSet
// returns prev unchanged.
//
// The canonical "previous tree" for diffing is the one the render cycle
// itself retained, not a merged reconstruction, but consumers that only see
// diffs rely on Merge to rebuild full trees.
func Merge(prev *Tree, changes ChangeSet) (*Tree, error) {
	if prev == nil {
		return nil, fmt.Errorf("livediff: merge requires a previous tree")
	}
	if len(changes) == 0 {
		return prev, nil
	}
	dynamics, err := mergeSlots(prev.dynamics, changes)
	if err != nil {
		return nil, err
	}
	return &Tree{statics: prev.statics, dynamics: dynamics}, nil
}

func mergeSlots(prev []Dynamic, changes ChangeSet) ([]Dynamic, error) {
	next := make([]Dynamic, len(prev))
	copy(next, prev)
	for i, ch := range changes {
		if i < 0 || i >= len(next) {
			return nil, fmt.Errorf("%w: change addresses slot %d of %d", ErrStructuralMismatch, i, len(next))
		}
		v, err := mergeValue(next[i], ch)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		next[i] = v
	}
	return next, nil
}

func mergeValue(prev Dynamic, ch Change) (Dynamic, error) {
	switch c := ch.(type) {
	case Scalar:
		return c, nil

	case Replace:
		return c.Value, nil

	case ChangeSet:
		pt, ok := prev.(*Tree)
		if !ok {
			return nil, fmt.Errorf("%w: nested changes for a slot holding %T", ErrStructuralMismatch, prev)
		}
		dynamics, err := mergeSlots(pt.dynamics, c)
		if err != nil {
			return nil, err
		}
		return &Tree{statics: pt.statics, dynamics: dynamics}, nil

	case *CompChange:
		pc, ok := prev.(*Comprehension)
		if !ok {
			return nil, fmt.Errorf("%w: comprehension changes for a slot holding %T", ErrStructuralMismatch, prev)
		}
		return mergeComprehension(pc, c)
	}
	return nil, fmt.Errorf("%w: unknown change kind %T", ErrStructuralMismatch, ch)
}

func mergeComprehension(prev *Comprehension, cc *CompChange) (*Comprehension, error) {
	entries := make([][]Dynamic, len(prev.entries))
	copy(entries, prev.entries)

	for j, row := range cc.Rows {
		if j < 0 || j >= len(entries) {
			return nil, fmt.Errorf("%w: row change addresses entry %d of %d", ErrStructuralMismatch, j, len(entries))
		}
		merged := make([]Dynamic, len(entries[j]))
		copy(merged, entries[j])
		for k, ch := range row {
			if k < 0 || k >= len(merged) {
				return nil, fmt.Errorf("%w: row change addresses slot %d of %d", ErrStructuralMismatch, k, len(merged))
			}
			v, err := mergeValue(merged[k], ch)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", j, err)
			}
			merged[k] = v
		}
		entries[j] = merged
	}

	if cc.Truncate >= 0 {
		if cc.Truncate > len(entries) {
			return nil, fmt.Errorf("%w: truncation to %d entries of %d", ErrStructuralMismatch, cc.Truncate, len(entries))
		}
		entries = entries[:cc.Truncate]
	}

	for _, row := range cc.Appended {
		if len(row) != len(prev.statics)-1 {
			return nil, fmt.Errorf("%w: appended entry has %d values for %d statics", ErrArityMismatch, len(row), len(prev.statics))
		}
		entries = append(entries, row)
	}

	return &Comprehension{statics: prev.statics, entries: entries}, nil
}
