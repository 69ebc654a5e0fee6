package livediff

import (
	"errors"
	"reflect"
	"testing"
)

func TestDiffSelfIsEmpty(t *testing.T) {
	tree := MustTree([]string{"<p>", " and ", "</p>"}, Scalar("a"), Scalar("b"))

	cs, err := Diff(tree, tree)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(cs) != 0 {
		t.Errorf("diff of a tree against itself should be empty, got %v", cs)
	}
}

func TestDiffScalarChanges(t *testing.T) {
	prev := MustTree([]string{"<p>", " ", "</p>"}, Scalar("a"), Scalar("b"))
	next := MustTree([]string{"<p>", " ", "</p>"}, Scalar("a"), Scalar("B"))

	cs, err := Diff(prev, next)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if len(cs) != 1 {
		t.Fatalf("expected 1 change, got %d: %v", len(cs), cs)
	}
	if _, present := cs[0]; present {
		t.Error("unchanged slot 0 must be absent from the change set")
	}
	if got := cs[1]; got != Scalar("B") {
		t.Errorf("slot 1 change = %v, want Scalar(B)", got)
	}
}

func TestDiffStaticsMismatch(t *testing.T) {
	prev := MustTree([]string{"<p>", "</p>"}, Scalar("a"))
	next := MustTree([]string{"<div>", "</div>"}, Scalar("a"))

	_, err := Diff(prev, next)
	if err == nil {
		t.Fatal("expected error for mismatched statics")
	}
	if !errors.Is(err, ErrStructuralMismatch) {
		t.Errorf("expected ErrStructuralMismatch, got %v", err)
	}
}

func TestDiffNilTrees(t *testing.T) {
	tree := MustTree([]string{"x"})
	if _, err := Diff(nil, tree); err == nil {
		t.Error("expected error for nil prev")
	}
	if _, err := Diff(tree, nil); err == nil {
		t.Error("expected error for nil next")
	}
}

func TestDiffNestedTree(t *testing.T) {
	inner := func(v string) *Tree {
		return MustTree([]string{"<b>", "</b>"}, Scalar(v))
	}
	prev := MustTree([]string{"<p>", "</p>"}, inner("old"))
	next := MustTree([]string{"<p>", "</p>"}, inner("new"))

	cs, err := Diff(prev, next)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	sub, ok := cs[0].(ChangeSet)
	if !ok {
		t.Fatalf("expected nested ChangeSet, got %T", cs[0])
	}
	if got := sub[0]; got != Scalar("new") {
		t.Errorf("nested change = %v, want Scalar(new)", got)
	}
}

func TestDiffKindChangeFallsBackToReplace(t *testing.T) {
	// A conditional branch switching from plain text to markup changes the
	// slot kind; the diff must carry the full new value.
	inner := MustTree([]string{"<b>", "</b>"}, Scalar("x"))
	prev := MustTree([]string{"<p>", "</p>"}, Scalar("plain"))
	next := MustTree([]string{"<p>", "</p>"}, inner)

	cs, err := Diff(prev, next)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	rep, ok := cs[0].(Replace)
	if !ok {
		t.Fatalf("expected Replace, got %T", cs[0])
	}
	if !reflect.DeepEqual(rep.Value, inner) {
		t.Errorf("Replace carries %v, want the full nested tree", rep.Value)
	}
}

func TestDiffNestedStaticsChangeFallsBackToReplace(t *testing.T) {
	// Same slot, different branch of a conditional: statics differ, so the
	// whole subtree is replaced rather than failing.
	prev := MustTree([]string{"<p>", "</p>"},
		MustTree([]string{"<b>", "</b>"}, Scalar("x")))
	next := MustTree([]string{"<p>", "</p>"},
		MustTree([]string{"<i>", "</i>"}, Scalar("x")))

	cs, err := Diff(prev, next)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if _, ok := cs[0].(Replace); !ok {
		t.Fatalf("expected Replace for branch change, got %T", cs[0])
	}
}

func TestDiffComprehensionRowChange(t *testing.T) {
	prev := MustTree([]string{"<ul>", "</ul>"},
		MustComprehension([]string{"<li>", "</li>"},
			[]Dynamic{Scalar("a")}, []Dynamic{Scalar("b")}))
	next := MustTree([]string{"<ul>", "</ul>"},
		MustComprehension([]string{"<li>", "</li>"},
			[]Dynamic{Scalar("a")}, []Dynamic{Scalar("B")}))

	cs, err := Diff(prev, next)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	cc, ok := cs[0].(*CompChange)
	if !ok {
		t.Fatalf("expected *CompChange, got %T", cs[0])
	}
	if len(cc.Rows) != 1 {
		t.Fatalf("expected 1 changed row, got %d", len(cc.Rows))
	}
	if got := cc.Rows[1][0]; got != Scalar("B") {
		t.Errorf("row 1 slot 0 = %v, want Scalar(B)", got)
	}
	if cc.Appended != nil || cc.Truncate != -1 {
		t.Errorf("unexpected append/truncate: %+v", cc)
	}
}

func TestDiffComprehensionAppend(t *testing.T) {
	prev := MustComprehension([]string{"<li>", "</li>"}, []Dynamic{Scalar("a")})
	next := MustComprehension([]string{"<li>", "</li>"},
		[]Dynamic{Scalar("a")}, []Dynamic{Scalar("b")}, []Dynamic{Scalar("c")})

	ch, changed := diffValue(prev, next)
	if !changed {
		t.Fatal("expected a change")
	}
	cc := ch.(*CompChange)
	if len(cc.Rows) != 0 {
		t.Errorf("shared prefix unchanged, Rows should be empty: %v", cc.Rows)
	}
	if len(cc.Appended) != 2 {
		t.Fatalf("expected 2 appended rows, got %d", len(cc.Appended))
	}
	if cc.Appended[0][0] != Scalar("b") || cc.Appended[1][0] != Scalar("c") {
		t.Errorf("appended rows = %v", cc.Appended)
	}
}

func TestDiffComprehensionTruncate(t *testing.T) {
	prev := MustComprehension([]string{"<li>", "</li>"},
		[]Dynamic{Scalar("a")}, []Dynamic{Scalar("b")}, []Dynamic{Scalar("c")})
	next := MustComprehension([]string{"<li>", "</li>"}, []Dynamic{Scalar("a")})

	ch, changed := diffValue(prev, next)
	if !changed {
		t.Fatal("expected a change")
	}
	cc := ch.(*CompChange)
	if cc.Truncate != 1 {
		t.Errorf("Truncate = %d, want 1", cc.Truncate)
	}
	if cc.Appended != nil {
		t.Errorf("unexpected Appended: %v", cc.Appended)
	}
}

func TestDiffComprehensionItemStaticsChange(t *testing.T) {
	prev := MustTree([]string{"<ul>", "</ul>"},
		MustComprehension([]string{"<li>", "</li>"}, []Dynamic{Scalar("a")}))
	next := MustTree([]string{"<ul>", "</ul>"},
		MustComprehension([]string{"<li class=x>", "</li>"}, []Dynamic{Scalar("a")}))

	cs, err := Diff(prev, next)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if _, ok := cs[0].(Replace); !ok {
		t.Errorf("expected Replace for item statics change, got %T", cs[0])
	}
}

func TestDiffComprehensionUnchanged(t *testing.T) {
	mk := func() *Comprehension {
		return MustComprehension([]string{"<li>", "</li>"},
			[]Dynamic{Scalar("a")}, []Dynamic{Scalar("b")})
	}
	if _, changed := diffValue(mk(), mk()); changed {
		t.Error("identical comprehensions should not produce a change")
	}
}
