package livediff

import (
	"strings"
	"testing"
)

func TestMinifyTreeCollapsesStaticWhitespace(t *testing.T) {
	tree := MustTree([]string{"<div>\n  <p>\n    ", "\n  </p>\n</div>"}, Scalar("hello"))

	minified := MinifyTree(tree)

	for i, s := range minified.Statics() {
		if strings.Contains(s, "\n") {
			t.Errorf("static %d still contains newlines: %q", i, s)
		}
	}
	// Dynamic values must never be touched.
	if minified.Dynamic(0) != Scalar("hello") {
		t.Errorf("dynamic changed: %v", minified.Dynamic(0))
	}
}

func TestMinifyTreeRecursesIntoNestedValues(t *testing.T) {
	tree := MustTree([]string{"<div>\n", "\n</div>"},
		MustTree([]string{"<ul>\n  ", "\n</ul>"},
			MustComprehension([]string{"<li>\n  ", "\n</li>"}, []Dynamic{Scalar("  spaced  ")})))

	minified := MinifyTree(tree)

	inner := minified.Dynamic(0).(*Tree)
	comp := inner.Dynamic(0).(*Comprehension)
	for _, s := range comp.ItemStatics() {
		if strings.Contains(s, "\n") {
			t.Errorf("comprehension static not minified: %q", s)
		}
	}
	if comp.Entry(0)[0] != Scalar("  spaced  ") {
		t.Error("comprehension dynamic value was modified")
	}
}

func TestMinifyTreePreservesDiffability(t *testing.T) {
	// Both renders minified with the same settings keep statics identity,
	// so diffing still works.
	mk := func(v string) *Tree {
		return MustTree([]string{"<p>\n  ", "\n</p>"}, Scalar(v))
	}

	prev := MinifyTree(mk("a"))
	next := MinifyTree(mk("b"))

	cs, err := Diff(prev, next)
	if err != nil {
		t.Fatalf("Diff of minified trees failed: %v", err)
	}
	if cs[0] != Scalar("b") {
		t.Errorf("change = %v, want Scalar(b)", cs[0])
	}
}

func TestMinifyTreeNil(t *testing.T) {
	if MinifyTree(nil) != nil {
		t.Error("minifying nil should return nil")
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", " "},
		{"plain", "plain"},
		{"a  b\tc", "a b c"},
		{" leading", " leading"},
		{"trailing ", "trailing "},
		{"\n both \n", " both "},
	}
	for _, tt := range tests {
		if got := normalizeWhitespace(tt.in); got != tt.want {
			t.Errorf("normalizeWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
