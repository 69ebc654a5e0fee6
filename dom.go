package livediff

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DOM attributes consumed by the reconciler. The templating layer writes
// them into the markup; the reconciler only ever reads them.
const (
	// AttrKey carries a stable per-child identifier for keyed matching.
	AttrKey = "data-ld-key"
	// AttrKeyed marks a container whose children are matched by AttrKey
	// instead of position.
	AttrKeyed = "data-ld-keyed"
	// AttrIgnore marks an externally managed subtree the reconciler must
	// never patch into; only its removal is honored.
	AttrIgnore = "data-ld-ignore"
	// AttrView marks the root of a nested independent view, identified by
	// the attribute value. Such subtrees are mounted and torn down, never
	// patched in place.
	AttrView = "data-ld-view"
	// AttrViewParent links a nested view to its parent session.
	AttrViewParent = "data-ld-parent"
	// AttrDirty marks an element holding unsynced user input.
	AttrDirty = "data-ld-dirty"
	// AttrSubmitted marks a form with an unacknowledged submit in flight.
	AttrSubmitted = "data-ld-submitted"
)

// Document is the mutable DOM the reconciler patches: a parsed HTML fragment
// plus the browser-only state the html package does not model (active
// element, selection range, live input values). Patch decision logic runs
// entirely against Document, which is what makes it testable without a
// browser; a real client supplies the same surface over the live DOM.
type Document struct {
	root     *html.Node
	active   *html.Node
	selStart int
	selEnd   int
	values   map[*html.Node]string
}

// ParseDocument parses an HTML fragment into a patchable document.
func ParseDocument(markup string) (*Document, error) {
	root, err := parseFragment(markup)
	if err != nil {
		return nil, err
	}
	return &Document{root: root, values: make(map[*html.Node]string)}, nil
}

// parseFragment parses markup in body context and reparents the resulting
// nodes under a synthetic container.
func parseFragment(markup string) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("livediff: parse fragment: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// Root returns the synthetic container holding the document's top-level
// nodes.
func (d *Document) Root() *html.Node { return d.root }

// HTML serializes the document back to markup.
func (d *Document) HTML() string {
	var b strings.Builder
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		// Render cannot fail on a strings.Builder.
		_ = html.Render(&b, c)
	}
	return b.String()
}

// Focus marks n as the active element and resets the selection.
func (d *Document) Focus(n *html.Node) {
	d.active = n
	d.selStart, d.selEnd = 0, 0
}

// Blur clears the active element.
func (d *Document) Blur() {
	d.active = nil
	d.selStart, d.selEnd = 0, 0
}

// ActiveElement returns the currently focused element, if any.
func (d *Document) ActiveElement() *html.Node { return d.active }

// SetSelection records the selection range of the active element.
func (d *Document) SetSelection(start, end int) {
	d.selStart, d.selEnd = start, end
}

// Selection returns the selection range of the active element.
func (d *Document) Selection() (start, end int) {
	return d.selStart, d.selEnd
}

// SetValue records the live value of a text-like input, as user typing
// would. The live value shadows the value attribute in the markup.
func (d *Document) SetValue(n *html.Node, v string) {
	d.values[n] = v
}

// Value returns the live value of an input, falling back to its value
// attribute.
func (d *Document) Value(n *html.Node) string {
	if v, ok := d.values[n]; ok {
		return v
	}
	v, _ := attrVal(n, "value")
	return v
}

// Contains reports whether n is still attached to the document.
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Find returns the first element, in document order, matching the
// predicate.
func (d *Document) Find(match func(*html.Node) bool) *html.Node {
	return findNode(d.root, match)
}

// FindByAttr returns the first element carrying the given attribute value.
func (d *Document) FindByAttr(key, val string) *html.Node {
	return d.Find(func(n *html.Node) bool {
		v, ok := attrVal(n, key)
		return ok && v == val
	})
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attrVal(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attrVal(n, key)
	return ok
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// detach removes n from its parent without touching its subtree.
func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// elementChildren returns the direct children of n as a slice, text nodes
// included.
func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// isTextInput reports whether n is a text-like input whose selection range
// is meaningful.
func isTextInput(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "textarea":
		return true
	case "input":
		t, ok := attrVal(n, "type")
		if !ok {
			return true
		}
		switch t {
		case "text", "search", "url", "tel", "password", "email":
			return true
		}
	}
	return false
}
