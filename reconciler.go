package livediff

import (
	"fmt"
	"log/slog"

	"golang.org/x/net/html"
)

// Hooks are lifecycle callbacks fired while a patch is applied. All fields
// are optional. A panic inside a hook is contained by the reconciler and
// surfaced in the PatchReport; it never aborts the patch.
type Hooks struct {
	// Mounted fires once per inserted subtree, on its root element.
	Mounted func(n *html.Node)
	// Updated fires for every element whose attributes or text changed in
	// place.
	Updated func(n *html.Node)
	// Discarded fires once per removed subtree, on its root element.
	Discarded func(n *html.Node)
	// ViewMounted fires when a nested view root enters the document.
	ViewMounted func(id string, n *html.Node)
	// ViewDiscarded fires when a nested view root leaves the document.
	ViewDiscarded func(id string, n *html.Node)
}

// PatchReport accounts for a single Patch call. Counters cover element
// nodes only; whitespace and text shuffling is not reported.
type PatchReport struct {
	Updated   int
	Inserted  int
	Discarded int
	Unchanged int
	// Skipped counts subtrees left untouched because they are externally
	// managed, mid-edit, mid-submit, or nested views patched by their own
	// session.
	Skipped int

	MountedViews   []string
	DiscardedViews []string

	// CallbackErrors collects recovered hook panics.
	CallbackErrors []error
}

// Reconciler morphs a live document toward freshly rendered markup while
// preserving node identity, focus, selection, and in-flight user input.
type Reconciler struct {
	hooks  Hooks
	logger *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the logger used to report recovered hook
// panics. Defaults to slog.Default().
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler returns a reconciler firing the given hooks.
func NewReconciler(hooks Hooks, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{hooks: hooks, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Patch parses markup and morphs doc to match it. Existing nodes are
// updated in place wherever possible so that browser state attached to
// them survives the patch.
func (r *Reconciler) Patch(doc *Document, markup string) (*PatchReport, error) {
	next, err := parseFragment(markup)
	if err != nil {
		return nil, err
	}
	p := &patcher{
		doc:     doc,
		hooks:   r.hooks,
		logger:  r.logger,
		report:  &PatchReport{},
		pending: make(map[string]*html.Node),
		wanted:  make(map[string]bool),
	}
	collectKeyed(doc.root, func(ref string, n *html.Node) {
		if _, ok := p.pending[ref]; !ok {
			p.pending[ref] = n
		}
	})
	collectKeyed(next, func(ref string, n *html.Node) {
		p.wanted[ref] = true
	})
	fs := p.captureFocus()
	p.morphChildren(doc.root, next)
	p.flushPending()
	p.restoreFocus(fs)
	return p.report, nil
}

type patcher struct {
	doc    *Document
	hooks  Hooks
	logger *slog.Logger
	report *PatchReport

	// pending indexes the keyed elements of the old document still
	// available for reuse; wanted holds the key references present in the
	// new markup. Together they give keyed elements move semantics across
	// the whole tree, not just within one container.
	pending map[string]*html.Node
	wanted  map[string]bool
}

// keyRef identifies a keyed element for reuse. Tag is part of the
// identity: a key only matches an element of the same name.
func keyRef(key, tag string) string {
	return tag + "\x00" + key
}

// collectKeyed visits every keyed element in the subtree in document
// order.
func collectKeyed(n *html.Node, fn func(ref string, n *html.Node)) {
	if n.Type == html.ElementNode {
		if k, ok := attrVal(n, AttrKey); ok {
			fn(keyRef(k, n.Data), n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectKeyed(c, fn)
	}
}

// focusState is the pre-patch snapshot needed to re-establish focus when
// the active element is replaced rather than updated in place.
type focusState struct {
	node       *html.Node
	id         string
	selStart   int
	selEnd     int
	value      string
	hasValue   bool
	restorable bool
}

func (p *patcher) captureFocus() focusState {
	active := p.doc.ActiveElement()
	if active == nil {
		return focusState{}
	}
	fs := focusState{node: active, restorable: true}
	fs.id, _ = attrVal(active, "id")
	fs.selStart, fs.selEnd = p.doc.Selection()
	if isTextInput(active) {
		fs.value = p.doc.Value(active)
		fs.hasValue = true
	}
	return fs
}

func (p *patcher) restoreFocus(fs focusState) {
	if !fs.restorable {
		return
	}
	target := fs.node
	if !p.doc.Contains(target) {
		if fs.id == "" {
			return
		}
		target = p.doc.FindByAttr("id", fs.id)
		if target == nil {
			return
		}
	}
	p.doc.Focus(target)
	p.doc.SetSelection(fs.selStart, fs.selEnd)
	if fs.hasValue {
		p.doc.SetValue(target, fs.value)
	}
}

// morphChildren reconciles the children of oldParent against those of
// newParent. newParent and its children are consumed in the process.
func (p *patcher) morphChildren(oldParent, newParent *html.Node) {
	if hasAttr(newParent, AttrKeyed) || hasAttr(oldParent, AttrKeyed) {
		p.keyedChildren(oldParent, newParent)
		return
	}
	oldKids := elementChildren(oldParent)
	newKids := elementChildren(newParent)
	j := 0
	for _, next := range newKids {
		// Children adopted into another part of the tree mid-patch are no
		// longer ours to pair.
		for j < len(oldKids) && oldKids[j].Parent != oldParent {
			j++
		}
		var old *html.Node
		if j < len(oldKids) {
			old = oldKids[j]
		}

		// A keyed element out of position keeps its identity: its old node
		// is pulled in from wherever it currently lives instead of being
		// rebuilt in place.
		if next.Type == html.ElementNode {
			if key, ok := attrVal(next, AttrKey); ok && !matchesKey(old, key, next.Data) {
				if m := p.adopt(key, next); m != nil {
					p.placeBefore(oldParent, m, old)
					continue
				}
				detach(next)
				p.placeBefore(oldParent, next, old)
				p.inserted(next)
				continue
			}
		}

		if old != nil {
			p.morphNode(old, next)
			j++
			continue
		}
		detach(next)
		oldParent.AppendChild(next)
		p.inserted(next)
	}
	for ; j < len(oldKids); j++ {
		if oldKids[j].Parent != oldParent {
			continue
		}
		p.discard(oldKids[j])
	}
}

// matchesKey reports whether old is an element carrying exactly this key
// and tag.
func matchesKey(old *html.Node, key, tag string) bool {
	if old == nil || old.Type != html.ElementNode || old.Data != tag {
		return false
	}
	k, ok := attrVal(old, AttrKey)
	return ok && k == key
}

// adopt pulls the old node registered under key out of its current
// position, morphs it toward next, and hands it back for reattachment.
// Returns nil when no reusable node exists.
func (p *patcher) adopt(key string, next *html.Node) *html.Node {
	ref := keyRef(key, next.Data)
	m, ok := p.pending[ref]
	if !ok {
		return nil
	}
	delete(p.pending, ref)
	detach(m)
	p.morphNode(m, next)
	return m
}

func (p *patcher) placeBefore(parent, n, ref *html.Node) {
	detach(n)
	if ref != nil {
		parent.InsertBefore(n, ref)
	} else {
		parent.AppendChild(n)
	}
}

// keyedChildren matches children by their key attribute, reusing and
// reordering existing nodes so their identity is preserved across moves.
// A new child with an unknown or missing key is a plain insertion.
func (p *patcher) keyedChildren(oldParent, newParent *html.Node) {
	oldKids := elementChildren(oldParent)
	oldByKey := make(map[string]*html.Node)
	for _, c := range oldKids {
		if c.Type != html.ElementNode {
			continue
		}
		if k, ok := attrVal(c, AttrKey); ok {
			oldByKey[k] = c
		}
	}

	var order []*html.Node
	for c := newParent.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type != html.ElementNode {
			detach(c)
			order = append(order, c)
			c = next
			continue
		}
		key, ok := attrVal(c, AttrKey)
		if old, found := oldByKey[key]; ok && found && old.Data == c.Data {
			delete(oldByKey, key)
			p.morphNode(old, c)
			order = append(order, old)
			c = next
			continue
		}
		// The key may live elsewhere in the document; if so, move it here.
		var m *html.Node
		if ok {
			m = p.adopt(key, c)
		}
		if m != nil {
			order = append(order, m)
		} else {
			detach(c)
			order = append(order, c)
			p.inserted(c)
		}
		c = next
	}

	for _, c := range oldKids {
		if c.Parent != oldParent {
			continue // reused above
		}
		reused := false
		for _, o := range order {
			if o == c {
				reused = true
				break
			}
		}
		if reused {
			continue
		}
		if c.Type == html.ElementNode {
			p.discard(c)
		} else {
			detach(c)
		}
	}

	// Detach survivors and reattach everything in the new order.
	for _, n := range order {
		detach(n)
	}
	for _, n := range order {
		oldParent.AppendChild(n)
	}
}

// morphNode reconciles a single old node against its new counterpart.
func (p *patcher) morphNode(old, next *html.Node) {
	if old.Type == html.TextNode && next.Type == html.TextNode {
		if old.Data != next.Data {
			old.Data = next.Data
		}
		return
	}

	// An element the user is mid-edit or mid-submit on is left entirely
	// alone, subtree included, until the client clears the marker.
	if old.Type == html.ElementNode &&
		(hasAttr(old, AttrDirty) || hasAttr(old, AttrSubmitted)) {
		p.consumeKey(old)
		p.report.Skipped++
		return
	}

	if old.Type != next.Type || old.Data != next.Data {
		p.replaceNode(old, next)
		return
	}
	if old.Type != html.ElementNode {
		return
	}
	p.consumeKey(old)

	// Nested views are owned by their own session. A matching root is left
	// for that session's patches; a different view in the same slot is a
	// teardown plus a fresh mount.
	oldView, oldIsView := attrVal(old, AttrView)
	newView, newIsView := attrVal(next, AttrView)
	if oldIsView || newIsView {
		if oldIsView && newIsView && oldView == newView {
			p.report.Skipped++
			return
		}
		p.replaceNode(old, next)
		return
	}

	changed := p.morphAttrs(old, next)
	if changed {
		p.report.Updated++
		p.fire("updated", func() {
			if p.hooks.Updated != nil {
				p.hooks.Updated(old)
			}
		})
	} else {
		p.report.Unchanged++
	}

	// Externally managed subtrees keep their children; only the element's
	// own attributes are synced.
	if hasAttr(old, AttrIgnore) {
		p.report.Skipped++
		return
	}
	p.morphChildren(old, next)
}

// consumeKey removes a kept element from the reuse index so the same key
// cannot pull it out of position later in the patch.
func (p *patcher) consumeKey(old *html.Node) {
	if k, ok := attrVal(old, AttrKey); ok {
		delete(p.pending, keyRef(k, old.Data))
	}
}

// morphAttrs syncs old's attributes to next's and reports whether anything
// changed. The value attribute of a focused input is left alone so
// unsynced user input survives the patch.
func (p *patcher) morphAttrs(old, next *html.Node) bool {
	preserveValue := isTextInput(old) && p.doc.ActiveElement() == old

	changed := false
	seen := make(map[string]bool, len(next.Attr))
	for _, a := range next.Attr {
		seen[a.Key] = true
		if a.Key == "value" && preserveValue {
			continue
		}
		if cur, ok := attrVal(old, a.Key); !ok || cur != a.Val {
			setAttr(old, a.Key, a.Val)
			changed = true
		}
	}
	for i := 0; i < len(old.Attr); {
		k := old.Attr[i].Key
		if !seen[k] && !(k == "value" && preserveValue) {
			old.Attr = append(old.Attr[:i], old.Attr[i+1:]...)
			changed = true
			continue
		}
		i++
	}
	return changed
}

// replaceNode swaps old for next in place, tearing down old's subtree and
// mounting next's.
func (p *patcher) replaceNode(old, next *html.Node) {
	parent := old.Parent
	detach(next)
	parent.InsertBefore(next, old)
	p.discard(old)
	p.inserted(next)
}

// inserted records a newly attached subtree and fires mount hooks for it.
func (p *patcher) inserted(n *html.Node) {
	if n.Type != html.ElementNode {
		return
	}
	p.adoptDescendants(n)
	p.report.Inserted++
	p.fire("mounted", func() {
		if p.hooks.Mounted != nil {
			p.hooks.Mounted(n)
		}
	})
	walkViews(n, func(id string, view *html.Node) {
		p.report.MountedViews = append(p.report.MountedViews, id)
		p.fire("view mounted", func() {
			if p.hooks.ViewMounted != nil {
				p.hooks.ViewMounted(id, view)
			}
		})
	})
}

// adoptDescendants swaps keyed elements inside a freshly inserted subtree
// for their reusable old nodes, so inserting a wrapper does not rebuild
// the keyed content it carries.
func (p *patcher) adoptDescendants(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type != html.ElementNode {
			c = next
			continue
		}
		if k, ok := attrVal(c, AttrKey); ok {
			if m, found := p.pending[keyRef(k, c.Data)]; found && m.Data == c.Data {
				delete(p.pending, keyRef(k, c.Data))
				detach(m)
				c.Parent.InsertBefore(m, c)
				detach(c)
				p.morphNode(m, c)
				c = next
				continue
			}
		}
		p.adoptDescendants(c)
		c = next
	}
}

// discard removes a subtree from the document. A keyed element the new
// markup still wants somewhere is parked for later adoption instead of
// being torn down, and keyed descendants of a doomed subtree get the same
// rescue.
func (p *patcher) discard(n *html.Node) {
	if n.Type == html.ElementNode {
		if p.park(n) {
			return
		}
		p.rescueKeyed(n)
	}
	p.teardown(n)
}

// park detaches a keyed element the new markup still references and
// leaves it in the reuse index. Reports whether the node was parked.
func (p *patcher) park(n *html.Node) bool {
	k, ok := attrVal(n, AttrKey)
	if !ok {
		return false
	}
	ref := keyRef(k, n.Data)
	if !p.wanted[ref] || p.pending[ref] != n {
		return false
	}
	detach(n)
	return true
}

// rescueKeyed pulls wanted keyed elements out of a subtree about to be
// torn down.
func (p *patcher) rescueKeyed(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && !p.park(c) {
			p.rescueKeyed(c)
		}
		c = next
	}
}

// flushPending tears down parked nodes no adoption ever claimed. Teardown
// fires on subtree roots only: a parked node inside another orphaned
// subtree goes down with it.
func (p *patcher) flushPending() {
	orphaned := make(map[*html.Node]bool)
	for _, n := range p.pending {
		if !p.doc.Contains(n) {
			orphaned[n] = true
		}
	}
	p.pending = nil
	for n := range orphaned {
		root := true
		for a := n.Parent; a != nil; a = a.Parent {
			if orphaned[a] {
				root = false
				break
			}
		}
		if root {
			p.teardown(n)
		}
	}
}

// teardown detaches a subtree and fires teardown hooks for it.
func (p *patcher) teardown(n *html.Node) {
	detach(n)
	if n.Type != html.ElementNode {
		return
	}
	walkViews(n, func(id string, view *html.Node) {
		p.report.DiscardedViews = append(p.report.DiscardedViews, id)
		p.fire("view discarded", func() {
			if p.hooks.ViewDiscarded != nil {
				p.hooks.ViewDiscarded(id, view)
			}
		})
	})
	p.report.Discarded++
	p.fire("discarded", func() {
		if p.hooks.Discarded != nil {
			p.hooks.Discarded(n)
		}
	})
	delete(p.doc.values, n)
	if p.doc.active == n {
		p.doc.active = nil
	}
}

// walkViews visits every view root in the subtree, n itself included.
func walkViews(n *html.Node, fn func(id string, view *html.Node)) {
	if n.Type == html.ElementNode {
		if id, ok := attrVal(n, AttrView); ok {
			fn(id, n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkViews(c, fn)
	}
}

// fire invokes a hook, converting a panic into a reported error.
func (p *patcher) fire(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("livediff: %s hook panicked: %v", name, rec)
			p.report.CallbackErrors = append(p.report.CallbackErrors, err)
			p.logger.Error("hook panic recovered", "hook", name, "err", err)
		}
	}()
	fn()
}
