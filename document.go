package literal

import (
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

type ReadyState int

const (
	Loading ReadyState = iota
	Interactive
)

type MutationType int

const (
	Attributes MutationType = iota
	ChildList
)

func (t MutationType) String() string {
	if t == Attributes {
		return "attributes"
	}
	return "childList"
}

// MutationRecord describes one change made through the Document's mutation
// primitives.
type MutationRecord struct {
	Type          MutationType
	Target        *html.Node
	AttributeName string
	OldValue      string
	AddedNodes    []*html.Node
	RemovedNodes  []*html.Node
}

type ObserveOptions struct {
	ChildList       bool
	Attributes      bool
	Subtree         bool
	AttributeFilter []string
}

type registration struct {
	target  *html.Node
	opts    ObserveOptions
	fn      func([]MutationRecord)
	pending []MutationRecord
	active  bool
}

func (reg *registration) wants(rec MutationRecord) bool {
	if rec.Target != reg.target && !(reg.opts.Subtree && isAncestor(reg.target, rec.Target)) {
		return false
	}

	switch rec.Type {
	case Attributes:
		if !reg.opts.Attributes {
			return false
		}
		if len(reg.opts.AttributeFilter) > 0 && !slices.Contains(reg.opts.AttributeFilter, rec.AttributeName) {
			return false
		}
		return true
	case ChildList:
		return reg.opts.ChildList
	}

	return false
}

// Document is a live html.Node tree. All changes that observers should see
// must go through its mutation methods. A Document is not safe for concurrent
// use; see Loop.
type Document struct {
	root    *html.Node
	state   ReadyState
	onReady []func()
	regs    []*registration
}

// Parse reads a complete HTML document. The result is already Interactive.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	doc := NewDocument(root)
	doc.state = Interactive
	return doc, nil
}

// NewDocument wraps root in the Loading state.
func NewDocument(root *html.Node) *Document {
	return &Document{root: root}
}

func (d *Document) Root() *html.Node { return d.root }

func (d *Document) ReadyState() ReadyState { return d.state }

// OnReady runs fn once the document becomes Interactive.
func (d *Document) OnReady(fn func()) {
	if d.state != Loading {
		fn()
		return
	}
	d.onReady = append(d.onReady, fn)
}

// MarkReady is the content loaded signal.
func (d *Document) MarkReady() {
	if d.state != Loading {
		return
	}
	d.state = Interactive

	fns := d.onReady
	d.onReady = nil
	for _, fn := range fns {
		fn()
	}
}

// Observe registers fn for records under target. The returned func
// disconnects the registration and drops its undelivered records.
func (d *Document) Observe(target *html.Node, opts ObserveOptions, fn func([]MutationRecord)) (disconnect func()) {
	reg := &registration{
		target: target,
		opts:   opts,
		fn:     fn,
		active: true,
	}
	d.regs = append(d.regs, reg)

	return func() {
		reg.active = false
		reg.pending = nil
		d.regs = slices.DeleteFunc(d.regs, func(r *registration) bool { return r == reg })
	}
}

// Flush delivers queued records. Records queued while a batch is being
// handled are delivered by the same call, in a later batch.
func (d *Document) Flush() {
	for {
		delivered := false
		for _, reg := range slices.Clone(d.regs) {
			if !reg.active || len(reg.pending) == 0 {
				continue
			}

			batch := reg.pending
			reg.pending = nil
			delivered = true
			reg.fn(batch)
		}

		if !delivered {
			return
		}
	}
}

func (d *Document) queue(rec MutationRecord) {
	for _, reg := range d.regs {
		if reg.active && reg.wants(rec) {
			reg.pending = append(reg.pending, rec)
		}
	}
}

// Pending reports whether any record is waiting for Flush.
func (d *Document) Pending() bool {
	for _, reg := range d.regs {
		if len(reg.pending) > 0 {
			return true
		}
	}
	return false
}

func (d *Document) Attr(el *html.Node, key string) (string, bool) {
	for _, attr := range el.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func (d *Document) HasAttr(el *html.Node, key string) bool {
	_, ok := d.Attr(el, key)
	return ok
}

func (d *Document) SetAttribute(el *html.Node, key, val string) {
	old := ""
	found := false
	for i, attr := range el.Attr {
		if attr.Namespace == "" && attr.Key == key {
			old = attr.Val
			el.Attr[i].Val = val
			found = true
			break
		}
	}
	if !found {
		el.Attr = append(el.Attr, html.Attribute{Key: key, Val: val})
	}

	d.queue(MutationRecord{
		Type:          Attributes,
		Target:        el,
		AttributeName: key,
		OldValue:      old,
	})
}

func (d *Document) RemoveAttribute(el *html.Node, key string) {
	for i, attr := range el.Attr {
		if attr.Namespace == "" && attr.Key == key {
			el.Attr = slices.Delete(el.Attr, i, i+1)
			d.queue(MutationRecord{
				Type:          Attributes,
				Target:        el,
				AttributeName: key,
				OldValue:      attr.Val,
			})
			return
		}
	}
}

func (d *Document) AppendChild(parent, child *html.Node) {
	d.detach(child)
	parent.AppendChild(child)
	d.queue(MutationRecord{
		Type:       ChildList,
		Target:     parent,
		AddedNodes: []*html.Node{child},
	})
}

// InsertBefore inserts child before ref. A nil ref appends.
func (d *Document) InsertBefore(parent, child, ref *html.Node) {
	d.detach(child)
	parent.InsertBefore(child, ref)
	d.queue(MutationRecord{
		Type:       ChildList,
		Target:     parent,
		AddedNodes: []*html.Node{child},
	})
}

func (d *Document) RemoveChild(parent, child *html.Node) {
	parent.RemoveChild(child)
	d.queue(MutationRecord{
		Type:         ChildList,
		Target:       parent,
		RemovedNodes: []*html.Node{child},
	})
}

func (d *Document) detach(n *html.Node) {
	if n.Parent != nil {
		d.RemoveChild(n.Parent, n)
	}
}

// ClearChildren removes every child of el in one record.
func (d *Document) ClearChildren(el *html.Node) {
	removed := takeChildren(el)
	if len(removed) == 0 {
		return
	}
	d.queue(MutationRecord{
		Type:         ChildList,
		Target:       el,
		RemovedNodes: removed,
	})
}

// SetInnerHTML replaces the children of el with markup parsed in the context
// of el.
func (d *Document) SetInnerHTML(el *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), el)
	if err != nil {
		return err
	}

	removed := takeChildren(el)
	for _, n := range nodes {
		el.AppendChild(n)
	}

	if len(removed) == 0 && len(nodes) == 0 {
		return nil
	}
	d.queue(MutationRecord{
		Type:         ChildList,
		Target:       el,
		AddedNodes:   nodes,
		RemovedNodes: removed,
	})
	return nil
}

// AppendHTML parses markup in the context of parent and appends the result
// in one record.
func (d *Document) AppendHTML(parent *html.Node, markup string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	for _, n := range nodes {
		parent.AppendChild(n)
	}
	d.queue(MutationRecord{
		Type:       ChildList,
		Target:     parent,
		AddedNodes: nodes,
	})
	return nodes, nil
}

func (d *Document) InnerHTML(el *html.Node) string {
	var b strings.Builder
	// strings.Builder never fails
	_ = serializeChildren(&b, el)
	return b.String()
}

// Contains reports whether n is attached to the document tree.
func (d *Document) Contains(n *html.Node) bool {
	return n == d.root || isAncestor(d.root, n)
}

// Elements returns every element under the root matching fn, in document
// order. The slice is a snapshot.
func (d *Document) Elements(match func(*html.Node) bool) []*html.Node {
	var els []*html.Node
	for n := range d.root.Descendants() {
		if n.Type == html.ElementNode && match(n) {
			els = append(els, n)
		}
	}
	return els
}

func (d *Document) ElementByID(id string) *html.Node {
	for n := range d.root.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		if v, ok := d.Attr(n, "id"); ok && v == id {
			return n
		}
	}
	return nil
}

// Body returns the <body> element, or the root when there is none.
func (d *Document) Body() *html.Node {
	for n := range d.root.Descendants() {
		if n.Type == html.ElementNode && n.Data == "body" {
			return n
		}
	}
	return d.root
}

func (d *Document) Render(w io.Writer) error {
	sw, ok := w.(io.StringWriter)
	if !ok {
		var b strings.Builder
		if err := serialize(&b, d.root); err != nil {
			return err
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
	return serialize(sw, d.root)
}

func (d *Document) String() string {
	var b strings.Builder
	_ = serialize(&b, d.root)
	return b.String()
}

func takeChildren(el *html.Node) []*html.Node {
	var removed []*html.Node
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	return removed
}

func isAncestor(ancestor, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}
