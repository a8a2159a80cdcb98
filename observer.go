package literal

import (
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

const defaultMarker = "literal"

type managed struct {
	id    string
	slots []Slot
}

// Observer keeps every element carrying the marker attribute rendered from
// its captured templates and its Store.
type Observer struct {
	doc        *Document
	marker     string
	logger     *slog.Logger
	sanitizer  Sanitizer
	renderHook func(el *html.Node, err error)

	renderer   *renderer
	elements   map[*html.Node]*managed
	stores     map[*html.Node]*Store
	started    bool
	disconnect func()
}

type Option func(*Observer)

// WithMarker sets the activation attribute name.
func WithMarker(name string) Option {
	return func(o *Observer) {
		o.marker = name
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) {
		o.logger = logger
	}
}

// WithSanitizer cleans content output before it is parsed into the element.
func WithSanitizer(s Sanitizer) Option {
	return func(o *Observer) {
		o.sanitizer = s
	}
}

// WithRenderHook calls fn after every render pass with the error that ended
// it, or nil.
func WithRenderHook(fn func(el *html.Node, err error)) Option {
	return func(o *Observer) {
		o.renderHook = fn
	}
}

func New(doc *Document, opts ...Option) *Observer {
	o := &Observer{
		doc:      doc,
		marker:   defaultMarker,
		logger:   discardLogger(),
		elements: map[*html.Node]*managed{},
		stores:   map[*html.Node]*Store{},
	}

	for _, opt := range opts {
		opt(o)
	}

	o.renderer = newRenderer(doc, o.sanitizer)
	return o
}

func (o *Observer) Marker() string { return o.marker }

// Start scans the document and begins watching it, now if the document is
// interactive and otherwise once it is ready.
func (o *Observer) Start() error {
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true

	o.doc.OnReady(o.init)
	return nil
}

func (o *Observer) init() {
	if !o.started || o.disconnect != nil {
		return
	}

	for _, el := range o.doc.Elements(o.isMarked) {
		if o.doc.Contains(el) {
			o.activate(el)
		}
	}

	o.disconnect = o.doc.Observe(o.doc.Root(), ObserveOptions{
		ChildList:       true,
		Attributes:      true,
		Subtree:         true,
		AttributeFilter: []string{o.marker},
	}, o.handle)
}

// Stop disconnects from the document and forgets all captured templates.
// Stores stay attached to their elements.
func (o *Observer) Stop() {
	if o.disconnect != nil {
		o.disconnect()
		o.disconnect = nil
	}
	o.started = false
	clear(o.elements)
}

func (o *Observer) handle(records []MutationRecord) {
	for _, rec := range records {
		switch rec.Type {
		case Attributes:
			if rec.AttributeName != o.marker {
				continue
			}
			if o.doc.HasAttr(rec.Target, o.marker) {
				o.activate(rec.Target)
			} else {
				o.deactivate(rec.Target)
			}

		case ChildList:
			for _, n := range rec.AddedNodes {
				if n.Type != html.ElementNode || !o.doc.Contains(n) {
					continue
				}
				o.activateTree(n)
			}
		}
	}
}

// activateTree activates n and every marked element below it.
func (o *Observer) activateTree(n *html.Node) {
	var marked []*html.Node
	if o.isMarked(n) {
		marked = append(marked, n)
	}
	for d := range n.Descendants() {
		if d.Type == html.ElementNode && o.isMarked(d) {
			marked = append(marked, d)
		}
	}

	for _, el := range marked {
		// an earlier activation may have replaced this subtree
		if o.doc.Contains(el) {
			o.activate(el)
		}
	}
}

func (o *Observer) isMarked(n *html.Node) bool {
	return n.Type == html.ElementNode && o.doc.HasAttr(n, o.marker)
}

func (o *Observer) activate(el *html.Node) {
	if _, ok := o.elements[el]; ok {
		return
	}

	m := &managed{
		id:    uuid.NewString(),
		slots: extract(o.doc, el, o.marker),
	}
	o.elements[el] = m

	store := o.Data(el)
	if !store.bound() {
		// bind cannot fail on an unbound store
		_ = store.bind(func(string) { o.render(el) })
	}

	o.logger.Debug("literal activated",
		"element", describe(o.doc, el),
		"element_id", m.id,
		"slots", len(m.slots))

	o.render(el)
}

func (o *Observer) deactivate(el *html.Node) {
	m, ok := o.elements[el]
	if !ok {
		return
	}
	delete(o.elements, el)

	o.logger.Debug("literal deactivated",
		"element", describe(o.doc, el),
		"element_id", m.id)
}

func (o *Observer) render(el *html.Node) {
	m, ok := o.elements[el]
	if !ok || len(m.slots) == 0 {
		return
	}

	slot, err := o.renderer.render(el, m.slots, o.stores[el].Snapshot())
	if err != nil {
		o.logger.Warn("literal render error",
			"element", describe(o.doc, el),
			"element_id", m.id,
			"slot", slot,
			"error", err.Error())
	}

	if o.renderHook != nil {
		o.renderHook(el, err)
	}
}

// Data returns the store of el, creating an empty one if el has none yet.
// Writes to it render el while el is active.
func (o *Observer) Data(el *html.Node) *Store {
	s, ok := o.stores[el]
	if !ok {
		s = &Store{values: map[string]any{}}
		o.stores[el] = s
	}
	return s
}

// SetData installs s as the data object of el before el is first activated.
// Once a store is bound to an element it cannot be replaced.
func (o *Observer) SetData(el *html.Node, s *Store) error {
	if cur, ok := o.stores[el]; ok && cur.bound() {
		return ErrStoreBound
	}
	if s.bound() {
		return ErrStoreBound
	}
	o.stores[el] = s
	return nil
}

func (o *Observer) Active(el *html.Node) bool {
	_, ok := o.elements[el]
	return ok
}

// Slots returns the templates captured for el, in capture order.
func (o *Observer) Slots(el *html.Node) []Slot {
	m, ok := o.elements[el]
	if !ok {
		return nil
	}
	return slices.Clone(m.slots)
}

// ID returns the diagnostic id of an active element.
func (o *Observer) ID(el *html.Node) string {
	if m, ok := o.elements[el]; ok {
		return m.id
	}
	return ""
}
