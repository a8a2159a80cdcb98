package literal

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ContentSlot names the slot holding an element's content template.
const ContentSlot = "content"

// Slot is a captured template and where its output goes: an attribute name,
// or ContentSlot.
type Slot struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// extract captures the templates of el. A content template also clears the
// element's children. Attributes are left as they are.
func extract(doc *Document, el *html.Node, marker string) []Slot {
	var slots []Slot
	for _, attr := range el.Attr {
		if attr.Namespace != "" || attr.Key == marker {
			continue
		}
		if hasLiteral(attr.Val) {
			slots = append(slots, Slot{Name: attr.Key, Template: attr.Val})
		}
	}

	if content := doc.InnerHTML(el); hasLiteral(content) {
		slots = append(slots, Slot{Name: ContentSlot, Template: content})
		doc.ClearChildren(el)
	}

	return slots
}

type renderer struct {
	doc       *Document
	sanitizer Sanitizer
	cache     map[string]*Template
}

func newRenderer(doc *Document, sanitizer Sanitizer) *renderer {
	return &renderer{
		doc:       doc,
		sanitizer: sanitizer,
		cache:     map[string]*Template{},
	}
}

func (r *renderer) compile(slot Slot) (*Template, error) {
	markup := slot.Name == ContentSlot
	key := slot.Template
	if markup {
		key = "\x00" + key
	}
	if tpl, ok := r.cache[key]; ok {
		return tpl, nil
	}

	tpl, err := parseTemplate(slot.Template, markup)
	if err != nil {
		return nil, err
	}
	r.cache[key] = tpl
	return tpl, nil
}

// render runs one pass over slots. The first failing slot ends the pass;
// slots already written stay written.
func (r *renderer) render(el *html.Node, slots []Slot, vars map[string]any) (string, error) {
	for _, slot := range slots {
		if err := r.renderSlot(el, slot, vars); err != nil {
			return slot.Name, err
		}
	}
	return "", nil
}

func (r *renderer) renderSlot(el *html.Node, slot Slot, vars map[string]any) error {
	tpl, err := r.compile(slot)
	if err != nil {
		return err
	}

	out, err := tpl.Execute(vars)
	if err != nil {
		return err
	}

	if slot.Name != ContentSlot {
		r.doc.SetAttribute(el, slot.Name, out)
		return nil
	}

	if r.sanitizer != nil {
		out = r.sanitizer.Sanitize(out)
	}
	if err := r.doc.SetInnerHTML(el, out); err != nil {
		return fmt.Errorf("set content: %w", err)
	}
	return nil
}

// describe renders the start tag of el with its id and class, for logs.
func describe(doc *Document, el *html.Node) string {
	var b strings.Builder
	b.WriteString("<" + el.Data)
	for _, key := range []string{"id", "class"} {
		if v, ok := doc.Attr(el, key); ok {
			b.WriteString(" " + key + `="` + attrEscaper.Replace(v) + `"`)
		}
	}
	b.WriteString(">")
	return b.String()
}
