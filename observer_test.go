package literal

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/net/html"
)

const page = `<!DOCTYPE html>
<html><head><title>t</title></head>
<body>
<p id="greet" literal title="Hi ${name}">Hello, ${name}!</p>
<div id="plain" literal class="x">static</div>
<p id="esc" literal>Price: \${amount} for ${name}</p>
<p id="bad" literal title="${missing}" data-x="${name}">${name}</p>
<p id="later" title="${name}">${name}</p>
</body></html>`

type harness struct {
	doc     *Document
	obs     *Observer
	logs    *bytes.Buffer
	renders map[string]int
	errs    map[string]error
}

func newHarness(src string, data map[string]map[string]any) *harness {
	doc, err := Parse(strings.NewReader(src))
	So(err, ShouldBeNil)

	h := &harness{
		doc:     doc,
		logs:    &bytes.Buffer{},
		renders: map[string]int{},
		errs:    map[string]error{},
	}
	logger, err := NewLogger(h.logs, slog.LevelDebug, "human")
	So(err, ShouldBeNil)

	h.obs = New(doc, WithLogger(logger), WithRenderHook(func(el *html.Node, err error) {
		id, _ := doc.Attr(el, "id")
		h.renders[id]++
		h.errs[id] = err
	}))

	for id, initial := range data {
		store, err := NewStore(initial)
		So(err, ShouldBeNil)
		So(h.obs.SetData(h.el(id), store), ShouldBeNil)
	}
	return h
}

func (h *harness) el(id string) *html.Node {
	el := h.doc.ElementByID(id)
	So(el, ShouldNotBeNil)
	return el
}

func (h *harness) attr(id, key string) string {
	v, _ := h.doc.Attr(h.el(id), key)
	return v
}

func TestObserverLifecycle(t *testing.T) {
	Convey("Given a document with managed elements", t, func() {
		ada := map[string]any{"name": "Ada"}
		h := newHarness(page, map[string]map[string]any{
			"greet": ada,
			"esc":   ada,
			"bad":   ada,
			"later": ada,
		})
		So(h.obs.Start(), ShouldBeNil)
		h.doc.Flush()

		Convey("Start activates marked elements and renders them once", func() {
			So(h.obs.Active(h.el("greet")), ShouldBeTrue)
			So(h.doc.InnerHTML(h.el("greet")), ShouldEqual, "Hello, Ada!")
			So(h.attr("greet", "title"), ShouldEqual, "Hi Ada")
			So(h.renders["greet"], ShouldEqual, 1)
			So(h.obs.Slots(h.el("greet")), ShouldResemble, []Slot{
				{Name: "title", Template: "Hi ${name}"},
				{Name: ContentSlot, Template: "Hello, ${name}!"},
			})
		})

		Convey("Elements without the marker are left alone", func() {
			So(h.obs.Active(h.el("later")), ShouldBeFalse)
			So(h.attr("later", "title"), ShouldEqual, "${name}")
			So(h.renders["later"], ShouldEqual, 0)
		})

		Convey("An element without templates is a no-op pass-through", func() {
			So(h.obs.Active(h.el("plain")), ShouldBeTrue)
			So(h.obs.Slots(h.el("plain")), ShouldBeEmpty)
			So(h.doc.InnerHTML(h.el("plain")), ShouldEqual, "static")
			So(h.renders["plain"], ShouldEqual, 0)
		})

		Convey("Writing a new value re-renders every slot of that element only", func() {
			So(h.obs.Data(h.el("greet")).Set("name", "Grace"), ShouldBeNil)

			So(h.doc.InnerHTML(h.el("greet")), ShouldEqual, "Hello, Grace!")
			So(h.attr("greet", "title"), ShouldEqual, "Hi Grace")
			So(h.renders["greet"], ShouldEqual, 2)
			So(h.renders["esc"], ShouldEqual, 1)
		})

		Convey("Writing the value already held does not render", func() {
			So(h.obs.Data(h.el("greet")).Set("name", "Ada"), ShouldBeNil)
			So(h.renders["greet"], ShouldEqual, 1)
		})

		Convey("Each write in a sequence renders on its own", func() {
			store := h.obs.Data(h.el("greet"))
			So(store.Set("name", "Grace"), ShouldBeNil)
			So(store.Set("extra", 1), ShouldBeNil)
			So(store.Set("name", "Ada"), ShouldBeNil)
			So(h.renders["greet"], ShouldEqual, 4)
		})

		Convey("Escaped markers stay literal across renders", func() {
			So(h.doc.InnerHTML(h.el("esc")), ShouldEqual, "Price: ${amount} for Ada")
			So(h.obs.Data(h.el("esc")).Set("name", "Grace"), ShouldBeNil)
			So(h.obs.Data(h.el("esc")).Set("name", "Lin"), ShouldBeNil)
			So(h.doc.InnerHTML(h.el("esc")), ShouldEqual, "Price: ${amount} for Lin")
		})

		Convey("A failing slot aborts the pass for that element only", func() {
			So(errors.Is(h.errs["bad"], ErrUndefined), ShouldBeTrue)
			So(h.attr("bad", "title"), ShouldEqual, "${missing}")
			So(h.attr("bad", "data-x"), ShouldEqual, "${name}")
			So(h.doc.InnerHTML(h.el("bad")), ShouldEqual, "")
			So(h.errs["greet"], ShouldBeNil)

			logs := h.logs.String()
			So(logs, ShouldContainSubstring, "literal render error")
			So(logs, ShouldContainSubstring, "missing is not defined")
			So(logs, ShouldContainSubstring, `<p id="bad">`)

			Convey("and a later write that fixes the data renders everything", func() {
				So(h.obs.Data(h.el("bad")).Set("missing", "now here"), ShouldBeNil)
				So(h.errs["bad"], ShouldBeNil)
				So(h.attr("bad", "title"), ShouldEqual, "now here")
				So(h.attr("bad", "data-x"), ShouldEqual, "Ada")
				So(h.doc.InnerHTML(h.el("bad")), ShouldEqual, "Ada")
			})
		})

		Convey("Removing the marker ends reactivity", func() {
			greet := h.el("greet")
			h.doc.RemoveAttribute(greet, "literal")
			h.doc.Flush()

			So(h.obs.Active(greet), ShouldBeFalse)
			So(h.obs.Slots(greet), ShouldBeNil)

			So(h.obs.Data(greet).Set("name", "Grace"), ShouldBeNil)
			h.doc.SetAttribute(greet, "title", "${name}")
			h.doc.Flush()
			So(h.renders["greet"], ShouldEqual, 1)
			So(h.doc.InnerHTML(greet), ShouldEqual, "Hello, Ada!")

			Convey("and the data is kept for re-activation", func() {
				h.doc.SetAttribute(greet, "literal", "")
				h.doc.Flush()

				So(h.obs.Active(greet), ShouldBeTrue)
				So(h.obs.Slots(greet), ShouldResemble, []Slot{{Name: "title", Template: "${name}"}})
				So(h.attr("greet", "title"), ShouldEqual, "Grace")
				v, _ := h.obs.Data(greet).Get("name")
				So(v, ShouldEqual, "Grace")
			})
		})

		Convey("Re-adding the marker to an active element is idempotent", func() {
			greet := h.el("greet")
			id := h.obs.ID(greet)
			So(id, ShouldNotBeEmpty)

			h.doc.SetAttribute(greet, "literal", "")
			h.doc.SetAttribute(greet, "literal", "again")
			h.doc.Flush()

			So(h.obs.ID(greet), ShouldEqual, id)
			So(h.renders["greet"], ShouldEqual, 1)
			So(h.obs.Slots(greet), ShouldHaveLength, 2)
		})

		Convey("Remove and re-add within one batch keeps the element active", func() {
			greet := h.el("greet")
			h.doc.RemoveAttribute(greet, "literal")
			h.doc.SetAttribute(greet, "literal", "")
			h.doc.Flush()

			So(h.obs.Active(greet), ShouldBeTrue)
			So(h.renders["greet"], ShouldEqual, 1)
		})

		Convey("Adding the marker to an existing element activates it", func() {
			later := h.el("later")
			h.doc.SetAttribute(later, "literal", "")
			h.doc.Flush()

			So(h.obs.Active(later), ShouldBeTrue)
			So(h.attr("later", "title"), ShouldEqual, "Ada")
			So(h.doc.InnerHTML(later), ShouldEqual, "Ada")
		})

		Convey("Inserted subtrees are scanned for markers at any depth", func() {
			_, err := h.doc.AppendHTML(h.doc.Body(),
				`<section id="wrap"><ul><li id="item" literal>${n} items</li></ul></section>`)
			So(err, ShouldBeNil)
			h.doc.Flush()

			item := h.el("item")
			So(h.obs.Active(item), ShouldBeTrue)
			So(errors.Is(h.errs["item"], ErrUndefined), ShouldBeTrue)

			So(h.obs.Data(item).Set("n", 3), ShouldBeNil)
			So(h.doc.InnerHTML(item), ShouldEqual, "3 items")
		})

		Convey("A node inserted and removed before the batch runs is skipped", func() {
			nodes, err := h.doc.AppendHTML(h.doc.Body(), `<p id="gone" literal>${x}</p>`)
			So(err, ShouldBeNil)
			h.doc.RemoveChild(h.doc.Body(), nodes[0])
			h.doc.Flush()

			So(h.obs.Active(nodes[0]), ShouldBeFalse)
		})

		Convey("The store cannot be replaced once bound", func() {
			store, err := NewStore(nil)
			So(err, ShouldBeNil)
			So(h.obs.SetData(h.el("greet"), store), ShouldEqual, ErrStoreBound)
			So(h.obs.SetData(h.el("later"), h.obs.Data(h.el("greet"))), ShouldEqual, ErrStoreBound)
		})

		Convey("Start twice is rejected", func() {
			So(h.obs.Start(), ShouldEqual, ErrAlreadyStarted)
		})

		Convey("Stop forgets templates and ignores further changes", func() {
			h.obs.Stop()
			So(h.obs.Active(h.el("greet")), ShouldBeFalse)

			h.doc.SetAttribute(h.el("later"), "literal", "")
			h.doc.Flush()
			So(h.obs.Active(h.el("later")), ShouldBeFalse)

			So(h.obs.Data(h.el("greet")).Set("name", "Grace"), ShouldBeNil)
			So(h.renders["greet"], ShouldEqual, 1)
		})
	})
}

func TestObserverAttributeAndContentRenderTogether(t *testing.T) {
	Convey("Given an element with a dynamic title and dynamic content", t, func() {
		h := newHarness(`<p id="p" literal title="${a}-${b}">${a} and ${b}</p>`,
			map[string]map[string]any{"p": {"a": 1, "b": 2}})

		var seen []string
		h.doc.Observe(h.doc.Root(), ObserveOptions{Attributes: true, ChildList: true, Subtree: true},
			func(recs []MutationRecord) {
				// by the time any record is seen, the whole pass is done
				seen = append(seen, h.attr("p", "title")+"|"+h.doc.InnerHTML(h.el("p")))
			})
		So(h.obs.Start(), ShouldBeNil)
		h.doc.Flush()

		Convey("One write updates both before any observer runs", func() {
			So(h.obs.Data(h.el("p")).Set("b", 5), ShouldBeNil)
			h.doc.Flush()

			So(seen, ShouldResemble, []string{"1-2|1 and 2", "1-5|1 and 5"})
		})
	})
}

func TestObserverWaitsForReady(t *testing.T) {
	Convey("Given a document that is still loading", t, func() {
		root, err := html.Parse(strings.NewReader(`<p id="p" literal>${v}</p>`))
		So(err, ShouldBeNil)
		doc := NewDocument(root)
		obs := New(doc)
		p := doc.ElementByID("p")
		So(obs.Data(p).Set("v", "ok"), ShouldBeNil)

		So(obs.Start(), ShouldBeNil)
		So(obs.Active(p), ShouldBeFalse)

		Convey("The scan runs on the ready signal", func() {
			doc.MarkReady()
			So(obs.Active(p), ShouldBeTrue)
			So(doc.InnerHTML(p), ShouldEqual, "ok")
		})
	})
}

func TestObserverCustomMarkerAndSanitizer(t *testing.T) {
	Convey("Given a custom marker and a strict sanitizer", t, func() {
		doc, err := Parse(strings.NewReader(`<div id="d" data-live>${html}</div><div id="o" literal>${html}</div>`))
		So(err, ShouldBeNil)
		sanitizer, err := SanitizerFor("strict")
		So(err, ShouldBeNil)

		obs := New(doc, WithMarker("data-live"), WithSanitizer(sanitizer))
		d, o := doc.ElementByID("d"), doc.ElementByID("o")
		So(obs.Data(d).Set("html", `<b>bold</b><script>alert(1)</script>`), ShouldBeNil)
		So(obs.Start(), ShouldBeNil)
		doc.Flush()

		So(obs.Active(d), ShouldBeTrue)
		So(obs.Active(o), ShouldBeFalse)
		So(doc.InnerHTML(d), ShouldEqual, "bold")
	})
}

func TestObserverContentExpressionsWithMarkup(t *testing.T) {
	Convey("Given content with operators that serialization escapes", t, func() {
		h := newHarness(`<p id="p" literal>${n > 1 && "many"} <b>${n}</b></p>`,
			map[string]map[string]any{"p": {"n": 2}})
		So(h.obs.Start(), ShouldBeNil)
		h.doc.Flush()

		So(h.errs["p"], ShouldBeNil)
		So(h.doc.InnerHTML(h.el("p")), ShouldEqual, "many <b>2</b>")
	})
}
