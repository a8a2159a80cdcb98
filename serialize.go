package literal

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "\u00a0", "&nbsp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "\u00a0", "&nbsp;", `"`, "&quot;")
)

func serializeChildren(w io.StringWriter, node *html.Node) error {
	// https://html.spec.whatwg.org/multipage/parsing.html
	if c := node.FirstChild; c != nil && c.Type == html.TextNode && strings.HasPrefix(c.Data, "\n") {
		switch node.Data {
		case "pre", "listing", "textarea":
			if _, err := w.WriteString("\n"); err != nil {
				return err
			}
		}
	}

	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if err := serialize(w, c); err != nil {
			return err
		}
	}
	return nil
}

func serialize(w io.StringWriter, node *html.Node) error {
	switch node.Type {
	case html.DocumentNode:
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if err := serialize(w, c); err != nil {
				return err
			}
		}
		return nil

	case html.DoctypeNode:
		_, err := w.WriteString("<!DOCTYPE " + node.Data + ">")
		return err

	case html.CommentNode:
		_, err := w.WriteString("<!--" + node.Data + "-->")
		return err

	case html.TextNode:
		if p := node.Parent; p != nil && p.Type == html.ElementNode && isChildNodeRawText(p.Data) {
			_, err := w.WriteString(node.Data)
			return err
		}
		_, err := w.WriteString(textEscaper.Replace(node.Data))
		return err

	case html.ElementNode:
		if _, err := w.WriteString("<" + node.Data); err != nil {
			return err
		}

		for _, attr := range node.Attr {
			if _, err := w.WriteString(" "); err != nil {
				return err
			}
			if attr.Namespace != "" {
				if _, err := w.WriteString(attr.Namespace + ":"); err != nil {
					return err
				}
			}
			if _, err := w.WriteString(attr.Key + `="` + attrEscaper.Replace(attr.Val) + `"`); err != nil {
				return err
			}
		}

		if _, err := w.WriteString(">"); err != nil {
			return err
		}

		// https://html.spec.whatwg.org/#void-elements
		if isVoidElement(node.Data) {
			return nil
		}

		if err := serializeChildren(w, node); err != nil {
			return err
		}

		_, err := w.WriteString("</" + node.Data + ">")
		return err
	}

	return nil
}

// https://html.spec.whatwg.org/#void-elements
func isVoidElement(name string) bool {
	switch name {
	case "area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "source", "track", "wbr":
		return true
	}
	return false
}

// https://html.spec.whatwg.org/#serialising-html-fragments
func isChildNodeRawText(name string) bool {
	switch name {
	case "style", "script", "xmp", "iframe", "noembed", "noframes", "plaintext", "noscript":
		return true
	}
	return false
}
