package literal

import (
	"go/ast"
	"go/parser"
	"strings"

	"golang.org/x/net/html"
)

// hasLiteral reports whether s contains a ${ that is not preceded by a
// backslash.
func hasLiteral(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '$' && s[i+1] == '{' && (i == 0 || s[i-1] != '\\') {
			return true
		}
	}
	return false
}

type segment struct {
	text string
	src  string
	expr ast.Expr
}

// Template is a parsed interpolated string.
type Template struct {
	src      string
	segments []segment
}

// ParseTemplate parses src as an attribute template.
func ParseTemplate(src string) (*Template, error) {
	return parseTemplate(src, false)
}

// parseTemplate splits src into literal text and ${...} expressions. With
// markup set, expression text is entity-decoded first, since serialized
// element content escapes & < and >.
func parseTemplate(src string, markup bool) (*Template, error) {
	tpl := &Template{src: src}

	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			tpl.segments = append(tpl.segments, segment{text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src) && isTemplateEscape(src[i+1]):
			text.WriteByte(src[i+1])
			i += 2

		case c == '$' && i+1 < len(src) && src[i+1] == '{':
			end, err := scanExpr(src, i+2)
			if err != nil {
				return nil, err
			}

			exprSrc := src[i+2 : end]
			if markup {
				exprSrc = html.UnescapeString(exprSrc)
			}
			trimmed := strings.TrimSpace(exprSrc)
			if trimmed == "" {
				return nil, &ParseError{Template: src, Pos: i, Msg: "empty expression"}
			}

			expr, err := parser.ParseExpr(trimmed)
			if err != nil {
				return nil, &ParseError{Template: src, Pos: i + 2, Msg: "invalid expression " + trimmed, Err: err}
			}

			flush()
			tpl.segments = append(tpl.segments, segment{src: trimmed, expr: expr})
			i = end + 1

		default:
			text.WriteByte(c)
			i++
		}
	}
	flush()

	return tpl, nil
}

func isTemplateEscape(c byte) bool {
	switch c {
	case '$', '{', '}', '\\', '`':
		return true
	}
	return false
}

// scanExpr returns the index of the } closing an expression that starts at
// start. Braces inside quoted literals do not count.
func scanExpr(src string, start int) (int, error) {
	braceStack := 1
	var quote byte

	for i := start; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch c {
			case '\\':
				if quote != '`' {
					i++
				}
			case quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			braceStack++
		case '}':
			braceStack--
			if braceStack == 0 {
				return i, nil
			}
		}
	}

	if quote != 0 {
		return 0, &ParseError{Template: src, Pos: start - 2, Msg: "unclosed quote in expression"}
	}
	return 0, &ParseError{Template: src, Pos: start - 2, Msg: "unclosed brace in expression"}
}

func (t *Template) String() string { return t.src }

// Execute evaluates every expression with vars as the only names in scope.
func (t *Template) Execute(vars map[string]any) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.expr == nil {
			b.WriteString(seg.text)
			continue
		}

		v, err := eval(seg.expr, vars)
		if err != nil {
			return "", &EvalError{Expr: seg.src, Err: err}
		}
		b.WriteString(stringify(v))
	}
	return b.String(), nil
}
