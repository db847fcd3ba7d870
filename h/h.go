// Package h is the HTML vocabulary used by clicker views. Elements,
// attributes and text are plain functions returning an [H] node, so a view
// is ordinary Go code.
//
// Example:
//
//	h.Div(
//		h.P(h.Textf("Clicks: %d", n)),
//		h.Button(h.Text("Reset"), h.If(n == 0, h.Disabled())),
//	)
package h

import (
	"io"

	g "maragu.dev/gomponents"
	gc "maragu.dev/gomponents/components"
)

// H is a renderable DOM node: element, attribute or text.
type H interface {
	Render(w io.Writer) error
}

// Text renders t escaped.
func Text(t string) H {
	return g.Text(t)
}

// Textf renders the formatted string escaped.
func Textf(format string, a ...any) H {
	return g.Textf(format, a...)
}

// Raw renders s as is. Never pass user input.
func Raw(s string) H {
	return g.Raw(s)
}

// Attr builds an attribute node. With only a name it is a boolean
// attribute; with a value it renders name="value". More than one value
// panics.
func Attr(name string, value ...string) H {
	return g.Attr(name, value...)
}

// If returns n when condition holds and nil otherwise. nil nodes are
// skipped at render time.
func If(condition bool, n H) H {
	if condition {
		return n
	}
	return nil
}

// HTML5Props describes a full document. Description and Language are
// only rendered when non-empty.
type HTML5Props struct {
	Title       string
	Description string
	Language    string
	Head        []H
	Body        []H
	HTMLAttrs   []H
}

// HTML5 renders a complete document with doctype.
func HTML5(p HTML5Props) H {
	return gc.HTML5(gc.HTML5Props{
		Title:       p.Title,
		Description: p.Description,
		Language:    p.Language,
		Head:        retype(p.Head),
		Body:        retype(p.Body),
		HTMLAttrs:   retype(p.HTMLAttrs),
	})
}

func retype(nodes []H) []g.Node {
	out := make([]g.Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
