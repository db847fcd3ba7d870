package h

import (
	gh "maragu.dev/gomponents/html"
)

func ID(v string) H { return gh.ID(v) }

func Class(v string) H { return gh.Class(v) }

func Type(v string) H { return gh.Type(v) }

func Src(v string) H { return gh.Src(v) }

func Href(v string) H { return gh.Href(v) }

func Rel(v string) H { return gh.Rel(v) }

// Style sets the inline style attribute.
func Style(v string) H { return gh.Style(v) }

func Disabled() H { return gh.Disabled() }

// Data renders a data-* attribute. Datastar reads its directives from
// these, e.g. Data("on:click", "@get('/x')").
func Data(name, v string) H { return gh.Data(name, v) }
