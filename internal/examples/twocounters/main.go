// Two independent counters on one page, each backed by its own in-process
// click service mounted under the app's mux.
package main

import (
	"net/http"

	"github.com/ryanhamamura/clicker"
	"github.com/ryanhamamura/clicker/clicksapi"
	"github.com/ryanhamamura/clicker/clickserver"
	"github.com/ryanhamamura/clicker/h"
	"github.com/ryanhamamura/clicker/widget"
)

func main() {
	app := clicker.New()
	app.Config(clicker.Options{
		DevMode:       true,
		DocumentTitle: "Two Counters",
		LogLevel:      clicker.LogLevelDebug,
		ServerAddress: ":3000",
	})

	left := mountService(app, "/left")
	right := mountService(app, "/right")

	app.Page("/", func(c *clicker.Context) {
		counter1 := c.Component(widget.Component(left))
		counter2 := c.Component(widget.Component(right))

		c.View(func() h.H {
			return h.Main(
				h.Section(h.H1(h.Text("Counter 1")), counter1()),
				h.Section(h.H1(h.Text("Counter 2")), counter2()),
			)
		})
	})

	app.Start()
}

func mountService(app *clicker.App, prefix string) *clicksapi.Client {
	srv, err := clickserver.New(clickserver.NewMemoryStore(), clickserver.WithLogger(app.Logger()))
	if err != nil {
		l := app.Logger()
		l.Fatal().Err(err).Str("prefix", prefix).Msg("failed to create click service")
	}
	// method-qualified so the patterns do not collide with the "GET /" page
	handler := http.StripPrefix(prefix, srv)
	app.HTTPServeMux().Handle("GET "+prefix+"/", handler)
	app.HTTPServeMux().Handle("POST "+prefix+"/", handler)
	return clicksapi.New("http://localhost:3000" + prefix)
}
