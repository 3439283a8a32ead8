package web

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Endpoint is one row of the API table on the index page.
type Endpoint struct {
	Method      string
	Path        string
	Description string
}

type IndexData struct {
	YtDlpAvailable bool
	YtDlpVersion   string
	Endpoints      []Endpoint
}

// IndexPage renders the service landing page.
func IndexPage(data IndexData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>audiolyrics</title></head><body><main><h1>audiolyrics</h1>`); err != nil {
			return err
		}
		if err := ytDlpStatus(data).Render(ctx, w); err != nil {
			return err
		}
		if err := endpointTable(data.Endpoints).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func ytDlpStatus(data IndexData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var err error
		if data.YtDlpAvailable {
			_, err = fmt.Fprintf(w, `<p class="status ok">yt-dlp %s available</p>`, templ.EscapeString(data.YtDlpVersion))
		} else {
			_, err = io.WriteString(w, `<p class="status missing">yt-dlp not found: audio extraction is disabled</p>`)
		}
		return err
	})
}

func endpointTable(endpoints []Endpoint) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(endpoints) == 0 {
			return nil
		}
		if _, err := io.WriteString(w, `<table><thead><tr><th>Method</th><th>Path</th><th>Description</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, e := range endpoints {
			if _, err := fmt.Fprintf(w, `<tr><td>%s</td><td><code>%s</code></td><td>%s</td></tr>`,
				templ.EscapeString(e.Method), templ.EscapeString(e.Path), templ.EscapeString(e.Description)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}
