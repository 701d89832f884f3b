package ui

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
)

// Image is a single screenshot for display.
type Image struct {
	ID          string
	SourceURL   string
	Owner       string
	Created     string
	Annotations string
}

// writeAll writes each string to w, stopping at the first error.
func writeAll(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

// Layout renders a full HTML page with a title and body component.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		err := writeAll(w,
			"<!DOCTYPE html><html lang=\"en\">",
			"<head><meta charset=\"utf-8\">",
			"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">",
			"<title>", html.EscapeString(title), "</title>",
			// Minimal modern CSS framework (Pico.css) via CDN.
			"<link rel=\"stylesheet\" href=\"https://unpkg.com/@picocss/pico@2/css/pico.min.css\">",
			"</head>",
			"<body><main class=\"container\">",
		)
		if err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		return writeAll(w, "</main></body></html>")
	})
}

func imageURL(id string) string {
	return "/i/" + html.EscapeString(id) + ".png"
}

// IndexPage renders the signed-in user's most recent screenshots.
func IndexPage(user string, images []Image) templ.Component {
	return Layout("screen", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		err := writeAll(w,
			"<section><header><h1>Screenshots</h1>",
			"<p>Signed in as ", html.EscapeString(user), "</p></header>",
		)
		if err != nil {
			return err
		}

		if len(images) == 0 {
			return writeAll(w, "<p>No screenshots yet.</p></section>")
		}

		if err := writeAll(w, "<table><thead><tr><th>Image</th><th>Source</th><th>Created</th></tr></thead><tbody>"); err != nil {
			return err
		}

		for _, img := range images {
			id := html.EscapeString(img.ID)
			row := fmt.Sprintf(
				"<tr><td><a href=\"/%s\"><img src=\"%s\" alt=\"%s\" width=\"160\"></a></td><td>%s</td><td>%s</td></tr>",
				id, imageURL(img.ID), id, html.EscapeString(img.SourceURL), html.EscapeString(img.Created),
			)
			if err := writeAll(w, row); err != nil {
				return err
			}
		}

		return writeAll(w, "</tbody></table></section>")
	}))
}

// ViewerPage renders a single screenshot with its metadata.
func ViewerPage(img Image) templ.Component {
	return Layout("screen - "+img.ID, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		err := writeAll(w,
			"<section><header>",
			"<h1>", html.EscapeString(img.ID), "</h1>",
			"<p><a href=\"/\">&larr; All screenshots</a></p></header>",
			"<figure><img src=\"", imageURL(img.ID), "\" alt=\"", html.EscapeString(img.ID), "\">",
		)
		if err != nil {
			return err
		}

		if img.SourceURL != "" {
			// templ.URL swaps javascript: and other unsafe schemes for an inert URL.
			href := html.EscapeString(string(templ.URL(img.SourceURL)))
			src := html.EscapeString(img.SourceURL)
			if err := writeAll(w, "<figcaption><a href=\"", href, "\" rel=\"noreferrer\">", src, "</a></figcaption>"); err != nil {
				return err
			}
		}

		return writeAll(w,
			"</figure>",
			"<dl><dt>Owner</dt><dd>", html.EscapeString(img.Owner), "</dd>",
			"<dt>Created</dt><dd>", html.EscapeString(img.Created), "</dd></dl>",
			"<details><summary>Annotations</summary><pre>", html.EscapeString(img.Annotations), "</pre></details>",
			"</section>",
		)
	}))
}

// NotFoundPage renders a 404 body for the viewer routes.
func NotFoundPage(id string) templ.Component {
	return Layout("screen - not found", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeAll(w,
			"<section><h1>Screenshot not found</h1>",
			"<p>No screenshot with id <code>", html.EscapeString(id), "</code>.</p>",
			"<p><a href=\"/\">&larr; All screenshots</a></p></section>",
		)
	}))
}
