package routes

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachOps/internal/config"
)

const docsIndexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{ .Title }}</title>
  <style>
    body { margin: 0; font-family: Georgia, "Times New Roman", serif; color: #132019; background: #f6f7f4; }
    main { max-width: 960px; margin: 0 auto; padding: 40px 20px; }
    table { width: 100%; border-collapse: collapse; background: #ffffff; }
    th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #d8ddd6; }
    code { font-family: "SFMono-Regular", Menlo, monospace; }
    .method { font-weight: bold; color: #1f6f4a; }
    .muted { color: #536258; }
  </style>
</head>
<body>
<main>
  <h1>{{ .Title }}</h1>
  <p class="muted">Generated {{ .LoadedAt }}. All /api/v1 routes expect a Bearer token carrying user, role and organization.</p>
  <table>
    <thead><tr><th>Method</th><th>Path</th></tr></thead>
    <tbody>
    {{- range .Routes }}
      <tr><td class="method">{{ .Method }}</td><td><code>{{ .Path }}</code></td></tr>
    {{- end }}
    </tbody>
  </table>
</main>
</body>
</html>
`

type docsRoute struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

type docsPageData struct {
	Title    string
	LoadedAt string
	Routes   []docsRoute
}

// registerDocsRoutes serves an index of the API routes registered on app. It
// must run after every other route is mounted.
func registerDocsRoutes(app *fiber.App, cfg *config.Config) error {
	if !cfg.DocsEnabled() {
		return nil
	}

	indexTemplate, err := template.New("docs-index").Parse(docsIndexHTML)
	if err != nil {
		return fmt.Errorf("parse docs template: %w", err)
	}

	routes := collectRoutes(app)
	pageData := docsPageData{
		Title:    "CoachOps API",
		LoadedAt: time.Now().UTC().Format(time.RFC3339),
		Routes:   routes,
	}

	indexHandler := func(c *fiber.Ctx) error {
		applyDocsBaseHeaders(c, fiber.MIMETextHTMLCharsetUTF8)
		c.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'")

		var body bytes.Buffer
		if err := indexTemplate.Execute(&body, pageData); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to render api docs")
		}

		return c.Status(fiber.StatusOK).Send(body.Bytes())
	}

	app.Get("/docs", indexHandler)
	app.Get("/docs/", indexHandler)
	app.Get("/docs/routes.json", func(c *fiber.Ctx) error {
		applyDocsBaseHeaders(c, fiber.MIMEApplicationJSONCharsetUTF8)
		return c.JSON(fiber.Map{"routes": routes})
	})

	return nil
}

func collectRoutes(app *fiber.App) []docsRoute {
	seen := make(map[docsRoute]struct{})
	var routes []docsRoute
	for _, r := range app.GetRoutes(true) {
		if r.Method == fiber.MethodHead || !strings.HasPrefix(r.Path, "/api") {
			continue
		}
		route := docsRoute{Method: r.Method, Path: r.Path}
		if _, ok := seen[route]; ok {
			continue
		}
		seen[route] = struct{}{}
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	return routes
}

func applyDocsBaseHeaders(c *fiber.Ctx, contentType string) {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
	c.Set(fiber.HeaderPragma, "no-cache")
	c.Set(fiber.HeaderExpires, "0")
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set("Referrer-Policy", "no-referrer")
	c.Set("Cross-Origin-Resource-Policy", "same-origin")
	c.Set("X-Robots-Tag", "noindex, nofollow")
}
