package api

import (
	"bytes"
	"html/template"
)

type docsLink struct {
	Href  string
	Label string
}

var docsTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { height: 100vh; margin: 0; display: flex; flex-direction: column; }
    nav { display: flex; gap: 8px; padding: 8px 16px; background: #0d1117; border-bottom: 1px solid #30363d; }
    nav a { color: #58a6ff; font: 500 12px -apple-system, BlinkMacSystemFont, sans-serif; text-decoration: none; }
    elements-api { flex: 1; min-height: 0; }
  </style>
</head>
<body>
  <nav>{{range .Links}}<a href="{{.Href}}">{{.Label}}</a>{{end}}</nav>
  <elements-api apiDescriptionUrl="/openapi.json" router="hash" layout="sidebar" tryItCredentialsPolicy="same-origin" darkMode />
</body>
</html>`))

// docsLinks lists the operator surfaces mounted next to the API.
func docsLinks(opts Options) []docsLink {
	links := []docsLink{{Href: "/health", Label: "Health"}, {Href: "/openapi.json", Label: "OpenAPI"}}
	if opts.Metrics != nil {
		links = append(links, docsLink{Href: "/metrics", Label: "Metrics"})
	}
	if opts.Broker != nil {
		links = append(links, docsLink{Href: "/api/v1/relay/events", Label: "Relay events (SSE)"})
	}
	return links
}

func renderDocs(title string, links []docsLink) []byte {
	var buf bytes.Buffer
	if err := docsTemplate.Execute(&buf, struct {
		Title string
		Links []docsLink
	}{title, links}); err != nil {
		return []byte(err.Error())
	}
	return buf.Bytes()
}
