// Package render turns note Markdown into HTML and draws the few pages the
// public routes need.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

type Renderer struct {
	md    goldmark.Markdown
	pages *template.Template
}

// New builds a renderer. Raw HTML inside notes is dropped, not passed
// through.
func New() (*Renderer, error) {
	pages, err := template.New("pages").Parse(pageTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Linkify,
			extension.TaskList,
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)

	return &Renderer{md: md, pages: pages}, nil
}

func (r *Renderer) Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return template.HTML(buf.String()), nil
}

type notePage struct {
	Key  string
	Body template.HTML
}

type promptPage struct {
	Key   string
	Error string
}

func (r *Renderer) Note(w io.Writer, key, content string) error {
	body, err := r.Markdown(content)
	if err != nil {
		return err
	}
	return r.pages.ExecuteTemplate(w, "note", notePage{Key: key, Body: body})
}

// Prompt draws the password form for key. errMsg is shown above the form
// when set.
func (r *Renderer) Prompt(w io.Writer, key, errMsg string) error {
	return r.pages.ExecuteTemplate(w, "prompt", promptPage{Key: key, Error: errMsg})
}

func (r *Renderer) NotFound(w io.Writer, key string) error {
	return r.pages.ExecuteTemplate(w, "notfound", notePage{Key: key})
}

const pageTemplates = `
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>{{.}}</title>
</head>
<body>
{{end}}

{{define "foot"}}
</body>
</html>
{{end}}

{{define "note"}}{{template "head" .Key}}<main class="note">
{{.Body}}
</main>{{template "foot"}}{{end}}

{{define "prompt"}}{{template "head" .Key}}<main class="prompt">
<h1>{{.Key}} is protected</h1>
{{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/{{.Key}}/unlock">
<label for="password">Password</label>
<input id="password" name="password" type="password" autocomplete="current-password" autofocus required>
<button type="submit">Unlock</button>
</form>
</main>{{template "foot"}}{{end}}

{{define "notfound"}}{{template "head" "Not found"}}<main class="notfound">
<h1>Not found</h1>
<p>Nothing is stored under {{.Key}}.</p>
</main>{{template "foot"}}{{end}}
`
