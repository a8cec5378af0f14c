package engine

import (
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/lattiq/postcard/internal/resolve"
)

// GoTemplate renders HTML artifacts with html/template and everything else
// with text/template. Subjects and plain text bodies must not be HTML-escaped.
type GoTemplate struct {
	opts Options
}

// NewGoTemplate creates the Go template engine.
func NewGoTemplate(opts Options) *GoTemplate {
	return &GoTemplate{opts: opts}
}

// Render parses and executes source.
func (g *GoTemplate) Render(ctx context.Context, name string, source []byte, kind resolve.Kind, rc Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if kind == resolve.KindHTML {
		return renderHTML(name, source, mergeFuncs(rc.Locale, g.opts, rc.Funcs), rc.Locals)
	}
	return renderText(name, source, mergeFuncs(rc.Locale, g.opts, rc.Funcs), rc.Locals)
}

// Text renders every artifact with text/template.
type Text struct {
	opts Options
}

// NewText creates the plain text engine.
func NewText(opts Options) *Text {
	return &Text{opts: opts}
}

// Render parses and executes source.
func (t *Text) Render(ctx context.Context, name string, source []byte, _ resolve.Kind, rc Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return renderText(name, source, mergeFuncs(rc.Locale, t.opts, rc.Funcs), rc.Locals)
}

func renderHTML(name string, source []byte, funcs map[string]any, data any) (string, error) {
	tmpl, err := htmltemplate.New(name).Funcs(htmltemplate.FuncMap(funcs)).Parse(string(source))
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	return buf.String(), nil
}

func renderText(name string, source []byte, funcs map[string]any, data any) (string, error) {
	tmpl, err := texttemplate.New(name).Funcs(texttemplate.FuncMap(funcs)).Parse(string(source))
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	return buf.String(), nil
}
