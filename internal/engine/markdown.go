package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/lattiq/postcard/internal/resolve"
)

// Markdown executes the source as a text template and, for HTML artifacts,
// converts the result to HTML. Subject and text artifacts stay Markdown.
type Markdown struct {
	opts Options
	md   goldmark.Markdown
}

// NewMarkdown creates the Markdown engine with GitHub flavored extensions.
// Raw HTML written in the source is passed through; for HTML artifacts,
// values substituted from locals are HTML-escaped first.
func NewMarkdown(opts Options) *Markdown {
	return &Markdown{
		opts: opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Render executes source and converts it.
func (m *Markdown) Render(ctx context.Context, name string, source []byte, kind resolve.Kind, rc Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	funcs := mergeFuncs(rc.Locale, m.opts, rc.Funcs)
	if kind != resolve.KindHTML {
		return renderText(name, source, funcs, rc.Locals)
	}

	out, err := renderHTML(name, source, funcs, rc.Locals)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := m.md.Convert([]byte(out), &buf); err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	return buf.String(), nil
}
