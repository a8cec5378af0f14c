// Package engine renders template sources into strings.
//
// Engines are selected by the source file extension. The built-in engines are
// Go's html/template and text/template, and a Markdown engine that runs the
// source through text/template before converting it to HTML with goldmark.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lattiq/postcard/internal/resolve"
)

// Context carries the per-call data handed to an engine.
type Context struct {
	// Locals is the template data. It already contains the "locale" key.
	Locals map[string]any

	// Locale is the resolved rendering locale.
	Locale string

	// Funcs are per-call helpers merged over the engine's base helpers.
	Funcs map[string]any
}

// Engine renders one template source.
// Implementations must be safe for concurrent use.
type Engine interface {
	Render(ctx context.Context, name string, source []byte, kind resolve.Kind, rc Context) (string, error)
}

// Func adapts a plain function to the Engine interface.
type Func func(ctx context.Context, name string, source []byte, kind resolve.Kind, rc Context) (string, error)

// Render calls f.
func (f Func) Render(ctx context.Context, name string, source []byte, kind resolve.Kind, rc Context) (string, error) {
	return f(ctx, name, source, kind, rc)
}

// Options configures the built-in engines.
type Options struct {
	// AllowUnsafeFunctions enables helpers that bypass html/template escaping.
	AllowUnsafeFunctions bool
}

// Registry maps source extensions (with leading dot) to engines.
type Registry map[string]Engine

// Defaults returns the built-in engines.
func Defaults(opts Options) Registry {
	gotmpl := NewGoTemplate(opts)
	return Registry{
		".tmpl": gotmpl,
		".html": gotmpl,
		".txt":  NewText(opts),
		".md":   NewMarkdown(opts),
	}
}

// Lookup returns the engine registered for ext.
func (r Registry) Lookup(ext string) (Engine, error) {
	if e, ok := r[strings.ToLower(ext)]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("no engine registered for extension %q", ext)
}

// Clone returns a shallow copy of the registry.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
