package engine

import (
	htmltemplate "html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// baseFuncs returns the helpers shared by every built-in engine.
// The title caser follows the render locale.
func baseFuncs(locale string, opts Options) map[string]any {
	tag := language.Make(locale)
	if tag == language.Und {
		tag = language.English
	}
	titleCaser := cases.Title(tag)

	funcs := map[string]any{
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"title":     titleCaser.String,
		"trim":      strings.TrimSpace,
		"join":      strings.Join,
		"split":     strings.Split,
		"replace":   strings.ReplaceAll,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"hasSuffix": strings.HasSuffix,
		"now":       time.Now,
		"formatTime": func(format string, t time.Time) string {
			return t.Format(format)
		},
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"mul": func(a, b int) int {
			return a * b
		},
		"div": func(a, b int) int {
			if b == 0 {
				return 0
			}
			return a / b
		},
		"mod": func(a, b int) int {
			if b == 0 {
				return 0
			}
			return a % b
		},
		"default": func(defaultValue, value any) any {
			if value == nil || value == "" {
				return defaultValue
			}
			return value
		},
		"locale": func() string {
			return locale
		},
		// Identity translation until a translator is supplied per call.
		"t": func(key string, _ ...any) string {
			return key
		},
	}

	if opts.AllowUnsafeFunctions {
		funcs["unsafeHTML"] = func(s string) htmltemplate.HTML {
			return htmltemplate.HTML(s) // #nosec G203 -- opt-in only
		}
		funcs["unsafeCSS"] = func(s string) htmltemplate.CSS {
			return htmltemplate.CSS(s) // #nosec G203 -- opt-in only
		}
		funcs["unsafeURL"] = func(s string) htmltemplate.URL {
			return htmltemplate.URL(s) // #nosec G203 -- opt-in only
		}
	}

	return funcs
}

func mergeFuncs(locale string, opts Options, extra map[string]any) map[string]any {
	funcs := baseFuncs(locale, opts)
	for k, v := range extra {
		funcs[k] = v
	}
	return funcs
}
