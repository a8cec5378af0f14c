// Package htmltext derives a plain-text body from an HTML body.
package htmltext

import (
	"fmt"
	"strings"

	"github.com/jaytaylor/html2text"
)

// Options controls the conversion.
type Options struct {
	// PrettyTables renders tables with ASCII borders.
	PrettyTables bool

	// OmitLinks drops link targets and keeps only the link text.
	OmitLinks bool
}

// Derive converts html to plain text.
func Derive(html string, opts Options) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	text, err := html2text.FromString(html, html2text.Options{
		PrettyTables: opts.PrettyTables,
		OmitLinks:    opts.OmitLinks,
	})
	if err != nil {
		return "", fmt.Errorf("html to text: %w", err)
	}
	return text, nil
}
