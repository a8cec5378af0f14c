// Package inline moves stylesheet rules into style attributes and embeds
// local images as inline attachments so that HTML renders in mail clients.
package inline

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"

	"github.com/lattiq/postcard/internal/core"
)

// Options controls the inliner.
type Options struct {
	// PreserveImportant keeps "!important" on inlined declarations.
	PreserveImportant bool

	// Images embeds local and data: image sources as inline attachments.
	Images bool

	// Links inlines local <link rel="stylesheet"> files.
	Links bool

	// RelativeTo is the directory local resources are resolved against.
	RelativeTo string
}

// Result is the processed HTML and the inline attachments it references.
type Result struct {
	HTML        string
	Attachments []core.Attachment
}

// Inliner is stateless and safe for concurrent use.
type Inliner struct {
	opts Options
}

// New creates an inliner.
func New(opts Options) *Inliner {
	return &Inliner{opts: opts}
}

// Options returns the inliner options.
func (in *Inliner) Options() Options {
	return in.opts
}

// Process inlines CSS and, when enabled, rewrites image sources to cid: references.
func (in *Inliner) Process(ctx context.Context, src string) (Result, error) {
	if strings.TrimSpace(src) == "" {
		return Result{HTML: src}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}

	sheets := in.collectStyles(doc)
	residual, err := in.applyStyles(doc, sheets)
	if err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var attachments []core.Attachment
	if in.opts.Images {
		attachments = in.embedImages(doc)
	}

	out, err := render(doc, residual, isFragment(src))
	if err != nil {
		return Result{}, err
	}
	return Result{HTML: out, Attachments: attachments}, nil
}

// collectStyles removes <style> blocks and local stylesheet links in document
// order and returns their CSS. Blocks marked data-embed stay in place.
func (in *Inliner) collectStyles(doc *goquery.Document) []string {
	var sheets []string
	doc.Find("style, link").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "style" {
			if _, ok := s.Attr("data-embed"); ok {
				return
			}
			sheets = append(sheets, s.Text())
			s.Remove()
			return
		}

		if !in.opts.Links || !strings.Contains(strings.ToLower(s.AttrOr("rel", "")), "stylesheet") {
			return
		}
		data, ok := in.readLocal(s.AttrOr("href", ""))
		if !ok {
			return
		}
		sheets = append(sheets, string(data))
		s.Remove()
	})
	return sheets
}

type declaration struct {
	property    string
	value       string
	important   bool
	inline      bool
	specificity cascadia.Specificity
	order       int
}

// outranks reports whether a wins over b: important first, then inline style,
// then specificity, then source order.
func outranks(a, b declaration) bool {
	if a.important != b.important {
		return a.important
	}
	if a.inline != b.inline {
		return a.inline
	}
	if a.specificity != b.specificity {
		return b.specificity.Less(a.specificity)
	}
	return a.order > b.order
}

// applyStyles writes matched declarations to style attributes and returns
// the rules that cannot be inlined.
func (in *Inliner) applyStyles(doc *goquery.Document, sheets []string) ([]string, error) {
	root := doc.Nodes[0]
	styles := make(map[*html.Node][]declaration)
	var targets []*html.Node
	var residual []string
	order := 0

	for _, text := range sheets {
		sheet, err := parser.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse css: %w", err)
		}

		for _, rule := range sheet.Rules {
			if rule.Kind == css.AtRule {
				residual = append(residual, rule.String())
				continue
			}

			base := order
			order += len(rule.Declarations)

			var keep []string
			for _, selector := range rule.Selectors {
				sel, ok := compile(selector)
				if !ok {
					keep = append(keep, selector)
					continue
				}
				for _, n := range cascadia.QueryAll(root, sel) {
					if _, seen := styles[n]; !seen {
						targets = append(targets, n)
					}
					for i, d := range rule.Declarations {
						styles[n] = append(styles[n], declaration{
							property:    d.Property,
							value:       d.Value,
							important:   d.Important,
							specificity: sel.Specificity(),
							order:       base + i,
						})
					}
				}
			}

			if len(keep) > 0 {
				kept := &css.Rule{
					Kind:         css.QualifiedRule,
					Prelude:      strings.Join(keep, ", "),
					Selectors:    keep,
					Declarations: rule.Declarations,
				}
				residual = append(residual, kept.String())
			}
		}
	}

	for _, n := range targets {
		decls := styles[n]
		if existing, ok := attr(n, "style"); ok && strings.TrimSpace(existing) != "" {
			inlineDecls, ok := parseInline(existing, order)
			if !ok {
				// Leave unparseable inline styles untouched.
				continue
			}
			order += len(inlineDecls)
			decls = append(decls, inlineDecls...)
		}
		setAttr(n, "style", formatStyle(decls, in.opts.PreserveImportant))
	}

	if !in.opts.PreserveImportant {
		stripImportant(root, styles)
	}

	return residual, nil
}

// parseInline parses a style attribute. The final declaration may omit its
// semicolon; declarations without a value are dropped.
func parseInline(style string, order int) ([]declaration, bool) {
	style = strings.TrimSpace(style)
	if !strings.HasSuffix(style, ";") {
		style += ";"
	}
	parsed, err := parser.ParseDeclarations(style)
	if err != nil {
		return nil, false
	}
	decls := make([]declaration, 0, len(parsed))
	for _, d := range parsed {
		if strings.TrimSpace(d.Value) == "" {
			continue
		}
		order++
		decls = append(decls, declaration{
			property:  d.Property,
			value:     d.Value,
			important: d.Important,
			inline:    true,
			order:     order,
		})
	}
	return decls, true
}

// stripImportant rewrites style attributes that no stylesheet rule touched
// so that "!important" is removed from them as well.
func stripImportant(root *html.Node, styled map[*html.Node][]declaration) {
	sel := cascadia.MustCompile("[style]")
	for _, n := range cascadia.QueryAll(root, sel) {
		if _, done := styled[n]; done {
			continue
		}
		existing, _ := attr(n, "style")
		if !strings.Contains(strings.ToLower(existing), "!important") {
			continue
		}
		decls, ok := parseInline(existing, 0)
		if !ok {
			continue
		}
		setAttr(n, "style", formatStyle(decls, false))
	}
}

// dynamicPseudo lists pseudo-classes that depend on user interaction.
var dynamicPseudo = []string{":hover", ":active", ":focus", ":visited", ":target"}

func compile(selector string) (cascadia.Sel, bool) {
	lower := strings.ToLower(selector)
	for _, p := range dynamicPseudo {
		if strings.Contains(lower, p) {
			return nil, false
		}
	}
	sel, err := cascadia.Parse(selector)
	if err != nil || sel.PseudoElement() != "" {
		return nil, false
	}
	return sel, true
}

func formatStyle(decls []declaration, preserveImportant bool) string {
	sort.SliceStable(decls, func(i, j int) bool {
		return outranks(decls[j], decls[i])
	})

	winners := make(map[string]declaration, len(decls))
	var props []string
	for _, d := range decls {
		prop := strings.ToLower(d.property)
		if _, ok := winners[prop]; !ok {
			props = append(props, prop)
		}
		winners[prop] = d
	}

	parts := make([]string, 0, len(props))
	for _, prop := range props {
		d := winners[prop]
		if d.important && preserveImportant {
			parts = append(parts, fmt.Sprintf("%s: %s !important;", prop, d.value))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s;", prop, d.value))
	}
	return strings.Join(parts, " ")
}

// readLocal reads a local resource relative to RelativeTo. Remote, cid: and
// data: references, and files that cannot be read, are reported as absent.
func (in *Inliner) readLocal(ref string) ([]byte, bool) {
	p, ok := in.localPath(ref)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (in *Inliner) localPath(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "//") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	return filepath.Join(in.opts.RelativeTo, filepath.FromSlash(u.Path)), true
}

func isFragment(src string) bool {
	lower := strings.ToLower(src)
	return !strings.Contains(lower, "<html") &&
		!strings.Contains(lower, "<!doctype") &&
		!strings.Contains(lower, "<body")
}

func render(doc *goquery.Document, residual []string, fragment bool) (string, error) {
	var block string
	if len(residual) > 0 {
		block = "<style>" + strings.Join(residual, "\n") + "</style>"
	}

	if fragment {
		// The parser hoists style and link elements into the synthesized head.
		head, err := doc.Find("head").Html()
		if err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
		body, err := doc.Find("body").Html()
		if err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
		return head + block + body, nil
	}

	if block != "" {
		doc.Find("head").AppendHtml(block)
	}
	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
