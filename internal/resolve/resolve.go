// Package resolve maps template names to artifact files on a backing store.
package resolve

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/lattiq/postcard/internal/store"
)

// ErrInvalidName indicates a template name that is empty or escapes the views root.
var ErrInvalidName = errors.New("invalid template name")

// Kind identifies the role of an artifact within a template.
type Kind int

const (
	KindHTML Kind = iota
	KindSubject
	KindText
)

// String returns the artifact file stem for the kind.
func (k Kind) String() string {
	switch k {
	case KindSubject:
		return "subject"
	case KindText:
		return "text"
	default:
		return "html"
	}
}

// KindOf infers the artifact kind from the last element of a template name.
// Anything other than "subject" or "text" renders as HTML.
func KindOf(name string) Kind {
	switch path.Base(name) {
	case "subject":
		return KindSubject
	case "text":
		return KindText
	default:
		return KindHTML
	}
}

// Lookup is the outcome of probing one artifact. Found is false when no
// candidate file exists; Name is always the logical template name.
type Lookup struct {
	Name  string
	Path  string
	Ext   string
	Kind  Kind
	Found bool
}

// Resolution holds the artifacts found for a template name. When Single is
// found the name pointed directly at a file and the other lookups are empty.
type Resolution struct {
	Single  Lookup
	Subject Lookup
	HTML    Lookup
	Text    Lookup
}

// IsSingle reports whether the name resolved directly to one file.
func (r Resolution) IsSingle() bool {
	return r.Single.Found
}

// Empty reports whether nothing was found at all.
func (r Resolution) Empty() bool {
	return !r.Single.Found && !r.Subject.Found && !r.HTML.Found && !r.Text.Found
}

// Resolver probes a store for template artifacts trying each extension in order.
type Resolver struct {
	store      store.Store
	extensions []string
}

// New creates a resolver. Extensions are tried in the given order.
func New(s store.Store, extensions []string) *Resolver {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return &Resolver{store: s, extensions: exts}
}

// Store returns the backing store.
func (r *Resolver) Store() store.Store {
	return r.store
}

// Clean normalizes a template name and rejects names outside the views root.
func Clean(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" {
		return "", ErrInvalidName
	}
	cleaned := path.Clean(strings.TrimPrefix(name, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidName
	}
	return cleaned, nil
}

// Lookup finds the first existing file for name. A name that already carries
// one of the configured extensions is probed as-is first.
func (r *Resolver) Lookup(ctx context.Context, name string) (Lookup, error) {
	cleaned, err := Clean(name)
	if err != nil {
		return Lookup{}, err
	}

	res := Lookup{Name: cleaned, Kind: KindOf(cleaned)}

	if ext := path.Ext(cleaned); ext != "" && r.supports(ext) {
		ok, err := r.store.Exists(ctx, cleaned)
		if err != nil {
			return res, err
		}
		if ok {
			res.Name = strings.TrimSuffix(cleaned, ext)
			res.Kind = KindOf(res.Name)
			res.Path, res.Ext, res.Found = cleaned, ext, true
			return res, nil
		}
	}

	for _, ext := range r.extensions {
		candidate := cleaned + ext
		ok, err := r.store.Exists(ctx, candidate)
		if err != nil {
			return res, err
		}
		if ok {
			res.Path, res.Ext, res.Found = candidate, ext, true
			return res, nil
		}
	}

	// Report the first candidate so not-found errors name a concrete path.
	if len(r.extensions) > 0 {
		res.Path = cleaned + r.extensions[0]
	} else {
		res.Path = cleaned
	}
	return res, nil
}

// Resolve probes name as a single file first, then as a directory holding
// subject, html and text artifacts.
func (r *Resolver) Resolve(ctx context.Context, name string) (Resolution, error) {
	single, err := r.Lookup(ctx, name)
	if err != nil {
		return Resolution{}, err
	}
	if single.Found {
		return Resolution{Single: single}, nil
	}

	var res Resolution
	for _, kind := range []Kind{KindSubject, KindHTML, KindText} {
		l, err := r.Lookup(ctx, path.Join(single.Name, kind.String()))
		if err != nil {
			return Resolution{}, err
		}
		switch kind {
		case KindSubject:
			res.Subject = l
		case KindHTML:
			res.HTML = l
		case KindText:
			res.Text = l
		}
	}
	return res, nil
}

func (r *Resolver) supports(ext string) bool {
	for _, e := range r.extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
