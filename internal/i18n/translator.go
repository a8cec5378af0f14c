package i18n

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lattiq/postcard/internal/store"
)

var phraseExtensions = []string{".yaml", ".yml", ".json"}

// Translator holds phrase tables keyed by locale.
// It is read-only after construction and safe for concurrent use.
type Translator struct {
	fallback string
	phrases  map[string]map[string]string
}

// LoadTranslator reads <dir>/<locale>.{yaml,yml,json} for every configured
// locale from s. Locales without a phrase file translate keys to themselves.
func LoadTranslator(ctx context.Context, s store.Store, cfg *Config) (*Translator, error) {
	tr := &Translator{fallback: cfg.fallback(), phrases: make(map[string]map[string]string)}
	if cfg == nil {
		return tr, nil
	}

	locales := append([]string{cfg.fallback()}, cfg.Locales...)
	for _, locale := range locales {
		if _, done := tr.phrases[locale]; done {
			continue
		}
		table, err := loadPhrases(ctx, s, cfg.Directory, locale)
		if err != nil {
			return nil, err
		}
		tr.phrases[locale] = table
	}
	return tr, nil
}

// NewTranslator builds a translator from in-memory tables.
func NewTranslator(fallback string, phrases map[string]map[string]string) *Translator {
	if fallback == "" {
		fallback = DefaultLocale
	}
	tr := &Translator{fallback: fallback, phrases: make(map[string]map[string]string, len(phrases))}
	for locale, table := range phrases {
		tr.phrases[locale] = table
	}
	return tr
}

func loadPhrases(ctx context.Context, s store.Store, dir, locale string) (map[string]string, error) {
	for _, ext := range phraseExtensions {
		name := path.Join(dir, locale+ext)
		data, err := s.ReadFile(ctx, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		// JSON is a subset of YAML.
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.Location(name), err)
		}
		table := make(map[string]string)
		flatten("", raw, table)
		return table, nil
	}
	return map[string]string{}, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// T translates key for locale. Region subtags fall back to the base language,
// then to the default locale, then to the key itself. Args are applied with
// fmt verbs when present.
func (tr *Translator) T(locale, key string, args ...any) string {
	phrase, ok := tr.lookup(locale, key)
	if !ok {
		phrase = key
	}
	if len(args) > 0 {
		return fmt.Sprintf(phrase, args...)
	}
	return phrase
}

// Has reports whether locale or its fallbacks define key.
func (tr *Translator) Has(locale, key string) bool {
	_, ok := tr.lookup(locale, key)
	return ok
}

// Func returns the template helper bound to locale.
func (tr *Translator) Func(locale string) func(key string, args ...any) string {
	return func(key string, args ...any) string {
		return tr.T(locale, key, args...)
	}
}

func (tr *Translator) lookup(locale, key string) (string, bool) {
	if tr == nil {
		return "", false
	}
	candidates := []string{locale}
	if base, _, found := strings.Cut(locale, "-"); found {
		candidates = append(candidates, base)
	}
	candidates = append(candidates, tr.fallback)

	for _, c := range candidates {
		if phrase, ok := tr.phrases[c][key]; ok {
			return phrase, true
		}
	}
	return "", false
}
