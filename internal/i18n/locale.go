// Package i18n picks the rendering locale for a call and translates phrases.
package i18n

import (
	"golang.org/x/text/language"
)

// DefaultLocale is used when localization is disabled.
const DefaultLocale = "en"

// Config enables localization. A nil *Config means disabled.
type Config struct {
	DefaultLocale string   `yaml:"default_locale" json:"default_locale"`
	Locales       []string `yaml:"locales" json:"locales"`
	Directory     string   `yaml:"directory" json:"directory"`
}

// Defaults returns the enabled configuration with English only.
func Defaults() *Config {
	return &Config{
		DefaultLocale: DefaultLocale,
		Locales:       []string{DefaultLocale},
		Directory:     "locales",
	}
}

func (c *Config) fallback() string {
	if c == nil || c.DefaultLocale == "" {
		return DefaultLocale
	}
	return c.DefaultLocale
}

// LastLocaler is implemented by user values that remember a locale.
type LastLocaler interface {
	LastLocale() string
}

// ResolveLocale returns the locale for a render. With localization disabled it
// is always DefaultLocale. Otherwise locals["locale"] wins, then
// locals["user"]'s last locale, then cfg.DefaultLocale. Candidates that are
// empty, not strings, or not parseable fall through. When cfg.Locales is set
// the winner is matched to the closest supported locale.
func ResolveLocale(locals map[string]any, cfg *Config) string {
	if cfg == nil {
		return DefaultLocale
	}

	for _, candidate := range []string{
		stringValue(locals["locale"]),
		lastLocale(locals["user"]),
		cfg.DefaultLocale,
	} {
		if candidate == "" {
			continue
		}
		if locale, ok := match(candidate, cfg.Locales); ok {
			return locale
		}
	}
	return cfg.fallback()
}

func match(candidate string, supported []string) (string, bool) {
	tag, err := language.Parse(candidate)
	if err != nil {
		return "", false
	}
	if len(supported) == 0 {
		return candidate, true
	}

	tags := make([]language.Tag, 0, len(supported))
	names := make([]string, 0, len(supported))
	for _, s := range supported {
		t, err := language.Parse(s)
		if err != nil {
			continue
		}
		tags = append(tags, t)
		names = append(names, s)
	}
	if len(tags) == 0 {
		return candidate, true
	}

	_, idx, conf := language.NewMatcher(tags).Match(tag)
	if conf == language.No {
		return "", false
	}
	return names[idx], true
}

func lastLocale(user any) string {
	switch u := user.(type) {
	case nil:
		return ""
	case LastLocaler:
		return u.LastLocale()
	case map[string]any:
		return stringValue(u["last_locale"])
	case map[string]string:
		return u["last_locale"]
	default:
		return ""
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
