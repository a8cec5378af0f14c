package postcard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/lattiq/postcard/internal/i18n"
	"github.com/lattiq/postcard/internal/merge"
	"github.com/lattiq/postcard/internal/providers"
)

// Config holds the complete configuration of an Email instance.
// It is copied on construction and never modified afterwards.
type Config struct {
	// Views configures where and how templates are found.
	Views ViewsConfig `yaml:"views"`

	// Message holds default message fields. Per-call fields win over them.
	Message Message `yaml:"message"`

	// Transport selects a built-in transport. Ignored when WithTransport is used.
	Transport TransportConfig `yaml:"transport"`

	// Juice configures CSS inlining and image embedding.
	Juice JuiceConfig `yaml:"juice"`

	// HTMLToText configures plain-text derivation from the HTML body.
	HTMLToText HTMLToTextConfig `yaml:"html_to_text"`

	// TextOnly skips the HTML body entirely.
	TextOnly bool `yaml:"text_only" env:"POSTCARD_TEXT_ONLY"`

	// SubjectPrefix is prepended to every subject.
	SubjectPrefix string `yaml:"subject_prefix" env:"POSTCARD_SUBJECT_PREFIX"`

	// Send delivers through the transport. When false, Send returns the
	// JSON form of the composed message without delivering it.
	Send bool `yaml:"send" env:"POSTCARD_SEND"`

	// I18n enables locale resolution and phrase translation. Nil disables it.
	I18n *I18nConfig `yaml:"i18n,omitempty"`

	// Monitoring contains observability configuration.
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// I18nConfig configures localization.
type I18nConfig = i18n.Config

// ViewsConfig contains template lookup configuration.
type ViewsConfig struct {
	// Root is the template directory, or the key prefix for the s3 store.
	Root string `yaml:"root" env:"POSTCARD_VIEWS_ROOT"`

	// Extensions are tried in order when resolving an artifact.
	Extensions []string `yaml:"extensions" env:"POSTCARD_VIEWS_EXTENSIONS"`

	// Locals are default template variables. Per-call locals win over them.
	Locals map[string]any `yaml:"locals,omitempty"`

	// Store selects the backing store.
	Store StoreConfig `yaml:"store"`

	// AllowUnsafeFunctions enables template helpers that bypass auto-escaping.
	// WARNING: Only enable this if you trust all template content completely.
	AllowUnsafeFunctions bool `yaml:"allow_unsafe_functions"`
}

// Store types.
const (
	StoreDir = "dir"
	StoreS3  = "s3"
)

// StoreConfig selects where template sources are read from.
type StoreConfig struct {
	Type   string `yaml:"type" env:"POSTCARD_VIEWS_STORE"`
	Bucket string `yaml:"bucket,omitempty" env:"POSTCARD_S3_BUCKET"`
	Region string `yaml:"region,omitempty" env:"POSTCARD_S3_REGION"`
}

// TransportConfig names a built-in transport and its settings.
type TransportConfig struct {
	Type     string           `yaml:"type,omitempty" env:"POSTCARD_TRANSPORT"`
	Settings ProviderSettings `yaml:"settings,omitempty" env:"POSTCARD_TRANSPORT_SETTINGS"`
}

// JuiceConfig controls CSS inlining.
type JuiceConfig struct {
	Enabled           bool               `yaml:"enabled" env:"POSTCARD_JUICE"`
	PreserveImportant bool               `yaml:"preserve_important"`
	WebResources      WebResourcesConfig `yaml:"web_resources"`
}

// WebResourcesConfig controls which local resources the inliner pulls in.
type WebResourcesConfig struct {
	Images     bool   `yaml:"images"`
	Links      bool   `yaml:"links"`
	RelativeTo string `yaml:"relative_to"`
}

// HTMLToTextConfig controls plain-text derivation.
type HTMLToTextConfig struct {
	Enabled      bool `yaml:"enabled" env:"POSTCARD_HTML_TO_TEXT"`
	PrettyTables bool `yaml:"pretty_tables"`
	OmitLinks    bool `yaml:"omit_links"`
}

// MonitoringConfig contains observability configuration.
type MonitoringConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Views: ViewsConfig{
			Root:       "emails",
			Extensions: []string{".tmpl", ".html", ".md", ".txt"},
			Store:      StoreConfig{Type: StoreDir},
		},
		Juice: JuiceConfig{
			Enabled:           true,
			PreserveImportant: true,
			WebResources: WebResourcesConfig{
				Images:     true,
				Links:      true,
				RelativeTo: "build",
			},
		},
		HTMLToText: HTMLToTextConfig{
			Enabled: true,
		},
		Send: true,
		Monitoring: MonitoringConfig{
			Tracing: TracingConfig{Enabled: true},
		},
	}
}

// Validate checks if the configuration is valid and complete.
func (c *Config) Validate() error {
	if len(c.Views.Extensions) == 0 {
		return &ValidationError{
			Field:   "views.extensions",
			Message: "at least one extension is required",
		}
	}

	switch c.Views.Store.Type {
	case StoreDir:
		if strings.TrimSpace(c.Views.Root) == "" {
			return &ValidationError{
				Field:   "views.root",
				Message: "root is required for the dir store",
			}
		}
	case StoreS3:
		if c.Views.Store.Bucket == "" {
			return &ValidationError{
				Field:   "views.store.bucket",
				Message: "bucket is required for the s3 store",
			}
		}
	default:
		return &ValidationError{
			Field:   "views.store.type",
			Message: "invalid or unsupported store type",
			Value:   c.Views.Store.Type,
		}
	}

	if c.Transport.Type != "" && !providers.IsSupported(c.Transport.Type) {
		return &ValidationError{
			Field:   "transport.type",
			Message: "invalid or unsupported transport type",
			Value:   c.Transport.Type,
		}
	}

	if c.I18n != nil {
		for _, locale := range append([]string{c.I18n.DefaultLocale}, c.I18n.Locales...) {
			if locale == "" {
				continue
			}
			if _, err := language.Parse(locale); err != nil {
				return &ValidationError{
					Field:   "i18n.locales",
					Message: "invalid locale tag",
					Value:   locale,
				}
			}
		}
	}

	return nil
}

// normalize fills derived values after all options were applied.
func (c *Config) normalize() error {
	if c.Juice.WebResources.RelativeTo != "" {
		abs, err := filepath.Abs(c.Juice.WebResources.RelativeTo)
		if err != nil {
			return fmt.Errorf("resolve juice.web_resources.relative_to: %w", err)
		}
		c.Juice.WebResources.RelativeTo = abs
	}

	if c.I18n != nil {
		defaults := i18n.Defaults()
		cfg := *c.I18n
		if cfg.DefaultLocale == "" {
			cfg.DefaultLocale = defaults.DefaultLocale
		}
		if len(cfg.Locales) == 0 {
			cfg.Locales = []string{cfg.DefaultLocale}
		}
		if cfg.Directory == "" {
			cfg.Directory = defaults.Directory
		}
		c.I18n = &cfg
	}
	return nil
}

// MergeConfig deep-merges overrides into base. Nested mappings merge key by
// key, anything else in overrides replaces the base value, and keys absent
// from overrides keep their base value. Keys follow the YAML field names.
func MergeConfig(base Config, overrides map[string]any) (Config, error) {
	if len(overrides) == 0 {
		return base, nil
	}

	raw, err := yaml.Marshal(base)
	if err != nil {
		return Config{}, fmt.Errorf("encode config: %w", err)
	}
	var defaults map[string]any
	if err := yaml.Unmarshal(raw, &defaults); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	merged, err := yaml.Marshal(merge.Merge(defaults, overrides))
	if err != nil {
		return Config{}, fmt.Errorf("encode merged config: %w", err)
	}
	var out Config
	if err := yaml.Unmarshal(merged, &out); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return out, nil
}

// LoadConfigFile reads a YAML or JSON file and merges it over DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	overrides, err := readOverrides(path)
	if err != nil {
		return Config{}, err
	}
	return MergeConfig(DefaultConfig(), overrides)
}

func readOverrides(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var overrides map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfiguration, path, err)
	}
	return overrides, nil
}

// LoadEnv applies POSTCARD_* environment variables to cfg.
// Unset variables leave the corresponding fields untouched.
func LoadEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return nil
}
