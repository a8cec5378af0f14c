package postcard

import (
	"log/slog"

	"github.com/lattiq/postcard/internal/i18n"
)

// Option is a functional option for configuring an Email instance.
type Option func(*options)

type options struct {
	config    Config
	store     Store
	transport Transport
	engines   map[string]Engine
	logger    *slog.Logger
	err       error
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithOverrides deep-merges overrides into the current configuration.
// Keys follow the YAML field names, for example
// {"juice": {"web_resources": {"images": false}}}.
func WithOverrides(overrides map[string]any) Option {
	return func(o *options) {
		if o.err != nil {
			return
		}
		o.config, o.err = MergeConfig(o.config, overrides)
	}
}

// WithConfigFile deep-merges a YAML or JSON file into the current configuration.
func WithConfigFile(path string) Option {
	return func(o *options) {
		if o.err != nil {
			return
		}
		overrides, err := readOverrides(path)
		if err != nil {
			o.err = err
			return
		}
		o.config, o.err = MergeConfig(o.config, overrides)
	}
}

// WithViewsRoot sets the template directory.
func WithViewsRoot(root string) Option {
	return func(o *options) {
		o.config.Views.Root = root
	}
}

// WithStore reads templates from s instead of the configured store.
func WithStore(s Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithMessage sets the default message fields.
func WithMessage(msg Message) Option {
	return func(o *options) {
		o.config.Message = msg
	}
}

// WithTransport uses t as-is for delivery. It takes precedence over the
// configured transport type.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithTransportConfig selects a built-in transport by type.
func WithTransportConfig(typ string, settings ProviderSettings) Option {
	return func(o *options) {
		o.config.Transport = TransportConfig{Type: typ, Settings: settings}
	}
}

// WithJuice replaces the CSS inlining configuration.
func WithJuice(cfg JuiceConfig) Option {
	return func(o *options) {
		o.config.Juice = cfg
	}
}

// WithHTMLToText enables or disables plain-text derivation.
func WithHTMLToText(enabled bool) Option {
	return func(o *options) {
		o.config.HTMLToText.Enabled = enabled
	}
}

// WithTextOnly skips the HTML body.
func WithTextOnly(enabled bool) Option {
	return func(o *options) {
		o.config.TextOnly = enabled
	}
}

// WithI18n enables localization. A nil config enables it with defaults.
func WithI18n(cfg *I18nConfig) Option {
	return func(o *options) {
		if cfg == nil {
			cfg = i18n.Defaults()
		}
		c := *cfg
		o.config.I18n = &c
	}
}

// WithEngine renders sources with the given extension using e.
func WithEngine(ext string, e Engine) Option {
	return func(o *options) {
		if o.engines == nil {
			o.engines = make(map[string]Engine)
		}
		o.engines[ext] = e
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithoutTracing disables distributed tracing.
func WithoutTracing() Option {
	return func(o *options) {
		o.config.Monitoring.Tracing.Enabled = false
	}
}

// WithSubjectPrefix prepends prefix to every subject.
func WithSubjectPrefix(prefix string) Option {
	return func(o *options) {
		o.config.SubjectPrefix = prefix
	}
}

// WithoutSend composes messages without delivering them.
func WithoutSend() Option {
	return func(o *options) {
		o.config.Send = false
	}
}

// WithSMTP configures the SMTP transport.
func WithSMTP(host, port, username, password string) Option {
	return WithTransportConfig(TransportSMTP, ProviderSettings{
		"host":     host,
		"port":     port,
		"username": username,
		"password": password,
	})
}

// WithAWSSES configures the AWS SES transport.
func WithAWSSES(region string) Option {
	return WithTransportConfig(TransportSES, ProviderSettings{
		"region": region,
	})
}

// WithSendGrid configures the SendGrid transport.
func WithSendGrid(apiKey string) Option {
	return WithTransportConfig(TransportSendGrid, ProviderSettings{
		"api_key": apiKey,
	})
}

// WithMailgun configures the Mailgun transport.
func WithMailgun(apiKey, domain string) Option {
	return WithTransportConfig(TransportMailgun, ProviderSettings{
		"api_key": apiKey,
		"domain":  domain,
	})
}

// WithResend configures the Resend transport.
func WithResend(apiKey string) Option {
	return WithTransportConfig(TransportResend, ProviderSettings{
		"api_key": apiKey,
	})
}

// WithPostmark configures the Postmark transport.
func WithPostmark(serverToken string) Option {
	return WithTransportConfig(TransportPostmark, ProviderSettings{
		"server_token": serverToken,
	})
}

// WithJSONTransport configures the JSON transport, which serializes messages
// instead of delivering them.
func WithJSONTransport() Option {
	return WithTransportConfig(TransportJSON, nil)
}
