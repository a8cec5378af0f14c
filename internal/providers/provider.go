// Package providers builds the built-in delivery transports by name.
package providers

import (
	"context"
	"log/slog"
	"sort"

	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/providers/file"
	"github.com/lattiq/postcard/internal/providers/jsontransport"
	"github.com/lattiq/postcard/internal/providers/mailgun"
	"github.com/lattiq/postcard/internal/providers/postmark"
	"github.com/lattiq/postcard/internal/providers/resend"
	"github.com/lattiq/postcard/internal/providers/sendgrid"
	"github.com/lattiq/postcard/internal/providers/ses"
	"github.com/lattiq/postcard/internal/providers/smtp"
)

// Built-in transport types.
const (
	TypeJSON     = "json"
	TypeFile     = "file"
	TypeSMTP     = "smtp"
	TypeSES      = "aws_ses"
	TypeSendGrid = "sendgrid"
	TypeMailgun  = "mailgun"
	TypeResend   = "resend"
	TypePostmark = "postmark"
)

// Options are shared by every built-in transport.
type Options struct {
	// UserAgent is set on messages for transports that build MIME themselves.
	UserAgent string

	// Logger receives transport diagnostics.
	Logger *slog.Logger
}

// Factory constructs a transport from its settings.
type Factory func(ctx context.Context, settings core.ProviderSettings, opts Options) (core.Transport, error)

var factories = map[string]Factory{
	TypeJSON: func(_ context.Context, _ core.ProviderSettings, _ Options) (core.Transport, error) {
		return jsontransport.New(), nil
	},
	TypeFile: func(_ context.Context, s core.ProviderSettings, _ Options) (core.Transport, error) {
		return file.New(s)
	},
	TypeSMTP: func(_ context.Context, s core.ProviderSettings, o Options) (core.Transport, error) {
		return smtp.New(s, o.UserAgent)
	},
	TypeSES: func(ctx context.Context, s core.ProviderSettings, o Options) (core.Transport, error) {
		return ses.New(ctx, s, o.UserAgent)
	},
	TypeSendGrid: func(_ context.Context, s core.ProviderSettings, _ Options) (core.Transport, error) {
		return sendgrid.New(s)
	},
	TypeMailgun: func(_ context.Context, s core.ProviderSettings, _ Options) (core.Transport, error) {
		return mailgun.New(s)
	},
	TypeResend: func(_ context.Context, s core.ProviderSettings, _ Options) (core.Transport, error) {
		return resend.New(s)
	},
	TypePostmark: func(_ context.Context, s core.ProviderSettings, _ Options) (core.Transport, error) {
		return postmark.New(s)
	},
}

// New creates the transport registered as typ.
func New(ctx context.Context, typ string, settings core.ProviderSettings, opts Options) (core.Transport, error) {
	factory, ok := factories[typ]
	if !ok {
		return nil, core.NewValidationErrorWithValue("transport.type", "unsupported transport type", typ)
	}
	if settings == nil {
		settings = core.ProviderSettings{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t, err := factory(ctx, settings, opts)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("transport created", slog.String("transport", typ))
	return t, nil
}

// Supported returns the registered transport types in sorted order.
func Supported() []string {
	types := make([]string, 0, len(factories))
	for typ := range factories {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// IsSupported reports whether typ names a built-in transport.
func IsSupported(typ string) bool {
	_, ok := factories[typ]
	return ok
}
