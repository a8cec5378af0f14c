// Package smtp delivers messages to an SMTP server with go-mail.
package smtp

import (
	"context"
	"crypto/tls"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/providers/mimemsg"
)

// Name is the transport type.
const Name = "smtp"

// Sender is the subset of *mail.Client used by the provider.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Provider submits messages over SMTP.
type Provider struct {
	client    Sender
	host      string
	userAgent string
}

// New creates an SMTP provider.
//
// Settings: host and port are required; username and password enable
// authentication; tls is "mandatory", "opportunistic" (default) or "none";
// ssl=true uses implicit TLS; tls_skip_verify=true disables certificate checks;
// timeout is a Go duration.
func New(settings core.ProviderSettings, userAgent string) (*Provider, error) {
	host := settings.Get("host")
	if host == "" {
		return nil, core.NewValidationError("host", "SMTP host is required")
	}

	portValue := settings.Get("port")
	if portValue == "" {
		return nil, core.NewValidationError("port", "SMTP port is required")
	}
	port, err := strconv.Atoi(portValue)
	if err != nil || port <= 0 || port > 65535 {
		return nil, core.NewValidationErrorWithValue("port", "invalid port number", portValue)
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: settings.Get("tls_skip_verify") == "true", // #nosec G402 -- opt-in for development
		}),
	}

	switch settings.Get("tls") {
	case "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case "", "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		return nil, core.NewValidationErrorWithValue("tls", "must be mandatory, opportunistic or none", settings.Get("tls"))
	}
	if settings.Get("ssl") == "true" {
		opts = append(opts, mail.WithSSL())
	}

	if username := settings.Get("username"); username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(settings.Get("password")),
		)
	}

	if timeout := settings.Get("timeout"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, core.NewValidationErrorWithValue("timeout", "invalid duration", timeout)
		}
		opts = append(opts, mail.WithTimeout(d))
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, core.WrapProviderError(Name, "config_error", err)
	}

	return NewWithSender(client, host, userAgent), nil
}

// NewWithSender creates a provider around an existing sender.
func NewWithSender(client Sender, host, userAgent string) *Provider {
	return &Provider{client: client, host: host, userAgent: userAgent}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return Name
}

// Send builds a MIME message and submits it.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	m, err := mimemsg.Build(msg, p.userAgent)
	if err != nil {
		return nil, core.WrapProviderError(Name, "message_build_error", err)
	}

	if err := p.client.DialAndSendWithContext(ctx, m); err != nil {
		return nil, core.WrapProviderError(Name, "send_error", err)
	}

	return &core.SendResult{
		MessageID: m.GetMessageID(),
		Provider:  Name,
		Timestamp: time.Now(),
		Envelope:  msg.Envelope(),
		Metadata:  map[string]any{"host": p.host},
	}, nil
}
