// Package sendgrid delivers messages through the SendGrid v3 API.
package sendgrid

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lattiq/postcard/internal/core"
)

// Name is the transport type.
const Name = "sendgrid"

// Client is the subset of *sendgrid.Client used by the provider.
type Client interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Provider sends through SendGrid.
type Provider struct {
	client Client
}

// New creates a SendGrid provider. The api_key setting is required.
func New(settings core.ProviderSettings) (*Provider, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "SendGrid API key is required")
	}
	return NewWithClient(sendgrid.NewSendClient(apiKey)), nil
}

// NewWithClient creates a provider around an existing client.
func NewWithClient(client Client) *Provider {
	return &Provider{client: client}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return Name
}

// Send delivers msg.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	if len(msg.To) == 0 {
		return nil, core.NewValidationError("to", "at least one recipient is required")
	}

	message, err := build(msg)
	if err != nil {
		return nil, core.WrapProviderError(Name, "message_build_error", err)
	}

	response, err := p.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, core.WrapProviderError(Name, "send_error", err)
	}
	if response.StatusCode >= 400 {
		pErr := core.NewProviderError(Name, "api_error", "SendGrid API error: "+response.Body)
		pErr.StatusCode = response.StatusCode
		return nil, pErr
	}

	messageID := "unknown"
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	return &core.SendResult{
		MessageID: messageID,
		Provider:  Name,
		Timestamp: time.Now(),
		Envelope:  msg.Envelope(),
		Metadata:  map[string]any{"status_code": response.StatusCode},
	}, nil
}

func build(msg *core.Message) (*mail.SGMailV3, error) {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.From.Name, msg.From.Email))
	m.Subject = msg.Subject

	personalization := mail.NewPersonalization()
	for _, a := range msg.To {
		personalization.AddTos(mail.NewEmail(a.Name, a.Email))
	}
	for _, a := range msg.CC {
		personalization.AddCCs(mail.NewEmail(a.Name, a.Email))
	}
	for _, a := range msg.BCC {
		personalization.AddBCCs(mail.NewEmail(a.Name, a.Email))
	}
	m.AddPersonalizations(personalization)

	if len(msg.ReplyTo) > 0 {
		m.SetReplyTo(mail.NewEmail(msg.ReplyTo[0].Name, msg.ReplyTo[0].Email))
	}

	// SendGrid requires text/plain ahead of text/html.
	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}

	if len(msg.Headers) > 0 {
		m.Headers = make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			m.Headers[k] = v
		}
	}
	if len(msg.Metadata) > 0 {
		m.CustomArgs = make(map[string]string, len(msg.Metadata))
		for k, v := range msg.Metadata {
			m.CustomArgs[k] = v
		}
	}
	if len(msg.Tags) > 0 {
		m.AddCategories(msg.Tags...)
	}

	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		data, err := att.Bytes()
		if err != nil {
			return nil, err
		}
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(data))
		a.SetType(att.DetectContentType())
		a.SetFilename(att.Name())
		if att.Inline || att.ContentID != "" {
			a.SetDisposition("inline")
			a.SetContentID(att.ContentID)
		} else {
			a.SetDisposition("attachment")
		}
		m.AddAttachment(a)
	}

	return m, nil
}
