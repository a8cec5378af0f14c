// Package mailgun delivers messages through the Mailgun API.
package mailgun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/lattiq/postcard/internal/core"
)

// Name is the transport type.
const Name = "mailgun"

// SendFunc submits a prepared message and returns the API response and message ID.
type SendFunc func(ctx context.Context, m *mailgun.Message) (string, string, error)

// Provider sends through Mailgun.
type Provider struct {
	send SendFunc
}

// New creates a Mailgun provider. The api_key and domain settings are
// required; base_url selects a region such as the EU endpoint.
func New(settings core.ProviderSettings) (*Provider, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "Mailgun API key is required")
	}
	domain := settings.Get("domain")
	if domain == "" {
		return nil, core.NewValidationError("domain", "Mailgun domain is required")
	}

	client := mailgun.NewMailgun(domain, apiKey)
	if baseURL := settings.Get("base_url"); baseURL != "" {
		client.SetAPIBase(baseURL)
	}

	return NewWithSendFunc(func(ctx context.Context, m *mailgun.Message) (string, string, error) {
		return client.Send(ctx, m)
	}), nil
}

// NewWithSendFunc creates a provider around send.
func NewWithSendFunc(send SendFunc) *Provider {
	return &Provider{send: send}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return Name
}

// Send delivers msg. Inline attachments are uploaded under their content ID
// so that cid: references in the HTML resolve.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	if len(msg.To) == 0 {
		return nil, core.NewValidationError("to", "at least one recipient is required")
	}

	message := mailgun.NewMessage(msg.From.String(), msg.Subject, msg.Text, msg.To[0].String())
	for _, a := range msg.To[1:] {
		if err := message.AddRecipient(a.String()); err != nil {
			return nil, core.NewProviderError(Name, "recipient_add_failed", fmt.Sprintf("failed to add recipient %s: %v", a.String(), err))
		}
	}
	for _, a := range msg.CC {
		message.AddCC(a.String())
	}
	for _, a := range msg.BCC {
		message.AddBCC(a.String())
	}
	if len(msg.ReplyTo) > 0 {
		message.SetReplyTo(msg.ReplyTo[0].String())
	}
	if msg.HTML != "" {
		message.SetHTML(msg.HTML)
	}
	for k, v := range msg.Headers {
		message.AddHeader(k, v)
	}
	if len(msg.Tags) > 0 {
		if err := message.AddTag(msg.Tags...); err != nil {
			return nil, core.WrapProviderError(Name, "tag_add_failed", err)
		}
	}
	for k, v := range msg.Metadata {
		if err := message.AddVariable(k, v); err != nil {
			return nil, core.WrapProviderError(Name, "variable_add_failed", err)
		}
	}

	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		data, err := att.Bytes()
		if err != nil {
			return nil, core.WrapProviderError(Name, "attachment_read_failed", err)
		}
		if att.ContentID != "" {
			message.AddReaderInline(att.ContentID, io.NopCloser(bytes.NewReader(data)))
			continue
		}
		message.AddBufferAttachment(att.Name(), data)
	}

	mes, id, err := p.send(ctx, message)
	if err != nil {
		return nil, core.WrapProviderError(Name, "send_failed", err)
	}

	return &core.SendResult{
		MessageID: id,
		Provider:  Name,
		Timestamp: time.Now(),
		Envelope:  msg.Envelope(),
		Metadata:  map[string]any{"message": mes},
	}, nil
}
