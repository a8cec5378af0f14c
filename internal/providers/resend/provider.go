// Package resend delivers messages through the Resend API.
package resend

import (
	"context"
	"time"

	"github.com/resend/resend-go/v3"

	"github.com/lattiq/postcard/internal/core"
)

// Name is the transport type.
const Name = "resend"

// SendFunc submits a request to Resend.
type SendFunc func(ctx context.Context, req *resend.SendEmailRequest) (*resend.SendEmailResponse, error)

// Provider sends through Resend.
type Provider struct {
	send SendFunc
}

// New creates a Resend provider. The api_key setting is required.
func New(settings core.ProviderSettings) (*Provider, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "Resend API key is required")
	}
	client := resend.NewClient(apiKey)
	return NewWithSendFunc(func(ctx context.Context, req *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
		return client.Emails.SendWithContext(ctx, req)
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

// Send delivers msg.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	req := &resend.SendEmailRequest{
		From:    msg.From.String(),
		To:      core.Strings(msg.To),
		Cc:      core.Strings(msg.CC),
		Bcc:     core.Strings(msg.BCC),
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Headers: msg.Headers,
	}
	if len(msg.ReplyTo) > 0 {
		req.ReplyTo = msg.ReplyTo[0].String()
	}

	for _, tag := range msg.Tags {
		req.Tags = append(req.Tags, resend.Tag{Name: tag, Value: "true"})
	}
	for k, v := range msg.Metadata {
		req.Tags = append(req.Tags, resend.Tag{Name: k, Value: v})
	}

	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		data, err := att.Bytes()
		if err != nil {
			return nil, core.WrapProviderError(Name, "attachment_read_failed", err)
		}
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    att.Name(),
			Content:     data,
			ContentType: att.DetectContentType(),
			ContentId:   att.ContentID,
		})
	}

	resp, err := p.send(ctx, req)
	if err != nil {
		return nil, core.WrapProviderError(Name, "send_error", err)
	}

	return &core.SendResult{
		MessageID: resp.Id,
		Provider:  Name,
		Timestamp: time.Now(),
		Envelope:  msg.Envelope(),
	}, nil
}
