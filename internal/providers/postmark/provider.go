// Package postmark delivers messages through the Postmark API.
package postmark

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/postmark"

	"github.com/lattiq/postcard/internal/core"
)

// Name is the transport type.
const Name = "postmark"

// Client is the subset of *postmark.Client used by the provider.
type Client interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Provider sends through Postmark.
type Provider struct {
	client     Client
	stream     string
	trackOpens bool
}

// New creates a Postmark provider. The server_token setting is required;
// account_token, message_stream and track_opens are optional.
func New(settings core.ProviderSettings) (*Provider, error) {
	serverToken := settings.Get("server_token")
	if serverToken == "" {
		return nil, core.NewValidationError("server_token", "Postmark server token is required")
	}
	client := postmark.NewClient(serverToken, settings.Get("account_token"))
	return NewWithClient(client, settings.Get("message_stream"), settings.Get("track_opens") == "true"), nil
}

// NewWithClient creates a provider around an existing client.
func NewWithClient(client Client, stream string, trackOpens bool) *Provider {
	return &Provider{client: client, stream: stream, trackOpens: trackOpens}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return Name
}

// Send delivers msg. Postmark accepts a single tag; the first one is used.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	email := postmark.Email{
		From:          msg.From.String(),
		To:            strings.Join(core.Strings(msg.To), ","),
		Cc:            strings.Join(core.Strings(msg.CC), ","),
		Bcc:           strings.Join(core.Strings(msg.BCC), ","),
		ReplyTo:       strings.Join(core.Strings(msg.ReplyTo), ","),
		Subject:       msg.Subject,
		HTMLBody:      msg.HTML,
		TextBody:      msg.Text,
		TrackOpens:    p.trackOpens,
		MessageStream: p.stream,
		Metadata:      msg.Metadata,
	}
	if len(msg.Tags) > 0 {
		email.Tag = msg.Tags[0]
	}
	for k, v := range msg.Headers {
		email.Headers = append(email.Headers, postmark.Header{Name: k, Value: v})
	}
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		data, err := att.Bytes()
		if err != nil {
			return nil, core.WrapProviderError(Name, "attachment_read_failed", err)
		}
		a := postmark.Attachment{
			Name:        att.Name(),
			Content:     base64.StdEncoding.EncodeToString(data),
			ContentType: att.DetectContentType(),
		}
		if att.ContentID != "" {
			a.ContentID = "cid:" + att.ContentID
		}
		email.Attachments = append(email.Attachments, a)
	}

	resp, err := p.client.SendEmail(ctx, email)
	if err != nil {
		return nil, core.WrapProviderError(Name, "send_error", err)
	}
	if resp.ErrorCode > 0 {
		return nil, core.NewProviderError(Name, fmt.Sprintf("%d", resp.ErrorCode), resp.Message)
	}

	return &core.SendResult{
		MessageID: resp.MessageID,
		Provider:  Name,
		Timestamp: time.Now(),
		Envelope:  msg.Envelope(),
		Metadata:  map[string]any{"submitted_at": resp.SubmittedAt},
	}, nil
}
