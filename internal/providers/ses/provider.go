// Package ses delivers messages through Amazon SES.
package ses

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/providers/mimemsg"
)

// Name is the transport type.
const Name = "aws_ses"

// API is the subset of the SES client used by the provider.
type API interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// Provider sends through SES. Messages with attachments or custom headers
// are submitted as raw MIME; the rest use the structured API.
type Provider struct {
	client           API
	configurationSet string
	userAgent        string
}

// New creates an SES provider. The region setting is required; access_key,
// secret_key and session_token override the default credential chain.
func New(ctx context.Context, settings core.ProviderSettings, userAgent string) (*Provider, error) {
	region := settings.Get("region")
	if region == "" {
		return nil, core.NewValidationError("region", "AWS region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey := settings.Get("access_key"); accessKey != "" {
		secretKey := settings.Get("secret_key")
		if secretKey == "" {
			return nil, core.NewValidationError("secret_key", "secret key is required when access key is provided")
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, settings.Get("session_token")),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, core.WrapProviderError(Name, "config_error", err)
	}

	return NewWithClient(ses.NewFromConfig(cfg), settings.Get("configuration_set"), userAgent), nil
}

// NewWithClient creates a provider around an existing client.
func NewWithClient(client API, configurationSet, userAgent string) *Provider {
	return &Provider{client: client, configurationSet: configurationSet, userAgent: userAgent}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return Name
}

// Send delivers msg.
func (p *Provider) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	if msg.HasAttachments() || len(msg.Headers) > 0 {
		return p.sendRaw(ctx, msg)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(msg.From.String()),
		Destination: &types.Destination{
			ToAddresses:  core.Strings(msg.To),
			CcAddresses:  core.Strings(msg.CC),
			BccAddresses: core.Strings(msg.BCC),
		},
		ReplyToAddresses: core.Strings(msg.ReplyTo),
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    &types.Body{},
		},
	}
	if msg.Text != "" {
		input.Message.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.HTML != "" {
		input.Message.Body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	output, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return nil, core.WrapProviderError(Name, "send_error", err)
	}
	return p.result(aws.ToString(output.MessageId), msg), nil
}

func (p *Provider) sendRaw(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	m, err := mimemsg.Build(msg, p.userAgent)
	if err != nil {
		return nil, core.WrapProviderError(Name, "message_build_error", err)
	}
	raw, err := mimemsg.Raw(m)
	if err != nil {
		return nil, core.WrapProviderError(Name, "message_build_error", err)
	}

	input := &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Source:       aws.String(msg.From.String()),
		Destinations: msg.Envelope().To,
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	output, err := p.client.SendRawEmail(ctx, input)
	if err != nil {
		return nil, core.WrapProviderError(Name, "send_error", err)
	}
	return p.result(aws.ToString(output.MessageId), msg), nil
}

func (p *Provider) result(id string, msg *core.Message) *core.SendResult {
	return &core.SendResult{
		MessageID: id,
		Provider:  Name,
		Timestamp: time.Now(),
		Envelope:  msg.Envelope(),
	}
}
