package mailgun_test

import (
	"context"
	"errors"
	"testing"

	mg "github.com/mailgun/mailgun-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/providers/mailgun"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	var vErr *core.ValidationError

	_, err := mailgun.New(core.ProviderSettings{"domain": "mg.example.com"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "api_key", vErr.Field)

	_, err = mailgun.New(core.ProviderSettings{"api_key": "key"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "domain", vErr.Field)

	p, err := mailgun.New(core.ProviderSettings{"api_key": "key", "domain": "mg.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "mailgun", p.Name())
}

func TestSend(t *testing.T) {
	t.Parallel()

	var sent *mg.Message
	p := mailgun.NewWithSendFunc(func(_ context.Context, m *mg.Message) (string, string, error) {
		sent = m
		return "Queued. Thank you.", "<mg-1@mg.example.com>", nil
	})

	res, err := p.Send(context.Background(), &core.Message{
		From:        core.Address{Email: "test@example.com"},
		To:          []core.Address{{Email: "a@example.com"}, {Email: "b@example.com"}},
		Subject:     "Hi",
		HTML:        "<p>Hi</p>",
		Tags:        []string{"welcome"},
		Attachments: []core.Attachment{{Filename: "logo.png", Content: []byte("png"), ContentID: "logo"}},
	})
	require.NoError(t, err)
	require.NotNil(t, sent)

	assert.Equal(t, "<mg-1@mg.example.com>", res.MessageID)
	assert.Equal(t, "Queued. Thank you.", res.Metadata["message"])
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, res.Envelope.To)
}

func TestSend_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("401 unauthorized")
	p := mailgun.NewWithSendFunc(func(context.Context, *mg.Message) (string, string, error) {
		return "", "", boom
	})

	_, err := p.Send(context.Background(), &core.Message{To: []core.Address{{Email: "a@example.com"}}})
	require.ErrorIs(t, err, boom)

	var pErr *core.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "send_failed", pErr.Code)
}

func TestSend_RequiresRecipient(t *testing.T) {
	t.Parallel()

	_, err := mailgun.NewWithSendFunc(nil).Send(context.Background(), &core.Message{})
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)
}
