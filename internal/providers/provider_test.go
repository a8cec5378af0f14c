package providers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/providers"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ      string
		settings core.ProviderSettings
	}{
		{typ: providers.TypeJSON},
		{typ: providers.TypeFile, settings: core.ProviderSettings{"dir": t.TempDir()}},
		{typ: providers.TypeSMTP, settings: core.ProviderSettings{"host": "localhost", "port": "1025"}},
		{typ: providers.TypeSendGrid, settings: core.ProviderSettings{"api_key": "key"}},
		{typ: providers.TypeMailgun, settings: core.ProviderSettings{"api_key": "key", "domain": "mg.example.com"}},
		{typ: providers.TypeResend, settings: core.ProviderSettings{"api_key": "key"}},
		{typ: providers.TypePostmark, settings: core.ProviderSettings{"server_token": "token"}},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			t.Parallel()

			tr, err := providers.New(context.Background(), tt.typ, tt.settings, providers.Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.typ, core.TransportName(tr))
		})
	}
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := providers.New(context.Background(), "carrier-pigeon", nil, providers.Options{})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "transport.type", vErr.Field)
}

func TestNew_PropagatesValidation(t *testing.T) {
	t.Parallel()

	_, err := providers.New(context.Background(), providers.TypeSendGrid, nil, providers.Options{})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "api_key", vErr.Field)
}

func TestSupported(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"aws_ses", "file", "json", "mailgun", "postmark", "resend", "sendgrid", "smtp"}, providers.Supported())
	assert.True(t, providers.IsSupported("json"))
	assert.False(t, providers.IsSupported("pigeon"))
}
