package jsontransport_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/providers/jsontransport"
)

func TestSend(t *testing.T) {
	t.Parallel()

	msg := &core.Message{
		From:    core.Address{Email: "test@example.com"},
		To:      []core.Address{{Name: "Ana", Email: "ana@example.com"}},
		BCC:     []core.Address{{Email: "audit@example.com"}},
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
	}

	res, err := jsontransport.New().Send(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "json", res.Provider)
	assert.NotEmpty(t, res.MessageID)
	assert.Equal(t, core.Envelope{From: "test@example.com", To: []string{"ana@example.com", "audit@example.com"}}, res.Envelope)

	doc, err := jsontransport.Decode(res.Message)
	require.NoError(t, err)
	assert.Equal(t, res.MessageID, doc.MessageID)
	assert.Equal(t, "Hello", doc.Subject)
	assert.Equal(t, "<p>Hi</p>", doc.HTML)
}

func TestSend_AbsentBodiesOmitted(t *testing.T) {
	t.Parallel()

	res, err := jsontransport.New().Send(context.Background(), &core.Message{Subject: "Only subject"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(res.Message, &raw))
	assert.NotContains(t, raw, "html")
	assert.NotContains(t, raw, "text")
	assert.NotContains(t, raw, "from")
	assert.Equal(t, "Only subject", raw["subject"])
}

func TestSend_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := jsontransport.New().Send(ctx, &core.Message{})
	assert.ErrorIs(t, err, context.Canceled)
}
