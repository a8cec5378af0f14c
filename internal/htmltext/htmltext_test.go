package htmltext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/postcard/internal/htmltext"
)

func TestDerive(t *testing.T) {
	t.Parallel()

	text, err := htmltext.Derive(`<p style="color: red;">Hi Alice</p><p>Visit <a href="https://example.com">us</a></p>`, htmltext.Options{})
	require.NoError(t, err)
	assert.Contains(t, text, "Hi Alice")
	assert.Contains(t, text, "https://example.com")
	assert.NotContains(t, text, "<p")
	assert.NotContains(t, text, "color: red")
}

func TestDerive_OmitLinks(t *testing.T) {
	t.Parallel()

	text, err := htmltext.Derive(`<p>Visit <a href="https://example.com">us</a></p>`, htmltext.Options{OmitLinks: true})
	require.NoError(t, err)
	assert.Contains(t, text, "us")
	assert.NotContains(t, text, "https://example.com")
}

func TestDerive_Empty(t *testing.T) {
	t.Parallel()

	text, err := htmltext.Derive("  ", htmltext.Options{})
	require.NoError(t, err)
	assert.Empty(t, text)
}
