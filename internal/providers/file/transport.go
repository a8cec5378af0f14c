// Package file writes messages to a directory for local development.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lattiq/postcard/internal/core"
)

// Name is the transport type.
const Name = "file"

// Transport saves each message as <stamp>_<subject>.json, plus .html and
// .txt siblings for the bodies that are present.
type Transport struct {
	dir string
	now func() time.Time
}

// New creates the transport. The "dir" setting is required.
func New(settings core.ProviderSettings) (*Transport, error) {
	dir := settings.Get("dir")
	if dir == "" {
		return nil, core.NewValidationError("dir", "output directory is required")
	}
	return &Transport{dir: dir, now: time.Now}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return Name
}

// Dir returns the output directory.
func (t *Transport) Dir() string {
	return t.dir
}

// Send writes msg to disk.
func (t *Transport) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, core.WrapProviderError(Name, "mkdir_error", err)
	}

	now := t.now()
	id := uuid.NewString()
	base := filepath.Join(t.dir, fmt.Sprintf("%s_%s_%s", now.Format("2006_01_02_150405"), sanitize(msg.Subject), id[:8]))

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return nil, core.WrapProviderError(Name, "encode_error", err)
	}

	files := map[string][]byte{base + ".json": data}
	if msg.HTML != "" {
		files[base+".html"] = []byte(msg.HTML)
	}
	if msg.Text != "" {
		files[base+".txt"] = []byte(msg.Text)
	}
	for path, content := range files {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, core.WrapProviderError(Name, "write_error", err)
		}
	}

	return &core.SendResult{
		MessageID: id,
		Provider:  Name,
		Timestamp: now,
		Envelope:  msg.Envelope(),
		Message:   data,
		Metadata:  map[string]any{"path": base + ".json"},
	}, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.ReplaceAll(s, " ", "_"), "")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
