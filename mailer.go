package postcard

import (
	"context"
	"io/fs"

	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/engine"
	"github.com/lattiq/postcard/internal/providers"
	"github.com/lattiq/postcard/internal/resolve"
	"github.com/lattiq/postcard/internal/store"
)

// Type aliases to re-export internal types for the public API.
type (
	Message          = core.Message
	Address          = core.Address
	Attachment       = core.Attachment
	Envelope         = core.Envelope
	SendResult       = core.SendResult
	Locals           = core.Locals
	Transport        = core.Transport
	ProviderSettings = core.ProviderSettings
	Store            = store.Store
	Engine           = engine.Engine
	EngineFunc       = engine.Func
	RenderContext    = engine.Context
	Kind             = resolve.Kind
)

// Artifact kinds passed to engines.
const (
	KindHTML    = resolve.KindHTML
	KindSubject = resolve.KindSubject
	KindText    = resolve.KindText
)

// Built-in transport types.
const (
	TransportJSON     = providers.TypeJSON
	TransportFile     = providers.TypeFile
	TransportSMTP     = providers.TypeSMTP
	TransportSES      = providers.TypeSES
	TransportSendGrid = providers.TypeSendGrid
	TransportMailgun  = providers.TypeMailgun
	TransportResend   = providers.TypeResend
	TransportPostmark = providers.TypePostmark
)

// Address helpers
var (
	ParseAddress     = core.ParseAddress
	ParseAddressList = core.ParseAddressList
)

// SupportedTransports lists the built-in transport types.
func SupportedTransports() []string {
	return providers.Supported()
}

// NewDirStore reads templates from a local directory.
func NewDirStore(dir string) Store {
	return store.NewDir(dir)
}

// NewFSStore reads templates from root inside fsys, such as an embed.FS.
func NewFSStore(fsys fs.FS, root string) Store {
	return store.NewFS(fsys, root)
}

// NewS3Store reads templates from an S3 bucket under prefix.
func NewS3Store(ctx context.Context, region, bucket, prefix string) (Store, error) {
	s, err := store.NewS3FromRegion(ctx, region, bucket, prefix)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Public interfaces for the postcard library
type (
	// Renderer renders templates without delivering anything.
	// All methods are safe for concurrent use.
	Renderer interface {
		// Render renders a single template file and returns the result.
		// HTML artifacts are returned with CSS inlined.
		Render(ctx context.Context, view string, locals Locals) (string, error)

		// RenderAll composes the message Send would deliver.
		RenderAll(ctx context.Context, opts SendOptions) (*Message, error)
	}

	// Mailer renders and delivers templated emails.
	// All methods are safe for concurrent use.
	Mailer interface {
		Renderer

		// Send composes a message and hands it to the transport.
		// The transport's result and error are returned unchanged.
		Send(ctx context.Context, opts SendOptions) (*SendResult, error)
	}
)

var _ Mailer = (*Email)(nil)
