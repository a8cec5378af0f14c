package postcard

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/lattiq/postcard/internal/compose"
	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/engine"
	"github.com/lattiq/postcard/internal/htmltext"
	"github.com/lattiq/postcard/internal/i18n"
	"github.com/lattiq/postcard/internal/inline"
	"github.com/lattiq/postcard/internal/providers"
	"github.com/lattiq/postcard/internal/providers/jsontransport"
	"github.com/lattiq/postcard/internal/resolve"
	"github.com/lattiq/postcard/internal/store"
)

const instrumentationName = "github.com/lattiq/postcard"

// SendOptions describes one Send or RenderAll call.
type SendOptions struct {
	// Template names a template directory holding subject, html and text
	// artifacts, or a single artifact file. Empty skips rendering.
	Template string

	// Message holds per-call fields. Set fields win over rendered parts.
	Message Message

	// Locals are the template variables for this call.
	Locals Locals
}

// Email renders templates and delivers the composed messages.
// It holds only state fixed at construction, so all methods are safe for
// concurrent use.
type Email struct {
	config     Config
	resolver   *resolve.Resolver
	engines    engine.Registry
	inliner    *inline.Inliner
	pageInline *inline.Inliner
	translator *i18n.Translator
	transport  Transport
	preview    Transport
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates an Email instance. Without a transport the instance can still
// render; Send then fails with ErrNoTransport.
func New(opts ...Option) (*Email, error) {
	o := &options{config: DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	if o.err != nil {
		return nil, o.err
	}

	cfg := o.config
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "postcard"))

	e := &Email{
		config:  cfg,
		logger:  logger,
		preview: jsontransport.New(),
	}

	if cfg.Monitoring.Tracing.Enabled {
		e.tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(Version))
	} else {
		e.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}

	ctx := context.Background()

	s := o.store
	if s == nil {
		var err error
		if s, err = newStore(ctx, cfg.Views); err != nil {
			return nil, fmt.Errorf("failed to create template store: %w", err)
		}
	}
	e.resolver = resolve.New(s, cfg.Views.Extensions)

	e.engines = engine.Defaults(engine.Options{AllowUnsafeFunctions: cfg.Views.AllowUnsafeFunctions})
	for ext, eng := range o.engines {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		e.engines[strings.ToLower(ext)] = eng
	}

	inlineOpts := inline.Options{
		PreserveImportant: cfg.Juice.PreserveImportant,
		Images:            cfg.Juice.WebResources.Images,
		Links:             cfg.Juice.WebResources.Links,
		RelativeTo:        cfg.Juice.WebResources.RelativeTo,
	}
	e.inliner = inline.New(inlineOpts)
	// Render returns a bare string, so there is nowhere to put image attachments.
	inlineOpts.Images = false
	e.pageInline = inline.New(inlineOpts)

	if cfg.I18n != nil {
		tr, err := i18n.LoadTranslator(ctx, s, cfg.I18n)
		if err != nil {
			return nil, fmt.Errorf("failed to load translations: %w", err)
		}
		e.translator = tr
	}

	if o.transport != nil {
		e.transport = o.transport
	} else if cfg.Transport.Type != "" {
		t, err := providers.New(ctx, cfg.Transport.Type, cfg.Transport.Settings, providers.Options{
			UserAgent: UserAgent(),
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		e.transport = t
	}

	return e, nil
}

func newStore(ctx context.Context, views ViewsConfig) (store.Store, error) {
	if views.Store.Type == StoreS3 {
		s, err := store.NewS3FromRegion(ctx, views.Store.Region, views.Store.Bucket, views.Root)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return store.NewDir(views.Root), nil
}

// Config returns a copy of the effective configuration.
func (e *Email) Config() Config {
	out := e.config
	out.Message = *e.config.Message.Clone()
	out.Views.Extensions = slices.Clone(e.config.Views.Extensions)
	out.Views.Locals = maps.Clone(e.config.Views.Locals)
	out.Transport.Settings = maps.Clone(e.config.Transport.Settings)
	if e.config.I18n != nil {
		i := *e.config.I18n
		i.Locales = slices.Clone(i.Locales)
		out.I18n = &i
	}
	return out
}

// Render renders the single template file named by view. HTML artifacts
// come back with CSS inlined. A missing file fails with *NotFoundError.
func (e *Email) Render(ctx context.Context, view string, locals Locals) (string, error) {
	ctx, span := e.tracer.Start(ctx, "postcard.Email.Render",
		trace.WithAttributes(attribute.String("postcard.template", view)),
	)
	defer span.End()

	out, err := e.render(ctx, view, locals)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return "", err
	}
	span.SetStatus(codes.Ok, "rendered")
	return out, nil
}

func (e *Email) render(ctx context.Context, view string, locals Locals) (string, error) {
	l, err := e.resolver.Lookup(ctx, view)
	if err != nil {
		return "", err
	}
	if !l.Found {
		return "", core.NewNotFoundError("open", e.resolver.Store().Location(l.Path))
	}

	out, err := e.renderFile(ctx, l, e.renderContext(locals))
	if err != nil {
		return "", err
	}

	if l.Kind != resolve.KindHTML || !e.config.Juice.Enabled {
		return out, nil
	}
	res, err := e.pageInline.Process(ctx, out)
	if err != nil {
		return "", &PostProcessError{Stage: StageInline, Cause: err}
	}
	return res.HTML, nil
}

// RenderAll composes the message Send would hand to the transport.
func (e *Email) RenderAll(ctx context.Context, opts SendOptions) (*Message, error) {
	ctx, span := e.tracer.Start(ctx, "postcard.Email.RenderAll",
		trace.WithAttributes(attribute.String("postcard.template", opts.Template)),
	)
	defer span.End()

	msg, err := e.compose(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return nil, err
	}
	span.SetStatus(codes.Ok, "rendered")
	return msg, nil
}

// Send composes a message and hands it to the transport. When the Send
// setting is off, the JSON form of the message is returned instead.
func (e *Email) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	ctx, span := e.tracer.Start(ctx, "postcard.Email.Send",
		trace.WithAttributes(attribute.String("postcard.template", opts.Template)),
	)
	defer span.End()

	transport := e.transport
	if !e.config.Send {
		transport = e.preview
	}
	if transport == nil {
		span.RecordError(ErrNoTransport)
		span.SetStatus(codes.Error, ErrNoTransport.Error())
		return nil, ErrNoTransport
	}

	msg, err := e.compose(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return nil, err
	}

	name := core.TransportName(transport)
	span.SetAttributes(
		attribute.String("postcard.transport", name),
		attribute.String("postcard.subject", msg.Subject),
		attribute.Int("postcard.recipients", len(msg.AllRecipients())),
		attribute.Int("postcard.attachments", len(msg.Attachments)),
	)

	result, err := transport.Send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		e.logger.ErrorContext(ctx, "send failed",
			slog.String("template", opts.Template),
			slog.String("transport", name),
			slog.Any("error", err),
		)
		return result, err
	}

	if result != nil {
		span.SetAttributes(attribute.String("postcard.message_id", result.MessageID))
		e.logger.DebugContext(ctx, "message sent",
			slog.String("template", opts.Template),
			slog.String("transport", name),
			slog.String("message_id", result.MessageID),
		)
	}
	span.SetStatus(codes.Ok, "sent")
	return result, nil
}

// compose runs the pipeline up to, but excluding, the transport.
func (e *Email) compose(ctx context.Context, opts SendOptions) (*Message, error) {
	var parts compose.Parts
	if opts.Template != "" {
		var err error
		if parts, err = e.renderParts(ctx, opts.Template, opts.Locals); err != nil {
			return nil, err
		}
	}

	msg := compose.Compose(parts, opts.Message, e.config.Message)
	msg.Subject = compose.PrefixSubject(msg.Subject, e.config.SubjectPrefix)
	if e.config.TextOnly {
		msg.HTML = ""
	}

	if msg.HTML != "" && e.config.Juice.Enabled {
		res, err := e.inliner.Process(ctx, msg.HTML)
		if err != nil {
			return nil, &PostProcessError{Stage: StageInline, Cause: err}
		}
		msg.HTML = res.HTML
		compose.PrependAttachments(&msg, res.Attachments)
	}

	if e.config.HTMLToText.Enabled && msg.HTML != "" && msg.Text == "" {
		text, err := htmltext.Derive(msg.HTML, htmltext.Options{
			PrettyTables: e.config.HTMLToText.PrettyTables,
			OmitLinks:    e.config.HTMLToText.OmitLinks,
		})
		if err != nil {
			return nil, &PostProcessError{Stage: StageHTMLToText, Cause: err}
		}
		msg.Text = text
	}

	if msg.HTML == "" && msg.Text == "" {
		e.logger.WarnContext(ctx, "composed message has no body",
			slog.String("template", opts.Template),
		)
	}
	return &msg, nil
}

// renderParts renders the artifacts of a template concurrently. Missing
// artifacts leave their part empty.
func (e *Email) renderParts(ctx context.Context, name string, locals Locals) (compose.Parts, error) {
	res, err := e.resolver.Resolve(ctx, name)
	if err != nil {
		return compose.Parts{}, err
	}

	e.logger.DebugContext(ctx, "resolved template",
		slog.String("template", name),
		slog.Bool("single", res.IsSingle()),
		slog.Bool("subject", res.Subject.Found),
		slog.Bool("html", res.HTML.Found),
		slog.Bool("text", res.Text.Found),
	)

	lookups := []resolve.Lookup{res.Subject, res.HTML, res.Text}
	if res.IsSingle() {
		lookups = []resolve.Lookup{res.Single}
	}

	rc := e.renderContext(locals)
	out := make([]string, len(lookups))

	g, gctx := errgroup.WithContext(ctx)
	for i, l := range lookups {
		if !l.Found || (l.Kind == resolve.KindHTML && e.config.TextOnly) {
			continue
		}
		g.Go(func() error {
			s, err := e.renderFile(gctx, l, rc)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return compose.Parts{}, err
	}

	var parts compose.Parts
	for i, l := range lookups {
		switch l.Kind {
		case resolve.KindSubject:
			parts.Subject = strings.TrimSpace(out[i])
		case resolve.KindText:
			parts.Text = out[i]
		default:
			parts.HTML = out[i]
		}
	}
	return parts, nil
}

// renderFile reads one artifact and renders it with the engine for its extension.
func (e *Email) renderFile(ctx context.Context, l resolve.Lookup, rc engine.Context) (string, error) {
	source, err := e.resolver.Store().ReadFile(ctx, l.Path)
	if err != nil {
		return "", err
	}

	eng, err := e.engines.Lookup(l.Ext)
	if err != nil {
		return "", NewTemplateError(l.Path, "lookup", err)
	}

	out, err := eng.Render(ctx, l.Name, source, l.Kind, rc)
	if err != nil {
		return "", NewTemplateError(l.Path, "render", err)
	}
	return out, nil
}

// renderContext merges default and per-call locals and resolves the locale.
// The engines see the result read-only.
func (e *Email) renderContext(locals Locals) engine.Context {
	data := make(map[string]any, len(e.config.Views.Locals)+len(locals)+1)
	maps.Copy(data, e.config.Views.Locals)
	maps.Copy(data, locals)

	locale := i18n.ResolveLocale(data, e.config.I18n)
	data["locale"] = locale

	rc := engine.Context{Locals: data, Locale: locale}
	if e.translator != nil {
		rc.Funcs = map[string]any{"t": e.translator.Func(locale)}
	}
	return rc
}
