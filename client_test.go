package postcard_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/postcard"
)

const root = "testdata/emails"

var from = postcard.Address{Name: "Postcard", Email: "from@example.com"}

func newEmail(t *testing.T, opts ...postcard.Option) *postcard.Email {
	t.Helper()

	base := []postcard.Option{
		postcard.WithViewsRoot(root),
		postcard.WithMessage(postcard.Message{From: from}),
		postcard.WithOverrides(map[string]any{
			"juice": map[string]any{
				"web_resources": map[string]any{"relative_to": root},
			},
		}),
		postcard.WithoutTracing(),
	}
	email, err := postcard.New(append(base, opts...)...)
	require.NoError(t, err)
	return email
}

func recipients() postcard.Message {
	return postcard.Message{
		To:  []postcard.Address{{Email: "to@example.com"}},
		CC:  []postcard.Address{{Email: "cc@example.com"}},
		BCC: []postcard.Address{{Email: "bcc@example.com"}},
	}
}

// decode parses the JSON transport output.
func decode(t *testing.T, res *postcard.SendResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(res.Message, &doc))
	return doc
}

type recordingTransport struct {
	mu     sync.Mutex
	msgs   []*postcard.Message
	result *postcard.SendResult
	err    error
}

func (r *recordingTransport) Send(_ context.Context, msg *postcard.Message) (*postcard.SendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.result, r.err
}

func (r *recordingTransport) sent() []*postcard.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*postcard.Message(nil), r.msgs...)
}

func TestNew_WithoutTransport(t *testing.T) {
	t.Parallel()

	email, err := postcard.New()
	require.NoError(t, err)
	require.NotNil(t, email)

	_, err = email.Send(context.Background(), postcard.SendOptions{
		Message: postcard.Message{Text: "hi"},
	})
	assert.ErrorIs(t, err, postcard.ErrNoTransport)
}

func TestNew_DeepMergeKeepsDefaults(t *testing.T) {
	t.Parallel()

	email, err := postcard.New(
		postcard.WithJSONTransport(),
		postcard.WithOverrides(map[string]any{
			"juice": map[string]any{
				"preserve_important": false,
				"web_resources":      map[string]any{"images": false},
			},
		}),
	)
	require.NoError(t, err)

	want, err := filepath.Abs("build")
	require.NoError(t, err)

	cfg := email.Config()
	assert.Equal(t, want, cfg.Juice.WebResources.RelativeTo)
	assert.False(t, cfg.Juice.PreserveImportant)
	assert.False(t, cfg.Juice.WebResources.Images)
	assert.True(t, cfg.Juice.WebResources.Links)
	assert.True(t, cfg.Juice.Enabled)
}

func TestNew_InvalidConfiguration(t *testing.T) {
	t.Parallel()

	_, err := postcard.New(postcard.WithTransportConfig("pigeon", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, postcard.ErrInvalidConfiguration)

	var vErr *postcard.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "transport.type", vErr.Field)
}

func TestNew_InvalidOverrides(t *testing.T) {
	t.Parallel()

	_, err := postcard.New(postcard.WithOverrides(map[string]any{
		"juice": map[string]any{"enabled": map[string]any{"nested": true}},
	}))
	assert.ErrorIs(t, err, postcard.ErrInvalidConfiguration)
}

func TestEmail_Config_ReturnsCopy(t *testing.T) {
	t.Parallel()

	email := newEmail(t)
	cfg := email.Config()
	cfg.Views.Extensions[0] = ".changed"
	cfg.Message.From.Email = "other@example.com"

	again := email.Config()
	assert.Equal(t, ".tmpl", again.Views.Extensions[0])
	assert.Equal(t, from, again.Message.From)
}

func TestEmail_Render_InlinesCSS(t *testing.T) {
	t.Parallel()

	html, err := newEmail(t).Render(context.Background(), "test/html", postcard.Locals{"name": "niftylettuce"})
	require.NoError(t, err)

	assert.Contains(t, html, `<p style="color: red;">Hi niftylettuce</p>`)
	assert.Contains(t, html, "@media", "media queries stay in a style block")
	assert.NotContains(t, html, "p { color: red; }")
}

func TestEmail_Render_InlinesCSSWhenTextOnly(t *testing.T) {
	t.Parallel()

	email := newEmail(t, postcard.WithTextOnly(true))
	html, err := email.Render(context.Background(), "test/html", postcard.Locals{"name": "x"})
	require.NoError(t, err)

	assert.Contains(t, html, `<p style="color: red;">Hi x</p>`)
	assert.NotContains(t, html, "p { color: red; }")
}

func TestEmail_Render_WithoutJuice(t *testing.T) {
	t.Parallel()

	email := newEmail(t, postcard.WithOverrides(map[string]any{
		"juice": map[string]any{"enabled": false},
	}))
	html, err := email.Render(context.Background(), "test/html", postcard.Locals{"name": "x"})
	require.NoError(t, err)
	assert.Contains(t, html, "<p>Hi x</p>")
}

func TestEmail_Render_Subject(t *testing.T) {
	t.Parallel()

	out, err := newEmail(t).Render(context.Background(), "test/subject", postcard.Locals{"name": "<b>"})
	require.NoError(t, err)
	assert.Equal(t, "Test email for <b>\n", out, "subjects are not escaped or inlined")
}

func TestEmail_Render_MissingTemplate(t *testing.T) {
	t.Parallel()

	_, err := newEmail(t).Render(context.Background(), "missing", postcard.Locals{"name": "niftylettuce"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file or directory")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, err, postcard.ErrNotFound)

	var nf *postcard.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, filepath.Join(root, "missing.tmpl"), nf.Path)
}

func TestEmail_Render_InvalidName(t *testing.T) {
	t.Parallel()

	_, err := newEmail(t).Render(context.Background(), "../secret", nil)
	assert.ErrorIs(t, err, postcard.ErrInvalidTemplateName)
}

func TestEmail_Render_EngineFailure(t *testing.T) {
	t.Parallel()

	_, err := newEmail(t).Render(context.Background(), "broken/html", nil)
	require.Error(t, err)

	var tErr *postcard.TemplateError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "broken/html.tmpl", tErr.Template)
	assert.Equal(t, "render", tErr.Operation)
}

func TestEmail_Render_Markdown(t *testing.T) {
	t.Parallel()

	html, err := newEmail(t).Render(context.Background(), "markdown/html", postcard.Locals{"name": "Ada"})
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Hello Ada</h1>")
	assert.Contains(t, html, "<em>joining</em>")
}

func TestEmail_Render_CustomEngine(t *testing.T) {
	t.Parallel()

	custom := postcard.EngineFunc(func(_ context.Context, name string, source []byte, kind postcard.Kind, rc postcard.RenderContext) (string, error) {
		return fmt.Sprintf("%s|%s|%v", name, strings.TrimSpace(string(source)[:2]), rc.Locals["name"]), nil
	})
	email := newEmail(t, postcard.WithEngine("txt", custom))

	out, err := email.Render(context.Background(), "test-text-only/text", postcard.Locals{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "test-text-only/text|Hi|Ada", out)
}

func TestEmail_Render_FSStore(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"mail/welcome/subject.txt": &fstest.MapFile{Data: []byte("Welcome {{.name}}")},
		"mail/welcome/text.txt":    &fstest.MapFile{Data: []byte("Hello {{.name}}")},
	}
	email := newEmail(t, postcard.WithStore(postcard.NewFSStore(fsys, "mail")))

	out, err := email.Render(context.Background(), "welcome/text", postcard.Locals{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", out)

	msg, err := email.RenderAll(context.Background(), postcard.SendOptions{
		Template: "welcome",
		Locals:   postcard.Locals{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome Ada", msg.Subject)
	assert.Empty(t, msg.HTML)
}

func TestEmail_Send(t *testing.T) {
	t.Parallel()

	email := newEmail(t, postcard.WithJSONTransport())
	res, err := email.Send(context.Background(), postcard.SendOptions{
		Template: "test",
		Message:  recipients(),
		Locals:   postcard.Locals{"name": "niftylettuce"},
	})
	require.NoError(t, err)
	assert.Equal(t, "json", res.Provider)
	assert.NotEmpty(t, res.MessageID)
	assert.Equal(t, "from@example.com", res.Envelope.From)
	assert.ElementsMatch(t, []string{"to@example.com", "cc@example.com", "bcc@example.com"}, res.Envelope.To)

	doc := decode(t, res)
	assert.Equal(t, "Test email for niftylettuce", doc["subject"])
	assert.Contains(t, doc["html"], `<p style="color: red;">Hi niftylettuce</p>`)
	assert.Equal(t, "Hi niftylettuce,\nThis is just a test.", doc["text"])
}

func TestEmail_Send_TwoDifferentLocals(t *testing.T) {
	t.Parallel()

	email := newEmail(t, postcard.WithJSONTransport())
	for _, name := range []string{"niftylettuce1", "niftylettuce2"} {
		res, err := email.Send(context.Background(), postcard.SendOptions{
			Template: "test",
			Message:  recipients(),
			Locals:   postcard.Locals{"name": name},
		})
		require.NoError(t, err)
		assert.Equal(t, "Test email for "+name, decode(t, res)["subject"])
	}
}

func TestEmail_Send_Concurrent(t *testing.T) {
	t.Parallel()

	email := newEmail(t, postcard.WithJSONTransport())

	var wg sync.WaitGroup
	subjects := make([]string, 16)
	errs := make([]error, 16)
	for i := range subjects {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := email.RenderAll(context.Background(), postcard.SendOptions{
				Template: "test",
				Locals:   postcard.Locals{"name": fmt.Sprintf("user%d", i)},
			})
			errs[i] = err
			if err == nil {
				subjects[i] = msg.Subject
			}
		}()
	}
	wg.Wait()

	for i, subject := range subjects {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("Test email for user%d", i), subject)
	}
}

func TestEmail_Send_TextOnlyTemplate(t *testing.T) {
	t.Parallel()

	res, err := newEmail(t, postcard.WithJSONTransport()).Send(context.Background(), postcard.SendOptions{
		Template: "test-text-only",
		Message:  recipients(),
		Locals:   postcard.Locals{"name": "niftylettuce"},
	})
	require.NoError(t, err)

	doc := decode(t, res)
	assert.NotContains(t, doc, "html")
	assert.Equal(t, "Hi niftylettuce,\nThis is just a test.", doc["text"])
}

func TestEmail_Send_TextOnlyOption(t *testing.T) {
	t.Parallel()

	email := newEmail(t,
		postcard.WithJSONTransport(),
		postcard.WithTextOnly(true),
		postcard.WithHTMLToText(false),
	)
	res, err := email.Send(context.Background(), postcard.SendOptions{
		Template: "test",
		Message:  recipients(),
		Locals:   postcard.Locals{"name": "niftylettuce"},
	})
	require.NoError(t, err)

	doc := decode(t, res)
	assert.NotContains(t, doc, "html")
	assert.Equal(t, "Hi niftylettuce,\nThis is just a test.", doc["text"])
}

func TestEmail_RenderAll_HTMLToText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		enabled bool
	}{
		{name: "derived when enabled", enabled: true},
		{name: "absent when disabled", enabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			email := newEmail(t, postcard.WithHTMLToText(tt.enabled))
			msg, err := email.RenderAll(context.Background(), postcard.SendOptions{
				Template: "markdown",
				Locals:   postcard.Locals{"name": "Ada"},
			})
			require.NoError(t, err)
			assert.Equal(t, "Markdown for Ada", msg.Subject)
			assert.Contains(t, msg.HTML, "<h1>Hello Ada</h1>")
			if tt.enabled {
				assert.Contains(t, msg.Text, "joining")
			} else {
				assert.Empty(t, msg.Text)
			}
		})
	}
}

func TestEmail_RenderAll_CallerFieldsWin(t *testing.T) {
	t.Parallel()

	msg, err := newEmail(t).RenderAll(context.Background(), postcard.SendOptions{
		Template: "test",
		Message: postcard.Message{
			Subject: "Explicit",
			Text:    "explicit text",
		},
		Locals: postcard.Locals{"name": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Explicit", msg.Subject)
	assert.Equal(t, "explicit text", msg.Text)
	assert.Contains(t, msg.HTML, "Hi x")
	assert.Equal(t, from, msg.From)
}

func TestEmail_RenderAll_DirectHTMLIsInlined(t *testing.T) {
	t.Parallel()

	msg, err := newEmail(t).RenderAll(context.Background(), postcard.SendOptions{
		Message: postcard.Message{
			HTML: `<style>b { font-weight: 700; }</style><b>bold</b>`,
		},
	})
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, `<b style="font-weight: 700;">bold</b>`)
	assert.Contains(t, msg.Text, "bold")
}

func TestEmail_RenderAll_InlineImages(t *testing.T) {
	t.Parallel()

	email := newEmail(t, postcard.WithOverrides(map[string]any{
		"juice": map[string]any{
			"web_resources": map[string]any{"relative_to": filepath.Join(root, "images")},
		},
	}))
	report := postcard.Attachment{Filename: "report.txt", Content: []byte("report")}

	msg, err := email.RenderAll(context.Background(), postcard.SendOptions{
		Template: "images",
		Message:  postcard.Message{Attachments: []postcard.Attachment{report}},
	})
	require.NoError(t, err)

	require.Len(t, msg.Attachments, 2)
	logo := msg.Attachments[0]
	assert.True(t, logo.Inline)
	assert.Equal(t, "logo.png", logo.Filename)
	assert.Equal(t, "image/png", logo.ContentType)
	require.NotEmpty(t, logo.ContentID)
	assert.Equal(t, 2, strings.Count(msg.HTML, "cid:"+logo.ContentID))
	assert.Equal(t, report, msg.Attachments[1])
}

func TestEmail_RenderAll_CallerAttachmentsSharingAnID(t *testing.T) {
	t.Parallel()

	email := newEmail(t, postcard.WithOverrides(map[string]any{
		"juice": map[string]any{
			"web_resources": map[string]any{"relative_to": filepath.Join(root, "images")},
		},
	}))
	own := []postcard.Attachment{
		{Filename: "a.png", Content: []byte("a"), ContentID: "same"},
		{Filename: "b.png", Content: []byte("b"), ContentID: "same"},
	}

	tests := []struct {
		template string
		want     int
	}{
		{template: "images", want: 3},
		{template: "test-text-only", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			t.Parallel()

			msg, err := email.RenderAll(context.Background(), postcard.SendOptions{
				Template: tt.template,
				Message:  postcard.Message{Attachments: own},
			})
			require.NoError(t, err)
			require.Len(t, msg.Attachments, tt.want)
			assert.Equal(t, own, msg.Attachments[tt.want-2:])
		})
	}
}

func TestEmail_RenderAll_CallerAttachmentsReplaceDefaults(t *testing.T) {
	t.Parallel()

	def := postcard.Attachment{Filename: "default.txt", Content: []byte("default")}
	own := postcard.Attachment{Filename: "own.txt", Content: []byte("own")}
	email := newEmail(t, postcard.WithMessage(postcard.Message{
		From:        from,
		Attachments: []postcard.Attachment{def},
	}))

	msg, err := email.RenderAll(context.Background(), postcard.SendOptions{
		Message: postcard.Message{Text: "hi", Attachments: []postcard.Attachment{own}},
	})
	require.NoError(t, err)
	assert.Equal(t, []postcard.Attachment{own}, msg.Attachments)

	msg, err = email.RenderAll(context.Background(), postcard.SendOptions{
		Message: postcard.Message{Text: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, []postcard.Attachment{def}, msg.Attachments)
}

func TestEmail_RenderAll_NoBodies(t *testing.T) {
	t.Parallel()

	msg, err := newEmail(t).RenderAll(context.Background(), postcard.SendOptions{
		Template: "missing",
		Message:  recipients(),
	})
	require.NoError(t, err)
	assert.Empty(t, msg.HTML)
	assert.Empty(t, msg.Text)
}

func TestEmail_RenderAll_EngineFailure(t *testing.T) {
	t.Parallel()

	_, err := newEmail(t).RenderAll(context.Background(), postcard.SendOptions{Template: "broken"})

	var tErr *postcard.TemplateError
	assert.ErrorAs(t, err, &tErr)
}

func TestEmail_RenderAll_SubjectPrefix(t *testing.T) {
	t.Parallel()

	msg, err := newEmail(t, postcard.WithSubjectPrefix("[staging] ")).RenderAll(context.Background(), postcard.SendOptions{
		Template: "test",
		Locals:   postcard.Locals{"name": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "[staging] Test email for x", msg.Subject)
}

func TestEmail_Locale(t *testing.T) {
	t.Parallel()

	email := newEmail(t, postcard.WithI18n(&postcard.I18nConfig{
		DefaultLocale: "en",
		Locales:       []string{"en", "es"},
	}))

	tests := []struct {
		name   string
		locals postcard.Locals
		want   string
	}{
		{name: "default locale", locals: postcard.Locals{}, want: "Welcome aboard"},
		{name: "explicit locale", locals: postcard.Locals{"locale": "es"}, want: "Bienvenido a bordo"},
		{name: "user last locale", locals: postcard.Locals{"user": map[string]any{"last_locale": "es"}}, want: "Bienvenido a bordo"},
		{name: "explicit beats user", locals: postcard.Locals{"locale": "en", "user": map[string]any{"last_locale": "es"}}, want: "Welcome aboard"},
		{name: "region matched", locals: postcard.Locals{"locale": "es-MX"}, want: "Bienvenido a bordo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			html, err := email.Render(context.Background(), "test/html", tt.locals)
			require.NoError(t, err)
			assert.Contains(t, html, tt.want)
		})
	}
}

func TestEmail_Send_Disabled(t *testing.T) {
	t.Parallel()

	rec := &recordingTransport{}
	email := newEmail(t, postcard.WithTransport(rec), postcard.WithoutSend())

	res, err := email.Send(context.Background(), postcard.SendOptions{
		Template: "test",
		Message:  recipients(),
		Locals:   postcard.Locals{"name": "x"},
	})
	require.NoError(t, err)
	assert.Empty(t, rec.sent(), "transport is not called")
	assert.Equal(t, "json", res.Provider)
	assert.Equal(t, "Test email for x", decode(t, res)["subject"])
}

func TestEmail_Send_PassesTransportThrough(t *testing.T) {
	t.Parallel()

	providerErr := postcard.NewProviderError("custom", "rejected", "mailbox full")
	want := &postcard.SendResult{MessageID: "abc", Provider: "custom"}
	rec := &recordingTransport{result: want, err: providerErr}
	email := newEmail(t, postcard.WithTransport(rec))

	res, err := email.Send(context.Background(), postcard.SendOptions{
		Message: postcard.Message{To: []postcard.Address{{Email: "to@example.com"}}, Text: "hi"},
	})
	assert.Same(t, want, res)
	assert.True(t, errors.Is(err, providerErr))

	var pErr *postcard.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Same(t, providerErr, pErr)

	sent := rec.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, from, sent[0].From)
	assert.Equal(t, "hi", sent[0].Text)
}

func TestEmail_Send_FileTransport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	email := newEmail(t, postcard.WithTransportConfig(postcard.TransportFile, postcard.ProviderSettings{"dir": dir}))

	res, err := email.Send(context.Background(), postcard.SendOptions{
		Template: "test",
		Message:  recipients(),
		Locals:   postcard.Locals{"name": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "file", res.Provider)
	require.Contains(t, res.Metadata, "path")

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestEmail_Send_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEmail(t, postcard.WithJSONTransport()).Send(ctx, postcard.SendOptions{
		Template: "test",
		Locals:   postcard.Locals{"name": "x"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
