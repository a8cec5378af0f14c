// Package postcard renders templated emails and hands them to a pluggable
// delivery transport.
//
// A template is a directory under the views root holding up to three
// artifacts: subject, html and text. Each artifact is tried with every
// configured extension in order (".tmpl", ".html", ".md", ".txt" by default)
// and rendered by the engine registered for that extension. Missing html or
// text artifacts are skipped; the HTML body is CSS-inlined, local images are
// embedded as inline attachments, and a plain-text body is derived from the
// HTML when no text artifact exists.
//
// # Basic Usage
//
//	email, err := postcard.New(
//		postcard.WithViewsRoot("emails"),
//		postcard.WithMessage(postcard.Message{
//			From: postcard.Address{Email: "noreply@example.com"},
//		}),
//		postcard.WithAWSSES("us-east-1"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := email.Send(ctx, postcard.SendOptions{
//		Template: "welcome",
//		Message:  postcard.Message{To: []postcard.Address{{Email: "user@example.com"}}},
//		Locals:   postcard.Locals{"name": "Jane"},
//	})
//
// # Transports
//
//   - json (serializes the message, useful for previews and tests)
//   - file (writes messages to a directory for local development)
//   - smtp
//   - aws_ses
//   - sendgrid
//   - mailgun
//   - resend
//   - postmark
//
// Any value implementing Transport can be passed with WithTransport.
//
// # Features
//
//   - Template lookup with extension fallback from a directory, fs.FS or S3
//   - Go templates, plain text and Markdown engines; custom engines per extension
//   - CSS inlining and inline image attachments
//   - HTML to text derivation
//   - Locale resolution and phrase translation
//   - Distributed tracing with OpenTelemetry and structured logging with slog
//   - Context-aware, concurrency-safe operations
package postcard
