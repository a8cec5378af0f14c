// Package mimemsg converts messages into go-mail MIME messages for the
// transports that submit raw RFC 5322 content.
package mimemsg

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/lattiq/postcard/internal/core"
)

// Build creates a go-mail message. Inline attachments are embedded with
// their content ID; the rest are attached.
func Build(msg *core.Message, userAgent string) (*mail.Msg, error) {
	m := mail.NewMsg()

	if err := m.FromFormat(msg.From.Name, msg.From.Email); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	for _, a := range msg.To {
		if err := m.AddToFormat(a.Name, a.Email); err != nil {
			return nil, fmt.Errorf("to %s: %w", a.Email, err)
		}
	}
	for _, a := range msg.CC {
		if err := m.AddCcFormat(a.Name, a.Email); err != nil {
			return nil, fmt.Errorf("cc %s: %w", a.Email, err)
		}
	}
	for _, a := range msg.BCC {
		if err := m.AddBccFormat(a.Name, a.Email); err != nil {
			return nil, fmt.Errorf("bcc %s: %w", a.Email, err)
		}
	}
	if len(msg.ReplyTo) > 0 {
		m.SetGenHeaderPreformatted(mail.HeaderReplyTo, strings.Join(core.Strings(msg.ReplyTo), ", "))
	}

	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetDate()
	if userAgent != "" {
		m.SetUserAgent(userAgent)
	}
	for k, v := range msg.Headers {
		m.SetGenHeader(mail.Header(k), v)
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
	}

	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		data, err := att.Bytes()
		if err != nil {
			return nil, err
		}
		opts := []mail.FileOption{mail.WithFileContentType(mail.ContentType(att.DetectContentType()))}
		if att.Inline || att.ContentID != "" {
			if att.ContentID != "" {
				opts = append(opts, mail.WithFileContentID(att.ContentID))
			}
			if err := m.EmbedReader(att.Name(), bytes.NewReader(data), opts...); err != nil {
				return nil, fmt.Errorf("embed %s: %w", att.Name(), err)
			}
			continue
		}
		if err := m.AttachReader(att.Name(), bytes.NewReader(data), opts...); err != nil {
			return nil, fmt.Errorf("attach %s: %w", att.Name(), err)
		}
	}

	return m, nil
}

// Raw returns the serialized message.
func Raw(m *mail.Msg) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
