package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport delivers a composed message.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Send delivers the message and returns the provider's result unchanged.
	Send(ctx context.Context, msg *Message) (*SendResult, error)
}

// Named is implemented by transports that can identify themselves for logs and traces.
type Named interface {
	Name() string
}

// TransportName returns the transport's name, or "custom" when it does not report one.
func TransportName(t Transport) string {
	if n, ok := t.(Named); ok {
		return n.Name()
	}
	return "custom"
}

// ProviderSettings represents configuration settings for built-in transports.
type ProviderSettings map[string]string

// Get retrieves a configuration value by key.
func (ps ProviderSettings) Get(key string) string {
	return ps[key]
}

// Set sets a configuration value.
func (ps ProviderSettings) Set(key, value string) {
	ps[key] = value
}

// Locals holds per-call template variables.
type Locals map[string]any

// Address represents an email address with optional display name.
type Address struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Email string `json:"email" yaml:"email"`
}

// String returns the formatted email address.
// If Name is provided, returns "Name <email@domain.com>"
// Otherwise returns just "email@domain.com"
func (a Address) String() string {
	if a.Name != "" {
		return mime.QEncoding.Encode("UTF-8", a.Name) + " <" + a.Email + ">"
	}
	return a.Email
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Email == "" && a.Name == ""
}

// Valid checks if the address has a valid email format.
func (a Address) Valid() bool {
	if a.Email == "" {
		return false
	}
	_, err := mail.ParseAddress(a.String())
	return err == nil
}

// UnmarshalYAML accepts either a mapping with name and email or a single
// address string such as "Jane <jane@example.com>".
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if strings.TrimSpace(value.Value) == "" {
			*a = Address{}
			return nil
		}
		parsed, err := ParseAddress(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*a = parsed
		return nil
	}
	type plain Address
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = Address(p)
	return nil
}

// UnmarshalJSON accepts either an object with name and email or a single
// address string.
func (a *Address) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*a = Address{}
			return nil
		}
		parsed, err := ParseAddress(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	type plain Address
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Address(p)
	return nil
}

// ParseAddress parses a single RFC 5322 address such as "Jane <jane@example.com>".
func ParseAddress(s string) (Address, error) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return Address{}, err
	}
	return Address{Name: addr.Name, Email: addr.Address}, nil
}

// ParseAddressList parses a comma separated list of addresses.
func ParseAddressList(s string) ([]Address, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	list, err := mail.ParseAddressList(s)
	if err != nil {
		return nil, err
	}
	out := make([]Address, len(list))
	for i, addr := range list {
		out[i] = Address{Name: addr.Name, Email: addr.Address}
	}
	return out, nil
}

// Strings formats each address with String.
func Strings(addrs []Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// Attachment represents a file attached to the message.
// Exactly one of Path or Content is expected to be set.
type Attachment struct {
	// Filename is the name of the file as it will appear in the email.
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`

	// Path points at a local file to read at delivery time.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Content holds the raw bytes of the file.
	Content []byte `json:"content,omitempty" yaml:"content,omitempty"`

	// ContentType is the MIME content type of the file.
	// If empty, it will be detected from the filename extension.
	ContentType string `json:"contentType,omitempty" yaml:"content_type,omitempty"`

	// ContentID links an inline attachment to a cid: reference in the HTML body.
	ContentID string `json:"cid,omitempty" yaml:"cid,omitempty"`

	// Inline indicates whether the attachment should be displayed inline.
	Inline bool `json:"inline,omitempty" yaml:"inline,omitempty"`
}

// DetectContentType attempts to detect the content type from the filename.
func (a *Attachment) DetectContentType() string {
	if a.ContentType != "" {
		return a.ContentType
	}

	name := a.Filename
	if name == "" {
		name = a.Path
	}
	return ContentTypeByExt(filepath.Ext(name))
}

// Name returns Filename, or the base name of Path.
func (a *Attachment) Name() string {
	if a.Filename != "" {
		return a.Filename
	}
	if a.Path != "" {
		return filepath.Base(a.Path)
	}
	return "attachment"
}

// Bytes returns Content, reading Path when no content is set.
func (a *Attachment) Bytes() ([]byte, error) {
	if a.Content != nil || a.Path == "" {
		return a.Content, nil
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", a.Path, err)
	}
	return data, nil
}

// ContentTypeByExt maps a file extension to a MIME type.
func ContentTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".webp":
		return "image/webp"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".csv":
		return "text/csv"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// Message is the entity handed to the transport.
// An absent body is the empty string and is omitted from the JSON form.
type Message struct {
	From        Address           `json:"from,omitzero" yaml:"from,omitempty"`
	ReplyTo     []Address         `json:"replyTo,omitempty" yaml:"reply_to,omitempty"`
	To          []Address         `json:"to,omitempty" yaml:"to,omitempty"`
	CC          []Address         `json:"cc,omitempty" yaml:"cc,omitempty"`
	BCC         []Address         `json:"bcc,omitempty" yaml:"bcc,omitempty"`
	Subject     string            `json:"subject,omitempty" yaml:"subject,omitempty"`
	HTML        string            `json:"html,omitempty" yaml:"html,omitempty"`
	Text        string            `json:"text,omitempty" yaml:"text,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep copy of the message's slices and maps.
func (m *Message) Clone() *Message {
	out := *m
	out.ReplyTo = append([]Address(nil), m.ReplyTo...)
	out.To = append([]Address(nil), m.To...)
	out.CC = append([]Address(nil), m.CC...)
	out.BCC = append([]Address(nil), m.BCC...)
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	out.Tags = append([]string(nil), m.Tags...)
	out.Headers = cloneMap(m.Headers)
	out.Metadata = cloneMap(m.Metadata)
	return &out
}

// HasAttachments returns true if the message has any attachments.
func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// HasInlineAttachments returns true if the message has any inline attachments.
func (m *Message) HasInlineAttachments() bool {
	for _, att := range m.Attachments {
		if att.Inline || att.ContentID != "" {
			return true
		}
	}
	return false
}

// AllRecipients returns To, CC and BCC combined into a single slice.
func (m *Message) AllRecipients() []Address {
	all := make([]Address, 0, len(m.To)+len(m.CC)+len(m.BCC))
	all = append(all, m.To...)
	all = append(all, m.CC...)
	all = append(all, m.BCC...)
	return all
}

// Envelope returns the SMTP-level sender and recipients of the message.
func (m *Message) Envelope() Envelope {
	env := Envelope{From: m.From.Email}
	for _, a := range m.AllRecipients() {
		env.To = append(env.To, a.Email)
	}
	return env
}

// Envelope is the SMTP-level sender and recipient list.
type Envelope struct {
	From string   `json:"from"`
	To   []string `json:"to"`
}

// SendResult contains the result of delivering a single message.
type SendResult struct {
	// MessageID is the unique identifier assigned by the provider.
	MessageID string `json:"messageId"`

	// Provider is the name of the transport that handled the message.
	Provider string `json:"provider"`

	// Timestamp when the message was accepted by the provider.
	Timestamp time.Time `json:"timestamp"`

	// Envelope is the sender and recipient list used for delivery.
	Envelope Envelope `json:"envelope"`

	// Message is the raw form of the message for transports that produce one.
	Message []byte `json:"message,omitempty"`

	// Metadata contains provider-specific information.
	Metadata map[string]any `json:"metadata,omitempty"`
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
