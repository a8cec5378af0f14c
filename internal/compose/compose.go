// Package compose merges rendered parts, caller fields and configured
// defaults into the message handed to the transport.
package compose

import (
	"strings"

	"github.com/lattiq/postcard/internal/core"
)

// Parts are the rendered template outputs. Empty means absent.
type Parts struct {
	Subject string
	HTML    string
	Text    string
}

// Compose builds a message with precedence caller > parts > defaults.
// Parts only contribute subject and bodies. Caller attachments, recipients
// and tags replace the defaults wholesale; headers and metadata merge per key.
// Neither input is modified.
func Compose(parts Parts, caller, defaults core.Message) core.Message {
	msg := core.Message{
		From:        defaults.From,
		ReplyTo:     pick(caller.ReplyTo, defaults.ReplyTo),
		To:          pick(caller.To, defaults.To),
		CC:          pick(caller.CC, defaults.CC),
		BCC:         pick(caller.BCC, defaults.BCC),
		Subject:     first(caller.Subject, parts.Subject, defaults.Subject),
		HTML:        first(caller.HTML, parts.HTML, defaults.HTML),
		Text:        first(caller.Text, parts.Text, defaults.Text),
		Attachments: pick(caller.Attachments, defaults.Attachments),
		Headers:     mergeMaps(defaults.Headers, caller.Headers),
		Tags:        pick(caller.Tags, defaults.Tags),
		Metadata:    mergeMaps(defaults.Metadata, caller.Metadata),
	}
	if !caller.From.IsZero() {
		msg.From = caller.From
	}
	return msg
}

// PrefixSubject prepends prefix unless the subject is empty or already has it.
func PrefixSubject(subject, prefix string) string {
	if prefix == "" || subject == "" || strings.HasPrefix(subject, prefix) {
		return subject
	}
	return prefix + subject
}

// PrependAttachments puts inline attachments ahead of the message's own.
// A message attachment is dropped when an inline attachment already uses its
// content ID; attachments from the message are otherwise kept as given.
func PrependAttachments(msg *core.Message, inline []core.Attachment) {
	if len(inline) == 0 {
		return
	}

	all := make([]core.Attachment, 0, len(inline)+len(msg.Attachments))
	taken := make(map[string]struct{}, len(inline))
	for _, att := range inline {
		if att.ContentID != "" {
			if _, dup := taken[att.ContentID]; dup {
				continue
			}
			taken[att.ContentID] = struct{}{}
		}
		all = append(all, att)
	}
	for _, att := range msg.Attachments {
		if _, clash := taken[att.ContentID]; att.ContentID != "" && clash {
			continue
		}
		all = append(all, att)
	}
	msg.Attachments = all
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func pick[T any](preferred, fallback []T) []T {
	src := fallback
	if len(preferred) > 0 {
		src = preferred
	}
	if len(src) == 0 {
		return nil
	}
	return append([]T(nil), src...)
}

func mergeMaps(base, over map[string]string) map[string]string {
	if len(base) == 0 && len(over) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
