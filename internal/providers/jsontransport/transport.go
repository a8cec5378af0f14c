// Package jsontransport serializes messages to JSON instead of delivering them.
package jsontransport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lattiq/postcard/internal/core"
)

// Name is the transport type.
const Name = "json"

// Document is the serialized form of a message.
type Document struct {
	MessageID string        `json:"messageId"`
	Envelope  core.Envelope `json:"envelope"`
	core.Message
}

// Transport renders messages as JSON documents.
type Transport struct {
	now func() time.Time
}

// New creates the JSON transport.
func New() *Transport {
	return &Transport{now: time.Now}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return Name
}

// Send encodes msg. The encoded document is returned in SendResult.Message.
func (t *Transport) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := Document{
		MessageID: "<" + uuid.NewString() + "@postcard>",
		Envelope:  msg.Envelope(),
		Message:   *msg,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, core.WrapProviderError(Name, "encode_error", err)
	}

	return &core.SendResult{
		MessageID: doc.MessageID,
		Provider:  Name,
		Timestamp: t.now(),
		Envelope:  doc.Envelope,
		Message:   data,
	}, nil
}

// Decode parses a document produced by Send.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
