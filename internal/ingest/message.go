package ingest

import (
	"context"
	"time"
)

// Field is a name/value pair carried by an embed.
type Field struct {
	Name  string
	Value string
}

// Embed is the structured part of a message.
type Embed struct {
	Fields       []Field
	ThumbnailURL string
	ImageURL     string
}

// Attachment is a file uploaded with a message.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// Message is one upstream item. ID must increase with message age.
type Message struct {
	ID          int64
	Timestamp   time.Time
	Embeds      []Embed
	Attachments []Attachment
}

// Source yields messages strictly after the cursor, oldest first. Iteration
// stops at the first error returned by fn.
type Source interface {
	Messages(ctx context.Context, after int64, fn func(Message) error) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, after int64, fn func(Message) error) error

// Messages calls f.
func (f SourceFunc) Messages(ctx context.Context, after int64, fn func(Message) error) error {
	return f(ctx, after, fn)
}
