package adapter

import (
	"context"
)

// Field is a labelled value shown in a notification.
type Field struct {
	Label string
	Value string
}

// Message is a transport-neutral reviewer notification.
type Message struct {
	Title     string
	Summary   string
	Fields    []Field
	Quote     string
	Preview   string
	LinkURL   string
	LinkLabel string
}

// OutputAdapter delivers a notification to a reviewer on one platform.
type OutputAdapter interface {
	// Name returns the adapter name.
	Name() string

	// Send delivers msg. recipient maps to the platform identifier
	// (Slack user or channel ID, Telegram chat ID).
	Send(ctx context.Context, recipient string, msg Message) error

	// Health checks if the adapter can send messages.
	Health(ctx context.Context) error
}
