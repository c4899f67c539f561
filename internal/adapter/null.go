package adapter

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// NullAdapter accepts every notification and only logs it. It is the
// transport used when no reviewer channel is configured.
type NullAdapter struct {
	name    string
	dropped atomic.Int64
}

func NewNullAdapter(name string) *NullAdapter {
	if name == "" {
		name = "null"
	}
	return &NullAdapter{name: name}
}

func (a *NullAdapter) Name() string { return a.name }

func (a *NullAdapter) Send(ctx context.Context, recipient string, msg Message) error {
	n := a.dropped.Add(1)
	slog.InfoContext(ctx, "Reviewer notification not delivered",
		"adapter", a.name,
		"recipient", recipient,
		"title", msg.Title,
		"fields", len(msg.Fields),
		"link", msg.LinkURL,
		"dropped_total", n,
	)
	return nil
}

// Dropped reports how many notifications were swallowed.
func (a *NullAdapter) Dropped() int64 { return a.dropped.Load() }

func (a *NullAdapter) Health(context.Context) error { return nil }
