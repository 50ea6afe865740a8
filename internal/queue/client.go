package queue

import (
	"context"
	"sync"
)

// Client publishes content-ready notifications to downstream consumers.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// NopClient drops every message. It is used when no notification queue is configured.
type NopClient struct{}

func (NopClient) Send(context.Context, Message) error { return nil }

// MemoryClient records messages in memory.
type MemoryClient struct {
	mu       sync.Mutex
	messages []Message
}

func (m *MemoryClient) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *MemoryClient) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

var (
	_ Client = NopClient{}
	_ Client = (*MemoryClient)(nil)
)
