// Package publisher emits audit events to a store, inline or through a
// bounded background buffer.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	id "accounts/pkg/domain"
	audit "accounts/pkg/platform/audit"
	"accounts/pkg/platform/device"
	"accounts/pkg/requestcontext"
)

var errBufferFull = errors.New("audit buffer full")

// Publisher enriches events from the request context and appends them to
// the store. With an async buffer, Emit never waits on the store and events
// are dropped once the buffer is full.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	buffer     chan audit.Event
	mu         sync.RWMutex
	closed     bool
	done       chan struct{}
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer persists events on a background goroutine through a buffer
// of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records event. Missing timestamp, category and client details are
// filled from ctx.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	event = enrich(ctx, event)
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("audit publisher closed")
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.WarnContext(ctx, "audit event dropped",
			"action", event.Action,
			"user_id", event.UserID.String(),
		)
		return errBufferFull
	}
}

func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close stops accepting events and waits until buffered ones are stored.
func (p *Publisher) Close() {
	if p.buffer == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.buffer)
	p.mu.Unlock()
	<-p.done
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"user_id", event.UserID.String(),
				"request_id", event.RequestID,
				"error", err,
			)
		}
	}
}

func enrich(ctx context.Context, event audit.Event) audit.Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.Device == "" {
		if ua := requestcontext.UserAgent(ctx); ua != "" {
			event.Device = device.ParseUserAgent(ua)
		}
	}
	return event
}
