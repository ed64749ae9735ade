// Package publisher fans audit events out to the primary store and any
// additional sinks (e.g. Kafka). The transition engine emits through a
// Publisher so storage and shipping concerns stay out of domain code.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	"aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"
)

// Store is the primary, queryable audit log.
type Store interface {
	Append(ctx context.Context, event audit.Event) error
	ListByDonation(ctx context.Context, id domain.DonationID) ([]audit.Event, error)
}

// Sink receives a copy of every event. Sink failures are logged and never
// fail the emitting call; the primary store is the source of truth.
type Sink interface {
	Append(ctx context.Context, event audit.Event) error
}

// Publisher writes events to the store synchronously by default. With an
// async buffer, events are queued and drained by a background worker; a full
// buffer drops the event rather than blocking the caller.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger

	ch     chan audit.Event
	wg     sync.WaitGroup
	closed sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous delivery with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.ch = make(chan audit.Event, size)
	}
}

// WithSink adds an additional delivery target.
func WithSink(s Sink) Option {
	return func(p *Publisher) {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
}

// WithLogger sets the logger used for sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.ch != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records one event. In sync mode the event is durably appended before
// Emit returns; in async mode it is queued.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.ch == nil {
		return p.deliver(ctx, event)
	}
	select {
	case p.ch <- event:
		return nil
	default:
		p.logger.Warn("audit buffer full, dropping event",
			"action", event.Action,
			"donation_id", event.DonationID,
		)
		return nil
	}
}

// List returns the trail for one donation from the primary store.
func (p *Publisher) List(ctx context.Context, id domain.DonationID) ([]audit.Event, error) {
	return p.store.ListByDonation(ctx, id)
}

// Close drains any queued events and stops the worker. Safe to call more
// than once.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.ch != nil {
			close(p.ch)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.ch {
		if err := p.deliver(context.Background(), event); err != nil {
			p.logger.Error("audit append failed", "error", err, "action", event.Action)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Append(ctx, event); err != nil {
			p.logger.Error("audit sink append failed", "error", err, "action", event.Action)
		}
	}
	return nil
}
