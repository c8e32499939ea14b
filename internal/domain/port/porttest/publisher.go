package porttest

import (
	"context"
	"sync"

	"github.com/bibbank/realizer/internal/domain/port"
	"github.com/bibbank/realizer/pkg/events"
)

var _ port.EventPublisher = (*Publisher)(nil)

// Publisher records published events by topic.
type Publisher struct {
	mu     sync.Mutex
	Events map[string][]events.DomainEvent
	Err    error
}

// NewPublisher creates an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{Events: make(map[string][]events.DomainEvent)}
}

func (p *Publisher) Publish(_ context.Context, topic string, evts ...events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events[topic] = append(p.Events[topic], evts...)
	return nil
}

// Topic returns the events published on topic.
func (p *Publisher) Topic(topic string) []events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.DomainEvent(nil), p.Events[topic]...)
}
