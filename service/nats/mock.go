package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*ShieldedTransactionEvent
	publishError    error
	// failAfter makes batch publishing fail once this many events were published; -1 disables it.
	failAfter int
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*ShieldedTransactionEvent, 0),
		failAfter:       -1,
	}
}

// PublishShieldedTransaction records the event and returns any configured error.
func (m *MockPublisher) PublishShieldedTransaction(ctx context.Context, event *ShieldedTransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// PublishShieldedTransactionBatch records events until the configured failure point.
func (m *MockPublisher) PublishShieldedTransactionBatch(ctx context.Context, events []*ShieldedTransactionEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, event := range events {
		if m.publishError != nil && (m.failAfter < 0 || len(m.publishedEvents) >= m.failAfter) {
			return i, m.publishError
		}
		m.publishedEvents = append(m.publishedEvents, event)
	}
	return len(events), nil
}

// Close implements Publisher.
func (m *MockPublisher) Close() error {
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*ShieldedTransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*ShieldedTransactionEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventCount returns the number of published events.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishedEvents)
}

// GetPublishedEventsForAddress returns events published for a specific address.
func (m *MockPublisher) GetPublishedEventsForAddress(address string) []*ShieldedTransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ShieldedTransactionEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Address == address {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to fail publishing with err.
// With failAfter >= 0, batches only fail once that many events in total have been published.
func (m *MockPublisher) SetPublishError(err error, failAfter int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
	m.failAfter = failAfter
}
