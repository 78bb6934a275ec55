package audit

import (
	"context"
	"sync"

	"github.com/darmiel/warrant/internal/core"
)

var _ core.Auditor = (*InMemoryAuditor)(nil)

// InMemoryAuditor is an auditor that stores audit events in memory.
// Events are chained the same way the file auditor chains them.
type InMemoryAuditor struct {
	mu     sync.Mutex
	chain  chain
	events []core.AuditEvent
}

func NewInMemoryAuditor() *InMemoryAuditor {
	return &InMemoryAuditor{
		events: make([]core.AuditEvent, 0),
	}
}

func (i *InMemoryAuditor) Record(_ context.Context, event core.AuditEvent) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	event.Timestamp = event.Timestamp.UTC()
	if err := i.chain.seal(&event); err != nil {
		return err
	}
	i.events = append(i.events, event)
	i.chain.commit(event)
	return nil
}

func (i *InMemoryAuditor) GetRecent(limit int) ([]core.AuditEvent, error) {
	return i.Find(nil, limit)
}

func (i *InMemoryAuditor) Find(filter func(event core.AuditEvent) bool, limit int) ([]core.AuditEvent, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var matches []core.AuditEvent
	for _, event := range i.events {
		if filter == nil || filter(event) {
			matches = append(matches, event)
		}
	}
	return lastN(matches, limit), nil
}

func (i *InMemoryAuditor) Close() error {
	return nil // nothing to close :)
}
