package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/darmiel/warrant/internal/core"
)

var _ core.Auditor = (*FileAuditor)(nil)

var ErrClosed = errors.New("audit sink is closed")

type FileOptions struct {
	Path string `mapstructure:"path"`

	// Sync flushes every event to stable storage before Record returns.
	Sync bool `mapstructure:"sync"`
}

// FileAuditor is an auditor that appends hash-chained audit events to a file in JSON lines format.
type FileAuditor struct {
	opts FileOptions

	mu     sync.Mutex
	file   *os.File
	chain  chain
	closed bool
}

// NewFileAuditor opens (or creates) the audit file and continues its chain.
// A file whose last event cannot be read is refused.
func NewFileAuditor(opts FileOptions) (*FileAuditor, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("audit file path is empty")
	}

	var c chain
	if existing, err := os.Open(opts.Path); err == nil {
		err = scanEvents(existing, func(_ int, event core.AuditEvent) error {
			c.commit(event)
			return nil
		})
		_ = existing.Close()
		if err != nil {
			return nil, fmt.Errorf("reading existing audit log: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}

	file, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	return &FileAuditor{
		opts:  opts,
		file:  file,
		chain: c,
	}, nil
}

func (f *FileAuditor) Record(_ context.Context, event core.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	event.Timestamp = event.Timestamp.UTC()
	if err := f.chain.seal(&event); err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	line = append(line, '\n')

	if _, err := f.file.Write(line); err != nil {
		return fmt.Errorf("writing audit log entry: %w", err)
	}
	if f.opts.Sync {
		if err := f.file.Sync(); err != nil {
			return fmt.Errorf("syncing audit log: %w", err)
		}
	}
	f.chain.commit(event)
	return nil
}

func (f *FileAuditor) GetRecent(limit int) ([]core.AuditEvent, error) {
	return f.Find(nil, limit)
}

func (f *FileAuditor) Find(filter func(event core.AuditEvent) bool, limit int) ([]core.AuditEvent, error) {
	// hold the lock so no half-written line is read
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	defer file.Close()

	var matches []core.AuditEvent
	err = scanEvents(file, func(_ int, event core.AuditEvent) error {
		if filter == nil || filter(event) {
			matches = append(matches, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lastN(matches, limit), nil
}

func (f *FileAuditor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}

func lastN(events []core.AuditEvent, limit int) []core.AuditEvent {
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []core.AuditEvent{}
	}
	return events
}
