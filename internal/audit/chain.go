package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/darmiel/warrant/internal/core"
)

const maxLineSize = 1 << 20

// chain links events: every event carries the hash of its predecessor and a
// hash over its own content, so removing or editing a line is detectable.
type chain struct {
	seq      uint64
	prevHash string
}

// seal assigns the next position in the chain to event. The chain only
// advances via commit, after the event was written.
func (c *chain) seal(event *core.AuditEvent) error {
	event.Seq = c.seq + 1
	event.PrevHash = c.prevHash
	event.Hash = ""
	sum, err := hashEvent(*event)
	if err != nil {
		return err
	}
	event.Hash = sum
	return nil
}

func (c *chain) commit(event core.AuditEvent) {
	c.seq = event.Seq
	c.prevHash = event.Hash
}

func hashEvent(event core.AuditEvent) (string, error) {
	event.Hash = ""
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encoding audit event: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ChainError points at the first event which breaks the chain.
type ChainError struct {
	Line   int
	Seq    uint64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at line %d (seq %d): %s", e.Line, e.Seq, e.Reason)
}

// VerifyChain reads JSON lines audit events and checks sequence numbers and hashes.
// It returns the number of verified events.
func VerifyChain(r io.Reader) (int, error) {
	var (
		prev  chain
		count int
	)
	err := scanEvents(r, func(line int, event core.AuditEvent) error {
		if event.Seq != prev.seq+1 {
			return &ChainError{Line: line, Seq: event.Seq, Reason: fmt.Sprintf("expected seq %d", prev.seq+1)}
		}
		if event.PrevHash != prev.prevHash {
			return &ChainError{Line: line, Seq: event.Seq, Reason: "previous hash does not match"}
		}
		sum, err := hashEvent(event)
		if err != nil {
			return err
		}
		if sum != event.Hash {
			return &ChainError{Line: line, Seq: event.Seq, Reason: "content hash does not match"}
		}
		prev.commit(event)
		count++
		return nil
	})
	return count, err
}

func scanEvents(r io.Reader, fn func(line int, event core.AuditEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var event core.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return &ChainError{Line: line, Reason: fmt.Sprintf("invalid json: %v", err)}
		}
		if err := fn(line, event); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ReadEvents reads JSON lines audit events without checking the chain.
// Events for which filter returns false are skipped. A nil filter keeps every event.
func ReadEvents(r io.Reader, filter func(core.AuditEvent) bool) ([]core.AuditEvent, error) {
	var events []core.AuditEvent
	err := scanEvents(r, func(_ int, event core.AuditEvent) error {
		if filter == nil || filter(event) {
			events = append(events, event)
		}
		return nil
	})
	return events, err
}
