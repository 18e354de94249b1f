// Package audit records the immutable trail of governance activity.
//
// The Log abstraction exposes append and nothing else: no truncate, seek,
// or overwrite exists at the type level. An append failure is never
// swallowed — an unaudited sensitive operation is equivalent to an
// unapproved one, so callers must fail the enclosing operation.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/acho-dev/acho/pkg/canonicalize"
)

// EventType categorizes audit events.
type EventType string

const (
	EventGate      EventType = "GATE"
	EventSensitive EventType = "SENSITIVE_OPERATION"
	EventWorkflow  EventType = "WORKFLOW"
	EventSystem    EventType = "SYSTEM"
)

// Event is a single immutable audit record. PreviousHash links each event
// to its predecessor so tampering with history is detectable.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Type         EventType      `json:"type"`
	Actor        string         `json:"actor"`
	Details      map[string]any `json:"details,omitempty"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
}

// ErrWriteFailed wraps any failure to durably record an event.
var ErrWriteFailed = errors.New("audit: write failed")

// Log is the append-only event sink.
type Log interface {
	Append(ctx context.Context, typ EventType, actor string, details map[string]any) error
}

// Clock supplies append timestamps; injectable for deterministic tests.
type Clock func() time.Time

// newEvent stamps and chains a record. The hash covers every field except
// the hash itself.
func newEvent(clock Clock, typ EventType, actor string, details map[string]any, prevHash string) (Event, error) {
	e := Event{
		ID:           uuid.New().String(),
		Timestamp:    clock().UTC(),
		Type:         typ,
		Actor:        actor,
		Details:      details,
		PreviousHash: prevHash,
	}
	h, err := eventHash(e)
	if err != nil {
		return Event{}, err
	}
	e.Hash = h
	return e, nil
}

func eventHash(e Event) (string, error) {
	return canonicalize.Hash(map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp,
		"type":          e.Type,
		"actor":         e.Actor,
		"details":       e.Details,
		"previous_hash": e.PreviousHash,
	})
}

// MemoryLog is an in-process Log for tests and embedded use.
type MemoryLog struct {
	clock  Clock
	events []Event
}

// NewMemoryLog creates a MemoryLog. A nil clock uses wall time.
func NewMemoryLog(clock Clock) *MemoryLog {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLog{clock: clock}
}

// Append implements Log.
func (m *MemoryLog) Append(_ context.Context, typ EventType, actor string, details map[string]any) error {
	prev := ""
	if n := len(m.events); n > 0 {
		prev = m.events[n-1].Hash
	}
	e, err := newEvent(m.clock, typ, actor, details, prev)
	if err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	m.events = append(m.events, e)
	return nil
}

// Events returns the recorded events in append order.
func (m *MemoryLog) Events() []Event { return m.events }
