// Package telemetry provides a JSONL event stream recording every change to
// a project model: entities created, mutated and disposed, links added and
// removed, and requirement imports. The stream makes a session auditable
// after the fact.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of telemetry event.
const (
	KindEntityCreated  = "entity_created"
	KindEntityMutated  = "entity_mutated"
	KindEntityDisposed = "entity_disposed"
	KindLinkCreated    = "link_created"
	KindLinkRemoved    = "link_removed"
	KindImportApplied  = "import_applied"
)

// Event is a single telemetry record. Entity is the "kind:uuid" identifier
// of the entity concerned, Op the operation name.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Project   string    `json:"project,omitempty"`
	Entity    string    `json:"entity,omitempty"`
	Op        string    `json:"op,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes telemetry events as JSON lines. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	w   io.WriteCloser
	enc *json.Encoder
	mu  sync.Mutex
	now func() time.Time
}

// NewEmitter creates an Emitter appending to the file at path, creating it
// if needed.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return NewWriterEmitter(f), nil
}

// NewWriterEmitter creates an Emitter on w. Close closes w.
func NewWriterEmitter(w io.WriteCloser) *Emitter {
	return &Emitter{w: w, enc: json.NewEncoder(w), now: time.Now}
}

// Emit writes a single event. A zero Timestamp is filled with the current
// time. Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Close closes the underlying writer. Calling Close on a nil Emitter is a
// no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.w.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
