// Package attachment holds the named binary blobs that can be attached to a
// requirement or to one of its attributes. Metadata lives with the owning
// entity; content lives in a Store so large blobs can be kept out of memory.
package attachment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papapumpkin/tptmodel/internal/apierr"
)

// Attachment describes one stored blob.
type Attachment struct {
	ID        string    `json:"id" yaml:"id" toml:"id"`
	FileName  string    `json:"file_name" yaml:"file_name" toml:"file_name"`
	Size      int       `json:"size" yaml:"size" toml:"size"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at" toml:"created_at"`
}

// New returns metadata for a fresh attachment. The file name is used for
// temporary files when the attachment is viewed; it must not be empty.
func New(fileName string, content []byte) (Attachment, error) {
	if fileName == "" {
		return Attachment{}, apierr.Constraint("attachment: empty file name")
	}
	return Attachment{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Size:      len(content),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Store keeps attachment content. Implementations must be safe for
// concurrent use. Failures talking to a backing service are reported as
// apierr transport errors.
type Store interface {
	// Put stores content under a.ID, replacing any previous content.
	Put(ctx context.Context, a Attachment, content []byte) error

	// Get returns the content stored under id, or apierr.ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)

	// Delete removes the given ids. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Close releases backend resources.
	Close() error
}

// MemoryStore is a Store that keeps content in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put copies content into the store.
func (m *MemoryStore) Put(_ context.Context, a Attachment, content []byte) error {
	buf := make([]byte, len(content))
	copy(buf, content)
	m.mu.Lock()
	m.blobs[a.ID] = buf
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the stored content.
func (m *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	blob, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apierr.NotFound("attachment: %s", id)
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

// Delete removes ids from the store.
func (m *MemoryStore) Delete(_ context.Context, ids ...string) error {
	m.mu.Lock()
	for _, id := range ids {
		delete(m.blobs, id)
	}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
