package session

import (
	"context"
	"errors"
	"sync"
)

// Durable storage keys. Both are written together and cleared together.
const (
	KeyToken   = "session.token"
	KeyProfile = "session.profile"
)

// ErrCorrupt is returned by a Storage whose persisted values can't be read
// back (e.g. sealed with another key). The service treats it as "no
// session" and clears the storage.
var ErrCorrupt = errors.New("session: persisted state is unreadable")

// Record is what a Storage persists. Either field may be empty when the
// stored state is partial.
type Record struct {
	Token   string
	Profile []byte
}

// Storage persists the session across process restarts.
type Storage interface {
	// Load returns whatever is stored; an empty Record when nothing is.
	Load(ctx context.Context) (Record, error)

	// Save writes token and profile atomically.
	Save(ctx context.Context, rec Record) error

	// Clear removes both keys. Clearing empty storage is not an error.
	Clear(ctx context.Context) error
}

// MemoryStorage keeps the record in process memory. It backs tests and the
// --ephemeral CLI mode.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string][]byte)}
}

func (m *MemoryStorage) Load(context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Record{
		Token:   string(m.values[KeyToken]),
		Profile: append([]byte(nil), m.values[KeyProfile]...),
	}, nil
}

func (m *MemoryStorage) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[KeyToken] = []byte(rec.Token)
	m.values[KeyProfile] = append([]byte(nil), rec.Profile...)
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, KeyToken)
	delete(m.values, KeyProfile)
	return nil
}

// Put sets a single raw key. Tests use it to fake partial state.
func (m *MemoryStorage) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Len reports how many keys are stored.
func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
