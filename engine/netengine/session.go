package netengine

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "LacewingSession"

// SessionStore keeps per-client key/value sessions.
type SessionStore interface {
	// Exists reports whether a live session has id.
	Exists(id string) bool
	Get(id, key string) (string, bool)
	// Set creates the session when it does not exist yet.
	Set(id, key, value string) error
	Delete(id string) error
	Close() error
}

// newSessionID returns 32 lowercase hex characters.
func newSessionID() string {
	id, err := uuid.NewRandomFromReader(rand.Reader)
	if err != nil {
		var b [16]byte
		_, _ = rand.Read(b[:])
		return hex.EncodeToString(b[:])
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

type memorySession struct {
	data map[string]string
	mu   sync.Mutex
}

// MemoryStore is an in-memory SessionStore. The least recently used sessions
// are evicted beyond capacity and sessions expire ttl after their last write.
type MemoryStore struct {
	cache *expirable.LRU[string, *memorySession]
	mu    sync.Mutex
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding up to capacity sessions.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: expirable.NewLRU[string, *memorySession](capacity, nil, ttl),
	}
}

func (s *MemoryStore) Exists(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s.cache.Get(id)
	return ok
}

func (s *MemoryStore) Get(id, key string) (string, bool) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return "", false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	v, ok := sess.data[key]
	return v, ok
}

func (s *MemoryStore) Set(id, key, value string) error {
	s.mu.Lock()
	sess, ok := s.cache.Get(id)
	if !ok {
		sess = &memorySession{data: make(map[string]string)}
	}
	// Add refreshes the expiry.
	s.cache.Add(id, sess)
	s.mu.Unlock()

	sess.mu.Lock()
	sess.data[key] = value
	sess.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.cache.Remove(id)
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
