// internal/client/storage.go
package client

import "sync"

// TokenPair is the locally stored credential pair the gateway attaches to
// outgoing calls.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// TokenStorage is the narrow interface over the ambient token store. Any
// backend (in-memory, encrypted store, OS keychain) can be substituted
// without touching the gateway or the guard.
type TokenStorage interface {
	Get() (TokenPair, bool)
	Set(pair TokenPair)
	Clear()
}

// MemoryStorage is the default in-process TokenStorage.
type MemoryStorage struct {
	mu   sync.RWMutex
	pair TokenPair
	set  bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Get() (TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, s.set
}

func (s *MemoryStorage) Set(pair TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.set = true
}

func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	s.set = false
}
