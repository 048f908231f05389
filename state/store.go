package state

import (
	"sort"
	"sync"
	"time"
)

// Store holds one GameState per channel. Get never fails: a channel seen for
// the first time gets a default record.
type Store interface {
	Get(channelID string) *GameState
	// Lookup returns the channel's record without creating one.
	Lookup(channelID string) (*GameState, bool)
	Save(channelID string, gs *GameState)
	Reset(channelID string)
	Channels() []string
}

// MemoryStore keeps channel states for the lifetime of the process.
type MemoryStore struct {
	states map[string]*GameState
	now    func() time.Time
	mu     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock is NewMemoryStore with an injectable clock for
// default timestamps.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*GameState),
		now:    now,
	}
}

func (s *MemoryStore) Get(channelID string) *GameState {
	s.mu.RLock()
	gs, exists := s.states[channelID]
	s.mu.RUnlock()
	if exists {
		return gs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 双重检查，避免并发创建
	if gs, exists = s.states[channelID]; exists {
		return gs
	}
	gs = NewGameState(s.now())
	s.states[channelID] = gs
	return gs
}

// Save stores gs under channelID. Handlers mutate the pointer returned by
// Get, so for the memory store this only matters for foreign records.
func (s *MemoryStore) Save(channelID string, gs *GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[channelID] = gs
}

func (s *MemoryStore) Lookup(channelID string) (*GameState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, exists := s.states[channelID]
	return gs, exists
}

func (s *MemoryStore) Reset(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[channelID] = NewGameState(s.now())
}

// Channels lists every channel with a record, sorted.
func (s *MemoryStore) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
