package state

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/foosref/logger"
	"github.com/wfunc/foosref/models"
	"github.com/wfunc/foosref/persistence"
)

const persistTimeout = 5 * time.Second

// PersistentStore caches channel states in memory and writes every Save and
// Reset through to a database. Database failures are logged and the cached
// record stays authoritative.
type PersistentStore struct {
	db     persistence.Database
	states map[string]*GameState
	now    func() time.Time
	mu     sync.Mutex
}

func NewPersistentStore(db persistence.Database) *PersistentStore {
	return &PersistentStore{
		db:     db,
		states: make(map[string]*GameState),
		now:    time.Now,
	}
}

func (s *PersistentStore) Get(channelID string) *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gs, exists := s.states[channelID]; exists {
		return gs
	}

	gs := s.load(channelID)
	s.states[channelID] = gs
	return gs
}

func (s *PersistentStore) load(channelID string) *GameState {
	if gs, ok := s.fetch(channelID); ok {
		return gs
	}
	return NewGameState(s.now())
}

// Lookup checks the cache, then the database. A record read from the
// database is not cached, so lookups never add channels.
func (s *PersistentStore) Lookup(channelID string) (*GameState, bool) {
	s.mu.Lock()
	gs, exists := s.states[channelID]
	s.mu.Unlock()
	if exists {
		return gs, true
	}
	return s.fetch(channelID)
}

func (s *PersistentStore) fetch(channelID string) (*GameState, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	rec, err := s.db.LoadChannelState(ctx, channelID)
	if err != nil {
		if !errors.Is(err, persistence.ErrRecordNotFound) {
			logger.Log.Warnf("load state for channel %s: %v", channelID, err)
		}
		return nil, false
	}

	players := rec.Players
	if players == nil {
		players = []string{}
	}
	return &GameState{
		Players:           players,
		Open:              rec.Open,
		LastGameTimestamp: rec.LastGameAt,
	}, true
}

func (s *PersistentStore) Save(channelID string, gs *GameState) {
	s.mu.Lock()
	s.states[channelID] = gs
	snapshot := gs.Clone()
	s.mu.Unlock()

	s.persist(channelID, snapshot)
}

func (s *PersistentStore) Reset(channelID string) {
	gs := NewGameState(s.now())

	s.mu.Lock()
	s.states[channelID] = gs
	s.mu.Unlock()

	s.persist(channelID, gs.Clone())
}

func (s *PersistentStore) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *PersistentStore) persist(channelID string, gs *GameState) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	rec := &models.ChannelState{
		ChannelID:  channelID,
		Players:    gs.Players,
		Open:       gs.Open,
		LastGameAt: gs.LastGameTimestamp,
		UpdatedAt:  s.now(),
	}
	if err := s.db.SaveChannelState(ctx, rec); err != nil {
		logger.Log.Errorf("persist state for channel %s: %v", channelID, err)
	}
}
