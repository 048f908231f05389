// room/room.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/foosref/session"
)

// Room 是一个聊天频道，记录当前在线的连接
type Room struct {
	ID          string
	CreatedAt   time.Time
	Players     map[string]*session.Session // sessionID -> session
	playerMutex sync.RWMutex
}

func NewRoom(id string) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		Players:   make(map[string]*session.Session),
	}
}

func (r *Room) GetID() string {
	return r.ID
}

// AddPlayer adds a connection to the channel.
func (r *Room) AddPlayer(s *session.Session) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()
	r.Players[s.ID] = s
}

// RemovePlayer 从频道移除一个连接
func (r *Room) RemovePlayer(sessionID string) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()
	delete(r.Players, sessionID)
}

func (r *Room) GetPlayer(sessionID string) (*session.Session, bool) {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	player, exists := r.Players[sessionID]
	return player, exists
}

func (r *Room) Size() int {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return len(r.Players)
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.Players))
	for _, s := range r.Players {
		sessions = append(sessions, s)
	}
	return sessions
}

// --- 房间管理器 ---

// Manager tracks which connections are in which channel. Rooms are created
// on first join and dropped when the last connection leaves.
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// Join puts s into channel id, creating the room if needed.
func (m *Manager) Join(id string, s *session.Session) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[id]
	if !exists {
		room = NewRoom(id)
		m.rooms[id] = room
	}
	room.AddPlayer(s)
	return room
}

// Leave removes sessionID from channel id and drops the room once empty.
func (m *Manager) Leave(id, sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[id]
	if !exists {
		return
	}
	room.RemovePlayer(sessionID)
	if room.Size() == 0 {
		delete(m.rooms, id)
	}
}

func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// RoomIDs lists the channels with at least one connection, sorted.
func (m *Manager) RoomIDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
