package state

import (
	"slices"
	"time"
)

// MaxPlayers 一局桌上足球固定 4 人
const MaxPlayers = 4

// Phase is the derived lifecycle stage of a channel's game.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseRecruiting
	PhaseLocked
)

func (p Phase) String() string {
	switch p {
	case PhaseRecruiting:
		return "recruiting"
	case PhaseLocked:
		return "locked"
	default:
		return "empty"
	}
}

// GameState is the per-channel roster record. It is only mutated by the
// referee's command handlers.
type GameState struct {
	Players           []string
	Open              bool
	LastGameTimestamp time.Time
}

// NewGameState returns the default record: no players, closed.
func NewGameState(now time.Time) *GameState {
	return &GameState{
		Players:           []string{},
		Open:              false,
		LastGameTimestamp: now,
	}
}

// HasPlayer reports whether id is on the roster.
func (g *GameState) HasPlayer(id string) bool {
	return slices.Contains(g.Players, id)
}

// Needed is the number of players still missing for a full game.
func (g *GameState) Needed() int {
	return MaxPlayers - len(g.Players)
}

// Full reports whether the roster holds exactly MaxPlayers.
func (g *GameState) Full() bool {
	return len(g.Players) == MaxPlayers
}

// Restart replaces the roster with a single player and opens recruiting.
func (g *GameState) Restart(player string) {
	g.Players = []string{player}
	g.Open = true
}

// RemovePlayer drops id from the roster, keeping order. It returns false
// when id was not on the roster.
func (g *GameState) RemovePlayer(id string) bool {
	i := slices.Index(g.Players, id)
	if i < 0 {
		return false
	}
	g.Players = slices.Delete(g.Players, i, i+1)
	return true
}

func (g *GameState) Phase() Phase {
	switch {
	case len(g.Players) == 0:
		return PhaseEmpty
	case g.Full() && !g.Open:
		return PhaseLocked
	default:
		return PhaseRecruiting
	}
}

// Clone returns a deep copy, safe to hand out of the store.
func (g *GameState) Clone() *GameState {
	c := *g
	c.Players = slices.Clone(g.Players)
	if c.Players == nil {
		c.Players = []string{}
	}
	return &c
}
