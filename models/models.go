// models/models.go
package models

import (
	"time"
)

// ChannelState 频道对局状态的持久化表示
type ChannelState struct {
	ChannelID  string    `json:"channel_id"`
	Players    []string  `json:"players"`
	Open       bool      `json:"open"`
	LastGameAt time.Time `json:"last_game_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
