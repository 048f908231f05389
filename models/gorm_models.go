// models/gorm_models.go
package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// GormChannelState 频道状态表
type GormChannelState struct {
	gorm.Model
	ChannelID  string         `gorm:"uniqueIndex;not null"`
	Players    pq.StringArray `gorm:"type:text[];not null"`
	Open       bool           `gorm:"not null;default:false"`
	LastGameAt time.Time      `gorm:"not null"`
}

func (GormChannelState) TableName() string {
	return "channel_states"
}

// ToChannelState converts the row into the storage-neutral model.
func (m *GormChannelState) ToChannelState() *ChannelState {
	players := make([]string, len(m.Players))
	copy(players, m.Players)
	return &ChannelState{
		ChannelID:  m.ChannelID,
		Players:    players,
		Open:       m.Open,
		LastGameAt: m.LastGameAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
