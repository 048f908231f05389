// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/foosref/logger"
	"github.com/wfunc/foosref/network"
	"github.com/wfunc/foosref/room"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
}

// RoomBroadcaster delivers chat lines to every connection in a channel. It
// is the referee's Messenger.
type RoomBroadcaster struct {
	roomManager *room.Manager
	botID       string
	botName     string
}

func NewRoomBroadcaster(roomManager *room.Manager, botID, botName string) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager: roomManager,
		botID:       botID,
		botName:     botName,
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	room, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	// Get a thread-safe copy of the sessions
	for _, s := range room.GetSessions() {
		if err := s.Send(msgID, data); err != nil {
			// 发送失败由连接的读循环负责清理
			logger.Log.Debugf("send to session %s failed: %v", s.GetID(), err)
			continue
		}
	}
	return nil
}

// Relay forwards a user's chat line to the channel.
func (b *RoomBroadcaster) Relay(msg network.ChatPayload) error {
	data, err := network.Marshal(msg)
	if err != nil {
		return err
	}
	return b.BroadcastToRoom(msg.Channel, network.MsgTypeChat, data)
}

// SendMessage posts text to channelID as the bot.
func (b *RoomBroadcaster) SendMessage(text, channelID string) error {
	return b.Relay(network.ChatPayload{
		Channel: channelID,
		UserID:  b.botID,
		Name:    b.botName,
		Text:    text,
	})
}
