package network

import (
	"encoding/binary"
	"io"

	"github.com/goccy/go-json"
)

// 消息类型
const (
	MsgTypeHeartbeat = 1
	MsgTypeHello     = 101 // client -> server: identify user and channel
	MsgTypeWelcome   = 102 // server -> client: hello accepted
	MsgTypeChat      = 201 // both directions
	MsgTypeError     = 900
)

// HeaderSize 封包头: 2字节消息ID + 2字节数据长度
const HeaderSize = 4

type HelloPayload struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	RealName string `json:"real_name,omitempty"`
	IsBot    bool   `json:"is_bot,omitempty"`
	Channel  string `json:"channel"`
}

type WelcomePayload struct {
	SessionID string `json:"session_id"`
	Channel   string `json:"channel"`
}

// ChatPayload is a chat line. Clients only fill Text; the server fills the
// rest when relaying.
type ChatPayload struct {
	Channel string `json:"channel,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Text    string `json:"text"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// EncodePacket frames data behind the msgID/length header.
func EncodePacket(msgID uint16, data []byte) []byte {
	packet := make([]byte, HeaderSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[HeaderSize:], data)
	return packet
}

// DecodePacket parses one framed packet.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, io.ErrShortBuffer
	}

	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])

	if len(data) < HeaderSize+int(length) {
		return nil, io.ErrShortBuffer
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[HeaderSize : HeaderSize+int(length)],
	}, nil
}

// Marshal encodes a payload as JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes a JSON payload.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
