package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/foosref/network"
	"github.com/wfunc/foosref/room"
	"github.com/wfunc/foosref/session"
)

// MockConnection records packets sent to it.
type MockConnection struct {
	mu      sync.Mutex
	packets []*network.Packet
	fail    bool
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	if m.fail {
		return errors.New("broken pipe")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))})
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestRoomBroadcaster_SendMessage(t *testing.T) {
	rooms := room.NewRoomManager()
	conn1, conn2, other := &MockConnection{}, &MockConnection{}, &MockConnection{}
	rooms.Join("C1", session.NewSession("s1", conn1))
	rooms.Join("C1", session.NewSession("s2", conn2))
	rooms.Join("C2", session.NewSession("s3", other))

	b := NewRoomBroadcaster(rooms, "BOT", "foosref")
	if err := b.SendMessage("Game On!", "C1"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	for i, conn := range []*MockConnection{conn1, conn2} {
		if len(conn.packets) != 1 {
			t.Fatalf("Connection %d: expected 1 packet, got %d", i, len(conn.packets))
		}
		var msg network.ChatPayload
		if err := network.Unmarshal(conn.packets[0].Data, &msg); err != nil {
			t.Fatalf("Bad payload: %v", err)
		}
		if msg.Text != "Game On!" || msg.UserID != "BOT" || msg.Channel != "C1" {
			t.Errorf("Unexpected chat payload %+v", msg)
		}
	}
	if len(other.packets) != 0 {
		t.Error("Other channels should not receive the message")
	}
}

func TestRoomBroadcaster_UnknownRoom(t *testing.T) {
	b := NewRoomBroadcaster(room.NewRoomManager(), "BOT", "foosref")

	if err := b.SendMessage("hello", "nobody-here"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoomBroadcaster_SkipsBrokenConnections(t *testing.T) {
	rooms := room.NewRoomManager()
	good := &MockConnection{}
	rooms.Join("C1", session.NewSession("bad", &MockConnection{fail: true}))
	rooms.Join("C1", session.NewSession("good", good))

	b := NewRoomBroadcaster(rooms, "BOT", "foosref")
	if err := b.SendMessage("hi", "C1"); err != nil {
		t.Fatalf("A single broken connection should not fail the broadcast: %v", err)
	}
	if len(good.packets) != 1 {
		t.Errorf("Expected the healthy connection to receive the message")
	}
}
