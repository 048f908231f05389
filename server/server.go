package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/wfunc/foosref/broadcast"
	"github.com/wfunc/foosref/logger"
	"github.com/wfunc/foosref/monitor"
	"github.com/wfunc/foosref/network"
	"github.com/wfunc/foosref/referee"
	"github.com/wfunc/foosref/room"
	"github.com/wfunc/foosref/services"
	"github.com/wfunc/foosref/session"
)

// Deps are the collaborators a ChatServer routes traffic through.
type Deps struct {
	Referee     *referee.Referee
	Rooms       *room.Manager
	Sessions    *session.Manager
	Users       *services.UserDirectory
	Broadcaster *broadcast.RoomBroadcaster
	Monitor     *monitor.Monitor
}

// ChatServer is the websocket chat transport: clients say hello to join a
// channel, then every chat line is relayed to the channel and handed to
// the referee.
type ChatServer struct {
	addr        string
	heartbeat   time.Duration
	upgrader    websocket.Upgrader
	referee     *referee.Referee
	rooms       *room.Manager
	sessions    *session.Manager
	users       *services.UserDirectory
	broadcaster *broadcast.RoomBroadcaster
	monitor     *monitor.Monitor
	httpServer  *http.Server
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewChatServer(addr string, heartbeat time.Duration, deps Deps) *ChatServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatServer{
		addr:        addr,
		heartbeat:   heartbeat,
		referee:     deps.Referee,
		rooms:       deps.Rooms,
		sessions:    deps.Sessions,
		users:       deps.Users,
		broadcaster: deps.Broadcaster,
		monitor:     deps.Monitor,
		ctx:         ctx,
		cancel:      cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
}

// Handler routes /ws to the websocket endpoint and /healthz to a probe.
func (s *ChatServer) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/ws", s.handleWebSocket)
	router.GET("/healthz", s.handleHealth)
	return router
}

type healthResponse struct {
	Status   string   `json:"status"`
	Sessions int      `json:"sessions"`
	Channels []string `json:"channels"`
}

func (s *ChatServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	data, err := network.Marshal(healthResponse{
		Status:   "ok",
		Sessions: s.sessions.Count(),
		Channels: s.rooms.RoomIDs(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Start serves until Shutdown; it returns nil after a clean shutdown.
func (s *ChatServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Log.Infof("Chat server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *ChatServer) Shutdown(ctx context.Context) error {
	s.cancel()
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	// hijacked websocket connections are not closed by http.Server
	for _, sess := range s.sessions.All() {
		sess.Close()
	}
	return err
}

func (s *ChatServer) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *ChatServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	if s.heartbeat > 0 {
		wsConn.SetHeartbeat(s.heartbeat)
	}
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessions.Add(sess)
	s.monitor.IncOnlineSessions()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		if _, channelID := sess.Identity(); channelID != "" {
			s.rooms.Leave(channelID, sess.GetID())
		}
		s.sessions.Remove(sess.GetID())
		s.monitor.DecOnlineSessions()
		s.monitor.SetActiveChannels(len(s.rooms.RoomIDs()))
		wsConn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *ChatServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
		sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeHello:
		s.handleHello(sess, packet)
	case network.MsgTypeChat:
		s.handleChat(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *ChatServer) handleHello(sess *session.Session, packet *network.Packet) {
	var hello network.HelloPayload
	if err := network.Unmarshal(packet.Data, &hello); err != nil {
		s.sendError(sess, "malformed hello")
		return
	}
	if hello.UserID == "" || hello.Channel == "" {
		s.sendError(sess, "hello needs user_id and channel")
		return
	}

	// 切换频道时先离开旧频道
	if _, prev := sess.Identity(); prev != "" && prev != hello.Channel {
		s.rooms.Leave(prev, sess.GetID())
	}

	s.users.Register(services.User{
		ID:       hello.UserID,
		Name:     hello.Name,
		RealName: hello.RealName,
		IsBot:    hello.IsBot,
	})
	sess.Identify(hello.UserID, hello.Channel)
	s.rooms.Join(hello.Channel, sess)
	s.monitor.SetActiveChannels(len(s.rooms.RoomIDs()))

	logger.Log.Infof("Session %s is %s in channel %s", sess.GetID(), hello.UserID, hello.Channel)

	data, err := network.Marshal(network.WelcomePayload{
		SessionID: sess.GetID(),
		Channel:   hello.Channel,
	})
	if err != nil {
		logger.Log.Errorf("marshal welcome: %v", err)
		return
	}
	sess.Send(network.MsgTypeWelcome, data)
}

func (s *ChatServer) handleChat(sess *session.Session, packet *network.Packet) {
	userID, channelID := sess.Identity()
	if channelID == "" {
		logger.Log.Warnf("Session %s sent chat before hello", sess.GetID())
		s.sendError(sess, "say hello first")
		return
	}

	var chat network.ChatPayload
	if err := network.Unmarshal(packet.Data, &chat); err != nil {
		s.sendError(sess, "malformed chat")
		return
	}

	start := time.Now()
	s.monitor.IncMessagesReceived()

	name := userID
	if u, ok := s.users.Lookup(userID); ok && u.Name != "" {
		name = u.Name
	}
	if err := s.broadcaster.Relay(network.ChatPayload{
		Channel: channelID,
		UserID:  userID,
		Name:    name,
		Text:    chat.Text,
	}); err != nil {
		logger.Log.Warnf("relay to channel %s failed: %v", channelID, err)
	}

	s.referee.Handle(s.ctx, referee.Message{
		ChannelID: channelID,
		UserID:    userID,
		Text:      chat.Text,
	})
	s.monitor.ObserveMessageLatency(time.Since(start))
}

func (s *ChatServer) sendError(sess *session.Session, msg string) {
	data, err := network.Marshal(network.ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	sess.Send(network.MsgTypeError, data)
}
