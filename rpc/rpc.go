package rpc

import (
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/foosref/logger"
	"github.com/wfunc/foosref/state"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr. Services are added with Register before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
		rpc:      rpc.NewServer(),
	}, nil
}

// Register exposes rcvr's exported methods under name.
func (s *Server) Register(name string, rcvr any) error {
	return s.rpc.RegisterName(name, rcvr)
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// ChannelAdmin is the referee surface the admin service needs.
type ChannelAdmin interface {
	Reset(channelID string)
	Snapshot(channelID string) *state.GameState
	Channels() []string
}

// AdminService exposes operator commands over net/rpc.
type AdminService struct {
	admin ChannelAdmin
}

func NewAdminService(admin ChannelAdmin) *AdminService {
	return &AdminService{admin: admin}
}

var ErrMissingChannel = errors.New("channel id is required")

type ChannelArgs struct {
	ChannelID string
}

type ChannelStateReply struct {
	ChannelID  string
	Players    []string
	Open       bool
	Phase      string
	LastGameAt time.Time
}

type ResetReply struct {
	OK bool
}

type ListChannelsArgs struct{}

type ListChannelsReply struct {
	Channels []string
}

// ResetChannel restores a channel to the default state: no players,
// recruiting closed, idle nag cancelled. Nothing is announced.
func (a *AdminService) ResetChannel(args *ChannelArgs, reply *ResetReply) error {
	if args.ChannelID == "" {
		return ErrMissingChannel
	}
	a.admin.Reset(args.ChannelID)
	logger.Log.Infof("admin reset channel %s", args.ChannelID)
	reply.OK = true
	return nil
}

// ChannelState reports a channel's game; unknown channels read as empty.
func (a *AdminService) ChannelState(args *ChannelArgs, reply *ChannelStateReply) error {
	if args.ChannelID == "" {
		return ErrMissingChannel
	}
	gs := a.admin.Snapshot(args.ChannelID)
	reply.ChannelID = args.ChannelID
	reply.Players = gs.Players
	reply.Open = gs.Open
	reply.Phase = gs.Phase().String()
	reply.LastGameAt = gs.LastGameTimestamp
	return nil
}

func (a *AdminService) ListChannels(_ *ListChannelsArgs, reply *ListChannelsReply) error {
	reply.Channels = a.admin.Channels()
	return nil
}
