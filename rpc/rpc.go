package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/callout/logger"
	"github.com/wfunc/callout/models"
	"github.com/wfunc/callout/services"
)

const callTimeout = 5 * time.Second

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
		address:  listener.Addr().String(),
		rpc:      rpc.NewServer(),
	}, nil
}

// Register exposes the exported methods of rcvr.
func (s *Server) Register(rcvr any) error {
	return s.rpc.Register(rcvr)
}

func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests. It returns when the listener closes.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
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

// StatsService is the struct that exposes RPC methods. Every method follows
// the net/rpc signature: exported args, pointer reply, error result.
type StatsService struct {
	players *services.PlayerService
	games   *services.GameService
}

func NewStatsService(players *services.PlayerService, games *services.GameService) *StatsService {
	return &StatsService{players: players, games: games}
}

type GetPlayerStatsArgs struct {
	Nickname string
}

type GetPlayerStatsReply struct {
	Stats models.PlayerStats
}

func (ss *StatsService) GetPlayerStats(args *GetPlayerStatsArgs, reply *GetPlayerStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := ss.players.GetPlayerStats(ctx, args.Nickname)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}

type ListRoomsArgs struct{}

type ListRoomsReply struct {
	Rooms []services.RoomSummary
}

func (ss *StatsService) ListRooms(_ *ListRoomsArgs, reply *ListRoomsReply) error {
	reply.Rooms = ss.games.ListRooms()
	return nil
}
