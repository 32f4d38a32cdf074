package server

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"github.com/wfunc/callout/broadcast"
	"github.com/wfunc/callout/cards"
	"github.com/wfunc/callout/logger"
	"github.com/wfunc/callout/monitor"
	"github.com/wfunc/callout/network"
	"github.com/wfunc/callout/persistence"
	"github.com/wfunc/callout/room"
	callout_rpc "github.com/wfunc/callout/rpc"
	"github.com/wfunc/callout/services"
	"github.com/wfunc/callout/session"
	"github.com/wfunc/callout/timer"
)

const (
	heartbeatInterval = 30 * time.Second
	httpTimeout       = 10 * time.Second
	qrSize            = 320
)

// Options wires a GameServer. Database is required; Recorders are extra
// history sinks such as a Redis queue.
type Options struct {
	HTTPAddress   string
	RPCAddress    string
	PublicURL     string
	Settings      room.Settings
	Catalog       *cards.Catalog
	Database      persistence.Database
	Recorders     []persistence.ChallengeRecorder
	RoomIdleTTL   time.Duration
	SweepInterval time.Duration
}

type GameServer struct {
	addr           string
	publicURL      string
	upgrader       websocket.Upgrader
	timers         *timer.TimerManager
	roomManager    *room.Manager
	sessionManager *session.Manager
	gameService    *services.GameService
	playerService  *services.PlayerService
	broadcaster    *broadcast.RoomBroadcaster
	monitor        *monitor.Monitor
	rpcServer      *callout_rpc.Server
	httpServer     *http.Server
	router         *httprouter.Router
	sweepID        int64
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(opts Options) (*GameServer, error) {
	if opts.Database == nil {
		return nil, errors.New("server: a database is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = cards.Default()
	}

	s := &GameServer{
		addr:           opts.HTTPAddress,
		publicURL:      strings.TrimSuffix(opts.PublicURL, "/"),
		timers:         timer.NewTimerManager(),
		sessionManager: session.NewManager(),
		playerService:  services.NewPlayerService(opts.Database),
		monitor:        monitor.NewMonitor("callout"),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器; rooms need it before the room store exists
	s.broadcaster = broadcast.NewRoomBroadcaster(nil, s.sessionManager)
	recorders := persistence.MultiRecorder{opts.Database, s.monitor}
	recorders = append(recorders, opts.Recorders...)
	s.roomManager = room.NewRoomManager(opts.Settings, room.Deps{
		Catalog:     opts.Catalog,
		Broadcaster: s.broadcaster,
		Scheduler:   s.timers,
		Recorder:    recorders,
	})
	s.broadcaster.SetRoomManager(s.roomManager)
	s.gameService = services.NewGameService(s.roomManager, s.sessionManager, s.broadcaster, s.monitor)

	// 初始化RPC服务器
	if opts.RPCAddress != "" {
		rpcServer, err := callout_rpc.NewServer(opts.RPCAddress)
		if err != nil {
			s.timers.Stop()
			return nil, fmt.Errorf("rpc server: %w", err)
		}
		if err := rpcServer.Register(callout_rpc.NewStatsService(s.playerService, s.gameService)); err != nil {
			rpcServer.Stop()
			s.timers.Stop()
			return nil, err
		}
		s.rpcServer = rpcServer
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: httpTimeout,
		IdleTimeout:       10 * time.Minute,
	}

	if opts.SweepInterval > 0 {
		ttl := opts.RoomIdleTTL
		s.sweepID = s.timers.AddTimer(opts.SweepInterval, opts.SweepInterval, func() {
			s.roomManager.SweepIdle(ttl)
			s.monitor.SetActiveRooms(s.roomManager.Count())
		})
	}
	return s, nil
}

func (s *GameServer) routes() *httprouter.Router {
	mux := httprouter.New()
	mux.GET("/ws", s.handleWebSocket)
	mux.GET("/healthz", serveHealthCheck)
	mux.GET("/rooms/:code/qr", s.serveRoomQR)
	mux.Handler(http.MethodGet, "/metrics", s.monitor.Handler())
	mux.Handler(http.MethodGet, "/debug/vars", expvar.Handler())
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		logger.Log.Errorf("Panic serving %s: %v", r.URL.Path, v)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return mux
}

// Handler exposes the HTTP routes, mainly for tests.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

// Start serves HTTP (and RPC, when configured) until Shutdown.
func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}

	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, tells connected clients, closes
// their sockets and tears every room down.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		err = s.httpServer.Shutdown(ctx)

		// hijacked websocket connections are not covered by http.Server.Shutdown
		_ = s.broadcaster.BroadcastToAll(network.EventError, room.ErrorPayload{Message: "server is shutting down"})
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		if s.sweepID != 0 {
			s.timers.RemoveTimer(s.sweepID)
		}
		s.roomManager.CloseAll()
		s.timers.Stop()
		if waitErr := s.roomManager.WaitRecorded(ctx); waitErr != nil {
			logger.Log.Warnf("Challenge history may be incomplete: %v", waitErr)
			err = errors.Join(err, waitErr)
		}
		logger.Log.Info("Game server stopped")
	})
	return err
}

func serveHealthCheck(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Ok\n"))
}

// serveRoomQR renders a PNG QR code of the join link for a live room.
func (s *GameServer) serveRoomQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rm, err := s.roomManager.GetRoom(ps.ByName("code"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, rm.Code()), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *GameServer) joinURL(r *http.Request, code string) string {
	base := s.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?room=" + code
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(heartbeatInterval)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s, connected for %s",
			wsConn.RemoteAddr(), sess.GetID(), time.Since(sess.CreatedAt).Round(time.Second))
		s.gameService.Disconnect(sess.GetID())
		s.monitor.DecOnlinePlayers()
		s.monitor.SetActiveRooms(s.roomManager.Count())
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
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

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.monitor.IncMessagesReceived()

	var err error
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
	case network.MsgTypeCreateRoom:
		_, err = s.gameService.CreateRoom(sess.GetID())
		s.monitor.SetActiveRooms(s.roomManager.Count())
	case network.MsgTypeJoinRoom:
		var req network.JoinRoomRequest
		if err = decode(packet.Data, &req); err == nil {
			err = s.gameService.JoinRoom(sess.GetID(), req)
		}
	case network.MsgTypeLeaveRoom:
		err = s.gameService.LeaveRoom(sess.GetID())
	case network.MsgTypeStartGame:
		var req network.StartGameRequest
		if err = decode(packet.Data, &req); err == nil {
			err = s.gameService.StartGame(sess.GetID(), req)
		}
	case network.MsgTypeChallengePlayer:
		var req network.ChallengeRequest
		if err = decode(packet.Data, &req); err == nil {
			err = s.gameService.Challenge(sess.GetID(), req)
		}
	case network.MsgTypeSubmitVote:
		var req network.VoteRequest
		if err = decode(packet.Data, &req); err == nil {
			err = s.gameService.Vote(sess.GetID(), req)
		}
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		err = fmt.Errorf("%w: unknown message type %d", room.ErrInvalidAction, packet.MsgID)
	}

	if err != nil {
		logger.Log.Debugf("Session %s: message %d rejected: %v", sess.GetID(), packet.MsgID, err)
		if sendErr := sess.Send(network.EventError, room.ErrorPayload{Message: err.Error()}); sendErr != nil {
			logger.Log.Debugf("Session %s: error not delivered: %v", sess.GetID(), sendErr)
		}
	}
	s.monitor.ObserveMessageLatency(time.Since(start))
}

// decode accepts an empty body as an empty request.
func decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", room.ErrInvalidAction, err)
	}
	return nil
}
