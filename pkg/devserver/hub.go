package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexws/pkg/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled by the router wrapper
		return true
	},
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// allMarkets is the subscription key for subscriptions without a market list.
const allMarkets = "*"

// Hub tracks connected sessions and fans market events out to subscribers.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	stop       chan struct{}
	logger     *zap.Logger

	mu sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			total := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("session_connected", zap.String("session", s.id), zap.Int("total", total))

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				close(s.send)
				h.logger.Info("session_disconnected", zap.String("session", s.id), zap.Int("total", len(h.sessions)))
			}
			h.mu.Unlock()

		case <-h.stop:
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.stop)
}

// Broadcast queues a frame for every session subscribed to event on market.
// Sessions with a full buffer miss the frame.
func (h *Hub) Broadcast(marketKey, event string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for s := range h.sessions {
		if !s.IsSubscribed(marketKey, event) {
			continue
		}
		select {
		case s.send <- frame:
			n++
		default:
			h.logger.Warn("session_buffer_full", zap.String("session", s.id))
		}
	}
	return n
}

// Session is one websocket connection.
type Session struct {
	hub    *Hub
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	id     string

	// market -> subscribed event names
	subscriptions map[string]map[string]bool
	account       common.Address
	authenticated bool
	mu            sync.RWMutex
}

func (s *Session) ID() string { return s.id }

// IsSubscribed reports whether the session wants event for marketKey.
func (s *Session) IsSubscribed(marketKey, event string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptions[marketKey][event] || s.subscriptions[allMarkets][event]
}

func (s *Session) Subscribe(markets, events []string) {
	if len(markets) == 0 {
		markets = []string{allMarkets}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		if s.subscriptions[m] == nil {
			s.subscriptions[m] = make(map[string]bool)
		}
		for _, ev := range events {
			s.subscriptions[m][ev] = true
		}
	}
}

func (s *Session) Unsubscribe(markets, events []string) {
	if len(markets) == 0 {
		markets = []string{allMarkets}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		for _, ev := range events {
			delete(s.subscriptions[m], ev)
		}
	}
}

func (s *Session) setAccount(addr common.Address) {
	s.mu.Lock()
	s.account, s.authenticated = addr, true
	s.mu.Unlock()
}

func (s *Session) clearAccount() {
	s.mu.Lock()
	s.account, s.authenticated = common.Address{}, false
	s.mu.Unlock()
}

// Account returns the authenticated address, if any.
func (s *Session) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.authenticated
}

// queue sends packets to this session only.
func (s *Session) queue(packets ...wire.Packet) {
	frame, err := wire.EncodeFrame(packets...)
	if err != nil {
		s.hub.logger.Error("frame_encode_failed", zap.String("session", s.id), zap.Error(err))
		return
	}
	select {
	case s.send <- frame:
	default:
		s.hub.logger.Warn("session_buffer_full", zap.String("session", s.id))
	}
}

// readPump feeds client frames to the server until the connection ends.
func (s *Session) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.stop:
		}
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws_read_failed", zap.String("session", s.id), zap.Error(err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.server.handleFrame(s, frame)
	}
}

// writePump writes queued frames, one websocket message per frame.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades the request, pushes config and listing and
// starts the session pumps.
func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}

	s := &Session{
		hub:           srv.hub,
		server:        srv,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            uuid.NewString(),
		subscriptions: make(map[string]map[string]bool),
	}
	select {
	case srv.hub.register <- s:
	case <-srv.hub.stop:
		conn.Close()
		return
	}

	if packets, err := srv.welcome(); err != nil {
		srv.logger.Error("welcome_encode_failed", zap.Error(err))
	} else {
		s.queue(packets...)
	}

	go s.writePump()
	go s.readPump()
}
