// Package devserver is a local exchange simulator. It speaks the same packet
// protocol as the production endpoint, validates requests against the
// shared method schemas and verifies order signatures, which makes it the
// counterpart for client tests and offline development.
package devserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexws/params"
	"github.com/uhyunpark/dexws/pkg/market"
	"github.com/uhyunpark/dexws/pkg/schema"
	"github.com/uhyunpark/dexws/pkg/util"
)

// Server handles the websocket protocol and a few REST endpoints.
type Server struct {
	registry *schema.Registry
	encoder  *schema.Encoder
	listing  Listing
	snapshot *market.Snapshot
	contract string
	chainID  uint64
	clock    util.Clock

	router *mux.Router
	hub    *Hub
	logger *zap.Logger

	mu          sync.Mutex
	nextOrderID uint64
	orders      map[uint64]*orderRecord
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithListing(l Listing) Option {
	return func(s *Server) { s.listing = l }
}

func WithRegistry(r *schema.Registry) Option {
	return func(s *Server) { s.registry = r }
}

func WithClock(c util.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// New creates a simulator. The contract address and chain id come from
// cfg.Orders.ContractAddress and cfg.Client.
func New(cfg params.Config, opts ...Option) (*Server, error) {
	s := &Server{
		listing:  DefaultListing(),
		contract: cfg.Orders.ContractAddress,
		chainID:  cfg.Client.ResolvedChainID(),
		clock:    util.RealClock{},
		router:   mux.NewRouter(),
		logger:   zap.NewNop(),
		orders:   make(map[uint64]*orderRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		reg, err := schema.Default()
		if err != nil {
			return nil, err
		}
		s.registry = reg
	}
	if s.contract == "" {
		s.contract = DefaultContractAddress
	}
	s.encoder = schema.NewEncoder(s.registry.Structs(), cfg.Schema.MaxDepth)
	s.snapshot = s.listing.Snapshot()
	s.hub = NewHub(s.logger)

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/listed", s.handleGetListed).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler starts the hub and returns the CORS-wrapped router. Call Close to
// stop the hub.
func (s *Server) Handler() http.Handler {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until the listener fails.
func (s *Server) Start(addr string) error {
	handler := s.Handler()
	s.logger.Info("devserver_starting", zap.String("addr", addr), zap.String("contract", s.contract))
	return http.ListenAndServe(addr, handler)
}

func (s *Server) Close() {
	s.hub.Stop()
}

// ContractAddress is the settlement contract orders must be hashed with.
func (s *Server) ContractAddress() string {
	return s.contract
}

func (s *Server) handleGetListed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.listing.wireValue())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"contractAddress": s.contract, "chainId": s.chainID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
