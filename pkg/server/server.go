package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ethfolio/pkg/models"
	"ethfolio/pkg/portfolio"
	"ethfolio/pkg/wallet"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	orchestrator *portfolio.Orchestrator
	bridge       *wallet.Bridge
	connector    *wallet.Connector
	logger       *zap.Logger

	clients map[*websocket.Conn]bool
	sub     portfolio.Subscriber
	// latest is the newest generation sent to clients; older state changes are not forwarded.
	latest  uint64
	mu      sync.Mutex
	mux     *http.ServeMux
	http    *http.Server
}

// NewServer exposes the orchestrator over HTTP. bridge and connector may be nil,
// in which case the wallet routes are not registered.
func NewServer(o *portfolio.Orchestrator, bridge *wallet.Bridge, connector *wallet.Connector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orchestrator: o,
		bridge:       bridge,
		connector:    connector,
		logger:       logger.Named("server"),
		clients:      make(map[*websocket.Conn]bool),
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)
	s.mux.HandleFunc("POST /api/view", s.handleView)
	s.mux.HandleFunc("POST /api/retry", s.handleRetry)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	if s.bridge != nil {
		s.mux.Handle("GET /wallet", s.bridge.PageHandler())
		s.mux.Handle("/wallet/ws", s.bridge)
	}
	if s.connector != nil {
		s.mux.HandleFunc("GET /api/wallet", s.handleWallet)
		s.mux.HandleFunc("POST /api/wallet/connect", s.handleWalletConnect)
	}
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.startBroadcast()

	s.mu.Lock()
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.http
	s.mu.Unlock()

	s.logger.Info("API server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, sub := s.http, s.sub
	s.sub = nil
	for client := range s.clients {
		_ = client.Close()
		delete(s.clients, client)
	}
	s.mu.Unlock()

	if sub != nil {
		s.orchestrator.Unsubscribe(sub)
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type viewRequest struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

type errorResponse struct {
	Error string             `json:"error"`
	Kind  models.FailureKind `json:"kind,omitempty"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Snapshot())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode body: %v", err), Kind: models.FailureInput})
		return
	}

	network := models.EthMainnet
	if _, current, ok := s.orchestrator.Current(); ok {
		network = current
	}
	if req.Network != "" {
		parsed, err := models.ParseNetwork(req.Network)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: models.FailureInput})
			return
		}
		network = parsed
	}

	if err := s.orchestrator.View(req.Address, network); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.orchestrator.Snapshot())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Retry(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.orchestrator.Snapshot())
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.connector.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": ok,
		"address":   addr,
	})
}

func (s *Server) handleWalletConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.connector.Connect(context.Background()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case models.FailureInput:
		status = http.StatusBadRequest
	case models.FailureCapability:
		status = http.StatusConflict
	case models.FailureUpstream:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	// Initial state is written under the lock so it cannot interleave with a broadcast.
	snap := s.orchestrator.Snapshot()
	if snap.Generation > s.latest {
		s.latest = snap.Generation
	}
	_ = conn.WriteJSON(map[string]interface{}{
		"type": "initial",
		"data": snap,
	})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) startBroadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return
	}
	s.sub = s.orchestrator.Subscribe()
	go s.forward(s.sub)
}

func (s *Server) forward(sub portfolio.Subscriber) {
	for event := range sub {
		s.broadcast(event)
	}
}

func (s *Server) broadcast(event portfolio.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Type == portfolio.EventStateChanged {
		if event.Data.Generation < s.latest {
			s.logger.Debug("Skipping stale state change", zap.Uint64("generation", event.Data.Generation))
			return
		}
		s.latest = event.Data.Generation
	}

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			s.logger.Debug("Dropping websocket client", zap.Error(err))
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
