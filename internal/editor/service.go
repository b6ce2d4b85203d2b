// Package editor serves collaborative editing sessions over websockets:
// handshake auth, per-connection session handling, room routing, and
// presence.
package editor

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"collab-docs/internal/auth"
	"collab-docs/internal/docs"
	"collab-docs/internal/lock"
	"collab-docs/internal/store"
)

// Config holds the service's tunables.
type Config struct {
	LockTTL            time.Duration
	LockAcquireTimeout time.Duration
	CursorMaxAge       time.Duration
}

// DefaultConfig returns the recommended settings.
func DefaultConfig() Config {
	return Config{
		LockTTL:            lock.DefaultTTL,
		LockAcquireTimeout: lock.DefaultAcquireTimeout,
		CursorMaxAge:       5 * time.Minute,
	}
}

// Service wires the collaboration components behind the websocket endpoint.
// Store, locker, and verifier are injected so tests can substitute
// in-memory fakes.
type Service struct {
	cfg      Config
	store    store.Store
	docs     *docs.Service
	locker   lock.Locker
	verifier auth.Verifier
	hub      *Hub
	presence *Presence
	metrics  *Metrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]bool
	done    chan struct{}
}

// NewService builds a Service. reg may be nil to register metrics with a
// private registry (tests).
func NewService(cfg Config, st store.Store, locker lock.Locker, verifier auth.Verifier, reg prometheus.Registerer) *Service {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := NewMetrics(reg)
	s := &Service{
		cfg:      cfg,
		store:    st,
		locker:   locker,
		verifier: verifier,
		hub:      NewHub(),
		presence: NewPresence(),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the frontend host is pinned.
				return true
			},
		},
		clients: make(map[*Client]bool),
		done:    make(chan struct{}),
	}
	s.docs = docs.NewService(st, docs.WithConflictHook(metrics.CommitConflicts.Inc))
	return s
}

// Start launches background maintenance.
func (s *Service) Start() {
	go s.sweepCursors()
	log.Info("collaboration service started")
}

// Shutdown closes every client connection.
func (s *Service) Shutdown() {
	close(s.done)
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.closeSend()
		c.conn.Close()
	}
	log.Info("collaboration service shut down")
}

// HandleWebSocket authenticates the handshake, upgrades the connection, and
// starts the session pumps.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := newClient(s, conn, uuid.NewString(), userID)

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.metrics.ActiveConnections.Inc()

	go c.writePump()
	go c.readPump()

	log.WithFields(log.Fields{
		"conn": c.id,
		"user": userID,
	}).Info("connection established")
}

// disconnect tears down a connection: cancel in-flight work, leave every
// room, and announce the departures. Commits already accepted by the store
// are not rolled back.
func (s *Service) disconnect(c *Client) {
	c.cancel()

	s.mu.Lock()
	known := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if !known {
		return
	}
	s.metrics.ActiveConnections.Dec()

	for _, docID := range s.hub.UnsubscribeAll(c) {
		s.presence.Remove(docID, c.id)
		s.hub.Broadcast(docID, ServerMessage{
			Type:   MsgUserLeft,
			DocID:  docID,
			UserID: c.userID,
		}, c)
	}
	c.closeSend()

	log.WithFields(log.Fields{
		"conn": c.id,
		"user": c.userID,
	}).Info("connection closed")
}

// sweepCursors periodically drops stale cursor state.
func (s *Service) sweepCursors() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.presence.SweepStale(s.cfg.CursorMaxAge)
		case <-s.done:
			return
		}
	}
}

// bearerToken extracts the handshake token from the Authorization header or
// the token query parameter (browsers cannot set headers on websockets).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
