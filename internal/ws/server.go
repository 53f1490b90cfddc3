// Package ws is the robot-facing transport: a gorilla/websocket server
// that turns connections into lifecycle events for the coordinator, plus a
// small read-only HTTP status surface for the host.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/oops"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dezibot/hub/internal/config"
	"github.com/dezibot/hub/internal/logging"
	"github.com/dezibot/hub/internal/session"
)

var log = logging.Package("ws")

// Handler receives transport events. Callbacks run on per-connection
// goroutines; implementations queue the work and return promptly.
type Handler interface {
	HandleOpen(conn session.Conn, rawAddr string)
	HandleClose(conn session.Conn)
	HandleMessage(conn session.Conn, text string)
	HandleError(err error)
}

// Server accepts robot websocket connections on /ws and serves the status
// endpoints. It owns the listener lifecycle; connection handles are owned
// by their registry entries once handed to the Handler.
type Server struct {
	cfg      config.ServerConfig
	handler  Handler
	registry *session.Registry
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	started  time.Time

	droppedFrames atomic.Int64
}

// NewServer wires the transport over the registry's read-only surface.
func NewServer(cfg config.ServerConfig, handler Handler, registry *session.Registry) *Server {
	return &Server{
		cfg:      cfg,
		handler:  handler,
		registry: registry,
		// Robots are not browsers; they send no Origin header.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*Conn]struct{}),
	}
}

// Addr returns the bound listen address, or "" before Run has bound it.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run binds the configured address and serves until ctx is cancelled, then
// shuts the HTTP server down and closes every robot connection. A bind
// failure is terminal; there is no automatic retry.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return oops.Wrapf(err, "bind %s", addr)
	}
	s.mu.Lock()
	s.listener = ln
	s.started = time.Now()
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/status", s.handleStatus)

	srv := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.WithFields(logrus.Fields{
		"at":   "ws.Server.Run",
		"addr": ln.Addr().String(),
	}).Info("server_listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.CloseAll()
		return nil
	case err := <-errCh:
		return oops.Wrapf(err, "serve %s", addr)
	}
}

// CloseAll closes every open robot connection.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithFields(logrus.Fields{
			"at":    "ws.Server.handleWS",
			"error": err,
		}).Warn("upgrade_failed")
		return
	}

	c := newConn(wsConn, s.cfg.SendBuffer)
	s.track(c)
	go c.writePump(s.cfg.PingInterval, s.cfg.WriteWait)

	log.WithFields(logrus.Fields{
		"at":   "ws.Server.handleWS",
		"addr": c.RawAddr(),
	}).Info("robot_connected")
	s.handler.HandleOpen(c, c.RawAddr())

	reason := s.readLoop(c)

	s.untrack(c)
	c.close()
	s.handler.HandleClose(c)
	log.WithFields(logrus.Fields{
		"at":     "ws.Server.handleWS",
		"addr":   c.RawAddr(),
		"reason": reason,
	}).Info("robot_disconnected")
}

// readLoop pumps inbound frames to the handler until the connection dies.
// It returns a human-readable close reason; graceful closes and missed
// keep-alives end up on the same path, distinguished only here.
func (s *Server) readLoop(c *Conn) string {
	limit := rate.Inf
	if s.cfg.InboundRate > 0 {
		limit = rate.Limit(s.cfg.InboundRate)
	}
	limiter := rate.NewLimiter(limit, s.cfg.InboundBurst)

	if s.cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(s.cfg.MaxMessageSize)
	}
	c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "closed by peer"
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return "keep-alive timeout"
			}
			s.handler.HandleError(oops.Wrapf(err, "read %s", c.RawAddr()))
			return "transport error"
		}
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if !limiter.Allow() {
			// Over-limit frames are dropped, never fatal.
			s.droppedFrames.Add(1)
			log.WithFields(logrus.Fields{
				"at":   "ws.Server.readLoop",
				"addr": c.RawAddr(),
			}).Debug("inbound_rate_limited")
			continue
		}
		s.handler.HandleMessage(c, string(data))
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.Snapshot())
}

type statusResponse struct {
	Uptime         string  `json:"uptime"`
	Sessions       int     `json:"sessions"`
	ActiveSessions int     `json:"activeSessions"`
	DroppedFrames  int64   `json:"droppedFrames"`
	CPUPercent     float64 `json:"cpuPercent"`
	MemoryPercent  float64 `json:"memoryPercent"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	resp := statusResponse{
		Uptime:         time.Since(started).Round(time.Second).String(),
		Sessions:       s.registry.Count(),
		ActiveSessions: s.registry.ActiveCount(),
		DroppedFrames:  s.droppedFrames.Load(),
	}
	// Host stats are best-effort; a probe failure leaves the fields zero.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryPercent = vm.UsedPercent
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
