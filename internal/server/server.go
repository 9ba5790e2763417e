// ABOUTME: Main server implementation for live audio ingest
// ABOUTME: Manages WebSocket connections, producer sessions and observer fan-out
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Deploy-u/Audio-Recording-System/internal/archive"
	"github.com/Deploy-u/Audio-Recording-System/internal/broadcast"
	"github.com/Deploy-u/Audio-Recording-System/internal/discovery"
	"github.com/Deploy-u/Audio-Recording-System/internal/metrics"
	"github.com/Deploy-u/Audio-Recording-System/internal/notify"
	"github.com/Deploy-u/Audio-Recording-System/internal/protocol"
	"github.com/Deploy-u/Audio-Recording-System/internal/session"
	"github.com/Deploy-u/Audio-Recording-System/pkg/audio"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	UseTUI     bool

	// Format every live stream and upload is recorded in
	Format audio.Format

	StreamsDir    string
	RecordingsDir string
	PublicDir     string

	SendBuffer      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	ReadTimeout     time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string

	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// EventPublisher relays lifecycle events outside the process
type EventPublisher interface {
	Publish(ctx context.Context, ev notify.StreamEvent) error
}

// Options carries collaborators that are not plain configuration
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Relay   EventPublisher
	Clock   clockwork.Clock
}

// Server accepts producer and observer connections
type Server struct {
	config   Config
	serverID string
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	relay    EventPublisher
	clock    clockwork.Clock

	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux
	addr       net.Addr
	addrMu     sync.RWMutex

	// Session table keyed by connection id
	conns   map[string]*connection
	connsMu sync.RWMutex

	registry   *broadcast.Registry
	streams    *archive.Archive
	recordings *archive.Archive

	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time
	finished  atomic.Int64

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

var newStreamPayload = protocol.NewStreamEvent().Encode()

// connection pairs a session with its transport
type connection struct {
	session *session.Session
	client  *Client
	level   *levelMeter
}

// New creates a server instance and prepares its archives
func New(config Config, opts Options) (*Server, error) {
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio format: %w", err)
	}
	applyDefaults(&config)

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	streams, err := archive.New(config.StreamsDir, "/streams", clock)
	if err != nil {
		return nil, err
	}
	recordings, err := archive.New(config.RecordingsDir, "/recordings", clock)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     config,
		serverID:   uuid.NewString(),
		logger:     opts.Logger.With().Str("component", "server").Logger(),
		metrics:    m,
		relay:      opts.Relay,
		clock:      clock,
		mux:        http.NewServeMux(),
		conns:      make(map[string]*connection),
		registry:   broadcast.NewRegistry(),
		streams:    streams,
		recordings: recordings,
		startTime:  clock.Now(),
		stopChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.registry.OnDrop = func(_ string, kind broadcast.Kind) {
		s.metrics.BroadcastDrops.WithLabelValues(kind.String()).Inc()
	}
	s.routes()

	return s, nil
}

func applyDefaults(c *Config) {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 512 << 20
	}
	if c.Name == "" {
		c.Name = "micstream-server"
	}
}

// checkOrigin accepts everything unless an allowlist is configured.
// Non-browser producers send no Origin header and are always accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	s.logger.Warn().Str("origin", origin).Msg("rejecting WebSocket from origin")
	return false
}

// Handler returns the HTTP handler serving WebSocket and REST endpoints
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Registry returns the observer registry
func (s *Server) Registry() *broadcast.Registry {
	return s.registry
}

// Streams returns the live stream archive
func (s *Server) Streams() *archive.Archive {
	return s.streams
}

// Addr returns the listening address once Start has bound it
func (s *Server) Addr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// Start serves until Stop is called, the TUI quits, or the listener fails
func (s *Server) Start() error {
	s.logger.Info().Str("name", s.config.Name).Str("id", s.serverID).Msg("server starting")

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()
	port := ln.Addr().(*net.TCPAddr).Port

	if s.config.UseTUI {
		s.tui = NewServerTUI(s.config.Name, port)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(); err != nil {
				s.logger.Error().Err(err).Msg("TUI error")
			}
		}()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.refreshTUI()
		}()
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        ln.Addr().(*net.TCPAddr).Port,
			Path:        "/ws",
			Format:      s.config.Format.String(),
			Logger:      s.logger,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to start mDNS advertisement")
		}
	}

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("streams", s.streams.Dir()).
		Str("format", s.config.Format.String()).
		Msg("WebSocket server listening")

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		s.logger.Info().Msg("server shutting down")
	case <-tuiQuitChan:
		s.logger.Info().Msg("TUI quit requested, shutting down")
		s.Stop()
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("HTTP server error")
		serverErr = err
		s.Stop()
	}

	// Reject new connections from here on
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	// Hijacked connections are not closed by Shutdown; closing them makes
	// every producer finalize its container through the normal path.
	s.closeConnections()
	s.wg.Wait()
	s.logger.Info().Msg("server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// closeConnections tells every client the server is going away
func (s *Server) closeConnections() {
	s.connsMu.RLock()
	clients := make([]*Client, 0, len(s.conns))
	for _, c := range s.conns {
		clients = append(clients, c.client)
	}
	s.connsMu.RUnlock()

	for _, c := range clients {
		c.closeWithReason(websocket.CloseGoingAway, "server shutting down")
		_ = c.conn.Close()
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	s.handleConnection(conn, r.RemoteAddr)
}

// handleConnection runs one connection's read loop. Frames are handled
// strictly in arrival order; cleanup always runs when the loop exits.
func (s *Server) handleConnection(conn *websocket.Conn, remote string) {
	defer conn.Close()

	id := uuid.NewString()
	logger := s.logger.With().Str("session", id).Str("remote", remote).Logger()
	logger.Info().Msg("WS client connected")

	client := newClient(id, remote, conn, s.config, logger)
	c := &connection{client: client, level: &levelMeter{}}
	c.session = session.New(session.Config{
		ID:       id,
		Peer:     client,
		Open:     s.openStream,
		Hub:      &observerHub{Registry: s.registry, metrics: s.metrics},
		Notifier: s,
		Hooks:    s.sessionHooks(c),
		Logger:   s.logger,
		Now:      s.clock.Now,
	})

	if !s.addConnection(c) {
		// Shutdown began after the upgrade; closeConnections may have run already
		client.closeWithReason(websocket.CloseGoingAway, "server shutting down")
		logger.Info().Msg("WS client rejected during shutdown")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		client.run()
	}()

	defer func() {
		mode := modeLabel(c.session.State())
		if err := c.session.Handle(session.Closed{}); err != nil {
			s.metrics.WriteFailures.Inc()
			logger.Error().Err(err).Msg("failed to finalize live stream")
		}
		s.removeConnection(id)
		client.close()
		s.metrics.Connections.WithLabelValues(mode).Inc()
		logger.Info().Str("mode", mode).Msg("WS client disconnected")
	}()

	if s.config.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.config.MaxMessageBytes)
	}
	s.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		s.extendReadDeadline(conn)
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		s.extendReadDeadline(conn)

		var ev session.Event
		switch msgType {
		case websocket.TextMessage:
			ev = session.TextMessage{Text: string(data)}
		case websocket.BinaryMessage:
			ev = session.BinaryMessage{Data: data}
		default:
			continue
		}

		if err := c.session.Handle(ev); err != nil {
			s.metrics.WriteFailures.Inc()
			logger.Error().Err(err).Msg("recording failed, closing connection")
			client.closeWithReason(websocket.CloseInternalServerErr, "recording failed")
			return
		}
	}
}

func (s *Server) extendReadDeadline(conn *websocket.Conn) {
	if s.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
}

// openStream creates the container for a new live stream
func (s *Server) openStream() (session.Writer, error) {
	w, err := s.streams.CreateLive(s.config.Format)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Server) sessionHooks(c *connection) session.Hooks {
	return session.Hooks{
		OnStreamStarted: func(_ *session.Session, _ string) {
			s.metrics.StreamsStarted.Inc()
			s.metrics.ActiveProducers.Inc()
			s.updateTUI()
		},
		OnChunk: func(_ *session.Session, data []byte) {
			s.metrics.FramesReceived.Inc()
			s.metrics.BytesWritten.Add(float64(len(data)))
			c.level.Set(audio.Peak(data, s.config.Format))
		},
		OnStreamFinished: func(_ *session.Session, _ string, n int64, err error) {
			s.metrics.ActiveProducers.Dec()
			if err == nil {
				s.metrics.StreamsFinalized.Inc()
				s.metrics.StreamBytes.Observe(float64(n))
			}
			c.level.Set(0)
		},
	}
}

// StreamCompleted tells observers, and the relay if configured, that a
// finished stream is available in the listing.
func (s *Server) StreamCompleted(path string, n int64) {
	stats := s.registry.Broadcast(broadcast.Frame{
		Kind: broadcast.Text,
		Data: newStreamPayload,
	})
	s.metrics.Notifications.Inc()
	s.finished.Add(1)
	s.logger.Debug().Int("observers", stats.Delivered).Int("dropped", stats.Dropped).Msg("sent new_stream notification")

	if s.relay != nil {
		ev := notify.NewStreamEvent(path, n, s.clock.Now())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.relay.Publish(context.Background(), ev); err != nil {
				s.logger.Warn().Err(err).Msg("failed to relay stream event")
			}
		}()
	}
	s.updateTUI()
}

// addConnection records c unless shutdown has begun. Holding shutdownMu
// across the insert guarantees closeConnections sees every added entry.
func (s *Server) addConnection(c *connection) bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShutdown {
		return false
	}

	s.connsMu.Lock()
	s.conns[c.session.ID()] = c
	n := len(s.conns)
	s.connsMu.Unlock()

	s.metrics.ActiveSessions.Set(float64(n))
	s.updateTUI()
	return true
}

func (s *Server) removeConnection(id string) {
	s.connsMu.Lock()
	delete(s.conns, id)
	n := len(s.conns)
	s.connsMu.Unlock()

	s.metrics.ActiveSessions.Set(float64(n))
	s.updateTUI()
}

// SessionInfo is a snapshot of one connection
type SessionInfo struct {
	ID        string
	Remote    string
	Mode      string
	File      string
	Bytes     int64
	Level     float64
	CreatedAt time.Time
}

// Sessions returns a snapshot of open connections, oldest first
func (s *Server) Sessions() []SessionInfo {
	s.connsMu.RLock()
	infos := make([]SessionInfo, 0, len(s.conns))
	for _, c := range s.conns {
		infos = append(infos, SessionInfo{
			ID:        c.session.ID(),
			Remote:    c.client.Remote(),
			Mode:      modeLabel(c.session.State()),
			File:      c.session.StreamPath(),
			Bytes:     c.session.BytesWritten(),
			Level:     c.level.Get(),
			CreatedAt: c.session.CreatedAt(),
		})
	}
	s.connsMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// modeLabel maps a session state to the mode reported in logs and metrics.
// Only producers reach Finished before their connection closes.
func modeLabel(state session.State) string {
	switch state {
	case session.Observer:
		return "observer"
	case session.Producing, session.Finished:
		return "producer"
	default:
		return "idle"
	}
}

// observerHub keeps the observer gauge in step with the registry
type observerHub struct {
	*broadcast.Registry
	metrics *metrics.Metrics
}

func (h *observerHub) Register(p broadcast.Peer) bool {
	added := h.Registry.Register(p)
	h.metrics.ActiveObservers.Set(float64(h.Registry.Len()))
	return added
}

func (h *observerHub) Unregister(id string) bool {
	removed := h.Registry.Unregister(id)
	h.metrics.ActiveObservers.Set(float64(h.Registry.Len()))
	return removed
}
