// ABOUTME: Per-connection session that executes state machine effects
// ABOUTME: Owns the stream's container writer and routes frames to observers
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Deploy-u/Audio-Recording-System/internal/broadcast"
	"github.com/rs/zerolog"
)

// ErrNoWriter means a chunk reached a producer whose writer was never opened
var ErrNoWriter = errors.New("session: no open writer")

// Writer is the container a producer session appends to
type Writer interface {
	Write(p []byte) (int, error)
	Finalize() error
	Path() string
	BytesWritten() int64
}

// Opener creates the container for a new stream. It is called at most once
// per session, on the first binary message.
type Opener func() (Writer, error)

// Hub is the observer registry as seen by a session
type Hub interface {
	Register(p broadcast.Peer) bool
	Unregister(id string) bool
	Broadcast(f broadcast.Frame) broadcast.Stats
}

// Notifier publishes lifecycle events for finished streams
type Notifier interface {
	StreamCompleted(path string, bytes int64)
}

// Hooks observe session activity for metrics and dashboards. All are optional.
type Hooks struct {
	OnStreamStarted  func(s *Session, path string)
	OnChunk          func(s *Session, data []byte)
	OnStreamFinished func(s *Session, path string, bytes int64, err error)
}

// Config holds a session's collaborators
type Config struct {
	ID       string
	Peer     broadcast.Peer
	Open     Opener
	Hub      Hub
	Notifier Notifier
	Hooks    Hooks
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Session is the state of one connection. Handle must be called from a
// single goroutine; the accessors are safe to call from anywhere.
type Session struct {
	id        string
	peer      broadcast.Peer
	open      Opener
	hub       Hub
	notifier  Notifier
	hooks     Hooks
	logger    zerolog.Logger
	createdAt time.Time

	mu     sync.RWMutex
	state  State
	writer Writer
	opened int
}

// New creates a session in the Undetermined state
func New(cfg Config) *Session {
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	return &Session{
		id:        cfg.ID,
		peer:      cfg.Peer,
		open:      cfg.Open,
		hub:       cfg.Hub,
		notifier:  cfg.Notifier,
		hooks:     cfg.Hooks,
		logger:    cfg.Logger.With().Str("session", cfg.ID).Logger(),
		createdAt: now(),
	}
}

// Handle applies one event. A returned error is fatal for the connection;
// the caller must close the transport and then deliver Closed.
func (s *Session) Handle(ev Event) error {
	s.mu.Lock()
	prev := s.state
	next, effects := Transition(prev, ev)
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.logger.Debug().Stringer("from", prev).Stringer("to", next).Msg("session state change")
	}

	for _, eff := range effects {
		if err := s.apply(eff); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) apply(eff Effect) error {
	switch eff := eff.(type) {
	case RegisterObserver:
		if s.hub != nil && s.peer != nil {
			s.hub.Register(s.peer)
		}
		s.logger.Info().Msg("registered dashboard client")

	case UnregisterObserver:
		if s.hub != nil {
			s.hub.Unregister(s.id)
		}

	case OpenWriter:
		return s.openWriter()

	case WriteChunk:
		w := s.currentWriter()
		if w == nil {
			return ErrNoWriter
		}
		if _, err := w.Write(eff.Data); err != nil {
			return fmt.Errorf("write chunk to %s: %w", w.Path(), err)
		}
		if s.hooks.OnChunk != nil {
			s.hooks.OnChunk(s, eff.Data)
		}

	case BroadcastChunk:
		if s.hub != nil {
			s.hub.Broadcast(broadcast.Frame{Kind: broadcast.Binary, Data: eff.Data})
		}

	case FinalizeWriter:
		return s.finalize()

	case NotifyStreamCompleted:
		w := s.currentWriter()
		if w != nil && s.notifier != nil {
			s.notifier.StreamCompleted(w.Path(), w.BytesWritten())
		}
	}
	return nil
}

func (s *Session) openWriter() error {
	if s.currentWriter() != nil {
		return nil
	}
	if s.open == nil {
		return ErrNoWriter
	}

	// Handle runs on one goroutine, so nothing else can open concurrently
	w, err := s.open()
	if err != nil {
		return fmt.Errorf("open stream container: %w", err)
	}

	s.mu.Lock()
	s.writer = w
	s.opened++
	s.mu.Unlock()

	s.logger.Info().Str("file", w.Path()).Msg("started live stream")
	if s.hooks.OnStreamStarted != nil {
		s.hooks.OnStreamStarted(s, w.Path())
	}
	return nil
}

// finalize completes the container. A failure stops the effect chain so no
// completion notification is sent for a broken file.
func (s *Session) finalize() error {
	w := s.currentWriter()
	if w == nil {
		return nil
	}

	err := w.Finalize()
	if s.hooks.OnStreamFinished != nil {
		s.hooks.OnStreamFinished(s, w.Path(), w.BytesWritten(), err)
	}
	if err != nil {
		return fmt.Errorf("finalize %s: %w", w.Path(), err)
	}

	s.logger.Info().
		Str("file", w.Path()).
		Int64("bytes", w.BytesWritten()).
		Msg("finalized live stream")
	return nil
}

func (s *Session) currentWriter() Writer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writer
}

// ID returns the connection id
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CreatedAt returns when the connection was accepted
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// WritersOpened returns how many containers this session created (0 or 1)
func (s *Session) WritersOpened() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened
}

// StreamPath returns the container path, or "" if no stream was started
func (s *Session) StreamPath() string {
	if w := s.currentWriter(); w != nil {
		return w.Path()
	}
	return ""
}

// BytesWritten returns the size of the stream's data so far
func (s *Session) BytesWritten() int64 {
	if w := s.currentWriter(); w != nil {
		return w.BytesWritten()
	}
	return 0
}
