// ABOUTME: TUI update helpers for server
// ABOUTME: Functions to send server state updates to TUI
package server

import (
	"math"
	"net"
	"sync/atomic"
	"time"
)

// tuiRefreshInterval keeps level meters moving between lifecycle events
const tuiRefreshInterval = 250 * time.Millisecond

// levelMeter holds the most recent peak level of a producer's audio
type levelMeter struct {
	bits atomic.Uint64
}

func (l *levelMeter) Set(v float64) {
	l.bits.Store(math.Float64bits(v))
}

func (l *levelMeter) Get() float64 {
	return math.Float64frombits(l.bits.Load())
}

// status builds a snapshot of the server for display
func (s *Server) status() ServerStatus {
	port := s.config.Port
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return ServerStatus{
		Name:      s.config.Name,
		Port:      port,
		Format:    s.config.Format.String(),
		Sessions:  s.Sessions(),
		Observers: s.registry.Len(),
		Finished:  int(s.finished.Load()),
	}
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}

// refreshTUI pushes periodic updates until the server stops
func (s *Server) refreshTUI() {
	ticker := s.clock.NewTicker(tuiRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.updateTUI()
		case <-s.stopChan:
			return
		}
	}
}
