// ABOUTME: HTTP routes served next to the WebSocket endpoint
// ABOUTME: Archive listings, static files, uploads, health and metrics
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Deploy-u/Audio-Recording-System/internal/archive"
	"github.com/Deploy-u/Audio-Recording-System/internal/protocol"
	"github.com/Deploy-u/Audio-Recording-System/pkg/audio/wav"
	"github.com/gorilla/websocket"
)

func (s *Server) routes() {
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/", s.handleRoot)

	s.mux.HandleFunc("GET /api/past-streams", s.handleList(s.streams))
	s.mux.HandleFunc("GET /api/recordings", s.handleList(s.recordings))

	s.mux.Handle("/streams/", http.StripPrefix("/streams/", http.FileServer(http.Dir(s.streams.Dir()))))
	s.mux.Handle("/recordings/", http.StripPrefix("/recordings/", http.FileServer(http.Dir(s.recordings.Dir()))))

	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

// handleRoot accepts WebSocket upgrades on "/" for producers that dial the
// bare host, and otherwise serves the dashboard.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}

	if s.config.PublicDir == "" {
		http.NotFound(w, r)
		return
	}
	if fi, err := os.Stat(s.config.PublicDir); err != nil || !fi.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.FileServer(http.Dir(s.config.PublicDir)).ServeHTTP(w, r)
}

func (s *Server) handleList(a *archive.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := a.List()
		if err != nil {
			s.logger.Error().Err(err).Str("dir", a.Dir()).Msg("failed to list archive")
			http.Error(w, "Failed to list files.", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// handleUpload wraps an uploaded raw PCM file into a WAV container under
// recordings/, named after the upload with its extension replaced.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.metrics.Uploads.WithLabelValues("rejected").Inc()
		http.Error(w, "No file uploaded.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	base := filepath.Base(header.Filename)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + archive.Extension
	target, err := s.recordings.Path(name)
	if err != nil {
		s.metrics.Uploads.WithLabelValues("rejected").Inc()
		http.Error(w, "Invalid file name.", http.StatusBadRequest)
		return
	}

	n, err := wav.WriteFrom(target, s.config.Format, file)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			s.metrics.Uploads.WithLabelValues("conflict").Inc()
			http.Error(w, "Recording already exists.", http.StatusConflict)
			return
		}
		s.metrics.Uploads.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("file", target).Msg("WAV conversion failed")
		http.Error(w, "WAV conversion failed.", http.StatusInternalServerError)
		return
	}

	s.metrics.Uploads.WithLabelValues("ok").Inc()
	s.logger.Info().Str("file", target).Int64("bytes", n).Msg("stored uploaded recording")

	writeJSON(w, http.StatusOK, protocol.UploadResponse{
		Success: true,
		File:    path.Join("/recordings", name),
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Observers int    `json:"observers"`
	Uptime    string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.connsMu.RLock()
	sessions := len(s.conns)
	s.connsMu.RUnlock()

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Sessions:  sessions,
		Observers: s.registry.Len(),
		Uptime:    s.clock.Since(s.startTime).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
