// Package health exposes the player core's liveness/readiness over HTTP
// and watches worker heartbeats for a degraded-readiness signal, the way
// the teacher's internal/core/health.go exposes an Orion service's.
package health

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/orioncore/playerengine/internal/player"
)

// WorkerStatus is one goroutine's last-observed activity.
type WorkerStatus struct {
	Name       string    `json:"name"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Status is the JSON payload served on /readiness.
type Status struct {
	Status        string         `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64          `json:"uptime_seconds"`
	Generation    uint64         `json:"generation"`
	MediaStatus   string         `json:"media_status"`
	State         string         `json:"state"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	VideoBytes    int            `json:"video_queue_bytes"`
	AudioBytes    int            `json:"audio_queue_bytes"`
	Workers       []WorkerStatus `json:"workers"`
}

// Reporter is the seam health.Server queries; player.Core satisfies it
// directly (see cmd/playerengined for the wiring).
type Reporter interface {
	Generation() uint64
	MediaStatus() player.MediaStatus
	State() player.State
	Error() player.ErrorKind
	VideoQueueBytes() int
	AudioQueueBytes() int
	Heartbeats() map[string]time.Time
}

// watchdogTimeout is the maximum silence a heartbeat may go before a
// worker is considered hung and readiness reports degraded.
const watchdogTimeout = 30 * time.Second

// Server serves /health, /readiness, and /metrics for a running Core.
type Server struct {
	reporter Reporter
	started  time.Time

	httpServer *http.Server
}

// NewServer builds a Server bound to reporter.
func NewServer(reporter Reporter) *Server {
	return &Server{reporter: reporter, started: time.Now()}
}

func (s *Server) snapshot() Status {
	heartbeats := s.reporter.Heartbeats()
	workers := make([]WorkerStatus, 0, len(heartbeats))
	degraded := false
	for name, t := range heartbeats {
		workers = append(workers, WorkerStatus{Name: name, LastSeenAt: t})
		if time.Since(t) > watchdogTimeout {
			degraded = true
		}
	}

	status := Status{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Generation:    s.reporter.Generation(),
		MediaStatus:   s.reporter.MediaStatus().String(),
		State:         s.reporter.State().String(),
		VideoBytes:    s.reporter.VideoQueueBytes(),
		AudioBytes:    s.reporter.AudioQueueBytes(),
		Workers:       workers,
	}
	if errKind := s.reporter.Error(); errKind.String() != "None" {
		status.ErrorKind = errKind.String()
		degraded = true
	}

	switch {
	case status.MediaStatus == "InvalidMedia":
		status.Status = "unhealthy"
	case degraded:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	return status
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) readinessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := s.snapshot()

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	status := s.snapshot()
	fmt.Fprintf(w, "playerengine_uptime_seconds %d\n", status.UptimeSeconds)
	fmt.Fprintf(w, "playerengine_video_queue_bytes %d\n", status.VideoBytes)
	fmt.Fprintf(w, "playerengine_audio_queue_bytes %d\n", status.AudioBytes)
	fmt.Fprintf(w, "playerengine_generation %d\n", status.Generation)
}

// Start launches the HTTP server on the given port in its own goroutine
// and returns immediately.
func (s *Server) Start(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.livenessHandler)
	mux.HandleFunc("/readiness", s.readinessHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health server", "port", port, "endpoints", []string{"/health", "/readiness", "/metrics"})

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()
	return nil
}

// Stop closes the HTTP server immediately; in-flight requests are not
// waited for.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}
