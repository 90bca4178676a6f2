package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/orioncore/playerengine/internal/player"
)

// fakeReporter is a hand-wired Reporter double, the way the teacher's
// health tests stub a service without spinning up the real thing.
type fakeReporter struct {
	generation  uint64
	mediaStatus player.MediaStatus
	state       player.State
	errorKind   player.ErrorKind
	videoBytes  int
	audioBytes  int
	heartbeats  map[string]time.Time
}

func (f *fakeReporter) Generation() uint64                { return f.generation }
func (f *fakeReporter) MediaStatus() player.MediaStatus    { return f.mediaStatus }
func (f *fakeReporter) State() player.State                { return f.state }
func (f *fakeReporter) Error() player.ErrorKind             { return f.errorKind }
func (f *fakeReporter) VideoQueueBytes() int                { return f.videoBytes }
func (f *fakeReporter) AudioQueueBytes() int                { return f.audioBytes }
func (f *fakeReporter) Heartbeats() map[string]time.Time    { return f.heartbeats }

func freshReporter() *fakeReporter {
	now := time.Now()
	return &fakeReporter{
		mediaStatus: player.NoMedia,
		state:       player.Stopped,
		errorKind:   player.ErrorNone,
		heartbeats: map[string]time.Time{
			"loader": now,
			"demux":  now,
			"video":  now,
			"audio":  now,
		},
	}
}

func TestSnapshotHealthyWhenWorkersFresh(t *testing.T) {
	s := NewServer(freshReporter())
	status := s.snapshot()
	if status.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", status.Status)
	}
	if len(status.Workers) != 4 {
		t.Errorf("expected 4 workers reported, got %d", len(status.Workers))
	}
}

func TestSnapshotDegradedOnStaleHeartbeat(t *testing.T) {
	r := freshReporter()
	r.heartbeats["video"] = time.Now().Add(-2 * watchdogTimeout)

	s := NewServer(r)
	status := s.snapshot()
	if status.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", status.Status)
	}
}

func TestSnapshotDegradedOnPlaybackError(t *testing.T) {
	r := freshReporter()
	r.errorKind = player.ErrorResource

	s := NewServer(r)
	status := s.snapshot()
	if status.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", status.Status)
	}
	if status.ErrorKind != "Resource" {
		t.Errorf("ErrorKind = %q, want Resource", status.ErrorKind)
	}
}

func TestSnapshotUnhealthyOnInvalidMedia(t *testing.T) {
	r := freshReporter()
	r.mediaStatus = player.InvalidMedia

	s := NewServer(r)
	status := s.snapshot()
	if status.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", status.Status)
	}
}

func TestReadinessHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	r := freshReporter()
	r.mediaStatus = player.InvalidMedia
	s := NewServer(r)

	req := httptest.NewRequest(http.MethodGet, "/readiness", nil)
	rec := httptest.NewRecorder()
	s.readinessHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if status.Status != "unhealthy" {
		t.Errorf("decoded Status = %q, want unhealthy", status.Status)
	}
}

func TestReadinessHandlerReturnsOKWhenHealthy(t *testing.T) {
	s := NewServer(freshReporter())

	req := httptest.NewRequest(http.MethodGet, "/readiness", nil)
	rec := httptest.NewRecorder()
	s.readinessHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestLivenessHandlerAlwaysOK(t *testing.T) {
	s := NewServer(freshReporter())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.livenessHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMetricsHandlerReportsQueueBytes(t *testing.T) {
	r := freshReporter()
	r.videoBytes = 1024
	r.audioBytes = 512
	s := NewServer(r)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.metricsHandler(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "playerengine_video_queue_bytes 1024") {
		t.Errorf("metrics body missing video queue bytes: %s", body)
	}
	if !strings.Contains(body, "playerengine_audio_queue_bytes 512") {
		t.Errorf("metrics body missing audio queue bytes: %s", body)
	}
}
