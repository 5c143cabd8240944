package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/cellgate/internal/httputil"
	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/safety"
)

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	Readings        int64     `json:"readings"`
	DroppedBytes    int64     `json:"dropped_bytes"`
	SyncRejects     int64     `json:"sync_rejects"`
	ChecksumRejects int64     `json:"checksum_rejects"`
	SinkFailures    int64     `json:"sink_failures"`
	StatusOK        int64     `json:"status_ok"`
	StatusWarnLowV  int64     `json:"status_warn_low_volt"`
	StatusCritTemp  int64     `json:"status_crit_temp"`
	Since           time.Time `json:"since"`
}

// Stats counts pipeline events. It satisfies ingest.Stats and is safe for
// concurrent reads from the admin routes.
type Stats struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewStats() *Stats {
	return &Stats{snap: Snapshot{Since: time.Now()}}
}

func (s *Stats) AddDroppedBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.DroppedBytes += int64(n)
}

func (s *Stats) AddRejected(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.Is(err, protocol.ErrSyncMismatch):
		s.snap.SyncRejects++
	case errors.Is(err, protocol.ErrChecksumMismatch):
		s.snap.ChecksumRejects++
	}
}

func (s *Stats) addReading(st safety.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Readings++
	switch st {
	case safety.StatusOK:
		s.snap.StatusOK++
	case safety.StatusWarnLowVolt:
		s.snap.StatusWarnLowV++
	case safety.StatusCritTemp:
		s.snap.StatusCritTemp++
	}
}

func (s *Stats) addSinkFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.SinkFailures++
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// LogStats logs the counters if anything has been seen.
func (s *Stats) LogStats() {
	snap := s.Snapshot()
	if snap.Readings == 0 && snap.DroppedBytes == 0 && snap.ChecksumRejects == 0 {
		return
	}
	msg := fmt.Sprintf("[gateway] stats: %d readings (ok=%d warn=%d crit=%d)",
		snap.Readings, snap.StatusOK, snap.StatusWarnLowV, snap.StatusCritTemp)
	if snap.DroppedBytes > 0 || snap.ChecksumRejects > 0 {
		msg += fmt.Sprintf(", %d bytes skipped, %d bad checksums", snap.DroppedBytes, snap.ChecksumRejects)
	}
	if snap.SinkFailures > 0 {
		msg += fmt.Sprintf(", %d sink failures", snap.SinkFailures)
	}
	monitoring.Logf("%s", msg)
}

// AttachAdminRoutes mounts /debug/pipeline-stats as JSON.
func (s *Stats) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("pipeline-stats", "gateway pipeline counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Snapshot())
	})
}
