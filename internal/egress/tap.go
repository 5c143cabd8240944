package egress

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/cellgate/internal/httputil"
	"github.com/banshee-data/cellgate/internal/protocol"
)

const tapBuffer = 32

// Tap is a Sink that republishes frames to live subscribers, such as the
// /debug/tail event stream. Slow subscribers miss frames rather than
// stalling the pipeline.
type Tap struct {
	mu          sync.Mutex
	subscribers map[string]chan protocol.EgressFrame
	missed      uint64
}

func NewTap() *Tap {
	return &Tap{subscribers: make(map[string]chan protocol.EgressFrame)}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (t *Tap) Subscribe() (string, <-chan protocol.EgressFrame) {
	id := uuid.NewString()
	ch := make(chan protocol.EgressFrame, tapBuffer)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Tap) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

// Emit never fails.
func (t *Tap) Emit(f protocol.EgressFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- f:
		default:
			t.missed++
		}
	}
	return nil
}

// Subscribers returns the number of live subscribers.
func (t *Tap) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// Missed returns the number of frames dropped for slow subscribers.
func (t *Tap) Missed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.missed
}

// Close unsubscribes everyone, ending open tail streams.
func (t *Tap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
	return nil
}

// AttachAdminRoutes mounts /debug/tail, a server-sent event stream with one
// event per emitted frame.
func (t *Tap) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("tail", "live egress frames (SSE)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := t.Subscribe()
		defer t.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case f, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s | %s\n\n", f.Reading(), f); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
