package egress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/testutil"
)

func TestTap_FanOut(t *testing.T) {
	tap := NewTap()
	id1, c1 := tap.Subscribe()
	_, c2 := tap.Subscribe()
	assert.Equal(t, 2, tap.Subscribers())

	require.NoError(t, tap.Emit(testFrame))
	assert.Equal(t, testFrame, <-c1)
	assert.Equal(t, testFrame, <-c2)

	tap.Unsubscribe(id1)
	_, ok := <-c1
	assert.False(t, ok)
	assert.Equal(t, 1, tap.Subscribers())

	tap.Unsubscribe("unknown")
	require.NoError(t, tap.Close())
	_, ok = <-c2
	assert.False(t, ok)
}

func TestTap_SlowSubscriberMissesFrames(t *testing.T) {
	tap := NewTap()
	_, c := tap.Subscribe()

	for i := 0; i < tapBuffer+5; i++ {
		require.NoError(t, tap.Emit(testFrame))
	}
	assert.Equal(t, uint64(5), tap.Missed())
	assert.Len(t, c, tapBuffer)
}

func TestTap_AdminTail(t *testing.T) {
	tap := NewTap()
	mux := http.NewServeMux()
	tap.AttachAdminRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/debug/tail", nil).WithContext(ctx)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		mux.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return tap.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	frame := protocol.BuildFrame(protocol.Reading{VoltageMV: 3050, TempC: 61}, 2)
	require.NoError(t, tap.Emit(frame))

	// Closing the tap ends the stream after the queued frame is written.
	require.NoError(t, tap.Close())
	<-done
	cancel()

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, ": ping\n\n"))
	assert.Contains(t, body, "data: Volt:3050mV | Temp: 61C | id=0x100 len=8 data=0B EA 3D 02 00 00 00 00\n\n")
}

func TestTap_AdminTailRejectsPost(t *testing.T) {
	tap := NewTap()
	mux := http.NewServeMux()
	tap.AttachAdminRoutes(mux)

	w := testutil.Serve(mux, http.MethodPost, "/debug/tail")
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}
