package ingest

import (
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/testutil"
)

type recordingStats struct {
	dropped  int
	rejected []error
}

func (s *recordingStats) AddDroppedBytes(n int) { s.dropped += n }
func (s *recordingStats) AddRejected(err error) { s.rejected = append(s.rejected, err) }

func mute(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

func TestStreamReader_SinglePacket(t *testing.T) {
	mute(t)
	src := testutil.NewScriptedSource([]byte{0xAA, 0x0C, 0xE4, 0x2D, 0x47})
	sr := NewStreamReader(src, nil)

	r, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Reading{VoltageMV: 3300, TempC: 45}, r)
	assert.Equal(t, StateAwaitSync, sr.State())

	_, err = sr.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStreamReader_ResyncAfterLeadingGarbage(t *testing.T) {
	mute(t)
	stats := &recordingStats{}
	src := testutil.NewScriptedSource(testutil.Concat([]byte{0x01}, testutil.Packet(3300, 45)))
	sr := NewStreamReader(src, stats)

	r, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Reading{VoltageMV: 3300, TempC: 45}, r)
	assert.Equal(t, 1, stats.dropped)
	assert.Empty(t, stats.rejected)
}

func TestStreamReader_ReadsOnlyWhatThePacketNeeds(t *testing.T) {
	mute(t)
	src := testutil.NewScriptedSource(testutil.Concat(
		[]byte{0x00, 0x11},
		testutil.Packet(3300, 45),
		testutil.Packet(3050, 20),
	))
	sr := NewStreamReader(src, nil)

	_, err := sr.Next()
	require.NoError(t, err)
	_, err = sr.Next()
	require.NoError(t, err)
	for _, max := range src.Requests {
		assert.LessOrEqual(t, max, protocol.PacketSize)
		assert.GreaterOrEqual(t, max, 1)
	}
}

func TestStreamReader_PacketSplitAcrossReads(t *testing.T) {
	mute(t)
	pkt := testutil.Packet(3712, 51)
	src := testutil.NewScriptedSource(pkt[:1], pkt[1:3], pkt[3:4], pkt[4:])
	sr := NewStreamReader(src, nil)

	r, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Reading{VoltageMV: 3712, TempC: 51}, r)
	assert.Equal(t, []int{5, 4, 2, 1}, src.Requests)
}

func TestStreamReader_StateProgression(t *testing.T) {
	mute(t)
	pkt := testutil.Packet(3300, 45)
	src := testutil.NewScriptedSource(pkt[:3])
	sr := NewStreamReader(src, nil)

	_, err := sr.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, StateAccumulate, sr.State())
	assert.Equal(t, 3, sr.Buffered())
}

func TestStreamReader_ChecksumFailureDropsWholeWindow(t *testing.T) {
	mute(t)
	stats := &recordingStats{}

	// The bad packet's body contains 0xAA at index 3. A rescanning reader
	// would resync there; this one drops all five bytes.
	bad := []byte{0xAA, 0x0C, 0xE4, 0xAA, 0x00}
	src := testutil.NewScriptedSource(testutil.Concat(bad, testutil.Packet(3200, 30)))
	sr := NewStreamReader(src, stats)

	r, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Reading{VoltageMV: 3200, TempC: 30}, r)
	require.Len(t, stats.rejected, 1)
	assert.ErrorIs(t, stats.rejected[0], protocol.ErrChecksumMismatch)
	assert.Zero(t, stats.dropped)
}

func TestStreamReader_MultiplePacketsInOneChunk(t *testing.T) {
	mute(t)
	src := &oversizedSource{data: testutil.Concat(
		testutil.Packet(3300, 45),
		[]byte{0x42},
		testutil.Packet(3000, 70),
	)}
	sr := NewStreamReader(src, nil)

	var got []protocol.Reading
	for {
		r, err := sr.Next()
		if err != nil {
			assert.ErrorIs(t, err, ErrStreamClosed)
			break
		}
		got = append(got, r)
	}
	assert.Equal(t, []protocol.Reading{
		{VoltageMV: 3300, TempC: 45},
		{VoltageMV: 3000, TempC: 70},
	}, got)
}

// oversizedSource ignores max and returns everything at once.
type oversizedSource struct {
	data []byte
	done bool
}

func (s *oversizedSource) ReadBytes(int) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.data, nil
}

func TestStreamReader_ZeroLengthReadIsClosed(t *testing.T) {
	mute(t)
	src := testutil.NewScriptedSource().Then(nil, nil)
	sr := NewStreamReader(src, nil)

	_, err := sr.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.True(t, IsFatal(err))
}

func TestStreamReader_TransportErrorIsSticky(t *testing.T) {
	mute(t)
	src := testutil.NewScriptedSource().Then(nil, syscall.ECONNRESET)
	sr := NewStreamReader(src, nil)

	_, err := sr.Next()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read", te.Op)
	assert.ErrorIs(t, err, syscall.ECONNRESET)

	calls := len(src.Requests)
	_, again := sr.Next()
	assert.Same(t, te, again.(*TransportError))
	assert.Equal(t, calls, len(src.Requests), "no read after a fatal error")
}

func TestStreamReader_DataWithErrorIsConsumedFirst(t *testing.T) {
	mute(t)
	boom := errors.New("link down")
	src := testutil.NewScriptedSource().Then(testutil.Packet(3300, 45), boom)
	sr := NewStreamReader(src, nil)

	r, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(3300), r.VoltageMV)

	_, err = sr.Next()
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsFatal(err))
}

func TestStreamReader_EOFWithDataIsClosedAfterDrain(t *testing.T) {
	mute(t)
	src := testutil.NewScriptedSource().Then(testutil.Packet(3100, 60), io.EOF)
	sr := NewStreamReader(src, nil)

	r, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Reading{VoltageMV: 3100, TempC: 60}, r)

	_, err = sr.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStreamReader_SourceReturnedTransportError(t *testing.T) {
	mute(t)
	want := &TransportError{Op: "poll", Err: errors.New("eio")}
	sr := NewStreamReader(testutil.NewScriptedSource().Then(nil, want), nil)

	_, err := sr.Next()
	assert.Same(t, want, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "await_sync", StateAwaitSync.String())
	assert.Equal(t, "accumulate", StateAccumulate.String())
	assert.Equal(t, "validate", StateValidate.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrStreamClosed))
	assert.True(t, IsFatal(&TransportError{Op: "read", Err: io.ErrUnexpectedEOF}))
	assert.False(t, IsFatal(protocol.ErrChecksumMismatch))
	assert.False(t, IsFatal(nil))
}
