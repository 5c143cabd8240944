package ingest

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/testutil"
)

func TestReaderSource_StreamOverBuffer(t *testing.T) {
	mute(t)
	data := testutil.Concat([]byte{0x01}, testutil.Packet(3300, 45), testutil.Packet(3050, 70))
	sr := NewStreamReader(NewReaderSource("buf", bytes.NewReader(data)), nil)

	r, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Reading{VoltageMV: 3300, TempC: 45}, r)

	r, err = sr.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Reading{VoltageMV: 3050, TempC: 70}, r)

	_, err = sr.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestReaderSource_RespectsMax(t *testing.T) {
	src := NewReaderSource("buf", bytes.NewReader(make([]byte, 100)))
	b, err := src.ReadBytes(3)
	require.NoError(t, err)
	assert.Len(t, b, 3)

	b, err = src.ReadBytes(200)
	require.NoError(t, err)
	assert.Len(t, b, 97)

	_, err = src.ReadBytes(0)
	assert.Error(t, err)
}

func TestReaderSource_Close(t *testing.T) {
	port := NewTestableSerialPort()
	src := NewReaderSource("serial://test", port)
	require.NoError(t, src.Close())
	assert.True(t, port.Closed)
	assert.Equal(t, "serial://test", src.String())

	// Readers without Close are fine too.
	assert.NoError(t, NewReaderSource("r", bytes.NewReader(nil)).Close())
}

func TestReaderSource_BlockedReadUnblocksOnClose(t *testing.T) {
	mute(t)
	port := NewTestableSerialPort()
	port.BlockReads = true
	src := NewReaderSource("serial://test", port)
	sr := NewStreamReader(src, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sr.Next()
		done <- err
	}()

	port.AddReadData(testutil.Packet(3300, 45)[:2])
	require.NoError(t, src.Close())

	err := <-done
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestTestableSerialPort_ReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = io.ErrUnexpectedEOF

	_, err := port.Read(make([]byte, 5))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	port.AddReadData([]byte{1})
	n, err := port.Read(make([]byte, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, port.ReadCalls)
}
