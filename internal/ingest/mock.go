package ingest

import (
	"bytes"
	"errors"
	"sync"

	"go.bug.st/serial"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort implements SerialPorter over in-memory buffers. Reads
// drain ReadBuffer; with BlockReads set an empty buffer blocks until data
// arrives or the port closes, which is how a real UART behaves.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set.
	ReadError  error
	CloseError error

	BlockReads bool
	Closed     bool
	ReadCalls  int
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++
	if p.Closed {
		return 0, errPortClosed
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	if p.BlockReads {
		for !p.Closed && p.ReadBuffer.Len() == 0 {
			p.readCond.Wait()
		}
		if p.Closed {
			return 0, errPortClosed
		}
	}
	return p.ReadBuffer.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Closed {
		return 0, errPortClosed
	}
	return p.WriteBuffer.Write(b)
}

// Close marks the port closed and wakes blocked readers.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// AddReadData queues bytes for subsequent reads.
func (p *TestableSerialPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadBuffer.Write(data)
	p.readCond.Signal()
}

// MockOpener records open calls and hands out a fixed port.
type MockOpener struct {
	mu sync.Mutex

	Port  SerialPorter
	Error error
	Calls []MockOpenCall
}

// MockOpenCall records the arguments of one open.
type MockOpenCall struct {
	Path string
	Mode serial.Mode
}

// Open satisfies SerialPortOpener.
func (o *MockOpener) Open(path string, mode *serial.Mode) (SerialPorter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Calls = append(o.Calls, MockOpenCall{Path: path, Mode: *mode})
	if o.Error != nil {
		return nil, o.Error
	}
	return o.Port, nil
}
