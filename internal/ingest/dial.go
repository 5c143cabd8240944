package ingest

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialFunc opens a new ingest connection.
type DialFunc func(ctx context.Context) (Source, error)

// DialTCP returns a DialFunc connecting to the sensor's TCP server.
func DialTCP(addr string, timeout time.Duration) DialFunc {
	return func(ctx context.Context) (Source, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return NewReaderSource("tcp://"+addr, conn), nil
	}
}

// DialSerial returns a DialFunc opening the serial device at path.
func DialSerial(path string, opts PortOptions) DialFunc {
	return dialSerialWith(openRealSerialPort, path, opts)
}

func dialSerialWith(open SerialPortOpener, path string, opts PortOptions) DialFunc {
	return func(ctx context.Context) (Source, error) {
		port, err := openSerialPortWith(open, path, opts)
		if err != nil {
			return nil, err
		}
		return NewReaderSource("serial://"+path, port), nil
	}
}

// OpenSerialPort opens the device at path for both directions, as the mock
// sensor does when it drives a UART instead of TCP.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	return openSerialPortWith(openRealSerialPort, path, opts)
}

func openSerialPortWith(open SerialPortOpener, path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("invalid serial options for %s: %w", path, err)
	}
	return open(path, mode)
}
