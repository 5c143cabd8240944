package ingest

import (
	"errors"
	"fmt"
)

// ErrStreamClosed is returned once the ingest stream reports end of data,
// either as io.EOF or as a zero-length read.
var ErrStreamClosed = errors.New("ingest: stream closed")

// TransportError reports a read failure from the underlying transport.
// It is fatal to the StreamReader that observed it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ingest: transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsFatal reports whether err ends a pipeline run: the stream closed or the
// transport failed. Callers use it to decide whether to reconnect.
func IsFatal(err error) bool {
	var te *TransportError
	return errors.Is(err, ErrStreamClosed) || errors.As(err, &te)
}
