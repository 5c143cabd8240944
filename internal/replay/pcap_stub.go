//go:build !pcap
// +build !pcap

package replay

import "errors"

// ErrPCAPDisabled is returned by OpenPCAP in builds without libpcap.
var ErrPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap, or use OpenFile")

// OpenPCAP is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable libpcap reading with BPF filters.
func OpenPCAP(path string, port int) (SegmentReader, error) {
	return nil, ErrPCAPDisabled
}
