//go:build pcap
// +build pcap

package replay

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/cellgate/internal/monitoring"
)

// PCAPReader reads a capture through libpcap with a BPF filter applied, so
// pcapng files and non-Ethernet link types are handled too.
// This is only available when building with the 'pcap' build tag.
type PCAPReader struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
	port   layers.TCPPort
}

// OpenPCAP opens path and keeps only TCP segments sent from port.
func OpenPCAP(path string, port int) (SegmentReader, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}

	filterStr := fmt.Sprintf("tcp src port %d", port)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("[replay] PCAP BPF filter set: %s", filterStr)

	return &PCAPReader{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
		port:   layers.TCPPort(port),
	}, nil
}

func (r *PCAPReader) NextSegment() (Segment, error) {
	for {
		packet, err := r.source.NextPacket()
		if err == io.EOF {
			return Segment{}, io.EOF
		}
		if err != nil {
			return Segment{}, fmt.Errorf("failed to read PCAP packet: %w", err)
		}
		if seg, ok := tcpPayload(packet, r.port); ok {
			seg.Timestamp = packet.Metadata().Timestamp
			return seg, nil
		}
	}
}

func (r *PCAPReader) Close() error {
	r.handle.Close()
	return nil
}
