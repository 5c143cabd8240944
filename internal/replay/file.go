package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// FileReader extracts the sensor's TCP payloads from a classic pcap file.
// It needs no libpcap; OpenPCAP offers BPF filtering when built with it.
type FileReader struct {
	f      *os.File
	r      *pcapgo.Reader
	port   layers.TCPPort
	frames int
}

// OpenFile opens a pcap capture and yields payloads of TCP segments sent
// from port.
func OpenFile(path string, port int) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture header %s: %w", path, err)
	}
	return &FileReader{f: f, r: r, port: layers.TCPPort(port)}, nil
}

// NextSegment skips packets that are not TCP from the sensor port or that
// carry no payload.
func (fr *FileReader) NextSegment() (Segment, error) {
	for {
		data, ci, err := fr.r.ReadPacketData()
		if err == io.EOF {
			return Segment{}, io.EOF
		}
		if err != nil {
			return Segment{}, fmt.Errorf("failed to read capture packet %d: %w", fr.frames+1, err)
		}
		fr.frames++

		packet := gopacket.NewPacket(data, fr.r.LinkType(), gopacket.NoCopy)
		if seg, ok := tcpPayload(packet, fr.port); ok {
			seg.Timestamp = ci.Timestamp
			return seg, nil
		}
	}
}

// Frames returns the number of capture records read so far.
func (fr *FileReader) Frames() int { return fr.frames }

func (fr *FileReader) Close() error { return fr.f.Close() }

func tcpPayload(packet gopacket.Packet, port layers.TCPPort) (Segment, bool) {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return Segment{}, false
	}
	tcp, ok := tcpLayer.(*layers.TCP)
	if !ok || tcp.SrcPort != port || len(tcp.Payload) == 0 {
		return Segment{}, false
	}
	return Segment{Data: append([]byte(nil), tcp.Payload...)}, true
}
