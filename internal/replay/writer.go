package replay

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65536

// CaptureWriter records a one-way TCP byte stream as an Ethernet pcap so it
// can be replayed later or inspected with standard tools.
type CaptureWriter struct {
	w       *pcapgo.Writer
	srcPort layers.TCPPort
	dstPort layers.TCPPort
	seq     uint32
	buf     gopacket.SerializeBuffer

	// Now stamps segments written through Write. Defaults to time.Now.
	Now func() time.Time
}

// NewCaptureWriter writes the pcap header to w. Segments appear to travel
// from 127.0.0.1:srcPort to 127.0.0.1:dstPort.
func NewCaptureWriter(w io.Writer, srcPort, dstPort int) (*CaptureWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return &CaptureWriter{
		w:       pw,
		srcPort: layers.TCPPort(srcPort),
		dstPort: layers.TCPPort(dstPort),
		seq:     1,
		buf:     gopacket.NewSerializeBuffer(),
		Now:     time.Now,
	}, nil
}

// WriteSegment appends one TCP segment carrying payload.
func (c *CaptureWriter) WriteSegment(payload []byte, at time.Time) error {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(127, 0, 0, 1),
		DstIP:    net.IPv4(127, 0, 0, 1),
	}
	tcp := &layers.TCP{
		SrcPort: c.srcPort,
		DstPort: c.dstPort,
		Seq:     c.seq,
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(c.buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("failed to serialise segment: %w", err)
	}
	data := c.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: at, CaptureLength: len(data), Length: len(data)}
	if err := c.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("failed to write segment: %w", err)
	}
	c.seq += uint32(len(payload))
	return nil
}

// Write records p as one segment stamped with Now.
func (c *CaptureWriter) Write(p []byte) (int, error) {
	if err := c.WriteSegment(p, c.Now()); err != nil {
		return 0, err
	}
	return len(p), nil
}
