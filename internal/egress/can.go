package egress

import (
	"encoding/binary"
	"errors"

	"github.com/banshee-data/cellgate/internal/protocol"
)

// canFrameSize is sizeof(struct can_frame) on Linux.
const canFrameSize = 16

var ErrCANUnsupported = errors.New("egress: SocketCAN is only available on linux")

// canFrameBytes lays f out as a Linux struct can_frame: can_id in host byte
// order, the DLC, three reserved bytes, then the payload.
func canFrameBytes(f protocol.EgressFrame) [canFrameSize]byte {
	var b [canFrameSize]byte
	binary.NativeEndian.PutUint32(b[0:4], f.ID)
	b[4] = f.Len
	copy(b[8:], f.Payload[:])
	return b
}
