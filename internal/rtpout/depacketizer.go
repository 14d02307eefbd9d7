package rtpout

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pion/rtp"
)

// Depacketizer reassembles RFC 4175 packets into packed frames: one
// buffer of pixel groups, line group after line group.
type Depacketizer struct {
	sampling  Sampling
	width     int
	height    int
	buffer    []byte
	timestamp uint32
	started   bool
	mu        sync.Mutex
}

// NewDepacketizer creates a depacketizer for width x height frames sent
// with sampling s.
func NewDepacketizer(s Sampling, width, height int) *Depacketizer {
	return &Depacketizer{
		sampling: s,
		width:    width,
		height:   height,
		buffer:   make([]byte, s.frameSize(width, height)),
	}
}

func (s Sampling) lineSize(width int) int { return width / s.Pixels * s.Size }

func (s Sampling) frameSize(width, height int) int {
	return s.lineSize(width) * (height / s.Lines)
}

// Depacketize processes an RTP packet. It returns the packed frame when
// the packet carries the marker bit; the slice is valid until the next
// call.
func (d *Depacketizer) Depacketize(packet *rtp.Packet) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started && d.timestamp != packet.Timestamp {
		clear(d.buffer)
	}
	d.timestamp, d.started = packet.Timestamp, true

	payload := packet.Payload
	if len(payload) < extSeqSize {
		return nil, fmt.Errorf("rtpout: payload of %d bytes", len(payload))
	}
	payload = payload[extSeqSize:]

	type header struct{ length, line, offset int }
	var headers []header
	for more := true; more; {
		if len(payload) < segmentHeaderSize {
			return nil, fmt.Errorf("rtpout: truncated segment header")
		}
		off := binary.BigEndian.Uint16(payload[4:])
		headers = append(headers, header{
			length: int(binary.BigEndian.Uint16(payload)),
			line:   int(binary.BigEndian.Uint16(payload[2:]) & 0x7fff),
			offset: int(off & 0x7fff),
		})
		more = off&0x8000 != 0
		payload = payload[segmentHeaderSize:]
	}

	s := d.sampling
	stride := s.lineSize(d.width)
	for _, h := range headers {
		if len(payload) < h.length {
			return nil, fmt.Errorf("rtpout: segment of %d bytes, %d left", h.length, len(payload))
		}
		start := h.line/s.Lines*stride + h.offset/s.Pixels*s.Size
		if h.line >= d.height || start+h.length > len(d.buffer) {
			return nil, fmt.Errorf("rtpout: segment at line %d offset %d outside the frame", h.line, h.offset)
		}
		copy(d.buffer[start:], payload[:h.length])
		payload = payload[h.length:]
	}

	if !packet.Marker {
		return nil, nil
	}
	return d.buffer, nil
}
