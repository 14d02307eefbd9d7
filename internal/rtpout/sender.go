package rtpout

import (
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	vs "github.com/thesyncim/vapoursynth"
	"github.com/thesyncim/vapoursynth/internal/pipe"
)

// Options configures a Sender.
type Options struct {
	MTU         int
	PayloadType uint8
	SSRC        uint32 // zero picks a random SSRC
	// Pace spaces frames at the stream's frame rate instead of sending
	// as fast as they are produced.
	Pace bool
	// SDP, when set, receives the session description once the stream
	// format is known.
	SDP    io.Writer
	Logger *zap.Logger
}

// Sender writes frames to a connected UDP socket. It implements
// pipe.FrameWriter.
type Sender struct {
	conn   net.Conn
	opts   Options
	pk     *Packetizer
	log    *zap.Logger
	first  int
	began  time.Time
	period time.Duration

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// Dial connects a UDP socket to addr ("host:port") and returns a Sender
// on it.
func Dial(addr string, opts Options) (*Sender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("rtpout: dial %s: %w", addr, err)
	}
	return NewSender(conn, opts), nil
}

// NewSender returns a Sender writing to conn. The Sender owns conn.
func NewSender(conn net.Conn, opts Options) *Sender {
	if opts.PayloadType == 0 {
		opts.PayloadType = DefaultPayloadType
	}
	if opts.SSRC == 0 {
		opts.SSRC = rand.Uint32()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{conn: conn, opts: opts, log: log}
}

// Packets returns the number of packets sent.
func (s *Sender) Packets() uint64 { return s.packets.Load() }

// Bytes returns the number of RTP bytes sent, headers included.
func (s *Sender) Bytes() uint64 { return s.bytes.Load() }

func (s *Sender) WriteHeader(h pipe.Header) error {
	if h.Video == nil {
		return fmt.Errorf("%w: rtp carries video only", ErrUnsupportedFormat)
	}
	pk, err := NewPacketizer(*h.Video, s.opts.SSRC, s.opts.PayloadType, s.opts.MTU)
	if err != nil {
		return err
	}
	s.pk = pk
	s.first = h.Start
	s.period = time.Duration(float64(time.Second) * float64(h.Video.FPSDen) / float64(h.Video.FPSNum))

	if s.opts.SDP != nil {
		host, port, err := net.SplitHostPort(s.conn.RemoteAddr().String())
		if err != nil {
			return err
		}
		p, _ := strconv.Atoi(port)
		sd, err := Describe(*h.Video, SessionOptions{Address: host, Port: p, PayloadType: s.opts.PayloadType})
		if err != nil {
			return err
		}
		b, err := sd.Marshal()
		if err != nil {
			return err
		}
		if _, err := s.opts.SDP.Write(b); err != nil {
			return err
		}
	}
	s.log.Info("rtp stream started",
		zap.Stringer("remote", s.conn.RemoteAddr()),
		zap.String("sampling", pk.Sampling().Name),
		zap.Uint32("ssrc", s.opts.SSRC),
		zap.Int("mtu", pk.MTU()))
	return nil
}

func (s *Sender) WriteFrame(f *vs.Frame, n int) (int, error) {
	if s.pk == nil {
		return 0, fmt.Errorf("rtpout: frame %d before header", n)
	}
	packets, err := s.pk.PacketizeToBytes(f, n)
	if err != nil {
		return 0, err
	}
	if s.opts.Pace {
		s.pace(n)
	}
	var total int
	for _, b := range packets {
		written, err := s.conn.Write(b)
		total += written
		if err != nil {
			return total, fmt.Errorf("rtpout: send: %w", err)
		}
	}
	s.packets.Add(uint64(len(packets)))
	s.bytes.Add(uint64(total))
	return total, nil
}

// pace sleeps until frame n is due.
func (s *Sender) pace(n int) {
	if s.began.IsZero() {
		s.began = time.Now()
		return
	}
	due := s.began.Add(time.Duration(n-s.first) * s.period)
	if d := time.Until(due); d > 0 {
		time.Sleep(d)
	}
}

// Close closes the socket.
func (s *Sender) Close() error {
	s.log.Debug("rtp stream closed", zap.Uint64("packets", s.Packets()), zap.Uint64("bytes", s.Bytes()))
	return s.conn.Close()
}
