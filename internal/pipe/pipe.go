// Package pipe drives a node and writes its frames, in order, to one or
// more frame writers while keeping a bounded number of requests in flight.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	vs "github.com/thesyncim/vapoursynth"
)

// ErrUnsupportedFormat is returned by writers that cannot represent a
// node's output.
var ErrUnsupportedFormat = errors.New("pipe: unsupported format")

// Header describes the stream handed to a FrameWriter before any frame.
// Exactly one of Video and Audio is set.
type Header struct {
	Video *vs.VideoInfo
	Audio *vs.AudioInfo
	// Start and End are the first and last frame numbers that will be
	// written, inclusive.
	Start, End int
}

// Frames returns the number of frames that will be written.
func (h Header) Frames() int { return h.End - h.Start + 1 }

// Samples returns the number of audio samples covered by the range.
func (h Header) Samples() int64 {
	if h.Audio == nil {
		return 0
	}
	var total int64
	for n := h.Start; n <= h.End; n++ {
		total += int64(h.Audio.FrameSamples(n))
	}
	return total
}

// FrameWriter receives frames in ascending order. WriteFrame must not
// keep f after it returns.
type FrameWriter interface {
	WriteHeader(h Header) error
	WriteFrame(f *vs.Frame, n int) (int, error)
}

// Observer is notified as frames leave the pipeline.
type Observer interface {
	FrameWritten(n, bytes int, latency time.Duration)
	FrameFailed(n int, err error)
}

// Options configures Run.
type Options struct {
	// Start is the first frame. End is the last frame, inclusive; a
	// negative End means the node's last frame.
	Start, End int
	// Requests bounds frames requested but not yet written. Zero uses
	// the number of CPUs.
	Requests int
	Observer Observer
	Logger   *zap.Logger
}

// Stats summarizes a finished run.
type Stats struct {
	Frames  int
	Bytes   int64
	Elapsed time.Duration
}

// FPS returns the average output rate.
func (s Stats) FPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Elapsed.Seconds()
}

// Range resolves start and end against a node with frames frames.
func Range(start, end, frames int) (int, int, error) {
	if end < 0 {
		end = frames - 1
	}
	if start < 0 || start >= frames {
		return 0, 0, fmt.Errorf("start frame %d out of range [0, %d)", start, frames)
	}
	if end >= frames {
		return 0, 0, fmt.Errorf("end frame %d out of range [0, %d)", end, frames)
	}
	if end < start {
		return 0, 0, fmt.Errorf("end frame %d before start frame %d", end, start)
	}
	return start, end, nil
}

// NewHeader describes node for the given frame range.
func NewHeader(node *vs.Node, start, end int) (Header, error) {
	h := Header{Start: start, End: end}
	switch node.Type() {
	case vs.MediaTypeVideo:
		vi, err := node.VideoInfo()
		if err != nil {
			return h, err
		}
		h.Video = &vi
	case vs.MediaTypeAudio:
		ai, err := node.AudioInfo()
		if err != nil {
			return h, err
		}
		h.Audio = &ai
	default:
		return h, vs.ErrInvalidHandle
	}
	return h, nil
}

type result struct {
	n     int
	frame *vs.Frame
	err   error
	start time.Time
}

// Run requests frames [Start, End] from node and writes them to w in
// order. At most Requests frames are requested or waiting to be written
// at any time. The first failure cancels outstanding requests.
func Run(ctx context.Context, node *vs.Node, w FrameWriter, opts Options) (Stats, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	start, end, err := Range(opts.Start, opts.End, node.NumFrames())
	if err != nil {
		return Stats{}, err
	}
	h, err := NewHeader(node, start, end)
	if err != nil {
		return Stats{}, err
	}
	if err := w.WriteHeader(h); err != nil {
		return Stats{}, fmt.Errorf("write header: %w", err)
	}
	reqs := opts.Requests
	if reqs <= 0 {
		reqs = runtime.NumCPU()
	}

	var stats Stats
	began := time.Now()
	tokens := make(chan struct{}, reqs)
	pending := make(chan chan result, reqs)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pending)
		for n := start; n <= end; n++ {
			select {
			case tokens <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			slot := make(chan result, 1)
			pending <- slot
			go func(n int) {
				r := result{n: n, start: time.Now()}
				r.frame, r.err = node.GetFrameContext(gctx, n)
				slot <- r
			}(n)
		}
		return nil
	})

	g.Go(func() error {
		for slot := range pending {
			r := <-slot
			if r.err != nil {
				if opts.Observer != nil && !errors.Is(r.err, context.Canceled) {
					opts.Observer.FrameFailed(r.n, r.err)
				}
				return fmt.Errorf("frame %d: %w", r.n, r.err)
			}
			written, err := w.WriteFrame(r.frame, r.n)
			r.frame.Release()
			if err != nil {
				if opts.Observer != nil {
					opts.Observer.FrameFailed(r.n, err)
				}
				return fmt.Errorf("write frame %d: %w", r.n, err)
			}
			<-tokens
			stats.Frames++
			stats.Bytes += int64(written)
			if opts.Observer != nil {
				opts.Observer.FrameWritten(r.n, written, time.Since(r.start))
			}
		}
		return nil
	})

	err = g.Wait()
	// Slots the writer never reached still owe a frame or an error.
	for slot := range pending {
		if r := <-slot; r.frame != nil {
			r.frame.Release()
		}
	}
	stats.Elapsed = time.Since(began)
	if err != nil {
		log.Debug("pipe stopped", zap.Int("frames", stats.Frames), zap.Error(err))
		return stats, err
	}
	log.Debug("pipe finished",
		zap.Int("frames", stats.Frames),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

type tee []FrameWriter

// Tee returns a writer that forwards every call to each of ws in turn
// and reports the bytes written by the first.
func Tee(ws ...FrameWriter) FrameWriter {
	if len(ws) == 1 {
		return ws[0]
	}
	return tee(ws)
}

func (t tee) WriteHeader(h Header) error {
	for _, w := range t {
		if err := w.WriteHeader(h); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) WriteFrame(f *vs.Frame, n int) (int, error) {
	var first int
	for i, w := range t {
		written, err := w.WriteFrame(f, n)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = written
		}
	}
	return first, nil
}
