package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/config"
	"github.com/thesyncim/vapoursynth/internal/pipe"
	"github.com/thesyncim/vapoursynth/internal/rtpout"
)

// discard is the output name that requests frames without writing them.
const discard = "--"

// outputs are the writers of one run and the resources behind them.
type outputs struct {
	writers []pipe.FrameWriter
	closers []io.Closer
	log     *zap.Logger
}

// openOutputs builds the writers selected by cfg. dest is a file name,
// "-" for stdout or discard.
func openOutputs(cfg config.Config, dest string, stdout io.Writer, log *zap.Logger) (_ *outputs, err error) {
	o := &outputs{log: log}
	defer func() {
		if err != nil {
			o.close()
		}
	}()

	var w io.Writer
	switch dest {
	case discard:
		w = io.Discard
	case "-":
		w = stdout
	default:
		f, err := os.Create(dest)
		if err != nil {
			return nil, err
		}
		o.closers = append(o.closers, f)
		w = f
	}
	o.writers = append(o.writers, containerWriter(cfg.Pipe.Container, w))

	if cfg.Pipe.PropsFile != "" {
		f, err := os.Create(cfg.Pipe.PropsFile)
		if err != nil {
			return nil, err
		}
		o.closers = append(o.closers, f)
		o.writers = append(o.writers, pipe.NewPropsWriter(f, cfg.Pipe.Props...))
	}

	if cfg.RTP.Address != "" {
		opts := rtpout.Options{
			MTU:         cfg.RTP.MTU,
			PayloadType: cfg.RTP.PayloadType,
			Pace:        cfg.RTP.Pace,
			Logger:      log,
		}
		if cfg.RTP.SDPFile != "" {
			f, err := os.Create(cfg.RTP.SDPFile)
			if err != nil {
				return nil, err
			}
			o.closers = append(o.closers, f)
			opts.SDP = f
		}
		s, err := rtpout.Dial(cfg.RTP.Address, opts)
		if err != nil {
			return nil, err
		}
		o.closers = append(o.closers, s)
		o.writers = append(o.writers, s)
	}
	return o, nil
}

func containerWriter(container string, w io.Writer) pipe.FrameWriter {
	switch container {
	case "y4m":
		return pipe.NewY4MWriter(w)
	case "wav":
		return pipe.NewWAVWriter(w)
	case "none":
		return pipe.NewRawWriter(io.Discard)
	default:
		return pipe.NewRawWriter(w)
	}
}

func (o *outputs) writer() pipe.FrameWriter { return pipe.Tee(o.writers...) }

func (o *outputs) close() {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		errs = append(errs, o.closers[i].Close())
	}
	o.closers = nil
	if err := errors.Join(errs...); err != nil {
		o.log.Warn("closing outputs", zap.Error(fmt.Errorf("vspipe: %w", err)))
	}
}
