package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	vs "github.com/thesyncim/vapoursynth"
	"github.com/thesyncim/vapoursynth/internal/config"
	"github.com/thesyncim/vapoursynth/internal/pipe"
	"github.com/thesyncim/vapoursynth/metrics"
)

// openAPI loads the engine. Tests replace it with an in-process engine.
var openAPI = func(cfg config.Config, log *zap.Logger) (*vs.API, error) {
	return vs.Load(vs.Options{
		LibraryPath:       cfg.Library.Path,
		ScriptLibraryPath: cfg.Library.ScriptPath,
		MinVersion:        vs.Version{Major: 4},
		Logger:            log,
	})
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"start":          "pipe.start",
	"end":            "pipe.end",
	"requests":       "pipe.requests",
	"container":      "pipe.container",
	"outputindex":    "pipe.output_index",
	"props":          "pipe.props",
	"props-file":     "pipe.props_file",
	"threads":        "core.threads",
	"max-cache":      "core.max_cache_mb",
	"plugin":         "core.plugins",
	"rtp":            "rtp.address",
	"rtp-mtu":        "rtp.mtu",
	"rtp-pace":       "rtp.pace",
	"sdp":            "rtp.sdp_file",
	"metrics":        "metrics.listen",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"library":        "library.path",
	"script-library": "library.script_path",
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vspipe [flags] <script> <output>",
		Short: "Render a VapourSynth script",
		Long: `vspipe evaluates a script and writes the frames of one of its outputs.

The output is a file name, "-" for stdout or "--" to discard frames, which
is useful with --rtp, --props-file or for benchmarking.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPipe,
	}

	f := cmd.Flags()
	f.IntP("start", "s", 0, "first frame to output")
	f.IntP("end", "e", -1, "last frame to output, -1 for the last frame of the clip")
	f.IntP("requests", "r", 0, "frames requested concurrently, 0 for the number of CPUs")
	f.StringP("container", "c", "raw", "output container: "+strings.Join(config.Containers, ", "))
	f.IntP("outputindex", "o", 0, "script output to render")
	f.StringArrayP("arg", "a", nil, "set script variable key=value (repeatable)")
	f.BoolP("info", "i", false, "print clip information instead of rendering")
	f.StringSlice("props", nil, "frame properties written to --props-file (default all)")
	f.String("props-file", "", "write frame properties as JSON lines to this file")
	f.Int("threads", 0, "core worker threads, 0 for the engine default")
	f.Int64("max-cache", 0, "core frame cache size in MiB, 0 for the engine default")
	f.StringSlice("plugin", nil, "plugin library to load before evaluating the script")
	f.String("rtp", "", "also send video as RFC 4175 RTP to host:port")
	f.Int("rtp-mtu", 1200, "RTP packet size limit")
	f.Bool("rtp-pace", false, "send RTP at the clip frame rate")
	f.String("sdp", "", "write the RTP session description to this file")
	f.String("metrics", "", "serve Prometheus metrics on this address")
	f.String("library", "", "path of the VapourSynth library")
	f.String("script-library", "", "path of the VSScript library")

	pf := cmd.PersistentFlags()
	pf.String("config", "", "YAML configuration file")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log format: console or json")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the command line and exits on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads --config and applies every flag the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	overrides := map[string]any{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			overrides[key] = sv.GetSlice()
			return
		}
		overrides[key] = f.Value.String()
	})
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, overrides)
}

// session is one evaluated script.
type session struct {
	cfg  config.Config
	log  *zap.Logger
	api  *vs.API
	env  *vs.Environment
	logs *vs.LogHandler
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}
	vs.SetLogger(log)
	api, err := openAPI(cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, api: api}, nil
}

// eval creates the script environment and evaluates path with vars.
func (s *session) eval(path string, vars []string) error {
	env, err := s.api.NewEnvironment()
	if err != nil {
		return err
	}
	s.env = env
	core := env.Core()
	if s.logs, err = core.ForwardLogs(s.log); err != nil {
		return err
	}
	if n := s.cfg.Core.Threads; n > 0 {
		core.SetThreadCount(n)
	}
	if mb := s.cfg.Core.MaxCacheMB; mb > 0 {
		core.SetMaxCacheSize(mb << 20)
	}
	for _, p := range s.cfg.Core.Plugins {
		if err := core.LoadPlugin(p); err != nil {
			return err
		}
	}
	if len(vars) > 0 {
		m := core.NewMap()
		defer m.Release()
		for _, kv := range vars {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("script argument %q: want key=value", kv)
			}
			if err := m.AppendString(k, v); err != nil {
				return err
			}
		}
		if err := env.SetVariables(m.Ref()); err != nil {
			return err
		}
	}
	if err := env.SetWorkingDir(true); err != nil {
		return err
	}
	s.log.Debug("evaluating script", zap.String("path", path))
	return env.EvalFile(path)
}

func (s *session) close() {
	if s.logs != nil {
		s.logs.Remove()
	}
	if s.env != nil {
		s.env.Close()
	}
	_ = s.log.Sync()
}

func runPipe(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	vars, _ := cmd.Flags().GetStringArray("arg")
	if err := s.eval(args[0], vars); err != nil {
		return err
	}
	node, err := s.env.Output(s.cfg.Pipe.OutputIndex)
	if err != nil {
		return err
	}
	defer node.Release()

	stdout := cmd.OutOrStdout()
	if info, _ := cmd.Flags().GetBool("info"); info {
		return pipe.WriteInfo(stdout, node)
	}
	dest, err := outputName(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	outs, err := openOutputs(s.cfg, dest, stdout, s.log)
	if err != nil {
		return err
	}
	defer outs.close()

	opts := pipe.Options{
		Start:    s.cfg.Pipe.Start,
		End:      s.cfg.Pipe.End,
		Requests: s.cfg.Pipe.Requests,
		Logger:   s.log,
	}
	if s.cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		coll := metrics.NewCoreCollector(s.env.Core(), s.log)
		defer coll.Close()
		if err := coll.Track("output", node); err != nil {
			return err
		}
		reg.MustRegister(coll)
		opts.Observer = metrics.NewPipeMetrics(reg)
		go func() {
			if err := metrics.Serve(ctx, s.cfg.Metrics.Listen, reg, s.log); err != nil {
				s.log.Error("metrics server", zap.Error(err))
			}
		}()
	}

	stats, err := pipe.Run(ctx, node, outs.writer(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Output %d frames in %.2f seconds (%.2f fps)\n",
		stats.Frames, stats.Elapsed.Seconds(), stats.FPS())
	return nil
}

// outputName returns the output argument. A trailing "--" ends flag
// parsing, so it never reaches args and is recognized by its position.
func outputName(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 2 {
		return args[1], nil
	}
	if cmd.ArgsLenAtDash() == len(args) {
		return discard, nil
	}
	return "", errors.New("no output given; use - for stdout or -- to discard frames")
}
