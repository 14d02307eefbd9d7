// Package config loads the vspipe configuration: a YAML file with
// command line overrides applied on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the complete vspipe configuration.
type Config struct {
	Library LibraryConfig `mapstructure:"library"`
	Log     LogConfig     `mapstructure:"log"`
	Core    CoreConfig    `mapstructure:"core"`
	Pipe    PipeConfig    `mapstructure:"pipe"`
	RTP     RTPConfig     `mapstructure:"rtp"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LibraryConfig locates the engine libraries. Empty paths search the
// usual locations.
type LibraryConfig struct {
	Path       string `mapstructure:"path"`
	ScriptPath string `mapstructure:"script_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type CoreConfig struct {
	Threads    int      `mapstructure:"threads"`
	MaxCacheMB int64    `mapstructure:"max_cache_mb"`
	Plugins    []string `mapstructure:"plugins"`
}

type PipeConfig struct {
	Start    int `mapstructure:"start"`
	End      int `mapstructure:"end"`
	Requests int `mapstructure:"requests"`
	// Container is y4m, wav, raw or none.
	Container   string   `mapstructure:"container"`
	OutputIndex int      `mapstructure:"output_index"`
	Props       []string `mapstructure:"props"`
	PropsFile   string   `mapstructure:"props_file"`
}

type RTPConfig struct {
	Address     string `mapstructure:"address"`
	MTU         int    `mapstructure:"mtu"`
	PayloadType uint8  `mapstructure:"payload_type"`
	Pace        bool   `mapstructure:"pace"`
	SDPFile     string `mapstructure:"sdp_file"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Containers accepted by PipeConfig.Container.
var Containers = []string{"y4m", "wav", "raw", "none"}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log:  LogConfig{Level: "info", Format: "console"},
		Pipe: PipeConfig{End: -1, Container: "raw"},
		RTP:  RTPConfig{MTU: 1200, PayloadType: 96},
	}
}

// Load reads the YAML file at path, if any, applies overrides and decodes
// the result over Default. Override keys are dotted paths such as
// "pipe.requests".
func Load(path string, overrides map[string]any) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}
	for key, v := range overrides {
		if err := Set(raw, key, v); err != nil {
			return Config{}, err
		}
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Set stores v under the dotted key in raw, creating intermediate maps.
func Set(raw map[string]any, key string, v any) error {
	parts := strings.Split(key, ".")
	m := raw
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p]
		if !ok {
			child := map[string]any{}
			m[p] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config key %s: %s is not a section", key, p)
		}
		m = child
	}
	m[parts[len(parts)-1]] = v
	return nil
}

// Validate checks values that decoding cannot.
func (c Config) Validate() error {
	var errs []error
	if !contains(Containers, c.Pipe.Container) {
		errs = append(errs, fmt.Errorf("pipe.container %q: want one of %s", c.Pipe.Container, strings.Join(Containers, ", ")))
	}
	if c.Pipe.Start < 0 {
		errs = append(errs, fmt.Errorf("pipe.start %d is negative", c.Pipe.Start))
	}
	if c.Pipe.Requests < 0 {
		errs = append(errs, fmt.Errorf("pipe.requests %d is negative", c.Pipe.Requests))
	}
	if c.Core.Threads < 0 {
		errs = append(errs, fmt.Errorf("core.threads %d is negative", c.Core.Threads))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q: want console or json", c.Log.Format))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Logger builds a zap logger writing to stderr, so that stdout stays free
// for frame data.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if l.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
