package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/voluzi/procview/pkg/publisher"
	"github.com/voluzi/procview/pkg/sampler"
	"github.com/voluzi/procview/pkg/server"
	"github.com/voluzi/procview/pkg/snapstore"
	"github.com/voluzi/procview/pkg/sysinfo"
)

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Config is the full procview configuration as read from a file.
type Config struct {
	Address           string         `toml:"address" yaml:"address"`
	Interval          time.Duration  `toml:"interval" yaml:"interval"`
	History           int            `toml:"history" yaml:"history"`
	QueueSize         int            `toml:"queue_size" yaml:"queue_size"`
	MaxStalled        int            `toml:"max_stalled" yaml:"max_stalled"`
	IdleTimeout       time.Duration  `toml:"idle_timeout" yaml:"idle_timeout"`
	StreamIdleTimeout time.Duration  `toml:"stream_idle_timeout" yaml:"stream_idle_timeout"`
	LogLevel          string         `toml:"log_level" yaml:"log_level"`
	LogFormat         string         `toml:"log_format" yaml:"log_format"`
	Filter            sysinfo.Filter `toml:"filter" yaml:"filter"`
}

func Default() *Config {
	return &Config{
		Address:           server.DefaultAddress,
		Interval:          sampler.DefaultInterval,
		History:           snapstore.DefaultCapacity,
		QueueSize:         publisher.DefaultQueueSize,
		MaxStalled:        publisher.DefaultMaxStalled,
		IdleTimeout:       sampler.DefaultIdleTimeout,
		StreamIdleTimeout: server.DefaultStreamIdleTimeout,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		Filter:            sysinfo.DefaultFilter(),
	}
}

// Load reads path on top of the defaults. The format is picked from the file
// extension: .toml, or .yaml/.yml.
func Load(path string) (*Config, error) {
	cfg := Default()
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIf(err, "reading config file")
	}
	if err := Decode(cfg, filepath.Ext(path), body); err != nil {
		return nil, errors.WrapIff(err, "decoding %s", path)
	}
	return cfg, cfg.Validate()
}

// Decode unmarshals body into cfg according to ext.
func Decode(cfg *Config, ext string, body []byte) error {
	switch strings.ToLower(ext) {
	case ".toml":
		_, err := toml.NewDecoder(bytes.NewReader(body)).Decode(cfg)
		return err
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(body))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return errors.Errorf("unsupported config format %q", ext)
	}
}

// Validate checks values that would make the pipeline misbehave.
func (c *Config) Validate() error {
	switch {
	case c.Address == "":
		return errors.New("address must not be empty")
	case c.Interval <= 0:
		return errors.New("interval must be positive")
	case c.History <= 0:
		return errors.New("history must be positive")
	case c.QueueSize <= 0:
		return errors.New("queue_size must be positive")
	case c.MaxStalled < 0:
		return errors.New("max_stalled must not be negative")
	case c.IdleTimeout < 0:
		return errors.New("idle_timeout must not be negative")
	case c.StreamIdleTimeout <= 0:
		return errors.New("stream_idle_timeout must be positive")
	case c.StreamIdleTimeout <= c.Interval:
		// Streams would be closed before the next snapshot could reach them.
		return errors.Errorf("stream_idle_timeout (%s) must be longer than interval (%s)", c.StreamIdleTimeout, c.Interval)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return errors.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
