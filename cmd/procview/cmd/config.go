package cmd

import (
	"time"

	"emperror.dev/errors"
	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/voluzi/procview/pkg/config"
	"github.com/voluzi/procview/pkg/environ"
)

var (
	configFile        string
	interval          time.Duration
	history           int
	queueSize         int
	maxStalled        int
	idleTimeout       time.Duration
	streamIdleTimeout time.Duration
	hideUnnamed       bool
	exclude           []string
	minRSS            string
)

func registerServerFlags(cmd *cobra.Command) {
	defaults := config.Default()

	cmd.Flags().StringVar(&configFile, "config",
		environ.GetString("CONFIG", ""),
		"Config file (.toml, .yaml or .yml). Reloaded when it changes.",
	)
	cmd.Flags().DurationVar(&interval, "interval",
		environ.GetDuration("INTERVAL", defaults.Interval),
		"Time between two samples",
	)
	cmd.Flags().IntVar(&history, "history",
		environ.GetInt("HISTORY", defaults.History),
		"Number of snapshots kept in memory",
	)
	cmd.Flags().IntVar(&queueSize, "queue-size",
		environ.GetInt("QUEUE_SIZE", defaults.QueueSize),
		"Snapshots buffered per streaming client before the oldest is dropped",
	)
	cmd.Flags().IntVar(&maxStalled, "max-stalled",
		environ.GetInt("MAX_STALLED", defaults.MaxStalled),
		"Consecutive overflows after which a streaming client is disconnected (0 never)",
	)
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout",
		environ.GetDuration("IDLE_TIMEOUT", defaults.IdleTimeout),
		"Suspend sampling after this long without API activity (0 never)",
	)
	cmd.Flags().DurationVar(&streamIdleTimeout, "stream-idle-timeout",
		environ.GetDuration("STREAM_IDLE_TIMEOUT", defaults.StreamIdleTimeout),
		"Close streams that received nothing for this long",
	)
	cmd.Flags().BoolVar(&hideUnnamed, "hide-unnamed",
		environ.GetBool("HIDE_UNNAMED", defaults.Filter.HideUnnamed),
		"Hide processes without a name",
	)
	cmd.Flags().StringSliceVar(&exclude, "exclude",
		environ.GetStringSlice("EXCLUDE", defaults.Filter.Exclude),
		"Glob patterns of process names to hide",
	)
	cmd.Flags().StringVar(&minRSS, "min-rss",
		environ.GetString("MIN_RSS", ""),
		"Hide processes using less resident memory than this (e.g. 10MB)",
	)
}

// resolveConfig layers the config file, the environment, the flags and the
// positional address on top of the defaults, in that order.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	if err := applyOverrides(cmd, args, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// applyOverrides copies every setting given through a flag or an environment
// variable into cfg. Flag variables already hold the environment value when
// the flag itself was not given.
func applyOverrides(cmd *cobra.Command, args []string, cfg *config.Config) error {
	changed := func(flag string) bool {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			return true
		}
		f := cmd.PersistentFlags().Lookup(flag)
		return f != nil && f.Changed
	}
	set := func(flag, env string) bool {
		return changed(flag) || environ.IsSet(env)
	}

	// A malformed variable would otherwise silently apply the flag default.
	for _, v := range []struct {
		flag, env string
		check     func(string) error
	}{
		{"interval", "INTERVAL", environ.CheckDuration},
		{"history", "HISTORY", environ.CheckInt},
		{"queue-size", "QUEUE_SIZE", environ.CheckInt},
		{"max-stalled", "MAX_STALLED", environ.CheckInt},
		{"idle-timeout", "IDLE_TIMEOUT", environ.CheckDuration},
		{"stream-idle-timeout", "STREAM_IDLE_TIMEOUT", environ.CheckDuration},
		{"hide-unnamed", "HIDE_UNNAMED", environ.CheckBool},
	} {
		if changed(v.flag) {
			continue
		}
		if err := v.check(v.env); err != nil {
			return err
		}
	}

	if len(args) > 0 {
		cfg.Address = args[0]
	} else if environ.IsSet("ADDRESS") {
		cfg.Address = environ.GetString("ADDRESS", cfg.Address)
	}
	if set("interval", "INTERVAL") {
		cfg.Interval = interval
	}
	if set("history", "HISTORY") {
		cfg.History = history
	}
	if set("queue-size", "QUEUE_SIZE") {
		cfg.QueueSize = queueSize
	}
	if set("max-stalled", "MAX_STALLED") {
		cfg.MaxStalled = maxStalled
	}
	if set("idle-timeout", "IDLE_TIMEOUT") {
		cfg.IdleTimeout = idleTimeout
	}
	if set("stream-idle-timeout", "STREAM_IDLE_TIMEOUT") {
		cfg.StreamIdleTimeout = streamIdleTimeout
	}
	if set("log-level", "LOG_LEVEL") {
		cfg.LogLevel = logLevel
	}
	if set("log-format", "LOG_FORMAT") {
		cfg.LogFormat = logFormat
	}
	if set("hide-unnamed", "HIDE_UNNAMED") {
		cfg.Filter.HideUnnamed = hideUnnamed
	}
	if set("exclude", "EXCLUDE") {
		cfg.Filter.Exclude = exclude
	}
	if set("min-rss", "MIN_RSS") && minRSS != "" {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(minRSS)); err != nil {
			return errors.WrapIff(err, "invalid min-rss %q", minRSS)
		}
		cfg.Filter.MinRSS = size
	}
	return nil
}
