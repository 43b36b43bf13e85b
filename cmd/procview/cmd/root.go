package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/procview/pkg/config"
	"github.com/voluzi/procview/pkg/environ"
	"github.com/voluzi/procview/pkg/events"
	"github.com/voluzi/procview/pkg/publisher"
	"github.com/voluzi/procview/pkg/sampler"
	"github.com/voluzi/procview/pkg/server"
	"github.com/voluzi/procview/pkg/snapstore"
	"github.com/voluzi/procview/pkg/sysinfo"
)

var logLevel string
var logFormat string

var rootCmd = &cobra.Command{
	Use:   "procview [address]",
	Short: "Serves live process and system metrics over HTTP",
	Long: `procview samples system and process metrics at a fixed interval and serves
them to browsers and API clients, either as a web page, JSON snapshots, a
long-poll endpoint, a WebSocket stream or Prometheus metrics.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel, logFormat)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd, args)
		if err != nil {
			return err
		}
		if err := setupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
			return err
		}
		return runServer(cmd, args, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel,
		"log-level",
		environ.GetString("LOG_LEVEL", config.DefaultLogLevel),
		"Log level. One of trace, debug, info, warn, error, fatal, panic.",
	)
	rootCmd.PersistentFlags().StringVar(&logFormat,
		"log-format",
		environ.GetString("LOG_FORMAT", config.DefaultLogFormat),
		"Log format. One of text, json.",
	)
	registerServerFlags(rootCmd)
	rootCmd.AddCommand(topCmd)
}

func setupLogging(level, format string) error {
	logLvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(logLvl)

	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

func runServer(cmd *cobra.Command, args []string, cfg *config.Config) error {
	recorder := events.NewRecorder(events.DefaultRecentEvents)
	pub := publisher.New(
		publisher.WithQueueSize(cfg.QueueSize),
		publisher.WithMaxStalled(cfg.MaxStalled),
		publisher.WithRecorder(recorder),
	)
	store := snapstore.New(cfg.History,
		snapstore.WithNotifier(pub),
		snapstore.WithRecorder(recorder),
	)
	smp := sampler.New(sysinfo.NewGopsutilProvider(sysinfo.DefaultProcessTTL), store,
		sampler.WithInterval(cfg.Interval),
		sampler.WithIdleTimeout(cfg.IdleTimeout),
		sampler.WithFilter(cfg.Filter),
		sampler.WithRecorder(recorder),
	)
	srv := server.New(store, pub, smp, recorder,
		server.WithAddress(cfg.Address),
		server.WithStreamIdleTimeout(cfg.StreamIdleTimeout),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if configFile != "" {
		watcher, err := config.NewWatcher(configFile, cfg, func(r config.Reloadable) {
			applied := *cfg
			applied.Filter = r.Filter
			applied.LogLevel = r.LogLevel
			// Flags and environment keep winning over the file.
			if err := applyOverrides(cmd, args, &applied); err != nil {
				log.WithError(err).Error("failed to apply overrides to reloaded config")
				return
			}
			smp.SetFilter(applied.Filter)
			if err := setupLogging(applied.LogLevel, cfg.LogFormat); err != nil {
				log.WithError(err).Error("failed to apply reloaded log level")
			}
		})
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				log.Errorf("error watching config file: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Infof("received signal: %v", sig)
			if err := srv.Stop(); err != nil {
				log.Errorf("failed to stop server: %v", err)
			}
		case <-ctx.Done():
		}
	}()

	log.WithFields(log.Fields{
		"address":  cfg.Address,
		"interval": cfg.Interval,
		"history":  cfg.History,
	}).Info("starting procview")
	return srv.Start()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
