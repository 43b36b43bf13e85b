package config

import (
	"context"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/hashstructure/v2"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/sysinfo"
)

// Reloadable is the part of the configuration that can change while running.
type Reloadable struct {
	Filter   sysinfo.Filter
	LogLevel string
}

func (c *Config) Reloadable() Reloadable {
	return Reloadable{Filter: c.Filter, LogLevel: c.LogLevel}
}

// Hash returns a stable hash of the reloadable settings. Exclude patterns are
// hashed as a set.
func (r Reloadable) Hash() (uint64, error) {
	return hashstructure.Hash(r, hashstructure.FormatV2, &hashstructure.HashOptions{
		SlicesAsSets: true,
		ZeroNil:      true,
	})
}

// Watcher reloads a config file when it changes on disk and reports changes to
// the reloadable settings.
type Watcher struct {
	path     string
	lastHash uint64
	onChange func(Reloadable)
}

func NewWatcher(path string, current *Config, onChange func(Reloadable)) (*Watcher, error) {
	h, err := current.Reloadable().Hash()
	if err != nil {
		return nil, errors.WrapIf(err, "hashing config")
	}
	return &Watcher{
		path:     filepath.Clean(path),
		lastHash: h,
		onChange: onChange,
	}, nil
}

// Watch blocks until ctx is done or the watcher fails. The parent directory is
// watched so that editors replacing the file atomically are picked up.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	log.WithField("file", w.path).Info("watching config file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("could not retrieve event")
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("could not retrieve error")
			}
			return err
		}
	}
}

// Reload re-reads the file and calls onChange when the reloadable settings
// differ from the last applied ones. It reports whether they did.
func (w *Watcher) Reload() bool {
	cfg, err := Load(w.path)
	if err != nil {
		log.WithError(err).WithField("file", w.path).Error("failed to reload config, keeping previous settings")
		return false
	}
	r := cfg.Reloadable()
	h, err := r.Hash()
	if err != nil {
		log.WithError(err).Error("failed to hash reloaded config")
		return false
	}
	if h == w.lastHash {
		log.WithField("file", w.path).Debug("config file changed but reloadable settings did not")
		return false
	}
	w.lastHash = h
	log.WithField("file", w.path).Info("reloading config file")
	w.onChange(r)
	return true
}
