package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nexuscore/agentcore/internal/retrypolicy"
)

// Load reads path as YAML into a Config seeded with Default(), then
// overlays AGENTCORE_* environment variables. A missing file is not an
// error: Default() plus env overrides is a valid configuration for a
// first run.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RetryPolicyConfig converts the config's retry section into an
// internal/retrypolicy.Config, leaving ShouldRetry/FallbackHandler/
// AuthType for the caller to attach since those are wiring concerns,
// not configuration data.
func (c *Config) RetryPolicyConfig() retrypolicy.Config {
	rc := retrypolicy.DefaultConfig()
	if c.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.InitialDelay > 0 {
		rc.InitialDelay = c.Retry.InitialDelay
	}
	if c.Retry.MaxDelay > 0 {
		rc.MaxDelay = c.Retry.MaxDelay
	}
	return rc
}

// Watcher reloads the safe parameter subset (approval mode, retry
// tuning) from path whenever the file changes on disk, applying it to
// a live Config with ApplySafeSubset. Grounded on the teacher's
// internal/skills.Manager watch loop: a debounced fsnotify watcher
// feeding a single-purpose refresh callback.
type Watcher struct {
	path     string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	current  *Config
	debounce time.Duration
	onChange func(*Config)
}

// NewWatcher starts watching path's directory (fsnotify watches
// directories more reliably than bind-mounted single files across
// editors that replace-on-save) and applies reloads to current via
// ApplySafeSubset. onChange, if non-nil, is invoked after each applied
// reload with the new effective config.
func NewWatcher(path string, current *Config, logger *slog.Logger, onChange func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:     path,
		logger:   logger,
		watcher:  fw,
		current:  current,
		debounce: 250 * time.Millisecond,
		onChange: onChange,
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous values", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current.ApplySafeSubset(next)
	snapshot := *w.current
	w.mu.Unlock()

	w.logger.Info("config reloaded", "approval_mode", snapshot.Approval.Mode, "retry_max_attempts", snapshot.Retry.MaxAttempts)
	if w.onChange != nil {
		w.onChange(&snapshot)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
