package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/mclink/internal/config"
	log "github.com/sirupsen/logrus"
)

// defaultPollInterval controls how often the config file is re-read.
const defaultPollInterval = 2 * time.Second

// ConfigWatcher polls the config file and hands changed settings to reload.
type ConfigWatcher struct {
	configPath   string
	reload       func(config.ServerConfig)
	pollInterval time.Duration

	mu      sync.Mutex
	cfgHash string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a ConfigWatcher; a non-positive interval uses the default.
func New(configPath string, interval time.Duration, reload func(config.ServerConfig)) *ConfigWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &ConfigWatcher{
		configPath:   strings.TrimSpace(configPath),
		reload:       reload,
		pollInterval: interval,
	}
}

// Start records the current file hash and launches the polling loop.
func (w *ConfigWatcher) Start(ctx context.Context) {
	if w == nil || w.configPath == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	w.cfgHash = hashFile(w.configPath)
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
	log.Infof("config watcher started (poll_interval=%s)", w.pollInterval)
}

// Stop cancels the polling loop and waits for it to exit.
func (w *ConfigWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *ConfigWatcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollConfig()
		}
	}
}

// pollConfig reloads the config file when its contents change.
func (w *ConfigWatcher) pollConfig() {
	hash := hashFile(w.configPath)
	if hash == "" {
		return
	}

	w.mu.Lock()
	prevHash := w.cfgHash
	w.mu.Unlock()
	if prevHash == hash {
		return
	}

	cfg, errLoad := config.LoadServerConfig(w.configPath)
	if errLoad != nil {
		log.WithError(errLoad).Warn("config watcher: load config failed")
		return
	}

	w.mu.Lock()
	w.cfgHash = hash
	w.mu.Unlock()

	log.Info("config watcher: config file changed, applying runtime settings")
	if w.reload != nil {
		w.reload(cfg)
	}
}

// hashFile returns the SHA-256 hex digest of the file, or "" when unreadable or empty.
func hashFile(path string) string {
	data, errRead := os.ReadFile(path)
	if errRead != nil || len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
