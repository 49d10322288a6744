package trifleachievements

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// RemoteConfig configures a RemoteStore. It can be loaded from the
// environment with LoadRemoteConfig.
type RemoteConfig struct {
	BaseURL string            `env:"ACHIEVEMENTS_REMOTE_URL"`
	UserID  string            `env:"ACHIEVEMENTS_USER_ID"`
	Headers map[string]string `env:"ACHIEVEMENTS_HEADERS"`
	Timeout time.Duration     `env:"ACHIEVEMENTS_TIMEOUT" envDefault:"10s"`
}

// LoadRemoteConfig reads RemoteConfig from environment variables.
// ACHIEVEMENTS_HEADERS uses the "Name:value,Other:value" form.
func LoadRemoteConfig() (RemoteConfig, error) {
	var cfg RemoteConfig
	if err := env.Parse(&cfg); err != nil {
		return RemoteConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports a Configuration error for unusable settings.
func (c RemoteConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return NewConfigurationError("remote store requires a base URL")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return NewConfigurationError("remote store requires a user id")
	}
	if c.Timeout < 0 {
		return NewConfigurationError("remote store timeout must not be negative")
	}
	return nil
}

// Config assembles the storage chain SyncCache -> OfflineQueue -> backend.
type Config struct {
	// Remote is used to build a RemoteStore when Backend is nil.
	Remote  RemoteConfig
	Backend AsyncStore

	QueueEnabled bool
	QueueBlobs   BlobStore
	QueueKey     string
	Connectivity Connectivity

	// OnError receives cache-level failures. Writes the queue absorbs never
	// reach it.
	OnError ErrorHandler
	// QueueOnError receives failed background replay passes. When nil they
	// are logged.
	QueueOnError ErrorHandler
	Logger       *slog.Logger

	mu    sync.Mutex
	queue *OfflineQueue
	cache *SyncCache
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Remote:       RemoteConfig{Timeout: DefaultRemoteTimeout},
		QueueEnabled: true,
		QueueKey:     DefaultQueueKey,
	}
}

// Store returns the synchronous store, building the chain on first use.
func (c *Config) Store() (*SyncCache, error) {
	if c == nil {
		return nil, NewConfigurationError("config is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		return c.cache, nil
	}

	backend, err := c.backendLocked()
	if err != nil {
		return nil, err
	}
	store := backend
	if c.QueueEnabled {
		blobs := c.QueueBlobs
		if blobs == nil {
			c.logger().Warn("offline queue has no durable blob store, using memory")
			blobs = NewMemoryBlobStore()
		}
		queue, err := NewOfflineQueue(backend, OfflineQueueOptions{
			Blobs:        blobs,
			Key:          c.QueueKey,
			Connectivity: c.Connectivity,
			OnError:      c.QueueOnError,
			Logger:       c.Logger,
		})
		if err != nil {
			return nil, err
		}
		c.queue = queue
		store = queue
	}

	cache, err := NewSyncCache(store, SyncCacheOptions{
		OnError: c.OnError,
		Logger:  c.Logger,
	})
	if err != nil {
		c.closeQueueLocked()
		return nil, err
	}
	c.cache = cache
	return cache, nil
}

// Queue returns the offline queue built by Store, or nil.
func (c *Config) Queue() *OfflineQueue {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

// Shutdown drains pending cache writes, then closes the chain.
func (c *Config) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	cache := c.cache
	c.cache = nil
	c.mu.Unlock()

	var drainErr error
	if cache != nil {
		drainErr = cache.Drain(ctx)
		_ = cache.Close()
	}

	c.mu.Lock()
	c.closeQueueLocked()
	c.mu.Unlock()
	return drainErr
}

func (c *Config) backendLocked() (AsyncStore, error) {
	if c.Backend != nil {
		return c.Backend, nil
	}
	return NewRemoteStore(c.Remote)
}

func (c *Config) closeQueueLocked() {
	if c.queue == nil {
		return
	}
	_ = c.queue.Close()
	c.queue = nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
