package trifleachievements

import "context"

// Metrics maps a metric name to its ordered values. The last entry is the
// current value.
type Metrics map[string][]any

// AsyncStore is the asynchronous persistence contract implemented by remote
// and durable local backends.
type AsyncStore interface {
	GetMetrics(ctx context.Context) (Metrics, error)
	SetMetrics(ctx context.Context, metrics Metrics) error
	GetUnlockedAchievements(ctx context.Context) ([]string, error)
	SetUnlockedAchievements(ctx context.Context, ids []string) error
	Clear(ctx context.Context) error
	Description() string
}

// SyncStore is the synchronous contract exposed to the UI layer. Calls return
// immediately and never fail from the caller's point of view.
type SyncStore interface {
	GetMetrics() Metrics
	SetMetrics(metrics Metrics)
	GetUnlockedAchievements() []string
	SetUnlockedAchievements(ids []string)
	Clear()
	Description() string
}

// BlobStore is a small string-keyed durable storage surface.
type BlobStore interface {
	Load(key string) (string, bool, error)
	Save(key string, data string) error
	Delete(key string) error
	Description() string
}

// ErrorHandler receives classified errors from background work.
type ErrorHandler func(err *Error)
