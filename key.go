package trifleachievements

import "strings"

const (
	// DefaultQueueKey is the durable key holding the offline queue.
	DefaultQueueKey = "achievements_offline_queue"
	// DefaultStorageKey prefixes the keys of local stores.
	DefaultStorageKey = "achievements"

	metricsKeyName  = "metrics"
	unlockedKeyName = "unlocked"
)

// Key represents a structured blob key.
type Key struct {
	Prefix    string
	Namespace string
	Name      string
}

// Join returns the non-empty parts joined by separator.
func (k Key) Join(separator string) string {
	parts := make([]string, 0, 3)
	if k.Prefix != "" {
		parts = append(parts, k.Prefix)
	}
	if k.Namespace != "" {
		parts = append(parts, k.Namespace)
	}
	if k.Name != "" {
		parts = append(parts, k.Name)
	}
	return strings.Join(parts, separator)
}

func metricsKey(storageKey string) string {
	return Key{Prefix: storageKey, Name: metricsKeyName}.Join("_")
}

func unlockedKey(storageKey string) string {
	return Key{Prefix: storageKey, Name: unlockedKeyName}.Join("_")
}
