package trifleachievements

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// MemoryStore is a process-local SyncStore.
type MemoryStore struct {
	mu       sync.Mutex
	metrics  Metrics
	unlocked []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{metrics: Metrics{}, unlocked: []string{}}
}

func (s *MemoryStore) Description() string {
	return "MemoryStore"
}

func (s *MemoryStore) GetMetrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloneMetrics(s.metrics)
}

func (s *MemoryStore) SetMetrics(metrics Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = CloneMetrics(metrics)
}

func (s *MemoryStore) GetUnlockedAchievements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneIDs(s.unlocked)
}

func (s *MemoryStore) SetUnlockedAchievements(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked = cloneIDs(ids)
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = Metrics{}
	s.unlocked = []string{}
}

// blobCodec reads and writes the two achievement documents of a storage key.
type blobCodec struct {
	blobs      BlobStore
	storageKey string
}

func (b blobCodec) loadMetrics() (Metrics, error) {
	raw, ok, err := b.blobs.Load(metricsKey(b.storageKey))
	if err != nil {
		return nil, classify(err, "failed to load metrics")
	}
	if !ok {
		return Metrics{}, nil
	}
	metrics, err := decodeMetrics(json.RawMessage(raw))
	if err != nil {
		return nil, NewStorageError("stored metrics are corrupted", err)
	}
	return metrics, nil
}

func (b blobCodec) saveMetrics(metrics Metrics) error {
	raw, err := json.Marshal(encodeMetrics(metrics))
	if err != nil {
		return NewStorageError("failed to encode metrics", err)
	}
	return b.blobs.Save(metricsKey(b.storageKey), string(raw))
}

func (b blobCodec) loadUnlocked() ([]string, error) {
	raw, ok, err := b.blobs.Load(unlockedKey(b.storageKey))
	if err != nil {
		return nil, classify(err, "failed to load unlocked achievements")
	}
	if !ok {
		return []string{}, nil
	}
	ids := []string{}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, NewStorageError("stored unlocked achievements are corrupted", err)
	}
	return cloneIDs(ids), nil
}

func (b blobCodec) saveUnlocked(ids []string) error {
	raw, err := json.Marshal(cloneIDs(ids))
	if err != nil {
		return NewStorageError("failed to encode unlocked achievements", err)
	}
	return b.blobs.Save(unlockedKey(b.storageKey), string(raw))
}

func (b blobCodec) clear() error {
	if err := b.blobs.Delete(metricsKey(b.storageKey)); err != nil {
		return err
	}
	return b.blobs.Delete(unlockedKey(b.storageKey))
}

// LocalStore is a SyncStore persisted in a BlobStore. Failures never reach
// the caller: reads fall back to empty values and every error is passed to
// OnError, or logged.
type LocalStore struct {
	codec   blobCodec
	OnError ErrorHandler
	Logger  *slog.Logger
}

// NewLocalStore creates a local store under storageKey (DefaultStorageKey when
// empty).
func NewLocalStore(blobs BlobStore, storageKey string) *LocalStore {
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	return &LocalStore{codec: blobCodec{blobs: blobs, storageKey: storageKey}}
}

func (s *LocalStore) Description() string {
	return fmt.Sprintf("LocalStore(%s)", s.codec.blobs.Description())
}

func (s *LocalStore) GetMetrics() Metrics {
	metrics, err := s.codec.loadMetrics()
	if err != nil {
		s.report(err)
		return Metrics{}
	}
	return metrics
}

func (s *LocalStore) SetMetrics(metrics Metrics) {
	s.report(s.codec.saveMetrics(metrics))
}

func (s *LocalStore) GetUnlockedAchievements() []string {
	ids, err := s.codec.loadUnlocked()
	if err != nil {
		s.report(err)
		return []string{}
	}
	return ids
}

func (s *LocalStore) SetUnlockedAchievements(ids []string) {
	s.report(s.codec.saveUnlocked(ids))
}

func (s *LocalStore) Clear() {
	s.report(s.codec.clear())
}

func (s *LocalStore) report(err error) {
	if err == nil {
		return
	}
	classified := classify(err, "")
	if s.OnError != nil {
		s.OnError(classified)
		return
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("local store: operation failed", "code", classified.Code, "err", classified)
}

// BlobAsyncStore is an AsyncStore persisted in a BlobStore. It is the local
// alternative to RemoteStore underneath a SyncCache.
type BlobAsyncStore struct {
	codec blobCodec
}

// NewBlobAsyncStore creates an async store under storageKey.
func NewBlobAsyncStore(blobs BlobStore, storageKey string) *BlobAsyncStore {
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	return &BlobAsyncStore{codec: blobCodec{blobs: blobs, storageKey: storageKey}}
}

func (s *BlobAsyncStore) Description() string {
	return fmt.Sprintf("BlobAsyncStore(%s)", s.codec.blobs.Description())
}

func (s *BlobAsyncStore) GetMetrics(ctx context.Context) (Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.codec.loadMetrics()
}

func (s *BlobAsyncStore) SetMetrics(ctx context.Context, metrics Metrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.codec.saveMetrics(metrics)
}

func (s *BlobAsyncStore) GetUnlockedAchievements(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.codec.loadUnlocked()
}

func (s *BlobAsyncStore) SetUnlockedAchievements(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.codec.saveUnlocked(ids)
}

func (s *BlobAsyncStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.codec.clear()
}
