package trifleachievements

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SyncCacheOptions configures a SyncCache.
type SyncCacheOptions struct {
	// OnError receives classified background failures. When nil they are
	// logged instead.
	OnError ErrorHandler
	Logger  *slog.Logger
}

type writeJob struct {
	op   Operation
	done chan struct{}
}

// SyncCache exposes an AsyncStore through the synchronous SyncStore contract.
// Reads are served from an eagerly hydrated cache; writes update the cache
// immediately and are replayed against the store by a single background
// writer, in the order they were issued.
type SyncCache struct {
	store   AsyncStore
	onError ErrorHandler
	logger  *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	hydrated chan struct{}

	mu            sync.Mutex
	metrics       Metrics
	unlocked      []string
	loaded        bool
	metricsDirty  bool
	unlockedDirty bool
	jobs          []writeJob
	tracked       []chan struct{}
	writing       bool
	closed        bool

	wg sync.WaitGroup
}

// NewSyncCache creates the cache and starts hydrating it in the background.
func NewSyncCache(store AsyncStore, opts SyncCacheOptions) (*SyncCache, error) {
	if store == nil {
		return nil, NewConfigurationError("sync cache requires a store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SyncCache{
		store:    store,
		onError:  opts.OnError,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		hydrated: make(chan struct{}),
		metrics:  Metrics{},
		unlocked: []string{},
	}
	c.wg.Add(1)
	go c.hydrate()
	return c, nil
}

func (c *SyncCache) Description() string {
	return fmt.Sprintf("SyncCache(%s)", c.store.Description())
}

// GetMetrics returns a copy of the cached metrics. Before hydration settles
// this is the empty default.
func (c *SyncCache) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CloneMetrics(c.metrics)
}

// SetMetrics replaces the cached metrics and submits a background write.
func (c *SyncCache) SetMetrics(metrics Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = CloneMetrics(metrics)
	c.metricsDirty = true
	c.submitLocked(SetMetricsOp{Metrics: CloneMetrics(metrics)})
}

// GetUnlockedAchievements returns a copy of the cached unlocked ids.
func (c *SyncCache) GetUnlockedAchievements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneIDs(c.unlocked)
}

// SetUnlockedAchievements replaces the cached ids and submits a background write.
func (c *SyncCache) SetUnlockedAchievements(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlocked = cloneIDs(ids)
	c.unlockedDirty = true
	c.submitLocked(SetUnlockedOp{IDs: cloneIDs(ids)})
}

// Clear wipes the cache and submits a background clear.
func (c *SyncCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = Metrics{}
	c.unlocked = []string{}
	c.metricsDirty = true
	c.unlockedDirty = true
	c.submitLocked(ClearOp{})
}

// Loaded reports whether hydration has settled, successfully or not.
func (c *SyncCache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// WaitLoaded blocks until hydration settles or ctx is done.
func (c *SyncCache) WaitLoaded(ctx context.Context) error {
	select {
	case <-c.hydrated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain waits for every background write submitted so far and then forgets
// them. Failures were already reported through OnError.
func (c *SyncCache) Drain(ctx context.Context) error {
	c.mu.Lock()
	tracked := append([]chan struct{}(nil), c.tracked...)
	c.mu.Unlock()

	for _, done := range tracked {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	pending := c.tracked[:0]
	for _, done := range c.tracked {
		select {
		case <-done:
		default:
			pending = append(pending, done)
		}
	}
	c.tracked = pending
	c.mu.Unlock()
	return nil
}

// Close stops hydration, lets the writer finish queued writes and waits for it.
// Writes issued after Close only update the cache.
func (c *SyncCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *SyncCache) hydrate() {
	defer c.wg.Done()
	defer close(c.hydrated)

	var metrics Metrics
	var unlocked []string
	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error {
		m, err := c.store.GetMetrics(ctx)
		metrics = m
		return err
	})
	g.Go(func() error {
		ids, err := c.store.GetUnlockedAchievements(ctx)
		unlocked = ids
		return err
	})
	err := g.Wait()

	c.mu.Lock()
	if err == nil {
		// Writes issued during hydration are newer than what was read.
		if !c.metricsDirty {
			c.metrics = CloneMetrics(metrics)
		}
		if !c.unlockedDirty {
			c.unlocked = cloneIDs(unlocked)
		}
	}
	c.loaded = true
	c.mu.Unlock()

	if err != nil && c.ctx.Err() == nil {
		c.report(classify(err, "Failed to load achievement data"))
	}
}

func (c *SyncCache) submitLocked(op Operation) {
	if c.closed {
		c.logger.Warn("sync cache: closed, write kept in cache only", "op", op.Type())
		return
	}
	job := writeJob{op: op, done: make(chan struct{})}
	c.jobs = append(c.jobs, job)
	c.tracked = append(c.tracked, job.done)
	if !c.writing {
		c.writing = true
		c.wg.Add(1)
		go c.runWriter()
	}
}

func (c *SyncCache) runWriter() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if len(c.jobs) == 0 {
			c.writing = false
			c.mu.Unlock()
			return
		}
		job := c.jobs[0]
		c.jobs = c.jobs[1:]
		c.mu.Unlock()

		if err := c.apply(job.op); err != nil {
			c.report(classify(err, writeFailureMessage(job.op)))
		}
		close(job.done)
	}
}

func (c *SyncCache) apply(op Operation) error {
	ctx := context.Background()
	switch op := op.(type) {
	case SetMetricsOp:
		return c.store.SetMetrics(ctx, op.Metrics)
	case SetUnlockedOp:
		return c.store.SetUnlockedAchievements(ctx, op.IDs)
	case ClearOp:
		return c.store.Clear(ctx)
	default:
		return NewConfigurationError(fmt.Sprintf("unknown write %T", op))
	}
}

func writeFailureMessage(op Operation) string {
	switch op.(type) {
	case SetMetricsOp:
		return "Failed to save metrics"
	case SetUnlockedOp:
		return "Failed to save unlocked achievements"
	case ClearOp:
		return "Failed to clear storage"
	default:
		return "Failed to write storage"
	}
}

func (c *SyncCache) report(err *Error) {
	if err == nil {
		return
	}
	if c.onError != nil {
		c.onError(err)
		return
	}
	c.logger.Error("sync cache: background operation failed", "code", err.Code, "err", err)
}
