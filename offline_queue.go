package trifleachievements

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// OfflineQueueOptions configures an OfflineQueue.
type OfflineQueueOptions struct {
	// Blobs persists the queue. Required.
	Blobs BlobStore
	// Key is the durable key holding the queue. Defaults to DefaultQueueKey.
	Key string
	// Connectivity defaults to an always-online signal.
	Connectivity Connectivity
	// OnError receives failures of background replay passes.
	OnError ErrorHandler
	Logger  *slog.Logger
	Now     func() time.Time
}

// QueueStatus is a diagnostic snapshot of the pending queue.
type QueueStatus struct {
	Pending    int
	Operations []QueuedOperation
}

// OfflineQueue wraps an AsyncStore so that writes are never lost while the
// store is unreachable. Failed or offline writes are appended to a durable
// FIFO queue and replayed in order once connectivity returns.
type OfflineQueue struct {
	store   AsyncStore
	blobs   BlobStore
	key     string
	conn    Connectivity
	onError ErrorHandler
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	queue      []QueuedOperation
	online     bool
	processing bool
	passDone   chan struct{}
	closed     bool

	unsubscribe func()
	wg          sync.WaitGroup
}

// NewOfflineQueue loads any persisted queue and subscribes to connectivity.
// When the signal is online and operations survived a restart, a replay pass
// starts immediately.
func NewOfflineQueue(store AsyncStore, opts OfflineQueueOptions) (*OfflineQueue, error) {
	if store == nil {
		return nil, NewConfigurationError("offline queue requires a store")
	}
	if opts.Blobs == nil {
		return nil, NewConfigurationError("offline queue requires a blob store")
	}
	key := opts.Key
	if key == "" {
		key = DefaultQueueKey
	}
	conn := opts.Connectivity
	if conn == nil {
		conn = NewManualConnectivity(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &OfflineQueue{
		store:   store,
		blobs:   opts.Blobs,
		key:     key,
		conn:    conn,
		onError: opts.OnError,
		logger:  logger,
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
	}
	if err := q.loadQueue(); err != nil {
		cancel()
		return nil, err
	}

	// Subscribe before reading the state so no transition falls in between.
	q.unsubscribe = conn.Subscribe(q.handleConnectivity)
	q.mu.Lock()
	q.online = conn.Online()
	pending := len(q.queue)
	q.mu.Unlock()

	if pending > 0 {
		q.triggerProcess()
	}
	return q, nil
}

func (q *OfflineQueue) Description() string {
	return fmt.Sprintf("OfflineQueue(%s)", q.store.Description())
}

// GetMetrics reads straight from the wrapped store. Reads are never queued.
func (q *OfflineQueue) GetMetrics(ctx context.Context) (Metrics, error) {
	metrics, err := q.store.GetMetrics(ctx)
	if err != nil {
		return nil, q.readError("metrics", err)
	}
	return metrics, nil
}

// GetUnlockedAchievements reads straight from the wrapped store.
func (q *OfflineQueue) GetUnlockedAchievements(ctx context.Context) ([]string, error) {
	ids, err := q.store.GetUnlockedAchievements(ctx)
	if err != nil {
		return nil, q.readError("unlocked achievements", err)
	}
	return ids, nil
}

// SetMetrics writes through when online, otherwise queues. A failed online
// attempt is queued rather than returned; the only errors surfaced are
// failures to persist the queue itself.
func (q *OfflineQueue) SetMetrics(ctx context.Context, metrics Metrics) error {
	return q.write(ctx, SetMetricsOp{Metrics: CloneMetrics(metrics)})
}

// SetUnlockedAchievements writes through when online, otherwise queues.
func (q *OfflineQueue) SetUnlockedAchievements(ctx context.Context, ids []string) error {
	return q.write(ctx, SetUnlockedOp{IDs: cloneIDs(ids)})
}

// Clear wipes the wrapped store. A successful online clear also drops every
// pending operation, since it supersedes them.
func (q *OfflineQueue) Clear(ctx context.Context) error {
	return q.write(ctx, ClearOp{})
}

// Sync waits for any running replay pass and then runs one itself. It returns
// the classified error that stopped the pass, if any.
func (q *OfflineQueue) Sync(ctx context.Context) error {
	for {
		done, started := q.beginPass()
		if started {
			return q.runPass(ctx, done)
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Status returns the pending operations in replay order.
func (q *OfflineQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := make([]QueuedOperation, len(q.queue))
	copy(ops, q.queue)
	return QueueStatus{
		Pending:    len(ops),
		Operations: ops,
	}
}

// ClearQueue drops all pending operations without replaying them.
func (q *OfflineQueue) ClearQueue() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = nil
	return q.persistLocked()
}

// Close unsubscribes from connectivity, aborts in-flight replay and waits for
// background passes. Aborted operations stay queued.
func (q *OfflineQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	if q.unsubscribe != nil {
		q.unsubscribe()
	}
	q.cancel()
	q.wg.Wait()
	return nil
}

func (q *OfflineQueue) write(ctx context.Context, op Operation) error {
	q.mu.Lock()
	direct := q.online && !q.processing
	if _, isClear := op.(ClearOp); !isClear {
		// Writing past a non-empty queue would let the older queued value
		// land last.
		direct = direct && len(q.queue) == 0
	}
	q.mu.Unlock()

	if direct {
		err := q.apply(ctx, op)
		if err == nil {
			if _, isClear := op.(ClearOp); isClear {
				return q.ClearQueue()
			}
			return nil
		}
		q.logger.Warn("offline queue: write failed, queueing", "op", op.Type(), "err", err)
	}
	return q.enqueue(op)
}

func (q *OfflineQueue) enqueue(op Operation) error {
	item := newQueuedOperation(op, q.now())

	q.mu.Lock()
	q.queue = append(q.queue, item)
	err := q.persistLocked()
	online := q.online
	q.mu.Unlock()

	if online {
		q.triggerProcess()
	}
	return err
}

func (q *OfflineQueue) apply(ctx context.Context, op Operation) error {
	switch op := op.(type) {
	case SetMetricsOp:
		return q.store.SetMetrics(ctx, op.Metrics)
	case SetUnlockedOp:
		return q.store.SetUnlockedAchievements(ctx, op.IDs)
	case ClearOp:
		return q.store.Clear(ctx)
	default:
		return NewConfigurationError(fmt.Sprintf("unknown queued operation %T", op))
	}
}

// triggerProcess starts a background replay pass. It is a no-op while another
// pass is running.
func (q *OfflineQueue) triggerProcess() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		if err := q.processQueue(q.ctx); err != nil && q.ctx.Err() == nil {
			q.report(err)
		}
	}()
}

func (q *OfflineQueue) processQueue(ctx context.Context) error {
	done, started := q.beginPass()
	if !started {
		return nil
	}
	return q.runPass(ctx, done)
}

// beginPass claims the single-flight slot. When a pass is already running it
// returns that pass's completion channel instead.
func (q *OfflineQueue) beginPass() (chan struct{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing {
		return q.passDone, false
	}
	q.processing = true
	q.passDone = make(chan struct{})
	return q.passDone, true
}

// runPass replays the head of the queue until the queue is empty, the signal
// goes offline, or an operation fails. A failed head stays in place.
func (q *OfflineQueue) runPass(ctx context.Context, done chan struct{}) error {
	for {
		q.mu.Lock()
		// Releasing the slot under the same lock as the emptiness check keeps
		// a concurrent enqueue from seeing a pass that is about to end.
		if !q.online || len(q.queue) == 0 {
			q.endPassLocked(done)
			q.mu.Unlock()
			return nil
		}
		head := q.queue[0]
		q.mu.Unlock()

		if err := q.apply(ctx, head.Op); err != nil {
			q.mu.Lock()
			q.endPassLocked(done)
			q.mu.Unlock()
			return classify(err, fmt.Sprintf("replay of %s operation %s failed", head.Op.Type(), head.ID))
		}

		q.mu.Lock()
		// A clear may have emptied the queue while the head was in flight.
		if len(q.queue) > 0 && q.queue[0].ID == head.ID {
			q.queue = q.queue[1:]
			if err := q.persistLocked(); err != nil {
				q.endPassLocked(done)
				q.mu.Unlock()
				return err
			}
		}
		q.mu.Unlock()
	}
}

func (q *OfflineQueue) endPassLocked(done chan struct{}) {
	q.processing = false
	q.passDone = nil
	close(done)
}

func (q *OfflineQueue) handleConnectivity(online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	q.mu.Unlock()

	if online && !wasOnline {
		q.logger.Info("offline queue: back online, replaying", "pending", q.Status().Pending)
		q.triggerProcess()
	}
}

func (q *OfflineQueue) readError(what string, err error) error {
	q.mu.Lock()
	online := q.online
	q.mu.Unlock()
	if online {
		return err
	}
	return NewStorageError(fmt.Sprintf("Cannot read %s while offline", what), err)
}

func (q *OfflineQueue) loadQueue() error {
	raw, ok, err := q.blobs.Load(q.key)
	if err != nil {
		return classify(err, "failed to load offline queue")
	}
	if !ok || raw == "" {
		return nil
	}
	var ops []QueuedOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		q.logger.Error("offline queue: discarding unreadable queue", "key", q.key, "err", err)
		return nil
	}
	q.mu.Lock()
	q.queue = ops
	q.mu.Unlock()
	return nil
}

func (q *OfflineQueue) persistLocked() error {
	ops := q.queue
	if ops == nil {
		ops = []QueuedOperation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return NewStorageError("failed to encode offline queue", err)
	}
	if err := q.blobs.Save(q.key, string(data)); err != nil {
		return classify(err, "failed to persist offline queue")
	}
	return nil
}

func (q *OfflineQueue) report(err error) {
	classified := classify(err, "")
	if q.onError != nil {
		q.onError(classified)
		return
	}
	q.logger.Error("offline queue: replay stopped", "code", classified.Code, "err", classified)
}
