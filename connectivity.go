package trifleachievements

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Connectivity is the host-provided online/offline signal.
type Connectivity interface {
	Online() bool
	// Subscribe registers fn for transitions and returns an unsubscribe func.
	Subscribe(fn func(online bool)) func()
}

type listenerSet struct {
	next      int
	listeners map[int]func(bool)
}

func (l *listenerSet) add(fn func(bool)) int {
	if l.listeners == nil {
		l.listeners = map[int]func(bool){}
	}
	id := l.next
	l.next++
	l.listeners[id] = fn
	return id
}

func (l *listenerSet) snapshot() []func(bool) {
	out := make([]func(bool), 0, len(l.listeners))
	for _, fn := range l.listeners {
		out = append(out, fn)
	}
	return out
}

// ManualConnectivity is driven explicitly by the host via SetOnline.
type ManualConnectivity struct {
	mu        sync.Mutex
	online    bool
	listeners listenerSet
}

// NewManualConnectivity creates a signal in the given initial state.
func NewManualConnectivity(online bool) *ManualConnectivity {
	return &ManualConnectivity{online: online}
}

func (c *ManualConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *ManualConnectivity) Subscribe(fn func(online bool)) func() {
	c.mu.Lock()
	id := c.listeners.add(fn)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners.listeners, id)
		c.mu.Unlock()
	}
}

// SetOnline records the state and notifies subscribers on transitions only.
func (c *ManualConnectivity) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	listeners := c.listeners.snapshot()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

const defaultProbeInterval = 5 * time.Second

// ProbeOptions configures ProbeConnectivity.
type ProbeOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// ProbeConnectivity polls a health URL and reports online when it answers
// with a non-5xx status.
type ProbeConnectivity struct {
	*ManualConnectivity

	url      string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewProbeConnectivity probes url once synchronously, then keeps probing in the
// background until Close.
func NewProbeConnectivity(url string, opts ProbeOptions) *ProbeConnectivity {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &ProbeConnectivity{
		url:      url,
		interval: interval,
		timeout:  timeout,
		client:   client,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	p.ManualConnectivity = NewManualConnectivity(p.probe())
	p.startWorker()
	return p
}

// Close stops the background probe.
func (p *ProbeConnectivity) Close() error {
	p.once.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
	})
	return nil
}

func (p *ProbeConnectivity) startWorker() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				online := p.probe()
				if online != p.Online() {
					p.logger.Info("connectivity changed", "url", p.url, "online", online)
				}
				p.SetOnline(online)
			case <-p.stopCh:
				return
			}
		}
	}()
}

func (p *ProbeConnectivity) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	res, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = res.Body.Close()
	return res.StatusCode < 500
}
