package karotz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-karotz/internal/metrics"
)

// DefaultPollInterval is the status poll period.
const DefaultPollInterval = 30 * time.Second

// State is the coordinator's refresh state.
type State string

const (
	// StateIdle means no status fetch is in flight.
	StateIdle State = "idle"

	// StateRefreshing means a status fetch is in flight.
	StateRefreshing State = "refreshing"
)

// refreshKey is the single singleflight key: one device, one fetch.
const refreshKey = "status"

// StatusFetcher fetches a status snapshot. *Client implements it.
type StatusFetcher interface {
	Status(ctx context.Context) (Status, error)
}

// StatusRecorder receives poll outcomes for the time-series store.
// *influxdb.Client implements it.
type StatusRecorder interface {
	WriteStatus(deviceID string, fields map[string]any, at time.Time)
	WritePoll(deviceID string, success bool, duration time.Duration, at time.Time)
}

// CoordinatorConfig holds the settings for a Coordinator.
type CoordinatorConfig struct {
	// DeviceID labels logs and metrics.
	DeviceID string

	// Fetcher is the status source, normally the device's *Client.
	Fetcher StatusFetcher

	// Interval is the poll period. Default: 30s.
	Interval time.Duration

	// Recorder is optional.
	Recorder StatusRecorder

	// Logger is optional.
	Logger Logger
}

// Coordinator owns the last known status of one rabbit.
//
// It polls on a fixed interval and coalesces concurrent refreshes so that at
// most one status request is in flight. The snapshot is replaced wholesale
// on success and kept as-is on failure. Subscribers are called once per
// completed fetch and once per Patch.
//
// Thread Safety: All methods are safe for concurrent use. The coordinator is
// the only writer of the snapshot.
type Coordinator struct {
	deviceID string
	fetcher  StatusFetcher
	interval time.Duration
	recorder StatusRecorder
	logger   Logger

	group      singleflight.Group
	refreshing atomic.Bool

	mu          sync.RWMutex
	data        Status
	lastSuccess bool
	lastErr     error
	lastUpdated time.Time

	subsMu  sync.Mutex
	subs    map[uint64]func()
	nextSub uint64

	// Lifecycle. ctx outlives individual Refresh callers and is cancelled
	// by Stop.
	ctx      context.Context
	cancel   context.CancelFunc
	lifeMu   sync.Mutex
	started  bool
	stopped  bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCoordinator creates a coordinator. Call FirstRefresh, then Start.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("karotz: status fetcher is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		deviceID: cfg.DeviceID,
		fetcher:  cfg.Fetcher,
		interval: cfg.Interval,
		recorder: cfg.Recorder,
		logger:   logger,
		subs:     make(map[uint64]func()),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// FirstRefresh performs the bootstrap fetch. A failure wraps ErrSetupFailed
// and the owning device must not be set up.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	if _, err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSetupFailed, c.deviceID, err)
	}
	return nil
}

// Start runs the poll loop until ctx is cancelled or Stop is called. Only
// the first call starts a loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.stopped || c.started {
		return
	}
	c.started = true
	c.wg.Add(1)
	go c.pollLoop(ctx)
}

// Stop cancels the poll loop and any in-flight fetch, then waits for
// background refreshes to finish. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.lifeMu.Lock()
		c.stopped = true
		c.lifeMu.Unlock()

		c.cancel()
		c.wg.Wait()
	})
}

func (c *Coordinator) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			// Failures are recorded and logged by fetch; the loop keeps going.
			_, _ = c.Refresh(ctx)
		}
	}
}

// Refresh fetches the status now, or joins the fetch already in flight.
// Every caller joining the same fetch gets its own copy of the same
// snapshot. ctx only bounds how long this caller waits.
func (c *Coordinator) Refresh(ctx context.Context) (Status, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.fetch()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		st, _ := res.Val.(Status)
		return st.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestRefresh schedules a refresh in the background. It joins any
// in-flight fetch rather than starting a second one.
func (c *Coordinator) RequestRefresh() {
	c.lifeMu.Lock()
	if c.stopped {
		c.lifeMu.Unlock()
		return
	}
	c.wg.Add(1)
	c.lifeMu.Unlock()

	go func() {
		defer c.wg.Done()
		_, _ = c.Refresh(c.ctx)
	}()
}

// fetch runs one status request and applies the outcome. It only runs
// inside the singleflight group.
func (c *Coordinator) fetch() (Status, error) {
	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	start := time.Now()
	st, err := c.fetcher.Status(c.ctx)
	if err == nil && len(st) == 0 {
		err = fmt.Errorf("%w: empty status", ErrInvalidResponse)
	}
	elapsed := time.Since(start)
	now := time.Now()

	c.mu.Lock()
	wasAvailable := c.lastSuccess
	if err != nil {
		c.lastSuccess = false
		c.lastErr = err
	} else {
		// st goes to every joined caller; Patch only writes c.data.
		c.data = st.Clone()
		c.lastSuccess = true
		c.lastErr = nil
		c.lastUpdated = now
	}
	c.mu.Unlock()

	c.record(st, err, elapsed, now)

	switch {
	case err != nil && wasAvailable:
		c.logger.Error("karotz update failed, device unavailable", "device_id", c.deviceID, "error", err)
	case err != nil:
		c.logger.Debug("karotz update failed", "device_id", c.deviceID, "error", err)
	case !wasAvailable:
		c.logger.Info("karotz device available", "device_id", c.deviceID, "fetch_ms", elapsed.Milliseconds())
	}

	c.notify()

	if err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Coordinator) record(st Status, err error, elapsed time.Duration, at time.Time) {
	result := metrics.ResultSuccess
	available := 1.0
	if err != nil {
		result = metrics.ResultFailure
		available = 0
	}
	metrics.PollTotal.WithLabelValues(c.deviceID, result).Inc()
	metrics.DeviceAvailable.WithLabelValues(c.deviceID).Set(available)

	if c.recorder == nil {
		return
	}
	c.recorder.WritePoll(c.deviceID, err == nil, elapsed, at)
	if err == nil {
		c.recorder.WriteStatus(c.deviceID, st.NumericFields(), at)
	}
}

// State reports whether a fetch is in flight.
func (c *Coordinator) State() State {
	if c.refreshing.Load() {
		return StateRefreshing
	}
	return StateIdle
}

// Data returns a copy of the last known snapshot, nil before the first
// successful fetch.
func (c *Coordinator) Data() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Clone()
}

// LastUpdateSuccess reports whether the most recent fetch succeeded. Every
// coordinator-backed entity is available exactly when this is true.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// LastError returns the error of the most recent failed fetch, nil after a
// success.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LastUpdated returns the time of the last successful fetch.
func (c *Coordinator) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// DeviceID returns the id of the device this coordinator serves.
func (c *Coordinator) DeviceID() string {
	return c.deviceID
}

// Patch applies an optimistic update to the snapshot and notifies
// subscribers. It is a no-op on the data before the first successful fetch.
// Command handlers call Patch, then RequestRefresh.
func (c *Coordinator) Patch(fn func(Status)) {
	c.mu.Lock()
	if c.data != nil {
		fn(c.data)
	}
	c.mu.Unlock()

	c.notify()
}

// Subscribe registers fn to be called after every fetch and patch. The
// returned function removes it. fn runs on the fetching goroutine and must
// not call Refresh; RequestRefresh is fine.
func (c *Coordinator) Subscribe(fn func()) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

func (c *Coordinator) notify() {
	c.subsMu.Lock()
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		c.callSubscriber(fn)
	}
}

func (c *Coordinator) callSubscriber(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("karotz subscriber panicked", "device_id", c.deviceID, "panic", r)
		}
	}()
	fn()
}
