package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-karotz/internal/metrics"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Client records rabbit history in an InfluxDB v2 bucket.
//
// Points go through the non-blocking batched write API; batch failures are
// reported to the SetOnError callback. All methods are safe for concurrent
// use. Writes after Close are dropped.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	bucket string

	open atomic.Bool

	errMu   sync.Mutex
	onError func(error)
}

// Connect creates the client and checks that the server answers a ping.
// It returns ErrDisabled when history is switched off in cfg.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))
	if err := ping(ctx, influx, connectTimeout); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
	}
	c.open.Store(true)
	go c.forwardErrors()

	return c, nil
}

// writeOptions maps the config onto client options, falling back to sane
// batching when the values are unset.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) // #nosec G115 -- positive by construction
}

func ping(ctx context.Context, influx influxdb2.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthy, err := influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

// forwardErrors drains the write API error channel until it is closed.
func (c *Client) forwardErrors() {
	for err := range c.writer.Errors() {
		metrics.HistoryWriteErrors.Inc()

		c.errMu.Lock()
		cb := c.onError
		c.errMu.Unlock()
		if cb != nil {
			cb(fmt.Errorf("%w: %s: %w", ErrWriteFailed, c.bucket, err))
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(cb func(error)) {
	c.errMu.Lock()
	c.onError = cb
	c.errMu.Unlock()
}

// IsConnected reports whether the client is still open.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.influx, pingTimeout); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Close flushes pending points and releases the client. It is safe to
// call more than once.
func (c *Client) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}
