package karotz

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const okReply = `{"return":"0"}`

// fakeRabbit serves the /cgi-bin/ API of an OpenKarotz over httptest.
type fakeRabbit struct {
	srv *httptest.Server

	mu         sync.Mutex
	status     string
	statusCode int
	hang       bool          // status requests block until the client gives up
	gate       chan struct{} // status requests wait for close(gate)
	replies    map[string]string
	snapshot   []byte
	requests   []*url.URL

	statusHits atomic.Int32
}

func newFakeRabbit(t *testing.T) *fakeRabbit {
	t.Helper()
	f := &fakeRabbit{
		status:     `{"sleep":"0","led_color":"0000ff","led_pulse":"0","volume":"10","version":"200"}`,
		statusCode: http.StatusOK,
		replies:    make(map[string]string),
	}
	f.srv = httptest.NewServer(f)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRabbit) URL() string {
	return f.srv.URL
}

func (f *fakeRabbit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/cgi-bin/")

	f.mu.Lock()
	u := *r.URL
	f.requests = append(f.requests, &u)
	f.mu.Unlock()

	switch endpoint {
	case endpointStatus:
		f.statusHits.Add(1)
		f.mu.Lock()
		body, code, hang, gate := f.status, f.statusCode, f.hang, f.gate
		f.mu.Unlock()

		if hang {
			<-r.Context().Done()
			return
		}
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		// The rabbit mislabels its JSON.
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(code)
		fmt.Fprint(w, body)

	case endpointSnapshot:
		f.mu.Lock()
		img := f.snapshot
		f.mu.Unlock()
		if img == nil {
			http.Error(w, "camera busy", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(img)

	default:
		f.mu.Lock()
		reply, ok := f.replies[endpoint]
		f.mu.Unlock()
		if !ok {
			reply = okReply
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, reply)
	}
}

func (f *fakeRabbit) setStatus(body string) {
	f.mu.Lock()
	f.status = body
	f.mu.Unlock()
}

func (f *fakeRabbit) setHang(hang bool) {
	f.mu.Lock()
	f.hang = hang
	f.mu.Unlock()
}

func (f *fakeRabbit) setGate(gate chan struct{}) {
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
}

func (f *fakeRabbit) setReply(endpoint, body string) {
	f.mu.Lock()
	f.replies[endpoint] = body
	f.mu.Unlock()
}

func (f *fakeRabbit) setSnapshot(img []byte) {
	f.mu.Lock()
	f.snapshot = img
	f.mu.Unlock()
}

// last returns the query of the most recent request to endpoint.
func (f *fakeRabbit) last(endpoint string) (url.Values, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if strings.TrimPrefix(f.requests[i].Path, "/cgi-bin/") == endpoint {
			return f.requests[i].Query(), true
		}
	}
	return nil, false
}

func (f *fakeRabbit) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.requests {
		if strings.TrimPrefix(u.Path, "/cgi-bin/") == endpoint {
			n++
		}
	}
	return n
}

// captureLogger records log calls by level.
type captureLogger struct {
	mu      sync.Mutex
	records []logRecord
}

type logRecord struct {
	level string
	msg   string
	args  []any
}

func (c *captureLogger) add(level, msg string, args []any) {
	c.mu.Lock()
	c.records = append(c.records, logRecord{level: level, msg: msg, args: args})
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) count(level string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.level == level {
			n++
		}
	}
	return n
}

func (c *captureLogger) has(level, msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.level == level && r.msg == msg {
			return true
		}
	}
	return false
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newTestDevice builds a device against a fake rabbit and runs Setup.
func newTestDevice(t *testing.T, f *fakeRabbit, opts ...func(*DeviceConfig)) *Device {
	t.Helper()
	cfg := DeviceConfig{
		Info: DeviceInfo{
			ID:        "karotz-test",
			Name:      "Lapin",
			Host:      f.URL(),
			WebhookID: "hook-123",
		},
		PollInterval:    time.Hour,
		ActionTimeout:   time.Second,
		SnapshotTimeout: time.Second,
		PublicURL:       "http://bridge.local:8099",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	d, err := NewDevice(cfg)
	require.NoError(t, err)
	require.NoError(t, d.Setup(testContext(t)))
	t.Cleanup(d.Close)
	return d
}
