package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-karotz/internal/metrics"
)

// Measurement names written by the bridge.
const (
	MeasurementStatus = "karotz_status"
	MeasurementPoll   = "karotz_poll"
	MeasurementEvent  = "karotz_event"
)

// WriteStatus records the numeric view of one status snapshot.
//
// Fields with no numeric reading are expected to have been dropped by the
// caller; an empty field set writes nothing.
func (c *Client) WriteStatus(deviceID string, fields map[string]any, at time.Time) {
	if len(fields) == 0 {
		return
	}
	c.writePoint(MeasurementStatus, map[string]string{"device_id": deviceID}, fields, at)
}

// WritePoll records the outcome and latency of one status fetch.
func (c *Client) WritePoll(deviceID string, success bool, duration time.Duration, at time.Time) {
	c.writePoint(MeasurementPoll,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"success":     success,
			"duration_ms": float64(duration.Microseconds()) / 1000,
		},
		at,
	)
}

// WriteEvent records an RFID scan or button press.
//
// The tag id or button type is stored as a field rather than a tag to keep
// series cardinality bounded.
func (c *Client) WriteEvent(deviceID, kind, detail string, at time.Time) {
	c.writePoint(MeasurementEvent,
		map[string]string{"device_id": deviceID, "kind": kind},
		map[string]any{"detail": detail},
		at,
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, at))
	metrics.HistoryPoints.WithLabelValues(measurement).Inc()
}
