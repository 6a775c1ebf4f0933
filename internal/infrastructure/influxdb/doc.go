// Package influxdb records rabbit status history in InfluxDB.
//
// Each successful poll writes a karotz_status point with the numeric
// fields of the snapshot (volume, sleep, free space, content counts). Each
// poll writes a karotz_poll point with success and latency. RFID scans and
// button presses write karotz_event points.
//
// History is optional: Connect returns ErrDisabled when influxdb.enabled
// is false and the bridge runs without it.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Asynchronous failures are delivered to the SetOnError callback.
package influxdb
