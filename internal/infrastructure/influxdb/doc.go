// Package influxdb provides InfluxDB connectivity for printer telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Temperature samples from reads and wait loops
//   - Executed motion commands (target position, acknowledgement time)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "moonrig",
//	    Bucket:  "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTemperature("voron-350", "bed", 58.7, 60.0)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly. Telemetry is best effort: a down InfluxDB never blocks a
// printer command.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This reduces network overhead for wait loops that
// sample once a second.
package influxdb
