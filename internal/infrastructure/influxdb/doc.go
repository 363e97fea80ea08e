// Package influxdb records tickerbox telemetry in InfluxDB v2.
//
// Telemetry is optional and write-only. Four measurements are emitted:
//
//	display_render   tags: priority, alert   fields: duration_ms
//	stream_fault     tags: kind              fields: count
//	followers        tags: account           fields: followers
//	component_restart tags: component        fields: count
//
// Writes are non-blocking and batched (batch_size, flush_interval). Async
// failures are delivered to the callback set with SetOnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.RecordFollowers("tickerbox@example.social", 1280)
package influxdb
