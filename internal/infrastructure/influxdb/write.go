package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRender  = "display_render"
	MeasurementFault   = "stream_fault"
	MeasurementFollows = "followers"
	MeasurementRestart = "component_restart"
)

// now is replaced in tests.
var now = time.Now

// RecordRender records one rendered display event and how long the bus
// writes took.
func (c *Client) RecordRender(priority string, alert bool, took time.Duration) {
	c.write(MeasurementRender,
		map[string]string{"priority": priority, "alert": strconv.FormatBool(alert)},
		map[string]any{"duration_ms": float64(took) / float64(time.Millisecond)})
}

// RecordStreamFault records one fault reported by the event source.
func (c *Client) RecordStreamFault(kind string) {
	c.write(MeasurementFault, map[string]string{"kind": kind}, map[string]any{"count": 1})
}

// RecordFollowers records a follower-count lookup result.
func (c *Client) RecordFollowers(account string, followers uint64) {
	c.write(MeasurementFollows, map[string]string{"account": account},
		map[string]any{"followers": followers})
}

// RecordRestart records a supervisor (re)start of component.
func (c *Client) RecordRestart(component string) {
	c.write(MeasurementRestart, map[string]string{"component": component}, map[string]any{"count": 1})
}

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, now()))
}
