package main

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/tickerbox/internal/api"
	"github.com/nerrad567/tickerbox/internal/infrastructure/mqtt"
	"github.com/nerrad567/tickerbox/internal/queue"
	"github.com/nerrad567/tickerbox/internal/supervisor"
	"github.com/nerrad567/tickerbox/internal/watcher"
)

// jsonPublisher is the part of *mqtt.Client the health publisher needs.
type jsonPublisher interface {
	PublishJSON(topic string, v any) error
}

// mqttHealth publishes supervisor stats to the retained health topic.
type mqttHealth struct {
	client jsonPublisher
	now    func() time.Time
}

type healthPayload struct {
	Timestamp  string                      `json:"timestamp"`
	Components []supervisor.ComponentStats `json:"components"`
}

func (h mqttHealth) PublishHealth(stats []supervisor.ComponentStats) error {
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	return h.client.PublishJSON(mqtt.Topics{}.SystemHealth(), healthPayload{
		Timestamp:  now().UTC().Format(time.RFC3339),
		Components: stats,
	})
}

// pipelineStatus serves GET /status from the live pipeline.
type pipelineStatus struct {
	queue      *queue.Queue
	supervisor *supervisor.Supervisor
	watcher    *atomic.Pointer[watcher.Watcher]
}

func (p pipelineStatus) Status() api.Status {
	state := watcher.Disconnected
	if w := p.watcher.Load(); w != nil {
		state = w.State()
	}
	return api.Status{
		QueueSize:    p.queue.Len(),
		WatcherState: state.String(),
		Components:   p.supervisor.Stats(),
	}
}
