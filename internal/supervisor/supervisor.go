package supervisor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/tickerbox/internal/event"
)

// Component names.
const (
	Watcher    = "watcher"
	Dispatcher = "dispatcher"
)

// FillerTitle is the first line of every topic filler.
const FillerTitle = "Watching for:"

const defaultPollInterval = 10 * time.Second

// ErrUnknownComponent is returned by Restart for a name it does not manage.
var ErrUnknownComponent = errors.New("supervisor: unknown component")

// Status is the lifecycle state of a supervised component.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusFailed  Status = "failed"
)

// Runner is a long-lived component. Run blocks until the component stops.
type Runner interface {
	Run(ctx context.Context) error
}

// Factory builds a fresh Runner for each start.
type Factory func() Runner

// Queue is the producer end of the event queue plus its size.
type Queue interface {
	Enqueue(ev event.DisplayEvent)
	Len() int
}

// StatusSource provides label/value pairs for idle filler.
type StatusSource interface {
	FetchStatusSummary(ctx context.Context) map[string]string
}

// Recorder receives supervisor telemetry.
type Recorder interface {
	RecordRestart(component string)
}

// HealthPublisher receives the component stats after every tick.
type HealthPublisher interface {
	PublishHealth(stats []ComponentStats) error
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ComponentStats describes one supervised component.
type ComponentStats struct {
	Name          string  `json:"name"`
	Status        Status  `json:"status"`
	RestartCount  int     `json:"restart_count"`
	LastError     string  `json:"last_error,omitempty"`
	UptimeSeconds float64 `json:"uptime"`
}

// Options configures a Supervisor. Queue, NewWatcher and NewDispatcher are
// required.
type Options struct {
	Queue         Queue
	NewWatcher    Factory
	NewDispatcher Factory
	// Status feeds the status filler. Optional.
	Status StatusSource
	// Topics is the initial tracked topic set; see SetTopics.
	Topics       []string
	PollInterval time.Duration
	Recorder     Recorder
	Health       HealthPublisher
	Logger       Logger
}

// Supervisor is the process's main control loop.
type Supervisor struct {
	queue    Queue
	status   StatusSource
	poll     time.Duration
	recorder Recorder
	health   HealthPublisher
	logger   Logger

	mu         sync.Mutex
	topics     []string
	components []*component
}

type component struct {
	name     string
	factory  Factory
	run      *handle
	restarts int
	lastErr  error
}

// handle is one running instance of a component.
type handle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	err     error // valid once done is closed
}

func (h *handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// New creates a Supervisor. It panics if a required option is missing.
func New(opts Options) *Supervisor {
	if opts.Queue == nil || opts.NewWatcher == nil || opts.NewDispatcher == nil {
		panic("supervisor: Queue, NewWatcher and NewDispatcher are required")
	}
	s := &Supervisor{
		queue:    opts.Queue,
		status:   opts.Status,
		poll:     opts.PollInterval,
		recorder: opts.Recorder,
		health:   opts.Health,
		logger:   opts.Logger,
		topics:   slices.Clone(opts.Topics),
		components: []*component{
			{name: Watcher, factory: opts.NewWatcher},
			{name: Dispatcher, factory: opts.NewDispatcher},
		},
	}
	if s.poll <= 0 {
		s.poll = defaultPollInterval
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// Run ticks until ctx ends, then cancels every component, waits for them
// to return and returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started", "poll_interval", s.poll)

	s.tick(ctx)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.logger.Info("supervisor stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	for _, c := range s.components {
		s.ensure(ctx, c)
	}
	if s.queue.Len() == 0 {
		s.fill(ctx)
	}
	if s.health != nil {
		if err := s.health.PublishHealth(s.Stats()); err != nil {
			s.logger.Debug("publishing health", "error", err)
		}
	}
}

// ensure starts c unless an instance is still running.
func (s *Supervisor) ensure(ctx context.Context, c *component) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.run != nil {
		if !c.run.finished() {
			return
		}
		c.lastErr = c.run.err
		c.restarts++
		s.logger.Warn("component exited, restarting",
			"component", c.name,
			"error", c.run.err,
			"restart_count", c.restarts,
		)
		if s.recorder != nil {
			s.recorder.RecordRestart(c.name)
		}
	}

	c.run = s.start(ctx, c.name, c.factory)
	s.logger.Info("component started", "component", c.name)
}

func (s *Supervisor) start(ctx context.Context, name string, factory Factory) *handle {
	childCtx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel, done: make(chan struct{}), started: time.Now()}

	go func() {
		defer close(h.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		h.err = factory().Run(childCtx)
	}()
	return h
}

// fill enqueues the idle filler.
func (s *Supervisor) fill(ctx context.Context) {
	topics := s.Topics()
	for _, topic := range topics {
		s.queue.Enqueue(event.NewFiller(FillerTitle, topic))
	}

	var summary map[string]string
	if s.status != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, s.poll)
		summary = s.status.FetchStatusSummary(lookupCtx)
		cancel()
	}
	for _, label := range slices.Sorted(maps.Keys(summary)) {
		s.queue.Enqueue(event.NewFiller(label, summary[label]))
	}
	s.logger.Debug("queue empty, filler enqueued", "topics", len(topics), "status", len(summary))
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	var running []*handle
	for _, c := range s.components {
		if c.run != nil {
			c.run.cancel()
			running = append(running, c.run)
		}
	}
	s.mu.Unlock()

	for _, h := range running {
		<-h.done
	}
}

// Restart cancels the running instance of the named component. The next
// tick starts a fresh one.
func (s *Supervisor) Restart(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.components {
		if c.name != name {
			continue
		}
		if c.run != nil {
			c.run.cancel()
		}
		s.logger.Info("component restart requested", "component", name)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
}

// SetTopics replaces the tracked topic set used by the filler.
func (s *Supervisor) SetTopics(topics []string) {
	s.mu.Lock()
	s.topics = slices.Clone(topics)
	s.mu.Unlock()
}

// Topics returns a copy of the tracked topic set.
func (s *Supervisor) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.topics)
}

// Stats returns a snapshot of every component.
func (s *Supervisor) Stats() []ComponentStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ComponentStats, 0, len(s.components))
	for _, c := range s.components {
		st := ComponentStats{Name: c.name, Status: StatusStopped, RestartCount: c.restarts}
		lastErr := c.lastErr
		if c.run != nil {
			if c.run.finished() {
				lastErr = c.run.err
				if lastErr != nil {
					st.Status = StatusFailed
				}
			} else {
				st.Status = StatusRunning
				st.UptimeSeconds = time.Since(c.run.started).Seconds()
			}
		}
		if lastErr != nil {
			st.LastError = lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}
