package watcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tickerbox/internal/event"
	"github.com/nerrad567/tickerbox/internal/snapshot"
	"github.com/nerrad567/tickerbox/internal/stream"
)

// Summary labels, in the order they are meant to be shown.
const (
	LabelAccount   = "Account:"
	LabelFollowers = "Followers:"
	LabelChange    = "24h change:"
)

// changeWindow is how far back the follower change is measured.
const changeWindow = 24 * time.Hour

const defaultCooldown = time.Minute

// ConnectionState is where the run loop currently is.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Streaming
	RateLimited
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case RateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// Enqueuer accepts display events.
type Enqueuer interface {
	Enqueue(ev event.DisplayEvent)
}

// Snapshots stores follower counts over time.
type Snapshots interface {
	Record(ctx context.Context, account string, followers uint64, at time.Time) error
	OldestSince(ctx context.Context, account string, since time.Time) (snapshot.Snapshot, bool, error)
}

// Recorder receives watcher telemetry.
type Recorder interface {
	RecordStreamFault(kind string)
	RecordFollowers(account string, followers uint64)
}

// Logger defines the logging interface for the watcher.
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

type noopRecorder struct{}

func (noopRecorder) RecordStreamFault(string)       {}
func (noopRecorder) RecordFollowers(string, uint64) {}

// Options configures a Watcher. Source and Queue are required.
type Options struct {
	Source stream.Source
	Queue  Enqueuer
	// Topics is read on every connect, so a live topic change takes effect
	// on the next restart.
	Topics func() []string
	// Cooldown is how long a rate limit pauses the watcher.
	Cooldown time.Duration
	// Account is the account FetchStatusSummary looks up. Empty disables it.
	Account   string
	Snapshots Snapshots
	Recorder  Recorder
	Logger    Logger
}

// Watcher is the stream producer.
type Watcher struct {
	source    stream.Source
	queue     Enqueuer
	topics    func() []string
	cooldown  time.Duration
	account   string
	snapshots Snapshots
	recorder  Recorder
	logger    Logger

	state atomic.Int32
	now   func() time.Time
}

// New creates a Watcher. It panics if Source or Queue is missing.
func New(opts Options) *Watcher {
	if opts.Source == nil || opts.Queue == nil {
		panic("watcher: Source and Queue are required")
	}
	w := &Watcher{
		source:    opts.Source,
		queue:     opts.Queue,
		topics:    opts.Topics,
		cooldown:  opts.Cooldown,
		account:   strings.TrimPrefix(opts.Account, "@"),
		snapshots: opts.Snapshots,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if w.topics == nil {
		w.topics = func() []string { return nil }
	}
	if w.cooldown <= 0 {
		w.cooldown = defaultCooldown
	}
	if w.recorder == nil {
		w.recorder = noopRecorder{}
	}
	if w.logger == nil {
		w.logger = noopLogger{}
	}
	return w
}

// State returns the current connection state.
func (w *Watcher) State() ConnectionState {
	return ConnectionState(w.state.Load())
}

func (w *Watcher) setState(s ConnectionState) {
	w.state.Store(int32(s))
}

// Run connects and enqueues items until the stream fails or ctx ends.
//
// A rate limit is waited out: a resumable fault keeps reading the same
// stream, otherwise the stream is closed and reopened after the cooldown.
// Every other fault closes the stream and returns it.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.setState(Disconnected)

	for {
		st, err := w.connect(ctx)
		if err != nil {
			return err
		}
		reconnect, err := w.receive(ctx, st)
		if cerr := st.Close(); cerr != nil {
			w.logger.Debug("closing stream", "error", cerr)
		}
		if !reconnect {
			return err
		}
	}
}

// connect opens a stream, waiting out rate limits on the handshake.
func (w *Watcher) connect(ctx context.Context) (stream.Stream, error) {
	for {
		w.setState(Connecting)
		topics := w.topics()
		w.logger.Info("connecting to stream", "topics", topics)

		st, err := w.source.Connect(ctx, topics)
		if err == nil {
			w.setState(Streaming)
			w.logger.Info("stream started", "topics", len(topics))
			return st, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind := stream.KindOf(err)
		w.recordFault(err)
		if kind != stream.RateLimited {
			w.logger.Warn("stream connect failed", "error", err, "kind", kind.String())
			return nil, fmt.Errorf("connecting to stream: %w", err)
		}
		if err := w.waitCooldown(ctx); err != nil {
			return nil, err
		}
	}
}

// receive reads st until it fails. reconnect reports whether the caller
// should open a new stream.
func (w *Watcher) receive(ctx context.Context, st stream.Stream) (reconnect bool, err error) {
	for {
		item, err := st.Next(ctx)
		if err == nil {
			ev := event.NewStreamEvent(item.Author, item.Text)
			w.queue.Enqueue(ev)
			w.logger.Debug("item queued", "id", ev.ID, "author", item.Author, "topic", item.Topic)
			continue
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		w.recordFault(err)
		f, ok := stream.AsFault(err)
		if !ok || f.Kind != stream.RateLimited {
			w.logger.Warn("stream ended", "error", err, "kind", stream.KindOf(err).String())
			return false, fmt.Errorf("reading stream: %w", err)
		}

		if err := w.waitCooldown(ctx); err != nil {
			return false, err
		}
		if !f.Resumable {
			return true, nil
		}
		w.setState(Streaming)
		w.logger.Info("stream resumed")
	}
}

func (w *Watcher) waitCooldown(ctx context.Context) error {
	w.setState(RateLimited)
	w.logger.Warn("rate limited, cooling down", "cooldown", w.cooldown)

	t := time.NewTimer(w.cooldown)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) recordFault(err error) {
	w.recorder.RecordStreamFault(stream.KindOf(err).String())
}

// FetchStatusSummary looks up the configured account and returns its
// status as label/value pairs. It never fails: any error is logged and
// yields whatever could be gathered, possibly nothing.
func (w *Watcher) FetchStatusSummary(ctx context.Context) map[string]string {
	summary := make(map[string]string)
	if w.account == "" {
		return summary
	}

	m, err := w.source.Lookup(ctx, w.account)
	if err != nil {
		if errors.Is(err, stream.ErrUnsupported) {
			w.logger.Debug("status lookup not supported by source")
		} else {
			w.logger.Warn("status lookup failed", "account", w.account, "error", err)
		}
		return summary
	}

	account := strings.TrimPrefix(m.Account, "@")
	if account == "" {
		account = w.account
	}
	summary[LabelAccount] = "@" + account
	summary[LabelFollowers] = strconv.FormatUint(m.Followers, 10)
	w.recorder.RecordFollowers(account, m.Followers)

	if w.snapshots == nil {
		return summary
	}
	now := w.now()
	old, ok, err := w.snapshots.OldestSince(ctx, account, now.Add(-changeWindow))
	switch {
	case err != nil:
		w.logger.Warn("reading follower history", "account", account, "error", err)
	case ok:
		delta := int64(m.Followers) - int64(old.Followers) //nolint:gosec // follower counts fit in int64
		summary[LabelChange] = fmt.Sprintf("%+d", delta)
	}
	if err := w.snapshots.Record(ctx, account, m.Followers, now); err != nil {
		w.logger.Warn("recording follower snapshot", "account", account, "error", err)
	}
	return summary
}
