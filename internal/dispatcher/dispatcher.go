// Package dispatcher is the consumer side of the display pipeline: it
// drains the queue onto the LCD and fires the alert indicator.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tickerbox/internal/event"
	"github.com/nerrad567/tickerbox/internal/gpio"
)

const (
	defaultAlertHold = 10 * time.Second
	defaultSettle    = 4 * time.Second
)

// ErrRenderPanic wraps a panic recovered while rendering one event.
var ErrRenderPanic = errors.New("dispatcher: panic while rendering")

// Dequeuer is the consumer end of the event queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (event.DisplayEvent, error)
}

// Display is the two-row character display.
type Display interface {
	Initialize() error
	WriteLines(line1, line2 string) error
}

// Indicator is the alert output.
type Indicator interface {
	Set(on bool) error
}

// Recorder receives render telemetry.
type Recorder interface {
	RecordRender(priority string, alert bool, took time.Duration)
}

// Logger defines the logging interface for the dispatcher.
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

func (noopRecorder) RecordRender(string, bool, time.Duration) {}

// Options configures a Dispatcher. Queue, Display and Indicator are required.
type Options struct {
	Queue     Dequeuer
	Display   Display
	Indicator Indicator
	// AlertHold is how long the indicator stays high after an alerting event.
	AlertHold time.Duration
	// Settle is how long a non-alerting event stays on screen before the
	// next dequeue.
	Settle   time.Duration
	Recorder Recorder
	Logger   Logger
	// OnFatal is called once with a digital I/O failure before Run returns it.
	OnFatal func(err error)
}

// Dispatcher is the single consumer of the event queue. It is the only
// writer to the display and the indicator.
type Dispatcher struct {
	queue     Dequeuer
	display   Display
	indicator Indicator
	alertHold time.Duration
	settle    time.Duration
	recorder  Recorder
	logger    Logger
	onFatal   func(error)
}

// New creates a Dispatcher. It panics if a required option is missing.
func New(opts Options) *Dispatcher {
	if opts.Queue == nil || opts.Display == nil || opts.Indicator == nil {
		panic("dispatcher: Queue, Display and Indicator are required")
	}
	d := &Dispatcher{
		queue:     opts.Queue,
		display:   opts.Display,
		indicator: opts.Indicator,
		alertHold: opts.AlertHold,
		settle:    opts.Settle,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		onFatal:   opts.OnFatal,
	}
	if d.alertHold <= 0 {
		d.alertHold = defaultAlertHold
	}
	if d.settle <= 0 {
		d.settle = defaultSettle
	}
	if d.recorder == nil {
		d.recorder = noopRecorder{}
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d
}

// Run renders events until ctx ends or the hardware fails.
//
// An event that fails to render for any other reason, including a panic,
// is logged and skipped. An error wrapping gpio.ErrIO is fatal: OnFatal is
// called and Run returns it.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		ev, err := d.queue.Dequeue(ctx)
		if err != nil {
			return err
		}

		if err := d.handle(ctx, ev); err != nil {
			if errors.Is(err, gpio.ErrIO) {
				d.logger.Error("display hardware failure", "id", ev.ID, "error", err)
				if d.onFatal != nil {
					d.onFatal(err)
				}
				return err
			}
			d.logger.Error("skipping event", "id", ev.ID, "priority", ev.Priority.String(), "error", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev event.DisplayEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()

	start := time.Now()
	if err := d.display.Initialize(); err != nil {
		return fmt.Errorf("initializing display: %w", err)
	}
	if err := d.display.WriteLines(ev.Line1, ev.Line2); err != nil {
		return fmt.Errorf("writing lines: %w", err)
	}
	took := time.Since(start)
	d.recorder.RecordRender(ev.Priority.String(), ev.Alert, took)
	d.logger.Debug("event rendered",
		"id", ev.ID,
		"priority", ev.Priority.String(),
		"alert", ev.Alert,
		"took", took,
	)

	if ev.Alert {
		return d.alert(ctx)
	}
	wait(ctx, d.settle)
	return nil
}

// alert holds the indicator high for alertHold. The indicator is driven low
// on every path out, including cancellation and a failed raise.
func (d *Dispatcher) alert(ctx context.Context) (err error) {
	defer func() {
		if lerr := d.indicator.Set(false); lerr != nil {
			err = errors.Join(err, fmt.Errorf("lowering indicator: %w", lerr))
		}
	}()

	if err := d.indicator.Set(true); err != nil {
		return fmt.Errorf("raising indicator: %w", err)
	}
	wait(ctx, d.alertHold)
	return nil
}

// wait sleeps for d or until ctx ends.
func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
