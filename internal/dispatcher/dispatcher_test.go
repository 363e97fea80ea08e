package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tickerbox/internal/event"
	"github.com/nerrad567/tickerbox/internal/gpio"
	"github.com/nerrad567/tickerbox/internal/gpio/gpiotest"
	"github.com/nerrad567/tickerbox/internal/lcd"
	"github.com/nerrad567/tickerbox/internal/queue"
)

const indicatorPin = "GPIO4"

// fakeDisplay records rendered lines. Line1 "panic" panics and Line1
// "reject" fails without touching hardware.
type fakeDisplay struct {
	mu       sync.Mutex
	inits    int
	rendered [][2]string
}

func (d *fakeDisplay) Initialize() error {
	d.mu.Lock()
	d.inits++
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) WriteLines(line1, line2 string) error {
	switch line1 {
	case "panic":
		panic("oversized glyph table")
	case "reject":
		return errors.New("line rejected")
	}
	d.mu.Lock()
	d.rendered = append(d.rendered, [2]string{line1, line2})
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) lines() [][2]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][2]string(nil), d.rendered...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	renders []string
}

func (r *fakeRecorder) RecordRender(priority string, _ bool, _ time.Duration) {
	r.mu.Lock()
	r.renders = append(r.renders, priority)
	r.mu.Unlock()
}

type fixture struct {
	queue   *queue.Queue
	display *fakeDisplay
	bank    *gpiotest.Bank
	cancel  context.CancelFunc
	done    chan error
}

func newIndicator(t *testing.T, bank *gpiotest.Bank) *gpio.Line {
	t.Helper()
	line, err := gpio.NewLine(bank, indicatorPin)
	if err != nil {
		t.Fatalf("NewLine() error = %v", err)
	}
	return line
}

// start runs a dispatcher with short holds over a fake display.
func start(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{queue: queue.New(), display: &fakeDisplay{}, bank: gpiotest.New(), done: make(chan error, 1)}

	opts.Queue = f.queue
	if opts.Display == nil {
		opts.Display = f.display
	}
	if opts.Indicator == nil {
		opts.Indicator = newIndicator(t, f.bank)
	}
	if opts.AlertHold == 0 {
		opts.AlertHold = time.Millisecond
	}
	if opts.Settle == 0 {
		opts.Settle = time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	d := New(opts)
	go func() { f.done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRun_RendersEvent(t *testing.T) {
	rec := &fakeRecorder{}
	f := start(t, Options{Recorder: rec})

	f.queue.Enqueue(event.NewFiller("Watching for:", "golang"))
	waitFor(t, "render", func() bool { return len(f.display.lines()) == 1 })

	if got := f.display.lines()[0]; got != [2]string{"Watching for:", "golang"} {
		t.Errorf("rendered %q, want [Watching for: golang]", got)
	}
	f.display.mu.Lock()
	inits := f.display.inits
	f.display.mu.Unlock()
	if inits != 1 {
		t.Errorf("Initialize called %d times, want 1 per event", inits)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.renders) != 1 || rec.renders[0] != "low" {
		t.Errorf("recorded renders = %v, want [low]", rec.renders)
	}
}

func TestRun_FaultIsolation(t *testing.T) {
	tests := []struct {
		name string
		bad  event.DisplayEvent
	}{
		{"panic", event.NewStreamEvent("x", "y")},
		{"error", event.NewFiller("reject", "")},
	}
	tests[0].bad.Line1 = "panic"

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := start(t, Options{})

			f.queue.Enqueue(tt.bad)
			f.queue.Enqueue(event.NewFiller("good", "event"))

			waitFor(t, "the well-formed event", func() bool { return len(f.display.lines()) == 1 })
			if got := f.display.lines()[0]; got[0] != "good" {
				t.Errorf("rendered %q, want the well-formed event", got)
			}
		})
	}
}

func TestRun_AlertPulsesIndicator(t *testing.T) {
	f := start(t, Options{})

	f.queue.Enqueue(event.NewStreamEvent("alice", "hi"))
	waitFor(t, "indicator low", func() bool { return len(f.bank.Writes(indicatorPin)) == 2 })

	got := f.bank.Writes(indicatorPin)
	if !got[0] || got[1] {
		t.Errorf("indicator writes = %v, want [true false]", got)
	}
}

func TestRun_NonAlertLeavesIndicator(t *testing.T) {
	f := start(t, Options{})

	f.queue.Enqueue(event.NewFiller("a", "b"))
	f.queue.Enqueue(event.NewFiller("c", "d"))
	waitFor(t, "two renders", func() bool { return len(f.display.lines()) == 2 })

	if got := f.bank.Writes(indicatorPin); len(got) != 0 {
		t.Errorf("indicator writes = %v, want none", got)
	}
}

func TestRun_CancelMidHoldDrivesIndicatorLow(t *testing.T) {
	f := start(t, Options{AlertHold: time.Hour})

	f.queue.Enqueue(event.NewStreamEvent("alice", "hi"))
	waitFor(t, "indicator high", func() bool { return f.bank.Level(indicatorPin) })

	f.cancel()
	select {
	case err := <-f.done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
		f.done <- err // for cleanup
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if f.bank.Level(indicatorPin) {
		t.Error("indicator left high after cancellation")
	}
}

func TestRun_PriorityOrder(t *testing.T) {
	q := queue.New()
	q.Enqueue(event.NewFiller("low", "1"))
	q.Enqueue(event.NewStreamEvent("high", "2"))

	disp := &fakeDisplay{}
	d := New(Options{
		Queue:     q,
		Display:   disp,
		Indicator: newIndicator(t, gpiotest.New()),
		AlertHold: time.Millisecond,
		Settle:    time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "both renders", func() bool { return len(disp.lines()) == 2 })
	cancel()
	<-done

	got := disp.lines()
	if got[0][0] != "@high:" || got[1][0] != "low" {
		t.Errorf("render order = %v, want high before low", got)
	}
}

func TestRun_IndicatorFailureIsFatal(t *testing.T) {
	bank := gpiotest.New()
	indicator := newIndicator(t, bank)
	bank.FailPin(indicatorPin, errors.New("line released"))

	var (
		mu    sync.Mutex
		fatal error
	)
	q := queue.New()
	q.Enqueue(event.NewStreamEvent("alice", "hi"))
	q.Enqueue(event.NewFiller("never", "shown"))

	disp := &fakeDisplay{}
	d := New(Options{
		Queue:     q,
		Display:   disp,
		Indicator: indicator,
		OnFatal: func(err error) {
			mu.Lock()
			fatal = err
			mu.Unlock()
		},
	})

	err := d.Run(context.Background())
	if !errors.Is(err, gpio.ErrIO) {
		t.Fatalf("Run() error = %v, want gpio.ErrIO", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(fatal, gpio.ErrIO) {
		t.Errorf("OnFatal got %v, want gpio.ErrIO", fatal)
	}
	if n := len(disp.lines()); n != 1 {
		t.Errorf("rendered %d events, want 1 (stop after the fatal one)", n)
	}
	if q.Len() != 1 {
		t.Errorf("queue length = %d, want 1", q.Len())
	}
}

func TestRun_BusFailureIsFatal(t *testing.T) {
	bank := gpiotest.New()
	display, err := lcd.New(bank, lcd.Config{
		Width:         16,
		LineAddresses: [2]byte{0x80, 0xC0},
		Pins: lcd.Pins{
			Data:           [4]string{"D4", "D5", "D6", "D7"},
			RegisterSelect: "RS",
			Enable:         "E",
		},
		Sleep: bank.Sleep,
	})
	if err != nil {
		t.Fatalf("lcd.New() error = %v", err)
	}
	bank.FailPin("E", errors.New("bus gone"))

	q := queue.New()
	q.Enqueue(event.NewFiller("a", "b"))

	called := false
	d := New(Options{
		Queue:     q,
		Display:   display,
		Indicator: newIndicator(t, bank),
		OnFatal:   func(error) { called = true },
	})
	if err := d.Run(context.Background()); !errors.Is(err, gpio.ErrIO) {
		t.Fatalf("Run() error = %v, want gpio.ErrIO", err)
	}
	if !called {
		t.Error("OnFatal not called")
	}
}

func TestNew_Defaults(t *testing.T) {
	d := New(Options{Queue: queue.New(), Display: &fakeDisplay{}, Indicator: newIndicator(t, gpiotest.New())})
	if d.alertHold != defaultAlertHold {
		t.Errorf("alertHold = %v, want %v", d.alertHold, defaultAlertHold)
	}
	if d.settle != defaultSettle {
		t.Errorf("settle = %v, want %v", d.settle, defaultSettle)
	}
}
