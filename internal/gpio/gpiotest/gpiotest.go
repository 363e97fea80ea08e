// Package gpiotest provides a recording gpio.Bank for tests.
package gpiotest

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/tickerbox/internal/gpio"
)

// OpKind identifies a transcript entry.
type OpKind int

const (
	OpSetup OpKind = iota
	OpWrite
	OpSleep
)

// Op is one recorded operation.
type Op struct {
	Kind  OpKind
	Pin   string
	Dir   gpio.Direction
	High  bool
	Sleep time.Duration
}

func (o Op) String() string {
	switch o.Kind {
	case OpSetup:
		return fmt.Sprintf("setup %s %s", o.Pin, o.Dir)
	case OpSleep:
		return fmt.Sprintf("sleep %v", o.Sleep)
	}
	level := "low"
	if o.High {
		level = "high"
	}
	return fmt.Sprintf("write %s %s", o.Pin, level)
}

// Bank records Setup, Write and Sleep calls in one ordered transcript.
// The zero value is not usable; call New.
type Bank struct {
	mu     sync.Mutex
	ops    []Op
	levels map[string]bool
	dirs   map[string]gpio.Direction
	fail   map[string]error
	hook   func(Op)
}

// New returns an empty Bank.
func New() *Bank {
	return &Bank{
		levels: make(map[string]bool),
		dirs:   make(map[string]gpio.Direction),
		fail:   make(map[string]error),
	}
}

// FailPin makes every later Setup or Write of name fail with an error
// wrapping gpio.ErrIO and cause.
func (b *Bank) FailPin(name string, cause error) {
	b.mu.Lock()
	b.fail[name] = cause
	b.mu.Unlock()
}

// OnOp registers fn to run after each recorded operation, outside the lock.
func (b *Bank) OnOp(fn func(Op)) {
	b.mu.Lock()
	b.hook = fn
	b.mu.Unlock()
}

func (b *Bank) record(op Op) error {
	b.mu.Lock()
	if cause, ok := b.fail[op.Pin]; ok && op.Kind != OpSleep {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s: %w", gpio.ErrIO, op.Pin, cause)
	}
	switch op.Kind {
	case OpSetup:
		b.dirs[op.Pin] = op.Dir
		b.levels[op.Pin] = false
	case OpWrite:
		if _, ok := b.dirs[op.Pin]; !ok {
			b.mu.Unlock()
			return fmt.Errorf("%w: %w: %s", gpio.ErrIO, gpio.ErrNotConfigured, op.Pin)
		}
		b.levels[op.Pin] = op.High
	}
	b.ops = append(b.ops, op)
	hook := b.hook
	b.mu.Unlock()

	if hook != nil {
		hook(op)
	}
	return nil
}

// Setup implements gpio.Bank.
func (b *Bank) Setup(name string, dir gpio.Direction) error {
	return b.record(Op{Kind: OpSetup, Pin: name, Dir: dir})
}

// Write implements gpio.Bank.
func (b *Bank) Write(name string, high bool) error {
	return b.record(Op{Kind: OpWrite, Pin: name, High: high})
}

// Sleep records d without sleeping. Pass it wherever a sleep function is
// accepted so delays appear in the transcript.
func (b *Bank) Sleep(d time.Duration) {
	_ = b.record(Op{Kind: OpSleep, Sleep: d}) //nolint:errcheck // sleeps never fail
}

// Ops returns a copy of the transcript.
func (b *Bank) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Op(nil), b.ops...)
}

// Writes returns only the write entries for pin, in order.
func (b *Bank) Writes(pin string) []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []bool
	for _, op := range b.ops {
		if op.Kind == OpWrite && op.Pin == pin {
			out = append(out, op.High)
		}
	}
	return out
}

// Level returns the last level written to pin.
func (b *Bank) Level(pin string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[pin]
}

// Direction returns how pin was configured and whether it was.
func (b *Bank) Direction(pin string) (gpio.Direction, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.dirs[pin]
	return d, ok
}

// Reset clears the transcript but keeps pin configuration and levels.
func (b *Bank) Reset() {
	b.mu.Lock()
	b.ops = nil
	b.mu.Unlock()
}

var _ gpio.Bank = (*Bank)(nil)
