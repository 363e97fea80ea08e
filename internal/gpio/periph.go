package gpio

import (
	"fmt"
	"sync"

	periphgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphBank drives pins through the periph.io host drivers.
type PeriphBank struct {
	lookup func(name string) periphgpio.PinIO

	mu   sync.RWMutex
	pins map[string]periphgpio.PinIO
}

// NewPeriphBank loads the periph.io host drivers for this board.
func NewPeriphBank() (*PeriphBank, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: initialising host drivers: %w", ErrIO, err)
	}
	return newPeriphBank(gpioreg.ByName), nil
}

func newPeriphBank(lookup func(string) periphgpio.PinIO) *PeriphBank {
	return &PeriphBank{lookup: lookup, pins: make(map[string]periphgpio.PinIO)}
}

// Setup resolves name in the periph.io registry and configures it.
func (b *PeriphBank) Setup(name string, dir Direction) error {
	pin := b.lookup(name)
	if pin == nil {
		return fmt.Errorf("%w: %w: %s", ErrIO, ErrUnknownPin, name)
	}

	var err error
	switch dir {
	case Input:
		err = pin.In(periphgpio.PullNoChange, periphgpio.NoEdge)
	default:
		err = pin.Out(periphgpio.Low)
	}
	if err != nil {
		return fmt.Errorf("%w: configuring %s as %s: %w", ErrIO, name, dir, err)
	}

	b.mu.Lock()
	b.pins[name] = pin
	b.mu.Unlock()
	return nil
}

// Write sets the level of a configured pin.
func (b *PeriphBank) Write(name string, high bool) error {
	b.mu.RLock()
	pin, ok := b.pins[name]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrIO, ErrNotConfigured, name)
	}
	if err := pin.Out(periphgpio.Level(high)); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrIO, name, err)
	}
	return nil
}
