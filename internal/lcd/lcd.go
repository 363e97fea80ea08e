package lcd

import (
	"fmt"
	"time"

	"github.com/nerrad567/tickerbox/internal/gpio"
	"github.com/nerrad567/tickerbox/internal/infrastructure/config"
)

// Controller commands.
const (
	cmdInit8Bit     = 0x33 // two 8-bit resets
	cmdInit4Bit     = 0x32 // 8-bit reset then switch to 4-bit
	cmdFunctionSet  = 0x28 // 4-bit, 2 lines, 5x8 font
	cmdDisplayOn    = 0x0C // display on, cursor off, blink off
	cmdEntryMode    = 0x06 // increment, no shift
	cmdClearDisplay = 0x01
)

var initSequence = []byte{cmdInit8Bit, cmdInit4Bit, cmdFunctionSet, cmdDisplayOn, cmdEntryMode, cmdClearDisplay}

// Pins names the bus lines. Data[0..3] are wired to D4..D7.
type Pins struct {
	Data           [4]string
	RegisterSelect string
	Enable         string
}

func (p Pins) all() []string {
	return []string{p.Data[0], p.Data[1], p.Data[2], p.Data[3], p.RegisterSelect, p.Enable}
}

// Timing is the enable-strobe margin applied to every nibble.
type Timing struct {
	Setup time.Duration
	Pulse time.Duration
	Hold  time.Duration
}

// Config describes one display.
type Config struct {
	Width         int
	LineAddresses [2]byte
	Pins          Pins
	Timing        Timing

	// Sleep waits between bus transitions. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// ConfigFrom maps the display section of the application config.
func ConfigFrom(dc config.DisplayConfig) Config {
	cfg := Config{
		Width: dc.Width,
		Pins: Pins{
			Data:           [4]string{dc.Pins.Data0, dc.Pins.Data1, dc.Pins.Data2, dc.Pins.Data3},
			RegisterSelect: dc.Pins.RegisterSelect,
			Enable:         dc.Pins.EnableStrobe,
		},
		Timing: Timing{Setup: dc.Timing.SetupDelay, Pulse: dc.Timing.PulseWidth, Hold: dc.Timing.HoldDelay},
	}
	for i := 0; i < len(cfg.LineAddresses) && i < len(dc.LineAddresses); i++ {
		cfg.LineAddresses[i] = byte(dc.LineAddresses[i]) //nolint:gosec // validated 0x80..0xFF
	}
	return cfg
}

// Display is a two-row character display.
//
// A Display is not safe for concurrent use; the dispatcher is its only
// writer.
type Display struct {
	bank gpio.Bank
	cfg  Config
}

// New configures every bus line as an output on bank.
func New(bank gpio.Bank, cfg Config) (*Display, error) {
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("%w: width %d", ErrInvalidConfig, cfg.Width)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	for _, pin := range cfg.Pins.all() {
		if pin == "" {
			return nil, fmt.Errorf("%w: unnamed bus pin", ErrInvalidConfig)
		}
		if err := bank.Setup(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBus, err)
		}
	}
	return &Display{bank: bank, cfg: cfg}, nil
}

// Width returns the number of columns per row.
func (d *Display) Width() int {
	return d.cfg.Width
}

// Initialize replays the controller reset and mode setup, leaving the
// display cleared.
func (d *Display) Initialize() error {
	for _, cmd := range initSequence {
		if err := d.SendByte(cmd, false); err != nil {
			return err
		}
	}
	return nil
}

// WriteLines writes both rows, each as a row-address command followed
// by exactly Width characters.
func (d *Display) WriteLines(line1, line2 string) error {
	for row, text := range [2]string{line1, line2} {
		if err := d.SendByte(d.cfg.LineAddresses[row], false); err != nil {
			return err
		}
		for _, c := range Format(text, d.cfg.Width) {
			if err := d.SendByte(c, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Show initializes the controller and writes both rows.
func (d *Display) Show(line1, line2 string) error {
	if err := d.Initialize(); err != nil {
		return err
	}
	return d.WriteLines(line1, line2)
}

// SendByte writes value as a character (isData) or a command, high nibble
// first.
func (d *Display) SendByte(value byte, isData bool) error {
	if err := d.write(d.cfg.Pins.RegisterSelect, isData); err != nil {
		return err
	}
	if err := d.sendNibble(value >> 4); err != nil {
		return err
	}
	return d.sendNibble(value & 0x0F)
}

// sendNibble drives D4..D7 from bits 0..3 of n and strobes enable.
func (d *Display) sendNibble(n byte) error {
	for bit, pin := range d.cfg.Pins.Data {
		if err := d.write(pin, n&(1<<bit) != 0); err != nil {
			return err
		}
	}

	d.cfg.Sleep(d.cfg.Timing.Setup)
	if err := d.write(d.cfg.Pins.Enable, true); err != nil {
		return err
	}
	d.cfg.Sleep(d.cfg.Timing.Pulse)
	if err := d.write(d.cfg.Pins.Enable, false); err != nil {
		return err
	}
	d.cfg.Sleep(d.cfg.Timing.Hold)
	return nil
}

func (d *Display) write(pin string, high bool) error {
	if err := d.bank.Write(pin, high); err != nil {
		return fmt.Errorf("%w: %w", ErrBus, err)
	}
	return nil
}

// Format converts text to exactly width display bytes. Printable ASCII is
// kept, any other rune becomes '?', and the result is space padded or cut.
func Format(text string, width int) []byte {
	if width <= 0 {
		return nil
	}
	out := make([]byte, 0, width)
	for _, r := range text {
		if len(out) == width {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		out = append(out, byte(r))
	}
	for len(out) < width {
		out = append(out, ' ')
	}
	return out
}
