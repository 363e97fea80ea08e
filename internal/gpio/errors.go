package gpio

import "errors"

var (
	// ErrIO marks a failed digital I/O operation.
	ErrIO = errors.New("gpio: i/o failure")

	// ErrUnknownPin is returned when a pin name does not resolve.
	ErrUnknownPin = errors.New("gpio: unknown pin")

	// ErrNotConfigured is returned when writing a pin Setup never saw.
	ErrNotConfigured = errors.New("gpio: pin not configured")
)
