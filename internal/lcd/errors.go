package lcd

import "errors"

var (
	// ErrBus wraps any failure driving a bus line. It is always joined
	// with the underlying gpio.ErrIO.
	ErrBus = errors.New("lcd: bus write failed")

	// ErrInvalidConfig is returned by New for an unusable Config.
	ErrInvalidConfig = errors.New("lcd: invalid configuration")
)
