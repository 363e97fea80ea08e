// Package gpio is the digital I/O capability tickerbox drives the display
// bus and the alert indicator through.
//
// Pins are addressed by name ("GPIO25", "GPIO4"). The production Bank is
// PeriphBank, backed by periph.io; tests use gpiotest.Bank.
//
// Any hardware failure is reported wrapping ErrIO. There is no recovery
// path for it: callers treat ErrIO as fatal.
package gpio
