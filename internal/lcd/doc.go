// Package lcd drives an HD44780-class character display over a 4-bit
// parallel bus with register-select and enable-strobe control lines.
//
// The driver is stateless: every screen update replays Initialize before
// the row writes, so nothing depends on what the controller latched
// before. All bus timing comes from Config.Timing.
//
// A row is always exactly Width characters. Shorter text is padded with
// spaces on the right and longer text is cut. Runes outside printable
// ASCII are shown as '?'.
package lcd
