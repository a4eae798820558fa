// Package gpio provides a minimal output-line abstraction over the Linux
// GPIO character device.
//
// A Line is claimed exclusively as a digital output and must be released
// with Close. Close is best-effort and leaves the pin driven low.
package gpio

// Line is a claimed digital output line.
type Line interface {
	// SetValue drives the line to 0 or 1.
	SetValue(v int) error
	// Close drives the line low and releases the claim.
	Close() error
}
