//go:build !linux

package gpio

import "fmt"

// Stub implementation for non-Linux platforms.
func Open(chip, pin int, consumer string) (Line, error) {
	return nil, fmt.Errorf("gpio: unsupported OS (need linux)")
}
