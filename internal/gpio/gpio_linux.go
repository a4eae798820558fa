//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// Open claims BCM GPIO pin on the given chip as a digital output (initially
// low) using the Linux GPIO character device (libgpiod).
//
// chip selects /dev/gpiochip<chip> directly. If the pin offset cannot be
// requested there (Pi 5 kernel variants move the header GPIOs between
// chips), the remaining /dev/gpiochip* devices are scanned for a line
// named "GPIO<pin>".
func Open(chip, pin int, consumer string) (Line, error) {
	if pin < 0 {
		return nil, fmt.Errorf("gpio: invalid pin %d", pin)
	}
	if chip < 0 {
		chip = 0
	}

	primary := fmt.Sprintf("/dev/gpiochip%d", chip)
	if l, err := requestOffset(primary, pin, consumer); err == nil {
		return l, nil
	}

	// Fallback: scan all chips for the named line.
	lineName := fmt.Sprintf("GPIO%d", pin)
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "gpiochip") {
			continue
		}
		chipPath := filepath.Join("/dev", name)
		c, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := c.FindLine(lineName)
		if err != nil {
			_ = c.Close()
			continue
		}
		line, err := c.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
		if err != nil {
			_ = c.Close()
			continue
		}
		return &cdevLine{chip: c, line: line}, nil
	}

	return nil, fmt.Errorf("gpio: line %q not found (or busy)", lineName)
}

func requestOffset(chipPath string, offset int, consumer string) (Line, error) {
	c, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, err
	}
	line, err := c.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return &cdevLine{chip: c, line: line}, nil
}

type cdevLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (l *cdevLine) SetValue(v int) error {
	if l == nil || l.line == nil {
		return fmt.Errorf("gpio: line not initialized")
	}
	return l.line.SetValue(v)
}

func (l *cdevLine) Close() error {
	if l == nil || l.line == nil {
		return nil
	}
	// Leave the pin in a safe state.
	_ = l.line.SetValue(0)
	err := l.line.Close()
	l.line = nil
	if l.chip != nil {
		_ = l.chip.Close()
		l.chip = nil
	}
	return err
}
