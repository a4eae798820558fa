// Package led drives a single status LED on a GPIO output line.
package led

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pibot/internal/gpio"
)

var openLineFn = gpio.Open

type Config struct {
	// Chip selects /dev/gpiochip<N>.
	Chip int
	// Pin is BCM GPIO numbering.
	Pin int
}

type LED struct {
	mu   sync.Mutex
	line gpio.Line
	on   bool
}

// Open claims the configured pin as an output, initially off.
func Open(cfg Config) (*LED, error) {
	if cfg.Pin <= 0 {
		return nil, fmt.Errorf("led: invalid pin %d", cfg.Pin)
	}
	line, err := openLineFn(cfg.Chip, cfg.Pin, "pibot-led")
	if err != nil {
		return nil, fmt.Errorf("led: claim gpio %d:%d: %w", cfg.Chip, cfg.Pin, err)
	}
	return &LED{line: line}, nil
}

func (l *LED) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return fmt.Errorf("led: closed")
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return err
	}
	l.on = on
	return nil
}

func (l *LED) On() error  { return l.Set(true) }
func (l *LED) Off() error { return l.Set(false) }

func (l *LED) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Blink toggles the LED every half period until ctx is done, then leaves
// it off.
func (l *LED) Blink(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = time.Second
	}
	t := time.NewTicker(period / 2)
	defer t.Stop()

	on := true
	for {
		if err := l.Set(on); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return l.Set(false)
		case <-t.C:
			on = !on
		}
	}
}

// Close turns the LED off and releases the line. Safe to call repeatedly.
func (l *LED) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	err := l.line.Close()
	l.line = nil
	l.on = false
	return err
}
