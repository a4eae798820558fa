// Package robot assembles the configured peripherals into one handle
// with a single teardown path.
package robot

import (
	"log"
	"sync"

	"pibot/internal/camera"
	"pibot/internal/config"
	"pibot/internal/led"
	"pibot/internal/servo"
)

type Robot struct {
	Servo  *servo.Supervisor
	Camera *camera.Camera

	// LED is nil unless enabled in config.
	LED *led.LED

	closeOnce sync.Once
}

// New wires up the peripherals. The servo supervisor touches no hardware
// until the first position command; the LED line is claimed immediately
// when enabled.
func New(cfg config.Config) (*Robot, error) {
	r := &Robot{
		Servo: servo.New(servo.Config{
			Chip:        cfg.Servo.Chip,
			Pin:         cfg.Servo.Pin,
			FrequencyHz: cfg.Servo.FrequencyHz,
			AutoStop:    cfg.Servo.AutoStop,
			StopTimeout: cfg.Servo.StopTimeout,
		}),
		Camera: camera.New(camera.Config{
			Command:   cfg.Camera.Command,
			OutputDir: cfg.Camera.OutputDir,
			Width:     cfg.Camera.Width,
			Height:    cfg.Camera.Height,
			Timeout:   cfg.Camera.Timeout,
			ExtraArgs: cfg.Camera.ExtraArgs,
		}),
	}

	if cfg.LED.Enable {
		l, err := led.Open(led.Config{Chip: cfg.LED.Chip, Pin: cfg.LED.Pin})
		if err != nil {
			return nil, err
		}
		r.LED = l
	}

	return r, nil
}

// Close tears everything down: servo session first (bounded by its stop
// timeout), then the LED line. Safe to call repeatedly.
func (r *Robot) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.Servo.Close()
		if r.LED != nil {
			if err := r.LED.Close(); err != nil {
				log.Printf("robot: led close: %v", err)
			}
		}
	})
}
