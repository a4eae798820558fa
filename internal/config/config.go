package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Servo  ServoConfig  `yaml:"servo"`
	LED    LEDConfig    `yaml:"led"`
	Camera CameraConfig `yaml:"camera"`
}

type ServoConfig struct {
	// Chip selects /dev/gpiochip<N>; 0 on every Pi before the Pi 5
	// kernel reshuffle.
	Chip int `yaml:"chip"`
	// Pin is BCM GPIO numbering.
	Pin int `yaml:"pin"`
	// FrequencyHz is the PWM carrier; hobby servos expect 50.
	FrequencyHz int `yaml:"frequency_hz"`
	// AutoStop releases the pin after this long without position commands.
	AutoStop time.Duration `yaml:"autostop"`
	// StopTimeout bounds the wait for a clean worker shutdown.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type LEDConfig struct {
	Enable bool `yaml:"enable"`
	Chip   int  `yaml:"chip"`
	Pin    int  `yaml:"pin"`
}

type CameraConfig struct {
	Enable bool `yaml:"enable"`

	// Command is the external still-capture binary.
	Command   string        `yaml:"command"`
	OutputDir string        `yaml:"output_dir"`
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
	Timeout   time.Duration `yaml:"timeout"`

	// ExtraArgs are appended verbatim after the generated arguments.
	ExtraArgs []string `yaml:"extra_args"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Servo.Pin <= 0 {
		return Config{}, fmt.Errorf("servo.pin is required")
	}
	if cfg.Servo.Chip < 0 {
		return Config{}, fmt.Errorf("servo.chip must be >= 0")
	}
	if cfg.Servo.FrequencyHz < 0 {
		return Config{}, fmt.Errorf("servo.frequency_hz must be > 0")
	}
	if cfg.Servo.FrequencyHz == 0 {
		cfg.Servo.FrequencyHz = 50
	}
	if cfg.Servo.AutoStop <= 0 {
		cfg.Servo.AutoStop = 2 * time.Second
	}
	if cfg.Servo.StopTimeout <= 0 {
		cfg.Servo.StopTimeout = 1 * time.Second
	}

	if cfg.LED.Enable {
		if cfg.LED.Pin <= 0 {
			return Config{}, fmt.Errorf("led.pin is required when led.enable is true")
		}
		if cfg.LED.Pin == cfg.Servo.Pin && cfg.LED.Chip == cfg.Servo.Chip {
			return Config{}, fmt.Errorf("led.pin and servo.pin cannot share gpio %d:%d", cfg.Servo.Chip, cfg.Servo.Pin)
		}
	}

	if cfg.Camera.Command == "" {
		cfg.Camera.Command = "rpicam-still"
	}
	if cfg.Camera.OutputDir == "" {
		cfg.Camera.OutputDir = "."
	}
	if cfg.Camera.Timeout <= 0 {
		cfg.Camera.Timeout = 10 * time.Second
	}
	if cfg.Camera.Width < 0 || cfg.Camera.Height < 0 {
		return Config{}, fmt.Errorf("camera.width and camera.height must be >= 0")
	}

	return cfg, nil
}
