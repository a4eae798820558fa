package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_RequiresServoPin(t *testing.T) {
	path := writeTempConfig(t, "servo: {}\n")
	_, err := Load(path)
	requireErrEq(t, err, "servo.pin is required")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "servo:\n  pin: 18\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Servo.FrequencyHz != 50 {
		t.Fatalf("frequency_hz=%d want 50", cfg.Servo.FrequencyHz)
	}
	if cfg.Servo.AutoStop != 2*time.Second {
		t.Fatalf("autostop=%s want 2s", cfg.Servo.AutoStop)
	}
	if cfg.Servo.StopTimeout != 1*time.Second {
		t.Fatalf("stop_timeout=%s want 1s", cfg.Servo.StopTimeout)
	}
	if cfg.Camera.Command != "rpicam-still" {
		t.Fatalf("camera.command=%q want rpicam-still", cfg.Camera.Command)
	}
	if cfg.Camera.Timeout != 10*time.Second {
		t.Fatalf("camera.timeout=%s want 10s", cfg.Camera.Timeout)
	}
}

func TestLoad_ParsesFullConfig(t *testing.T) {
	path := writeTempConfig(t, `
servo:
  chip: 0
  pin: 18
  frequency_hz: 50
  autostop: 5s
  stop_timeout: 500ms
led:
  enable: true
  pin: 17
camera:
  enable: true
  command: libcamera-still
  output_dir: /tmp/captures
  width: 1920
  height: 1080
  timeout: 4s
  extra_args: ["--nopreview"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Servo.AutoStop != 5*time.Second {
		t.Fatalf("autostop=%s want 5s", cfg.Servo.AutoStop)
	}
	if cfg.Servo.StopTimeout != 500*time.Millisecond {
		t.Fatalf("stop_timeout=%s want 500ms", cfg.Servo.StopTimeout)
	}
	if !cfg.LED.Enable || cfg.LED.Pin != 17 {
		t.Fatalf("led=%+v want enabled on pin 17", cfg.LED)
	}
	if cfg.Camera.Command != "libcamera-still" || cfg.Camera.Width != 1920 {
		t.Fatalf("camera=%+v", cfg.Camera)
	}
	if len(cfg.Camera.ExtraArgs) != 1 || cfg.Camera.ExtraArgs[0] != "--nopreview" {
		t.Fatalf("extra_args=%v", cfg.Camera.ExtraArgs)
	}
}

func TestLoad_LEDValidation(t *testing.T) {
	path := writeTempConfig(t, "servo:\n  pin: 18\nled:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "led.pin is required when led.enable is true")

	path = writeTempConfig(t, "servo:\n  pin: 18\nled:\n  enable: true\n  pin: 18\n")
	_, err = Load(path)
	requireErrEq(t, err, "led.pin and servo.pin cannot share gpio 0:18")
}
