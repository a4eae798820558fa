// Package camera wraps an external still-capture binary (rpicam-still by
// default). All the real work happens in the external tool; this package
// only builds its argument list and bounds its runtime.
package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

var runCommandFn = runCommand

type Config struct {
	// Command is the still-capture binary to invoke.
	Command   string
	OutputDir string
	Width     int
	Height    int
	// Timeout bounds one capture, external tool included.
	Timeout time.Duration

	// ExtraArgs are appended verbatim after the generated arguments.
	ExtraArgs []string
}

type Camera struct {
	cfg Config
}

func New(cfg Config) *Camera {
	if cfg.Command == "" {
		cfg.Command = "rpicam-still"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Camera{cfg: cfg}
}

// buildArgs assembles the capture-tool command line for one output file.
func buildArgs(cfg Config, outPath string) []string {
	args := []string{"-o", outPath, "--nopreview"}
	if cfg.Width > 0 {
		args = append(args, "--width", strconv.Itoa(cfg.Width))
	}
	if cfg.Height > 0 {
		args = append(args, "--height", strconv.Itoa(cfg.Height))
	}
	args = append(args, cfg.ExtraArgs...)
	return args
}

// Capture takes one still and returns the written file path.
func (c *Camera) Capture(ctx context.Context) (string, error) {
	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("camera: create output dir: %w", err)
	}
	outPath := filepath.Join(c.cfg.OutputDir,
		fmt.Sprintf("still-%s.jpg", time.Now().UTC().Format("20060102-150405.000")))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if out, err := runCommandFn(ctx, c.cfg.Command, buildArgs(c.cfg, outPath)); err != nil {
		return "", fmt.Errorf("camera: %s failed: %w (output: %s)", c.cfg.Command, err, string(out))
	}
	return outPath, nil
}

func runCommand(ctx context.Context, name string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
