package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pibot/internal/config"
	"pibot/internal/robot"
)

func main() {
	var (
		configPath string
		angle      float64
		sweep      bool
		ledBlink   time.Duration
		capture    bool
	)
	flag.StringVar(&configPath, "config", "./pibot.yaml", "Path to YAML config")
	flag.Float64Var(&angle, "angle", -1, "Move the servo to this angle in degrees [0,180] and hold until auto-stop")
	flag.BoolVar(&sweep, "sweep", false, "Sweep the servo 0..180..0 and exit")
	flag.DurationVar(&ledBlink, "led-blink", 0, "Blink the status LED for this long")
	flag.BoolVar(&capture, "capture", false, "Take one still with the camera")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bot, err := robot.New(cfg)
	if err != nil {
		log.Fatalf("robot init failed: %v", err)
	}
	defer bot.Close()

	switch {
	case sweep:
		runSweep(ctx, bot, cfg.Servo.AutoStop)
	case angle >= 0:
		log.Printf("servo: moving to %.1f deg (gpio %d:%d)", angle, cfg.Servo.Chip, cfg.Servo.Pin)
		bot.Servo.SetAngle(angle)
		holdUntilReleased(ctx, bot)
	case ledBlink > 0:
		if bot.LED == nil {
			log.Fatalf("led is not enabled in %s", configPath)
		}
		blinkCtx, blinkCancel := context.WithTimeout(ctx, ledBlink)
		defer blinkCancel()
		if err := bot.LED.Blink(blinkCtx, time.Second); err != nil {
			log.Fatalf("led blink failed: %v", err)
		}
	case capture:
		path, err := bot.Camera.Capture(ctx)
		if err != nil {
			log.Fatalf("capture failed: %v", err)
		}
		log.Printf("captured %s", path)
	default:
		flag.Usage()
	}
}

// sweepAngles is the 0..180..0 demo trajectory in stepDeg increments.
func sweepAngles(stepDeg float64) []float64 {
	if stepDeg <= 0 {
		stepDeg = 15
	}
	var angles []float64
	for a := 0.0; a <= 180; a += stepDeg {
		angles = append(angles, a)
	}
	for a := 180 - stepDeg; a >= 0; a -= stepDeg {
		angles = append(angles, a)
	}
	return angles
}

func runSweep(ctx context.Context, bot *robot.Robot, autoStop time.Duration) {
	for _, a := range sweepAngles(15) {
		bot.Servo.SetAngle(a)
		if err := bot.Servo.Err(); err != nil {
			log.Fatalf("sweep aborted: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
	}
	holdUntilReleased(ctx, bot)
}

// holdUntilReleased lets the auto-stop timer wind the session down
// instead of cutting the final move short.
func holdUntilReleased(ctx context.Context, bot *robot.Robot) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for bot.Servo.IsRunning() {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
	if err := bot.Servo.Err(); err != nil {
		log.Printf("servo session ended with error: %v", err)
	}
}
