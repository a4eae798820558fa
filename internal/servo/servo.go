// Package servo drives a hobby servo on a GPIO pin with software PWM.
//
// A Supervisor owns one (chip, pin) pair and presents a non-blocking
// position API. The pulse train itself is generated by a dedicated worker
// goroutine (see worker.go) which has exclusive ownership of the GPIO
// line for the duration of a session. Supervisor and worker communicate
// only through channels; no memory is shared across that boundary.
//
// Sessions start lazily on the first position command and end on Stop,
// after the auto-stop window expires with no new commands, or when the
// worker reports a hardware error.
package servo

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	// Standard hobby-servo pulse range, milliseconds.
	minPulseMs = 0.5
	maxPulseMs = 2.5
	midPulseMs = 1.5

	maxAngleDeg = 180.0
)

const (
	stateIdle     = "idle"
	stateStarting = "starting"
	stateRunning  = "running"
	stateStopping = "stopping"
)

var afterFn = time.After

type Config struct {
	// Chip selects /dev/gpiochip<N>.
	Chip int
	// Pin is BCM GPIO numbering.
	Pin int

	// FrequencyHz is the PWM carrier frequency; hobby servos expect 50.
	FrequencyHz int

	// AutoStop releases the line after this long with no position
	// commands. Holding position indefinitely wastes power and keeps the
	// pin claimed.
	AutoStop time.Duration

	// StopTimeout bounds how long Stop waits for the worker to
	// acknowledge before forcing termination.
	StopTimeout time.Duration
}

type Snapshot struct {
	State    string  `json:"state"`
	Chip     int     `json:"chip"`
	Pin      int     `json:"pin"`
	PulseMs  float64 `json:"pulse_ms"`
	AngleDeg float64 `json:"angle_deg"`

	LastCommandAt time.Time `json:"last_command_utc,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Supervisor is the caller-facing servo handle. One Supervisor per
// physical servo; methods are safe for concurrent use.
type Supervisor struct {
	cfg    Config
	period time.Duration

	mu           sync.Mutex
	state        string
	pulseMs      float64
	lastErr      string
	lastCmd      time.Time
	sess         *session
	autoStop     *time.Timer
	pendingStart bool
}

func New(cfg Config) *Supervisor {
	if cfg.Chip < 0 {
		cfg.Chip = 0
	}
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = 50
	}
	if cfg.AutoStop <= 0 {
		cfg.AutoStop = 2 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 1 * time.Second
	}
	return &Supervisor{
		cfg:     cfg,
		period:  time.Second / time.Duration(cfg.FrequencyHz),
		state:   stateIdle,
		pulseMs: midPulseMs,
	}
}

func clampPulseMs(ms float64) float64 {
	if ms < minPulseMs {
		return minPulseMs
	}
	if ms > maxPulseMs {
		return maxPulseMs
	}
	return ms
}

func clampAngleDeg(deg float64) float64 {
	if deg < 0 {
		return 0
	}
	if deg > maxAngleDeg {
		return maxAngleDeg
	}
	return deg
}

// angleToPulseMs maps [0,180] degrees linearly onto [0.5,2.5] ms.
func angleToPulseMs(deg float64) float64 {
	return minPulseMs + (deg/maxAngleDeg)*(maxPulseMs-minPulseMs)
}

func pulseMsToAngle(ms float64) float64 {
	return (ms - minPulseMs) / (maxPulseMs - minPulseMs) * maxAngleDeg
}

// SetPulseWidth commands the given high-time in milliseconds, clamped to
// [0.5, 2.5]. It starts a session if none is active and never blocks the
// caller beyond enqueueing the command. Failures to claim the line are
// reported asynchronously via Err and the log.
func (s *Supervisor) SetPulseWidth(ms float64) {
	ms = clampPulseMs(ms)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulseMs = ms
	s.lastCmd = time.Now().UTC()

	switch s.state {
	case stateStarting, stateRunning:
		s.sess.sendUpdate(ms)
		s.armAutoStopLocked()
	case stateStopping:
		// The line is still claimed by the outgoing worker; restart with
		// the new value once it has settled.
		s.pendingStart = true
	default:
		if _, err := s.startLocked(ms); err != nil {
			log.Printf("servo: %v", err)
		}
	}
}

// SetAngle commands an angle in degrees, clamped to [0, 180].
func (s *Supervisor) SetAngle(deg float64) {
	s.SetPulseWidth(angleToPulseMs(clampAngleDeg(deg)))
}

// PulseWidth returns the last commanded pulse width in milliseconds. It
// is accurate even while a session is still starting.
func (s *Supervisor) PulseWidth() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulseMs
}

// Angle returns the angle recovered from the last commanded pulse width.
func (s *Supervisor) Angle() float64 {
	return pulseMsToAngle(s.PulseWidth())
}

// IsRunning reports whether a session is starting or running.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateStarting || s.state == stateRunning
}

// Err returns the most recent session error, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == "" {
		return nil
	}
	return fmt.Errorf("servo: %s", s.lastErr)
}

func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:         s.state,
		Chip:          s.cfg.Chip,
		Pin:           s.cfg.Pin,
		PulseMs:       s.pulseMs,
		AngleDeg:      pulseMsToAngle(s.pulseMs),
		LastCommandAt: s.lastCmd,
		LastError:     s.lastErr,
	}
}

// Start begins a session at the last commanded pulse width (mid-point
// 1.5 ms if none was ever commanded) and waits for the worker to claim
// the line. It is a no-op if a session is already active.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.state == stateStarting || s.state == stateRunning {
		s.mu.Unlock()
		return nil
	}
	ms := s.pulseMs
	sess, err := s.startLocked(ms)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case err := <-sess.startResult:
		return err
	case <-afterFn(s.cfg.StopTimeout):
		return fmt.Errorf("servo: start not acknowledged within %s", s.cfg.StopTimeout)
	}
}

// Stop ends the active session, waiting up to StopTimeout for the worker
// to acknowledge. On timeout the worker is aborted and the session is
// considered ended regardless; the worker's own cleanup path releases
// the line. Stop on an idle Supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	sess := s.sess
	if sess == nil {
		s.mu.Unlock()
		return
	}
	s.state = stateStopping
	s.mu.Unlock()

	s.stopSession(sess)
}

// Close is the teardown alias for Stop. Safe to call repeatedly and from
// an already-idle state.
func (s *Supervisor) Close() {
	if s == nil {
		return
	}
	s.Stop()
}

// startLocked spawns a fresh worker session. Caller holds s.mu.
func (s *Supervisor) startLocked(ms float64) (*session, error) {
	if err := reserve(s.cfg.Chip, s.cfg.Pin); err != nil {
		s.lastErr = err.Error()
		return nil, err
	}

	sess := newSession()
	s.sess = sess
	s.state = stateStarting
	s.lastErr = ""

	spawnWorkerFn(sess, workerConfig{
		chip:    s.cfg.Chip,
		pin:     s.cfg.Pin,
		period:  s.period,
		initial: pulseDuration(ms),
	})
	go s.monitor(sess)

	s.armAutoStopLocked()
	return sess, nil
}

// monitor consumes worker events for one session and advances the state
// machine. It exits when the session reaches a terminal event or the
// worker goroutine is gone.
func (s *Supervisor) monitor(sess *session) {
	for {
		select {
		case ev := <-sess.events:
			if s.handleEvent(sess, ev) {
				return
			}
		case <-sess.done:
			// Worker exited. Any terminal event it emitted is still
			// buffered; prefer it over a bare exit.
			select {
			case ev := <-sess.events:
				if s.handleEvent(sess, ev) {
					return
				}
			default:
			}
			s.finishSession(sess, "")
			return
		}
	}
}

// handleEvent applies one worker event; reports whether it was terminal.
func (s *Supervisor) handleEvent(sess *session, ev event) bool {
	switch ev.kind {
	case evReady:
		s.mu.Lock()
		if s.sess == sess && s.state == stateStarting {
			s.state = stateRunning
		}
		s.mu.Unlock()
		select {
		case sess.startResult <- nil:
		default:
		}
		return false
	case evError:
		log.Printf("servo: worker error (chip=%d pin=%d): %v", s.cfg.Chip, s.cfg.Pin, ev.err)
		select {
		case sess.startResult <- ev.err:
		default:
		}
		s.finishSession(sess, ev.err.Error())
		return true
	case evStopped:
		s.finishSession(sess, "")
		return true
	}
	return false
}

// stopSession signals stop and waits for the worker up to StopTimeout,
// then forces termination.
func (s *Supervisor) stopSession(sess *session) {
	sess.signalStop()

	select {
	case <-sess.done:
	case <-afterFn(s.cfg.StopTimeout):
		sess.abort.Store(true)
		log.Printf("servo: worker did not acknowledge stop within %s; forcing termination (chip=%d pin=%d)",
			s.cfg.StopTimeout, s.cfg.Chip, s.cfg.Pin)
	}

	s.finishSession(sess, "")
}

// finishSession retires a session exactly once: state back to idle, pin
// reservation released, auto-stop timer disarmed, and any command issued
// while the session was winding down replayed as a fresh start.
func (s *Supervisor) finishSession(sess *session, errMsg string) {
	sess.finishOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.sess == sess {
			s.sess = nil
			s.state = stateIdle
		}
		if errMsg != "" {
			s.lastErr = errMsg
		}
		if s.autoStop != nil {
			s.autoStop.Stop()
		}
		release(s.cfg.Chip, s.cfg.Pin)

		if s.pendingStart {
			s.pendingStart = false
			if _, err := s.startLocked(s.pulseMs); err != nil {
				log.Printf("servo: %v", err)
			}
		}
	})
}

func (s *Supervisor) armAutoStopLocked() {
	if s.autoStop == nil {
		s.autoStop = time.AfterFunc(s.cfg.AutoStop, s.autoStopFire)
		return
	}
	s.autoStop.Reset(s.cfg.AutoStop)
}

func (s *Supervisor) autoStopFire() {
	s.mu.Lock()
	sess := s.sess
	if sess == nil || (s.state != stateRunning && s.state != stateStarting) {
		s.mu.Unlock()
		return
	}
	s.state = stateStopping
	s.mu.Unlock()

	log.Printf("servo: auto-stop after %s without commands (chip=%d pin=%d)",
		s.cfg.AutoStop, s.cfg.Chip, s.cfg.Pin)
	s.stopSession(sess)
}

func pulseDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// The GPIO line is not a shareable resource: exactly one session may
// drive a (chip, pin) pair at a time, across all Supervisors in the
// process.
var (
	reservedMu sync.Mutex
	reserved   = map[[2]int]bool{}
)

func reserve(chip, pin int) error {
	reservedMu.Lock()
	defer reservedMu.Unlock()
	key := [2]int{chip, pin}
	if reserved[key] {
		return fmt.Errorf("gpio %d:%d is already driven by another servo session", chip, pin)
	}
	reserved[key] = true
	return nil
}

func release(chip, pin int) {
	reservedMu.Lock()
	defer reservedMu.Unlock()
	delete(reserved, [2]int{chip, pin})
}
