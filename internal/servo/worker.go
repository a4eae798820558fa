package servo

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"pibot/internal/gpio"
)

// Test seams.
var (
	openLineFn    = defaultOpenLine
	spawnWorkerFn = spawnWorker
	sleepFn       = time.Sleep
)

const lineConsumer = "pibot-servo"

// spinThreshold is the residue of each period that is busy-waited rather
// than slept. time.Sleep granularity on a stock kernel is roughly a
// millisecond, far too coarse for the high pulse; spending the last
// sub-millisecond of every wait spinning keeps edges accurate without
// burning CPU for the whole idle tail of the period.
const spinThreshold = time.Millisecond

func defaultOpenLine(chip, pin int, consumer string) (gpio.Line, error) {
	return gpio.Open(chip, pin, consumer)
}

type workerConfig struct {
	chip    int
	pin     int
	period  time.Duration
	initial time.Duration
}

type eventKind int

const (
	evReady eventKind = iota
	evStopped
	evError
)

type event struct {
	kind eventKind
	err  error
}

// session is the channel plumbing for one worker goroutine. The worker
// reads updates and stopCh; the supervisor side reads events and done.
type session struct {
	updates chan float64
	stopCh  chan struct{}
	events  chan event

	// done closes when the worker goroutine has exited and the line is
	// released (or was never claimed).
	done chan struct{}

	// abort is the forced-termination flag, polled inside the busy-wait
	// loops so a wedged session still exits within a clock tick.
	abort atomic.Bool

	startResult chan error

	stopOnce   sync.Once
	finishOnce sync.Once
}

func newSession() *session {
	return &session{
		updates:     make(chan float64, 1),
		stopCh:      make(chan struct{}),
		events:      make(chan event, 4),
		done:        make(chan struct{}),
		startResult: make(chan error, 1),
	}
}

// sendUpdate queues a pulse-width update, replacing any not-yet-applied
// one. Only the newest value matters; the worker applies it at the next
// period boundary.
func (w *session) sendUpdate(ms float64) {
	for {
		select {
		case w.updates <- ms:
			return
		default:
		}
		select {
		case <-w.updates:
		default:
		}
	}
}

func (w *session) signalStop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func spawnWorker(sess *session, cfg workerConfig) {
	go sess.run(cfg)
}

// run is the worker goroutine: claim the line, generate the pulse train,
// release the line. The line must end up low and released on every exit
// path, including a panic inside the loop.
func (w *session) run(cfg workerConfig) {
	defer close(w.done)

	// Busy-wait timing needs a thread of its own; don't let the runtime
	// migrate or multiplex this goroutine.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	line, err := openLineFn(cfg.chip, cfg.pin, lineConsumer)
	if err != nil {
		w.events <- event{kind: evError, err: fmt.Errorf("claim gpio %d:%d: %w", cfg.chip, cfg.pin, err)}
		return
	}

	// The terminal event is emitted only after the line is low and
	// released, so the supervisor never sees a retired session whose pin
	// is still claimed.
	var final *event
	defer func() {
		_ = line.Close()
		if r := recover(); r != nil {
			w.events <- event{kind: evError, err: fmt.Errorf("worker panic: %v", r)}
			return
		}
		if final != nil {
			w.events <- *final
		}
	}()

	bumpSchedPriority()

	w.events <- event{kind: evReady}

	pulse := cfg.initial
	for !w.abort.Load() {
		start := time.Now()

		if err := line.SetValue(1); err != nil {
			final = &event{kind: evError, err: fmt.Errorf("drive gpio %d:%d high: %w", cfg.chip, cfg.pin, err)}
			return
		}
		w.spinUntil(start.Add(pulse))
		if err := line.SetValue(0); err != nil {
			final = &event{kind: evError, err: fmt.Errorf("drive gpio %d:%d low: %w", cfg.chip, cfg.pin, err)}
			return
		}

		w.hybridWait(start.Add(cfg.period))

		// Stop wins over a pending update; both are applied only at
		// period boundaries, never mid-pulse.
		select {
		case <-w.stopCh:
			final = &event{kind: evStopped}
			return
		default:
		}
		select {
		case ms := <-w.updates:
			pulse = pulseDuration(ms)
		default:
		}
	}
}

// spinUntil busy-waits on the monotonic clock until deadline. This is
// what holds the high pulse accurate to well under a millisecond.
func (w *session) spinUntil(deadline time.Time) {
	for time.Now().Before(deadline) {
		if w.abort.Load() {
			return
		}
	}
}

// hybridWait covers the idle remainder of a period: sleep through the
// coarse bulk, spin the final sub-millisecond residue.
func (w *session) hybridWait(deadline time.Time) {
	if rem := time.Until(deadline); rem > spinThreshold {
		sleepFn(rem - spinThreshold)
	}
	w.spinUntil(deadline)
}
