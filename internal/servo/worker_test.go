package servo

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"pibot/internal/gpio"
)

func installLine(t *testing.T, l *fakeLine, err error) {
	t.Helper()
	old := openLineFn
	openLineFn = func(chip, pin int, consumer string) (gpio.Line, error) {
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	t.Cleanup(func() { openLineFn = old })
}

func waitEvent(t *testing.T, sess *session, want eventKind) event {
	t.Helper()
	select {
	case ev := <-sess.events:
		if ev.kind != want {
			t.Fatalf("event kind=%d err=%v, want kind=%d", ev.kind, ev.err, want)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event kind=%d", want)
		return event{}
	}
}

func TestWorker_PulseTrainShape(t *testing.T) {
	l := &fakeLine{}
	installLine(t, l, nil)

	sess := newSession()
	spawnWorker(sess, workerConfig{
		pin:     18,
		period:  10 * time.Millisecond,
		initial: pulseDuration(1.5),
	})

	waitEvent(t, sess, evReady)
	time.Sleep(60 * time.Millisecond)
	sess.signalStop()

	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not exit after stop")
	}
	waitEvent(t, sess, evStopped)

	writes := l.snapshotWrites()
	if len(writes) < 4 {
		t.Fatalf("only %d line writes recorded, want at least two periods", len(writes))
	}
	if !l.isClosed() {
		t.Fatalf("line not released after stop")
	}
	if writes[len(writes)-1].v != 0 {
		t.Fatalf("last line write=%d, want low", writes[len(writes)-1].v)
	}

	// Edges must strictly alternate high/low, and each high interval
	// must hold for at least the commanded pulse width. The upper bound
	// is generous: the spin guarantees the minimum, the scheduler only
	// ever stretches it.
	for i, w := range writes {
		want := 1 - i%2
		if w.v != want {
			t.Fatalf("write %d value=%d, want %d (alternating)", i, w.v, want)
		}
	}
	pulse := pulseDuration(1.5)
	for i := 0; i+1 < len(writes); i += 2 {
		high := writes[i+1].at.Sub(writes[i].at)
		if high < pulse-500*time.Microsecond {
			t.Fatalf("high interval %d lasted %v, want >= %v", i/2, high, pulse)
		}
		if high > 30*time.Millisecond {
			t.Fatalf("high interval %d lasted %v, never came back low", i/2, high)
		}
	}
}

func TestWorker_UpdateAppliedAtPeriodBoundary(t *testing.T) {
	l := &fakeLine{}
	installLine(t, l, nil)

	sess := newSession()
	spawnWorker(sess, workerConfig{
		pin:     18,
		period:  10 * time.Millisecond,
		initial: pulseDuration(0.5),
	})
	waitEvent(t, sess, evReady)

	sess.sendUpdate(2.5)
	time.Sleep(80 * time.Millisecond)
	sess.signalStop()
	<-sess.done
	waitEvent(t, sess, evStopped)

	writes := l.snapshotWrites()
	if len(writes) < 4 {
		t.Fatalf("only %d line writes recorded", len(writes))
	}
	// The tail of the train must reflect the updated width.
	last := len(writes) - 1
	if writes[last].v != 0 {
		last--
	}
	high := writes[last].at.Sub(writes[last-1].at)
	if high < pulseDuration(2.5)-500*time.Microsecond {
		t.Fatalf("final high interval %v, want >= 2.5ms after update", high)
	}
}

func TestWorker_ClaimFailure(t *testing.T) {
	installLine(t, nil, fmt.Errorf("permission denied"))

	sess := newSession()
	spawnWorker(sess, workerConfig{pin: 18, period: 10 * time.Millisecond, initial: pulseDuration(1.5)})

	ev := waitEvent(t, sess, evError)
	if !strings.Contains(ev.err.Error(), "permission denied") {
		t.Fatalf("error=%v, want claim failure", ev.err)
	}
	select {
	case <-sess.done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not exit after claim failure")
	}
}

func TestWorker_ReleasesLineOnPanic(t *testing.T) {
	l := &fakeLine{panicAfter: 3}
	installLine(t, l, nil)

	sess := newSession()
	spawnWorker(sess, workerConfig{pin: 18, period: 5 * time.Millisecond, initial: pulseDuration(1.0)})
	waitEvent(t, sess, evReady)

	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not exit after panic")
	}
	ev := waitEvent(t, sess, evError)
	if !strings.Contains(ev.err.Error(), "panic") {
		t.Fatalf("error=%v, want panic report", ev.err)
	}
	if !l.isClosed() {
		t.Fatalf("line not released on the panic path")
	}
}

func TestWorker_AbortExitsMidSpin(t *testing.T) {
	l := &fakeLine{}
	installLine(t, l, nil)

	sess := newSession()
	spawnWorker(sess, workerConfig{
		pin:     18,
		period:  500 * time.Millisecond, // long period so the abort lands mid-wait
		initial: pulseDuration(2.5),
	})
	waitEvent(t, sess, evReady)

	time.Sleep(5 * time.Millisecond)
	sess.abort.Store(true)

	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not exit after abort")
	}
	if !l.isClosed() {
		t.Fatalf("line not released after abort")
	}
}

func TestSendUpdate_CoalescesToLatest(t *testing.T) {
	sess := newSession()
	sess.sendUpdate(1.0)
	sess.sendUpdate(2.0)
	sess.sendUpdate(2.5)

	select {
	case ms := <-sess.updates:
		if ms != 2.5 {
			t.Fatalf("queued update=%v, want latest 2.5", ms)
		}
	default:
		t.Fatalf("no update queued")
	}
	select {
	case ms := <-sess.updates:
		t.Fatalf("extra update %v queued, want exactly one", ms)
	default:
	}
}
