package stream

import (
	"strings"
	"time"
)

// debouncer coalesces rapid thinking deltas. Each add restarts the timer;
// the pending text is taken when the timer fires or before any other event
// is emitted, so coalescing never reorders output.
type debouncer struct {
	delay   time.Duration
	timer   *time.Timer
	pending strings.Builder
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

func (d *debouncer) add(delta string) {
	d.pending.WriteString(delta)
	if d.delay <= 0 {
		return
	}

	if d.timer == nil {
		d.timer = time.NewTimer(d.delay)
		return
	}
	d.stopTimer()
	d.timer.Reset(d.delay)
}

// C is nil while nothing is pending, which disables its select case
func (d *debouncer) C() <-chan time.Time {
	if d.timer == nil || d.pending.Len() == 0 {
		return nil
	}
	return d.timer.C
}

// immediate reports whether deltas must be flushed without waiting
func (d *debouncer) immediate() bool {
	return d.delay <= 0
}

func (d *debouncer) take() string {
	s := d.pending.String()
	d.pending.Reset()
	d.stopTimer()
	return s
}

func (d *debouncer) stopTimer() {
	if d.timer != nil && !d.timer.Stop() {
		select {
		case <-d.timer.C:
		default:
		}
	}
}
