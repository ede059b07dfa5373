package typing

import (
	"sync"
	"time"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
)

const DefaultWordThreshold = 3

// AnimationState is what a view renders. Once IsAnimating is false
// DisplayedText is the full text.
type AnimationState struct {
	DisplayedText string
	IsAnimating   bool
	IsCancellable bool
}

// Option configures an Animator
type Option func(*Animator)

// WithWordThreshold sets the token count at or below which text is shown
// without animating
func WithWordThreshold(n int) Option {
	return func(a *Animator) {
		if n < 0 {
			n = 0
		}
		a.threshold = n
	}
}

// WithSpeed scales every delay; see TokenDelay
func WithSpeed(speed float64) Option {
	return func(a *Animator) { a.speed = speed }
}

// Animator reveals one text at a time on timers. All methods are safe for
// concurrent use. onUpdate may read State but must not call Play or Skip.
type Animator struct {
	threshold int
	speed     float64
	onUpdate  func(AnimationState)

	mu        sync.Mutex
	full      string
	tokens    []string
	next      int
	shown     string
	animating bool
	closed    bool
	timer     *time.Timer
	done      chan struct{}
	// gen fences timers armed for an earlier Play
	gen uint64
	// seq orders snapshots so a late notification never overwrites a newer one
	seq uint64

	notifyMu sync.Mutex
	notified uint64
}

// New creates an animator that reports every state change to onUpdate
func New(onUpdate func(AnimationState), opts ...Option) *Animator {
	done := make(chan struct{})
	close(done)

	a := &Animator{
		threshold: DefaultWordThreshold,
		speed:     1,
		onUpdate:  onUpdate,
		done:      done,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromConfig creates an animator from the typing settings
func NewFromConfig(cfg config.TypingConfig, onUpdate func(AnimationState)) *Animator {
	return New(onUpdate, WithWordThreshold(cfg.WordThreshold), WithSpeed(cfg.Speed))
}

// Play starts revealing text, abandoning any reveal in progress. Short and
// empty texts are shown at once.
func (a *Animator) Play(text string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}

	a.stopLocked()
	a.gen++
	closeOnce(a.done)
	a.full = text
	a.tokens = Tokenize(text)
	a.next = 0
	a.shown = ""
	a.done = make(chan struct{})

	if len(a.tokens) == 0 || len(a.tokens) <= a.threshold {
		a.finishLocked()
	} else {
		a.animating = true
		a.revealLocked(a.gen)
	}

	state, seq := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(state, seq)
}

// Skip shows the full text and stops the reveal. It is a no-op when nothing
// is animating.
func (a *Animator) Skip() {
	a.mu.Lock()
	if !a.animating {
		a.mu.Unlock()
		return
	}

	a.stopLocked()
	a.gen++
	a.finishLocked()

	state, seq := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(state, seq)
}

// Close stops all timers for good. The state completes silently and later
// calls to Play are ignored.
func (a *Animator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	a.stopLocked()
	a.gen++
	if a.animating {
		a.finishLocked()
	}
}

func (a *Animator) State() AnimationState {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, _ := a.snapshotLocked()
	return state
}

// Done is closed when the current text is fully shown
func (a *Animator) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

func (a *Animator) tick(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || !a.animating {
		a.mu.Unlock()
		return
	}

	a.revealLocked(gen)

	state, seq := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(state, seq)
}

// revealLocked appends the next token and arms the timer for the one after
func (a *Animator) revealLocked(gen uint64) {
	token := a.tokens[a.next]
	a.shown += token
	a.next++

	if a.next >= len(a.tokens) {
		a.finishLocked()
		return
	}
	a.timer = time.AfterFunc(TokenDelay(token, a.speed), func() { a.tick(gen) })
}

func (a *Animator) finishLocked() {
	a.shown = a.full
	a.next = len(a.tokens)
	a.animating = false
	a.timer = nil
	closeOnce(a.done)
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (a *Animator) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Animator) snapshotLocked() (AnimationState, uint64) {
	a.seq++
	return AnimationState{
		DisplayedText: a.shown,
		IsAnimating:   a.animating,
		IsCancellable: a.animating,
	}, a.seq
}

func (a *Animator) notify(state AnimationState, seq uint64) {
	if a.onUpdate == nil {
		return
	}

	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	if seq <= a.notified {
		return
	}
	a.notified = seq
	a.onUpdate(state)
}
