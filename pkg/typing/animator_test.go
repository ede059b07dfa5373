package typing

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
)

type updates struct {
	mu     sync.Mutex
	states []AnimationState
}

func (u *updates) record(s AnimationState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.states = append(u.states, s)
}

func (u *updates) all() []AnimationState {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]AnimationState, len(u.states))
	copy(out, u.states)
	return out
}

func waitDone(t *testing.T, a *Animator) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("animation did not finish")
	}
}

func TestTokenize(t *testing.T) {
	texts := []string{
		"",
		"Hi there",
		"  leading and trailing  ",
		"## Heading\n\n- item one\n- item two\t\tend.",
		"multi\r\nline  text with   gaps",
	}

	for _, text := range texts {
		assert.Equal(t, text, strings.Join(Tokenize(text), ""))
	}

	assert.Equal(t, []string{"Hi", " ", "there"}, Tokenize("Hi there"))
	assert.Empty(t, Tokenize(""))
}

func TestTokenDelay(t *testing.T) {
	tests := []struct {
		token string
		want  time.Duration
	}{
		{" ", WhitespaceDelay},
		{"\n\n", WhitespaceDelay},
		{"end.", SentenceDelay},
		{"really?", SentenceDelay},
		{"however,", ClauseDelay},
		{"note:", ClauseDelay},
		{"##", MarkupDelay},
		{"-", MarkupDelay},
		{"`code`", MarkupDelay},
		{"word", WordDelay},
		{"elevenchars", MediumWordDelay},
		{"sixteencharacter", LongWordDelay},
		{"extraordinarily.", SentenceDelay},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TokenDelay(tt.token, 1), "token %q", tt.token)
	}

	assert.Equal(t, WordDelay/2, TokenDelay("word", 2))
	assert.Equal(t, WordDelay, TokenDelay("word", 0))
}

func TestAnimator(t *testing.T) {
	const text = "The lease, signed in 2019, ends in May. Renewal requires notice."

	t.Run("should reveal text progressively and end on the full text", func(t *testing.T) {
		u := &updates{}
		a := New(u.record, WithSpeed(50))
		defer a.Close()

		a.Play(text)
		waitDone(t, a)

		states := u.all()
		require.Greater(t, len(states), 2)
		for _, s := range states {
			assert.True(t, strings.HasPrefix(text, s.DisplayedText), "%q is not a prefix", s.DisplayedText)
		}

		final := a.State()
		assert.False(t, final.IsAnimating)
		assert.Equal(t, text, final.DisplayedText)
	})

	t.Run("should reconstruct the text from the appended tokens", func(t *testing.T) {
		u := &updates{}
		a := New(u.record, WithSpeed(50))
		defer a.Close()

		a.Play(text)
		waitDone(t, a)

		var appended strings.Builder
		prev := ""
		for _, s := range u.all() {
			appended.WriteString(strings.TrimPrefix(s.DisplayedText, prev))
			prev = s.DisplayedText
		}
		assert.Equal(t, text, appended.String())
	})

	t.Run("should show short text immediately", func(t *testing.T) {
		u := &updates{}
		a := New(u.record)

		a.Play("Hi there")

		state := a.State()
		assert.Equal(t, "Hi there", state.DisplayedText)
		assert.False(t, state.IsAnimating)
		assert.False(t, state.IsCancellable)
		assert.Len(t, u.all(), 1)
		assert.Equal(t, "Hi there", u.all()[0].DisplayedText)
	})

	t.Run("should show empty text immediately", func(t *testing.T) {
		a := New(nil)

		a.Play("")

		assert.Equal(t, AnimationState{}, a.State())
		select {
		case <-a.Done():
		default:
			t.Fatal("empty text should finish at once")
		}
	})

	t.Run("should show empty text with a negative threshold", func(t *testing.T) {
		for _, a := range []*Animator{
			New(nil, WithWordThreshold(-1)),
			NewFromConfig(config.TypingConfig{Enabled: true, WordThreshold: -5, Speed: 1}, nil),
		} {
			assert.Equal(t, 0, a.threshold)
			require.NotPanics(t, func() { a.Play("") })
			assert.Equal(t, AnimationState{}, a.State())
			select {
			case <-a.Done():
			default:
				t.Fatal("empty text should finish at once")
			}
		}
	})

	t.Run("should jump to the full text on skip", func(t *testing.T) {
		u := &updates{}
		a := New(u.record, WithSpeed(0.01))
		defer a.Close()

		a.Play(text)
		state := a.State()
		require.True(t, state.IsAnimating)
		assert.True(t, state.IsCancellable)
		assert.NotEqual(t, text, state.DisplayedText)

		a.Skip()

		assert.Equal(t, AnimationState{DisplayedText: text}, a.State())
		waitDone(t, a)

		count := len(u.all())
		time.Sleep(50 * time.Millisecond)
		assert.Len(t, u.all(), count, "no reveal may fire after skip")
		assert.Equal(t, text, u.all()[count-1].DisplayedText)
	})

	t.Run("should ignore skip when idle or finished", func(t *testing.T) {
		u := &updates{}
		a := New(u.record)

		assert.NotPanics(t, a.Skip)
		a.Play("Hi there")
		a.Skip()

		assert.Len(t, u.all(), 1)
	})

	t.Run("should abandon a reveal when replayed", func(t *testing.T) {
		a := New(nil, WithSpeed(0.01))
		defer a.Close()

		a.Play(text)
		first := a.Done()
		a.Play("Short one")

		select {
		case <-first:
		default:
			t.Fatal("the abandoned reveal should be released")
		}
		assert.Equal(t, "Short one", a.State().DisplayedText)
	})

	t.Run("should stop timers on close", func(t *testing.T) {
		u := &updates{}
		a := New(u.record, WithSpeed(0.5))

		a.Play(text)
		a.Close()
		count := len(u.all())

		time.Sleep(100 * time.Millisecond)
		assert.Len(t, u.all(), count)
		assert.Equal(t, text, a.State().DisplayedText)

		a.Play("ignored after close")
		assert.Equal(t, text, a.State().DisplayedText)
	})

	t.Run("should honour the configured threshold", func(t *testing.T) {
		a := NewFromConfig(config.TypingConfig{Enabled: true, WordThreshold: 100, Speed: 1}, nil)

		a.Play(text)

		assert.Equal(t, text, a.State().DisplayedText)
		assert.False(t, a.State().IsAnimating)
	})
}
