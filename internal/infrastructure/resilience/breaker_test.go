package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1700000000, 0)}
	b := New("test", Settings{Threshold: threshold, Cooldown: cooldown})
	b.now = c.now
	return b, c
}

var errFail = errors.New("failed")

func fail() error    { return errFail }
func succeed() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		calls    []func() error
		expected State
	}{
		{name: "stays closed on successes", calls: []func() error{succeed, succeed}, expected: StateClosed},
		{name: "stays closed below threshold", calls: []func() error{fail, fail}, expected: StateClosed},
		{name: "opens at threshold", calls: []func() error{fail, fail, fail}, expected: StateOpen},
		{name: "success resets failures", calls: []func() error{fail, fail, succeed, fail, fail}, expected: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(3, time.Minute)
			for _, call := range tt.calls {
				_ = b.Do(call)
			}
			assert.Equal(t, tt.expected, b.State())
		})
	}
}

func TestBreakerOpenRejects(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	require.ErrorIs(t, b.Do(fail), errFail)

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, c := newTestBreaker(1, time.Minute)
	_ = b.Do(fail)

	c.advance(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		_ = b.Do(fail)
	}

	c.advance(time.Minute)
	assert.ErrorIs(t, b.Do(fail), errFail)
	assert.Equal(t, StateOpen, b.State())

	c.advance(30 * time.Second)
	assert.ErrorIs(t, b.Do(succeed), ErrOpen)
}

func TestBreakerSingleProbe(t *testing.T) {
	b, c := newTestBreaker(1, time.Minute)
	_ = b.Do(fail)
	c.advance(time.Minute)

	err := b.Do(func() error {
		assert.ErrorIs(t, b.Do(succeed), ErrOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	assert.Panics(t, func() {
		_ = b.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string
	c := &clock{t: time.Unix(1700000000, 0)}
	b := New("watchers", Settings{
		Threshold: 1,
		Cooldown:  time.Second,
		OnStateChange: func(name string, from, to State) {
			assert.Equal(t, "watchers", name)
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	b.now = c.now

	_ = b.Do(fail)
	c.advance(time.Second)
	_ = b.Do(succeed)

	assert.Equal(t, []string{"closed->open", "half-open->closed"}, transitions)
}
