package handshake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deepmodeling/coincell-station/internal/plc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCmd struct {
	mu     sync.Mutex
	writes []bool
	fail   bool
}

func (c *fakeCmd) Write(_ context.Context, value any, _ ...plc.Option) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return true, nil
	}
	c.writes = append(c.writes, value.(bool))
	return false, nil
}

func (c *fakeCmd) recorded() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bool, len(c.writes))
	copy(out, c.writes)
	return out
}

// fakeStatus returns a scripted sequence of (value, fault) samples and
// repeats the final sample once the script is exhausted.
type fakeStatus struct {
	mu      sync.Mutex
	script  []sample
	pos     int
	sampled int
}

type sample struct {
	value bool
	fault bool
}

func (s *fakeStatus) ReadBool(_ context.Context, _ ...plc.Option) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampled++
	if s.pos >= len(s.script) {
		last := s.script[len(s.script)-1]
		return last.value, last.fault
	}
	cur := s.script[s.pos]
	s.pos++
	return cur.value, cur.fault
}

func (s *fakeStatus) samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampled
}

func quick() Config {
	return Config{Interval: time.Millisecond, Timeout: 200 * time.Millisecond}
}

func TestWaitReadyOnFirstSample(t *testing.T) {
	calls := 0
	result := Wait(context.Background(), func(context.Context) (bool, bool) {
		calls++
		return true, false
	}, quick())

	assert.Equal(t, Ready, result)
	assert.Equal(t, 1, calls)
}

func TestWaitPollsUntilReady(t *testing.T) {
	calls := 0
	result := Wait(context.Background(), func(context.Context) (bool, bool) {
		calls++
		return calls >= 4, false
	}, quick())

	assert.Equal(t, Ready, result)
	assert.Equal(t, 4, calls)
}

func TestWaitTimesOut(t *testing.T) {
	result := Wait(context.Background(), func(context.Context) (bool, bool) {
		return false, false
	}, Config{Interval: time.Millisecond, Timeout: 10 * time.Millisecond})

	assert.Equal(t, TimedOut, result)
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Wait(ctx, func(context.Context) (bool, bool) {
		return false, false
	}, quick())

	assert.Equal(t, Cancelled, result)
}

func TestWaitFaultedSamplesKeepPolling(t *testing.T) {
	calls := 0
	result := Wait(context.Background(), func(context.Context) (bool, bool) {
		calls++
		if calls < 3 {
			return false, true
		}
		return true, false
	}, quick())

	assert.Equal(t, Ready, result)
	assert.Equal(t, 3, calls)
}

func TestRunAssertsAndDeassertsExactlyOnce(t *testing.T) {
	cmd := &fakeCmd{}
	status := &fakeStatus{script: []sample{
		{false, false}, {false, false}, {true, false}, // confirm after 3 samples
		{true, false}, {false, false}, // clear after 2 samples
	}}
	h := &Handshake{Name: "start", Cmd: cmd, Status: status, Cfg: quick()}

	require.NoError(t, h.Run(context.Background()))
	assert.Equal(t, []bool{true, false}, cmd.recorded())
	assert.Equal(t, 5, status.samples())
}

func TestRunConfirmTimeout(t *testing.T) {
	cmd := &fakeCmd{}
	status := &fakeStatus{script: []sample{{false, false}}}
	h := &Handshake{Name: "start", Cmd: cmd, Status: status,
		Cfg: Config{Interval: time.Millisecond, Timeout: 10 * time.Millisecond}}

	err := h.Run(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	// Command asserted but never deasserted: the cycle aborted mid-flight.
	assert.Equal(t, []bool{true}, cmd.recorded())
}

func TestRunClearTimeout(t *testing.T) {
	cmd := &fakeCmd{}
	status := &fakeStatus{script: []sample{{true, false}}}
	h := &Handshake{Name: "start", Cmd: cmd, Status: status,
		Cfg: Config{Interval: time.Millisecond, Timeout: 10 * time.Millisecond}}

	err := h.Run(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, []bool{true, false}, cmd.recorded())
}

func TestRunWriteFault(t *testing.T) {
	cmd := &fakeCmd{fail: true}
	status := &fakeStatus{script: []sample{{true, false}}}
	h := &Handshake{Name: "init", Cmd: cmd, Status: status, Cfg: quick()}

	err := h.Run(context.Background())
	require.ErrorIs(t, err, ErrWriteFailed)
	assert.Zero(t, status.samples())
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := &fakeCmd{}
	status := &fakeStatus{script: []sample{{false, false}}}
	h := &Handshake{Name: "start", Cmd: cmd, Status: status,
		Cfg: Config{Interval: time.Millisecond}}

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
