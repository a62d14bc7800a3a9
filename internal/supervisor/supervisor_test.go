package supervisor_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/tapometer/internal/device"
	"codeberg.org/mutker/tapometer/internal/logger"
	"codeberg.org/mutker/tapometer/internal/session"
	"codeberg.org/mutker/tapometer/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error", true); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// steadyPort always connects and reports a constant reading.
type steadyPort struct {
	power device.Milliwatts
}

func (p *steadyPort) Connect(_ context.Context, _ string, _ device.Credentials) (device.Conn, error) {
	return p, nil
}

func (p *steadyPort) ReadPower(_ context.Context) (device.Milliwatts, error) {
	return p.power, nil
}

func (p *steadyPort) Close() error { return nil }

func testConfig(dir string, interval, duration time.Duration) session.Config {
	return session.Config{
		Address:     "192.0.2.10",
		Credentials: device.Credentials{Username: "u", Password: "p"},
		Interval:    interval,
		Duration:    duration,
		OutputDir:   dir,
		OutputName:  "run",
	}
}

func shutdown(t *testing.T, sup *supervisor.Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))
}

func awaitTerminal(t *testing.T, ch <-chan session.Result) session.Result {
	t.Helper()
	select {
	case result := <-ch:
		return result
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for terminal report")
		return session.Result{}
	}
}

func TestStartRejectsWhileActive(t *testing.T) {
	sup := supervisor.New(&steadyPort{power: 100})
	terminal := make(chan session.Result, 1)
	sup.OnTerminal(func(_ supervisor.Handle, result session.Result) { terminal <- result })

	cfg := testConfig(t.TempDir(), 10*time.Millisecond, 10*time.Second)
	_, err := sup.Start(cfg)
	require.NoError(t, err)

	_, err = sup.Start(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_busy")

	sup.Cancel()
	result := awaitTerminal(t, terminal)
	assert.Equal(t, session.Cancelled, result.State,
		"rejected start must not disturb the active session")

	shutdown(t, sup)
}

func TestTerminalFiresOncePerSession(t *testing.T) {
	dir := t.TempDir()
	sup := supervisor.New(&steadyPort{power: 100})

	var terminalCount atomic.Int32
	terminal := make(chan session.Result, 2)
	sup.OnTerminal(func(_ supervisor.Handle, result session.Result) {
		terminalCount.Add(1)
		terminal <- result
	})

	cfg := testConfig(dir, 10*time.Millisecond, 20*time.Millisecond)

	_, err := sup.Start(cfg)
	require.NoError(t, err)
	first := awaitTerminal(t, terminal)
	assert.Equal(t, session.Completed, first.State)
	assert.Equal(t, int32(1), terminalCount.Load())

	// A terminal session frees the slot for the next start, and the second
	// run resolves a distinct output file.
	_, err = sup.Start(cfg)
	require.NoError(t, err)
	second := awaitTerminal(t, terminal)
	assert.Equal(t, session.Completed, second.State)
	assert.Equal(t, int32(2), terminalCount.Load())

	assert.Equal(t, filepath.Join(dir, "run.csv"), first.OutputPath)
	assert.Equal(t, filepath.Join(dir, "run_1.csv"), second.OutputPath)

	shutdown(t, sup)
}

func TestProgressDeliveredInOrder(t *testing.T) {
	sup := supervisor.New(&steadyPort{power: 100})

	var percents []float64
	progressDone := make(chan struct{})
	terminal := make(chan session.Result, 1)
	sup.OnProgress(func(_ supervisor.Handle, update session.ProgressUpdate) {
		percents = append(percents, update.Percent) // dispatch goroutine only
	})
	sup.OnTerminal(func(_ supervisor.Handle, result session.Result) {
		close(progressDone)
		terminal <- result
	})

	_, err := sup.Start(testConfig(t.TempDir(), 10*time.Millisecond, 40*time.Millisecond))
	require.NoError(t, err)
	awaitTerminal(t, terminal)
	<-progressDone

	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}

	shutdown(t, sup)
}

func TestCancelWithoutActiveSessionIsNoop(t *testing.T) {
	sup := supervisor.New(&steadyPort{power: 100})

	assert.NotPanics(t, func() { sup.Cancel() })
	assert.Equal(t, session.Idle, sup.Status())

	shutdown(t, sup)
}

func TestStatusReflectsActiveSession(t *testing.T) {
	sup := supervisor.New(&steadyPort{power: 100})
	terminal := make(chan session.Result, 1)
	sup.OnTerminal(func(_ supervisor.Handle, result session.Result) { terminal <- result })

	require.Equal(t, session.Idle, sup.Status())

	_, err := sup.Start(testConfig(t.TempDir(), 10*time.Millisecond, 10*time.Second))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sup.Status() == session.Running
	}, time.Second, 5*time.Millisecond)

	sup.Cancel()
	awaitTerminal(t, terminal)

	require.Eventually(t, func() bool {
		return sup.Status().Terminal()
	}, time.Second, 5*time.Millisecond)

	shutdown(t, sup)
}

func TestShutdownCancelsActiveSession(t *testing.T) {
	dir := t.TempDir()
	sup := supervisor.New(&steadyPort{power: 100})

	_, err := sup.Start(testConfig(dir, 10*time.Millisecond, 10*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "shutdown cancellation must not write output")

	// A supervisor cannot be reused after shutdown
	_, err = sup.Start(testConfig(dir, 10*time.Millisecond, 20*time.Millisecond))
	require.Error(t, err)
}

func TestStartInvalidConfig(t *testing.T) {
	sup := supervisor.New(&steadyPort{power: 100})

	cfg := testConfig(t.TempDir(), 10*time.Millisecond, 20*time.Millisecond)
	cfg.Address = ""
	_, err := sup.Start(cfg)
	require.Error(t, err)
	assert.Equal(t, session.Idle, sup.Status(),
		"a rejected config must not occupy the session slot")

	shutdown(t, sup)
}
