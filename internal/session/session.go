// Package session implements the measurement core: a cancellable,
// fixed-cadence polling loop over a device port, with all-or-nothing CSV
// persistence on clean completion.
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/tapometer/internal/device"
	"codeberg.org/mutker/tapometer/internal/errors"
	"codeberg.org/mutker/tapometer/internal/logger"
)

// deviceTimeout bounds every device operation: the setup connect and each
// single power reading.
const deviceTimeout = 5 * time.Second

// ProgressUpdate is delivered once per recorded sample, plus a final 100%
// update on natural completion.
type ProgressUpdate struct {
	Percent          float64
	RemainingSeconds int
	Line             string
}

// Result describes how a session ended. Err is set only when State is
// Failed; OutputPath is set only when State is Completed.
type Result struct {
	State      State
	OutputPath string
	Samples    int
	Err        error
}

// Reporter receives progress and the single terminal report of a session.
// Both are invoked from the session's worker goroutine; the supervisor
// marshals them onto its dispatch goroutine before they reach callers.
type Reporter interface {
	Progress(ProgressUpdate)
	Terminal(Result)
}

type noopReporter struct{}

func (noopReporter) Progress(ProgressUpdate) {}
func (noopReporter) Terminal(Result)         {}

// Session runs one measurement from start to a terminal state. It
// exclusively owns its sink and state; the device port and reporter are
// borrowed capabilities.
type Session struct {
	cfg      Config
	port     device.Port
	reporter Reporter
	clock    Clock
	sink     *Sink
	state    atomic.Int32
}

// New validates cfg and returns a session in the Idle state. Validation
// failures are reported without touching the device port.
func New(cfg Config, port device.Port, reporter Reporter, clock Clock) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reporter == nil {
		reporter = noopReporter{}
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &Session{
		cfg:      cfg,
		port:     port,
		reporter: reporter,
		clock:    clock,
		sink:     NewSink(),
	}, nil
}

// Status returns the current lifecycle state. Safe to call from any
// goroutine.
func (s *Session) Status() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	logger.Debug().Str("state", state.String()).Msg("Session state changed")
}

// Run executes the session until it reaches a terminal state and reports
// that state through the reporter exactly once. Run must be called once,
// on a dedicated goroutine. Cancelling ctx stops the session without
// writing any output.
func (s *Session) Run(ctx context.Context) Result {
	result := s.run(ctx)
	s.setState(result.State)
	s.reporter.Terminal(result)

	return result
}

func (s *Session) run(ctx context.Context) Result {
	errFactory := errors.New()

	outputPath, err := ResolveOutputPath(s.cfg.OutputDir, s.cfg.OutputName)
	if err != nil {
		return Result{State: Failed, Err: err}
	}

	s.setState(Connecting)
	conn, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{State: Cancelled}
		}
		return Result{State: Failed, Err: errFactory.Wrap(ErrDeviceUnreachable, err)}
	}
	defer conn.Close()

	sched := NewSchedule(s.clock, s.cfg.Interval, s.cfg.Duration)
	s.setState(Running)

	// Fallback-on-error: a failed read reuses the last good value so the
	// sample cadence survives transient device flakiness. Before any read
	// has succeeded the fallback is 0 mW.
	var lastPower device.Milliwatts

	for tick := 0; sched.TickDue(tick); tick++ {
		select {
		case <-ctx.Done():
			return s.cancelled()
		default:
		}

		power, err := s.readPower(ctx, conn)
		if err != nil {
			logger.Warn().
				Err(err).
				Int("tick", tick).
				Int64("fallback_mw", int64(lastPower)).
				Msg("Power read failed, reusing last reading")
		} else {
			lastPower = power
		}

		now := s.clock.Now()
		s.sink.Append(Sample{Timestamp: now, Power: lastPower})
		s.reporter.Progress(ProgressUpdate{
			Percent:          sched.Percent(),
			RemainingSeconds: int(sched.Remaining() / time.Second),
			Line:             fmt.Sprintf("%s - Power: %dmW", now.Format(TimestampLayout), lastPower),
		})

		if !s.waitUntil(ctx, sched.Deadline(tick+1)) {
			return s.cancelled()
		}
	}

	s.reporter.Progress(ProgressUpdate{Percent: 100, RemainingSeconds: 0})

	if err := s.sink.WriteCSV(outputPath); err != nil {
		return Result{State: Failed, Samples: s.sink.Len(), Err: err}
	}

	return Result{State: Completed, OutputPath: outputPath, Samples: s.sink.Len()}
}

func (s *Session) connect(ctx context.Context) (device.Conn, error) {
	connectCtx, cancel := context.WithTimeout(ctx, deviceTimeout)
	defer cancel()

	return s.port.Connect(connectCtx, s.cfg.Address, s.cfg.Credentials)
}

func (s *Session) readPower(ctx context.Context, conn device.Conn) (device.Milliwatts, error) {
	readCtx, cancel := context.WithTimeout(ctx, deviceTimeout)
	defer cancel()

	power, err := conn.ReadPower(readCtx)
	if err != nil {
		return 0, errors.New().Wrap(ErrSampleReadFailed, err)
	}

	return power, nil
}

// waitUntil sleeps until deadline or cancellation, whichever comes first.
// Returns false when the wait was interrupted by cancellation.
func (s *Session) waitUntil(ctx context.Context, deadline time.Time) bool {
	wait := deadline.Sub(s.clock.Now())
	if wait <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// cancelled discards all accumulated samples: partial output files would be
// ambiguous about completeness, so cancellation writes nothing.
func (s *Session) cancelled() Result {
	s.setState(Cancelling)

	return Result{State: Cancelled, Samples: s.sink.Len()}
}
