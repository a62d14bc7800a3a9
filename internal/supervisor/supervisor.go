// Package supervisor is the only boundary between callers (the CLI, a
// presentation layer) and the worker goroutine executing a measurement
// session. It enforces the single-active-session invariant and marshals
// progress and terminal reports onto one dispatch goroutine so callbacks
// are never invoked concurrently.
package supervisor

import (
	"context"
	"sync"

	"codeberg.org/mutker/tapometer/internal/device"
	"codeberg.org/mutker/tapometer/internal/errors"
	"codeberg.org/mutker/tapometer/internal/logger"
	"codeberg.org/mutker/tapometer/internal/session"
	"github.com/google/uuid"
)

// eventBuffer bounds how far dispatch may lag behind the worker. Progress
// updates beyond it are dropped rather than blocking the sampling loop;
// terminal reports are never dropped.
const eventBuffer = 128

// Handle identifies one started session.
type Handle struct {
	ID   uuid.UUID
	done <-chan struct{}
}

// Done is closed when the session's worker goroutine has finished.
func (h Handle) Done() <-chan struct{} {
	return h.done
}

type ProgressFunc func(Handle, session.ProgressUpdate)
type TerminalFunc func(Handle, session.Result)

type event struct {
	handle   Handle
	progress *session.ProgressUpdate
	terminal *session.Result
}

type activeSession struct {
	handle Handle
	sess   *session.Session
	cancel context.CancelFunc
	done   chan struct{}
}

type Supervisor struct {
	port  device.Port
	clock session.Clock

	mu         sync.Mutex
	active     *activeSession
	onProgress ProgressFunc
	onTerminal TerminalFunc
	closed     bool

	events       chan event
	dispatchDone chan struct{}
}

func New(port device.Port) *Supervisor {
	s := &Supervisor{
		port:         port,
		clock:        session.RealClock{},
		events:       make(chan event, eventBuffer),
		dispatchDone: make(chan struct{}),
	}
	go s.dispatch()

	return s
}

// OnProgress registers the progress callback. Register before the first
// Start; the callback runs on the supervisor's dispatch goroutine.
func (s *Supervisor) OnProgress(fn ProgressFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProgress = fn
}

// OnTerminal registers the terminal callback. It fires exactly once per
// started session, on the supervisor's dispatch goroutine.
func (s *Supervisor) OnTerminal(fn TerminalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTerminal = fn
}

// Start validates cfg and hands it to a new worker goroutine. It returns
// immediately: with a session_busy error while a session is non-terminal,
// with a validation error for a bad config, and with a handle otherwise.
func (s *Supervisor) Start(cfg session.Config) (Handle, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Handle{}, errFactory.New(errors.ErrUnavailable)
	}
	if s.active != nil {
		select {
		case <-s.active.done:
			s.active = nil
		default:
			return Handle{}, errFactory.New(session.ErrSessionBusy)
		}
	}

	done := make(chan struct{})
	handle := Handle{ID: uuid.New(), done: done}

	sess, err := session.New(cfg, s.port, &reporter{sup: s, handle: handle}, s.clock)
	if err != nil {
		return Handle{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.active = &activeSession{handle: handle, sess: sess, cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer cancel()
		sess.Run(ctx)
	}()

	logger.Debug().Str("session_id", handle.ID.String()).Msg("Session started")

	return handle, nil
}

// Cancel signals cancellation of the active session and returns without
// waiting for it to reach Cancelled. No-op when no session is active.
func (s *Supervisor) Cancel() {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if active != nil {
		active.cancel()
	}
}

// Status returns the state of the active session, or Idle when none.
func (s *Supervisor) Status() session.State {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if active == nil {
		return session.Idle
	}

	return active.sess.Status()
}

// Shutdown cancels any active session, waits (bounded by ctx) for its
// worker to acknowledge, and stops the dispatch goroutine after all queued
// reports have been delivered.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	errFactory := errors.New()

	s.Cancel()

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if active != nil {
		select {
		case <-active.done:
		case <-ctx.Done():
			return errFactory.Wrap(errors.ErrShutdownFailed, ctx.Err())
		}
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	<-s.dispatchDone

	return nil
}

func (s *Supervisor) dispatch() {
	defer close(s.dispatchDone)

	for ev := range s.events {
		s.mu.Lock()
		onProgress, onTerminal := s.onProgress, s.onTerminal
		s.mu.Unlock()

		switch {
		case ev.progress != nil:
			if onProgress != nil {
				onProgress(ev.handle, *ev.progress)
			}
		case ev.terminal != nil:
			if onTerminal != nil {
				onTerminal(ev.handle, *ev.terminal)
			}
		}
	}
}

// reporter forwards session reports from the worker goroutine into the
// supervisor's event queue.
type reporter struct {
	sup    *Supervisor
	handle Handle
}

func (r *reporter) Progress(update session.ProgressUpdate) {
	select {
	case r.sup.events <- event{handle: r.handle, progress: &update}:
	default:
		logger.Debug().Msg("Progress update dropped, dispatch queue full")
	}
}

func (r *reporter) Terminal(result session.Result) {
	r.sup.events <- event{handle: r.handle, terminal: &result}
}
