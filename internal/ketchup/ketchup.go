// Package ketchup drives the tomato instrument scheduler through its
// ketchup command-line controller. Submission, status queries and
// cancellation are each a single subprocess call; the textual responses
// are parsed by the pure translators in this package.
package ketchup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/aurora-lab/tomato-bridge/internal/invoke"
	"github.com/aurora-lab/tomato-bridge/internal/model"
)

// Scheduler submits, queries and cancels tomato jobs. Safe for
// concurrent use. It holds no long-lived locks: the tomato daemon is the
// sole arbiter of queue consistency.
type Scheduler struct {
	inv invoke.Invoker
	// maxRetries bounds the backoff retries after the first attempt of
	// a transient failure (daemon briefly unavailable).
	maxRetries uint64

	mx   sync.Mutex
	seen map[string]model.JobState // last recognized state per handle
	live map[string]bool           // handle was queued or running at some point
}

type Option func(*Scheduler)

// WithAttempts sets the total invocation attempts for transient failures.
func WithAttempts(n uint64) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxRetries = n - 1
		}
	}
}

func NewScheduler(inv invoke.Invoker, opts ...Option) *Scheduler {
	s := &Scheduler{
		inv:        inv,
		maxRetries: 4, // 5 attempts total
		seen:       make(map[string]model.JobState),
		live:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit hands payload (a path relative to workdir) to ketchup and
// returns the queue handle. A job name is generated when name is empty.
func (s *Scheduler) Submit(ctx context.Context, workdir, payload, name string) (model.JobHandle, error) {
	if name == "" {
		name = "aurora-" + uuid.NewString()[:8]
	}

	res, err := s.run(ctx, workdir, "submit", payload, "--jobname", name)
	if err != nil {
		return model.JobHandle{}, err
	}
	if res.Stderr != "" {
		slog.WarnContext(ctx, "ketchup submit wrote to stderr", "stderr", res.Stderr)
	}
	if res.ExitCode != 0 {
		if Rejected(res.Stdout, res.Stderr) {
			return model.JobHandle{}, fmt.Errorf("%w: %s", model.ErrSubmissionRejected, res.Stderr)
		}
		return model.JobHandle{}, fmt.Errorf("%w: exit %d: %s", model.ErrSubmissionFailed, res.ExitCode, res.Stderr)
	}

	id, err := ParseSubmitOutput(res.Stdout)
	if err != nil {
		return model.JobHandle{}, fmt.Errorf("%w: %v", model.ErrSubmissionFailed, err)
	}

	s.mx.Lock()
	s.seen[id] = model.StateQueued
	s.live[id] = true
	s.mx.Unlock()

	slog.InfoContext(ctx, "submitted job", "jobid", id, "jobname", name)
	return model.JobHandle{ID: id, Name: name}, nil
}

// Status queries the canonical state of a handle. Idempotent and free of
// side effects on tomato; safe to call on every poll tick. Unparseable
// output yields StateUnknown and no error, so the caller retries on its
// next tick. A state regression is surfaced as ErrInconsistentState.
func (s *Scheduler) Status(ctx context.Context, h model.JobHandle) (model.JobState, error) {
	res, err := s.run(ctx, "", "status", h.ID)
	if err != nil {
		return model.StateUnknown, err
	}

	if NotFound(res.Stdout, res.Stderr) {
		// A handle we saw live has dropped out of the queue entirely.
		// One we never saw may simply not have registered yet.
		s.mx.Lock()
		wasLive := s.live[h.ID]
		if wasLive {
			s.seen[h.ID] = model.StateFailed
		}
		s.mx.Unlock()
		if wasLive {
			slog.WarnContext(ctx, "job vanished from queue", "jobid", h.ID)
			return model.StateFailed, nil
		}
		return model.StateUnknown, nil
	}

	if res.ExitCode != 0 {
		slog.WarnContext(ctx, "ketchup status failed",
			"jobid", h.ID, "exit", res.ExitCode, "stderr", res.Stderr)
		return model.StateUnknown, nil
	}

	state := Translate(res.Stdout)
	if state == model.StateUnknown {
		slog.WarnContext(ctx, "unrecognized ketchup status output", "jobid", h.ID)
		return model.StateUnknown, nil
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	if prev, ok := s.seen[h.ID]; ok && state.RegressesFrom(prev) {
		return model.StateUnknown, fmt.Errorf(
			"%w: job %s reported %s after %s", model.ErrInconsistentState, h.ID, state, prev)
	}
	s.seen[h.ID] = state
	if state.Live() {
		s.live[h.ID] = true
	}
	return state, nil
}

// Describe returns the full status entry for a handle, including the
// pipeline assignment and timestamps.
func (s *Scheduler) Describe(ctx context.Context, h model.JobHandle) (JobStatus, error) {
	res, err := s.run(ctx, "", "status", h.ID)
	if err != nil {
		return JobStatus{}, err
	}
	entries, err := ParseStatus(res.Stdout)
	if err != nil {
		return JobStatus{}, err
	}
	if len(entries) == 0 {
		return JobStatus{}, fmt.Errorf("no status entry for job %s", h.ID)
	}
	return entries[0], nil
}

// Queue lists all jobs tomato currently knows about.
func (s *Scheduler) Queue(ctx context.Context) ([]QueueJob, error) {
	res, err := s.run(ctx, "", "status", "queue", "-v")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("ketchup status queue: exit %d: %s", res.ExitCode, res.Stderr)
	}
	return ParseQueue(res.Stdout), nil
}

// Cancel requests termination of a job. Cancellation is asynchronous:
// the caller keeps polling Status until a terminal state appears.
// Cancelling an already-terminal job is a no-op. ErrCancelFailed is
// returned only when ketchup does not recognize a handle that was
// previously queued or running.
func (s *Scheduler) Cancel(ctx context.Context, h model.JobHandle) error {
	res, err := s.run(ctx, "", "cancel", h.ID)
	if err != nil {
		return err
	}

	if res.ExitCode == 0 {
		if res.Stdout != "" || res.Stderr != "" {
			slog.DebugContext(ctx, "ketchup cancel output",
				"jobid", h.ID, "stdout", res.Stdout, "stderr", res.Stderr)
		}
		return nil
	}

	s.mx.Lock()
	wasLive := s.live[h.ID]
	s.mx.Unlock()

	if NotFound(res.Stdout, res.Stderr) && wasLive {
		return fmt.Errorf("%w: job %s unknown to ketchup: %s", model.ErrCancelFailed, h.ID, res.Stderr)
	}

	// Cancelling a job that already reached a terminal state makes
	// ketchup complain; that is still a successful no-op for us.
	slog.DebugContext(ctx, "ketchup cancel refused",
		"jobid", h.ID, "exit", res.ExitCode, "stderr", res.Stderr)
	return nil
}

// run invokes ketchup, retrying transient failures (timeout, failed
// launch) with exponential backoff before surfacing
// ErrSchedulerUnavailable. Semantic failures pass through untouched.
func (s *Scheduler) run(ctx context.Context, dir string, args ...string) (invoke.Result, error) {
	var res invoke.Result
	op := func() error {
		var err error
		res, err = s.inv.Run(ctx, dir, args...)
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrTimeout) || errors.Is(err, model.ErrInvocationFailed) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, model.ErrTimeout) || errors.Is(err, model.ErrInvocationFailed) {
			return res, fmt.Errorf("%w: %v", model.ErrSchedulerUnavailable, err)
		}
		return res, err
	}
	return res, nil
}
