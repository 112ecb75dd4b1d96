// Package monitor watches a running experiment's snapshot stream and
// requests early termination once a stopping criterion is satisfied.
//
// The monitor owns no goroutines and no timers: the caller drives it by
// invoking Tick on its own cadence, which keeps cancellation and error
// surfaces synchronous.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aurora-lab/tomato-bridge/internal/cycling"
	"github.com/aurora-lab/tomato-bridge/internal/model"
)

// State of the watcher.
type State string

const (
	// Watching: the job is live and the criterion has not fired.
	Watching State = "watching"
	// Triggered: the criterion fired and cancellation was requested;
	// waiting for the job to settle.
	Triggered State = "triggered"
	// Done: the job reached a terminal state, nothing left to watch.
	Done State = "done"
)

// JobController is the slice of the scheduler adapter the monitor needs.
type JobController interface {
	Status(ctx context.Context, h model.JobHandle) (model.JobState, error)
	Cancel(ctx context.Context, h model.JobHandle) error
}

type Option func(*Monitor)

// Strict makes a malformed snapshot record fail the monitoring session
// instead of being skipped.
func Strict() Option {
	return func(m *Monitor) { m.strict = true }
}

// Monitor is the poll-driven stopping-criterion watcher for one job.
type Monitor struct {
	ctrl   JobController
	handle model.JobHandle
	reader *cycling.Reader
	crit   model.StoppingCriterion
	strict bool

	state    State
	stopped  bool
	caps     cycling.Capacities
	records  []model.MeasurementRecord
	jobState model.JobState
}

// New validates the criterion and returns a watcher in the Watching
// state. reader should point at the job's snapshot file.
func New(ctrl JobController, h model.JobHandle, reader *cycling.Reader, crit model.StoppingCriterion, opts ...Option) (*Monitor, error) {
	if err := cycling.Validate(crit); err != nil {
		return nil, err
	}
	m := &Monitor{
		ctrl:     ctrl,
		handle:   h,
		reader:   reader,
		crit:     crit,
		state:    Watching,
		jobState: model.StateUnknown,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Monitor) State() State { return m.state }

// JobState returns the job state observed on the last tick.
func (m *Monitor) JobState() model.JobState { return m.jobState }

// Stopped reports whether this monitor requested the cancellation.
func (m *Monitor) Stopped() bool { return m.stopped }

// Records returns every record ingested so far. The slice is shared;
// callers must not mutate it while ticking continues.
func (m *Monitor) Records() []model.MeasurementRecord { return m.records }

// Tick performs one poll: observe the job state, ingest new snapshot
// records, evaluate the criterion, and request cancellation when it
// fires. Cancellation is requested exactly once; afterwards the monitor
// waits for the job to settle. ErrInconsistentState and (in strict mode)
// ErrMalformedRecord are fatal to the session.
func (m *Monitor) Tick(ctx context.Context) (State, error) {
	if m.state == Done {
		return Done, nil
	}

	jobState, err := m.ctrl.Status(ctx, m.handle)
	if err != nil {
		// InconsistentState cannot be reasoned about; everything else
		// (scheduler unavailable) leaves the session intact for the
		// next tick.
		return m.state, err
	}
	if jobState != model.StateUnknown {
		m.jobState = jobState
	}

	if err := m.ingest(ctx); err != nil {
		return m.state, err
	}

	if jobState.Terminal() {
		m.caps.Flush()
		m.state = Done
		slog.InfoContext(ctx, "job settled", "jobid", m.handle.ID, "state", jobState)
		return Done, nil
	}

	if m.state == Watching {
		if fired, cycle := cycling.Evaluate(m.crit, m.caps.Completed(m.crit.CheckType)); fired {
			slog.InfoContext(ctx, "stopping criterion satisfied",
				"jobid", m.handle.ID, "cycle", cycle, "threshold", m.crit.Threshold)
			if err := m.ctrl.Cancel(ctx, m.handle); err != nil {
				return m.state, fmt.Errorf("cancelling job %s: %w", m.handle.ID, err)
			}
			m.state = Triggered
			m.stopped = true
		}
	}

	return m.state, nil
}

// ingest pulls all new records from the snapshot. Malformed records are
// logged and skipped unless strict mode is on.
func (m *Monitor) ingest(ctx context.Context) error {
	for rec, err := range m.reader.Records() {
		if err != nil {
			if !errors.Is(err, model.ErrMalformedRecord) {
				return err
			}
			if m.strict {
				return err
			}
			slog.WarnContext(ctx, "skipping malformed record", "error", err)
			continue
		}
		m.records = append(m.records, rec)
		m.caps.Add(rec)
	}
	return nil
}

// Result assembles the experiment outcome once the monitor is Done.
func (m *Monitor) Result() model.CycleExperimentResult {
	return cycling.Assemble(m.records, cycling.ReasonForState(m.jobState, m.stopped))
}
