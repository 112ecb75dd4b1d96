package monitor_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aurora-lab/tomato-bridge/internal/cycling"
	"github.com/aurora-lab/tomato-bridge/internal/model"
	"github.com/aurora-lab/tomato-bridge/internal/monitor"
)

// fakeController simulates the scheduler side of a monitored job.
type fakeController struct {
	state     model.JobState
	statusErr error
	cancelErr error
	cancels   int
}

func (f *fakeController) Status(context.Context, model.JobHandle) (model.JobState, error) {
	return f.state, f.statusErr
}

func (f *fakeController) Cancel(context.Context, model.JobHandle) error {
	f.cancels++
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.state = model.StateCancelled
	return nil
}

var defaultCriterion = model.StoppingCriterion{
	Threshold:   0.8,
	Relation:    model.RelationBelow,
	Reference:   model.ReferenceFirstCycle,
	Consecutive: 1,
}

func newSnapshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.dat")
	require.NoError(t, os.WriteFile(path, []byte("uts Ewe I Q cycle step\n"), 0o644))
	return path
}

func appendRecord(t *testing.T, path string, q float64, cycle int) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, "%d.0 4.0 -0.05 %.2f %d 0\n", cycle*10, q, cycle)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestMonitorTriggersExactlyOnce(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	path := newSnapshot(t)

	ctrl := &fakeController{state: model.StateRunning}
	mon, err := monitor.New(ctrl, model.JobHandle{ID: "7"}, cycling.NewReader(path), defaultCriterion)
	require.NoError(t, err)
	require.Equal(t, monitor.Watching, mon.State())

	// cycles 0..3 complete, cycle 4 still open: capacities are
	// 1.00 0.95 0.90 0.85 and nothing is under 80% of the first.
	for cycle, q := range []float64{1.00, 0.95, 0.90, 0.85, 0.79} {
		appendRecord(t, path, q, cycle)
	}
	state, err := mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Watching, state)
	require.Zero(t, ctrl.cancels)

	// a cycle 5 record closes cycle 4 at 0.79, under the limit
	appendRecord(t, path, 0.78, 5)
	state, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Triggered, state)
	require.Equal(t, 1, ctrl.cancels)
	require.True(t, mon.Stopped())

	// waiting for the job to settle must not cancel again
	ctrl.state = model.StateRunning
	state, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Triggered, state)
	require.Equal(t, 1, ctrl.cancels)

	ctrl.state = model.StateCancelled
	state, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Done, state)

	res := mon.Result()
	require.Equal(t, model.ReasonStoppedByCriterion, res.Reason)
	require.Equal(t, 6, res.CycleCount)
	require.Equal(t, 1.0, res.FirstCapacity)
	require.Equal(t, 0.78, res.FinalCapacity)
}

// The default criterion watches the discharge half-cycle: a healthy
// charge half-cycle must not hide a fading discharge capacity.
func TestMonitorWatchesDischargeHalf(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	path := newSnapshot(t)

	ctrl := &fakeController{state: model.StateRunning}
	mon, err := monitor.New(ctrl, model.JobHandle{ID: "9"}, cycling.NewReader(path), defaultCriterion)
	require.NoError(t, err)

	for cycle, qd := range []float64{1.0, 0.9, 0.85, 0.82, 0.5} {
		appendLine(t, path, fmt.Sprintf("%d.0 4.0 0.05 1.00 %d 0\n", cycle*10, cycle))
		appendLine(t, path, fmt.Sprintf("%d.5 4.0 -0.05 %.2f %d 1\n", cycle*10, qd, cycle))
	}
	state, err := mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Watching, state) // cycle 4 still open
	require.Zero(t, ctrl.cancels)

	appendLine(t, path, "50.0 4.0 0.05 0.10 5 0\n")
	state, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Triggered, state)
	require.Equal(t, 1, ctrl.cancels)
}

func TestMonitorNaturalCompletion(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	path := newSnapshot(t)

	ctrl := &fakeController{state: model.StateQueued}
	mon, err := monitor.New(ctrl, model.JobHandle{ID: "3"}, cycling.NewReader(path), defaultCriterion)
	require.NoError(t, err)

	// queued, snapshot still empty
	state, err := mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Watching, state)
	require.Equal(t, model.StateQueued, mon.JobState())

	// running, records arrive in batches; capacity stays healthy
	ctrl.state = model.StateRunning
	for i := range 10 {
		appendRecord(t, path, 1.0, i)
	}
	_, err = mon.Tick(ctx)
	require.NoError(t, err)
	for i := 10; i < 20; i++ {
		appendRecord(t, path, 0.98, i)
	}
	_, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, mon.Records(), 20)

	ctrl.state = model.StateDone
	state, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Done, state)
	require.Zero(t, ctrl.cancels)
	require.False(t, mon.Stopped())

	res := mon.Result()
	require.Equal(t, model.ReasonCompleted, res.Reason)
	require.Len(t, res.Records, 20)
	require.Equal(t, 20, res.CycleCount)

	// ticking a settled monitor is a no-op
	state, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Done, state)
}

func TestMonitorMalformedRecords(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	t.Run("lenient skips", func(t *testing.T) {
		path := newSnapshot(t)
		appendRecord(t, path, 1.0, 0)
		appendLine(t, path, "garbled line\n")
		appendRecord(t, path, 0.9, 1)

		ctrl := &fakeController{state: model.StateRunning}
		mon, err := monitor.New(ctrl, model.JobHandle{ID: "7"}, cycling.NewReader(path), defaultCriterion)
		require.NoError(t, err)

		_, err = mon.Tick(ctx)
		require.NoError(t, err)
		require.Len(t, mon.Records(), 2)
	})

	t.Run("strict aborts", func(t *testing.T) {
		path := newSnapshot(t)
		appendRecord(t, path, 1.0, 0)
		appendLine(t, path, "garbled line\n")

		ctrl := &fakeController{state: model.StateRunning}
		mon, err := monitor.New(ctrl, model.JobHandle{ID: "7"}, cycling.NewReader(path), defaultCriterion, monitor.Strict())
		require.NoError(t, err)

		_, err = mon.Tick(ctx)
		require.ErrorIs(t, err, model.ErrMalformedRecord)
	})
}

func TestMonitorStatusErrors(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	path := newSnapshot(t)

	ctrl := &fakeController{state: model.StateRunning, statusErr: model.ErrSchedulerUnavailable}
	mon, err := monitor.New(ctrl, model.JobHandle{ID: "7"}, cycling.NewReader(path), defaultCriterion)
	require.NoError(t, err)

	// a flaky scheduler does not end the session
	state, err := mon.Tick(ctx)
	require.ErrorIs(t, err, model.ErrSchedulerUnavailable)
	require.Equal(t, monitor.Watching, state)

	ctrl.statusErr = nil
	appendRecord(t, path, 1.0, 0)
	state, err = mon.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.Watching, state)
	require.Len(t, mon.Records(), 1)
}

func TestMonitorCancelFailure(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	path := newSnapshot(t)

	ctrl := &fakeController{state: model.StateRunning, cancelErr: model.ErrCancelFailed}
	mon, err := monitor.New(ctrl, model.JobHandle{ID: "7"}, cycling.NewReader(path), defaultCriterion)
	require.NoError(t, err)

	for cycle, q := range []float64{1.0, 0.5, 0.5} {
		appendRecord(t, path, q, cycle)
	}
	state, err := mon.Tick(ctx)
	require.ErrorIs(t, err, model.ErrCancelFailed)
	require.Equal(t, monitor.Watching, state)
}

func TestMonitorRejectsBadCriterion(t *testing.T) {
	t.Parallel()

	bad := defaultCriterion
	bad.Threshold = -1
	_, err := monitor.New(&fakeController{}, model.JobHandle{ID: "7"}, cycling.NewReader("x"), bad)
	require.Error(t, err)
}
