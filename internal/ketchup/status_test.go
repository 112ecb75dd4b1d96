package ketchup_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aurora-lab/tomato-bridge/internal/ketchup"
	"github.com/aurora-lab/tomato-bridge/internal/model"
)

// recorded from ketchup 0.2 against a two-pipeline tomato daemon
const statusRunning = `
- jobid: 4
  jobname: aurora-1a2b
  status: r
  submitted: 2023-03-02 08:31:18+00:00
  executed: 2023-03-02 08:31:28+00:00
  pipeline: pip-2
  pid: 14035
`

const statusCompleted = `
- jobid: 3
  jobname: short-test
  status: c
  submitted: 2023-03-01 16:20:00+00:00
  executed: 2023-03-01 16:20:11+00:00
  completed: 2023-03-02 02:44:03+00:00
  pipeline: pip-1
`

const queueTable = `jobid  jobname        status  pipeline
=====================================
3      short-test     c
4      aurora-1a2b    r       pip-2
5      pending-cell   qw
`

func TestTranslateCode(t *testing.T) {
	t.Parallel()

	cases := map[string]model.JobState{
		"q":   model.StateQueued,
		"qw":  model.StateQueued,
		"r":   model.StateRunning,
		"c":   model.StateDone,
		"ce":  model.StateFailed,
		"cd":  model.StateCancelled,
		"r ":  model.StateRunning,
		"":    model.StateUnknown,
		"rq":  model.StateUnknown,
		"cde": model.StateUnknown,
	}
	for code, want := range cases {
		require.Equal(t, want, ketchup.TranslateCode(code), "code %q", code)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	entries, err := ketchup.ParseStatus(statusRunning)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "4", entries[0].JobID)
	require.Equal(t, "aurora-1a2b", entries[0].Name)
	require.Equal(t, model.StateRunning, entries[0].State)
	require.Equal(t, "pip-2", entries[0].Pipeline)
	require.Equal(t, 14035, entries[0].PID)
	require.NotEmpty(t, entries[0].Submitted)
	require.Empty(t, entries[0].Completed)
}

func TestParseStatus_DropsNoise(t *testing.T) {
	t.Parallel()

	noisy := "ERROR: daemon slow to respond\n" + statusCompleted + "\n\n"
	entries, err := ketchup.ParseStatus(noisy)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.StateDone, entries[0].State)
	require.Equal(t, "2023-03-02 02:44:03+00:00", entries[0].Completed)
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	require.Equal(t, model.StateRunning, ketchup.Translate(statusRunning))
	require.Equal(t, model.StateDone, ketchup.Translate(statusCompleted))

	// total on garbage, never an error
	require.Equal(t, model.StateUnknown, ketchup.Translate(""))
	require.Equal(t, model.StateUnknown, ketchup.Translate("segmentation fault"))
	require.Equal(t, model.StateUnknown, ketchup.Translate("- jobid: 9\n  status: zz\n"))
	require.Equal(t, model.StateUnknown, ketchup.Translate("{{{{not yaml"))
}

func TestParseQueue(t *testing.T) {
	t.Parallel()

	jobs := ketchup.ParseQueue(queueTable)
	require.Len(t, jobs, 3)

	require.Equal(t, "3", jobs[0].JobID)
	require.Equal(t, model.StateDone, jobs[0].State)
	require.Empty(t, jobs[0].Pipeline)

	require.Equal(t, "4", jobs[1].JobID)
	require.Equal(t, "aurora-1a2b", jobs[1].Name)
	require.Equal(t, model.StateRunning, jobs[1].State)
	require.Equal(t, "pip-2", jobs[1].Pipeline)

	require.Equal(t, "5", jobs[2].JobID)
	require.Equal(t, model.StateQueued, jobs[2].State)
}

func TestParseQueue_Degenerate(t *testing.T) {
	t.Parallel()

	t.Run("empty queue", func(t *testing.T) {
		require.Empty(t, ketchup.ParseQueue("jobid  jobname  status\n======================\n"))
	})
	t.Run("no separator", func(t *testing.T) {
		require.Empty(t, ketchup.ParseQueue("nothing to see here"))
	})
	t.Run("too many columns", func(t *testing.T) {
		out := "jobid  jobname  status  pipeline\n=====\n7 a r pip-1 extra-column\n"
		jobs := ketchup.ParseQueue(out)
		require.Len(t, jobs, 1)
		require.Equal(t, "7", jobs[0].JobID)
		require.Equal(t, model.StateUnknown, jobs[0].State)
	})
	t.Run("trailing whitespace tolerated", func(t *testing.T) {
		out := "jobid  jobname  status\n=====\n8   cell-08   r   \t\n"
		jobs := ketchup.ParseQueue(out)
		require.Len(t, jobs, 1)
		require.Equal(t, model.StateRunning, jobs[0].State)
	})
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	require.True(t, ketchup.NotFound("", "job 42 not found\n"))
	require.True(t, ketchup.NotFound("no such job: 42", ""))
	require.False(t, ketchup.NotFound(statusRunning, ""))
}
