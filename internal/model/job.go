package model

// JobState is the canonical state of a tomato job, decoupled from the
// status vocabulary of the ketchup tool itself.
type JobState string

const (
	// StateQueued means the job is waiting for a pipeline, or a matching
	// pipeline was found but is busy or not ready.
	StateQueued JobState = "queued"

	// StateRunning means the job occupies a pipeline and the instrument
	// is producing data.
	StateRunning JobState = "running"

	// StateDone means the job completed successfully.
	StateDone JobState = "done"

	// StateFailed means the job completed with an error; output data is
	// not guaranteed but may be present in the job folder.
	StateFailed JobState = "failed"

	// StateCancelled means the job was cancelled; output data up to the
	// cancellation point should be available.
	StateCancelled JobState = "cancelled"

	// StateUnknown means the ketchup output could not be interpreted.
	// It is never terminal; callers should poll again.
	StateUnknown JobState = "unknown"
)

// Terminal reports whether the state can no longer change.
func (s JobState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Live reports whether the job is still in the queue or on a pipeline.
func (s JobState) Live() bool {
	return s == StateQueued || s == StateRunning
}

// rank orders states for regression detection. Unknown has no rank.
func (s JobState) rank() int {
	switch s {
	case StateQueued:
		return 1
	case StateRunning:
		return 2
	case StateDone, StateFailed, StateCancelled:
		return 3
	}
	return 0
}

// RegressesFrom reports whether observing s after prev violates the
// monotonicity of the job lifecycle: a rank going backward, or one
// terminal state turning into a different one.
func (s JobState) RegressesFrom(prev JobState) bool {
	if s == StateUnknown || prev == StateUnknown {
		return false
	}
	if prev.Terminal() && s.Terminal() && s != prev {
		return true
	}
	return s.rank() < prev.rank()
}

// JobHandle identifies a submitted job in the tomato queue. Immutable
// after submission.
type JobHandle struct {
	// ID is the queue identifier emitted by ketchup submit.
	ID string
	// Name is the job name the payload was submitted under.
	Name string
	// Pipeline is the instrument channel the job was assigned to, when
	// known from a status query.
	Pipeline string
}

// TerminationReason records why an experiment ended.
type TerminationReason string

const (
	ReasonCompleted          TerminationReason = "completed"
	ReasonStoppedByCriterion TerminationReason = "stopped-by-criterion"
	ReasonFailed             TerminationReason = "failed"
	ReasonCancelled          TerminationReason = "cancelled"
)
