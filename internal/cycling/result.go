package cycling

import (
	"fmt"

	"github.com/aurora-lab/tomato-bridge/internal/model"
)

// Assemble builds the final experiment result from the full record
// sequence and the reason the job ended. The result is immutable once
// returned; the records slice is not copied, ownership passes to the
// result.
func Assemble(records []model.MeasurementRecord, reason model.TerminationReason) model.CycleExperimentResult {
	var caps Capacities
	for _, rec := range records {
		caps.Add(rec)
	}
	caps.Flush()

	discharge := caps.Completed(model.CheckDischarge)
	res := model.CycleExperimentResult{
		Records:    records,
		CycleCount: len(discharge),
		Reason:     reason,
	}
	if n := len(discharge); n > 0 {
		res.FirstCapacity = discharge[0]
		res.FinalCapacity = discharge[n-1]
	}
	return res
}

// Collect parses a finished snapshot file and assembles the result.
func Collect(path string, reason model.TerminationReason) (model.CycleExperimentResult, error) {
	records, err := ReadAll(path)
	if err != nil {
		return model.CycleExperimentResult{}, fmt.Errorf("collecting %s: %w", path, err)
	}
	return Assemble(records, reason), nil
}

// ReasonForState maps a terminal job state to a termination reason.
// stopped marks a cancellation that was requested by the capacity
// monitor rather than an operator.
func ReasonForState(state model.JobState, stopped bool) model.TerminationReason {
	switch state {
	case model.StateDone:
		return model.ReasonCompleted
	case model.StateCancelled:
		if stopped {
			return model.ReasonStoppedByCriterion
		}
		return model.ReasonCancelled
	default:
		return model.ReasonFailed
	}
}
