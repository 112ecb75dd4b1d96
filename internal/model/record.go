package model

// MeasurementRecord is one sample appended by the instrument to the
// snapshot file. Immutable once parsed.
type MeasurementRecord struct {
	// Uts is the unix timestamp of the sample in seconds.
	Uts float64
	// Ewe is the working electrode potential in V.
	Ewe float64
	// I is the applied current in A.
	I float64
	// Q is the derived capacity of the current half-cycle in mAh.
	Q float64
	// Cycle is the zero-based cycle index.
	Cycle int
	// Step is the protocol step index within the cycle.
	Step int
}

// Relation is the comparison direction of a stopping criterion.
type Relation string

const (
	RelationBelow Relation = "below"
	RelationAbove Relation = "above"
)

// Reference selects what the criterion threshold is compared against.
type Reference string

const (
	// ReferenceFirstCycle treats the threshold as a fraction of the first
	// observed complete cycle's capacity.
	ReferenceFirstCycle Reference = "first-cycle"
	// ReferenceFixed treats the threshold as an absolute capacity in mAh.
	ReferenceFixed Reference = "fixed"
)

// CheckType selects which half-cycle capacity series a criterion
// watches. The sign of the applied current attributes each sample to a
// half-cycle.
type CheckType string

const (
	// CheckDischarge watches the discharge half-cycle, the customary
	// fade measure. An unset check type means discharge.
	CheckDischarge CheckType = "discharge"
	// CheckCharge watches the charge half-cycle.
	CheckCharge CheckType = "charge"
)

// StoppingCriterion decides whether an experiment has reached its target
// condition before natural completion. Pure: re-evaluable on any prefix
// of the capacity series.
type StoppingCriterion struct {
	Threshold float64
	Relation  Relation
	Reference Reference
	// CheckType selects the charge or discharge capacity series. Empty
	// means discharge.
	CheckType CheckType
	// Consecutive is the number of consecutive complete cycles that must
	// satisfy the comparison before the criterion fires. Minimum 1.
	Consecutive int
}

// CycleExperimentResult is the final structured output of one experiment.
type CycleExperimentResult struct {
	Records    []MeasurementRecord
	CycleCount int
	// FirstCapacity is the discharge capacity of the first complete
	// cycle in mAh, zero if no cycle completed.
	FirstCapacity float64
	// FinalCapacity is the discharge capacity of the last complete
	// cycle in mAh, zero if no cycle completed.
	FinalCapacity float64
	Reason        TerminationReason
}
