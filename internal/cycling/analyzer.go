package cycling

import (
	"fmt"
	"math"

	"github.com/aurora-lab/tomato-bridge/internal/model"
)

// Capacities accumulates per-cycle charge and discharge capacity from
// the sample stream. The sign of the applied current attributes a
// sample: positive I to the charge half-cycle, negative I to the
// discharge half-cycle, rest samples (I == 0) to neither. The capacity
// of a half-cycle is the largest |Q| observed for its cycle index; a
// cycle counts as complete once a record with a later index appears, or
// when Flush is called at the end of the experiment.
type Capacities struct {
	started   bool
	cycle     int
	charge    float64
	discharge float64

	completedCharge    []float64
	completedDischarge []float64
}

// Add feeds one record. Records may only move forward in cycle index;
// the instrument never rewinds.
func (c *Capacities) Add(rec model.MeasurementRecord) {
	if !c.started {
		c.started = true
		c.cycle = rec.Cycle
	}
	if rec.Cycle != c.cycle {
		c.completedCharge = append(c.completedCharge, c.charge)
		c.completedDischarge = append(c.completedDischarge, c.discharge)
		c.cycle = rec.Cycle
		c.charge, c.discharge = 0, 0
	}
	q := math.Abs(rec.Q)
	switch {
	case rec.I > 0:
		if q > c.charge {
			c.charge = q
		}
	case rec.I < 0:
		if q > c.discharge {
			c.discharge = q
		}
	}
}

// Flush completes the cycle currently being accumulated. Called once the
// job reached a terminal state and no more records can appear.
func (c *Capacities) Flush() {
	if !c.started {
		return
	}
	c.completedCharge = append(c.completedCharge, c.charge)
	c.completedDischarge = append(c.completedDischarge, c.discharge)
	c.started = false
	c.charge, c.discharge = 0, 0
}

// Completed returns the per-cycle capacities of the selected half-cycle
// for all complete cycles, in order. The zero check type selects
// discharge.
func (c *Capacities) Completed(ct model.CheckType) []float64 {
	if ct == model.CheckCharge {
		return c.completedCharge
	}
	return c.completedDischarge
}

// Evaluate re-evaluates crit against a prefix of the per-cycle capacity
// series. It is pure: no state is kept between calls. It returns whether
// the criterion fired and the 1-based cycle at which the required run of
// satisfying cycles was reached.
//
// With a first-cycle reference the threshold is a fraction of the first
// complete cycle's capacity; that cycle itself is exempt from the
// comparison. With a fixed reference the threshold is absolute (mAh).
func Evaluate(crit model.StoppingCriterion, capacities []float64) (bool, int) {
	if len(capacities) == 0 {
		return false, 0
	}

	limit := crit.Threshold
	first := 0
	if crit.Reference == model.ReferenceFirstCycle {
		limit = crit.Threshold * capacities[0]
		first = 1 // skip the reference cycle
	}

	need := crit.Consecutive
	if need < 1 {
		need = 1
	}

	run := 0
	for i := first; i < len(capacities); i++ {
		if satisfies(crit.Relation, capacities[i], limit) {
			run++
			if run >= need {
				return true, i + 1
			}
		} else {
			run = 0
		}
	}
	return false, 0
}

func satisfies(rel model.Relation, q, limit float64) bool {
	switch rel {
	case model.RelationBelow:
		return q < limit
	case model.RelationAbove:
		return q > limit
	}
	return false
}

// Validate checks a criterion before monitoring starts.
func Validate(crit model.StoppingCriterion) error {
	if crit.Threshold <= 0 {
		return fmt.Errorf("criterion threshold must be positive, got %v", crit.Threshold)
	}
	switch crit.Relation {
	case model.RelationBelow, model.RelationAbove:
	default:
		return fmt.Errorf("unknown criterion relation %q", crit.Relation)
	}
	switch crit.Reference {
	case model.ReferenceFirstCycle, model.ReferenceFixed:
	default:
		return fmt.Errorf("unknown criterion reference %q", crit.Reference)
	}
	switch crit.CheckType {
	case "", model.CheckDischarge, model.CheckCharge:
	default:
		return fmt.Errorf("unknown criterion check type %q", crit.CheckType)
	}
	return nil
}
