// Package watch drives a monitor at a fixed cadence until the watched
// job settles. It is the reference polling loop for callers that do not
// bring their own scheduler; workflow engines with their own poll ticks
// call Monitor.Tick directly.
package watch

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aurora-lab/tomato-bridge/internal/model"
	"github.com/aurora-lab/tomato-bridge/internal/monitor"
)

// ParseSchedule parses a poll-cadence expression: a five-field cron spec
// or an @-macro such as "@every 2m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}

// Run ticks the monitor per schedule until it reports Done, then
// assembles the experiment result. The context bounds the whole wait.
func Run(ctx context.Context, mon *monitor.Monitor, schedule cron.Schedule) (model.CycleExperimentResult, error) {
	for {
		timer := time.NewTimer(time.Until(schedule.Next(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.CycleExperimentResult{}, ctx.Err()
		case <-timer.C:
		}

		state, err := mon.Tick(ctx)
		if err != nil {
			return model.CycleExperimentResult{}, err
		}
		if state == monitor.Done {
			return mon.Result(), nil
		}
	}
}
