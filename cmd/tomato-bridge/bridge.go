package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aurora-lab/tomato-bridge/internal/cycling"
	"github.com/aurora-lab/tomato-bridge/internal/ketchup"
	"github.com/aurora-lab/tomato-bridge/internal/log"
	"github.com/aurora-lab/tomato-bridge/internal/model"
	"github.com/aurora-lab/tomato-bridge/internal/monitor"
	"github.com/aurora-lab/tomato-bridge/internal/watch"
)

var submitCmd = &cobra.Command{
	Use:   "submit <payload.yaml>",
	Short: "submit a cycling payload to the tomato queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := scheduler()
		if err != nil {
			return err
		}
		handle, err := sched.Submit(cmd.Context(), flagWorkdir, args[0], flagJobName)
		if err != nil {
			return err
		}
		return printYAML(map[string]string{
			"jobid":   handle.ID,
			"jobname": handle.Name,
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <jobid>",
	Short: "report the canonical state of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := scheduler()
		if err != nil {
			return err
		}
		state, err := sched.Status(cmd.Context(), model.JobHandle{ID: args[0]})
		if err != nil {
			return err
		}
		return printYAML(map[string]string{
			"jobid": args[0],
			"state": string(state),
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <jobid>",
	Short: "request termination of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := scheduler()
		if err != nil {
			return err
		}
		if err := sched.Cancel(cmd.Context(), model.JobHandle{ID: args[0]}); err != nil {
			return err
		}
		fmt.Println("cancellation requested; keep polling status until the job settles")
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "list the tomato queue with pipeline assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := scheduler()
		if err != nil {
			return err
		}
		jobs, err := sched.Queue(cmd.Context())
		if err != nil {
			return err
		}

		// fetch the detailed entries in parallel, one status call each
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(4)
		details := make([]ketchup.JobStatus, len(jobs))
		for i, j := range jobs {
			g.Go(func() error {
				d, err := sched.Describe(ctx, model.JobHandle{ID: j.JobID})
				if err != nil {
					slog.WarnContext(ctx, "describe failed", "jobid", j.JobID, "error", err)
					details[i] = ketchup.JobStatus{JobID: j.JobID, Name: j.Name, State: j.State}
					return nil
				}
				details[i] = d
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, d := range details {
			fmt.Printf("%-8s %-24s %-10s %s\n", d.JobID, d.Name, d.State, d.Pipeline)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <jobid>",
	Short: "follow a running job and stop it when the capacity criterion fires",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, err := scheduler()
		if err != nil {
			return err
		}

		schedule, err := watch.ParseSchedule(config.Monitor.Poll)
		if err != nil {
			return fmt.Errorf("monitor poll %q: %w", config.Monitor.Poll, err)
		}

		handle := model.JobHandle{ID: args[0]}
		reader := cycling.NewReader(filepath.Join(flagWorkdir, config.Monitor.Source))

		var opts []monitor.Option
		if config.Monitor.Strict {
			opts = append(opts, monitor.Strict())
		}
		mon, err := monitor.New(sched, handle, reader, config.Monitor.Criterion.StoppingCriterion(), opts...)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), watchTimeout)
		defer cancel()
		ctx = log.ContextAttrs(ctx, slog.String("jobid", handle.ID))

		result, err := watch.Run(ctx, mon, schedule)
		if err != nil {
			return err
		}
		return printYAML(map[string]any{
			"jobid":          handle.ID,
			"reason":         string(result.Reason),
			"records":        len(result.Records),
			"cycles":         result.CycleCount,
			"first_capacity": result.FirstCapacity,
			"final_capacity": result.FinalCapacity,
		})
	},
}
