package ketchup

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aurora-lab/tomato-bridge/internal/model"
)

// Status codes emitted by tomato 0.2. Treated as a versioned text
// protocol: anything outside this table maps to StateUnknown.
//
//	q   queued, waiting for a pipeline
//	qw  queued, matching pipeline found but busy or not ready
//	r   running
//	c   completed successfully
//	ce  completed with an error
//	cd  cancelled
var stateByCode = map[string]model.JobState{
	"q":  model.StateQueued,
	"qw": model.StateQueued,
	"r":  model.StateRunning,
	"c":  model.StateDone,
	"ce": model.StateFailed,
	"cd": model.StateCancelled,
}

// TranslateCode maps a raw tomato status code to the canonical state.
// Total: unrecognized codes map to StateUnknown.
func TranslateCode(code string) model.JobState {
	if s, ok := stateByCode[strings.TrimSpace(code)]; ok {
		return s
	}
	return model.StateUnknown
}

// JobStatus is one entry of a `ketchup status <jobid>` YAML response.
type JobStatus struct {
	JobID     string
	Name      string
	State     model.JobState
	Code      string
	Pipeline  string
	PID       int
	Submitted string
	Executed  string
	Completed string
}

type statusEntry struct {
	JobID     any    `yaml:"jobid"`
	JobName   string `yaml:"jobname"`
	Status    string `yaml:"status"`
	Pipeline  string `yaml:"pipeline"`
	PID       int    `yaml:"pid"`
	Submitted string `yaml:"submitted"`
	Executed  string `yaml:"executed"`
	Completed string `yaml:"completed"`
}

// ParseStatus parses the YAML output of `ketchup status <jobid...>`.
// Empty lines and lines containing ERROR are dropped first, the rest must
// be a YAML list of job dicts.
func ParseStatus(stdout string) ([]JobStatus, error) {
	cleaned := dropNoise(stdout)
	if strings.TrimSpace(cleaned) == "" {
		return nil, nil
	}

	var entries []statusEntry
	if err := yaml.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, fmt.Errorf("ketchup status output: %w", err)
	}

	out := make([]JobStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, JobStatus{
			JobID:     fmt.Sprintf("%v", e.JobID),
			Name:      e.JobName,
			State:     TranslateCode(e.Status),
			Code:      e.Status,
			Pipeline:  e.Pipeline,
			PID:       e.PID,
			Submitted: e.Submitted,
			Executed:  e.Executed,
			Completed: e.Completed,
		})
	}
	return out, nil
}

// Translate maps a single-job status response to the canonical state.
// Total: any output that cannot be interpreted yields StateUnknown.
func Translate(stdout string) model.JobState {
	entries, err := ParseStatus(stdout)
	if err != nil || len(entries) == 0 {
		return model.StateUnknown
	}
	return entries[0].State
}

// QueueJob is one row of the `ketchup status queue -v` table.
type QueueJob struct {
	JobID    string
	Name     string
	State    model.JobState
	Code     string
	Pipeline string
}

// ParseQueue parses the queue table: a header line, a ===== separator,
// then one row per job with 3 or 4 whitespace-separated columns
// (jobid, jobname, status, optional pipeline). Rows with an unexpected
// column count are kept with StateUnknown rather than dropped.
func ParseQueue(stdout string) []QueueJob {
	lines := strings.Split(dropNoise(stdout), "\n")

	sep := -1
	for i, l := range lines {
		if strings.Contains(l, "====") {
			sep = i
			break
		}
	}
	if sep < 0 || sep+1 >= len(lines) {
		return nil
	}

	var jobs []QueueJob
	for _, line := range lines[sep+1:] {
		fields := strings.Fields(line)
		if len(fields) < 3 || len(fields) > 4 {
			if len(fields) > 0 {
				jobs = append(jobs, QueueJob{
					JobID: fields[0],
					State: model.StateUnknown,
				})
			}
			continue
		}
		j := QueueJob{
			JobID: fields[0],
			Name:  fields[1],
			State: TranslateCode(fields[2]),
			Code:  fields[2],
		}
		if len(fields) == 4 {
			j.Pipeline = fields[3]
		}
		jobs = append(jobs, j)
	}
	return jobs
}

// NotFound reports whether the combined output indicates that ketchup
// does not know the queried job id.
func NotFound(stdout, stderr string) bool {
	combined := strings.ToLower(stdout + "\n" + stderr)
	for _, marker := range []string{
		"not found",
		"no such job",
		"unknown job",
		"does not exist",
	} {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}

// dropNoise removes empty lines and lines containing ERROR, which tomato
// interleaves with regular output, with trailing whitespace trimmed.
func dropNoise(s string) string {
	var kept []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimRight(l, " \t\r")
		if l == "" || strings.Contains(l, "ERROR") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}
