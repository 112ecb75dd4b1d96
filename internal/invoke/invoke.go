// Package invoke runs the external controller binary as a subprocess.
// It is the only place in the module that launches processes; everything
// above it works on captured output.
package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/aurora-lab/tomato-bridge/internal/model"
)

// Result is the captured outcome of one subprocess call.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Invoker executes a command in a working directory and captures its
// output. Implemented by Runner; faked in tests.
type Invoker interface {
	Run(ctx context.Context, dir string, args ...string) (Result, error)
}

// Runner invokes a fixed binary directly, without a shell. Arguments are
// passed verbatim, so shell metacharacters have no effect.
type Runner struct {
	Path string
	// Timeout bounds a single call. Zero means no deadline.
	Timeout time.Duration
}

// Run executes the binary with the given arguments in dir (empty for the
// inherited directory). A non-zero exit code is not an error here;
// callers interpret it together with the output. Timeouts kill the
// subprocess and return model.ErrTimeout, launch problems return
// model.ErrInvocationFailed. No retries at this layer.
func (r Runner) Run(ctx context.Context, dir string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	} else {
		slog.WarnContext(ctx, "command has no timeout", "path", r.Path)
	}

	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Dir = dir
	// do not wait on grandchildren holding the output pipes open
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	slog.DebugContext(ctx, "ran command",
		"path", r.Path,
		"args", args,
		"elapsed", time.Since(started).String(),
	)

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		res.ExitCode = 0
		return res, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%w after %s: %s %v", model.ErrTimeout, r.Timeout, r.Path, args)
	case ctx.Err() != nil:
		// caller gave up, not a verdict on the command
		return res, fmt.Errorf("%s %v: %w", r.Path, args, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	// exec.Error, missing binary, permission problems
	return res, fmt.Errorf("%w: %s: %v", model.ErrInvocationFailed, r.Path, err)
}
