package gate

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// ToolStatus classifies the outcome of running an external check tool.
type ToolStatus int

const (
	// ToolOK: the check ran and passed.
	ToolOK ToolStatus = iota
	// ToolCheckFailed: the check ran to completion and reported a genuine
	// failure (nonzero exit).
	ToolCheckFailed
	// ToolNotFound: the tool binary is not installed or not on PATH.
	ToolNotFound
	// ToolInfraError: the tool could not run to completion (timeout,
	// signal, exec failure). Never a pass.
	ToolInfraError
)

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	Status ToolStatus
	Output string
	Err    error
}

// ToolRunner runs a named external check. Implementations must bound the
// invocation with a timeout; a timeout classifies as ToolInfraError.
type ToolRunner interface {
	Run(ctx context.Context, tool string, args ...string) ToolResult
}

// DefaultToolTimeout bounds external check invocations when the runner is
// not configured otherwise. Human prompts have no timeout; tools do.
const DefaultToolTimeout = 2 * time.Minute

// ExecRunner invokes tools as subprocesses.
type ExecRunner struct {
	Timeout time.Duration
	Dir     string
}

// Run implements ToolRunner.
func (r ExecRunner) Run(ctx context.Context, tool string, args ...string) ToolResult {
	if _, err := exec.LookPath(tool); err != nil {
		return ToolResult{Status: ToolNotFound, Err: err}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = r.Dir
	out, err := cmd.CombinedOutput()

	if ctx.Err() != nil {
		return ToolResult{Status: ToolInfraError, Output: string(out), Err: ctx.Err()}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ToolResult{Status: ToolCheckFailed, Output: string(out), Err: err}
		}
		return ToolResult{Status: ToolInfraError, Output: string(out), Err: err}
	}
	return ToolResult{Status: ToolOK, Output: string(out)}
}
