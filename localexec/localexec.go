// Package localexec runs git on the local machine.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jonchun/gitguard/gitcmd"
	"github.com/jonchun/gitguard/output"
)

// Runner executes invocations with os/exec. The zero value is usable.
type Runner struct {
	// DefaultDir is used when an invocation has no Dir. Empty means the
	// process working directory.
	DefaultDir string
}

func New(defaultDir string) *Runner {
	return &Runner{DefaultDir: defaultDir}
}

// ResolveDir returns the absolute form of dir after checking it names an
// existing directory.
func (r *Runner) ResolveDir(_ context.Context, dir string) (string, error) {
	if dir == "" {
		dir = r.DefaultDir
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve working directory %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("working directory %q: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %q is not a directory", abs)
	}
	return abs, nil
}

// Run starts the process and waits for it. A non-zero exit is reported in the
// result, not as an error; failures to start, and timeouts, are errors.
func (r *Runner) Run(ctx context.Context, inv gitcmd.Invocation) (output.CommandResult, error) {
	execCtx := ctx
	cancel := func() {}
	if inv.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	argv := inv.Argv()
	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	if cmd.Dir == "" {
		cmd.Dir = r.DefaultDir
	}
	cmd.Env = append(append(os.Environ(), gitcmd.LocaleEnv...), inv.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	res := output.CommandResult{
		Stdout:           stdout.String(),
		Stderr:           stderr.String(),
		DurationMs:       time.Since(started).Milliseconds(),
		WorkingDirectory: cmd.Dir,
	}

	if ctxErr := execCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return output.CommandResult{}, fmt.Errorf("%s timed out after %s", argv[0], inv.Timeout)
		}
		return output.CommandResult{}, ctxErr
	}

	if err == nil {
		res.ExitCode = output.ExitStatus(0)
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the process was killed by a signal.
		if code := exitErr.ExitCode(); code >= 0 {
			res.ExitCode = output.ExitStatus(code)
		}
		return res, nil
	}
	return output.CommandResult{}, err
}
