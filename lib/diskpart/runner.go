package diskpart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/deploykit/winprov/lib/logger"
)

// ErrTimeout is returned when the utility exceeds its budget and had to be
// terminated. No partial result is surfaced in that case.
var ErrTimeout = errors.New("diskpart timed out")

// killGrace is how long a terminated process gets before it is forcibly
// killed.
const killGrace = 5 * time.Second

// Result captures a completed run. Interpretation of the result is left to
// Classify.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Verdict classifies the result.
func (r *Result) Verdict() Verdict {
	return Classify(r.ExitCode, r.Stdout, r.Stderr)
}

// Runner executes a script batch against the partitioning utility.
type Runner interface {
	Run(ctx context.Context, script Script, timeout time.Duration) (*Result, error)
}

type execRunner struct {
	// argv invokes the utility in run-script-from-file mode; the script path
	// is appended as the final argument.
	argv  []string
	grace time.Duration
}

// NewRunner returns a Runner backed by the system diskpart binary.
func NewRunner() Runner {
	return &execRunner{argv: []string{"diskpart", "/s"}, grace: killGrace}
}

func (r *execRunner) Run(ctx context.Context, script Script, timeout time.Duration) (*Result, error) {
	path, err := writeScriptFile(script)
	if err != nil {
		return nil, fmt.Errorf("write script file: %w", err)
	}
	defer os.Remove(path)

	args := append(append([]string{}, r.argv[1:]...), path)
	cmd := exec.Command(r.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		return resultFrom(waitErr, &stdout, &stderr)
	case <-timer.C:
		r.terminate(ctx, cmd, done)
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		r.terminate(ctx, cmd, done)
		return nil, ctx.Err()
	}
}

// terminate asks the process to stop, waits out the grace period, then
// kills it.
func (r *execRunner) terminate(ctx context.Context, cmd *exec.Cmd, done chan error) {
	log := logger.FromContext(ctx)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		// Interrupt is not deliverable on Windows; fall through to the
		// hard kill after the grace period.
		log.Debug("interrupt not delivered", "error", err)
	}
	select {
	case <-done:
		return
	case <-time.After(r.grace):
	}
	if err := cmd.Process.Kill(); err != nil {
		log.Warn("failed to kill partitioning utility", "error", err)
	}
	<-done
}

func resultFrom(waitErr error, stdout, stderr *bytes.Buffer) (*Result, error) {
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait for partitioning utility: %w", waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

func writeScriptFile(script Script) (string, error) {
	f, err := os.CreateTemp("", "diskpart_*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(script.Body()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
