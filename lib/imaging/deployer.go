// Package imaging restores a system image onto a freshly provisioned disk
// using the ghost utility, then confirms the restored volume actually carries
// a Windows tree before reporting success.
package imaging

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

// DefaultTimeout bounds one image restore. Restores of full system images
// routinely run for many minutes; twenty is the operational ceiling.
const DefaultTimeout = 1200 * time.Second

var (
	// ErrTimeout is returned when the restore exceeded its budget and the
	// process had to be killed.
	ErrTimeout = errors.New("image restore timed out")
	// ErrVerification is returned when the tool reported success but the
	// restored volume carries no Windows tree.
	ErrVerification = errors.New("restored volume verification failed")
)

// Deployer restores the configured system image onto a disk's second
// partition and verifies the result on the named system volume.
type Deployer interface {
	Deploy(ctx context.Context, disk int, systemLetter string) error
}

type ghostDeployer struct {
	// argv invokes the imaging tool; the clone arguments are appended.
	argv    []string
	image   string
	timeout time.Duration

	// systemRoot maps a drive letter to the directory whose contents prove
	// the restore landed; swapped out in tests.
	systemRoot func(letter string) string
}

// Option customizes a Deployer.
type Option func(*ghostDeployer)

// WithTimeout overrides the restore deadline.
func WithTimeout(d time.Duration) Option {
	return func(g *ghostDeployer) { g.timeout = d }
}

// NewDeployer builds a Deployer invoking the given ghost executable with the
// given image file.
func NewDeployer(exe, image string, opts ...Option) Deployer {
	g := &ghostDeployer{
		argv:       []string{exe},
		image:      image,
		timeout:    DefaultTimeout,
		systemRoot: func(letter string) string { return letter + `:\Windows` },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *ghostDeployer) Deploy(ctx context.Context, disk int, systemLetter string) error {
	if _, err := os.Stat(g.argv[0]); err != nil {
		return fmt.Errorf("imaging tool not found at %s: %w", g.argv[0], err)
	}
	if _, err := os.Stat(g.image); err != nil {
		return fmt.Errorf("image file not found at %s: %w", g.image, err)
	}

	log := logger.FromContext(ctx).With("disk", disk, "image", g.image)
	log.Info("restoring system image", "timeout", g.timeout)

	// Partition 1 of the image onto partition 2 of the target disk, which is
	// the system partition right after EFI in the layout we provision.
	cloneArg := fmt.Sprintf("-clone,mode=pload,src=%s:1,dst=%d:2", g.image, disk)
	args := append(append([]string{}, g.argv[1:]...), cloneArg, "-sure", "-ntexact")
	cmd := exec.Command(g.argv[0], args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start imaging tool: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		if waitErr != nil {
			return fmt.Errorf("imaging tool failed: %w: %s", waitErr, trim(output.String()))
		}
	case <-timer.C:
		g.kill(ctx, cmd, done)
		return fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
	case <-ctx.Done():
		g.kill(ctx, cmd, done)
		return ctx.Err()
	}

	if err := g.verify(systemLetter); err != nil {
		return err
	}
	log.Info("image restore complete", "system_letter", systemLetter)
	return nil
}

// kill terminates a restore immediately. A half-written image is not
// salvageable, so there is no graceful-stop window.
func (g *ghostDeployer) kill(ctx context.Context, cmd *exec.Cmd, done chan error) {
	if err := cmd.Process.Kill(); err != nil {
		logger.FromContext(ctx).Warn("failed to kill imaging tool", "error", err)
	}
	<-done
}

// verify checks the restored volume holds a non-empty Windows directory. A
// zero exit from the tool alone is not trusted.
func (g *ghostDeployer) verify(systemLetter string) error {
	root := g.systemRoot(systemLetter)
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("%w: cannot read %s: %v", ErrVerification, root, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrVerification, root)
	}
	return nil
}

func trim(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
