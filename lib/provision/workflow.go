// Package provision implements the partition provisioning state machine: it
// turns a validated partition plan into an ordered sequence of diskpart
// batches, checking observable disk state through the inventory cache after
// every mutating step.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deploykit/winprov/lib/diskpart"
	"github.com/deploykit/winprov/lib/inventory"
	"github.com/deploykit/winprov/lib/logger"
	"github.com/deploykit/winprov/lib/plan"
	"github.com/deploykit/winprov/lib/privileges"
)

// DefaultStepTimeout bounds a single diskpart batch.
const DefaultStepTimeout = 120 * time.Second

// Run is the mutable state of one provisioning attempt. It is owned by the
// caller driving one disk and never shared across goroutines.
type Run struct {
	Plan       plan.Plan
	Step       Step
	Failure    *StepError
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the run reached Done.
func (r *Run) Succeeded() bool { return r.Step == StepDone }

// Workflow sequences GPT conversion, reserved-partition cleanup and the
// four partition creations for one disk at a time.
type Workflow struct {
	inv      inventory.Manager
	runner   diskpart.Runner
	elevated func() bool
	timeout  time.Duration
}

// Option customizes a Workflow.
type Option func(*Workflow)

// WithStepTimeout overrides the per-batch diskpart timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.timeout = d }
}

// WithElevationCheck substitutes the privilege probe, for tests.
func WithElevationCheck(fn func() bool) Option {
	return func(w *Workflow) { w.elevated = fn }
}

// New builds a workflow over the given inventory and runner.
func New(inv inventory.Manager, runner diskpart.Runner, opts ...Option) *Workflow {
	w := &Workflow{
		inv:      inv,
		runner:   runner,
		elevated: privileges.IsElevated,
		timeout:  DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Execute drives the plan to Done or the first unrecoverable failure. No
// rollback is attempted: partitions already formatted stay as they are, and
// re-running from scratch re-cleans the disk.
func (w *Workflow) Execute(ctx context.Context, p plan.Plan) *Run {
	run := &Run{Plan: p, Step: StepValidating, StartedAt: time.Now()}
	log := logger.FromContext(ctx).With("disk", p.DiskNumber)

	if serr := w.execute(ctx, log, run, p); serr != nil {
		run.Step = StepFailed
		run.Failure = serr
		log.Error("provisioning failed", "step", serr.Step, "kind", serr.Kind, "error", serr.Err)
	} else {
		log.Info("provisioning complete", "letters", p.Letters())
	}
	run.FinishedAt = time.Now()
	return run
}

func (w *Workflow) execute(ctx context.Context, log *slog.Logger, run *Run, p plan.Plan) *StepError {
	disk := p.DiskNumber

	snap, err := w.inv.List(ctx)
	if err != nil {
		return inventoryErr(StepValidating, err)
	}
	if err := plan.Validate(p, snap); err != nil {
		return stepErr(StepValidating, FailureValidation, err)
	}

	// Privilege precondition, checked once before the first mutating step.
	if !w.elevated() {
		return stepErr(StepConvertingGPT, FailurePermission,
			errors.New("administrator privileges are required for disk partitioning"))
	}

	w.advance(log, run, StepConvertingGPT)
	if serr := w.runScript(ctx, StepConvertingGPT, diskpart.ConvertGPT(disk)); serr != nil {
		return serr
	}

	w.advance(log, run, StepCleaningMSR)
	if serr := w.runScript(ctx, StepCleaningMSR, diskpart.DeleteFirstPartition(disk)); serr != nil {
		// The reserved partition does not block the partitions we create
		// next; its absence is merely preferred.
		log.Warn("reserved partition cleanup failed, continuing", "error", serr.Err)
	}

	w.advance(log, run, StepVerifyingGPT)
	if serr := w.verifyGPT(ctx, disk); serr != nil {
		return serr
	}

	w.advance(log, run, StepCreatingEFI)
	if serr := withRetry(ctx, StepCreatingEFI, func() *StepError {
		return w.createStep(ctx, StepCreatingEFI, p.EFIOnly(), p.EFILetter,
			func(inventory.DiskRecord) diskpart.Script {
				return diskpart.CreateEFI(disk, p.EFISizeMB, p.EFILetter)
			})
	}); serr != nil {
		return serr
	}

	w.advance(log, run, StepCreatingC)
	if serr := withRetry(ctx, StepCreatingC, func() *StepError {
		return w.createStep(ctx, StepCreatingC, p.COnly(), p.CLetter,
			func(inventory.DiskRecord) diskpart.Script {
				return diskpart.CreatePrimary(disk, p.CSizeMB, p.CLetter)
			})
	}); serr != nil {
		return serr
	}

	w.advance(log, run, StepCreatingD)
	if serr := withRetry(ctx, StepCreatingD, func() *StepError {
		return w.createStep(ctx, StepCreatingD, p.DOnly(), p.DLetter,
			func(rec inventory.DiskRecord) diskpart.Script {
				// D takes half of what remains after EFI and C.
				dSize := (int(rec.CapacityMB()) - p.EFISizeMB - p.CSizeMB) / 2
				return diskpart.CreatePrimary(disk, dSize, p.DLetter)
			})
	}); serr != nil {
		return serr
	}

	w.advance(log, run, StepCreatingE)
	if serr := withRetry(ctx, StepCreatingE, func() *StepError {
		return w.createStep(ctx, StepCreatingE, p.EOnly(), p.ELetter,
			func(inventory.DiskRecord) diskpart.Script {
				// No size argument: E consumes the remaining free space.
				return diskpart.CreatePrimary(disk, 0, p.ELetter)
			})
	}); serr != nil {
		return serr
	}

	w.advance(log, run, StepVerifying)
	if serr := w.verifyAllLetters(ctx, p); serr != nil {
		return serr
	}

	w.advance(log, run, StepDone)
	return nil
}

func (w *Workflow) advance(log *slog.Logger, run *Run, to Step) {
	if !run.Step.CanTransitionTo(to) {
		// Ordering is fixed by stepOrder; reaching here is a programming
		// error, not an operational one.
		panic(fmt.Sprintf("invalid workflow transition %s -> %s", run.Step, to))
	}
	log.Debug("workflow transition", "from", run.Step, "to", to)
	run.Step = to
}

// runScript executes one diskpart batch and folds the result into the error
// taxonomy.
func (w *Workflow) runScript(ctx context.Context, step Step, script diskpart.Script) *StepError {
	res, err := w.runner.Run(ctx, script, w.timeout)
	if err != nil {
		if errors.Is(err, diskpart.ErrTimeout) {
			return stepErr(step, FailureTimeout, err)
		}
		return stepErr(step, FailureExecution, err)
	}
	if res.Verdict() != diskpart.VerdictSuccess {
		return stepErrf(step, FailureExecution,
			"diskpart reported failure (exit %d): %s", res.ExitCode, condense(res.Stdout, res.Stderr))
	}
	return nil
}

// createStep validates the step's own fields against the current snapshot,
// runs the creation batch, then confirms the assigned letter is observable.
func (w *Workflow) createStep(ctx context.Context, step Step, sub plan.Plan, letter string,
	build func(inventory.DiskRecord) diskpart.Script) *StepError {

	snap, err := w.inv.List(ctx)
	if err != nil {
		return inventoryErr(step, err)
	}
	if verr := plan.Validate(sub, snap); verr != nil {
		return stepErr(step, FailureValidation, verr)
	}
	rec, ok := snap.Get(sub.DiskNumber)
	if !ok {
		return stepErrf(step, FailureDiskNotFound, "disk %d vanished from inventory", sub.DiskNumber)
	}

	script := build(rec)
	if serr := w.runScript(ctx, step, script); serr != nil {
		return serr
	}

	// A 30-second-old cache could mask the change we just made.
	w.inv.Invalidate(sub.DiskNumber)
	rec, err = w.inv.Get(ctx, sub.DiskNumber)
	if err != nil {
		return inventoryErr(step, err)
	}
	if !rec.HasLetter(letter) {
		return stepErrf(step, FailureVerification,
			"letter %s not visible on disk %d after %s (have %v)", letter, sub.DiskNumber, step, rec.DriveLetters)
	}
	return nil
}

// verifyGPT confirms the conversion took effect: first via the partition
// style probe, then by scanning the raw disk listing for the GPT marker.
func (w *Workflow) verifyGPT(ctx context.Context, disk int) *StepError {
	w.inv.Invalidate(disk)
	rec, err := w.inv.Get(ctx, disk)
	if err != nil {
		return inventoryErr(StepVerifyingGPT, err)
	}
	if rec.PartitionStyle == inventory.StyleGPT {
		return nil
	}

	res, err := w.runner.Run(ctx, diskpart.ListDisks(disk), w.timeout)
	if err == nil && diskpart.HasGPTMarker(res.Stdout, disk) {
		return nil
	}
	return stepErrf(StepVerifyingGPT, FailureVerification,
		"disk %d reports partition style %s after GPT conversion", disk, rec.PartitionStyle)
}

// verifyAllLetters is the final gate before Done: all four intended letters
// must be present on the disk.
func (w *Workflow) verifyAllLetters(ctx context.Context, p plan.Plan) *StepError {
	w.inv.Invalidate(p.DiskNumber)
	rec, err := w.inv.Get(ctx, p.DiskNumber)
	if err != nil {
		return inventoryErr(StepVerifying, err)
	}
	for _, letter := range p.Letters() {
		if !rec.HasLetter(letter) {
			return stepErrf(StepVerifying, FailureVerification,
				"letter %s missing from disk %d (have %v)", letter, p.DiskNumber, rec.DriveLetters)
		}
	}
	return nil
}

func inventoryErr(step Step, err error) *StepError {
	if errors.Is(err, inventory.ErrNotFound) {
		return stepErr(step, FailureDiskNotFound, err)
	}
	return stepErr(step, FailureInventory, err)
}

func condense(stdout, stderr string) string {
	s := strings.TrimSpace(stdout + " " + stderr)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
