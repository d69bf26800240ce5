// Package orchestrator chains the full per-disk pipeline: partition
// provisioning, system image restore and boot repair, with a protected-disk
// gate in front. A parallel variant fans the pipeline out over several disks
// with bounded concurrency.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/deploykit/winprov/lib/bootrepair"
	"github.com/deploykit/winprov/lib/imaging"
	"github.com/deploykit/winprov/lib/inventory"
	"github.com/deploykit/winprov/lib/logger"
	"github.com/deploykit/winprov/lib/plan"
	"github.com/deploykit/winprov/lib/provision"
)

// ErrProtectedDisk is returned when the target disk's model name is on the
// excluded list.
var ErrProtectedDisk = errors.New("disk is protected")

// maxDefaultConcurrency caps the parallel default; diskpart serializes most
// of its work in the OS anyway, so more workers just pile up.
const maxDefaultConcurrency = 4

// Stage names the pipeline phase a result refers to.
type Stage string

const (
	StagePreflight    Stage = "preflight"
	StagePartitioning Stage = "partitioning"
	StageImaging      Stage = "imaging"
	StageBootRepair   Stage = "boot_repair"
	StageDone         Stage = "done"
)

// Result is the outcome of one disk's pipeline.
type Result struct {
	Slot     int
	Plan     plan.Plan
	Stage    Stage
	Run      *provision.Run
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the whole pipeline completed.
func (r *Result) Succeeded() bool { return r.Err == nil && r.Stage == StageDone }

// workflow is the slice of provision.Workflow the orchestrator needs.
type workflow interface {
	Execute(ctx context.Context, p plan.Plan) *provision.Run
}

// Orchestrator runs the pipeline for one disk at a time. The deployer and
// repairer are optional: without them the pipeline stops after partitioning,
// which is the partition-only operating mode.
type Orchestrator struct {
	inv      inventory.Manager
	workflow workflow
	deployer imaging.Deployer
	repairer bootrepair.Repairer

	efiSizeMB int
	cSizeMB   int
	protected []string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithImaging enables the image restore stage.
func WithImaging(d imaging.Deployer) Option {
	return func(o *Orchestrator) { o.deployer = d }
}

// WithBootRepair enables the boot repair stage.
func WithBootRepair(r bootrepair.Repairer) Option {
	return func(o *Orchestrator) { o.repairer = r }
}

// WithProtectedDisks sets the disk model names that must never be touched.
func WithProtectedDisks(names []string) Option {
	return func(o *Orchestrator) { o.protected = names }
}

// New builds an Orchestrator provisioning disks with the given partition
// sizes.
func New(inv inventory.Manager, wf *provision.Workflow, efiSizeMB, cSizeMB int, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		inv:       inv,
		workflow:  wf,
		efiSizeMB: efiSizeMB,
		cSizeMB:   cSizeMB,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Provision runs the pipeline for one slot. The first failing stage
// short-circuits the rest; the result names the stage it stopped in.
func (o *Orchestrator) Provision(ctx context.Context, slot int) *Result {
	start := time.Now()
	res := o.provision(ctx, slot)
	res.Duration = time.Since(start)

	log := logger.FromContext(ctx).With("slot", slot, "stage", res.Stage)
	if res.Succeeded() {
		log.Info("disk pipeline complete", "duration", res.Duration)
	} else {
		log.Error("disk pipeline failed", "error", res.Err)
	}
	return res
}

func (o *Orchestrator) provision(ctx context.Context, slot int) *Result {
	res := &Result{Slot: slot, Stage: StagePreflight}

	p, err := plan.FromSlot(slot, o.efiSizeMB, o.cSizeMB)
	if err != nil {
		res.Err = err
		return res
	}
	res.Plan = p

	if err := o.checkProtected(ctx, p.DiskNumber); err != nil {
		res.Err = err
		return res
	}

	res.Stage = StagePartitioning
	res.Run = o.workflow.Execute(ctx, p)
	if !res.Run.Succeeded() {
		res.Err = res.Run.Failure
		return res
	}

	if o.deployer != nil {
		res.Stage = StageImaging
		if err := o.deployer.Deploy(ctx, p.DiskNumber, p.CLetter); err != nil {
			res.Err = err
			return res
		}
	}

	if o.repairer != nil {
		res.Stage = StageBootRepair
		if err := o.repairer.Repair(ctx, p.CLetter, p.EFILetter); err != nil {
			res.Err = err
			return res
		}
	}

	res.Stage = StageDone
	return res
}

// checkProtected refuses disks whose model name is on the excluded list.
// The name comes from live inventory, so a missing disk also fails here.
func (o *Orchestrator) checkProtected(ctx context.Context, disk int) error {
	if len(o.protected) == 0 {
		return nil
	}
	rec, err := o.inv.Get(ctx, disk)
	if err != nil {
		return fmt.Errorf("protected-disk check for disk %d: %w", disk, err)
	}
	if lo.Contains(o.protected, rec.Name) {
		return fmt.Errorf("%w: disk %d (%s)", ErrProtectedDisk, disk, rec.Name)
	}
	return nil
}

// ProvisionAll runs the pipeline for every slot with at most maxConcurrency
// disks in flight. A failing disk never stops the others; the returned map
// holds one result per requested slot. maxConcurrency <= 0 selects
// min(len(slots), NumCPU, 4).
func (o *Orchestrator) ProvisionAll(ctx context.Context, slots []int, maxConcurrency int) map[int]*Result {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency(len(slots))
	}
	logger.FromContext(ctx).Info("provisioning disks", "slots", slots, "max_concurrency", maxConcurrency)

	var (
		mu      sync.Mutex
		results = make(map[int]*Result, len(slots))
		g       errgroup.Group
	)
	g.SetLimit(maxConcurrency)

	for _, slot := range lo.Uniq(slots) {
		slot := slot
		g.Go(func() error {
			res := o.Provision(ctx, slot)
			mu.Lock()
			results[slot] = res
			mu.Unlock()
			return nil
		})
	}
	// Workers report through results, never an error.
	_ = g.Wait()

	return results
}

func defaultConcurrency(disks int) int {
	return lo.Min([]int{disks, runtime.NumCPU(), maxDefaultConcurrency})
}
