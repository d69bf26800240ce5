package provision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploykit/winprov/lib/diskpart"
	"github.com/deploykit/winprov/lib/inventory"
	"github.com/deploykit/winprov/lib/plan"
)

// virtualDisk is the observable state the fake runner mutates and the fake
// inventory reports, standing in for a real disk under diskpart.
type virtualDisk struct {
	mu       sync.Mutex
	index    int
	name     string
	capacity datasize.ByteSize
	style    inventory.PartitionStyle
	letters  []string

	// knobs
	gptConversionTakesEffect bool
	lettersTakeEffect        bool
}

func newVirtualDisk(index int) *virtualDisk {
	return &virtualDisk{
		index:                    index,
		name:                     "Test SSD",
		capacity:                 500 * datasize.GB,
		style:                    inventory.StyleRAW,
		gptConversionTakesEffect: true,
		lettersTakeEffect:        true,
	}
}

func (d *virtualDisk) record() inventory.DiskRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return inventory.DiskRecord{
		Index:          d.index,
		Name:           d.name,
		CapacityBytes:  d.capacity,
		DriveLetters:   append([]string{}, d.letters...),
		PartitionStyle: d.style,
	}
}

// fakeInv serves snapshots straight off the virtual disk.
type fakeInv struct {
	d             *virtualDisk
	invalidations []int
}

func (f *fakeInv) List(ctx context.Context) (*inventory.Snapshot, error) {
	rec := f.d.record()
	return &inventory.Snapshot{
		Disks:      map[int]inventory.DiskRecord{rec.Index: rec},
		CapturedAt: time.Now(),
	}, nil
}

func (f *fakeInv) Get(ctx context.Context, index int) (inventory.DiskRecord, error) {
	rec := f.d.record()
	if index != rec.Index {
		return inventory.DiskRecord{}, fmt.Errorf("%w: index %d", inventory.ErrNotFound, index)
	}
	return rec, nil
}

func (f *fakeInv) Invalidate(index int) { f.invalidations = append(f.invalidations, index) }
func (f *fakeInv) InvalidateAll()       {}

// fakeRunner applies scripts to the virtual disk and answers success unless
// a script matcher overrides the result.
type fakeRunner struct {
	d        *virtualDisk
	scripts  []diskpart.Script
	override func(call int, s diskpart.Script) (*diskpart.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, s diskpart.Script, timeout time.Duration) (*diskpart.Result, error) {
	call := len(f.scripts)
	f.scripts = append(f.scripts, s)

	if f.override != nil {
		if res, err := f.override(call, s); res != nil || err != nil {
			return res, err
		}
	}

	body := s.Body()
	f.d.mu.Lock()
	if strings.Contains(body, "convert gpt") && f.d.gptConversionTakesEffect {
		f.d.style = inventory.StyleGPT
	}
	if f.d.lettersTakeEffect {
		for _, line := range s {
			if strings.HasPrefix(line, "assign letter=") {
				f.d.letters = append(f.d.letters, strings.TrimPrefix(line, "assign letter="))
			}
		}
	}
	f.d.mu.Unlock()

	return &diskpart.Result{ExitCode: 0, Stdout: "DiskPart successfully completed the operation."}, nil
}

func (f *fakeRunner) countMatching(substr string) int {
	n := 0
	for _, s := range f.scripts {
		if strings.Contains(s.Body(), substr) {
			n++
		}
	}
	return n
}

func testPlan() plan.Plan {
	return plan.Plan{
		DiskNumber: 3,
		EFISizeMB:  500,
		EFILetter:  "M",
		CSizeMB:    102400,
		CLetter:    "N",
		DLetter:    "O",
		ELetter:    "P",
	}
}

func newTestWorkflow(d *virtualDisk, r *fakeRunner) *Workflow {
	return New(&fakeInv{d: d}, r,
		WithElevationCheck(func() bool { return true }),
		WithStepTimeout(time.Second))
}

func TestWorkflowHappyPath(t *testing.T) {
	d := newVirtualDisk(3)
	r := &fakeRunner{d: d}
	w := newTestWorkflow(d, r)

	run := w.Execute(context.Background(), testPlan())
	require.Nil(t, run.Failure)
	require.True(t, run.Succeeded())
	assert.Equal(t, StepDone, run.Step)

	// One batch each: convert, MSR cleanup, EFI, C, D, E. The style probe
	// confirmed GPT, so no fallback listing ran.
	assert.Equal(t, 1, r.countMatching("convert gpt"))
	assert.Equal(t, 1, r.countMatching("delete partition override"))
	assert.Equal(t, 0, r.countMatching("list disk"))
	assert.Equal(t, 1, r.countMatching("create partition efi size=500"))
	assert.Equal(t, 1, r.countMatching("create partition primary size=102400"))

	// D gets half of (512000 - 500 - 102400).
	assert.Equal(t, 1, r.countMatching("create partition primary size=204550"))
}

func TestGPTVerificationFailure(t *testing.T) {
	// The tool claims success but the disk still reports MBR and the raw
	// listing carries no GPT marker.
	d := newVirtualDisk(3)
	d.style = inventory.StyleMBR
	d.gptConversionTakesEffect = false
	r := &fakeRunner{d: d}
	w := newTestWorkflow(d, r)

	run := w.Execute(context.Background(), testPlan())
	require.NotNil(t, run.Failure)
	assert.Equal(t, StepFailed, run.Step)
	assert.Equal(t, StepVerifyingGPT, run.Failure.Step)
	assert.Equal(t, FailureVerification, run.Failure.Kind)

	// The fallback listing was consulted before giving up.
	assert.Equal(t, 1, r.countMatching("list disk"))
	// No partition was created on an unconverted disk.
	assert.Equal(t, 0, r.countMatching("create partition"))
}

func TestGPTFallbackMarkerAccepted(t *testing.T) {
	// Style probe stays Unknown but the raw listing shows the GPT marker.
	d := newVirtualDisk(3)
	d.gptConversionTakesEffect = false
	d.style = inventory.StyleUnknown
	r := &fakeRunner{d: d}
	r.override = func(call int, s diskpart.Script) (*diskpart.Result, error) {
		if strings.Contains(s.Body(), "list disk") {
			return &diskpart.Result{ExitCode: 0, Stdout: "  Disk 3   Online   500 GB   0 B        *"}, nil
		}
		return nil, nil
	}
	w := newTestWorkflow(d, r)

	run := w.Execute(context.Background(), testPlan())
	require.Nil(t, run.Failure)
	assert.True(t, run.Succeeded())
}

func TestPermissionDeniedBeforeAnyMutation(t *testing.T) {
	d := newVirtualDisk(3)
	r := &fakeRunner{d: d}
	w := New(&fakeInv{d: d}, r, WithElevationCheck(func() bool { return false }))

	run := w.Execute(context.Background(), testPlan())
	require.NotNil(t, run.Failure)
	assert.Equal(t, FailurePermission, run.Failure.Kind)
	assert.Empty(t, r.scripts, "diskpart must not be invoked without privileges")
}

func TestValidationFailureNeverRetried(t *testing.T) {
	d := newVirtualDisk(3)
	r := &fakeRunner{d: d}
	w := newTestWorkflow(d, r)

	p := testPlan()
	p.CLetter = "S" // reserved

	run := w.Execute(context.Background(), p)
	require.NotNil(t, run.Failure)
	assert.Equal(t, FailureValidation, run.Failure.Kind)
	assert.Equal(t, StepValidating, run.Failure.Step)
	assert.Empty(t, r.scripts)
}

func TestMSRCleanupFailureIsNonFatal(t *testing.T) {
	d := newVirtualDisk(3)
	r := &fakeRunner{d: d}
	r.override = func(call int, s diskpart.Script) (*diskpart.Result, error) {
		if strings.Contains(s.Body(), "delete partition override") {
			return &diskpart.Result{ExitCode: 1, Stdout: "The specified partition was not found."}, nil
		}
		return nil, nil
	}
	w := newTestWorkflow(d, r)

	run := w.Execute(context.Background(), testPlan())
	require.Nil(t, run.Failure)
	assert.True(t, run.Succeeded())
}

func TestCreationRetriesTransitoryFailure(t *testing.T) {
	d := newVirtualDisk(3)
	r := &fakeRunner{d: d}
	failedOnce := false
	r.override = func(call int, s diskpart.Script) (*diskpart.Result, error) {
		if strings.Contains(s.Body(), "create partition efi") && !failedOnce {
			failedOnce = true
			return &diskpart.Result{ExitCode: 0, Stdout: "Virtual Disk Service error: the operation failed"}, nil
		}
		return nil, nil
	}
	w := newTestWorkflow(d, r)

	run := w.Execute(context.Background(), testPlan())
	require.Nil(t, run.Failure)
	assert.True(t, run.Succeeded())
	assert.Equal(t, 2, r.countMatching("create partition efi"))
}

func TestCreationGivesUpAfterMaxAttempts(t *testing.T) {
	d := newVirtualDisk(3)
	r := &fakeRunner{d: d}
	r.override = func(call int, s diskpart.Script) (*diskpart.Result, error) {
		if strings.Contains(s.Body(), "create partition efi") {
			return nil, fmt.Errorf("%w after 1s", diskpart.ErrTimeout)
		}
		return nil, nil
	}
	w := newTestWorkflow(d, r)

	run := w.Execute(context.Background(), testPlan())
	require.NotNil(t, run.Failure)
	assert.Equal(t, FailureTimeout, run.Failure.Kind)
	assert.Equal(t, maxAttempts, r.countMatching("create partition efi"))
}

func TestLetterVerificationFailureIsFatal(t *testing.T) {
	// diskpart claims success but the letter never shows up: retrying
	// blindly risks data loss, so this is not retried.
	d := newVirtualDisk(3)
	d.lettersTakeEffect = false
	r := &fakeRunner{d: d}
	w := newTestWorkflow(d, r)

	run := w.Execute(context.Background(), testPlan())
	require.NotNil(t, run.Failure)
	assert.Equal(t, FailureVerification, run.Failure.Kind)
	assert.Equal(t, StepCreatingEFI, run.Failure.Step)
	assert.Equal(t, 1, r.countMatching("create partition efi"))
}

func TestGPTConversionTimeoutNotRetried(t *testing.T) {
	d := newVirtualDisk(3)
	r := &fakeRunner{d: d}
	r.override = func(call int, s diskpart.Script) (*diskpart.Result, error) {
		if strings.Contains(s.Body(), "convert gpt") {
			return nil, fmt.Errorf("%w after 1s", diskpart.ErrTimeout)
		}
		return nil, nil
	}
	w := newTestWorkflow(d, r)

	run := w.Execute(context.Background(), testPlan())
	require.NotNil(t, run.Failure)
	assert.Equal(t, FailureTimeout, run.Failure.Kind)
	assert.Equal(t, 1, r.countMatching("convert gpt"))
}

func TestInvalidationIsScopedToTheDisk(t *testing.T) {
	d := newVirtualDisk(3)
	inv := &fakeInv{d: d}
	r := &fakeRunner{d: d}
	w := New(inv, r, WithElevationCheck(func() bool { return true }))

	run := w.Execute(context.Background(), testPlan())
	require.True(t, run.Succeeded())
	require.NotEmpty(t, inv.invalidations)
	for _, idx := range inv.invalidations {
		assert.Equal(t, 3, idx)
	}
}

func TestStepTransitionTable(t *testing.T) {
	assert.True(t, StepValidating.CanTransitionTo(StepConvertingGPT))
	assert.True(t, StepCreatingE.CanTransitionTo(StepFailed))
	assert.False(t, StepValidating.CanTransitionTo(StepCreatingC))
	assert.False(t, StepDone.CanTransitionTo(StepValidating))
	assert.True(t, StepDone.IsTerminal())
	assert.True(t, StepFailed.IsTerminal())
	assert.False(t, StepCreatingD.IsTerminal())
}
