package provision

// Step names a state of the partition provisioning machine. One run moves
// through the steps strictly in order; Failed absorbs from anywhere.
type Step string

const (
	StepValidating    Step = "validating"
	StepConvertingGPT Step = "converting_gpt"
	StepCleaningMSR   Step = "cleaning_msr"
	StepVerifyingGPT  Step = "verifying_gpt"
	StepCreatingEFI   Step = "creating_efi"
	StepCreatingC     Step = "creating_c"
	StepCreatingD     Step = "creating_d"
	StepCreatingE     Step = "creating_e"
	StepVerifying     Step = "verifying"
	StepDone          Step = "done"
	StepFailed        Step = "failed"
)

// stepOrder is the single happy path; each step's preconditions depend on
// the previous step's verified effects, so there is no other ordering.
var stepOrder = []Step{
	StepValidating,
	StepConvertingGPT,
	StepCleaningMSR,
	StepVerifyingGPT,
	StepCreatingEFI,
	StepCreatingC,
	StepCreatingD,
	StepCreatingE,
	StepVerifying,
	StepDone,
}

// ValidTransitions defines allowed single-hop transitions.
var ValidTransitions = func() map[Step][]Step {
	m := make(map[Step][]Step, len(stepOrder))
	for i := 0; i < len(stepOrder)-1; i++ {
		m[stepOrder[i]] = []Step{stepOrder[i+1], StepFailed}
	}
	return m
}()

// CanTransitionTo checks whether moving from s to target is a valid hop.
func (s Step) CanTransitionTo(target Step) bool {
	for _, valid := range ValidTransitions[s] {
		if valid == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the machine halts in this step.
func (s Step) IsTerminal() bool {
	return s == StepDone || s == StepFailed
}

func (s Step) String() string { return string(s) }
