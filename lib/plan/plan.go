// Package plan models a per-disk partition layout request and validates it
// against a disk-inventory snapshot before any mutating step runs.
package plan

// Plan is the partition layout for one disk: an EFI partition, a sized
// system partition (C), a data partition taking half the remainder (D), and
// a final partition consuming the rest (E).
//
// A zero size or empty letter means "not requested"; the validator skips
// absent fields so workflow steps can validate only what they are about to
// use. A Plan is read-only for the duration of a workflow run.
type Plan struct {
	DiskNumber int
	EFISizeMB  int
	EFILetter  string
	CSizeMB    int
	CLetter    string
	DLetter    string
	ELetter    string
}

// Letters returns the non-empty letter fields in EFI, C, D, E order.
func (p Plan) Letters() []string {
	letters := make([]string, 0, 4)
	for _, l := range []string{p.EFILetter, p.CLetter, p.DLetter, p.ELetter} {
		if l != "" {
			letters = append(letters, l)
		}
	}
	return letters
}

// EFIOnly strips the plan down to the fields the GPT conversion step uses.
func (p Plan) EFIOnly() Plan {
	return Plan{DiskNumber: p.DiskNumber, EFISizeMB: p.EFISizeMB, EFILetter: p.EFILetter}
}

// COnly strips the plan down to the fields the C creation step uses.
func (p Plan) COnly() Plan {
	return Plan{DiskNumber: p.DiskNumber, CSizeMB: p.CSizeMB, CLetter: p.CLetter}
}

// DOnly strips the plan down to the fields the D creation step uses.
func (p Plan) DOnly() Plan {
	return Plan{DiskNumber: p.DiskNumber, DLetter: p.DLetter}
}

// EOnly strips the plan down to the fields the E creation step uses.
func (p Plan) EOnly() Plan {
	return Plan{DiskNumber: p.DiskNumber, ELetter: p.ELetter}
}
