package plan

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/deploykit/winprov/lib/inventory"
)

// Reason identifies which validation rule a plan violated.
type Reason string

const (
	ReasonDiskNumber      Reason = "bad_disk_number"
	ReasonDiskMissing     Reason = "disk_not_in_inventory"
	ReasonBadLetter       Reason = "bad_letter"
	ReasonReservedLetter  Reason = "reserved_letter"
	ReasonDuplicateLetter Reason = "duplicate_letter"
	ReasonEFISize         Reason = "efi_size_out_of_bounds"
	ReasonCSize           Reason = "c_size_out_of_bounds"
)

// ValidationError reports the first violated rule. Validation errors are
// never retried.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed (%s): %s", e.Reason, e.Detail)
}

// ReservedLetters are never assignable: C and D belong to the host OS, S to
// the staging volume.
var ReservedLetters = []string{"C", "D", "S"}

// Validate checks a plan against an inventory snapshot. It is pure: it only
// reads the already-fetched snapshot and never talks to the partitioning
// utility. Rules are checked in order and the first violation wins.
//
// Empty letters and zero sizes are treated as absent and skipped, which lets
// each workflow step validate only its own fields.
func Validate(p Plan, snap *inventory.Snapshot) error {
	if p.DiskNumber < 0 {
		return &ValidationError{ReasonDiskNumber, fmt.Sprintf("disk number %d is negative", p.DiskNumber)}
	}
	rec, ok := snap.Get(p.DiskNumber)
	if !ok {
		return &ValidationError{ReasonDiskMissing,
			fmt.Sprintf("disk %d not present in inventory (max index %d)", p.DiskNumber, snap.MaxIndex())}
	}

	letters := p.Letters()
	for _, l := range letters {
		if len(l) != 1 || l[0] < 'A' || l[0] > 'Z' {
			return &ValidationError{ReasonBadLetter, fmt.Sprintf("%q is not a single uppercase letter", l)}
		}
	}
	for _, l := range letters {
		if lo.Contains(ReservedLetters, l) {
			return &ValidationError{ReasonReservedLetter, fmt.Sprintf("letter %s is reserved", l)}
		}
	}
	if len(lo.Uniq(letters)) != len(letters) {
		return &ValidationError{ReasonDuplicateLetter, fmt.Sprintf("letters %v are not pairwise distinct", letters)}
	}

	capacityMB := rec.CapacityMB()
	if p.EFISizeMB != 0 {
		if p.EFISizeMB < 0 {
			return &ValidationError{ReasonEFISize, fmt.Sprintf("EFI size %dMB is not positive", p.EFISizeMB)}
		}
		// EFI partition is capped at one tenth of the disk.
		if uint64(p.EFISizeMB)*10 > capacityMB {
			return &ValidationError{ReasonEFISize,
				fmt.Sprintf("EFI size %dMB exceeds a tenth of disk %d capacity (%dMB)", p.EFISizeMB, p.DiskNumber, capacityMB)}
		}
	}
	if p.CSizeMB != 0 {
		if p.CSizeMB < 0 {
			return &ValidationError{ReasonCSize, fmt.Sprintf("C size %dMB is not positive", p.CSizeMB)}
		}
		if uint64(p.CSizeMB) > capacityMB {
			return &ValidationError{ReasonCSize,
				fmt.Sprintf("C size %dMB exceeds disk %d capacity (%dMB)", p.CSizeMB, p.DiskNumber, capacityMB)}
		}
	}

	return nil
}
