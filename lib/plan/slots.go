package plan

import "fmt"

// Slot is a preconfigured disk position with a fixed set of four drive
// letters. Technicians address machines by slot number; the slot resolves to
// the OS disk index of the same value.
type Slot struct {
	Number    int
	EFILetter string
	CLetter   string
	DLetter   string
	ELetter   string
}

// slotTable is static deployment configuration, not user input. Slot 4's D
// letter collides with the reserved set and is rejected at validation time;
// the table is kept as deployed in the field.
var slotTable = []Slot{
	{Number: 1, EFILetter: "E", CLetter: "F", DLetter: "G", ELetter: "H"},
	{Number: 2, EFILetter: "I", CLetter: "J", DLetter: "K", ELetter: "L"},
	{Number: 3, EFILetter: "M", CLetter: "N", DLetter: "O", ELetter: "P"},
	{Number: 4, EFILetter: "Q", CLetter: "R", DLetter: "S", ELetter: "T"},
	{Number: 5, EFILetter: "U", CLetter: "V", DLetter: "W", ELetter: "X"},
	{Number: 6, EFILetter: "Y", CLetter: "Z", DLetter: "A", ELetter: "B"},
}

// SlotCount is the number of configured disk slots.
const SlotCount = 6

// LookupSlot returns the letter assignments for a slot number (1-6).
func LookupSlot(number int) (Slot, error) {
	for _, s := range slotTable {
		if s.Number == number {
			return s, nil
		}
	}
	return Slot{}, fmt.Errorf("slot %d out of range 1-%d", number, SlotCount)
}

// FromSlot resolves a slot number plus caller-supplied sizes into a concrete
// Plan. The slot number is used verbatim as the OS disk index.
func FromSlot(number, efiSizeMB, cSizeMB int) (Plan, error) {
	slot, err := LookupSlot(number)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		DiskNumber: slot.Number,
		EFISizeMB:  efiSizeMB,
		EFILetter:  slot.EFILetter,
		CSizeMB:    cSizeMB,
		CLetter:    slot.CLetter,
		DLetter:    slot.DLetter,
		ELetter:    slot.ELetter,
	}, nil
}
