package inventory

import (
	"sort"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"
)

// PartitionStyle is the partition table format reported by the OS for a
// physical disk.
type PartitionStyle string

const (
	StyleGPT     PartitionStyle = "GPT"
	StyleMBR     PartitionStyle = "MBR"
	StyleRAW     PartitionStyle = "RAW"
	StyleUnknown PartitionStyle = "Unknown"
)

// ParseStyle maps raw probe output to a PartitionStyle, degrading anything
// unrecognized to StyleUnknown.
func ParseStyle(s string) PartitionStyle {
	switch PartitionStyle(s) {
	case StyleGPT, StyleMBR, StyleRAW:
		return PartitionStyle(s)
	default:
		return StyleUnknown
	}
}

// DiskRecord is a point-in-time view of one physical disk. Records are
// immutable; a fresh enumeration produces new records rather than mutating
// existing ones.
type DiskRecord struct {
	Index          int
	Name           string
	CapacityBytes  datasize.ByteSize
	DriveLetters   []string // sorted single uppercase letters
	PartitionStyle PartitionStyle
}

// CapacityMB returns the disk capacity in whole megabytes.
func (d DiskRecord) CapacityMB() uint64 {
	return uint64(d.CapacityBytes / datasize.MB)
}

// HasLetter reports whether the given drive letter is currently assigned to
// a volume on this disk.
func (d DiskRecord) HasLetter(letter string) bool {
	return lo.Contains(d.DriveLetters, letter)
}

// Snapshot is a complete, consistent view of all physical disks. Snapshots
// are replaced wholesale on refresh, never partially updated in place.
type Snapshot struct {
	Disks      map[int]DiskRecord
	CapturedAt time.Time
}

// Get looks up a disk by OS index.
func (s *Snapshot) Get(index int) (DiskRecord, bool) {
	rec, ok := s.Disks[index]
	return rec, ok
}

// MaxIndex returns the highest disk index present, or -1 for an empty
// snapshot.
func (s *Snapshot) MaxIndex() int {
	max := -1
	for idx := range s.Disks {
		if idx > max {
			max = idx
		}
	}
	return max
}

// Sorted returns the records ordered by disk index.
func (s *Snapshot) Sorted() []DiskRecord {
	records := lo.Values(s.Disks)
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return records
}
