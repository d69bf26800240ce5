// Package diskpart runs scripted batches against the Windows diskpart
// utility and classifies their outcome. Scripts are written to a temporary
// file and executed with an argument vector; nothing is passed through a
// shell.
package diskpart

import (
	"fmt"
	"strings"
)

// Script is an ordered batch of diskpart directives, one per line. The
// terminal exit directive is appended when the script body is rendered.
type Script []string

// Body renders the script as the file content diskpart consumes.
func (s Script) Body() string {
	return strings.Join(append(append(Script{}, s...), "exit"), "\r\n") + "\r\n"
}

// ConvertGPT cleans a disk and converts it to GPT.
func ConvertGPT(disk int) Script {
	return Script{
		fmt.Sprintf("select disk %d", disk),
		"clean",
		"convert gpt",
		"list partition",
	}
}

// DeleteFirstPartition removes the Microsoft Reserved partition left behind
// by GPT conversion.
func DeleteFirstPartition(disk int) Script {
	return Script{
		fmt.Sprintf("select disk %d", disk),
		"list partition",
		"select partition 1",
		"delete partition override",
	}
}

// ListDisks emits the raw disk listing, used as the fallback GPT check.
func ListDisks(disk int) Script {
	return Script{
		fmt.Sprintf("select disk %d", disk),
		"list disk",
	}
}

// CreateEFI creates and formats the FAT32 EFI partition.
func CreateEFI(disk, sizeMB int, letter string) Script {
	return Script{
		fmt.Sprintf("select disk %d", disk),
		fmt.Sprintf("create partition efi size=%d", sizeMB),
		"format quick fs=fat32 label=EFI override",
		fmt.Sprintf("assign letter=%s", letter),
	}
}

// CreatePrimary creates and formats an NTFS primary partition. A sizeMB of 0
// consumes the remaining free space.
func CreatePrimary(disk, sizeMB int, letter string) Script {
	s := Script{fmt.Sprintf("select disk %d", disk)}
	if sizeMB > 0 {
		s = append(s, fmt.Sprintf("create partition primary size=%d", sizeMB))
	} else {
		s = append(s, "create partition primary")
	}
	s = append(s,
		"format quick fs=ntfs override",
		fmt.Sprintf("assign letter=%s", letter),
	)
	return s
}
