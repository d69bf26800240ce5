package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
)

// SystemQuerier abstracts the OS disk-management facility. The production
// implementation shells out to PowerShell CIM queries; tests substitute a
// fake.
type SystemQuerier interface {
	// PhysicalDisks enumerates all physical disks.
	PhysicalDisks(ctx context.Context) ([]PhysicalDisk, error)
	// DriveLetterMap associates physical disk indexes with the drive
	// letters of the logical volumes they back.
	DriveLetterMap(ctx context.Context) (map[int][]string, error)
	// ProbeStyle returns the partition table format of one disk. A probe
	// failure degrades to StyleUnknown rather than returning an error.
	ProbeStyle(ctx context.Context, index int) PartitionStyle
}

// PhysicalDisk is the raw enumeration row before letter and style
// resolution.
type PhysicalDisk struct {
	Index         int
	Name          string
	CapacityBytes datasize.ByteSize
}

const styleProbeTimeout = 2 * time.Second

type cimQuerier struct {
	shell string
}

// NewSystemQuerier returns the PowerShell-backed querier.
func NewSystemQuerier() SystemQuerier {
	return &cimQuerier{shell: "powershell"}
}

type cimDiskDrive struct {
	Index   int         `json:"Index"`
	Caption string      `json:"Caption"`
	Size    json.Number `json:"Size"`
}

func (q *cimQuerier) PhysicalDisks(ctx context.Context) ([]PhysicalDisk, error) {
	out, err := q.invoke(ctx,
		`ConvertTo-Json -InputObject @(Get-CimInstance -ClassName Win32_DiskDrive | Select-Object Index,Caption,Size) -Compress`)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate disks: %s", ErrUnavailable, err)
	}

	var rows []cimDiskDrive
	if err := unmarshalRows(out, &rows); err != nil {
		return nil, fmt.Errorf("%w: parse disk enumeration: %s", ErrUnavailable, err)
	}

	disks := make([]PhysicalDisk, 0, len(rows))
	for _, row := range rows {
		size, err := row.Size.Int64()
		if err != nil || size < 0 {
			size = 0
		}
		disks = append(disks, PhysicalDisk{
			Index:         row.Index,
			Name:          row.Caption,
			CapacityBytes: datasize.ByteSize(size),
		})
	}
	return disks, nil
}

type cimLetterAssoc struct {
	Disk   string `json:"Disk"`   // "Disk #3, Partition #1"
	Letter string `json:"Letter"` // "N:"
}

var diskOrdinalRe = regexp.MustCompile(`Disk #(\d+)`)

func (q *cimQuerier) DriveLetterMap(ctx context.Context) (map[int][]string, error) {
	out, err := q.invoke(ctx,
		`ConvertTo-Json -InputObject @(Get-CimInstance -ClassName Win32_LogicalDiskToPartition | ForEach-Object { [pscustomobject]@{ Disk = $_.Antecedent.DeviceID; Letter = $_.Dependent.DeviceID } }) -Compress`)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate volumes: %s", ErrUnavailable, err)
	}

	var rows []cimLetterAssoc
	if err := unmarshalRows(out, &rows); err != nil {
		return nil, fmt.Errorf("%w: parse volume associations: %s", ErrUnavailable, err)
	}

	letters := make(map[int][]string)
	for _, row := range rows {
		m := diskOrdinalRe.FindStringSubmatch(row.Disk)
		if m == nil {
			continue
		}
		var idx int
		fmt.Sscanf(m[1], "%d", &idx)
		letter := strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(row.Letter), ":"))
		if len(letter) != 1 {
			continue
		}
		letters[idx] = append(letters[idx], letter)
	}
	return letters, nil
}

func (q *cimQuerier) ProbeStyle(ctx context.Context, index int) PartitionStyle {
	probeCtx, cancel := context.WithTimeout(ctx, styleProbeTimeout)
	defer cancel()

	out, err := q.invoke(probeCtx,
		fmt.Sprintf("Get-Disk -Number %d | Select-Object -ExpandProperty PartitionStyle", index))
	if err != nil {
		return StyleUnknown
	}
	return ParseStyle(strings.TrimSpace(string(out)))
}

func (q *cimQuerier) invoke(ctx context.Context, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, q.shell, "-NoProfile", "-NonInteractive", "-Command", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("powershell: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// unmarshalRows tolerates PowerShell collapsing single-element arrays into a
// bare object.
func unmarshalRows[T any](data []byte, rows *[]T) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, rows); err == nil {
		return nil
	}
	var single T
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*rows = []T{single}
	return nil
}
