package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Profile is the deployment profile: partition sizes, tool and image paths,
// and the disks that must never be touched. It ships alongside the tool as a
// JSON file maintained by the deployment team.
type Profile struct {
	EFISizeMB         int      `json:"efi_size"`
	CSizeMB           int      `json:"c_size"`
	GhostExe          string   `json:"gho_exe"`
	ImagePath         string   `json:"win_gho"`
	BcdbootExe        string   `json:"bcd_exe"`
	ExcludedDiskNames []string `json:"excluded_disk_names"`
	Description       string   `json:"description"`
}

// Imaging reports whether the profile enables the image restore stage. Both
// the tool and the image must be configured; boot repair additionally needs
// bcdboot.
func (p *Profile) Imaging() bool { return p.GhostExe != "" && p.ImagePath != "" }

// BootRepair reports whether the profile enables the boot repair stage.
func (p *Profile) BootRepair() bool { return p.BcdbootExe != "" }

// LoadProfile reads and validates a profile file. Whether the referenced
// tool and image files exist is checked by the stages that use them, not
// here; the machine building the profile is often not the machine running
// the tool.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}

	if p.EFISizeMB <= 0 {
		return nil, fmt.Errorf("profile %s: efi_size must be positive, got %d", path, p.EFISizeMB)
	}
	if p.CSizeMB <= 0 {
		return nil, fmt.Errorf("profile %s: c_size must be positive, got %d", path, p.CSizeMB)
	}
	if p.ImagePath != "" && p.GhostExe == "" {
		return nil, fmt.Errorf("profile %s: win_gho set but gho_exe missing", path)
	}

	return &p, nil
}
