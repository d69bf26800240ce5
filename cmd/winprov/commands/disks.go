package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/deploykit/winprov/cmd/winprov/config"
	"github.com/deploykit/winprov/lib/inventory"
)

var (
	diskHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3b82f6"))

	diskDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6b7280"))
)

// Disks returns the command listing the machine's physical disks.
func Disks(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "disks",
		Short: "List physical disks with capacity, partition style and drive letters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			inv := inventory.NewManager(inventory.NewSystemQuerier(), cfg.InventoryTTL)
			snap, err := inv.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("query disks: %w", err)
			}
			fmt.Print(renderDiskTable(snap))
			return nil
		},
	}
}

func renderDiskTable(snap *inventory.Snapshot) string {
	var b strings.Builder

	b.WriteString(diskHeaderStyle.Render(fmt.Sprintf("  %-5s %-30s %10s  %-8s %s",
		"DISK", "NAME", "CAPACITY", "STYLE", "LETTERS")))
	b.WriteString("\n")
	b.WriteString(diskDimStyle.Render("  " + strings.Repeat("─", 70)))
	b.WriteString("\n")

	for _, rec := range snap.Sorted() {
		letters := strings.Join(rec.DriveLetters, ",")
		if letters == "" {
			letters = "-"
		}
		b.WriteString(fmt.Sprintf("  %-5d %-30s %10s  %-8s %s\n",
			rec.Index, rec.Name, rec.CapacityBytes.HumanReadable(), rec.PartitionStyle, letters))
	}

	b.WriteString(diskDimStyle.Render(fmt.Sprintf("  %d disks, captured %s",
		len(snap.Disks), snap.CapturedAt.Format("15:04:05"))))
	b.WriteString("\n")

	return b.String()
}
