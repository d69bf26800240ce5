package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/deploykit/winprov/cmd/winprov/config"
	"github.com/deploykit/winprov/lib/bootrepair"
	"github.com/deploykit/winprov/lib/diskpart"
	"github.com/deploykit/winprov/lib/imaging"
	"github.com/deploykit/winprov/lib/inventory"
	"github.com/deploykit/winprov/lib/orchestrator"
	"github.com/deploykit/winprov/lib/provision"
)

var (
	resultOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22c55e"))

	resultFailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ef4444"))
)

// Provision returns the command running the full per-disk pipeline.
func Provision(cfg *config.Config) *cobra.Command {
	var (
		disksExpr      string
		profilePath    string
		parallel       bool
		maxConcurrency int
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Partition, image and boot-repair the selected disk slots",
		Long: `Partition the selected disk slots according to the deployment profile,
then restore the system image and write UEFI boot files when the profile
configures them.

Slot selection accepts a single slot (3), a range (1-3), a list (1,3,5),
a mix of those (1,3-5), or "a"/"all" for every slot.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			slots, err := ParseDiskSelection(disksExpr)
			if err != nil {
				return err
			}
			profile, err := config.LoadProfile(profilePath)
			if err != nil {
				return err
			}
			if profile.Description != "" {
				fmt.Printf("  profile: %s\n", profile.Description)
			}

			orch := buildOrchestrator(cfg, profile)

			ctx := cmd.Context()
			results := make(map[int]*orchestrator.Result, len(slots))
			if parallel {
				if maxConcurrency == 0 {
					maxConcurrency = cfg.MaxConcurrency
				}
				results = orch.ProvisionAll(ctx, slots, maxConcurrency)
			} else {
				for _, slot := range slots {
					results[slot] = orch.Provision(ctx, slot)
				}
			}

			failed := printResults(slots, results)
			if failed > 0 {
				return fmt.Errorf("%d of %d disks failed", failed, len(slots))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&disksExpr, "disks", "d", "", "Disk slots to provision (3, 1-3, 1,3,5, all)")
	cmd.Flags().StringVarP(&profilePath, "config", "c", "config.json", "Path to the deployment profile")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Provision the selected disks concurrently")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "Concurrent disk limit for --parallel (0 = auto)")
	_ = cmd.MarkFlagRequired("disks")

	return cmd
}

func buildOrchestrator(cfg *config.Config, profile *config.Profile) *orchestrator.Orchestrator {
	inv := inventory.NewManager(inventory.NewSystemQuerier(), cfg.InventoryTTL)
	wf := provision.New(inv, diskpart.NewRunner(), provision.WithStepTimeout(cfg.DiskpartTimeout))

	opts := []orchestrator.Option{
		orchestrator.WithProtectedDisks(profile.ExcludedDiskNames),
	}
	if profile.Imaging() {
		opts = append(opts, orchestrator.WithImaging(imaging.NewDeployer(profile.GhostExe, profile.ImagePath)))
	}
	if profile.BootRepair() {
		opts = append(opts, orchestrator.WithBootRepair(bootrepair.NewRepairer(profile.BcdbootExe)))
	}

	return orchestrator.New(inv, wf, profile.EFISizeMB, profile.CSizeMB, opts...)
}

// printResults renders one line per slot and returns the failure count.
func printResults(slots []int, results map[int]*orchestrator.Result) int {
	failed := 0
	for _, slot := range slots {
		res, ok := results[slot]
		if !ok {
			continue
		}
		if res.Succeeded() {
			fmt.Printf("  %s slot %d  letters %s  (%s)\n",
				resultOKStyle.Render("ok  "), slot,
				strings.Join(res.Plan.Letters(), ","), res.Duration.Round(time.Second))
			continue
		}
		failed++
		fmt.Printf("  %s slot %d  stage %s: %v\n",
			resultFailStyle.Render("FAIL"), slot, res.Stage, res.Err)
	}
	return failed
}
