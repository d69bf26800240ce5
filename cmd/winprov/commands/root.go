// Package commands defines the CLI command structure and flag bindings.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/deploykit/winprov/cmd/winprov/config"
)

// Root returns the root command for the winprov CLI.
func Root(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "winprov",
		Short:         "Provision, image and boot-repair bare-metal Windows disks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Disks(cfg))
	cmd.AddCommand(Provision(cfg))
	cmd.AddCommand(Version())

	return cmd
}
