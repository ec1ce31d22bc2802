package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-nvstorage/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configSaveCmd = &cobra.Command{
	Use:   "save PATH",
	Short: "Write the effective configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.SaveConfig(args[0])
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration source and variable store settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if config.ConfigLoaded {
			fmt.Fprintf(out, "config file:     %s\n", config.ConfigFile)
		} else {
			fmt.Fprintln(out, "config file:     (defaults)")
		}
		nv := config.Instance.NVRAM
		fmt.Fprintf(out, "registry path:   %s\n", nv.RegistryPath)
		fmt.Fprintf(out, "efivars path:    %s\n", nv.EfivarsPath)
		fmt.Fprintf(out, "vendor guid:     %s\n", nv.VendorGUID)
		fmt.Fprintf(out, "compression:     %s\n", nv.Compression)
		fmt.Fprintf(out, "snapshot path:   %s\n", config.Instance.Snapshot.Path)
		fmt.Fprintf(out, "backup path:     %s\n", config.Instance.Snapshot.BackupPath)
	},
}

func init() {
	configCmd.AddCommand(configSaveCmd, configShowCmd)
}
