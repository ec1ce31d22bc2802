package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/common/fsutil"
	"github.com/deploymenttheory/go-nvstorage/internal/config"
	"github.com/deploymenttheory/go-nvstorage/internal/hibernate"
	"github.com/deploymenttheory/go-nvstorage/internal/logger"
	"github.com/deploymenttheory/go-nvstorage/internal/nvstorage"
	"github.com/spf13/cobra"
)

var (
	rtcFileFlag string
	smcFileFlag string
	forceFlag   bool
)

var saveCmd = &cobra.Command{
	Use:   "save [PATH]",
	Short: "Write a snapshot of every variable to a plist file",
	Long: `Write a snapshot of every variable to a plist file. Without PATH the
configured snapshot.path is used. If writing fails, snapshot.backup_path is
tried.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Instance.Snapshot.Path
		if len(args) == 1 {
			path = args[0]
		}
		backup := config.Instance.Snapshot.BackupPath

		return withEngine(func(e *nvstorage.Engine) error {
			if e.Save(path) {
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			}
			if backup == "" || backup == path {
				return fmt.Errorf("%w: %s", errors.ErrFileWriteError, path)
			}
			if !e.Save(backup) {
				return fmt.Errorf("%w: %s and %s", errors.ErrFileWriteError, path, backup)
			}
			fmt.Fprintln(cmd.OutOrStdout(), backup)
			return nil
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load PATH",
	Short: "Restore variables from a plist snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *nvstorage.Engine) error {
			restored, ok := e.Load(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d variables\n", restored)
			if !ok {
				return fmt.Errorf("%w: %s", errors.ErrBackendWrite, args[0])
			}
			return nil
		})
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Run the hibernate sleep steps",
	Long: `Persist the hibernation RTC and SMC variables (when given) and write an
NVRAM snapshot next to the hibernate file, falling back to the backup path.
The snapshot is only written when snapshot.dump_nvram is set or --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rtc, err := readOptionalFile(rtcFileFlag)
		if err != nil {
			return err
		}
		smc, err := readOptionalFile(smcFileFlag)
		if err != nil {
			return err
		}

		snapshot := config.Instance.Snapshot
		return withEngine(func(e *nvstorage.Engine) error {
			d := hibernate.NewDumper(e, hibernate.Config{
				HibernateFile: snapshot.HibernateFile,
				SnapshotPath:  snapshot.Path,
				BackupPath:    snapshot.BackupPath,
				DumpNVRAM:     snapshot.DumpNVRAM || forceFlag,
			})

			if err := d.PersistHibernationKeys(rtc, smc); err != nil {
				logger.LogWarn("Hibernation keys not fully persisted", map[string]interface{}{
					"error": err.Error(),
				})
			}

			path, err := d.DumpOnSleep()
			if err != nil {
				return err
			}
			if path != "" {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		})
	},
}

func init() {
	dumpCmd.Flags().StringVar(&rtcFileFlag, "rtc-file", "", "file holding IOHibernateRTCVariables to persist")
	dumpCmd.Flags().StringVar(&smcFileFlag, "smc-file", "", "file holding IOHibernateSMCVariables to persist")
	dumpCmd.Flags().BoolVar(&forceFlag, "force", false, "write the snapshot even when snapshot.dump_nvram is off")
}

func readOptionalFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrFileReadError, path, err)
	}
	return data, nil
}
