package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-nvstorage/internal/config"
	"github.com/deploymenttheory/go-nvstorage/internal/logger"
	"github.com/deploymenttheory/go-nvstorage/internal/nvram"
	"github.com/deploymenttheory/go-nvstorage/internal/nvstorage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   "nvstorage",
	Short: "Read and write NVRAM variables",
	Long: `nvstorage stores named binary variables in the host NVRAM store.

Variables can be written raw or framed with a record header that adds a
CRC-32 checksum, compression and encryption. The whole store can be
snapshotted to a property-list file and restored from one.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// If config file was explicitly specified via flag, reload it
		if cmd.Flags().Changed("config") && cfgFile != "" {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			config.Instance = *cfg
		}

		// CLI flags can override config settings
		flags := cmd.Flags()
		if flags.Changed("debug") {
			config.Instance.Debug, _ = flags.GetBool("debug")
		}
		if flags.Changed("log-format") {
			config.Instance.LogFormat, _ = flags.GetString("log-format")
		}
		if flags.Changed("registry-path") {
			config.Instance.NVRAM.RegistryPath, _ = flags.GetString("registry-path")
		}
		if flags.Changed("efivars-path") {
			config.Instance.NVRAM.EfivarsPath, _ = flags.GetString("efivars-path")
		}

		if flags.Changed("config") || flags.Changed("debug") || flags.Changed("log-format") {
			return logger.InitLogger(logger.LoggerConfig{
				Debug:     config.Instance.Debug,
				LogFormat: config.Instance.LogFormat,
				LogFile:   config.Instance.LogFile,
			})
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logger.LogError("Command execution failed", err, nil)
		return err
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")
	flags.Bool("debug", config.Instance.Debug, "Enable debug logging")
	flags.String("log-format", config.Instance.LogFormat, "Log format: json or human")
	flags.String("registry-path", "", "Registry variable store file (overrides nvram.registry_path)")
	flags.String("efivars-path", "", "efivarfs mount point (overrides nvram.efivars_path)")

	// Bind flags to viper settings
	viper.BindPFlag("debug", flags.Lookup("debug"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("nvram.registry_path", flags.Lookup("registry-path"))
	viper.BindPFlag("nvram.efivars_path", flags.Lookup("efivars-path"))

	rootCmd.AddCommand(
		getCmd, setCmd, existsCmd, rmCmd, listCmd,
		saveCmd, loadCmd, dumpCmd,
		configCmd, versionCmd,
	)
}

// withEngine runs fn against an initialized engine built from the configuration
func withEngine(fn func(e *nvstorage.Engine) error) error {
	algorithm, err := config.Instance.CompressionAlgorithm()
	if err != nil {
		return err
	}

	env := config.Instance.Environment()
	engine := nvstorage.New(
		nvstorage.WithDetector(func() (nvram.Backend, error) { return nvram.Detect(env) }),
		nvstorage.WithCompression(algorithm),
	)
	if err := engine.Init(); err != nil {
		return err
	}
	defer engine.Deinit()

	logger.LogDebug("Variable store attached", map[string]interface{}{
		"backend": engine.Kind().String(),
	})
	return fn(engine)
}

// versionCmd shows the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "nvstorage %s\n", Version)
	},
}

// Version is set at build time
var Version = "v0.1.0"
