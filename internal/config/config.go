package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/deploymenttheory/go-nvstorage/internal/common/compressionutil"
	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/common/fsutil"
	"github.com/deploymenttheory/go-nvstorage/internal/common/osutil"
	"github.com/deploymenttheory/go-nvstorage/internal/nvram"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "go-nvstorage"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "NVSTORAGE"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Variable store settings
	NVRAM struct {
		RegistryPath    string        `mapstructure:"registry_path"`
		RegistryTimeout time.Duration `mapstructure:"registry_timeout"`
		RegistryMaxSize int           `mapstructure:"registry_max_size"`

		EfivarsPath     string `mapstructure:"efivars_path"`
		FirmwareMaxSize int    `mapstructure:"firmware_max_size"`
		VendorGUID      string `mapstructure:"vendor_guid"`

		Compression string `mapstructure:"compression"` // lz4, zstd, bzip2, xz
	} `mapstructure:"nvram"`

	// Snapshot settings
	Snapshot struct {
		Path          string `mapstructure:"path"`
		BackupPath    string `mapstructure:"backup_path"`
		HibernateFile string `mapstructure:"hibernate_file"`
		DumpNVRAM     bool   `mapstructure:"dump_nvram"`
	} `mapstructure:"snapshot"`
}

// Global variables
var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	// Viper instance
	v *viper.Viper

	// Ensure thread safety
	initOnce sync.Once
)

// Initialize sets up the global configuration. Only the first call has any effect.
func Initialize(cfgFile string) error {
	var err error

	initOnce.Do(func() {
		var cfg *AppConfig
		cfg, v, err = load(cfgFile)
		if cfg != nil {
			Instance = *cfg
		}
		if err != nil {
			return
		}

		ConfigFile = v.ConfigFileUsed()
		ConfigLoaded = ConfigFile != ""

		// Ensure required directories exist
		ensureDirectories(&Instance)
	})

	return err
}

// Load reads configuration from cfgFile (or the standard search paths when
// empty) and the environment, without touching the global instance.
func Load(cfgFile string) (*AppConfig, error) {
	cfg, _, err := load(cfgFile)
	return cfg, err
}

func load(cfgFile string) (*AppConfig, *viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Load configuration from file if specified
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		addSearchPaths(v)
	}

	// Set up environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var err error
	if readErr := v.ReadInConfig(); readErr != nil {
		if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
			// Only an error if the config file was found but couldn't be read
			err = fmt.Errorf("%w: %v", errors.ErrConfigParseError, readErr)
		}
	}

	cfg := &AppConfig{}
	if unmarshalErr := v.Unmarshal(cfg); unmarshalErr != nil {
		return nil, v, fmt.Errorf("%w: %v", errors.ErrConfigParseError, unmarshalErr)
	}
	if expandErr := cfg.expandPaths(); expandErr != nil {
		return nil, v, fmt.Errorf("%w: %v", errors.ErrConfigInvalid, expandErr)
	}
	if err != nil {
		return cfg, v, err
	}

	return cfg, v, cfg.Validate()
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Core settings
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")

	logDir, err := fsutil.GetLogDir(AppName)
	if err == nil {
		v.SetDefault("log_file", filepath.Join(logDir, "nvstorage.log"))
	} else {
		v.SetDefault("log_file", "logs/nvstorage.log")
	}

	// Variable store defaults. With EFI runtime services the firmware variables
	// are the host store, so no registry node is opened unless one is configured.
	if osutil.HasEFIRuntime() {
		v.SetDefault("nvram.registry_path", "")
	} else if dataDir, err := fsutil.GetDataDir(AppName); err == nil {
		v.SetDefault("nvram.registry_path", filepath.Join(dataDir, "options.db"))
	} else {
		v.SetDefault("nvram.registry_path", "data/options.db")
	}
	v.SetDefault("nvram.registry_timeout", time.Second)
	v.SetDefault("nvram.registry_max_size", nvram.DefaultRegistryMaxSize)
	v.SetDefault("nvram.efivars_path", nvram.DefaultEfivarsPath)
	v.SetDefault("nvram.firmware_max_size", nvram.DefaultFirmwareMaxSize)
	v.SetDefault("nvram.vendor_guid", nvram.DefaultVendorGUID)
	v.SetDefault("nvram.compression", compression.AlgorithmLZ4.String())

	// Snapshot defaults
	v.SetDefault("snapshot.path", "/nvram.plist")
	if cacheDir, err := fsutil.GetCacheDir(AppName); err == nil {
		v.SetDefault("snapshot.backup_path", filepath.Join(cacheDir, "nvram.plist"))
	} else {
		v.SetDefault("snapshot.backup_path", "cache/nvram.plist")
	}
	if osutil.IsMacOS() {
		v.SetDefault("snapshot.hibernate_file", "/var/vm/sleepimage")
	} else {
		v.SetDefault("snapshot.hibernate_file", "")
	}
	v.SetDefault("snapshot.dump_nvram", false)
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	// Always check current directory first
	v.AddConfigPath(".")

	// In dev mode, only use current directory and user config dir
	if osutil.IsDevEnvironment() {
		if configDir, err := fsutil.GetConfigDir(AppName); err == nil {
			v.AddConfigPath(configDir)
		}
		return
	}

	// In CI/Pipeline, only use current directory and explicit CI directories
	if isRunningInPipeline() {
		v.AddConfigPath("/etc/" + AppName)
		return
	}

	if configDir, err := fsutil.GetConfigDir(AppName); err == nil {
		v.AddConfigPath(configDir)
	}
	if systemConfigDir, err := fsutil.GetSystemConfigDir(AppName); err == nil {
		v.AddConfigPath(systemConfigDir)
	}
}

// ensureDirectories creates necessary directories based on configuration
func ensureDirectories(cfg *AppConfig) {
	// Don't create directories in a pipeline environment unless explicitly requested
	if isRunningInPipeline() && os.Getenv("CREATE_DIRS") != "true" {
		return
	}

	if cfg.LogFile != "" {
		_ = fsutil.CreateDirIfNotExists(filepath.Dir(cfg.LogFile))
	}
	if cfg.Snapshot.BackupPath != "" {
		_ = fsutil.CreateDirIfNotExists(filepath.Dir(cfg.Snapshot.BackupPath))
	}
}

// expandPaths resolves a leading ~ in every path setting
func (c *AppConfig) expandPaths() error {
	for _, p := range []*string{
		&c.LogFile,
		&c.NVRAM.RegistryPath,
		&c.NVRAM.EfivarsPath,
		&c.Snapshot.Path,
		&c.Snapshot.BackupPath,
		&c.Snapshot.HibernateFile,
	} {
		expanded, err := fsutil.ExpandTilde(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// Validate checks values that would otherwise only fail deep inside the engine
func (c *AppConfig) Validate() error {
	switch c.LogFormat {
	case "json", "human":
	default:
		return fmt.Errorf("%w: log_format %q", errors.ErrConfigInvalid, c.LogFormat)
	}
	if _, err := c.CompressionAlgorithm(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigInvalid, err)
	}
	if !nvram.ValidGUID(c.NVRAM.VendorGUID) {
		return fmt.Errorf("%w: vendor_guid %q", errors.ErrConfigInvalid, c.NVRAM.VendorGUID)
	}
	if c.NVRAM.RegistryMaxSize < 0 || c.NVRAM.FirmwareMaxSize < 0 {
		return fmt.Errorf("%w: negative variable size limit", errors.ErrConfigInvalid)
	}
	return nil
}

// CompressionAlgorithm returns the configured codec
func (c *AppConfig) CompressionAlgorithm() (compression.Algorithm, error) {
	return compression.ParseAlgorithm(c.NVRAM.Compression)
}

// Environment returns the backend detection settings
func (c *AppConfig) Environment() nvram.Environment {
	return nvram.Environment{
		RegistryPath:    c.NVRAM.RegistryPath,
		RegistryTimeout: c.NVRAM.RegistryTimeout,
		RegistryMaxSize: c.NVRAM.RegistryMaxSize,
		EfivarsPath:     c.NVRAM.EfivarsPath,
		FirmwareMaxSize: c.NVRAM.FirmwareMaxSize,
		VendorGUID:      c.NVRAM.VendorGUID,
	}
}

// SaveConfig writes the effective global configuration to filePath
func SaveConfig(filePath string) error {
	saveV := viper.New()
	if v != nil {
		if err := saveV.MergeConfigMap(v.AllSettings()); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrConfigInvalid, err)
		}
	}

	// Ensure the directory exists
	if err := fsutil.CreateDirIfNotExists(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return saveV.WriteConfigAs(filePath)
}

// isRunningInPipeline returns true if running in a CI/CD pipeline environment
func isRunningInPipeline() bool {
	return os.Getenv("CI") == "true" ||
		os.Getenv("PIPELINE") == "true" ||
		os.Getenv("GITHUB_ACTIONS") == "true" ||
		os.Getenv("JENKINS_URL") != ""
}
