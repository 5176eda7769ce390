package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/voicecache/internal/cache"
)

const defaultConfig = `# Directory holding the metadata snapshot and the audio blobs.
# Defaults to the user data directory when unset.
# dir: "~/.local/share/voicecache"

# Byte-size thresholds bounding eviction. When the total audio size
# reaches the high watermark, the oldest items are deleted until the
# size drops to the low watermark. High must be greater than low.
low_watermark: 201326592   # 192MB
high_watermark: 268435456  # 256MB

# Zstd level for the metadata snapshot (0 disables compression).
compression_level: 3

# Verbose logging.
debug: false
`

// envConfig holds environment variable overrides for the cache settings.
type envConfig struct {
	DataDir       string `env:"VOICECACHE_DATA_DIR"`
	LowWatermark  int64  `env:"VOICECACHE_LOW_WATERMARK"`
	HighWatermark int64  `env:"VOICECACHE_HIGH_WATERMARK"`
}

// loadCacheConfig builds the cache configuration from the config file,
// environment overrides and flags, in that order of precedence.
func loadCacheConfig() (cache.Config, error) {
	cfg := cache.DefaultConfig()
	cfg.FrontendVersion = Version

	if viper.IsSet("dir") {
		cfg.DataDir = viper.GetString("dir")
	}
	if viper.IsSet("low_watermark") {
		cfg.LowWatermark = viper.GetInt64("low_watermark")
	}
	if viper.IsSet("high_watermark") {
		cfg.HighWatermark = viper.GetInt64("high_watermark")
	}
	if viper.IsSet("compression_level") {
		cfg.CompressionLevel = viper.GetInt("compression_level")
	}

	overrides, err := env.ParseAs[envConfig]()
	if err != nil {
		return cfg, fmt.Errorf("unable to parse environment: %w", err)
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}
	if overrides.LowWatermark > 0 {
		cfg.LowWatermark = overrides.LowWatermark
	}
	if overrides.HighWatermark > 0 {
		cfg.HighWatermark = overrides.HighWatermark
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		scope := gap.NewScope(gap.User, "voicecache")
		dirs, err := scope.DataDirs()
		if err != nil || len(dirs) == 0 {
			return cfg, fmt.Errorf("could not find a data directory: %w", err)
		}
		cfg.DataDir = dirs[0]
	}

	expanded, err := homedir.Expand(cfg.DataDir)
	if err != nil {
		return cfg, fmt.Errorf("unable to expand data directory: %w", err)
	}
	cfg.DataDir = expanded

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return cfg, fmt.Errorf("unable to create data directory: %w", err)
	}
	return cfg, nil
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "voicecache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find a configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "voicecache")}, dirs...)
	}
	if c := os.Getenv("VOICECACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("voicecache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("voicecache")
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Println("Could not parse configuration file:", err)
			os.Exit(1)
		}
	}
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show or create the voicecache config file",
	Example: "voicecache config\nvoicecache config --config path/to/config.yml",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		cfg, err := loadCacheConfig()
		if err != nil {
			return err
		}

		fmt.Println("Config file:", configFile)
		fmt.Println("Data dir:   ", cfg.DataDir)
		fmt.Printf("Watermarks:  low %s, high %s\n",
			humanize.IBytes(uint64(cfg.LowWatermark)),
			humanize.IBytes(uint64(cfg.HighWatermark)))
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if configFile == "" {
			scope := gap.NewScope(gap.User, "voicecache")
			dirs, err := scope.ConfigDirs()
			if err != nil || len(dirs) == 0 {
				return fmt.Errorf("could not find a configuration directory: %w", err)
			}
			configFile = filepath.Join(dirs[0], "voicecache.yml")
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '.yaml' or '.yml'", ext)
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable to create directory: %w", err)
		}
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		fmt.Println("Wrote config file to:", configFile)
	}
	return nil
}
