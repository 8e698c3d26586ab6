package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	fileName = "storysync"
	fileType = "yaml"

	// envPrefix namespaces every variable, so api.base_url is read from
	// STORYSYNC_API_BASE_URL.
	envPrefix = "STORYSYNC"
	// envConfigFile names an explicit config file when --config is not given.
	envConfigFile = "STORYSYNC_CONFIG"
)

// searchPaths lists the directories probed for storysync.yaml, most specific
// first: the working directory, the user config dir ($XDG_CONFIG_HOME/storysync
// on Linux) and the home directory.
func searchPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, fileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	return paths
}

// Load resolves the configuration. Precedence, highest first: STORYSYNC_*
// variables, the config file, built-in defaults. The file is configPath when
// set, else $STORYSYNC_CONFIG, else the first storysync.yaml found on the
// search path. Only an explicitly named file has to exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(fileType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = os.Getenv(envConfigFile)
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(fileName)
		for _, p := range searchPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{Path: configPath, Err: err}
		}
	}
	source := v.ConfigFileUsed()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Path: source, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: source, Err: err}
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", DefaultTimeout)
	v.SetDefault("api.retry_attempts", DefaultRetryAttempts)

	v.SetDefault("store.backend", DefaultBackend)
	v.SetDefault("store.data_dir", DefaultDataDir)
	v.SetDefault("store.dsn", "")

	v.SetDefault("feed.page_size", DefaultPageSize)
	v.SetDefault("feed.location", "")
	v.SetDefault("feed.hydration_concurrency", DefaultHydrationConcurrency)

	v.SetDefault("serve.addr", DefaultServeAddr)
	v.SetDefault("serve.allowed_origins", []string{"*"})

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("locale", DefaultLocale)
}
