package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles setting up viper and loading configuration from files and the environment.
type Loader struct {
	*viper.Viper
}

// NewLoader creates a loader with all defaults applied. When configFile is non-empty it is used
// instead of searching the config dir and working directory.
func NewLoader(configFile string) *Loader {
	loader := Loader{Viper: viper.New()}
	loader.SetDefault("maps", DefaultMaps)
	loader.SetDefault("limit", DefaultLimit)
	loader.SetDefault("pages", 1)
	loader.SetDefault("title", "")
	loader.SetDefault("uploader", "")
	loader.SetDefault("player", "")
	loader.SetDefault("base_url", DefaultBaseURL)
	loader.SetDefault("output_dir", DefaultOutputDir)
	loader.SetDefault("checkpoint_interval", DefaultCheckpointInterval)
	loader.SetDefault("players_required", DefaultPlayersRequired)
	loader.SetDefault("http_timeout", DefaultHTTPTimeout)
	loader.SetDefault("steam_id_format", string(SteamRaw))
	loader.SetDefault("cache_enabled", true)
	loader.SetDefault("database_path", Path(DefaultDBName))
	loader.SetDefault("metrics_address", "")
	loader.SetDefault("log_level", "info")
	loader.SetDefault("log_file", DefaultLogName)

	if configFile != "" {
		loader.SetConfigFile(configFile)
	} else {
		loader.SetConfigName(DefaultConfigName)
		loader.SetConfigType("yaml")
		loader.AddConfigPath(Path(""))
		loader.AddConfigPath(".")
	}

	loader.SetEnvPrefix(EnvPrefix)
	loader.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	loader.AutomaticEnv()

	return &loader
}

func (cl *Loader) Path() string {
	return cl.ConfigFileUsed()
}

// Read loads the config file, if any, and returns the validated config. A missing config file
// is not an error; the defaults are used.
func (cl *Loader) Read() (Config, error) {
	if err := cl.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return Config{}, errors.Join(err, errConfigRead)
		}
	}

	var config Config
	if err := cl.Unmarshal(&config); err != nil {
		return Config{}, errors.Join(err, errConfigRead)
	}

	// Env vars arrive as a single string.
	if len(config.Maps) == 1 && strings.Contains(config.Maps[0], ",") {
		config.Maps = strings.Split(config.Maps[0], ",")
	}

	for idx := range config.Maps {
		config.Maps[idx] = strings.TrimSpace(config.Maps[idx])
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}
