package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/leighmacdonald/steamid/v4/steamid"
	"golang.org/x/exp/slices"
)

var (
	errConfigRead   = errors.New("failed to read config file")
	errConfigValid  = errors.New("invalid config")
	errLoggerInit   = errors.New("failed to initialize logger")
	errUnknownLevel = errors.New("unknown log level")
)

const (
	ConfigDirName      = "tf-logs"
	DefaultConfigName  = "tf-logs"
	DefaultDBName      = "tf-logs.db"
	DefaultLogName     = "tf-logs.log"
	CacheDirName       = "cache"
	EnvPrefix          = "tflogs"
	DefaultHTTPTimeout = 15 * time.Second
	DefaultBaseURL     = "http://logs.tf/"
	DefaultOutputDir   = "tf2_match_data"
	// DefaultLimit is the page size used when searching logs. logs.tf caps this at 10000.
	DefaultLimit              = 10000
	DefaultCheckpointInterval = 1000
	// DefaultPlayersRequired is the player count of a completed highlander (9v9) match.
	DefaultPlayersRequired = 18
)

// DefaultMaps are the highlander maps pulled when no maps are configured.
var DefaultMaps = []string{ //nolint:gochecknoglobals
	"pl_upward_f11", "koth_ashville_final", "koth_product_final", "koth_proplant_v8",
	"pl_vigil_rc10", "cp_steel_f12", "pl_swiftwater_final",
}

type Config struct {
	Maps  []string `mapstructure:"maps"`
	Limit int      `mapstructure:"limit"`
	// Pages is the maximum number of search pages fetched per map. Values <= 0 page until the
	// results are exhausted.
	Pages    int    `mapstructure:"pages"`
	Title    string `mapstructure:"title"`
	Uploader string `mapstructure:"uploader"`
	// Player is a comma separated list of SteamID64 values a log must contain.
	Player             string        `mapstructure:"player"`
	BaseURL            string        `mapstructure:"base_url"`
	OutputDir          string        `mapstructure:"output_dir"`
	CheckpointInterval int           `mapstructure:"checkpoint_interval"`
	PlayersRequired    int           `mapstructure:"players_required"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	SteamIDFormat      SIDFormats    `mapstructure:"steam_id_format"`
	CacheEnabled       bool          `mapstructure:"cache_enabled"`
	DatabasePath       string        `mapstructure:"database_path"`
	// MetricsAddress enables the prometheus /metrics listener when set, eg: "127.0.0.1:9123".
	MetricsAddress string `mapstructure:"metrics_address"`
	LogLevel       string `mapstructure:"log_level"`
	// LogFile is written under the config dir when relative. An empty value logs to stderr.
	LogFile string `mapstructure:"log_file"`
}

// Validate checks the values that cannot be sensibly defaulted.
func (c Config) Validate() error {
	var errs []error

	if len(c.Maps) == 0 {
		errs = append(errs, errors.New("at least one map is required"))
	}

	if c.Limit < 1 || c.Limit > 10000 {
		errs = append(errs, fmt.Errorf("limit must be between 1 and 10000, got %d", c.Limit))
	}

	if c.CheckpointInterval < 1 {
		errs = append(errs, fmt.Errorf("checkpoint_interval must be positive, got %d", c.CheckpointInterval))
	}

	if c.PlayersRequired < 1 {
		errs = append(errs, fmt.Errorf("players_required must be positive, got %d", c.PlayersRequired))
	}

	if !slices.Contains(sidFormats, c.SteamIDFormat) {
		errs = append(errs, fmt.Errorf("unknown steam_id_format: %q", c.SteamIDFormat))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(append(errs, errConfigValid)...)
	}

	return nil
}

// SIDFormats controls how player ids are written to the output.
type SIDFormats string

const (
	// SteamRaw keeps the id exactly as logs.tf reports it (steam3 for modern logs).
	SteamRaw SIDFormats = ""
	Steam64  SIDFormats = "steam64"
	Steam2   SIDFormats = "steam"
	Steam3   SIDFormats = "steam3"
)

var sidFormats = []SIDFormats{SteamRaw, Steam64, Steam2, Steam3} //nolint:gochecknoglobals

// Format renders a player id in the chosen format. Ids that cannot be parsed as a steam id are
// returned unchanged.
func (f SIDFormats) Format(playerID string) string {
	if f == SteamRaw {
		return playerID
	}

	steamID := steamid.New(playerID)
	if !steamID.Valid() {
		return playerID
	}

	switch f {
	case Steam2:
		return fmt.Sprint(steamID.Steam(false))
	case Steam3:
		return fmt.Sprint(steamID.Steam3())
	case Steam64:
		fallthrough
	default:
		return steamID.String()
	}
}

// Path generates a path pointing to the filename under this apps defined $XDG_CONFIG_HOME.
func Path(name string) string {
	fullPath, errFullPath := xdg.ConfigFile(path.Join(ConfigDirName, name))
	if errFullPath != nil {
		panic(errFullPath)
	}

	return fullPath
}

func PathCache(name string) string {
	cacheDir, found := os.LookupEnv("CACHE_DIR")
	if found && cacheDir != "" {
		return cacheDir
	}

	return path.Join(xdg.CacheHome, ConfigDirName, name)
}

// ParseLevel maps the config log level names onto slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %s", errUnknownLevel, level)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LoggerInit sets up the slog global handler. When logPath is empty, logs go to stderr, otherwise
// to the named file, relative paths being placed under the config dir.
func LoggerInit(logPath string, level slog.Level) (io.Closer, error) {
	var (
		output io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)

	if logPath != "" {
		if !filepath.IsAbs(logPath) {
			logPath = path.Join(xdg.ConfigHome, ConfigDirName, logPath)
		}

		logFile, errLogFile := os.Create(logPath)
		if errLogFile != nil {
			return nil, errors.Join(errLogFile, errLoggerInit)
		}

		output = logFile
		closer = logFile
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	}))

	slog.SetDefault(logger)

	return closer, nil
}
