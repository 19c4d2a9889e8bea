package figd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the user's figd configuration.
type Config struct {
	Version     int               `mapstructure:"version" json:"version"`
	Suggestions SuggestionsConfig `mapstructure:"suggestions" json:"suggestions"`
	Prediction  PredictionConfig  `mapstructure:"prediction" json:"prediction"`
	Ranking     RankingConfig     `mapstructure:"ranking" json:"ranking"`
	History     HistoryConfig     `mapstructure:"history" json:"history"`
	Dropdown    DropdownConfig    `mapstructure:"dropdown" json:"dropdown"`
}

// SuggestionsConfig controls which candidate sources run and how paths
// are completed.
type SuggestionsConfig struct {
	MaxSuggestions  int      `mapstructure:"max_suggestions" json:"max_suggestions"`
	MinPrefixLength int      `mapstructure:"min_prefix_length" json:"min_prefix_length"`
	IgnoredDirs     []string `mapstructure:"ignored_dirs" json:"ignored_dirs"`
	MaxPathEntries  int      `mapstructure:"max_path_entries" json:"max_path_entries"`
}

// PredictionConfig holds latency and cache settings for the predict path.
type PredictionConfig struct {
	// MinGhostConfidence is the composite score below which no ghost text
	// is shown.
	MinGhostConfidence float64 `mapstructure:"min_ghost_confidence" json:"min_ghost_confidence"`
	// MaxLatencyMS is the generator deadline for one predict request.
	MaxLatencyMS int `mapstructure:"max_prediction_latency_ms" json:"max_prediction_latency_ms"`
	// CacheSize and CacheTTLSeconds bound the prediction response cache.
	CacheSize       int           `mapstructure:"cache_size" json:"cache_size"`
	CacheTTLSeconds int           `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	Sources         SourcesConfig `mapstructure:"sources" json:"sources"`
}

// SourcesConfig enables or disables individual candidate generators.
type SourcesConfig struct {
	History bool `mapstructure:"history" json:"history"`
	Paths   bool `mapstructure:"paths" json:"paths"`
	Flags   bool `mapstructure:"flags" json:"flags"`
	Project bool `mapstructure:"project" json:"project"`
}

// RankingConfig holds the per-category score multipliers.
type RankingConfig struct {
	CategoryWeights map[string]float64 `mapstructure:"category_weights" json:"category_weights"`
}

// HistoryConfig controls the durable command log and learning index.
type HistoryConfig struct {
	// DecayHalfLife is the recency half-life, e.g. "168h" for one week.
	DecayHalfLife   time.Duration `mapstructure:"decay_half_life" json:"decay_half_life"`
	MaxHistoryItems int           `mapstructure:"max_history_items" json:"max_history_items"`
}

// DropdownConfig controls dropdown-format responses.
type DropdownConfig struct {
	MaxItems int `mapstructure:"max_items" json:"max_items"`
}

// ConfigDir returns the config directory path.
// Resolution order: $FIGD_CONFIG_DIR > $XDG_CONFIG_HOME/figd > ~/.config/figd
func ConfigDir() string {
	if dir := os.Getenv("FIGD_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "figd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "figd-config")
	}
	return filepath.Join(home, ".config", "figd")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the directory holding the durable command log.
// Resolution order: $FIGD_DATA_DIR > $XDG_DATA_HOME/figd > ~/.local/share/figd
func DataDir() string {
	if dir := os.Getenv("FIGD_DATA_DIR"); dir != "" {
		return dir
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "figd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "figd-data")
	}
	return filepath.Join(home, ".local", "share", "figd")
}

// HistoryLogPath returns the full path to the append-only command log.
func HistoryLogPath() string {
	return filepath.Join(DataDir(), "history.jsonl")
}

// SocketPath returns the Unix socket path the daemon listens on.
// Resolution order: $FIGD_SOCKET > $XDG_RUNTIME_DIR/figd.sock > /tmp/figd-<uid>.sock
func SocketPath() string {
	if path := os.Getenv("FIGD_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "figd.sock")
	}
	return fmt.Sprintf("/tmp/figd-%d.sock", os.Getuid())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", 1)
	v.SetDefault("suggestions.max_suggestions", 10)
	v.SetDefault("suggestions.min_prefix_length", 1)
	v.SetDefault("suggestions.ignored_dirs", []string{".git", "node_modules", "target"})
	v.SetDefault("suggestions.max_path_entries", 200)
	v.SetDefault("prediction.min_ghost_confidence", 0.4)
	v.SetDefault("prediction.max_prediction_latency_ms", 50)
	v.SetDefault("prediction.cache_size", 1000)
	v.SetDefault("prediction.cache_ttl_seconds", 300)
	v.SetDefault("prediction.sources.history", true)
	v.SetDefault("prediction.sources.paths", true)
	v.SetDefault("prediction.sources.flags", true)
	v.SetDefault("prediction.sources.project", true)
	v.SetDefault("ranking.category_weights", map[string]float64{
		"history": 1.2,
		"command": 1.1,
		"path":    1.0,
		"file":    1.0,
		"git":     1.1,
		"flag":    0.9,
		"project": 1.1,
		"snippet": 0.8,
	})
	v.SetDefault("history.decay_half_life", "168h")
	v.SetDefault("history.max_history_items", 1000)
	v.SetDefault("dropdown.max_items", 10)
}

// DefaultConfig returns the built-in default configuration.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("figd: invalid built-in defaults: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from path, or the default location when path is
// empty. A missing file is not an error; defaults are returned.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if cfg.Prediction.MinGhostConfidence < 0 || cfg.Prediction.MinGhostConfidence > 1 {
		warnings = append(warnings, "prediction.min_ghost_confidence should be between 0.0 and 1.0")
	}
	if cfg.Prediction.MaxLatencyMS <= 0 {
		warnings = append(warnings, "prediction.max_prediction_latency_ms must be positive; the built-in default will be used")
	}
	if cfg.History.DecayHalfLife <= 0 {
		warnings = append(warnings, "history.decay_half_life must be a positive duration; the built-in default will be used")
	}
	if !cfg.Prediction.Sources.History && !cfg.Prediction.Sources.Paths &&
		!cfg.Prediction.Sources.Flags && !cfg.Prediction.Sources.Project {
		warnings = append(warnings, "all prediction sources are disabled; predict requests will always return empty results")
	}
	return warnings
}

// Deadline returns the generator deadline for one predict request.
func (c *Config) Deadline() time.Duration {
	ms := c.Prediction.MaxLatencyMS
	if ms <= 0 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}

// HalfLife returns the recency decay half-life with a safe fallback.
func (c *Config) HalfLife() time.Duration {
	if c.History.DecayHalfLife <= 0 {
		return 168 * time.Hour
	}
	return c.History.DecayHalfLife
}
