package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/reconsole/internal/format"
	"github.com/loykin/reconsole/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. RECONSOLE_SCAN_SCRIPT_PATH for scan.script_path.
const EnvPrefix = "RECONSOLE"

// Config represents the TOML configuration of the console daemon.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Console ConsoleConfig `mapstructure:"console"`
	Log     logger.Config `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type ScanConfig struct {
	ScriptPath string   `mapstructure:"script_path"`
	OutputRoot string   `mapstructure:"output_root"`
	WorkDir    string   `mapstructure:"work_dir"`
	Env        []string `mapstructure:"env"`
	EnvFiles   []string `mapstructure:"env_files"`
}

type WatchConfig struct {
	QuietWindow   time.Duration `mapstructure:"quiet_window"`
	TrailingFlush bool          `mapstructure:"trailing_flush"`
}

type ConsoleConfig struct {
	Format format.Kind `mapstructure:"format"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

var defaults = map[string]any{
	"server.listen":        ":5000",
	"server.base_path":     "",
	"scan.script_path":     "./sleuth.sh",
	"scan.output_root":     "Recon",
	"scan.work_dir":        "",
	"scan.env":             []string{},
	"scan.env_files":       []string{},
	"watch.quiet_window":   "1.5s",
	"watch.trailing_flush": false,
	"console.format":       string(format.KindHTML),
	"log.level":            string(logger.LevelInfo),
	"log.format":           string(logger.FormatText),
	"log.color":            true,
	"log.timestamps":       true,
	"log.source":           false,
	"log.file":             "",
	"log.max_size_mb":      logger.DefaultMaxSizeMB,
	"log.max_backups":      logger.DefaultMaxBackups,
	"log.max_age_days":     logger.DefaultMaxAgeDays,
	"log.compress":         false,
	"metrics.listen":       "",
}

func newViper(withEnv bool) *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	var cfg Config
	if err := newViper(false).Unmarshal(&cfg); err != nil {
		panic(err) // defaults are static
	}
	return &cfg
}

// Load reads the TOML file at path on top of the defaults and applies
// RECONSOLE_* environment overrides. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := newViper(true)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would only fail later at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Scan.ScriptPath) == "" {
		return fmt.Errorf("scan.script_path is required")
	}
	if strings.TrimSpace(c.Scan.OutputRoot) == "" {
		return fmt.Errorf("scan.output_root is required")
	}
	if c.Watch.QuietWindow <= 0 {
		return fmt.Errorf("watch.quiet_window must be positive, got %s", c.Watch.QuietWindow)
	}
	if _, err := format.New(c.Console.Format); err != nil {
		return fmt.Errorf("console.format: %w", err)
	}
	switch c.Log.Slog.Format {
	case logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("log.format must be %q or %q, got %q", logger.FormatText, logger.FormatJSON, c.Log.Slog.Format)
	}
	return nil
}

// ScanEnv returns the extra environment for scan processes: the contents of
// scan.env_files in order, then scan.env, later entries overriding earlier ones.
// The result is sorted by key.
func (c *Config) ScanEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range c.Scan.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Scan.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
