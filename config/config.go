// Package config loads the settings of the sierra command from a YAML file,
// an optional .env file and SIERRA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AmmannChristian/go-sierra/sierra"
)

// Environment variables that override values from the config file.
const (
	EnvFile      = "SIERRA_ENV_FILE"
	EnvKey       = "SIERRA_KEY"
	EnvSecret    = "SIERRA_SECRET"
	EnvHost      = "SIERRA_HOST"
	EnvPath      = "SIERRA_PATH"
	EnvLogLevel  = "SIERRA_LOG_LEVEL"
	EnvLogFormat = "SIERRA_LOG_FORMAT"
	EnvCachePath = "SIERRA_CACHE_PATH"
)

// DefaultBasePath is the API prefix of a stock Sierra installation.
const DefaultBasePath = "iii/sierra-api"

// DefaultConfigPaths are searched in order when Load is given no path.
var DefaultConfigPaths = []string{
	"./sierra.yaml",
	"./sierra.yml",
	"./configs/sierra.yaml",
}

// Config is the complete configuration of the sierra command.
type Config struct {
	Sierra  SierraConfig  `yaml:"sierra"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
}

// SierraConfig holds the API credentials and location.
type SierraConfig struct {
	Key    string `yaml:"key"`
	Secret string `yaml:"secret"`
	Host   string `yaml:"host"`
	Path   string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// CacheConfig locates the token cache database. An empty path disables it.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used before any file or variable is read.
func Default() *Config {
	return &Config{
		Sierra:  SierraConfig{Path: DefaultBasePath},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Cache:   CacheConfig{Path: DefaultCachePath()},
	}
}

// DefaultCachePath returns the token cache location under the user cache directory.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "go-sierra", "token.db")
}

// Load reads configuration in increasing precedence: defaults, the YAML file at
// path (or the first of DefaultConfigPaths), then SIERRA_* variables. Variables
// from the file named by SIERRA_ENV_FILE, or ./.env, are loaded first without
// replacing variables already set. ${VAR} references in the YAML are expanded.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Client returns the settings for sierra.New.
func (c *Config) Client() sierra.Config {
	return sierra.Config{
		Key:      c.Sierra.Key,
		Secret:   c.Sierra.Secret,
		Host:     c.Sierra.Host,
		BasePath: c.Sierra.Path,
	}
}

// Validate checks the Sierra settings and the log format.
func (c *Config) Validate() error {
	if err := c.Client().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	override(&c.Sierra.Key, EnvKey)
	override(&c.Sierra.Secret, EnvSecret)
	override(&c.Sierra.Host, EnvHost)
	override(&c.Sierra.Path, EnvPath)
	override(&c.Logging.Level, EnvLogLevel)
	override(&c.Logging.Format, EnvLogFormat)
	// An explicitly empty SIERRA_CACHE_PATH disables the cache.
	if v, ok := os.LookupEnv(EnvCachePath); ok {
		c.Cache.Path = v
	}
}

func override(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func loadEnvFile() error {
	if path := os.Getenv(EnvFile); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load env file %s: %w", path, err)
		}
		return nil
	}
	if fileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("config: load .env: %w", err)
		}
	}
	return nil
}

func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
