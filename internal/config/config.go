package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`

	// Database settings
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// Email folder settings
	EmailsPath string `mapstructure:"emails_path" yaml:"emails_path"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Workers is the number of concurrent decoders used by the indexer
	Workers int `mapstructure:"workers" yaml:"workers"`

	// PreviewBytes caps the text preview stored per email
	PreviewBytes int `mapstructure:"preview_bytes" yaml:"preview_bytes"`

	// SanitizeHTML runs text/html parts through the HTML sanitizer before serving
	SanitizeHTML bool `mapstructure:"sanitize_html" yaml:"sanitize_html"`
}

// dataDir is ~/.emldecode, or ./.emldecode without a home directory
func dataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".emldecode")
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Host:         "localhost",
		Port:         "8080",
		DBPath:       filepath.Join(dataDir(), "emails.db"),
		EmailsPath:   "./emails", // Default to ./emails directory
		LogLevel:     "info",
		Workers:      runtime.NumCPU() * 2,
		PreviewBytes: 10000,
		SanitizeHTML: true,
	}
}

// DefaultConfigPath returns ~/.emldecode/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

// flagKeys maps CLI flag names to configuration keys
var flagKeys = map[string]string{
	"host":          "host",
	"port":          "port",
	"db":            "db_path",
	"emails":        "emails_path",
	"log-level":     "log_level",
	"workers":       "workers",
	"preview-bytes": "preview_bytes",
	"sanitize-html": "sanitize_html",
}

// RegisterFlags attaches the configuration flags to cmd as persistent flags,
// so every subcommand accepts them.
func RegisterFlags(cmd *cobra.Command) {
	def := Default()

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file (default "+DefaultConfigPath()+")")
	flags.String("host", def.Host, "HTTP listen host")
	flags.String("port", def.Port, "HTTP listen port")
	flags.String("db", def.DBPath, "Path to the SQLite index")
	flags.String("emails", def.EmailsPath, "Folder containing .eml and .mbox files")
	flags.String("log-level", def.LogLevel, "Logging level: debug, info, warn, error")
	flags.Int("workers", def.Workers, "Number of concurrent decoders used while indexing")
	flags.Int("preview-bytes", def.PreviewBytes, "Maximum size of the stored text preview")
	flags.Bool("sanitize-html", def.SanitizeHTML, "Sanitize text/html parts before serving them")
}

// LoadConfig resolves the configuration for cmd. Values come from, in
// increasing priority: defaults, the config file, EMLDECODE_* environment
// variables and flags set on the command line.
func LoadConfig(cmd *cobra.Command) (*Config, error) {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	v := newViper(path)
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	return load(v, path, explicit)
}

// Load reads the YAML file at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	return load(newViper(path), path, false)
}

func newViper(path string) *viper.Viper {
	def := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EMLDECODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("emails_path", def.EmailsPath)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("preview_bytes", def.PreviewBytes)
	v.SetDefault("sanitize_html", def.SanitizeHTML)
	return v
}

func load(v *viper.Viper, path string, mustExist bool) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		missing := errors.As(err, &notFound) || errors.As(err, &pathErr)
		if !missing || mustExist {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.DBPath != "" {
		cfg.DBPath = filepath.Clean(cfg.DBPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the application cannot use.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.EmailsPath == "" {
		return fmt.Errorf("emails path is required")
	}
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %q", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.PreviewBytes < 0 {
		return fmt.Errorf("preview bytes must not be negative, got %d", c.PreviewBytes)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}
