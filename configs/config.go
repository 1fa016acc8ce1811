package configs

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name. Each variable
// is also read without the prefix (e.g. OSVMCP_PORT or PORT).
const EnvPrefix = "osvmcp"

// Defaults.
const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 3000
	DefaultOSVAPIURL = "https://api.osv.dev/v1/"
	DefaultEndpoint  = "/mcp"
)

// FileConfig defines the structure loaded from the YAML configuration file.
// Zero values leave the corresponding setting untouched.
type FileConfig struct {
	Host                     string        `yaml:"host"`
	Port                     int           `yaml:"port"`
	OSVAPIURL                string        `yaml:"osv_api_url"`
	Endpoint                 string        `yaml:"endpoint"`
	LogLevel                 string        `yaml:"log_level"`
	HTTPClientTimeout        time.Duration `yaml:"http_client_timeout"`
	ShutdownTimeout          time.Duration `yaml:"shutdown_timeout"`
	ServerReadHeaderTimeout  time.Duration `yaml:"server_read_header_timeout"`
	OtelExporterOtlpEndpoint string        `yaml:"otel_exporter_otlp_endpoint"`
	OtelExporterOtlpInsecure *bool         `yaml:"otel_exporter_otlp_insecure"`
}

// Config holds the final application configuration. Precedence, lowest
// first: built-in defaults, YAML file, environment, command-line flags.
// It is not modified after startup.
type Config struct {
	// Config File Path (loaded first from env)
	ConfigFilePath string `envconfig:"CONFIG_FILE"`

	Host      string `envconfig:"HOST"`
	Port      int    `envconfig:"PORT"`
	OSVAPIURL string `envconfig:"OSV_API_URL"`
	Endpoint  string `envconfig:"ENDPOINT"`
	LogLevel  string `envconfig:"LOG_LEVEL"`

	// HTTPClientTimeout bounds each OSV call; zero means no timeout.
	HTTPClientTimeout       time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT"`
	ShutdownTimeout         time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`
	ServerReadHeaderTimeout time.Duration `envconfig:"SERVER_READ_HEADER_TIMEOUT"`

	OtelExporterOtlpEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// NewDefault returns the configuration used when nothing is overridden.
func NewDefault() *Config {
	return &Config{
		Host:                     DefaultHost,
		Port:                     DefaultPort,
		OSVAPIURL:                DefaultOSVAPIURL,
		Endpoint:                 DefaultEndpoint,
		LogLevel:                 "info",
		HTTPClientTimeout:        0,
		ShutdownTimeout:          5 * time.Second,
		ServerReadHeaderTimeout:  10 * time.Second,
		OtelExporterOtlpInsecure: true,
	}
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// Addr is the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the settings that cannot be corrected silently.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	u, err := url.Parse(strings.TrimSpace(c.OSVAPIURL))
	if err != nil {
		return fmt.Errorf("invalid OSV API URL %q: %w", c.OSVAPIURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid OSV API URL %q: expected absolute http(s) URL", c.OSVAPIURL)
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		return fmt.Errorf("endpoint %q must start with /", c.Endpoint)
	}
	if c.HTTPClientTimeout < 0 || c.ShutdownTimeout < 0 || c.ServerReadHeaderTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file named
// by OSVMCP_CONFIG_FILE, and the environment. Flags are merged afterwards
// with ApplyFlags.
func Load() (*Config, error) {
	// 1. Load initial config from Env (primarily to get ConfigFilePath)
	var initialCfg Config
	if err := envconfig.Process(EnvPrefix, &initialCfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}

	cfg := NewDefault()
	cfg.ConfigFilePath = initialCfg.ConfigFilePath

	// 2. Load config from YAML file if path is specified
	if cfg.ConfigFilePath != "" {
		yamlFile, err := os.ReadFile(cfg.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", cfg.ConfigFilePath, err)
		}
		var fileCfg FileConfig
		if err := yaml.Unmarshal(yamlFile, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", cfg.ConfigFilePath, err)
		}
		cfg.applyFile(fileCfg)
	}

	// 3. Process environment variables AGAIN to allow overrides over file settings.
	// No field carries a default tag, so unset variables leave values alone.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyFile(f FileConfig) {
	if f.Host != "" {
		c.Host = f.Host
	}
	if f.Port != 0 {
		c.Port = f.Port
	}
	if f.OSVAPIURL != "" {
		c.OSVAPIURL = f.OSVAPIURL
	}
	if f.Endpoint != "" {
		c.Endpoint = f.Endpoint
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.HTTPClientTimeout != 0 {
		c.HTTPClientTimeout = f.HTTPClientTimeout
	}
	if f.ShutdownTimeout != 0 {
		c.ShutdownTimeout = f.ShutdownTimeout
	}
	if f.ServerReadHeaderTimeout != 0 {
		c.ServerReadHeaderTimeout = f.ServerReadHeaderTimeout
	}
	if f.OtelExporterOtlpEndpoint != "" {
		c.OtelExporterOtlpEndpoint = f.OtelExporterOtlpEndpoint
	}
	if f.OtelExporterOtlpInsecure != nil {
		c.OtelExporterOtlpInsecure = *f.OtelExporterOtlpInsecure
	}
}

// Flag names shared by the CLI.
const (
	FlagHost      = "host"
	FlagPort      = "port"
	FlagOSVAPIURL = "osv-api-url"
	FlagLogLevel  = "log-level"
	FlagEndpoint  = "endpoint"
)

// RegisterFlags declares the overridable settings on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagHost, DefaultHost, "listen host")
	fs.Int(FlagPort, DefaultPort, "listen port")
	fs.String(FlagOSVAPIURL, DefaultOSVAPIURL, "OSV API base URL")
	fs.String(FlagLogLevel, "info", "log level (debug, info, warn, error)")
	fs.String(FlagEndpoint, DefaultEndpoint, "HTTP path serving MCP requests")
}

// ApplyFlags overrides settings with flags the user set explicitly.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	if fs.Changed(FlagHost) {
		if c.Host, err = fs.GetString(FlagHost); err != nil {
			return err
		}
	}
	if fs.Changed(FlagPort) {
		if c.Port, err = fs.GetInt(FlagPort); err != nil {
			return err
		}
	}
	if fs.Changed(FlagOSVAPIURL) {
		if c.OSVAPIURL, err = fs.GetString(FlagOSVAPIURL); err != nil {
			return err
		}
	}
	if fs.Changed(FlagLogLevel) {
		if c.LogLevel, err = fs.GetString(FlagLogLevel); err != nil {
			return err
		}
	}
	if fs.Changed(FlagEndpoint) {
		if c.Endpoint, err = fs.GetString(FlagEndpoint); err != nil {
			return err
		}
	}
	return nil
}
