package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/lkarlslund/gwprobe/pkg/cache"
	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
)

const (
	defaultConfigFileName = "gwprobe.toml"

	DefaultBaseURL       = "https://ai.lelloman.com"
	DefaultModel         = "class:fast"
	DefaultSpecificModel = "llama3:8b"
	DefaultRequests      = 10
	DefaultWorkers       = 10
	DefaultMockListen    = "127.0.0.1:8089"

	EnvBaseURL     = "GWPROBE_URL"
	EnvTokenBinary = "GWPROBE_TOKEN_BINARY"
)

// Per-command request timeouts used when timeout_seconds is unset.
var DefaultTimeouts = map[string]time.Duration{
	"auth":     30 * time.Second,
	"routing":  60 * time.Second,
	"workload": 60 * time.Second,
	"wol":      120 * time.Second,
}

type MockGatewayConfig struct {
	Listen      string `toml:"listen,omitempty"`
	LatencyMS   int    `toml:"latency_ms,omitempty"`
	WakeDelayMS int    `toml:"wake_delay_ms,omitempty"`
	// StartOffline brings the fake fleet up asleep so wol can wake it.
	StartOffline bool `toml:"start_offline,omitempty"`
}

type Config struct {
	BaseURL             string `toml:"base_url"`
	Token               string `toml:"token,omitempty"`
	TokenBinary         string `toml:"token_binary,omitempty"`
	TokenEnv            string `toml:"token_env,omitempty"`
	TimeoutSeconds      int    `toml:"timeout_seconds,omitempty"`
	TokenTimeoutSeconds int    `toml:"token_timeout_seconds,omitempty"`
	TokenCacheSeconds   int    `toml:"token_cache_seconds,omitempty"`
	VerifyTLS           bool   `toml:"verify_tls"`
	Verbosity           string `toml:"verbosity,omitempty"`
	Model               string `toml:"model,omitempty"`
	SpecificModel       string `toml:"specific_model,omitempty"`
	Workers             int    `toml:"workers,omitempty"`
	Requests            int    `toml:"requests,omitempty"`
	ReportPath          string `toml:"report_path,omitempty"`
	// EnvFile is loaded into the environment before tokens are resolved.
	EnvFile string `toml:"env_file,omitempty"`

	MockGateway MockGatewayConfig `toml:"mock_gateway"`
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "gwprobe", defaultConfigFileName)
}

func NewDefault() *Config {
	return &Config{
		BaseURL:             DefaultBaseURL,
		TokenEnv:            credentials.DefaultEnvVar,
		TokenTimeoutSeconds: int(credentials.DefaultIssueTimeout / time.Second),
		VerifyTLS:           true,
		Verbosity:           logutil.Normal.String(),
		Model:               DefaultModel,
		SpecificModel:       DefaultSpecificModel,
		Workers:             DefaultWorkers,
		Requests:            DefaultRequests,
		EnvFile:             ".env",
		MockGateway: MockGatewayConfig{
			Listen:    DefaultMockListen,
			LatencyMS: 200,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set; the defaults are returned instead.
func Load(path string, optional bool) (*Config, error) {
	cfg := NewDefault()
	if err := load(path, cfg); err != nil {
		if !(optional && errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreate reads path, writing the defaults there first when it does
// not exist yet.
func LoadOrCreate(path string) (*Config, error) {
	cfg := NewDefault()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadOrCreate(path string, v any) error {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := Save(path, v); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	return load(path, v)
}

func load(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	return nil
}

// Save writes v as TOML, replacing path atomically.
func Save(path string, v any) error {
	b, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	return cache.WriteAtomic(path, b)
}

func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetArraysMultiline(true)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	enc.SetTablesInline(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

func (c *Config) Normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.Token = strings.TrimSpace(c.Token)
	c.TokenBinary = strings.TrimSpace(c.TokenBinary)
	c.TokenEnv = strings.TrimSpace(c.TokenEnv)
	c.Verbosity = strings.ToLower(strings.TrimSpace(c.Verbosity))
	c.Model = strings.TrimSpace(c.Model)
	c.SpecificModel = strings.TrimSpace(c.SpecificModel)
	c.ReportPath = strings.TrimSpace(c.ReportPath)
	c.EnvFile = strings.TrimSpace(c.EnvFile)
	c.MockGateway.Listen = strings.TrimSpace(c.MockGateway.Listen)

	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.TokenEnv == "" {
		c.TokenEnv = credentials.DefaultEnvVar
	}
	if c.TokenTimeoutSeconds <= 0 {
		c.TokenTimeoutSeconds = int(credentials.DefaultIssueTimeout / time.Second)
	}
	if c.TimeoutSeconds < 0 {
		c.TimeoutSeconds = 0
	}
	if c.TokenCacheSeconds < 0 {
		c.TokenCacheSeconds = 0
	}
	if c.Verbosity == "" {
		c.Verbosity = logutil.Normal.String()
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.SpecificModel == "" {
		c.SpecificModel = DefaultSpecificModel
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Requests <= 0 {
		c.Requests = DefaultRequests
	}
	if c.MockGateway.Listen == "" {
		c.MockGateway.Listen = DefaultMockListen
	}
	if c.MockGateway.LatencyMS < 0 {
		c.MockGateway.LatencyMS = 0
	}
	if c.MockGateway.WakeDelayMS < 0 {
		c.MockGateway.WakeDelayMS = 0
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https, got %q", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url has no host: %q", c.BaseURL)
	}
	if _, err := logutil.ParseVerbosity(c.Verbosity); err != nil {
		return err
	}
	return nil
}

// ApplyEnv overlays the GWPROBE_* variables on the file values.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvBaseURL)); v != "" {
		c.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(getenv(EnvTokenBinary)); v != "" {
		c.TokenBinary = v
	}
}

// RequestTimeout returns the per-request timeout for command.
func (c *Config) RequestTimeout(command string) time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	if d, ok := DefaultTimeouts[command]; ok {
		return d
	}
	return 60 * time.Second
}

func (c *Config) TokenTimeout() time.Duration {
	return time.Duration(c.TokenTimeoutSeconds) * time.Second
}

// TokenCacheTTL is how long a minted token is reused; zero means the whole
// run.
func (c *Config) TokenCacheTTL() time.Duration {
	return time.Duration(c.TokenCacheSeconds) * time.Second
}

// LoadEnvFile loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is
// ignored.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
