// Package config loads codegraph settings from defaults, an optional YAML
// file, a .env file and CODEGRAPH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"codegraph/internal/builder"
)

const (
	EnvPrefix      = "CODEGRAPH_"
	DefaultFile    = "codegraph.yaml"
	DefaultPanel   = "127.0.0.1:7420"
	defaultTimeout = 30 * time.Second
)

type Config struct {
	WorkspaceRoot string `yaml:"workspace_root"`

	// Servers overrides the language server used per language name
	// (typescript, tsx, javascript, go, python).
	Servers map[string]ServerConfig `yaml:"servers"`

	Build    BuildConfig    `yaml:"build"`
	Panel    PanelConfig    `yaml:"panel"`
	Store    StoreConfig    `yaml:"store"`
	Artifact ArtifactConfig `yaml:"artifact"`
	Download DownloadConfig `yaml:"download"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	// Command is a binary name or path. Empty means the default server for
	// the language, located by the downloader.
	Command               string         `yaml:"command"`
	Args                  []string       `yaml:"args"`
	InitializationOptions map[string]any `yaml:"initialization_options"`
}

type BuildConfig struct {
	Exclude             []string      `yaml:"exclude"`
	MaxResolveAttempts  int           `yaml:"max_resolve_attempts"`
	ResolveRetryDelay   time.Duration `yaml:"resolve_retry_delay"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	StartTimeout        time.Duration `yaml:"start_timeout"`
	ScopeIdentityToFile bool          `yaml:"scope_identity_to_file"`
}

type PanelConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`
	// WaitForClient blocks a build until a browser has opened the panel.
	WaitForClient time.Duration `yaml:"wait_for_client"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ArtifactConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type DownloadConfig struct {
	Allow    bool   `yaml:"allow"`
	CacheDir string `yaml:"cache_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	data := dataDir()
	return Config{
		Servers: map[string]ServerConfig{},
		Build: BuildConfig{
			Exclude:            slices.Clone(builder.DefaultExcludes),
			MaxResolveAttempts: builder.DefaultMaxResolveAttempts,
			RequestTimeout:     defaultTimeout,
			StartTimeout:       defaultTimeout,
		},
		Panel: PanelConfig{
			Addr:            DefaultPanel,
			SnapshotTimeout: 10 * time.Second,
		},
		Store:    StoreConfig{Path: filepath.Join(data, "builds.db")},
		Artifact: ArtifactConfig{Dir: filepath.Join(data, "artifacts"), S3: S3Config{Region: "us-east-1", Bucket: "codegraph-artifacts", UseSSL: true}},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. A path that does not exist is an error when
// given explicitly; the default file is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = firstNonEmpty(os.Getenv(EnvPrefix+"CONFIG"), DefaultFile)
		explicit = os.Getenv(EnvPrefix+"CONFIG") != ""
	}
	if err := loadFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("WORKSPACE_ROOT", &cfg.WorkspaceRoot)
	if v := os.Getenv(EnvPrefix + "EXCLUDE"); v != "" {
		cfg.Build.Exclude = splitList(v)
	}
	integer("MAX_RESOLVE_ATTEMPTS", &cfg.Build.MaxResolveAttempts)
	duration("RESOLVE_RETRY_DELAY", &cfg.Build.ResolveRetryDelay)
	duration("REQUEST_TIMEOUT", &cfg.Build.RequestTimeout)
	duration("START_TIMEOUT", &cfg.Build.StartTimeout)
	boolean("SCOPE_IDENTITY_TO_FILE", &cfg.Build.ScopeIdentityToFile)

	boolean("PANEL", &cfg.Panel.Enabled)
	str("PANEL_ADDR", &cfg.Panel.Addr)
	duration("SNAPSHOT_TIMEOUT", &cfg.Panel.SnapshotTimeout)
	duration("WAIT_FOR_CLIENT", &cfg.Panel.WaitForClient)

	str("STORE_PATH", &cfg.Store.Path)
	str("ARTIFACT_DIR", &cfg.Artifact.Dir)

	s3 := &cfg.Artifact.S3
	str("S3_ENDPOINT", &s3.Endpoint)
	str("S3_REGION", &s3.Region)
	str("S3_ACCESS_KEY", &s3.AccessKey)
	str("S3_SECRET_KEY", &s3.SecretKey)
	str("S3_BUCKET", &s3.Bucket)
	boolean("S3_USE_SSL", &s3.UseSSL)
	if os.Getenv(EnvPrefix+"S3_ENDPOINT") != "" {
		s3.Enabled = true
	}
	boolean("S3_ENABLED", &s3.Enabled)

	boolean("ALLOW_DOWNLOAD", &cfg.Download.Allow)
	str("CACHE_DIR", &cfg.Download.CacheDir)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
}

// Validate checks for values no component can work with.
func (c *Config) Validate() error {
	if c.Build.MaxResolveAttempts < 1 {
		return fmt.Errorf("build.max_resolve_attempts must be at least 1, got %d", c.Build.MaxResolveAttempts)
	}
	if c.Build.ResolveRetryDelay < 0 {
		return fmt.Errorf("build.resolve_retry_delay must not be negative")
	}
	if c.Panel.Enabled && c.Panel.Addr == "" {
		return fmt.Errorf("panel.addr is required when the panel is enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Artifact.S3.Enabled {
		s3 := c.Artifact.S3
		if s3.Endpoint == "" || s3.Bucket == "" || s3.AccessKey == "" || s3.SecretKey == "" {
			return fmt.Errorf("artifact.s3 needs endpoint, bucket, access_key and secret_key")
		}
	}
	return nil
}

func dataDir() string {
	if dir := os.Getenv(EnvPrefix + "DATA_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS != "windows" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "codegraph")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codegraph"
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Local", "codegraph")
	}
	return filepath.Join(home, ".local", "share", "codegraph")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
