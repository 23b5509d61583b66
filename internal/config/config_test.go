package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/builder"
)

// chdir runs the test in an empty directory so no stray codegraph.yaml or
// .env is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	t.Setenv("CODEGRAPH_DATA_DIR", "/data")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Build.MaxResolveAttempts)
	assert.Equal(t, builder.DefaultExcludes, cfg.Build.Exclude)
	cfg.Build.Exclude[0] = "changed/"
	assert.Equal(t, "node_modules/", builder.DefaultExcludes[0])
	assert.Equal(t, filepath.Join("/data", "builds.db"), cfg.Store.Path)
	assert.Equal(t, DefaultPanel, cfg.Panel.Addr)
	assert.False(t, cfg.Artifact.S3.Enabled)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workspace_root: /repo
servers:
  go:
    command: /opt/gopls
    args: [serve]
build:
  max_resolve_attempts: 3
  resolve_retry_delay: 250ms
  exclude: ["generated/"]
panel:
  enabled: true
  snapshot_timeout: 2s
log:
  level: debug
`), 0o644))
	t.Setenv("CODEGRAPH_LOG_LEVEL", "warn")
	t.Setenv("CODEGRAPH_MAX_RESOLVE_ATTEMPTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/repo", cfg.WorkspaceRoot)
	assert.Equal(t, ServerConfig{Command: "/opt/gopls", Args: []string{"serve"}}, cfg.Servers["go"])
	assert.Equal(t, 7, cfg.Build.MaxResolveAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Build.ResolveRetryDelay)
	assert.Equal(t, []string{"generated/"}, cfg.Build.Exclude)
	assert.True(t, cfg.Panel.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Panel.SnapshotTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CODEGRAPH_S3_ENDPOINT=localhost:9000\nCODEGRAPH_S3_ACCESS_KEY=minio\nCODEGRAPH_S3_SECRET_KEY=secret\n"), 0o644))
	t.Setenv("CODEGRAPH_S3_USE_SSL", "false")
	// godotenv never overrides variables that are already set; register the
	// keys with t.Setenv so they are cleaned up after the test.
	for _, k := range []string{"CODEGRAPH_S3_ENDPOINT", "CODEGRAPH_S3_ACCESS_KEY", "CODEGRAPH_S3_SECRET_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load("")
	require.NoError(t, err)
	s3 := cfg.Artifact.S3
	assert.True(t, s3.Enabled)
	assert.Equal(t, "localhost:9000", s3.Endpoint)
	assert.Equal(t, "minio", s3.AccessKey)
	assert.False(t, s3.UseSSL)
	assert.Equal(t, "codegraph-artifacts", s3.Bucket)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	chdir(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"attempts", func(c *Config) { c.Build.MaxResolveAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Build.ResolveRetryDelay = -time.Second }},
		{"panel addr", func(c *Config) { c.Panel.Enabled = true; c.Panel.Addr = "" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"s3 incomplete", func(c *Config) { c.Artifact.S3.Enabled = true; c.Artifact.S3.Endpoint = "x" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
