package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoad_MissingFile tests that a missing file yields the defaults
func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

// TestLoad_File tests values read from YAML
func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
host: 0.0.0.0
port: 9090
db_path: /tmp/idx/emails.db
emails_path: /srv/mail
log_level: WARNING
workers: 3
preview_bytes: 500
sanitize_html: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/idx/emails.db", cfg.DBPath)
	assert.Equal(t, "/srv/mail", cfg.EmailsPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 500, cfg.PreviewBytes)
	assert.False(t, cfg.SanitizeHTML)
	assert.Equal(t, "http://0.0.0.0:9090", cfg.URL())
}

// TestLoad_Env tests environment overrides
func TestLoad_Env(t *testing.T) {
	t.Setenv("EMLDECODE_EMAILS_PATH", "/from/env")
	path := writeConfig(t, "emails_path: /from/file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.EmailsPath)
}

// TestLoad_Invalid tests that invalid values are rejected
func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "log_level: loud\n"))
	assert.ErrorContains(t, err, "invalid log level")

	_, err = Load(writeConfig(t, "port: 70000\n"))
	assert.ErrorContains(t, err, "port")

	_, err = Load(writeConfig(t, "workers: 0\n"))
	assert.ErrorContains(t, err, "workers")

	_, err = Load(writeConfig(t, "host: [unclosed\n"))
	assert.Error(t, err)
}

// TestLoadConfig_Flags tests that flags set on the command line win over the file
func TestLoadConfig_Flags(t *testing.T) {
	path := writeConfig(t, "emails_path: /from/file\nport: 9000\n")

	var got *Config
	cmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			got, err = LoadConfig(cmd)
			return err
		},
	}
	RegisterFlags(cmd)
	cmd.SetArgs([]string{"--config", path, "--emails", "/from/flag", "--workers", "5"})

	require.NoError(t, cmd.Execute())
	require.NotNil(t, got)
	assert.Equal(t, "/from/flag", got.EmailsPath)
	assert.Equal(t, "9000", got.Port, "Unset flags do not override the file")
	assert.Equal(t, 5, got.Workers)
}

// TestLoadConfig_ExplicitMissingFile tests that an explicit --config must exist
func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	cmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := LoadConfig(cmd)
			return err
		},
	}
	RegisterFlags(cmd)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	assert.Error(t, cmd.Execute())
}
