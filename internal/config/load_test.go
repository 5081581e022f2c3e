package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"beanbot/internal/reminder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func isolated(dir string) []Option {
	return []Option{
		WithSearchPaths(dir),
		WithEnvFile(filepath.Join(dir, ".env")),
	}
}

func TestLoadDefaultsWhenNothingIsConfigured(t *testing.T) {
	dir := t.TempDir()

	cfg, meta, err := Load(isolated(dir)...)
	require.NoError(t, err)

	assert.Empty(t, meta.ConfigFile)
	assert.Empty(t, meta.EnvFile)
	assert.Equal(t, "08:00", cfg.Reminder.Morning)
	assert.Equal(t, "13:00", cfg.Reminder.Noon)
	assert.Equal(t, "20:00", cfg.Reminder.Evening)
	assert.Equal(t, 60, cfg.Reminder.TimeoutMinutes)
	assert.Equal(t, DefaultTickSchedule, cfg.Reminder.TickSchedule)
	assert.Equal(t, "skip", cfg.Reminder.DuplicatePolicy)
	assert.Equal(t, 5*time.Second, cfg.Jokes.Timeout)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.True(t, cfg.Lark.CardsEnabled)
	assert.False(t, cfg.Server.PublicAPI, "api stays loopback-only unless opted in")
}

func TestLoadFileAndEnvLayers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "beanbot.yaml", `
lark:
  app_id: cli_file
  app_secret: file-secret
reminder:
  recipient_id: ou_walker
  escalation_id: ou_owner
  owner_id: ou_owner
  timezone: Europe/Paris
  morning: "07:30"
  timeout_minutes: 45
  duplicate_policy: allow
jokes:
  timeout: 2s
observability:
  logging:
    level: DEBUG
`)
	writeFile(t, dir, ".env", "BEANBOT_LARK_APP_SECRET=dotenv-secret\n")
	t.Setenv("BEANBOT_REMINDER_TIMEOUT_MINUTES", "30")
	t.Setenv("BEANBOT_SERVER_PUBLIC_API", "true")

	cfg, meta, err := Load(isolated(dir)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Unsetenv("BEANBOT_LARK_APP_SECRET") })

	assert.Equal(t, filepath.Join(dir, "beanbot.yaml"), meta.ConfigFile)
	assert.Equal(t, filepath.Join(dir, ".env"), meta.EnvFile)
	assert.Equal(t, "cli_file", cfg.Lark.AppID)
	assert.Equal(t, "dotenv-secret", cfg.Lark.AppSecret)
	assert.Equal(t, 30, cfg.Reminder.TimeoutMinutes)
	assert.Equal(t, "07:30", cfg.Reminder.Morning)
	assert.Equal(t, "13:00", cfg.Reminder.Noon)
	assert.Equal(t, 2*time.Second, cfg.Jokes.Timeout)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.True(t, cfg.Server.PublicAPI)
	assert.NoError(t, cfg.RequireCredentials())

	snap, err := cfg.Reminder.Settings()
	require.NoError(t, err)
	assert.Equal(t, reminder.TimeOfDay{Hour: 7, Minute: 30}, snap.Times[reminder.SlotMorning])
	assert.Equal(t, 30*time.Minute, snap.Timeout)
	assert.Equal(t, "Europe/Paris", snap.Location.String())
	assert.Equal(t, reminder.DuplicateAllow, snap.DuplicatePolicy)
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Load(WithConfigPath(filepath.Join(dir, "missing.yaml")), WithEnvFile(""))
	assert.Error(t, err)
}

func TestLoadReportsAllInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", `
reminder:
  timezone: Mars/Olympus
  noon: "25:00"
  timeout_minutes: 0
  duplicate_policy: sometimes
`)

	_, _, err := Load(WithConfigPath(path), WithEnvFile(""))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "reminder.timezone")
	assert.Contains(t, msg, "reminder.noon")
	assert.Contains(t, msg, "timeout_minutes must be at least 1")
	assert.Contains(t, msg, "duplicate_policy")
}

func TestRequireCredentials(t *testing.T) {
	err := Default().RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lark.app_id")
	assert.Contains(t, err.Error(), "lark.app_secret")
	assert.Contains(t, err.Error(), "reminder.owner_id")
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Lark.AppSecret = "0123456789abcdefghij"
	cfg.Lark.EncryptKey = "short"

	redacted := cfg.Redacted()
	assert.Equal(t, "0123...ghij", redacted.Lark.AppSecret)
	assert.Equal(t, "***", redacted.Lark.EncryptKey)
	assert.Equal(t, "0123456789abcdefghij", cfg.Lark.AppSecret)
}
