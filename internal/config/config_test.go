package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "mode: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 64, cfg.Signal.SendBuffer)
	assert.Equal(t, time.Duration(0), cfg.Sessions.EmptyRoomGrace)
	assert.True(t, cfg.Database.AutoMigrate)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}

func TestLoadFileValues(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
mode: release
port: 9000
auth:
  jwt_secret: s3cret
sessions:
  empty_room_grace: 2m
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: u
    credential: p
`))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Minute, cfg.Sessions.EmptyRoomGrace)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, "u", cfg.ICEServers[0].Username)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PODNEST_DATABASE_DSN", "postgres://x")
	t.Setenv("PODNEST_PORT", "7000")
	cfg, err := LoadFile(writeConfig(t, "mode: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", cfg.Database.DSN)
	assert.Equal(t, 7000, cfg.Port)
}

func TestReleaseRequiresJWTSecret(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "mode: release\n"))
	assert.Error(t, err)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PODNEST_MODE", "debug")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
}
