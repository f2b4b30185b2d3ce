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
	path := filepath.Join(t.TempDir(), "lockmand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 30*time.Second, cfg.LeaseTTL.Std())
	assert.Equal(t, time.Second, cfg.PollInterval.Std())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":8080"
backend: redis
redis_url: redis://localhost:6379/0
auth_token: sekrit
lease_ttl: 60s
poll_interval: 500ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "sekrit", cfg.AuthToken)
	assert.Equal(t, time.Minute, cfg.LeaseTTL.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval.Std())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":8080"
backend: memory
`)
	t.Setenv("CEPH_LCM_LISTEN", ":7070")
	t.Setenv("CEPH_LCM_BACKEND", "bolt")
	t.Setenv("CEPH_LCM_BOLT_PATH", "/tmp/locks.db")
	t.Setenv("CEPH_LCM_LEASE_TTL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, BackendBolt, cfg.Backend)
	assert.Equal(t, "/tmp/locks.db", cfg.BoltPath)
	assert.Equal(t, 2*time.Minute, cfg.LeaseTTL.Std())
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown backend", "backend: etcd\n", `unknown backend "etcd"`},
		{"redis without url", "backend: redis\n", "requires redis_url"},
		{"bolt without path", "backend: bolt\n", "requires bolt_path"},
		{"bad duration", "lease_ttl: soon\n", "invalid duration"},
		{"non-string duration", "lease_ttl: 30\n", "duration must be a string"},
		{"quoted unitless duration", "lease_ttl: \"30\"\n", "invalid duration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestBadEnvDuration(t *testing.T) {
	t.Setenv("CEPH_LCM_POLL_INTERVAL", "never")
	_, err := Load("")
	assert.ErrorContains(t, err, "CEPH_LCM_POLL_INTERVAL")
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
