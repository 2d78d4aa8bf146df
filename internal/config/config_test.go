package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSetAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	require.NoError(t, cfg.Set("max-concurrent", "4"))
	require.NoError(t, cfg.Set("retry-delay", "0.5"))
	require.NoError(t, cfg.Set("default-env", "FOO=bar"))
	require.NoError(t, SaveTo(path, cfg))

	reloaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.MaxConcurrent)
	assert.Equal(t, 0.5, reloaded.RetryDelaySeconds)
	assert.Equal(t, map[string]string{"FOO": "bar"}, reloaded.DefaultEnv)

	require.NoError(t, reloaded.Set("default-env", "FOO="))
	assert.Empty(t, reloaded.DefaultEnv)
}

func TestSetRejectsBadValues(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.Set("max-concurrent", "0"))
	assert.Error(t, cfg.Set("retry-count", "-1"))
	assert.Error(t, cfg.Set("retry-jitter", "abc"))
	assert.Error(t, cfg.Set("max-queue-depth", "-2"))
	assert.Error(t, cfg.Set("default-env", "novalue"))
	assert.Error(t, cfg.Set("colour", "blue"))
}

func TestBrokerConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.RetryCount = 2
	cfg.RetryJitterSeconds = 0.25
	cfg.DefaultTimeoutSeconds = 1.5

	bc := cfg.BrokerConfig()
	require.NoError(t, bc.Validate())
	assert.Nil(t, bc.MaxQueueDepth)
	assert.Equal(t, 250*time.Millisecond, bc.RetryJitter)
	assert.Equal(t, 1500*time.Millisecond, bc.DefaultTimeout)

	cfg.MaxQueueDepth = 0
	bc = cfg.BrokerConfig()
	require.NotNil(t, bc.MaxQueueDepth)
	assert.Equal(t, 0, *bc.MaxQueueDepth)
}

func TestPathHonorsEnv(t *testing.T) {
	t.Setenv("BROKERCTL_CONFIG", "/tmp/custom.json")
	p, err := Path()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.json", p)
}
