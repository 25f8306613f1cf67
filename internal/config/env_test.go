package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, defaultConcurrentImages, cfg.ConcurrentImages)
	assert.Equal(t, defaultRetryAttempts, cfg.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4*time.Hour, cfg.OperationDeadline)
	assert.Equal(t, "Asia/Shanghai", cfg.Timezone)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv(envBatchSize, "25")
	t.Setenv(envConcurrentImages, "2")
	t.Setenv(envUpstreamRPS, "20.5")
	t.Setenv(envAppID, "app-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2, cfg.ConcurrentImages)
	assert.InDelta(t, 20.5, cfg.UpstreamRPS, 0.0001)
	assert.Equal(t, "app-1", cfg.Upstream.AppID)
}

func TestLoadInvalidInt(t *testing.T) {
	t.Setenv(envBatchSize, "not-a-number")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)

	cfg.Upstream.BaseURL = "https://table.example.com"
	cfg.Upstream.TokenURL = "https://table.example.com/oauth/token"
	cfg.Upstream.AppID = "a"
	cfg.Upstream.Secret = "s"
	cfg.Upstream.AppToken = "t"
	cfg.Upstream.TableID = "tbl"
	cfg.DocumentStoreURI = "file:data.db"
	cfg.ObjectStoreEndpoint = "localhost:9000"
	cfg.ObjectStoreBucket = "products"

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveBatchSize(t *testing.T) {
	cfg := Defaults()
	cfg.Upstream = Upstream{
		BaseURL:  "https://table.example.com",
		TokenURL: "https://table.example.com/oauth/token",
		AppID:    "a", Secret: "s", AppToken: "t", TableID: "tbl",
	}
	cfg.DocumentStoreURI = "file:data.db"
	cfg.ObjectStoreEndpoint = "localhost:9000"
	cfg.ObjectStoreBucket = "products"
	cfg.BatchSize = 0

	require.Error(t, cfg.Validate())
}
