package neoogm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NEO4J_PASSWORD", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	want := DefaultConfig()
	want.Password = "secret"
	assert.Equal(t, want, cfg)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://graph:7687")
	t.Setenv("NEO4J_USERNAME", "app")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("NEO4J_DATABASE", "movies")
	t.Setenv("NEO4J_MAX_CONNECTION_POOL_SIZE", "10")
	t.Setenv("NEO4J_CONNECTION_ACQUISITION_TIMEOUT", "5s")
	t.Setenv("NEO4J_MAX_TRANSACTION_RETRY_TIME", "0s")
	t.Setenv("NEOOGM_ID_STRATEGY", "legacy")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, Config{
		URI:                          "bolt://graph:7687",
		Username:                     "app",
		Password:                     "secret",
		Database:                     "movies",
		MaxConnectionPoolSize:        10,
		ConnectionAcquisitionTimeout: 5 * time.Second,
		MaxTransactionRetryTime:      0,
		IDStrategy:                   LegacyIDs,
	}, cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("unparsable", func(t *testing.T) {
		t.Setenv("NEO4J_PASSWORD", "secret")
		t.Setenv("NEO4J_MAX_CONNECTION_POOL_SIZE", "many")

		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("missing password", func(t *testing.T) {
		t.Setenv("NEO4J_PASSWORD", "")

		_, err := LoadConfig()
		assert.ErrorContains(t, err, "password is required")
	})
}

func TestValidate(t *testing.T) {
	cfg := Config{
		MaxConnectionPoolSize:   0,
		MaxTransactionRetryTime: -time.Second,
		IDStrategy:              "numeric",
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, msg := range []string{
		"invalid config",
		"URI is required",
		"username is required",
		"password is required",
		"max connection pool size must be positive",
		"connection acquisition timeout must be positive",
		"max transaction retry time must not be negative",
		`unknown id strategy "numeric"`,
	} {
		assert.ErrorContains(t, err, msg)
	}

	valid := DefaultConfig()
	valid.Password = "secret"
	assert.NoError(t, valid.Validate())
}
