package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, BlobMemory, cfg.Blob.Backend)
	assert.Equal(t, "consent-ledger.events", cfg.Kafka.EventsTopic)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 2*time.Second, cfg.Signer.Timeout)
	assert.Equal(t, 8760*time.Hour, cfg.Signer.TokenTTL)
	assert.Empty(t, cfg.Database.URL)
	assert.Nil(t, cfg.Signer.TrustedIssuers)
}

func TestOverrides(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{
		"CONSENT_LEDGER_ADDR": ":9000",
		"LOG_LEVEL":           "debug",
		"BLOB_BACKEND":        "Redis",
		"REDIS_URL":           "redis://localhost:6379/0",
		"KAFKA_BROKERS":       "k1:9092,k2:9092",
		"TRUSTED_ISSUERS":     "did:ethr:0xA, did:ethr:0xB,",
		"TX_TIMEOUT":          "750ms",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, BlobRedis, cfg.Blob.Backend)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, []string{"did:ethr:0xA", "did:ethr:0xB"}, cfg.Signer.TrustedIssuers)
	assert.Equal(t, 750*time.Millisecond, cfg.TxTimeout)
}

func TestInvalidValuesFailStartup(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":        {"SIGNER_TIMEOUT": "soon"},
		"negative duration":   {"TX_TIMEOUT": "-1s"},
		"bad level":           {"LOG_LEVEL": "loud"},
		"bad int":             {"REDIS_POOL_SIZE": "many"},
		"unknown blob":        {"BLOB_BACKEND": "s3"},
		"redis blob no redis": {"BLOB_BACKEND": "redis"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := fromLookup(lookupFrom(vars))
			assert.Error(t, err)
		})
	}
}
