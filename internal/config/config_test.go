package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJSON = `{
	"server_address": ":3000",
	"file_storage_path": "json_storage.json",
	"database_dsn": "json-dsn",
	"trusted_subnet": "10.0.0.0/8",
	"geocoder_url": "http://geocoder.local"
}`

func writeTempJSON(t *testing.T, content string) string {
	t.Helper()
	file, err := os.CreateTemp("", "config*.json")
	require.NoError(t, err)
	_, err = file.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	t.Cleanup(func() {
		err := os.Remove(file.Name())
		require.NoError(t, err)
	})
	return file.Name()
}

func TestDefaults(t *testing.T) {
	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.RunAddr)
	assert.Equal(t, time.Hour, cfg.AuthTokenTTL)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.GeocoderURL)
	assert.Empty(t, cfg.DatabaseDSN)
}

func TestSigningKeyIsGeneratedWhenMissing(t *testing.T) {
	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.True(t, cfg.EphemeralSigningKey)
	key, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	other, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)
	assert.NotEqual(t, cfg.AuthTokenSigningSecretKey, other.AuthTokenSigningSecretKey)
}

func TestSigningKeyFromEnv(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SIGNING_SECRET_KEY", "c2VjcmV0LWZvci10ZXN0cw==")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.False(t, cfg.EphemeralSigningKey)
	key, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, "secret-for-tests", string(key))
}

func TestTrustedProxiesFromEnv(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "127.0.0.1/32,172.16.0.0/12")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, []string{"127.0.0.1/32", "172.16.0.0/12"}, cfg.TrustedProxies)
}

func TestConfigPriorityJSONOnly(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.RunAddr)
	assert.Equal(t, "json_storage.json", cfg.DBFileName)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedSubnet)
	assert.Equal(t, "http://geocoder.local", cfg.GeocoderURL)
}

func TestConfigPriorityJSONPlusEnv(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)
	t.Setenv("SERVER_ADDRESS", ":4000")
	t.Setenv("AUTH_TOKEN_TTL", "30m")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.RunAddr) // env overrides json
	assert.Equal(t, 30*time.Minute, cfg.AuthTokenTTL)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN) // from JSON
}

func TestConfigPriorityAllSources(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)
	t.Setenv("SERVER_ADDRESS", ":4000")

	oldArgs := os.Args
	t.Cleanup(func() {
		os.Args = oldArgs
	})
	os.Args = []string{
		"testbin",
		"-a", ":6000",
		"-l", "debug",
	}

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.RunAddr) // CLI > ENV > JSON
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN) // from JSON
}

func TestConfigEnvOnly(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":7000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.RunAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestValidationFailures(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown log level", key: "LOG_LEVEL", value: "loud"},
		{name: "broken trusted subnet", key: "TRUSTED_SUBNET", value: "10.0.0.0/99"},
		{name: "zero token TTL", key: "AUTH_TOKEN_TTL", value: "0s"},
		{name: "secret not base64", key: "AUTH_TOKEN_SIGNING_SECRET_KEY", value: "not base64 at all!"},
		{name: "bad server address", key: "SERVER_ADDRESS", value: "localhost"},
		{name: "broken trusted proxy", key: "TRUSTED_PROXIES", value: "127.0.0.1/32,proxy.local"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Setenv(testCase.key, testCase.value)

			_, err := New(WithDisableFlagsParsing(true))
			assert.Error(t, err)
		})
	}
}
