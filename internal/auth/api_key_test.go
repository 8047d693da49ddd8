package auth

import (
	"testing"

	"github.com/casebill/casebill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(raw string, active bool) *config.Configuration {
	cfg := config.GetDefaultConfig()
	cfg.Auth.APIKey.Keys = map[string]config.APIKeyDetails{
		HashAPIKey(raw): {TenantID: "tenant-1", UserID: "user-1", Name: "billing desk", IsActive: active},
	}
	cfg.Cron.APIKey = "cron-secret"
	return cfg
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Len(t, HashAPIKey(a), 64)
	assert.NotEqual(t, a, HashAPIKey(a))
}

func TestValidateAPIKey(t *testing.T) {
	raw, err := GenerateAPIKey()
	require.NoError(t, err)

	principal, ok := ValidateAPIKey(testConfig(raw, true), raw)
	require.True(t, ok)
	assert.Equal(t, "tenant-1", principal.TenantID)
	assert.Equal(t, "user-1", principal.UserID)

	_, ok = ValidateAPIKey(testConfig(raw, true), "not-a-key")
	assert.False(t, ok)

	_, ok = ValidateAPIKey(testConfig(raw, false), raw)
	assert.False(t, ok, "inactive keys are rejected")

	_, ok = ValidateAPIKey(testConfig(raw, true), "")
	assert.False(t, ok)
}

func TestValidateCronKey(t *testing.T) {
	cfg := testConfig("k", true)
	assert.True(t, ValidateCronKey(cfg, "cron-secret"))
	assert.False(t, ValidateCronKey(cfg, "cron-secre"))
	assert.False(t, ValidateCronKey(cfg, ""))

	cfg.Cron.APIKey = ""
	assert.False(t, ValidateCronKey(cfg, ""))
}
