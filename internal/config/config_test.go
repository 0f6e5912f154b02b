// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 64, cfg.MaxConcurrentLearners)
	assert.Equal(t, 10*time.Millisecond, cfg.CalculatorBudget)
	assert.Equal(t, 25*time.Millisecond, cfg.EndToEndBudget)
	assert.True(t, cfg.FERPAComplianceMode)
	assert.Equal(t, 365, cfg.DataRetentionDays)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
max_concurrent_learners: 8
data_retention_days: 30
`), 0o600))

	// Env wins over file.
	t.Setenv("ADAPTD_MAX_LEARNERS", "16")
	t.Setenv("ADAPTD_AUTH_TOKEN_TTL_HOURS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 16, cfg.MaxConcurrentLearners)
	assert.Equal(t, 30, cfg.DataRetentionDays)
	assert.Equal(t, 2*time.Hour, cfg.AuthTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [not a string"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadBands(t *testing.T) {
	cfg := Default()
	cfg.Bands.AlphaMin = 0.05
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Bands.BetaMax = 0.9
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Bands.LearnerWeightMin = 0.5
	cfg.Bands.LearnerWeightMax = 0.4
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentLearners = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.InboundQueueCapacity = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SessionIdleTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateCouplesFERPAToPrivacyControls(t *testing.T) {
	cfg := Default()
	cfg.AnonymisationEnabled = false
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.AuditLoggingEnabled = false
	assert.Error(t, cfg.Validate())

	// Turning FERPA mode off releases both couplings.
	cfg = Default()
	cfg.FERPAComplianceMode = false
	cfg.AnonymisationEnabled = false
	cfg.AuditLoggingEnabled = false
	assert.NoError(t, cfg.Validate())
}

func TestParseBoolVariants(t *testing.T) {
	t.Setenv("ADAPTD_TEST_BOOL", "yes")
	assert.True(t, ParseBool("ADAPTD_TEST_BOOL", false))

	t.Setenv("ADAPTD_TEST_BOOL", "off")
	assert.False(t, ParseBool("ADAPTD_TEST_BOOL", true))

	t.Setenv("ADAPTD_TEST_BOOL", "maybe")
	assert.True(t, ParseBool("ADAPTD_TEST_BOOL", true))
}
