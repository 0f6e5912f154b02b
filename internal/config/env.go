// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vrlearn/adaptd/internal/log"
)

// Environment override keys. The prefix keeps adaptd vars grep-able.
const (
	envServerName      = "ADAPTD_SERVER_NAME"
	envListenAddr      = "ADAPTD_LISTEN"
	envMaxLearners     = "ADAPTD_MAX_LEARNERS"
	envIdleTimeoutMin  = "ADAPTD_IDLE_TIMEOUT_MINUTES"
	envQueueCapacity   = "ADAPTD_QUEUE_CAPACITY"
	envCalculatorMS    = "ADAPTD_CALCULATOR_BUDGET_MS"
	envEndToEndMS      = "ADAPTD_END_TO_END_BUDGET_MS"
	envRetentionDays   = "ADAPTD_RETENTION_DAYS"
	envCompliance      = "ADAPTD_FERPA_COMPLIANCE"
	envAnonymisation   = "ADAPTD_ANONYMISATION"
	envAuditLogging    = "ADAPTD_AUDIT_LOGGING"
	envTokenTTLHours   = "ADAPTD_AUTH_TOKEN_TTL_HOURS"
	envAPIToken        = "ADAPTD_API_TOKEN"
	envDataDir         = "ADAPTD_DATA"
	envCacheEnabled    = "ADAPTD_CACHE"
	envRedisAddr       = "ADAPTD_REDIS_ADDR"
	envDebug           = "ADAPTD_DEBUG"
	envTracingEnabled  = "ADAPTD_TRACING"
	envTracingEndpoint = "ADAPTD_TRACING_ENDPOINT"
)

func applyEnv(cfg Snapshot) Snapshot {
	cfg.ServerName = ParseString(envServerName, cfg.ServerName)
	cfg.ListenAddr = ParseString(envListenAddr, cfg.ListenAddr)
	cfg.MaxConcurrentLearners = ParseInt(envMaxLearners, cfg.MaxConcurrentLearners)
	if mins := ParseInt(envIdleTimeoutMin, 0); mins > 0 {
		cfg.SessionIdleTimeout = time.Duration(mins) * time.Minute
	}
	cfg.InboundQueueCapacity = ParseInt(envQueueCapacity, cfg.InboundQueueCapacity)
	if ms := ParseInt(envCalculatorMS, 0); ms > 0 {
		cfg.CalculatorBudget = time.Duration(ms) * time.Millisecond
	}
	if ms := ParseInt(envEndToEndMS, 0); ms > 0 {
		cfg.EndToEndBudget = time.Duration(ms) * time.Millisecond
	}
	cfg.DataRetentionDays = ParseInt(envRetentionDays, cfg.DataRetentionDays)
	cfg.FERPAComplianceMode = ParseBool(envCompliance, cfg.FERPAComplianceMode)
	cfg.AnonymisationEnabled = ParseBool(envAnonymisation, cfg.AnonymisationEnabled)
	cfg.AuditLoggingEnabled = ParseBool(envAuditLogging, cfg.AuditLoggingEnabled)
	if hours := ParseInt(envTokenTTLHours, 0); hours > 0 {
		cfg.AuthTokenTTL = time.Duration(hours) * time.Hour
	}
	cfg.APIToken = ParseString(envAPIToken, cfg.APIToken)
	cfg.DataDir = ParseString(envDataDir, cfg.DataDir)
	cfg.CacheEnabled = ParseBool(envCacheEnabled, cfg.CacheEnabled)
	cfg.RedisAddr = ParseString(envRedisAddr, cfg.RedisAddr)
	cfg.Debug = ParseBool(envDebug, cfg.Debug)
	cfg.TracingEnabled = ParseBool(envTracingEnabled, cfg.TracingEnabled)
	cfg.TracingEndpoint = ParseString(envTracingEndpoint, cfg.TracingEndpoint)
	return cfg
}

// ParseString reads a string from the environment or returns the default.
// Sensitive values (tokens, secrets) are never logged verbatim.
func ParseString(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	logger := log.WithComponent("config")
	lower := strings.ToLower(key)
	if strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
		logger.Debug().Str("key", key).Bool("sensitive", true).Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", value).Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer from the environment, falling back to the
// default on missing, empty, or malformed values.
func ParseInt(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return i
}

// ParseBool reads a boolean from the environment ("true"/"1"/"yes" are true).
func ParseBool(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	logger := log.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", v).
		Bool("default", defaultValue).
		Msg("invalid boolean in environment variable, using default")
	return defaultValue
}

// ParseDuration reads a Go duration (e.g. "5s") from the environment.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}
