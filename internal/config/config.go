// SPDX-License-Identifier: MIT

// Package config loads the adaptd configuration from a YAML file merged
// with environment overrides, producing an immutable startup Snapshot.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Bands constrain the learning-equation parameters.
type Bands struct {
	AlphaMin float64 `yaml:"alpha_min"`
	AlphaMax float64 `yaml:"alpha_max"`
	BetaMin  float64 `yaml:"beta_min"`
	BetaMax  float64 `yaml:"beta_max"`

	LearnerWeightMin    float64 `yaml:"learner_weight_min"`
	LearnerWeightMax    float64 `yaml:"learner_weight_max"`
	KnowledgeWeightMin  float64 `yaml:"knowledge_weight_min"`
	KnowledgeWeightMax  float64 `yaml:"knowledge_weight_max"`
	EngagementWeightMin float64 `yaml:"engagement_weight_min"`
	EngagementWeightMax float64 `yaml:"engagement_weight_max"`
	AssessmentWeightMin float64 `yaml:"assessment_weight_min"`
	AssessmentWeightMax float64 `yaml:"assessment_weight_max"`
}

// Snapshot is the immutable, effective runtime configuration, taken once
// at startup. Components receive it by value and never mutate it.
type Snapshot struct {
	ServerName string `yaml:"server_name"`
	ListenAddr string `yaml:"listen_addr"`
	Debug      bool   `yaml:"debug"`

	MaxConcurrentLearners int           `yaml:"max_concurrent_learners"`
	SessionIdleTimeout    time.Duration `yaml:"session_idle_timeout"`
	InboundQueueCapacity  int           `yaml:"inbound_queue_capacity"`

	CalculatorBudget time.Duration `yaml:"calculator_budget"`
	EndToEndBudget   time.Duration `yaml:"end_to_end_budget"`
	ToolBudget       time.Duration `yaml:"tool_budget"`
	AssessmentBudget time.Duration `yaml:"assessment_budget"`
	DecisionBudget   time.Duration `yaml:"decision_budget"`
	DrainGrace       time.Duration `yaml:"drain_grace"`

	DataRetentionDays    int  `yaml:"data_retention_days"`
	FERPAComplianceMode  bool `yaml:"ferpa_compliance_enabled"`
	AnonymisationEnabled bool `yaml:"anonymisation_enabled"`
	AuditLoggingEnabled  bool `yaml:"audit_logging_enabled"`

	AuthTokenTTL time.Duration `yaml:"auth_token_ttl"`
	APIToken     string        `yaml:"api_token"`

	DataDir      string `yaml:"data_dir"`
	KeystorePath string `yaml:"keystore_path"`
	CacheEnabled bool   `yaml:"cache_enabled"`
	RedisAddr    string `yaml:"redis_addr"`

	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingEndpoint string `yaml:"tracing_endpoint"`

	Bands Bands `yaml:"bands"`
}

// Default returns the built-in configuration baseline.
func Default() Snapshot {
	return Snapshot{
		ServerName: "adaptd",
		ListenAddr: ":8080",

		MaxConcurrentLearners: 64,
		SessionIdleTimeout:    60 * time.Minute,
		InboundQueueCapacity:  64,

		CalculatorBudget: 10 * time.Millisecond,
		EndToEndBudget:   25 * time.Millisecond,
		ToolBudget:       100 * time.Millisecond,
		AssessmentBudget: 200 * time.Millisecond,
		DecisionBudget:   500 * time.Millisecond,
		DrainGrace:       2 * time.Second,

		DataRetentionDays:    365,
		FERPAComplianceMode:  true,
		AnonymisationEnabled: true,
		AuditLoggingEnabled:  true,

		AuthTokenTTL: 24 * time.Hour,

		DataDir:      "./data",
		CacheEnabled: true,

		Bands: Bands{
			AlphaMin: 0.1, AlphaMax: 1.0,
			BetaMin: 0.0, BetaMax: 0.5,
			LearnerWeightMin: 0.25, LearnerWeightMax: 0.40,
			KnowledgeWeightMin: 0.20, KnowledgeWeightMax: 0.35,
			EngagementWeightMin: 0.15, EngagementWeightMax: 0.30,
			AssessmentWeightMin: 0.20, AssessmentWeightMax: 0.35,
		},
	}
}

// Load reads the optional YAML file at path, applies env overrides, and
// validates the result. An empty path skips file loading.
func Load(path string) (Snapshot, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return Snapshot{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Snapshot{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg = applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return Snapshot{}, err
	}
	return cfg, nil
}

// Validate rejects snapshots that would violate core invariants.
func (s Snapshot) Validate() error {
	if s.MaxConcurrentLearners <= 0 {
		return fmt.Errorf("config: max_concurrent_learners must be > 0")
	}
	if s.InboundQueueCapacity <= 0 {
		return fmt.Errorf("config: inbound_queue_capacity must be > 0")
	}
	if s.SessionIdleTimeout <= 0 {
		return fmt.Errorf("config: session_idle_timeout must be > 0")
	}
	if s.FERPAComplianceMode && !s.AnonymisationEnabled {
		return fmt.Errorf("config: ferpa_compliance_enabled requires anonymisation_enabled")
	}
	if s.FERPAComplianceMode && !s.AuditLoggingEnabled {
		return fmt.Errorf("config: ferpa_compliance_enabled requires audit_logging_enabled")
	}
	b := s.Bands
	if b.AlphaMin < 0.1 || b.AlphaMax > 1.0 || b.AlphaMin > b.AlphaMax {
		return fmt.Errorf("config: alpha band must stay within [0.1, 1.0]")
	}
	if b.BetaMin < 0 || b.BetaMax > 0.5 || b.BetaMin > b.BetaMax {
		return fmt.Errorf("config: beta band must stay within [0, 0.5]")
	}
	for _, band := range [][2]float64{
		{b.LearnerWeightMin, b.LearnerWeightMax},
		{b.KnowledgeWeightMin, b.KnowledgeWeightMax},
		{b.EngagementWeightMin, b.EngagementWeightMax},
		{b.AssessmentWeightMin, b.AssessmentWeightMax},
	} {
		if band[0] < 0 || band[1] > 1 || band[0] > band[1] {
			return fmt.Errorf("config: weight bands must stay within [0, 1]")
		}
	}
	return nil
}

// Retention converts data_retention_days into a duration.
func (s Snapshot) Retention() time.Duration {
	return time.Duration(s.DataRetentionDays) * 24 * time.Hour
}
