// SPDX-License-Identifier: MIT

package model

import "time"

// LearnerState is the learner-model input block of a snapshot.
// Pointer fields are optional; absent fields are defaulted by the extractor.
type LearnerState struct {
	Readiness          *float64 `json:"readiness,omitempty"`
	Confidence         *float64 `json:"confidence,omitempty"`
	Preferences        *float64 `json:"preferences,omitempty"`
	EngagementTrend    *float64 `json:"engagement_trend,omitempty"`
	Pace               *float64 `json:"pace,omitempty"`
	PriorKnowledge     string   `json:"prior_knowledge,omitempty"`
	GuidancePreference string   `json:"guidance_preference,omitempty"`
	InteractionStyle   string   `json:"interaction_style,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// KnowledgeState is the knowledge-model input block.
type KnowledgeState struct {
	PrereqCompletion *float64 `json:"prerequisite_completion,omitempty"`
	PathComplexity   *float64 `json:"path_complexity,omitempty"`
	CompetencyGaps   *int     `json:"competency_gaps,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// EngagementMetrics is the engagement-model input block.
type EngagementMetrics struct {
	Engagement  *float64 `json:"engagement,omitempty"`
	Attention   *float64 `json:"attention,omitempty"`
	Intrinsic   *float64 `json:"intrinsic_motivation,omitempty"`
	Persistence *float64 `json:"task_persistence,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// AssessmentData is the assessment-model input block.
type AssessmentData struct {
	Competency  *float64 `json:"competency,omitempty"`
	SkillScores []float64 `json:"skill_scores,omitempty"`
	Accuracy    *float64 `json:"accuracy,omitempty"`
	Consistency *float64 `json:"consistency,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// EnvContext is the optional environmental context of a snapshot.
type EnvContext struct {
	SessionMinutes float64 `json:"session_duration_minutes"`
	WallHour       int     `json:"wall_hour"`
	Environment    string  `json:"environment"`
	// Sensitivity scales the environmental term, in [0,1].
	Sensitivity float64 `json:"environmental_sensitivity"`
}

// InteractionSnapshot is one inbound learning_data event.
// All four model blocks are required; Env is optional.
type InteractionSnapshot struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	Learner    *LearnerState      `json:"learner_state"`
	Knowledge  *KnowledgeState    `json:"knowledge_state"`
	Engagement *EngagementMetrics `json:"engagement_metrics"`
	Assessment *AssessmentData    `json:"assessment_data"`
	Env        *EnvContext        `json:"educational_context,omitempty"`

	// HelpRequested marks an explicit learner help request riding on this event.
	HelpRequested bool `json:"help_requested,omitempty"`
}

// Validate rejects snapshots missing a required model block.
func (s *InteractionSnapshot) Validate() error {
	if s.SessionID == "" {
		return WireError(CodeNoSession, "session_id is required", ErrValidation)
	}
	if s.Learner == nil || s.Knowledge == nil || s.Engagement == nil || s.Assessment == nil {
		return WireError(CodeMissingBlock, "all four model input blocks are required", ErrValidation)
	}
	return nil
}
