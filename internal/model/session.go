// SPDX-License-Identifier: MIT

package model

import "time"

// SessionState is the pipeline lifecycle for one session.
type SessionState string

const (
	SessionConnecting SessionState = "connecting"
	SessionActive     SessionState = "active"
	SessionDraining   SessionState = "draining"
	SessionClosed     SessionState = "closed"
)

// IsTerminal returns true once no further commands may be emitted.
func (s SessionState) IsTerminal() bool { return s == SessionClosed }

// Sensitivity controls how aggressively the calculator adapts.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Valid reports whether s is a recognised sensitivity level.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return true
	}
	return false
}

// SessionConfig is the client-supplied configuration carried by connect.
type SessionConfig struct {
	LearningDomain string        `json:"learning_domain"`
	TargetEvent    LearningEvent `json:"target_learning_event"`
	Sensitivity    Sensitivity   `json:"adaptation_sensitivity"`
	Difficulty     float64       `json:"difficulty"`
	SupportLevel   string        `json:"support_level"`
}

// SessionRecord is the state-store source of truth for one session.
// It is mutated exclusively by the owning session pipeline.
type SessionRecord struct {
	SessionID   string        `json:"session_id"`
	LearnerID   string        `json:"learner_id"`
	Channel     string        `json:"channel"`
	CreatedAt   time.Time     `json:"created_at"`
	LastEventAt time.Time     `json:"last_event_at"`
	Config      SessionConfig `json:"config"`

	CurrentEvent LearningEvent `json:"current_event"`
	Progress     float64       `json:"progress"`
	State        SessionState  `json:"state"`

	EventsIn       int64 `json:"events_in"`
	AdaptationsOut int64 `json:"adaptations_out"`
	HelpRequests   int64 `json:"help_requests"`
}

// SessionSummary is the public shape returned on disconnect and timeout.
type SessionSummary struct {
	SessionID      string        `json:"session_id"`
	CurrentEvent   LearningEvent `json:"current_event"`
	Progress       float64       `json:"progress"`
	TotalEvents    int64         `json:"total_events"`
	AdaptationsOut int64         `json:"adaptations_out"`
	HelpRequests   int64         `json:"help_requests"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        time.Time     `json:"ended_at"`
}

// Summary derives the public session summary from a record.
func (r *SessionRecord) Summary(now time.Time) SessionSummary {
	return SessionSummary{
		SessionID:      r.SessionID,
		CurrentEvent:   r.CurrentEvent,
		Progress:       r.Progress,
		TotalEvents:    r.EventsIn,
		AdaptationsOut: r.AdaptationsOut,
		HelpRequests:   r.HelpRequests,
		StartedAt:      r.CreatedAt,
		EndedAt:        now,
	}
}
