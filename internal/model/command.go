// SPDX-License-Identifier: MIT

package model

import "time"

// CommandKind is the fixed set of pedagogical adaptation directives.
type CommandKind string

const (
	CmdAdvanceEvent     CommandKind = "advance_event"
	CmdHoldEvent        CommandKind = "hold_event"
	CmdRemediate        CommandKind = "remediate"
	CmdIncreaseSupport  CommandKind = "increase_support"
	CmdDecreaseSupport  CommandKind = "decrease_support"
	CmdAdjustDifficulty CommandKind = "adjust_difficulty"
	CmdOfferHelp        CommandKind = "offer_help"
	CmdTerminate        CommandKind = "terminate"
)

// Decision reasons carried in command payloads. Keep these stable:
// clients and metrics depend on them.
const (
	ReasonLowConfidence    = "low_confidence"
	ReasonReadyToAdvance   = "ready_to_advance"
	ReasonStruggling       = "struggling"
	ReasonHelpPattern      = "help_pattern"
	ReasonRapidImprovement = "rapid_improvement"
	ReasonRapidDecline     = "rapid_decline"
	ReasonSteadyState      = "steady_state"
	ReasonMasteryComplete  = "mastery_complete"
	ReasonNumericFault     = "numeric_fault"
)

// AdaptationCommand is one directive pushed back to the client.
// Commands for a session carry strictly increasing sequence numbers.
type AdaptationCommand struct {
	SessionID string         `json:"session_id"`
	Seq       uint64         `json:"seq"`
	Kind      CommandKind    `json:"kind"`
	Reason    string         `json:"reason,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
}

// TransitionState is the numeric readiness state owned by a session record.
type TransitionState struct {
	SessionID     string    `json:"session_id"`
	Value         float64   `json:"value"`
	PreviousValue float64   `json:"previous_value"`
	Integration   float64   `json:"integration"`
	Noise         float64   `json:"noise"`
	Alpha         float64   `json:"alpha"`
	Beta          float64   `json:"beta"`
	Weights       Weights   `json:"weights"`
	Confidence    float64   `json:"confidence"`
	Stability     float64   `json:"stability"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Weights are the normalised per-model contributions, summing to 1 within 0.01.
type Weights struct {
	Learner    float64 `json:"w_l"`
	Knowledge  float64 `json:"w_k"`
	Engagement float64 `json:"w_e"`
	Assessment float64 `json:"w_a"`
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Learner + w.Knowledge + w.Engagement + w.Assessment
}
