// SPDX-License-Identifier: MIT

// Package policy maps a post-calculation session state onto exactly one
// primary adaptation command plus optional auxiliaries. Rules are
// evaluated in order and short-circuit on first match.
package policy

import (
	"github.com/vrlearn/adaptd/internal/model"
)

// Thresholds of the decision table. Keep these stable: the end-to-end
// behaviour of every session depends on them.
const (
	minConfidence    = 0.35
	advanceValue     = 0.85
	advanceStability = 0.6
	advanceProgress  = 0.8
	remediateValue   = 0.25
	helpRateLimit    = 0.2
	flatDeltaLimit   = 0.05
	flatStreakLimit  = 3
	difficultyStep   = 0.15
)

// Input is the decision basis for one event.
type Input struct {
	CurrentEvent model.LearningEvent
	Progress     float64

	Value         float64
	PreviousValue float64
	Integration   float64
	Confidence    float64
	Stability     float64

	// HelpRate is the recent help-request rate per interaction.
	HelpRate float64
	// FlatStreak counts consecutive events with |Δ| < flatDeltaLimit.
	FlatStreak int
}

// Decision is the policy output: one primary command kind plus zero or
// more auxiliaries. Auxiliaries only ever attach to hold_event.
type Decision struct {
	Kind        model.CommandKind
	Reason      string
	TargetEvent model.LearningEvent
	// Direction is set for adjust_difficulty: "+" or "-".
	Direction   string
	Auxiliaries []Decision
}

// Decide evaluates the transition rule table.
func Decide(in Input) Decision {
	// 1. Insufficient decision basis: hold.
	if in.Confidence < minConfidence {
		d := Decision{Kind: model.CmdHoldEvent, Reason: model.ReasonLowConfidence, TargetEvent: in.CurrentEvent}
		return attachAuxiliaries(d, in)
	}

	// 2. Ready to advance. Beats rule 5 when both match.
	if in.Value >= advanceValue && in.Stability >= advanceStability && in.Progress >= advanceProgress {
		if in.CurrentEvent == model.EventMastery {
			if in.Progress >= 1.0 {
				return Decision{Kind: model.CmdTerminate, Reason: model.ReasonMasteryComplete, TargetEvent: model.EventMastery}
			}
			return Decision{Kind: model.CmdAdvanceEvent, Reason: model.ReasonReadyToAdvance, TargetEvent: model.EventMastery}
		}
		return Decision{Kind: model.CmdAdvanceEvent, Reason: model.ReasonReadyToAdvance, TargetEvent: in.CurrentEvent.Next()}
	}

	// 3. Struggling: step back one stage, clamping at onboarding.
	// Beats rule 6 when both match.
	if in.Value <= remediateValue && in.CurrentEvent.Index() > model.EventOnboarding.Index() {
		return Decision{Kind: model.CmdRemediate, Reason: model.ReasonStruggling, TargetEvent: in.CurrentEvent.Prev()}
	}

	// 4. Help pattern: frequent requests or a flat signal streak.
	if in.HelpRate > helpRateLimit || in.FlatStreak >= flatStreakLimit {
		return Decision{Kind: model.CmdOfferHelp, Reason: model.ReasonHelpPattern, TargetEvent: in.CurrentEvent}
	}

	// 5/6. Sharp movement adjusts difficulty. Mutually exclusive.
	move := in.Value - in.PreviousValue
	if move > difficultyStep {
		return Decision{Kind: model.CmdAdjustDifficulty, Reason: model.ReasonRapidImprovement, TargetEvent: in.CurrentEvent, Direction: "+"}
	}
	if move < -difficultyStep {
		return Decision{Kind: model.CmdAdjustDifficulty, Reason: model.ReasonRapidDecline, TargetEvent: in.CurrentEvent, Direction: "-"}
	}

	// 7. Steady state.
	d := Decision{Kind: model.CmdHoldEvent, Reason: model.ReasonSteadyState, TargetEvent: in.CurrentEvent}
	return attachAuxiliaries(d, in)
}

// attachAuxiliaries adds an offer_help rider to a hold_event when a
// help pattern is present. Riders never attach to any other kind.
func attachAuxiliaries(d Decision, in Input) Decision {
	if d.Kind != model.CmdHoldEvent {
		return d
	}
	if in.HelpRate > helpRateLimit || in.FlatStreak >= flatStreakLimit {
		d.Auxiliaries = append(d.Auxiliaries, Decision{
			Kind: model.CmdOfferHelp, Reason: model.ReasonHelpPattern, TargetEvent: in.CurrentEvent,
		})
	}
	return d
}

// Apply folds a decision into the session record, enforcing that the
// current event only ever moves between adjacent learning events.
func Apply(rec *model.SessionRecord, d Decision) {
	switch d.Kind {
	case model.CmdAdvanceEvent, model.CmdRemediate:
		if rec.CurrentEvent.Adjacent(d.TargetEvent) {
			rec.CurrentEvent = d.TargetEvent
			rec.Progress = 0
		}
	case model.CmdTerminate:
		// Progress stays; lifecycle handling is the pipeline's concern.
	default:
		// Hold and difficulty adjustments track progress drift.
		rec.Progress = clamp01(rec.Progress + d.progressDrift())
	}
}

// progressDrift nudges progress for non-transition decisions.
func (d Decision) progressDrift() float64 {
	switch d.Reason {
	case model.ReasonRapidImprovement:
		return 0.05
	case model.ReasonSteadyState:
		return 0.02
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
