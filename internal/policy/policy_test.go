// SPDX-License-Identifier: MIT

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrlearn/adaptd/internal/model"
)

// steady is a baseline input that falls through to rule 7.
func steady() Input {
	return Input{
		CurrentEvent:  model.EventPractice,
		Progress:      0.5,
		Value:         0.5,
		PreviousValue: 0.5,
		Confidence:    0.7,
		Stability:     0.9,
	}
}

func TestDecideLowConfidenceHolds(t *testing.T) {
	in := steady()
	in.Confidence = 0.34
	// Even a perfect advance profile loses to low confidence.
	in.Value, in.Stability, in.Progress = 0.95, 1.0, 1.0

	d := Decide(in)
	assert.Equal(t, model.CmdHoldEvent, d.Kind)
	assert.Equal(t, model.ReasonLowConfidence, d.Reason)
	assert.Equal(t, model.EventPractice, d.TargetEvent)
	assert.Empty(t, d.Auxiliaries)
}

func TestDecideAdvance(t *testing.T) {
	in := steady()
	in.Value, in.Stability, in.Progress = 0.85, 0.6, 0.8

	d := Decide(in)
	assert.Equal(t, model.CmdAdvanceEvent, d.Kind)
	assert.Equal(t, model.ReasonReadyToAdvance, d.Reason)
	assert.Equal(t, model.EventApplication, d.TargetEvent)
}

func TestDecideAdvanceBeatsRapidImprovement(t *testing.T) {
	in := steady()
	in.Value, in.PreviousValue = 0.9, 0.4 // Δ=0.5 would also trip rule 5
	in.Stability, in.Progress = 0.8, 0.9

	d := Decide(in)
	assert.Equal(t, model.CmdAdvanceEvent, d.Kind)
}

func TestDecideMastery(t *testing.T) {
	in := steady()
	in.CurrentEvent = model.EventMastery
	in.Value, in.Stability, in.Progress = 0.95, 0.9, 0.9

	// Advance criteria at mastery without full progress stay at mastery.
	d := Decide(in)
	assert.Equal(t, model.CmdAdvanceEvent, d.Kind)
	assert.Equal(t, model.EventMastery, d.TargetEvent)

	// Full progress terminates the session.
	in.Progress = 1.0
	d = Decide(in)
	assert.Equal(t, model.CmdTerminate, d.Kind)
	assert.Equal(t, model.ReasonMasteryComplete, d.Reason)
}

func TestDecideRemediate(t *testing.T) {
	in := steady()
	in.Value = 0.25

	d := Decide(in)
	assert.Equal(t, model.CmdRemediate, d.Kind)
	assert.Equal(t, model.ReasonStruggling, d.Reason)
	assert.Equal(t, model.EventIntroduction, d.TargetEvent)
}

func TestDecideRemediateClampsAtOnboarding(t *testing.T) {
	in := steady()
	in.CurrentEvent = model.EventOnboarding
	in.Value = 0.1
	in.PreviousValue = 0.1

	// Onboarding cannot step back; falls through to the later rules.
	d := Decide(in)
	assert.Equal(t, model.CmdHoldEvent, d.Kind)
	assert.Equal(t, model.ReasonSteadyState, d.Reason)
}

func TestDecideRemediateBeatsRapidDecline(t *testing.T) {
	in := steady()
	in.Value, in.PreviousValue = 0.2, 0.6 // Δ=-0.4 would also trip rule 6

	d := Decide(in)
	assert.Equal(t, model.CmdRemediate, d.Kind)
}

func TestDecideHelpPattern(t *testing.T) {
	byRate := steady()
	byRate.HelpRate = 0.25
	d := Decide(byRate)
	require.Equal(t, model.CmdOfferHelp, d.Kind)
	assert.Equal(t, model.ReasonHelpPattern, d.Reason)

	byStreak := steady()
	byStreak.FlatStreak = 3
	assert.Equal(t, model.CmdOfferHelp, Decide(byStreak).Kind)

	// Exactly at the rate limit does not trigger.
	atLimit := steady()
	atLimit.HelpRate = 0.2
	assert.Equal(t, model.CmdHoldEvent, Decide(atLimit).Kind)
}

func TestDecideAdjustDifficulty(t *testing.T) {
	up := steady()
	up.Value, up.PreviousValue = 0.66, 0.5
	d := Decide(up)
	require.Equal(t, model.CmdAdjustDifficulty, d.Kind)
	assert.Equal(t, model.ReasonRapidImprovement, d.Reason)
	assert.Equal(t, "+", d.Direction)

	down := steady()
	down.Value, down.PreviousValue = 0.34, 0.5
	d = Decide(down)
	require.Equal(t, model.CmdAdjustDifficulty, d.Kind)
	assert.Equal(t, model.ReasonRapidDecline, d.Reason)
	assert.Equal(t, "-", d.Direction)

	// Exactly ±0.15 is not "sharp".
	edge := steady()
	edge.Value, edge.PreviousValue = 0.65, 0.5
	assert.Equal(t, model.CmdHoldEvent, Decide(edge).Kind)
}

func TestDecideSteadyState(t *testing.T) {
	d := Decide(steady())
	assert.Equal(t, model.CmdHoldEvent, d.Kind)
	assert.Equal(t, model.ReasonSteadyState, d.Reason)
	assert.Empty(t, d.Auxiliaries)
}

func TestAuxiliariesOnlyOnHold(t *testing.T) {
	// Low-confidence hold with a help pattern carries the rider.
	in := steady()
	in.Confidence = 0.2
	in.HelpRate = 0.5

	d := Decide(in)
	require.Equal(t, model.CmdHoldEvent, d.Kind)
	require.Len(t, d.Auxiliaries, 1)
	assert.Equal(t, model.CmdOfferHelp, d.Auxiliaries[0].Kind)

	// A remediate with the same help pattern stays bare.
	in.Confidence = 0.7
	in.Value = 0.1
	d = Decide(in)
	require.Equal(t, model.CmdRemediate, d.Kind)
	assert.Empty(t, d.Auxiliaries)
}

func TestApplyTransitions(t *testing.T) {
	rec := &model.SessionRecord{CurrentEvent: model.EventPractice, Progress: 0.9}

	Apply(rec, Decision{Kind: model.CmdAdvanceEvent, TargetEvent: model.EventApplication})
	assert.Equal(t, model.EventApplication, rec.CurrentEvent)
	assert.Zero(t, rec.Progress)

	Apply(rec, Decision{Kind: model.CmdRemediate, TargetEvent: model.EventPractice})
	assert.Equal(t, model.EventPractice, rec.CurrentEvent)

	// Non-adjacent targets are rejected.
	Apply(rec, Decision{Kind: model.CmdAdvanceEvent, TargetEvent: model.EventMastery})
	assert.Equal(t, model.EventPractice, rec.CurrentEvent)
}

func TestApplyProgressDrift(t *testing.T) {
	rec := &model.SessionRecord{CurrentEvent: model.EventPractice, Progress: 0.99}

	Apply(rec, Decision{Kind: model.CmdHoldEvent, Reason: model.ReasonSteadyState})
	assert.InDelta(t, 1.0, rec.Progress, 1e-9) // clamped

	rec.Progress = 0.5
	Apply(rec, Decision{Kind: model.CmdAdjustDifficulty, Reason: model.ReasonRapidImprovement})
	assert.InDelta(t, 0.55, rec.Progress, 1e-9)

	Apply(rec, Decision{Kind: model.CmdTerminate})
	assert.InDelta(t, 0.55, rec.Progress, 1e-9)
}
