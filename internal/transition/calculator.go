// SPDX-License-Identifier: MIT

// Package transition evaluates the learning-equation update rule
//
//	value' = clamp(value + α·Δ + β·ε, 0, 1)
//
// where Δ is the weighted sum of the four extractor signals after weight
// normalisation and ε is the environmental-factor term. All outputs are
// reproducible: ε's pseudo-random component is seeded from the session ID.
package transition

import (
	"math"
	"time"

	"github.com/vrlearn/adaptd/internal/config"
	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/signal"
)

// weightTolerance is the allowed deviation of the normalised weight sum from 1.
const weightTolerance = 0.01

// Calculator is a concrete value; it carries only the configured
// parameter bands and never suspends.
type Calculator struct {
	bands config.Bands
}

// NewCalculator builds a calculator bounded by the configured bands.
func NewCalculator(bands config.Bands) *Calculator {
	return &Calculator{bands: bands}
}

// Params resolves α and β from the session's adaptation sensitivity,
// clamped into the configured bands.
func (c *Calculator) Params(s model.Sensitivity) (alpha, beta float64) {
	switch s {
	case model.SensitivityLow:
		alpha, beta = 0.3, 0.1
	case model.SensitivityHigh:
		alpha, beta = 0.8, 0.3
	default: // medium
		alpha, beta = 0.5, 0.2
	}
	alpha = clamp(alpha, c.bands.AlphaMin, c.bands.AlphaMax)
	beta = clamp(beta, c.bands.BetaMin, c.bands.BetaMax)
	return alpha, beta
}

// Step evaluates one update. prev carries the session's current numeric
// state; signals are the four extractor outputs; env may be nil. The
// returned error is model.ErrNumeric when any output is NaN or infinite;
// callers convert that into a hold_event plus an error audit entry.
func (c *Calculator) Step(prev model.TransitionState, signals signal.Set, env *model.EnvContext, sens model.Sensitivity, now time.Time) (model.TransitionState, error) {
	weights := normaliseWeights(signals)
	delta := weights.Learner*signals.Learner.Value +
		weights.Knowledge*signals.Knowledge.Value +
		weights.Engagement*signals.Engagement.Value +
		weights.Assessment*signals.Assessment.Value

	eps := environmentTerm(prev.SessionID, env)
	alpha, beta := c.Params(sens)

	value := clamp(prev.Value+alpha*delta+beta*eps, 0, 1)

	next := model.TransitionState{
		SessionID:     prev.SessionID,
		Value:         value,
		PreviousValue: prev.Value,
		Integration:   clamp(delta, -1, 1),
		Noise:         eps,
		Alpha:         alpha,
		Beta:          beta,
		Weights:       weights,
		Confidence:    confidence(delta, eps, alpha),
		Stability:     stability(value, prev.Value, alpha*delta+beta*eps),
		UpdatedAt:     now,
	}

	if !finite(next.Value) || !finite(next.Integration) || !finite(next.Noise) ||
		!finite(next.Confidence) || !finite(next.Stability) {
		return prev, model.ErrNumeric
	}
	if s := next.Weights.Sum(); math.Abs(s-1) > weightTolerance {
		return prev, model.ErrNumeric
	}
	return next, nil
}

// normaliseWeights divides each extractor weight by the total so the
// components sum to 1 within tolerance. Extractor bands guarantee a
// strictly positive sum.
func normaliseWeights(s signal.Set) model.Weights {
	sum := s.Learner.Weight + s.Knowledge.Weight + s.Engagement.Weight + s.Assessment.Weight
	if sum <= 0 {
		// Cannot happen with band-constrained extractors; equal split
		// keeps the function total.
		return model.Weights{Learner: 0.25, Knowledge: 0.25, Engagement: 0.25, Assessment: 0.25}
	}
	return model.Weights{
		Learner:    s.Learner.Weight / sum,
		Knowledge:  s.Knowledge.Weight / sum,
		Engagement: s.Engagement.Weight / sum,
		Assessment: s.Assessment.Weight / sum,
	}
}

// confidence scores the decision basis: strong signals raise it, a loud
// environment lowers it.
func confidence(delta, eps, alpha float64) float64 {
	c := 0.5*math.Abs(delta) + 0.3*(1-math.Abs(eps)) + 0.2*alpha
	if math.Abs(delta) > 0.7 {
		c += 0.1
	}
	if math.Abs(eps) > 0.3 {
		c -= 0.1
	}
	return clamp(c, 0, 1)
}

// stability is a piecewise-linear function of the value movement,
// derated when the adaptation term itself was large.
func stability(value, prev, adaptationTerm float64) float64 {
	dv := math.Abs(value - prev)
	var s float64
	switch {
	case dv < 0.1:
		s = 1.0
	case dv < 0.3:
		s = 0.8
	case dv < 0.5:
		s = 0.6
	default:
		s = 0.4
	}
	if math.Abs(adaptationTerm) > 0.5 {
		s *= 0.8
	}
	return clamp(s, 0, 1)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
