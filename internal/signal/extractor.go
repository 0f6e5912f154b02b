// SPDX-License-Identifier: MIT

// Package signal turns the four raw model inputs of a snapshot into
// scalar signals in [-1, 1] plus bounded weights. Extractors are total
// functions: missing fields are defaulted to 0.5 and the result is
// marked degraded when too many inputs had to be defaulted.
package signal

// Signal is the output of one extractor.
type Signal struct {
	// Value is the model signal in [-1, 1]. Positive pushes forward.
	Value float64
	// Weight is the model contribution before normalisation, inside
	// the extractor's declared band.
	Weight float64
	// Degraded marks a result where half or more of the formula
	// inputs were defaulted.
	Degraded bool
}

// Set bundles the four extractor outputs in model order (L, K, E, A).
type Set struct {
	Learner    Signal
	Knowledge  Signal
	Engagement Signal
	Assessment Signal
}

// AnyDegraded reports whether any extractor defaulted too many inputs.
func (s Set) AnyDegraded() bool {
	return s.Learner.Degraded || s.Knowledge.Degraded ||
		s.Engagement.Degraded || s.Assessment.Degraded
}

// fieldOrDefault resolves an optional field, counting defaults.
func fieldOrDefault(v *float64, defaulted *int) float64 {
	if v == nil {
		*defaulted++
		return 0.5
	}
	return *v
}

// centered maps a [0,1] score onto [-1,1] around its midpoint.
func centered(v float64) float64 { return (v - 0.5) * 2 }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// bandWeight derates a band's upper bound by the fraction of defaulted
// inputs, so sparse data contributes less to the transition.
func bandWeight(lo, hi float64, defaulted, total int) float64 {
	if total <= 0 {
		return lo
	}
	ratio := float64(defaulted) / float64(total)
	return clamp(hi-(hi-lo)*ratio, lo, hi)
}
