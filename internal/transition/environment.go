// SPDX-License-Identifier: MIT

package transition

import (
	"hash/fnv"
	"strconv"

	"github.com/vrlearn/adaptd/internal/model"
)

// Environmental term bounds and fatigue shape.
const (
	envTermMin = -0.5
	envTermMax = 0.5

	fatigueBoostMinutes = 25.0
	fatigueBoost        = 0.05
	fatiguePerMinute    = 0.02

	jitterAmplitude = 0.05
)

// environmentTerm computes ε from the optional session context. The term
// combines fatigue, time-of-day, and environment-tag contributions,
// scales by the learner's environmental sensitivity, and adds a small
// session-seeded jitter so the result stays reproducible per session.
func environmentTerm(sessionID string, env *model.EnvContext) float64 {
	if env == nil {
		return 0
	}

	eps := fatigueTerm(env.SessionMinutes) +
		timeOfDayTerm(env.WallHour) +
		environmentTagTerm(env.Environment)

	sensitivity := clamp(env.Sensitivity, 0, 1)
	eps *= sensitivity
	eps += seededJitter(sessionID, env) * sensitivity

	return clamp(eps, envTermMin, envTermMax)
}

func fatigueTerm(minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	if minutes < fatigueBoostMinutes {
		return fatigueBoost
	}
	return clamp(-fatiguePerMinute*(minutes-fatigueBoostMinutes), envTermMin, 0)
}

func timeOfDayTerm(hour int) float64 {
	switch {
	case hour >= 9 && hour <= 11, hour >= 14 && hour <= 16:
		return 0.2
	case hour >= 0 && hour <= 5, hour >= 22 && hour <= 23:
		return -0.2
	default:
		return 0
	}
}

func environmentTagTerm(tag string) float64 {
	switch tag {
	case "optimal":
		return 0.3
	case "standard", "":
		return 0
	case "noisy":
		return -0.2
	case "distracted":
		return -0.3
	case "mobile":
		return -0.1
	default:
		return 0
	}
}

// seededJitter derives a deterministic pseudo-random perturbation in
// [-jitterAmplitude, jitterAmplitude] from the session ID and the
// snapshot context. Identical inputs always yield identical jitter, so
// replays are byte-identical; no shared global source is ever drawn.
func seededJitter(sessionID string, env *model.EnvContext) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatFloat(env.SessionMinutes, 'g', -1, 64)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(env.WallHour)))

	unit := float64(h.Sum64()%10000)/10000.0*2 - 1 // [-1, 1)
	return unit * jitterAmplitude
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
