// SPDX-License-Identifier: MIT

package signal

import "github.com/vrlearn/adaptd/internal/model"

// Learner weight band and prior-knowledge base weights.
const (
	learnerWeightMin = 0.25
	learnerWeightMax = 0.40
)

// ExtractLearner computes the learner-model signal:
//
//	0.4·(readiness−0.5)·2 + 0.3·(preferences−0.5)·2 + 0.2·trend + 0.1·pace
//
// clamped to [-1, 1]. The weight starts from the coarse prior-knowledge
// base and is nudged by guidance preference and interaction style.
func ExtractLearner(in *model.LearnerState) Signal {
	if in == nil {
		in = &model.LearnerState{}
	}
	defaulted := 0
	readiness := fieldOrDefault(in.Readiness, &defaulted)
	preferences := fieldOrDefault(in.Preferences, &defaulted)
	trend := fieldOrDefault(in.EngagementTrend, &defaulted)
	pace := fieldOrDefault(in.Pace, &defaulted)

	value := 0.4*centered(readiness) +
		0.3*centered(preferences) +
		0.2*trend +
		0.1*pace

	weight := learnerBaseWeight(in.PriorKnowledge)
	switch in.GuidancePreference {
	case "high":
		weight += 0.05
	case "low":
		weight -= 0.05
	}
	switch in.InteractionStyle {
	case "structured":
		weight += 0.02
	case "independent":
		weight -= 0.02
	}

	return Signal{
		Value:    clamp(value, -1, 1),
		Weight:   clamp(weight, learnerWeightMin, learnerWeightMax),
		Degraded: defaulted*2 >= 4,
	}
}

func learnerBaseWeight(priorKnowledge string) float64 {
	switch priorKnowledge {
	case "novice":
		return 0.40
	case "beginner":
		return 0.35
	case "intermediate":
		return 0.30
	case "advanced", "expert":
		return 0.25
	default:
		return 0.30
	}
}
