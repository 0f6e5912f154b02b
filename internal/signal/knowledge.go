// SPDX-License-Identifier: MIT

package signal

import "github.com/vrlearn/adaptd/internal/model"

const (
	knowledgeWeightMin = 0.20
	knowledgeWeightMax = 0.35
)

// ExtractKnowledge computes the knowledge-model signal:
//
//	0.5·(prereq−0.5)·2 + 0.3·((1−complexity)−0.5)·2 − 0.2·min(1, 0.1·gaps)
func ExtractKnowledge(in *model.KnowledgeState) Signal {
	if in == nil {
		in = &model.KnowledgeState{}
	}
	defaulted := 0
	prereq := fieldOrDefault(in.PrereqCompletion, &defaulted)
	complexity := fieldOrDefault(in.PathComplexity, &defaulted)

	gaps := 0.0
	if in.CompetencyGaps == nil {
		defaulted++
	} else {
		gaps = float64(*in.CompetencyGaps)
	}

	gapPenalty := 0.1 * gaps
	if gapPenalty > 1 {
		gapPenalty = 1
	}

	value := 0.5*centered(prereq) +
		0.3*centered(1-complexity) -
		0.2*gapPenalty

	return Signal{
		Value:    clamp(value, -1, 1),
		Weight:   bandWeight(knowledgeWeightMin, knowledgeWeightMax, defaulted, 3),
		Degraded: defaulted*2 >= 3,
	}
}
