// SPDX-License-Identifier: MIT

package signal

import "github.com/vrlearn/adaptd/internal/model"

const (
	assessmentWeightMin = 0.20
	assessmentWeightMax = 0.35
)

// ExtractAssessment computes the assessment-model signal from the
// competency level, mean demonstrated skill score, overall accuracy,
// and consistency, each centered on 0.5.
func ExtractAssessment(in *model.AssessmentData) Signal {
	if in == nil {
		in = &model.AssessmentData{}
	}
	defaulted := 0
	competency := fieldOrDefault(in.Competency, &defaulted)
	accuracy := fieldOrDefault(in.Accuracy, &defaulted)
	consistency := fieldOrDefault(in.Consistency, &defaulted)

	skill := 0.5
	if len(in.SkillScores) == 0 {
		defaulted++
	} else {
		sum := 0.0
		for _, s := range in.SkillScores {
			sum += s
		}
		skill = sum / float64(len(in.SkillScores))
	}

	value := 0.4*centered(competency) +
		0.3*centered(skill) +
		0.2*centered(accuracy) +
		0.1*centered(consistency)

	return Signal{
		Value:    clamp(value, -1, 1),
		Weight:   bandWeight(assessmentWeightMin, assessmentWeightMax, defaulted, 4),
		Degraded: defaulted*2 >= 4,
	}
}

// ExtractAll runs the four extractors over one snapshot.
func ExtractAll(snap *model.InteractionSnapshot) Set {
	return Set{
		Learner:    ExtractLearner(snap.Learner),
		Knowledge:  ExtractKnowledge(snap.Knowledge),
		Engagement: ExtractEngagement(snap.Engagement),
		Assessment: ExtractAssessment(snap.Assessment),
	}
}
