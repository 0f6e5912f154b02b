// SPDX-License-Identifier: MIT

package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vrlearn/adaptd/internal/model"
)

func f(v float64) *float64 { return &v }

func TestExtractLearnerFormula(t *testing.T) {
	in := &model.LearnerState{
		Readiness:       f(0.85),
		Preferences:     f(0.7),
		EngagementTrend: f(0.4),
		Pace:            f(0.2),
		PriorKnowledge:  "intermediate",
	}
	sig := ExtractLearner(in)

	// 0.4*0.7 + 0.3*0.4 + 0.2*0.4 + 0.1*0.2 = 0.50
	assert.InDelta(t, 0.50, sig.Value, 1e-9)
	assert.InDelta(t, 0.30, sig.Weight, 1e-9)
	assert.False(t, sig.Degraded)
}

func TestExtractLearnerWeightAdjustments(t *testing.T) {
	cases := []struct {
		name     string
		in       model.LearnerState
		expected float64
	}{
		{"novice clamped at band top", model.LearnerState{PriorKnowledge: "novice", GuidancePreference: "high"}, 0.40},
		{"expert low guidance clamped at band floor", model.LearnerState{PriorKnowledge: "expert", GuidancePreference: "low"}, 0.25},
		{"beginner structured", model.LearnerState{PriorKnowledge: "beginner", InteractionStyle: "structured"}, 0.37},
		{"unknown prior defaults to intermediate base", model.LearnerState{}, 0.30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := ExtractLearner(&tc.in)
			assert.InDelta(t, tc.expected, sig.Weight, 1e-9)
		})
	}
}

func TestExtractLearnerDefaultsAndDegraded(t *testing.T) {
	sig := ExtractLearner(&model.LearnerState{})

	// All four formula inputs defaulted to 0.5:
	// 0.4*0 + 0.3*0 + 0.2*0.5 + 0.1*0.5 = 0.15
	assert.InDelta(t, 0.15, sig.Value, 1e-9)
	assert.True(t, sig.Degraded)

	// Two of four defaulted is right at the degraded threshold.
	half := ExtractLearner(&model.LearnerState{Readiness: f(0.9), Preferences: f(0.9)})
	assert.True(t, half.Degraded)

	one := ExtractLearner(&model.LearnerState{Readiness: f(0.9), Preferences: f(0.9), Pace: f(0.5)})
	assert.False(t, one.Degraded)
}

func TestExtractKnowledgeFormula(t *testing.T) {
	gaps := 3
	in := &model.KnowledgeState{
		PrereqCompletion: f(0.8),
		PathComplexity:   f(0.4),
		CompetencyGaps:   &gaps,
	}
	sig := ExtractKnowledge(in)

	// 0.5*0.6 + 0.3*0.2 - 0.2*0.3 = 0.30
	assert.InDelta(t, 0.30, sig.Value, 1e-9)
	assert.InDelta(t, 0.35, sig.Weight, 1e-9)
	assert.False(t, sig.Degraded)
}

func TestExtractKnowledgeGapPenaltyCaps(t *testing.T) {
	gaps := 25
	sig := ExtractKnowledge(&model.KnowledgeState{
		PrereqCompletion: f(0.5),
		PathComplexity:   f(0.5),
		CompetencyGaps:   &gaps,
	})
	// Penalty saturates at min(1, 0.1*25)=1 -> value = -0.2.
	assert.InDelta(t, -0.2, sig.Value, 1e-9)
}

func TestExtractEngagementFormula(t *testing.T) {
	in := &model.EngagementMetrics{
		Engagement:  f(0.9),
		Attention:   f(0.9),
		Intrinsic:   f(0.5),
		Persistence: f(0.5),
	}
	sig := ExtractEngagement(in)

	// 0.4*0.8 + 0.3*0.8 + 0 + 0 = 0.56
	assert.InDelta(t, 0.56, sig.Value, 1e-9)
	assert.InDelta(t, 0.30, sig.Weight, 1e-9)
}

func TestExtractAssessmentFormula(t *testing.T) {
	in := &model.AssessmentData{
		Competency:  f(0.9),
		SkillScores: []float64{0.8, 1.0},
		Accuracy:    f(0.9),
		Consistency: f(0.7),
	}
	sig := ExtractAssessment(in)

	// 0.4*0.8 + 0.3*0.8 + 0.2*0.8 + 0.1*0.4 = 0.76
	assert.InDelta(t, 0.76, sig.Value, 1e-9)
	assert.False(t, sig.Degraded)
}

func TestExtractorsAreTotal(t *testing.T) {
	set := ExtractAll(&model.InteractionSnapshot{
		Learner:    nil,
		Knowledge:  nil,
		Engagement: nil,
		Assessment: nil,
	})

	for _, sig := range []Signal{set.Learner, set.Knowledge, set.Engagement, set.Assessment} {
		assert.GreaterOrEqual(t, sig.Value, -1.0)
		assert.LessOrEqual(t, sig.Value, 1.0)
		assert.Greater(t, sig.Weight, 0.0)
		assert.True(t, sig.Degraded)
	}
	assert.True(t, set.AnyDegraded())
}

func TestCompletionMeansPresentIndicators(t *testing.T) {
	snap := &model.InteractionSnapshot{
		Knowledge:  &model.KnowledgeState{PrereqCompletion: f(0.95)},
		Assessment: &model.AssessmentData{Competency: f(0.9), Accuracy: f(0.95)},
	}
	score, ok := Completion(snap)
	assert.True(t, ok)
	assert.InDelta(t, (0.95+0.9+0.95)/3, score, 1e-9)

	// A single present indicator stands alone.
	score, ok = Completion(&model.InteractionSnapshot{
		Assessment: &model.AssessmentData{Competency: f(0.4)},
	})
	assert.True(t, ok)
	assert.InDelta(t, 0.4, score, 1e-9)
}

func TestCompletionAbsentIndicators(t *testing.T) {
	_, ok := Completion(&model.InteractionSnapshot{})
	assert.False(t, ok)

	_, ok = Completion(&model.InteractionSnapshot{
		Knowledge:  &model.KnowledgeState{PathComplexity: f(0.5)},
		Assessment: &model.AssessmentData{SkillScores: []float64{0.9}},
	})
	assert.False(t, ok)
}

func TestCompletionClampsOutOfRangeInputs(t *testing.T) {
	score, ok := Completion(&model.InteractionSnapshot{
		Knowledge:  &model.KnowledgeState{PrereqCompletion: f(1.8)},
		Assessment: &model.AssessmentData{Accuracy: f(-0.3)},
	})
	assert.True(t, ok)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestWeightBandsRespected(t *testing.T) {
	// Fully defaulted inputs pin weights at the band floor.
	assert.InDelta(t, knowledgeWeightMin, ExtractKnowledge(nil).Weight, 1e-9)
	assert.InDelta(t, engagementWeightMin, ExtractEngagement(nil).Weight, 1e-9)
	assert.InDelta(t, assessmentWeightMin, ExtractAssessment(nil).Weight, 1e-9)

	// Fully populated inputs sit at the band ceiling.
	gaps := 0
	assert.InDelta(t, knowledgeWeightMax, ExtractKnowledge(&model.KnowledgeState{
		PrereqCompletion: f(1), PathComplexity: f(0), CompetencyGaps: &gaps,
	}).Weight, 1e-9)
}
