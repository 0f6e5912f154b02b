// SPDX-License-Identifier: MIT

package signal

import "github.com/vrlearn/adaptd/internal/model"

const (
	engagementWeightMin = 0.15
	engagementWeightMax = 0.30
)

// ExtractEngagement computes the engagement-model signal from the
// composite score, attention, intrinsic motivation, and persistence,
// each centered on 0.5.
func ExtractEngagement(in *model.EngagementMetrics) Signal {
	if in == nil {
		in = &model.EngagementMetrics{}
	}
	defaulted := 0
	engagement := fieldOrDefault(in.Engagement, &defaulted)
	attention := fieldOrDefault(in.Attention, &defaulted)
	intrinsic := fieldOrDefault(in.Intrinsic, &defaulted)
	persistence := fieldOrDefault(in.Persistence, &defaulted)

	value := 0.4*centered(engagement) +
		0.3*centered(attention) +
		0.2*centered(intrinsic) +
		0.1*centered(persistence)

	return Signal{
		Value:    clamp(value, -1, 1),
		Weight:   bandWeight(engagementWeightMin, engagementWeightMax, defaulted, 4),
		Degraded: defaulted*2 >= 4,
	}
}
