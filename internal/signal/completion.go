// SPDX-License-Identifier: MIT

package signal

import "github.com/vrlearn/adaptd/internal/model"

// Completion estimates how much of the current learning event the
// snapshot demonstrates as completed: the mean of the completion
// indicators it carries (prerequisite completion, assessed competency,
// assessment accuracy), each clamped to [0, 1]. ok is false when the
// snapshot carries none of them.
func Completion(snap *model.InteractionSnapshot) (score float64, ok bool) {
	var sum float64
	var n int
	if snap.Knowledge != nil && snap.Knowledge.PrereqCompletion != nil {
		sum += clamp(*snap.Knowledge.PrereqCompletion, 0, 1)
		n++
	}
	if snap.Assessment != nil {
		if snap.Assessment.Competency != nil {
			sum += clamp(*snap.Assessment.Competency, 0, 1)
			n++
		}
		if snap.Assessment.Accuracy != nil {
			sum += clamp(*snap.Assessment.Accuracy, 0, 1)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
