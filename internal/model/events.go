// SPDX-License-Identifier: MIT

// Package model holds the shared domain types of the adaptation core:
// learning events, session records, transition state, interaction
// snapshots, and adaptation commands.
package model

// LearningEvent is one of the five ordered pedagogical stages.
type LearningEvent string

const (
	EventOnboarding   LearningEvent = "onboarding"
	EventIntroduction LearningEvent = "introduction"
	EventPractice     LearningEvent = "practice"
	EventApplication  LearningEvent = "application"
	EventMastery      LearningEvent = "mastery"
)

var eventOrder = []LearningEvent{
	EventOnboarding,
	EventIntroduction,
	EventPractice,
	EventApplication,
	EventMastery,
}

// Index returns the ordinal position of the event, or -1 for unknown values.
func (e LearningEvent) Index() int {
	for i, ev := range eventOrder {
		if ev == e {
			return i
		}
	}
	return -1
}

// Valid reports whether e names one of the five learning events.
func (e LearningEvent) Valid() bool { return e.Index() >= 0 }

// Next returns the following learning event. Mastery stays at mastery.
func (e LearningEvent) Next() LearningEvent {
	i := e.Index()
	if i < 0 || i == len(eventOrder)-1 {
		return e
	}
	return eventOrder[i+1]
}

// Prev returns the preceding learning event, clamping at onboarding.
func (e LearningEvent) Prev() LearningEvent {
	i := e.Index()
	if i <= 0 {
		return e
	}
	return eventOrder[i-1]
}

// Adjacent reports whether moving from e to other crosses at most one stage.
func (e LearningEvent) Adjacent(other LearningEvent) bool {
	a, b := e.Index(), other.Index()
	if a < 0 || b < 0 {
		return false
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= 1
}

// LearningEvents returns the five stages in pedagogical order.
func LearningEvents() []LearningEvent {
	out := make([]LearningEvent, len(eventOrder))
	copy(out, eventOrder)
	return out
}
