// SPDX-License-Identifier: MIT

// Package store persists adaptation state across five logical tables:
// learning sessions, learner model blocks, assessment results,
// engagement data, and performance metrics. Sensitive payloads arrive
// already envelope-encrypted; the store never sees plaintext learner
// model content.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/privacy"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Model block names under which learner state is persisted.
const (
	BlockLearner    = "learner"
	BlockKnowledge  = "knowledge"
	BlockEngagement = "engagement"
	BlockAssessment = "assessment"
)

// ModelBlockRecord is one encrypted learner-model block, keyed by the
// learner's anonymised token.
type ModelBlockRecord struct {
	LearnerToken string           `json:"learner_token"`
	Block        string           `json:"block"`
	Envelope     privacy.Envelope `json:"envelope"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ObservationRecord is one append-only assessment or engagement sample.
type ObservationRecord struct {
	SessionID  string           `json:"session_id"`
	Seq        uint64           `json:"seq"`
	Envelope   privacy.Envelope `json:"envelope"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// MetricRecord is one per-event performance sample. Metrics carry no
// learner content, so they are stored in the clear for querying.
type MetricRecord struct {
	SessionID  string    `json:"session_id"`
	Seq        uint64    `json:"seq"`
	Event      string    `json:"event"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	Stability  float64   `json:"stability"`
	LatencyMS  int64     `json:"latency_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PurgeStats counts rows removed by a retention sweep.
type PurgeStats struct {
	Sessions     int
	ModelBlocks  int
	Observations int
	Metrics      int
}

// Total returns the number of rows removed across all tables.
func (p PurgeStats) Total() int {
	return p.Sessions + p.ModelBlocks + p.Observations + p.Metrics
}

// Store is the persistence boundary of the adaptation core.
type Store interface {
	// Sessions.
	UpsertSession(ctx context.Context, rec *model.SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (*model.SessionRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ScanSessions(ctx context.Context, fn func(*model.SessionRecord) error) error

	// Learner model blocks, keyed by anonymised token.
	PutModelBlock(ctx context.Context, rec *ModelBlockRecord) error
	GetModelBlock(ctx context.Context, learnerToken, block string) (*ModelBlockRecord, error)
	DeleteLearnerData(ctx context.Context, learnerToken string) (int, error)

	// Append-only observation history.
	AppendAssessment(ctx context.Context, rec *ObservationRecord) error
	AppendEngagement(ctx context.Context, rec *ObservationRecord) error
	ListAssessments(ctx context.Context, sessionID string, limit int) ([]*ObservationRecord, error)
	ListEngagement(ctx context.Context, sessionID string, limit int) ([]*ObservationRecord, error)

	// Performance samples and retention.
	AppendMetric(ctx context.Context, rec *MetricRecord) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (PurgeStats, error)

	Close() error
}
