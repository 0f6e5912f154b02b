// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/privacy"
)

// Both implementations must satisfy the same behavioural contract.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "adaptd.db"), DefaultSQLiteConfig())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func sampleSession(id string, at time.Time) *model.SessionRecord {
	return &model.SessionRecord{
		SessionID:    id,
		LearnerID:    "tok-" + id,
		Channel:      "websocket",
		CreatedAt:    at,
		LastEventAt:  at,
		CurrentEvent: model.EventPractice,
		Progress:     0.4,
		State:        model.SessionActive,
		EventsIn:     7,
	}
}

func sampleEnvelope() privacy.Envelope {
	return privacy.Envelope{
		Meta: privacy.Metadata{
			DataType:    "learner_model",
			AccessLevel: privacy.AccessRestricted,
		},
		Nonce:      []byte{1, 2, 3},
		Ciphertext: []byte{4, 5, 6, 7},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
		rec := sampleSession("s-1", at)

		require.NoError(t, s.UpsertSession(ctx, rec))

		got, err := s.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, rec.LearnerID, got.LearnerID)
		assert.Equal(t, model.EventPractice, got.CurrentEvent)
		assert.InDelta(t, 0.4, got.Progress, 1e-9)

		// Upsert replaces in place.
		rec.Progress = 0.9
		rec.CurrentEvent = model.EventApplication
		require.NoError(t, s.UpsertSession(ctx, rec))
		got, err = s.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, model.EventApplication, got.CurrentEvent)

		require.NoError(t, s.DeleteSession(ctx, "s-1"))
		_, err = s.GetSession(ctx, "s-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestScanSessions(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		at := time.Now().UTC()
		require.NoError(t, s.UpsertSession(ctx, sampleSession("s-a", at)))
		require.NoError(t, s.UpsertSession(ctx, sampleSession("s-b", at)))

		seen := map[string]bool{}
		require.NoError(t, s.ScanSessions(ctx, func(rec *model.SessionRecord) error {
			seen[rec.SessionID] = true
			return nil
		}))
		assert.Len(t, seen, 2)
		assert.True(t, seen["s-a"] && seen["s-b"])
	})
}

func TestModelBlockRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec := &ModelBlockRecord{
			LearnerToken: "tok-1",
			Block:        BlockKnowledge,
			Envelope:     sampleEnvelope(),
			UpdatedAt:    time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.PutModelBlock(ctx, rec))

		got, err := s.GetModelBlock(ctx, "tok-1", BlockKnowledge)
		require.NoError(t, err)
		assert.Equal(t, rec.Envelope.Ciphertext, got.Envelope.Ciphertext)
		assert.Equal(t, privacy.AccessRestricted, got.Envelope.Meta.AccessLevel)

		_, err = s.GetModelBlock(ctx, "tok-1", BlockLearner)
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := s.DeleteLearnerData(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = s.GetModelBlock(ctx, "tok-1", BlockKnowledge)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestObservationsNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		at := time.Now().UTC()
		for seq := uint64(1); seq <= 5; seq++ {
			require.NoError(t, s.AppendAssessment(ctx, &ObservationRecord{
				SessionID: "s-1", Seq: seq, Envelope: sampleEnvelope(), RecordedAt: at,
			}))
		}

		got, err := s.ListAssessments(ctx, "s-1", 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, uint64(5), got[0].Seq)
		assert.Equal(t, uint64(3), got[2].Seq)

		// Engagement history is a separate table.
		empty, err := s.ListEngagement(ctx, "s-1", 3)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestPurgeBefore(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		old := cutoff.Add(-time.Hour)
		fresh := cutoff.Add(time.Hour)

		require.NoError(t, s.UpsertSession(ctx, sampleSession("s-old", old)))
		require.NoError(t, s.UpsertSession(ctx, sampleSession("s-new", fresh)))
		require.NoError(t, s.PutModelBlock(ctx, &ModelBlockRecord{
			LearnerToken: "tok-old", Block: BlockLearner, Envelope: sampleEnvelope(), UpdatedAt: old,
		}))
		require.NoError(t, s.AppendEngagement(ctx, &ObservationRecord{
			SessionID: "s-old", Seq: 1, Envelope: sampleEnvelope(), RecordedAt: old,
		}))
		require.NoError(t, s.AppendMetric(ctx, &MetricRecord{
			SessionID: "s-old", Seq: 1, Event: "practice", RecordedAt: old,
		}))

		stats, err := s.PurgeBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Sessions)
		assert.Equal(t, 1, stats.ModelBlocks)
		assert.Equal(t, 1, stats.Observations)
		assert.Equal(t, 1, stats.Metrics)
		assert.Equal(t, 4, stats.Total())

		_, err = s.GetSession(ctx, "s-old")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetSession(ctx, "s-new")
		assert.NoError(t, err)
	})
}
