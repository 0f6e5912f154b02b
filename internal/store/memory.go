// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vrlearn/adaptd/internal/model"
)

// MemoryStore is the in-process Store used by tests and by deployments
// that opt out of persistence.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*model.SessionRecord
	blocks      map[string]map[string]*ModelBlockRecord
	assessments map[string][]*ObservationRecord
	engagement  map[string][]*ObservationRecord
	metrics     []*MetricRecord
}

// NewMemory returns an empty in-process store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*model.SessionRecord),
		blocks:      make(map[string]map[string]*ModelBlockRecord),
		assessments: make(map[string][]*ObservationRecord),
		engagement:  make(map[string][]*ObservationRecord),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) UpsertSession(_ context.Context, rec *model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.sessions[rec.SessionID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*model.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) ScanSessions(ctx context.Context, fn func(*model.SessionRecord) error) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	recs := make([]*model.SessionRecord, 0, len(ids))
	for _, id := range ids {
		cp := *m.sessions[id]
		recs = append(recs, &cp)
	}
	m.mu.RUnlock()

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) PutModelBlock(_ context.Context, rec *ModelBlockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byBlock, ok := m.blocks[rec.LearnerToken]
	if !ok {
		byBlock = make(map[string]*ModelBlockRecord)
		m.blocks[rec.LearnerToken] = byBlock
	}
	cp := *rec
	byBlock[rec.Block] = &cp
	return nil
}

func (m *MemoryStore) GetModelBlock(_ context.Context, learnerToken, block string) (*ModelBlockRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.blocks[learnerToken][block]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) DeleteLearnerData(_ context.Context, learnerToken string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.blocks[learnerToken])
	delete(m.blocks, learnerToken)
	return n, nil
}

func (m *MemoryStore) AppendAssessment(_ context.Context, rec *ObservationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.assessments[rec.SessionID] = append(m.assessments[rec.SessionID], &cp)
	return nil
}

func (m *MemoryStore) AppendEngagement(_ context.Context, rec *ObservationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.engagement[rec.SessionID] = append(m.engagement[rec.SessionID], &cp)
	return nil
}

func (m *MemoryStore) ListAssessments(_ context.Context, sessionID string, limit int) ([]*ObservationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.assessments[sessionID], limit), nil
}

func (m *MemoryStore) ListEngagement(_ context.Context, sessionID string, limit int) ([]*ObservationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.engagement[sessionID], limit), nil
}

// lastN returns up to limit records, newest first, matching the SQLite
// ORDER BY seq DESC semantics.
func lastN(recs []*ObservationRecord, limit int) []*ObservationRecord {
	if limit <= 0 {
		limit = 100
	}
	out := make([]*ObservationRecord, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *recs[i]
		out = append(out, &cp)
	}
	return out
}

func (m *MemoryStore) AppendMetric(_ context.Context, rec *MetricRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.metrics = append(m.metrics, &cp)
	return nil
}

func (m *MemoryStore) PurgeBefore(_ context.Context, cutoff time.Time) (PurgeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats PurgeStats

	for id, rec := range m.sessions {
		if rec.LastEventAt.Before(cutoff) {
			delete(m.sessions, id)
			stats.Sessions++
		}
	}
	for token, byBlock := range m.blocks {
		for block, rec := range byBlock {
			if rec.UpdatedAt.Before(cutoff) {
				delete(byBlock, block)
				stats.ModelBlocks++
			}
		}
		if len(byBlock) == 0 {
			delete(m.blocks, token)
		}
	}
	purge := func(bysess map[string][]*ObservationRecord) {
		for id, recs := range bysess {
			kept := recs[:0]
			for _, rec := range recs {
				if rec.RecordedAt.Before(cutoff) {
					stats.Observations++
					continue
				}
				kept = append(kept, rec)
			}
			if len(kept) == 0 {
				delete(bysess, id)
			} else {
				bysess[id] = kept
			}
		}
	}
	purge(m.assessments)
	purge(m.engagement)

	keptMetrics := m.metrics[:0]
	for _, rec := range m.metrics {
		if rec.RecordedAt.Before(cutoff) {
			stats.Metrics++
			continue
		}
		keptMetrics = append(keptMetrics, rec)
	}
	m.metrics = keptMetrics
	return stats, nil
}

var _ Store = (*MemoryStore)(nil)
