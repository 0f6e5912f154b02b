// SPDX-License-Identifier: MIT

// Package session owns the session table: it maps connect/disconnect
// frames onto pipelines, enforces one active session per (learner,
// channel), and sweeps idle sessions in the background.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/clock"
	"github.com/vrlearn/adaptd/internal/learner"
	"github.com/vrlearn/adaptd/internal/log"
	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/pipeline"
	"github.com/vrlearn/adaptd/internal/resilience"
	"github.com/vrlearn/adaptd/internal/store"
	"github.com/vrlearn/adaptd/internal/transition"
)

const (
	defaultMaxSessions   = 64
	defaultIdleTimeout   = 60 * time.Minute
	defaultSweepInterval = 30 * time.Second
	// Closed-session summaries stay available to late disconnects for
	// this long before the sweeper evicts them.
	summaryRetention = time.Hour
)

// SummaryEmitter is implemented by transports that want the final
// session summary pushed when a session closes without an explicit
// disconnect (idle timeout, shutdown, fault drains).
type SummaryEmitter interface {
	EmitSummary(sum model.SessionSummary, reason string) error
}

// Config bounds the manager.
type Config struct {
	MaxSessions   int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	QueueCapacity int
	DrainGrace    time.Duration
}

// Deps are the shared collaborators handed to every pipeline.
type Deps struct {
	Registry *learner.Registry
	Store    store.Store
	Calc     *transition.Calculator
	Clock    *clock.Service
	Audit    *audit.Logger
}

type pairKey struct {
	learnerID string
	channel   string
}

type entry struct {
	rec       *model.SessionRecord
	pipe      *pipeline.Pipeline
	emitter   pipeline.Emitter
	learnerID string
	channel   string
	cancel    context.CancelFunc

	// lastEvent is the manager-side activity clock for the idle
	// sweeper; the record's own timestamps belong to the consumer.
	lastEvent atomic.Int64
}

type closedSummary struct {
	sum     model.SessionSummary
	evictAt time.Time
}

// Manager is the session dispatcher.
type Manager struct {
	cfg  Config
	deps Deps
	lg   zerolog.Logger

	mu        sync.Mutex
	byID      map[string]*entry
	byPair    map[pairKey]*entry
	summaries map[string]closedSummary

	wg sync.WaitGroup
}

// NewManager builds a manager; zero config fields take defaults.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return &Manager{
		cfg:       cfg,
		deps:      deps,
		lg:        log.WithComponent("session"),
		byID:      make(map[string]*entry),
		byPair:    make(map[pairKey]*entry),
		summaries: make(map[string]closedSummary),
	}
}

// ActiveSessions returns the number of live sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Connect opens (or re-joins) the session for a (learner, channel)
// pair. Repeating a connect for an already-active pair returns the
// existing session ID; it never creates a second session for the pair.
func (m *Manager) Connect(ctx context.Context, learnerID, channel string, cfg model.SessionConfig, emitter pipeline.Emitter) (string, error) {
	if learnerID == "" {
		return "", model.WireError(model.CodeMissingLearnerID, "learner_id is required", model.ErrValidation)
	}
	if cfg.Sensitivity == "" {
		cfg.Sensitivity = model.SensitivityMedium
	}
	if !cfg.Sensitivity.Valid() {
		return "", model.WireError(model.CodeInvalidAction, "unknown adaptation_sensitivity", model.ErrValidation)
	}
	if cfg.TargetEvent == "" {
		cfg.TargetEvent = model.EventOnboarding
	}
	if !cfg.TargetEvent.Valid() {
		return "", model.WireError(model.CodeInvalidAction, "unknown target_learning_event", model.ErrValidation)
	}
	if cfg.Difficulty < 0 || cfg.Difficulty > 1 {
		return "", model.WireError(model.CodeInvalidAction, "difficulty out of range", model.ErrValidation)
	}

	key := pairKey{learnerID: learnerID, channel: channel}
	m.mu.Lock()
	if e, ok := m.byPair[key]; ok {
		m.mu.Unlock()
		return e.rec.SessionID, nil
	}
	if len(m.byID) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return "", model.WireError(model.CodeBusy, "server at session capacity", model.ErrBusy)
	}
	m.mu.Unlock()

	// The learner handle serialises sessions for one learner; waiting
	// here covers a previous session still draining.
	handle, err := m.deps.Registry.Acquire(ctx, learnerID)
	if err != nil {
		return "", err
	}

	now := m.deps.Clock.Now()
	rec := &model.SessionRecord{
		SessionID:    uuid.NewString(),
		LearnerID:    handle.Token(),
		Channel:      channel,
		CreatedAt:    now,
		Config:       cfg,
		CurrentEvent: cfg.TargetEvent,
		State:        model.SessionConnecting,
	}

	pipe, err := pipeline.New(pipeline.Deps{
		Record:        rec,
		Handle:        handle,
		Calc:          m.deps.Calc,
		Store:         m.deps.Store,
		Clock:         m.deps.Clock,
		Audit:         m.deps.Audit,
		Emitter:       emitter,
		Breaker:       resilience.NewBreaker("session_persist", 3, 30*time.Second),
		Retry:         resilience.DefaultRetryPolicy(),
		QueueCapacity: m.cfg.QueueCapacity,
		DrainGrace:    m.cfg.DrainGrace,
	})
	if err != nil {
		handle.Release()
		return "", model.Internalf("build pipeline for %s", rec.SessionID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		rec:       rec,
		pipe:      pipe,
		emitter:   emitter,
		learnerID: learnerID,
		channel:   channel,
		cancel:    cancel,
	}
	e.lastEvent.Store(now.UnixNano())

	m.mu.Lock()
	if prev, ok := m.byPair[key]; ok {
		// Lost a connect race for the same pair; keep the winner.
		m.mu.Unlock()
		cancel()
		handle.Release()
		return prev.rec.SessionID, nil
	}
	m.byID[rec.SessionID] = e
	m.byPair[key] = e
	m.mu.Unlock()

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		_ = pipe.Run(runCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.finalize(e)
	}()

	m.lg.Info().
		Str("session_id", rec.SessionID).
		Str("learner", rec.LearnerID).
		Str("channel", channel).
		Msg("session connected")
	return rec.SessionID, nil
}

// Submit routes one inbound snapshot to the owning pipeline.
func (m *Manager) Submit(sessionID string, snap *model.InteractionSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	e, ok := m.byID[sessionID]
	m.mu.Unlock()
	if !ok {
		return model.WireError(model.CodeNoSession, "unknown or closed session", model.ErrNotFound)
	}
	e.lastEvent.Store(m.deps.Clock.Now().UnixNano())
	return e.pipe.Submit(snap)
}

// Describe answers an adaptation_request with the persisted view of a
// session. It works for live and recently closed sessions alike.
func (m *Manager) Describe(ctx context.Context, sessionID, requestType string) (map[string]any, error) {
	rec, err := m.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.WireError(model.CodeNoSession, "unknown session", model.ErrNotFound)
		}
		return nil, err
	}
	sum := rec.Summary(m.deps.Clock.Now())
	return map[string]any{
		"request_type":    requestType,
		"session_id":      rec.SessionID,
		"state":           string(rec.State),
		"current_event":   string(rec.CurrentEvent),
		"progress":        rec.Progress,
		"total_events":    sum.TotalEvents,
		"adaptations_out": sum.AdaptationsOut,
		"help_requests":   sum.HelpRequests,
	}, nil
}

// Disconnect drains a session and returns its summary. Disconnecting
// an already-closed session is a no-op returning the last summary.
func (m *Manager) Disconnect(ctx context.Context, sessionID string) (model.SessionSummary, error) {
	m.mu.Lock()
	e, ok := m.byID[sessionID]
	if !ok {
		if s, closed := m.summaries[sessionID]; closed {
			m.mu.Unlock()
			return s.sum, nil
		}
		m.mu.Unlock()
		return model.SessionSummary{}, model.WireError(model.CodeNoSession, "unknown session", model.ErrNotFound)
	}
	m.mu.Unlock()

	e.pipe.Drain(pipeline.ReasonClientDisconnect)
	select {
	case <-e.pipe.Done():
	case <-ctx.Done():
		return model.SessionSummary{}, ctx.Err()
	}
	// The consumer goroutine is done; the record is safe to read.
	return e.rec.Summary(m.deps.Clock.Now()), nil
}

// finalize waits for a pipeline to stop, detaches the session, records
// the summary, and pushes it to transports that want a close notice.
func (m *Manager) finalize(e *entry) {
	<-e.pipe.Done()
	now := m.deps.Clock.Now()
	sum := e.rec.Summary(now)
	reason := e.pipe.CloseReason()

	key := pairKey{learnerID: e.learnerID, channel: e.channel}
	m.mu.Lock()
	if m.byID[e.rec.SessionID] == e {
		delete(m.byID, e.rec.SessionID)
	}
	if m.byPair[key] == e {
		delete(m.byPair, key)
	}
	m.summaries[e.rec.SessionID] = closedSummary{sum: sum, evictAt: now.Add(summaryRetention)}
	m.mu.Unlock()
	e.cancel()

	if reason != pipeline.ReasonClientDisconnect {
		if se, ok := e.emitter.(SummaryEmitter); ok {
			if err := se.EmitSummary(sum, reason); err != nil {
				m.lg.Debug().Err(err).Str("session_id", e.rec.SessionID).Msg("close summary not delivered")
			}
		}
	}
	m.lg.Info().
		Str("session_id", e.rec.SessionID).
		Str("reason", reason).
		Int64("events_in", sum.TotalEvents).
		Msg("session closed")
}

// RunSweeper drains idle sessions and evicts expired summaries until
// ctx ends.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	m.lg.Info().Dur("interval", m.cfg.SweepInterval).Msg("idle sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepOnce(m.deps.Clock.Now())
		}
	}
}

// SweepOnce performs exactly one sweep pass. Deterministic for tests.
func (m *Manager) SweepOnce(now time.Time) {
	m.mu.Lock()
	var idle []*entry
	for _, e := range m.byID {
		if now.Sub(time.Unix(0, e.lastEvent.Load())) > m.cfg.IdleTimeout {
			idle = append(idle, e)
		}
	}
	for id, s := range m.summaries {
		if now.After(s.evictAt) {
			delete(m.summaries, id)
		}
	}
	m.mu.Unlock()

	for _, e := range idle {
		m.lg.Info().Str("session_id", e.rec.SessionID).Msg("session idle, draining")
		e.pipe.Drain(pipeline.ReasonIdleTimeout)
	}
}

// Shutdown drains every session with the server_shutdown reason and
// waits for the pipelines to stop, cancelling stragglers when ctx ends.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.byID))
	for _, e := range m.byID {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.pipe.Drain(pipeline.ReasonServerShutdown)
	}
	for _, e := range entries {
		select {
		case <-e.pipe.Done():
		case <-ctx.Done():
			e.cancel()
		}
	}
	m.wg.Wait()
}
