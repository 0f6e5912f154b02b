// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/clock"
	"github.com/vrlearn/adaptd/internal/config"
	"github.com/vrlearn/adaptd/internal/learner"
	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/pipeline"
	"github.com/vrlearn/adaptd/internal/privacy"
	"github.com/vrlearn/adaptd/internal/store"
	"github.com/vrlearn/adaptd/internal/transition"
)

type recordingEmitter struct {
	mu        sync.Mutex
	cmds      []model.AdaptationCommand
	summaries []model.SessionSummary
	reasons   []string
}

func (e *recordingEmitter) EmitCommand(cmd model.AdaptationCommand) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, cmd)
	return nil
}

func (e *recordingEmitter) EmitError(string, string) error { return nil }

func (e *recordingEmitter) EmitSummary(sum model.SessionSummary, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summaries = append(e.summaries, sum)
	e.reasons = append(e.reasons, reason)
	return nil
}

func (e *recordingEmitter) commandCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cmds)
}

func (e *recordingEmitter) closeReasons() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.reasons))
	copy(out, e.reasons)
	return out
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	secret := privacy.EphemeralSecret()
	cipher, err := privacy.NewCipher(secret)
	require.NoError(t, err)
	reg := learner.NewRegistry(learner.Config{
		Hasher: privacy.NewHasher(secret),
		Cipher: cipher,
		Store:  store.NewMemory(),
	})
	m := NewManager(cfg, Deps{
		Registry: reg,
		Store:    store.NewMemory(),
		Calc:     transition.NewCalculator(config.Default().Bands),
		Clock: clock.NewService(clock.Real{}, map[string]time.Duration{
			clock.OpCalculator: 10 * time.Millisecond,
			clock.OpEndToEnd:   25 * time.Millisecond,
			clock.OpPersist:    time.Second,
		}),
		Audit: audit.NewLogger(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func f(v float64) *float64 { return &v }

func snapshotFor(sessionID string) *model.InteractionSnapshot {
	return &model.InteractionSnapshot{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Learner:   &model.LearnerState{Readiness: f(0.6), Preferences: f(0.5)},
		Knowledge: &model.KnowledgeState{PrereqCompletion: f(0.6)},
		Engagement: &model.EngagementMetrics{
			Engagement: f(0.6), Attention: f(0.6), Intrinsic: f(0.6), Persistence: f(0.6),
		},
		Assessment: &model.AssessmentData{Competency: f(0.6), Accuracy: f(0.6)},
	}
}

func TestConnectIsIdempotentPerPair(t *testing.T) {
	m := newTestManager(t, Config{})
	em := &recordingEmitter{}

	id1, err := m.Connect(context.Background(), "learner-1", "websocket", model.SessionConfig{}, em)
	require.NoError(t, err)
	id2, err := m.Connect(context.Background(), "learner-1", "websocket", model.SessionConfig{}, em)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, m.ActiveSessions())
}

func TestConnectValidation(t *testing.T) {
	m := newTestManager(t, Config{})
	em := &recordingEmitter{}
	ctx := context.Background()

	_, err := m.Connect(ctx, "", "websocket", model.SessionConfig{}, em)
	assert.Equal(t, model.CodeMissingLearnerID, model.CodeOf(err))

	_, err = m.Connect(ctx, "l", "websocket", model.SessionConfig{Sensitivity: "extreme"}, em)
	assert.Equal(t, model.CodeInvalidAction, model.CodeOf(err))

	_, err = m.Connect(ctx, "l", "websocket", model.SessionConfig{TargetEvent: "cramming"}, em)
	assert.Equal(t, model.CodeInvalidAction, model.CodeOf(err))

	_, err = m.Connect(ctx, "l", "websocket", model.SessionConfig{Difficulty: 1.5}, em)
	assert.Equal(t, model.CodeInvalidAction, model.CodeOf(err))
}

func TestConnectEnforcesSessionCap(t *testing.T) {
	m := newTestManager(t, Config{MaxSessions: 1})
	ctx := context.Background()

	_, err := m.Connect(ctx, "learner-1", "websocket", model.SessionConfig{}, &recordingEmitter{})
	require.NoError(t, err)

	_, err = m.Connect(ctx, "learner-2", "websocket", model.SessionConfig{}, &recordingEmitter{})
	assert.ErrorIs(t, err, model.ErrBusy)
}

func TestSubmitRoutesToOwningPipeline(t *testing.T) {
	m := newTestManager(t, Config{})
	em := &recordingEmitter{}
	ctx := context.Background()

	id, err := m.Connect(ctx, "learner-1", "websocket", model.SessionConfig{TargetEvent: model.EventPractice}, em)
	require.NoError(t, err)

	require.NoError(t, m.Submit(id, snapshotFor(id)))
	require.Eventually(t, func() bool { return em.commandCount() >= 1 }, 5*time.Second, 5*time.Millisecond)

	err = m.Submit("no-such-session", snapshotFor("no-such-session"))
	assert.Equal(t, model.CodeNoSession, model.CodeOf(err))

	// A snapshot missing a model block never reaches the queue.
	bad := snapshotFor(id)
	bad.Assessment = nil
	err = m.Submit(id, bad)
	assert.Equal(t, model.CodeMissingBlock, model.CodeOf(err))
}

func TestDisconnectReturnsSummaryAndIsIdempotent(t *testing.T) {
	m := newTestManager(t, Config{})
	em := &recordingEmitter{}
	ctx := context.Background()

	id, err := m.Connect(ctx, "learner-1", "websocket", model.SessionConfig{TargetEvent: model.EventPractice}, em)
	require.NoError(t, err)
	require.NoError(t, m.Submit(id, snapshotFor(id)))
	require.Eventually(t, func() bool { return em.commandCount() >= 1 }, 5*time.Second, 5*time.Millisecond)

	sum, err := m.Disconnect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sum.SessionID)
	assert.Equal(t, int64(1), sum.TotalEvents)
	assert.GreaterOrEqual(t, sum.AdaptationsOut, int64(1))

	// A second disconnect is a no-op returning the recorded summary.
	require.Eventually(t, func() bool { return m.ActiveSessions() == 0 }, 5*time.Second, 5*time.Millisecond)
	again, err := m.Disconnect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sum.SessionID, again.SessionID)
	assert.Equal(t, sum.TotalEvents, again.TotalEvents)

	_, err = m.Disconnect(ctx, "never-existed")
	assert.Equal(t, model.CodeNoSession, model.CodeOf(err))
}

func TestReconnectAfterDisconnectCreatesFreshSession(t *testing.T) {
	m := newTestManager(t, Config{})
	em := &recordingEmitter{}
	ctx := context.Background()

	id1, err := m.Connect(ctx, "learner-1", "websocket", model.SessionConfig{}, em)
	require.NoError(t, err)
	_, err = m.Disconnect(ctx, id1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.ActiveSessions() == 0 }, 5*time.Second, 5*time.Millisecond)

	id2, err := m.Connect(ctx, "learner-1", "websocket", model.SessionConfig{}, em)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestSweepDrainsIdleSessions(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: 50 * time.Millisecond})
	em := &recordingEmitter{}
	ctx := context.Background()

	id, err := m.Connect(ctx, "learner-1", "websocket", model.SessionConfig{TargetEvent: model.EventPractice}, em)
	require.NoError(t, err)
	require.NoError(t, m.Submit(id, snapshotFor(id)))
	require.Eventually(t, func() bool { return em.commandCount() >= 1 }, 5*time.Second, 5*time.Millisecond)

	// Well past the idle horizon: the sweep must drain and close it.
	m.SweepOnce(time.Now().Add(time.Hour))
	require.Eventually(t, func() bool { return m.ActiveSessions() == 0 }, 5*time.Second, 5*time.Millisecond)

	reasons := em.closeReasons()
	require.Len(t, reasons, 1)
	assert.Equal(t, pipeline.ReasonIdleTimeout, reasons[0])
	em.mu.Lock()
	sum := em.summaries[0]
	em.mu.Unlock()
	assert.Equal(t, int64(1), sum.TotalEvents)
	assert.GreaterOrEqual(t, sum.AdaptationsOut, int64(1))
}

func TestSweepKeepsActiveSessions(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: time.Hour})
	ctx := context.Background()

	_, err := m.Connect(ctx, "learner-1", "websocket", model.SessionConfig{}, &recordingEmitter{})
	require.NoError(t, err)

	m.SweepOnce(time.Now())
	assert.Equal(t, 1, m.ActiveSessions())
}

func TestShutdownDrainsEverySession(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()
	emitters := make([]*recordingEmitter, 3)
	for i := range emitters {
		emitters[i] = &recordingEmitter{}
		_, err := m.Connect(ctx, "learner-"+string(rune('a'+i)), "websocket", model.SessionConfig{}, emitters[i])
		require.NoError(t, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Shutdown(shutdownCtx)

	assert.Equal(t, 0, m.ActiveSessions())
	for _, em := range emitters {
		reasons := em.closeReasons()
		require.Len(t, reasons, 1)
		assert.Equal(t, pipeline.ReasonServerShutdown, reasons[0])
	}
}

func TestDescribeReportsPersistedState(t *testing.T) {
	m := newTestManager(t, Config{})
	em := &recordingEmitter{}
	ctx := context.Background()

	id, err := m.Connect(ctx, "learner-1", "websocket", model.SessionConfig{TargetEvent: model.EventPractice}, em)
	require.NoError(t, err)
	require.NoError(t, m.Submit(id, snapshotFor(id)))
	require.Eventually(t, func() bool { return em.commandCount() >= 1 }, 5*time.Second, 5*time.Millisecond)

	got, err := m.Describe(ctx, id, "status")
	require.NoError(t, err)
	assert.Equal(t, id, got["session_id"])
	assert.Equal(t, "status", got["request_type"])
	assert.EqualValues(t, 1, got["total_events"])

	_, err = m.Describe(ctx, "missing", "status")
	assert.Equal(t, model.CodeNoSession, model.CodeOf(err))
}
