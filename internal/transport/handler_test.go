// SPDX-License-Identifier: MIT

package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/clock"
	"github.com/vrlearn/adaptd/internal/config"
	"github.com/vrlearn/adaptd/internal/learner"
	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/privacy"
	"github.com/vrlearn/adaptd/internal/session"
	"github.com/vrlearn/adaptd/internal/store"
	"github.com/vrlearn/adaptd/internal/transition"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()
	secret := privacy.EphemeralSecret()
	cipher, err := privacy.NewCipher(secret)
	require.NoError(t, err)
	reg := learner.NewRegistry(learner.Config{
		Hasher: privacy.NewHasher(secret),
		Cipher: cipher,
		Store:  store.NewMemory(),
	})
	mgr := session.NewManager(session.Config{}, session.Deps{
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
	srv := httptest.NewServer(NewHandler(mgr))
	t.Cleanup(srv.Close)
	return srv, mgr
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) OutboundFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f OutboundFrame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func connect(t *testing.T, ws *websocket.Conn, learnerID string) string {
	t.Helper()
	require.NoError(t, ws.WriteJSON(InboundFrame{
		Kind:      KindConnect,
		LearnerID: learnerID,
		SessionConfig: &model.SessionConfig{
			LearningDomain: "geometry",
			TargetEvent:    model.EventPractice,
			Sensitivity:    model.SensitivityMedium,
			Difficulty:     0.5,
		},
	}))
	f := readFrame(t, ws)
	require.Equal(t, KindConnectionEstablished, f.Kind)
	require.NotEmpty(t, f.SessionID)
	require.Contains(t, f.Capabilities, "learning_data")
	return f.SessionID
}

func f64(v float64) *float64 { return &v }

func snapshot() *model.InteractionSnapshot {
	return &model.InteractionSnapshot{
		Timestamp: time.Now().UTC(),
		Learner:   &model.LearnerState{Readiness: f64(0.7), Preferences: f64(0.6)},
		Knowledge: &model.KnowledgeState{PrereqCompletion: f64(0.7)},
		Engagement: &model.EngagementMetrics{
			Engagement: f64(0.7), Attention: f64(0.7), Intrinsic: f64(0.6), Persistence: f64(0.6),
		},
		Assessment: &model.AssessmentData{Competency: f64(0.7), Accuracy: f64(0.7)},
	}
}

func TestConnectAndLearningDataRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	ws := dial(t, srv)
	id := connect(t, ws, "learner-1")

	require.NoError(t, ws.WriteJSON(InboundFrame{
		Kind:      KindLearningData,
		SessionID: id,
		Snapshot:  snapshot(),
	}))
	resp := readFrame(t, ws)
	assert.Equal(t, KindAdaptationResponse, resp.Kind)
	assert.Equal(t, id, resp.SessionID)
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, uint64(1), resp.Commands[0].Seq)
	assert.NotEmpty(t, resp.Commands[0].Kind)
}

func TestCommandsArriveInOrder(t *testing.T) {
	srv, _ := newTestServer(t)
	ws := dial(t, srv)
	id := connect(t, ws, "learner-1")

	for i := 0; i < 5; i++ {
		require.NoError(t, ws.WriteJSON(InboundFrame{
			Kind:      KindLearningData,
			SessionID: id,
			Snapshot:  snapshot(),
		}))
	}
	for i := 0; i < 5; i++ {
		resp := readFrame(t, ws)
		require.Equal(t, KindAdaptationResponse, resp.Kind)
		require.Len(t, resp.Commands, 1)
		assert.Equal(t, uint64(i+1), resp.Commands[0].Seq)
	}
}

func TestRepeatedConnectReturnsSameSession(t *testing.T) {
	srv, _ := newTestServer(t)
	ws := dial(t, srv)
	id1 := connect(t, ws, "learner-1")
	id2 := connect(t, ws, "learner-1")
	assert.Equal(t, id1, id2)
}

func TestErrorFramesCarryStableCodes(t *testing.T) {
	srv, _ := newTestServer(t)
	ws := dial(t, srv)

	// Missing learner_id on connect.
	require.NoError(t, ws.WriteJSON(InboundFrame{Kind: KindConnect}))
	f := readFrame(t, ws)
	assert.Equal(t, KindError, f.Kind)
	assert.Equal(t, model.CodeMissingLearnerID, f.Code)

	// learning_data for an unknown session.
	require.NoError(t, ws.WriteJSON(InboundFrame{
		Kind:      KindLearningData,
		SessionID: "nope",
		Snapshot:  snapshot(),
	}))
	f = readFrame(t, ws)
	assert.Equal(t, KindError, f.Kind)
	assert.Equal(t, model.CodeNoSession, f.Code)

	// Unknown message kind.
	require.NoError(t, ws.WriteJSON(InboundFrame{Kind: "telepathy"}))
	f = readFrame(t, ws)
	assert.Equal(t, KindError, f.Kind)
	assert.Equal(t, model.CodeInvalidAction, f.Code)
}

func TestSnapshotMissingBlockIsRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	ws := dial(t, srv)
	id := connect(t, ws, "learner-1")

	snap := snapshot()
	snap.Engagement = nil
	require.NoError(t, ws.WriteJSON(InboundFrame{
		Kind:      KindLearningData,
		SessionID: id,
		Snapshot:  snap,
	}))
	f := readFrame(t, ws)
	assert.Equal(t, KindError, f.Kind)
	assert.Equal(t, model.CodeMissingBlock, f.Code)
}

func TestAdaptationRequestReturnsSessionState(t *testing.T) {
	srv, _ := newTestServer(t)
	ws := dial(t, srv)
	id := connect(t, ws, "learner-1")

	require.NoError(t, ws.WriteJSON(InboundFrame{
		Kind:      KindLearningData,
		SessionID: id,
		Snapshot:  snapshot(),
	}))
	_ = readFrame(t, ws) // adaptation_response for the event

	require.NoError(t, ws.WriteJSON(InboundFrame{
		Kind:        KindAdaptationRequest,
		SessionID:   id,
		RequestType: "status",
	}))
	f := readFrame(t, ws)
	assert.Equal(t, KindAdaptationResponse, f.Kind)
	assert.Empty(t, f.Commands)
	assert.Equal(t, "status", f.UpdatedState["request_type"])
	assert.Equal(t, id, f.UpdatedState["session_id"])
}

func TestDisconnectConfirmsWithSummary(t *testing.T) {
	srv, mgr := newTestServer(t)
	ws := dial(t, srv)
	id := connect(t, ws, "learner-1")

	require.NoError(t, ws.WriteJSON(InboundFrame{
		Kind:      KindLearningData,
		SessionID: id,
		Snapshot:  snapshot(),
	}))
	_ = readFrame(t, ws)

	require.NoError(t, ws.WriteJSON(InboundFrame{Kind: KindDisconnect, SessionID: id}))
	f := readFrame(t, ws)
	assert.Equal(t, KindDisconnectionConfirmed, f.Kind)
	require.NotNil(t, f.Summary)
	assert.Equal(t, id, f.Summary.SessionID)
	assert.Equal(t, int64(1), f.Summary.TotalEvents)

	require.Eventually(t, func() bool { return mgr.ActiveSessions() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestDroppedConnectionDrainsSession(t *testing.T) {
	srv, mgr := newTestServer(t)
	ws := dial(t, srv)
	_ = connect(t, ws, "learner-1")
	require.Equal(t, 1, mgr.ActiveSessions())

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return mgr.ActiveSessions() == 0 }, 5*time.Second, 5*time.Millisecond)
}
