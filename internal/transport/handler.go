// SPDX-License-Identifier: MIT

package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vrlearn/adaptd/internal/log"
	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/session"
)

const (
	// channelName identifies this transport in the one-session-per-
	// (learner, channel) rule.
	channelName = "websocket"

	writeTimeout  = 5 * time.Second
	pongTimeout   = 90 * time.Second
	pingInterval  = 30 * time.Second
	maxFrameBytes = 1 << 20
	outboundDepth = 128
)

// Handler upgrades /ws requests and speaks the framed JSON protocol.
type Handler struct {
	mgr      *session.Manager
	upgrader websocket.Upgrader
	lg       zerolog.Logger
}

// NewHandler builds the WebSocket endpoint over a session manager.
func NewHandler(mgr *session.Manager) *Handler {
	return &Handler{
		mgr: mgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		lg: log.WithComponent("transport"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	c := newConn(ws, h.lg)
	go c.writeLoop()
	h.readLoop(r.Context(), c)
}

// conn is one client connection. All writes to the socket go through
// the out channel so command order is preserved; the emitter side is
// called from pipeline consumer goroutines.
type conn struct {
	ws  *websocket.Conn
	out chan OutboundFrame
	lg  zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, lg zerolog.Logger) *conn {
	return &conn{
		ws:     ws,
		out:    make(chan OutboundFrame, outboundDepth),
		lg:     lg.With().Str("remote", ws.RemoteAddr().String()).Logger(),
		closed: make(chan struct{}),
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// send enqueues one outbound frame. A full queue or a closed
// connection reports a transport error to the caller.
func (c *conn) send(f OutboundFrame) error {
	select {
	case <-c.closed:
		return model.ErrTransport
	default:
	}
	select {
	case c.out <- f:
		return nil
	default:
		return model.ErrTransport
	}
}

// EmitCommand implements pipeline.Emitter: each command rides in its
// own adaptation_response frame, in emission order.
func (c *conn) EmitCommand(cmd model.AdaptationCommand) error {
	return c.send(OutboundFrame{
		Kind:         KindAdaptationResponse,
		SessionID:    cmd.SessionID,
		Commands:     []model.AdaptationCommand{cmd},
		UpdatedState: cmd.Payload,
	})
}

// EmitError implements pipeline.Emitter.
func (c *conn) EmitError(code, message string) error {
	return c.send(OutboundFrame{Kind: KindError, Code: code, Message: message})
}

// EmitSummary implements session.SummaryEmitter: sessions closed by
// the server (idle timeout, shutdown, fault drains) still confirm
// their end to the client.
func (c *conn) EmitSummary(sum model.SessionSummary, reason string) error {
	return c.send(OutboundFrame{
		Kind:      KindDisconnectionConfirmed,
		SessionID: sum.SessionID,
		Summary:   &sum,
		Message:   reason,
	})
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case f := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(f); err != nil {
				c.lg.Debug().Err(err).Msg("outbound write failed")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop parses inbound frames until the client goes away. A vanished
// client drains its session like an explicit disconnect.
func (h *Handler) readLoop(ctx context.Context, c *conn) {
	defer c.close()
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	var sessionID string
	for {
		var f InboundFrame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.lg.Debug().Err(err).Msg("connection dropped")
			}
			break
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))

		switch f.Kind {
		case KindConnect:
			id := h.handleConnect(ctx, c, f)
			if id != "" {
				sessionID = id
			}
		case KindLearningData:
			h.handleLearningData(c, f)
		case KindAdaptationRequest:
			h.handleAdaptationRequest(ctx, c, f)
		case KindDisconnect:
			h.handleDisconnect(ctx, c, f)
			if f.SessionID == sessionID {
				sessionID = ""
			}
		default:
			c.sendError(model.WireError(model.CodeInvalidAction, "unknown message kind", model.ErrValidation))
		}
	}

	if sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := h.mgr.Disconnect(ctx, sessionID); err != nil {
			h.lg.Debug().Err(err).Str("session_id", sessionID).Msg("cleanup disconnect failed")
		}
	}
}

func (h *Handler) handleConnect(ctx context.Context, c *conn, f InboundFrame) string {
	var cfg model.SessionConfig
	if f.SessionConfig != nil {
		cfg = *f.SessionConfig
	}
	id, err := h.mgr.Connect(ctx, f.LearnerID, channelName, cfg, c)
	if err != nil {
		c.sendError(err)
		return ""
	}
	_ = c.send(OutboundFrame{
		Kind:         KindConnectionEstablished,
		SessionID:    id,
		Capabilities: capabilities,
	})
	return id
}

func (h *Handler) handleLearningData(c *conn, f InboundFrame) {
	if f.SessionID == "" {
		c.sendError(model.WireError(model.CodeNoSession, "session_id is required", model.ErrValidation))
		return
	}
	if f.Snapshot == nil {
		c.sendError(model.WireError(model.CodeMissingBlock, "interaction_snapshot is required", model.ErrValidation))
		return
	}
	snap := f.Snapshot
	snap.SessionID = f.SessionID
	if snap.Timestamp.IsZero() {
		snap.Timestamp = f.Timestamp
	}
	if err := h.mgr.Submit(f.SessionID, snap); err != nil {
		c.sendError(err)
	}
}

func (h *Handler) handleAdaptationRequest(ctx context.Context, c *conn, f InboundFrame) {
	if f.SessionID == "" {
		c.sendError(model.WireError(model.CodeNoSession, "session_id is required", model.ErrValidation))
		return
	}
	state, err := h.mgr.Describe(ctx, f.SessionID, f.RequestType)
	if err != nil {
		c.sendError(err)
		return
	}
	_ = c.send(OutboundFrame{
		Kind:         KindAdaptationResponse,
		SessionID:    f.SessionID,
		UpdatedState: state,
	})
}

func (h *Handler) handleDisconnect(ctx context.Context, c *conn, f InboundFrame) {
	if f.SessionID == "" {
		c.sendError(model.WireError(model.CodeNoSession, "session_id is required", model.ErrValidation))
		return
	}
	sum, err := h.mgr.Disconnect(ctx, f.SessionID)
	if err != nil {
		c.sendError(err)
		return
	}
	_ = c.send(OutboundFrame{
		Kind:      KindDisconnectionConfirmed,
		SessionID: f.SessionID,
		Summary:   &sum,
	})
}

// sendError maps any core error onto a stable-code error frame. The
// message is the coded error's own safe text, never the raw input.
func (c *conn) sendError(err error) {
	code := model.CodeOf(err)
	msg := "request failed"
	var ce *model.CodedError
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	_ = c.send(OutboundFrame{Kind: KindError, Code: code, Message: msg})
}
