// SPDX-License-Identifier: MIT

// Package transport is the duplex WebSocket surface: framed JSON
// messages in both directions, with a per-connection writer goroutine
// preserving command order.
package transport

import (
	"time"

	"github.com/vrlearn/adaptd/internal/model"
)

// Inbound frame kinds.
const (
	KindConnect           = "connect"
	KindLearningData      = "learning_data"
	KindAdaptationRequest = "adaptation_request"
	KindDisconnect        = "disconnect"
)

// Outbound frame kinds.
const (
	KindConnectionEstablished  = "connection_established"
	KindAdaptationResponse     = "adaptation_response"
	KindDisconnectionConfirmed = "disconnection_confirmed"
	KindError                  = "error"
)

// InboundFrame is the union of all client-to-server messages. Kind
// selects which fields are read.
type InboundFrame struct {
	Kind string `json:"kind"`

	// connect
	LearnerID     string               `json:"learner_id,omitempty"`
	SessionConfig *model.SessionConfig `json:"session_config,omitempty"`

	// learning_data / adaptation_request / disconnect
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// learning_data
	Snapshot *model.InteractionSnapshot `json:"interaction_snapshot,omitempty"`

	// adaptation_request
	RequestType string         `json:"request_type,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	// disconnect
	Reason string `json:"reason,omitempty"`
}

// OutboundFrame is the union of all server-to-client messages.
type OutboundFrame struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id,omitempty"`

	// connection_established
	Capabilities []string `json:"capabilities,omitempty"`

	// adaptation_response
	Commands     []model.AdaptationCommand `json:"adaptation_commands,omitempty"`
	UpdatedState map[string]any            `json:"updated_learning_state,omitempty"`

	// disconnection_confirmed
	Summary *model.SessionSummary `json:"session_summary,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// capabilities advertised on connection_established.
var capabilities = []string{
	"learning_data",
	"adaptation_request",
	"disconnect",
	"streaming_5s",
}
