// SPDX-License-Identifier: MIT

// Package audit provides structured audit logging for security-sensitive
// operations. Entries follow the WHO/WHAT/WHEN pattern, carry monotonic
// sequence numbers, are persisted append-only, and reference learners
// only through anonymised tokens.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrlearn/adaptd/internal/log"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Data lifecycle events
	EventDataAccess  EventType = "data.access"
	EventDataModify  EventType = "data.modify"
	EventDataEncrypt EventType = "data.encrypt"
	EventDataDecrypt EventType = "data.decrypt"
	EventDataPurge   EventType = "data.purge"

	// Privacy events
	EventAnonymise EventType = "privacy.anonymise"

	// Authentication events
	EventAuthSuccess EventType = "auth.success"
	EventAuthFailure EventType = "auth.failure"
	EventAuthMissing EventType = "auth.missing"

	// Session lifecycle events
	EventSessionOpen  EventType = "session.open"
	EventSessionClose EventType = "session.close"

	// Processing faults
	EventProcessingError EventType = "processing.error"
)

// Event represents a structured audit event. Actor is always an
// anonymised learner token or a system identity, never a raw learner ID.
type Event struct {
	Seq       uint64            `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor"`    // WHO: anonymised token or "system"
	Action    string            `json:"action"`   // WHAT: human-readable action
	Resource  string            `json:"resource"` // resource affected (session, model block, key)
	Result    string            `json:"result"`   // success, failure, denied
	SessionID string            `json:"session_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink persists audit events. The badger-backed implementation assigns
// sequence numbers; the logger mirrors every event regardless of sink.
type Sink interface {
	Append(ctx context.Context, event *Event) error
	Close() error
}

// Logger provides audit logging: every event is mirrored to the
// structured log and, when a sink is attached, persisted append-only.
type Logger struct {
	logger zerolog.Logger
	sink   Sink
	now    func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithSink attaches a persistent sink.
func WithSink(s Sink) Option {
	return func(l *Logger) { l.sink = s }
}

// WithNow overrides the timestamp source, for tests.
func WithNow(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger creates an audit logger with a dedicated "audit" component.
func NewLogger(opts ...Option) *Logger {
	auditLogger := log.WithComponent("audit").With().
		Str("log_type", "audit").
		Logger()

	l := &Logger{logger: auditLogger, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Close closes the attached sink, if any.
func (l *Logger) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// Log writes an audit event. A sink failure is reported on the mirror
// log but never propagated: auditing must not take down the data path.
func (l *Logger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(ctx)
	}

	if l.sink != nil {
		if err := l.sink.Append(ctx, &event); err != nil {
			l.logger.Error().Err(err).
				Str("event_type", string(event.Type)).
				Msg("audit sink append failed")
		}
	}

	logEvent := l.logger.Info().
		Uint64("seq", event.Seq).
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.SessionID != "" {
		logEvent = logEvent.Str("session_id", event.SessionID)
	}
	if event.RequestID != "" {
		logEvent = logEvent.Str("request_id", event.RequestID)
	}
	for key, value := range event.Details {
		logEvent = logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// DataAccess logs a read of a protected record.
func (l *Logger) DataAccess(ctx context.Context, actor, resource, sessionID string) {
	l.Log(ctx, Event{
		Type:      EventDataAccess,
		Actor:     actor,
		Action:    "read protected record",
		Resource:  resource,
		Result:    "success",
		SessionID: sessionID,
	})
}

// DataModify logs a write to a protected record.
func (l *Logger) DataModify(ctx context.Context, actor, resource, sessionID string) {
	l.Log(ctx, Event{
		Type:      EventDataModify,
		Actor:     actor,
		Action:    "modified protected record",
		Resource:  resource,
		Result:    "success",
		SessionID: sessionID,
	})
}

// Encrypted logs an envelope encryption of a stored record.
func (l *Logger) Encrypted(ctx context.Context, actor, resource string) {
	l.Log(ctx, Event{
		Type:     EventDataEncrypt,
		Actor:    actor,
		Action:   "encrypted record",
		Resource: resource,
		Result:   "success",
	})
}

// Decrypted logs an envelope decryption of a stored record.
func (l *Logger) Decrypted(ctx context.Context, actor, resource string) {
	l.Log(ctx, Event{
		Type:     EventDataDecrypt,
		Actor:    actor,
		Action:   "decrypted record",
		Resource: resource,
		Result:   "success",
	})
}

// Anonymised logs replacement of direct identifiers in a record.
func (l *Logger) Anonymised(ctx context.Context, actor, resource string, details map[string]string) {
	l.Log(ctx, Event{
		Type:     EventAnonymise,
		Actor:    actor,
		Action:   "anonymised record identifiers",
		Resource: resource,
		Result:   "success",
		Details:  details,
	})
}

// Purged logs a retention deletion.
func (l *Logger) Purged(ctx context.Context, resource string, count int) {
	l.Log(ctx, Event{
		Type:     EventDataPurge,
		Actor:    "system",
		Action:   "purged expired records",
		Resource: resource,
		Result:   "success",
		Details: map[string]string{
			"count": formatInt(count),
		},
	})
}

// AuthSuccess logs a successful authentication.
func (l *Logger) AuthSuccess(ctx context.Context, remoteAddr, endpoint string) {
	l.Log(ctx, Event{
		Type:     EventAuthSuccess,
		Actor:    remoteAddr,
		Action:   "authenticated successfully",
		Resource: endpoint,
		Result:   "success",
	})
}

// AuthFailure logs a failed authentication attempt.
func (l *Logger) AuthFailure(ctx context.Context, remoteAddr, endpoint, reason string) {
	l.Log(ctx, Event{
		Type:     EventAuthFailure,
		Actor:    remoteAddr,
		Action:   "authentication failed",
		Resource: endpoint,
		Result:   "failure",
		Details: map[string]string{
			"reason": reason,
		},
	})
}

// AuthMissing logs a request without credentials.
func (l *Logger) AuthMissing(ctx context.Context, remoteAddr, endpoint string) {
	l.Log(ctx, Event{
		Type:     EventAuthMissing,
		Actor:    remoteAddr,
		Action:   "accessed endpoint without authentication",
		Resource: endpoint,
		Result:   "denied",
	})
}

// SessionOpened logs the start of an adaptation session.
func (l *Logger) SessionOpened(ctx context.Context, actor, sessionID string) {
	l.Log(ctx, Event{
		Type:      EventSessionOpen,
		Actor:     actor,
		Action:    "opened adaptation session",
		Resource:  "session",
		Result:    "success",
		SessionID: sessionID,
	})
}

// SessionClosed logs the end of an adaptation session.
func (l *Logger) SessionClosed(ctx context.Context, actor, sessionID, reason string) {
	l.Log(ctx, Event{
		Type:      EventSessionClose,
		Actor:     actor,
		Action:    "closed adaptation session",
		Resource:  "session",
		Result:    "success",
		SessionID: sessionID,
		Details: map[string]string{
			"reason": reason,
		},
	})
}

// ProcessingError logs a fault on the adaptation path.
func (l *Logger) ProcessingError(ctx context.Context, sessionID, stage, reason string) {
	l.Log(ctx, Event{
		Type:      EventProcessingError,
		Actor:     "system",
		Action:    "processing fault",
		Resource:  stage,
		Result:    "failure",
		SessionID: sessionID,
		Details: map[string]string{
			"reason": reason,
		},
	})
}

func formatInt(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
