// SPDX-License-Identifier: MIT

// Package pipeline runs the per-session adaptation loop: a bounded
// inbound queue, a single consumer goroutine, and the extract →
// calculate → decide → persist → fan-out sequence under latency budgets.
// All mutation of a SessionRecord happens on the consumer goroutine.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/clock"
	"github.com/vrlearn/adaptd/internal/learner"
	"github.com/vrlearn/adaptd/internal/log"
	"github.com/vrlearn/adaptd/internal/metrics"
	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/pipeline/fsm"
	"github.com/vrlearn/adaptd/internal/policy"
	"github.com/vrlearn/adaptd/internal/resilience"
	"github.com/vrlearn/adaptd/internal/signal"
	"github.com/vrlearn/adaptd/internal/store"
	"github.com/vrlearn/adaptd/internal/transition"
)

// LifecycleEvent drives the session state machine.
type LifecycleEvent string

const (
	EventActivate LifecycleEvent = "activate"
	EventDrain    LifecycleEvent = "drain"
	EventClose    LifecycleEvent = "close"
)

// Close reasons reported on session teardown.
const (
	ReasonClientDisconnect = "client_disconnect"
	ReasonIdleTimeout      = "idle_timeout"
	ReasonServerShutdown   = "server_shutdown"
	ReasonPersistenceFault = "persistence_failure"
	ReasonTransportFault   = "transport_failure"
	ReasonMasteryComplete  = "mastery_complete"
	ReasonInternalFault    = "internal_fault"
)

const (
	defaultQueueCapacity = 64
	defaultDrainGrace    = 2 * time.Second
	maxTransportFailures = 3
	flatDeltaThreshold   = 0.05
)

// Event is one queued unit of inbound work.
type Event struct {
	Snapshot   *model.InteractionSnapshot
	EnqueuedAt time.Time
}

// Emitter is the outbound side of a session: the transport implements
// it over the connection's ordered writer.
type Emitter interface {
	EmitCommand(cmd model.AdaptationCommand) error
	EmitError(code, message string) error
}

// Deps wires one pipeline. Record must be initialised by the caller;
// the pipeline owns it from construction until Done.
type Deps struct {
	Record  *model.SessionRecord
	Handle  *learner.Handle
	Calc    *transition.Calculator
	Store   store.Store
	Clock   *clock.Service
	Audit   *audit.Logger
	Emitter Emitter

	Breaker *resilience.Breaker
	Retry   resilience.RetryPolicy

	QueueCapacity int
	DrainGrace    time.Duration
}

// Pipeline is the per-session adaptation loop.
type Pipeline struct {
	rec     *model.SessionRecord
	handle  *learner.Handle
	calc    *transition.Calculator
	st      store.Store
	clk     *clock.Service
	aud     *audit.Logger
	emitter Emitter
	breaker *resilience.Breaker
	retry   resilience.RetryPolicy
	lg      zerolog.Logger

	queue      chan Event
	life       *fsm.Machine[model.SessionState, LifecycleEvent]
	drainGrace time.Duration

	stopOnce    sync.Once
	stop        chan struct{}
	done        chan struct{}
	closeReason string

	// Consumer-goroutine state. Never touched elsewhere.
	seq            uint64
	trans          model.TransitionState
	flatStreak     int
	transportFails int
}

// New builds a pipeline in the Connecting state.
func New(d Deps) (*Pipeline, error) {
	if d.QueueCapacity <= 0 {
		d.QueueCapacity = defaultQueueCapacity
	}
	if d.DrainGrace <= 0 {
		d.DrainGrace = defaultDrainGrace
	}
	life, err := fsm.New(model.SessionConnecting, []fsm.Transition[model.SessionState, LifecycleEvent]{
		{From: model.SessionConnecting, Event: EventActivate, To: model.SessionActive},
		{From: model.SessionConnecting, Event: EventClose, To: model.SessionClosed},
		{From: model.SessionActive, Event: EventDrain, To: model.SessionDraining},
		{From: model.SessionActive, Event: EventClose, To: model.SessionClosed},
		{From: model.SessionDraining, Event: EventClose, To: model.SessionClosed},
	})
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		rec:        d.Record,
		handle:     d.Handle,
		calc:       d.Calc,
		st:         d.Store,
		clk:        d.Clock,
		aud:        d.Audit,
		emitter:    d.Emitter,
		breaker:    d.Breaker,
		retry:      d.Retry,
		lg:         log.WithComponent("pipeline").With().Str("session_id", d.Record.SessionID).Logger(),
		queue:      make(chan Event, d.QueueCapacity),
		life:       life,
		drainGrace: d.DrainGrace,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		trans:      model.TransitionState{SessionID: d.Record.SessionID, Value: 0.5},
	}
	return p, nil
}

// State returns the lifecycle state.
func (p *Pipeline) State() model.SessionState { return p.life.State() }

// Done is closed once the pipeline has fully stopped.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// CloseReason reports why the session ended. Valid after Done.
func (p *Pipeline) CloseReason() string { return p.closeReason }

// Submit enqueues one inbound event. It never blocks: a full queue is a
// Busy rejection, and draining or closed sessions refuse new work.
func (p *Pipeline) Submit(snap *model.InteractionSnapshot) error {
	switch p.life.State() {
	case model.SessionDraining, model.SessionClosed:
		return model.WireError(model.CodeNoSession, "session is closing", model.ErrNotFound)
	}
	select {
	case p.queue <- Event{Snapshot: snap, EnqueuedAt: p.clk.Now()}:
		metrics.SetQueueDepth(p.rec.SessionID, len(p.queue))
		return nil
	default:
		metrics.RecordBusyRejection()
		return model.WireError(model.CodeBusy, "inbound queue full, retry later", model.ErrBusy)
	}
}

// Drain moves the session to Draining. Queued events are still
// processed within the drain grace; new submissions are refused.
// Calling it more than once, or on a closed session, is a no-op.
func (p *Pipeline) Drain(reason string) {
	if _, err := p.life.Fire(context.Background(), EventDrain); err != nil {
		return
	}
	// The record itself is only touched on the consumer goroutine; it
	// observes the stop channel and marks itself draining.
	p.stopOnce.Do(func() {
		p.closeReason = reason
		close(p.stop)
	})
}

// Run owns the session until it closes. It processes queued events one
// at a time; on ctx cancellation remaining events are discarded, on
// Drain they are processed within the grace window.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)

	if _, err := p.life.Fire(ctx, EventActivate); err != nil {
		p.finish(ctx, ReasonInternalFault)
		return err
	}
	p.rec.State = model.SessionActive
	metrics.SessionOpened()

	var reason string
loop:
	for {
		select {
		case <-ctx.Done():
			reason = ReasonServerShutdown
			p.discardQueued()
			break loop
		case <-p.stop:
			reason = p.closeReason
			p.drainQueued(ctx)
			break loop
		case ev := <-p.queue:
			p.process(ctx, ev)
			metrics.SetQueueDepth(p.rec.SessionID, len(p.queue))
		}
	}

	p.finish(ctx, reason)
	return nil
}

// drainQueued processes whatever is already queued, bounded by the
// drain grace window.
func (p *Pipeline) drainQueued(ctx context.Context) {
	p.rec.State = model.SessionDraining
	deadline := time.NewTimer(p.drainGrace)
	defer deadline.Stop()
	for {
		select {
		case ev := <-p.queue:
			p.process(ctx, ev)
		case <-deadline.C:
			p.discardQueued()
			return
		default:
			return
		}
	}
}

func (p *Pipeline) discardQueued() {
	for {
		select {
		case <-p.queue:
			metrics.RecordEventProcessed("discarded")
		default:
			return
		}
	}
}

// finish closes the lifecycle, persists the final record state, and
// releases per-session resources.
func (p *Pipeline) finish(ctx context.Context, reason string) {
	wasActive := p.life.State() != model.SessionConnecting
	if _, err := p.life.Fire(context.Background(), EventClose); err == nil {
		p.rec.State = model.SessionClosed
	}
	if p.closeReason == "" {
		p.closeReason = reason
	}

	// Final persist is best effort; shutdown must not wedge on a dead store.
	persistCtx, cancel := context.WithTimeout(context.Background(), p.drainGrace)
	defer cancel()
	if err := p.st.UpsertSession(persistCtx, p.rec); err != nil {
		p.lg.Error().Err(err).Msg("final session persist failed")
	}

	p.aud.SessionClosed(ctx, p.rec.LearnerID, p.rec.SessionID, p.closeReason)
	if wasActive {
		metrics.SessionClosed(p.closeReason)
	}
	metrics.DropQueueDepth(p.rec.SessionID)
	p.handle.Release()
}

// process runs one event end to end.
func (p *Pipeline) process(ctx context.Context, ev Event) {
	now := p.clk.Now()
	p.rec.EventsIn++
	p.rec.LastEventAt = now
	if ev.Snapshot.HelpRequested {
		p.rec.HelpRequests++
	}

	signals := signal.ExtractAll(ev.Snapshot)

	prev := p.trans
	var next model.TransitionState
	err := p.clk.Run(ctx, clock.OpCalculator, func(context.Context) error {
		var stepErr error
		next, stepErr = p.calc.Step(prev, signals, ev.Snapshot.Env, p.rec.Config.Sensitivity, now)
		return stepErr
	})

	var cmds []model.AdaptationCommand
	switch {
	case errors.Is(err, model.ErrNumeric):
		// The state keeps its previous value; the learner sees a hold.
		p.aud.ProcessingError(ctx, p.rec.SessionID, "calculator", model.ReasonNumericFault)
		metrics.RecordEventProcessed("numeric_fault")
		cmds = append(cmds, p.command(model.CmdHoldEvent, model.ReasonNumericFault, nil, now))
	default:
		// A budget breach surfaces as ErrDeadlineExceeded with a valid
		// result; it is recorded by the clock service and never aborts.
		p.trans = next
		if delta := abs(next.Value - prev.Value); delta < flatDeltaThreshold {
			p.flatStreak++
		} else {
			p.flatStreak = 0
		}

		// Demonstrated completion ratchets progress upward, so a learner
		// who arrives already past the advance gate is not held back by
		// the zero-progress start. Advancing or remediating still resets
		// progress for the new event.
		if c, ok := signal.Completion(ev.Snapshot); ok && c > p.rec.Progress {
			p.rec.Progress = c
		}

		d := policy.Decide(policy.Input{
			CurrentEvent:  p.rec.CurrentEvent,
			Progress:      p.rec.Progress,
			Value:         next.Value,
			PreviousValue: prev.Value,
			Integration:   next.Integration,
			Confidence:    next.Confidence,
			Stability:     next.Stability,
			HelpRate:      p.helpRate(),
			FlatStreak:    p.flatStreak,
		})
		policy.Apply(p.rec, d)
		p.handle.ObserveEvent(next.Integration, next.Confidence)

		cmds = append(cmds, p.decisionCommand(d, now))
		for _, aux := range d.Auxiliaries {
			cmds = append(cmds, p.decisionCommand(aux, now))
		}
		metrics.RecordEventProcessed("ok")

		if d.Kind == model.CmdTerminate {
			defer p.Drain(ReasonMasteryComplete)
		}
	}

	if !p.persist(ctx, now) {
		return
	}
	p.fanout(cmds)
	p.clk.Observe(clock.OpEndToEnd, p.clk.Now().Sub(ev.EnqueuedAt))
}

func (p *Pipeline) helpRate() float64 {
	if p.rec.EventsIn == 0 {
		return 0
	}
	return float64(p.rec.HelpRequests) / float64(p.rec.EventsIn)
}

func (p *Pipeline) command(kind model.CommandKind, reason string, payload map[string]any, now time.Time) model.AdaptationCommand {
	p.seq++
	return model.AdaptationCommand{
		SessionID: p.rec.SessionID,
		Seq:       p.seq,
		Kind:      kind,
		Reason:    reason,
		Payload:   payload,
		IssuedAt:  now,
	}
}

func (p *Pipeline) decisionCommand(d policy.Decision, now time.Time) model.AdaptationCommand {
	payload := map[string]any{
		"target_event": string(d.TargetEvent),
		"value":        p.trans.Value,
		"confidence":   p.trans.Confidence,
		"stability":    p.trans.Stability,
	}
	if d.Direction != "" {
		payload["direction"] = d.Direction
	}
	return p.command(d.Kind, d.Reason, payload, now)
}

// persist writes the session row and the per-event metric sample,
// retrying transient failures behind the circuit breaker. Exhausted
// retries drain the session.
func (p *Pipeline) persist(ctx context.Context, now time.Time) bool {
	err := p.clk.Run(ctx, clock.OpPersist, func(runCtx context.Context) error {
		return p.breaker.Execute(func() error {
			return resilience.Retry(runCtx, p.retry, func(rctx context.Context) error {
				if err := p.st.UpsertSession(rctx, p.rec); err != nil {
					return err
				}
				return p.st.AppendMetric(rctx, &store.MetricRecord{
					SessionID:  p.rec.SessionID,
					Seq:        p.seq,
					Event:      string(p.rec.CurrentEvent),
					Value:      p.trans.Value,
					Confidence: p.trans.Confidence,
					Stability:  p.trans.Stability,
					LatencyMS:  p.clk.Now().Sub(now).Milliseconds(),
					RecordedAt: now,
				})
			})
		})
	})
	if err == nil || errors.Is(err, model.ErrDeadlineExceeded) {
		return true
	}

	p.lg.Error().Err(err).Msg("persist failed after retries")
	p.aud.ProcessingError(ctx, p.rec.SessionID, "persist", "retries_exhausted")
	metrics.RecordEventProcessed("persistence_error")
	if emitErr := p.emitter.EmitError(model.CodeProcessingError, "state persistence failed"); emitErr != nil {
		p.lg.Warn().Err(emitErr).Msg("error frame write failed")
	}
	p.Drain(ReasonPersistenceFault)
	return false
}

// fanout pushes commands to the client in order. Three consecutive
// write failures drain the session.
func (p *Pipeline) fanout(cmds []model.AdaptationCommand) {
	for _, cmd := range cmds {
		if err := p.emitter.EmitCommand(cmd); err != nil {
			p.transportFails++
			metrics.RecordTransportWriteFailure()
			p.lg.Warn().Err(err).Uint64("seq", cmd.Seq).Int("consecutive", p.transportFails).
				Msg("command write failed")
			if p.transportFails >= maxTransportFailures {
				if emitErr := p.emitter.EmitError(model.CodeProcessingError, "outbound channel failing"); emitErr != nil {
					p.lg.Warn().Err(emitErr).Msg("error frame write failed")
				}
				p.Drain(ReasonTransportFault)
				return
			}
			continue
		}
		p.transportFails = 0
		p.rec.AdaptationsOut++
		metrics.RecordCommand(string(cmd.Kind), cmd.Reason)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
