// SPDX-License-Identifier: MIT

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/clock"
	"github.com/vrlearn/adaptd/internal/learner"
	"github.com/vrlearn/adaptd/internal/log"
	"github.com/vrlearn/adaptd/internal/model"
	"github.com/vrlearn/adaptd/internal/policy"
	"github.com/vrlearn/adaptd/internal/privacy"
	"github.com/vrlearn/adaptd/internal/signal"
	"github.com/vrlearn/adaptd/internal/store"
	"github.com/vrlearn/adaptd/internal/transition"
)

// Deps wires the tool service's collaborators.
type Deps struct {
	Registry *learner.Registry
	Store    store.Store
	Cipher   *privacy.Cipher
	Calc     *transition.Calculator
	Clock    *clock.Service
	Audit    *audit.Logger
}

// Response is the envelope every tool answers with.
type Response struct {
	Status    string         `json:"status"` // success or error
	Timestamp time.Time      `json:"timestamp"`
	Tool      string         `json:"tool"`
	Payload   map[string]any `json:"payload,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Service dispatches the five tools.
type Service struct {
	deps    Deps
	schemas map[string]*jsonschema.Schema
	lg      zerolog.Logger
}

// NewService compiles the tool schemas and builds the dispatcher.
func NewService(d Deps) (*Service, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Service{deps: d, schemas: schemas, lg: log.WithComponent("tools")}, nil
}

// Tools lists the registered tool names, sorted.
func (s *Service) Tools() []string {
	out := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// budgetOp maps a tool to its latency-budget operation class.
var budgetOp = map[string]string{
	ToolLearnerModel:       clock.OpLearner,
	ToolKnowledgeModel:     clock.OpKnowledge,
	ToolTrackEngagement:    clock.OpEngagement,
	ToolEvaluateAssessment: clock.OpAssessment,
	ToolTransitionDecision: clock.OpDecision,
}

// Invoke validates raw against the tool's schema and runs the tool
// under its budget. Budget breaches degrade to metrics, never to a
// failed response; every other error maps to a stable code.
func (s *Service) Invoke(ctx context.Context, tool string, raw []byte) Response {
	now := s.deps.Clock.Now()
	schema, ok := s.schemas[tool]
	if !ok {
		return s.errorResponse(tool, now, model.WireError(model.CodeInvalidAction, "unknown tool", model.ErrValidation))
	}

	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return s.errorResponse(tool, now, model.WireError(model.CodeInvalidAction, "request is not valid JSON", model.ErrValidation))
	}
	if err := schema.Validate(input); err != nil {
		s.lg.Debug().Err(err).Str("tool", tool).Msg("schema validation failed")
		return s.errorResponse(tool, now, model.WireError(model.CodeInvalidAction, "request does not match the tool schema", model.ErrValidation))
	}

	var payload map[string]any
	err := s.deps.Clock.Run(ctx, budgetOp[tool], func(runCtx context.Context) error {
		var handlerErr error
		payload, handlerErr = s.dispatch(runCtx, tool, raw)
		return handlerErr
	})
	if err != nil && !errors.Is(err, model.ErrDeadlineExceeded) {
		return s.errorResponse(tool, now, err)
	}
	return Response{Status: "success", Timestamp: now, Tool: tool, Payload: payload}
}

func (s *Service) dispatch(ctx context.Context, tool string, raw []byte) (map[string]any, error) {
	switch tool {
	case ToolLearnerModel:
		return s.processLearnerModel(ctx, raw)
	case ToolKnowledgeModel:
		return s.processKnowledgeModel(raw)
	case ToolTrackEngagement:
		return s.trackEngagement(ctx, raw)
	case ToolEvaluateAssessment:
		return s.evaluateAssessment(ctx, raw)
	case ToolTransitionDecision:
		return s.makeTransitionDecision(ctx, raw)
	default:
		return nil, model.Internalf("unroutable tool %s", tool)
	}
}

func (s *Service) errorResponse(tool string, now time.Time, err error) Response {
	code := model.CodeOf(err)
	msg := "tool call failed"
	var ce *model.CodedError
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	return Response{Status: "error", Timestamp: now, Tool: tool, Code: code, Message: msg}
}

func decode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(out); err != nil {
		return model.WireError(model.CodeInvalidAction, "malformed tool input", model.ErrValidation)
	}
	return nil
}

type learnerModelRequest struct {
	LearnerID      string             `json:"learner_id"`
	StaticProfile  learner.RawProfile `json:"static_profile"`
	DynamicProfile map[string]any     `json:"dynamic_profile"`
}

// processLearnerModel generalises the static profile, stores the
// encrypted model block, and answers with the anonymised view.
func (s *Service) processLearnerModel(ctx context.Context, raw []byte) (map[string]any, error) {
	var req learnerModelRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}

	handle, err := s.deps.Registry.Acquire(ctx, req.LearnerID)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	sp := s.deps.Registry.Generalise(req.StaticProfile)
	handle.SetProfile(sp)

	blob := map[string]any{"static": sp}
	if req.DynamicProfile != nil {
		blob["dynamic"] = req.DynamicProfile
	}
	if err := handle.SaveBlock(ctx, store.BlockLearner, blob, privacy.AccessRestricted); err != nil {
		return nil, err
	}

	return map[string]any{
		"anonymised_id": handle.Token(),
		"age_band":      sp.AgeBand,
		"region":        sp.Region,
		"tier":          sp.Tier,
	}, nil
}

type knowledgeModelRequest struct {
	DomainID            string `json:"domain_id"`
	ContentArchitecture struct {
		PrereqCompletion *float64 `json:"prerequisite_completion"`
		PathComplexity   *float64 `json:"path_complexity"`
		CompetencyGaps   *int     `json:"competency_gaps"`
		Modules          []string `json:"modules"`
	} `json:"content_architecture"`
}

// processKnowledgeModel runs the knowledge extractor over a content
// architecture summary and reports the resulting signal.
func (s *Service) processKnowledgeModel(raw []byte) (map[string]any, error) {
	var req knowledgeModelRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}

	sig := signal.ExtractKnowledge(&model.KnowledgeState{
		PrereqCompletion: req.ContentArchitecture.PrereqCompletion,
		PathComplexity:   req.ContentArchitecture.PathComplexity,
		CompetencyGaps:   req.ContentArchitecture.CompetencyGaps,
	})
	return map[string]any{
		"domain_id":    req.DomainID,
		"signal":       sig.Value,
		"weight":       sig.Weight,
		"degraded":     sig.Degraded,
		"module_count": len(req.ContentArchitecture.Modules),
	}, nil
}

type trackEngagementRequest struct {
	SessionID       string                  `json:"session_id"`
	LearnerID       string                  `json:"learner_id"`
	InteractionData model.EngagementMetrics `json:"interaction_data"`
}

// trackEngagement extracts the engagement signal and appends the
// encrypted interaction to the engagement history.
func (s *Service) trackEngagement(ctx context.Context, raw []byte) (map[string]any, error) {
	var req trackEngagementRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	now := s.deps.Clock.Now()

	sig := signal.ExtractEngagement(&req.InteractionData)
	env, err := s.deps.Cipher.EncryptJSON(req.InteractionData, privacy.Metadata{
		DataType:    "engagement_interaction",
		AccessLevel: privacy.AccessEducational,
	})
	if err != nil {
		return nil, model.Internalf("encrypt engagement interaction")
	}
	if err := s.deps.Store.AppendEngagement(ctx, &store.ObservationRecord{
		SessionID:  req.SessionID,
		Seq:        uint64(now.UnixNano()),
		Envelope:   env,
		RecordedAt: now,
	}); err != nil {
		return nil, err
	}
	s.deps.Audit.DataModify(ctx, s.deps.Registry.Anonymise(req.LearnerID), "engagement_data", req.SessionID)

	return map[string]any{
		"session_id":       req.SessionID,
		"engagement_score": sig.Value,
		"weight":           sig.Weight,
		"degraded":         sig.Degraded,
	}, nil
}

type evaluateAssessmentRequest struct {
	CheckpointID    string               `json:"checkpoint_id"`
	AssessmentType  string               `json:"assessment_type"`
	SessionID       string               `json:"session_id"`
	PerformanceData model.AssessmentData `json:"performance_data"`
}

// evaluateAssessment scores a checkpoint and appends the encrypted
// result to the assessment history.
func (s *Service) evaluateAssessment(ctx context.Context, raw []byte) (map[string]any, error) {
	var req evaluateAssessmentRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	now := s.deps.Clock.Now()

	sig := signal.ExtractAssessment(&req.PerformanceData)
	// Signals live in [-1,1]; the reported score is its [0,1] image.
	score := (sig.Value + 1) / 2

	env, err := s.deps.Cipher.EncryptJSON(map[string]any{
		"checkpoint_id":   req.CheckpointID,
		"assessment_type": req.AssessmentType,
		"performance":     req.PerformanceData,
		"score":           score,
	}, privacy.Metadata{
		DataType:    "assessment_result",
		AccessLevel: privacy.AccessRestricted,
	})
	if err != nil {
		return nil, model.Internalf("encrypt assessment result")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.CheckpointID
	}
	if err := s.deps.Store.AppendAssessment(ctx, &store.ObservationRecord{
		SessionID:  sessionID,
		Seq:        uint64(now.UnixNano()),
		Envelope:   env,
		RecordedAt: now,
	}); err != nil {
		return nil, err
	}

	return map[string]any{
		"checkpoint_id":   req.CheckpointID,
		"assessment_type": req.AssessmentType,
		"score":           score,
		"signal":          sig.Value,
		"weight":          sig.Weight,
		"degraded":        sig.Degraded,
	}, nil
}

type transitionDecisionRequest struct {
	LearnerID    string `json:"learner_id"`
	CurrentState struct {
		CurrentEvent model.LearningEvent `json:"current_event"`
		Progress     float64             `json:"progress"`
		Value        *float64            `json:"value"`
		Sensitivity  model.Sensitivity   `json:"adaptation_sensitivity"`
	} `json:"current_state"`
	ModelInputs struct {
		Learner    *model.LearnerState      `json:"learner_state"`
		Knowledge  *model.KnowledgeState    `json:"knowledge_state"`
		Engagement *model.EngagementMetrics `json:"engagement_metrics"`
		Assessment *model.AssessmentData    `json:"assessment_data"`
		Env        *model.EnvContext        `json:"educational_context"`
	} `json:"model_inputs"`
}

// makeTransitionDecision runs one synchronous pipeline step against a
// supplied input bundle, bypassing any session queue.
func (s *Service) makeTransitionDecision(ctx context.Context, raw []byte) (map[string]any, error) {
	var req transitionDecisionRequest
	if err := decode(raw, &req); err != nil {
		return nil, err
	}
	now := s.deps.Clock.Now()
	token := s.deps.Registry.Anonymise(req.LearnerID)

	value := 0.5
	if req.CurrentState.Value != nil {
		value = *req.CurrentState.Value
	}
	prev := model.TransitionState{SessionID: "tool:" + token, Value: value}
	signals := signal.Set{
		Learner:    signal.ExtractLearner(req.ModelInputs.Learner),
		Knowledge:  signal.ExtractKnowledge(req.ModelInputs.Knowledge),
		Engagement: signal.ExtractEngagement(req.ModelInputs.Engagement),
		Assessment: signal.ExtractAssessment(req.ModelInputs.Assessment),
	}

	next, err := s.deps.Calc.Step(prev, signals, req.ModelInputs.Env, req.CurrentState.Sensitivity, now)
	if errors.Is(err, model.ErrNumeric) {
		s.deps.Audit.ProcessingError(ctx, prev.SessionID, "tool_calculator", model.ReasonNumericFault)
		return map[string]any{
			"command":    string(model.CmdHoldEvent),
			"reason":     model.ReasonNumericFault,
			"value":      prev.Value,
			"confidence": prev.Confidence,
			"stability":  prev.Stability,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	d := policy.Decide(policy.Input{
		CurrentEvent:  req.CurrentState.CurrentEvent,
		Progress:      req.CurrentState.Progress,
		Value:         next.Value,
		PreviousValue: prev.Value,
		Integration:   next.Integration,
		Confidence:    next.Confidence,
		Stability:     next.Stability,
	})

	payload := map[string]any{
		"command":      string(d.Kind),
		"reason":       d.Reason,
		"target_event": string(d.TargetEvent),
		"value":        next.Value,
		"confidence":   next.Confidence,
		"stability":    next.Stability,
	}
	if d.Direction != "" {
		payload["direction"] = d.Direction
	}
	if len(d.Auxiliaries) > 0 {
		aux := make([]map[string]any, 0, len(d.Auxiliaries))
		for _, a := range d.Auxiliaries {
			aux = append(aux, map[string]any{"command": string(a.Kind), "reason": a.Reason})
		}
		payload["auxiliary_commands"] = aux
	}
	return payload, nil
}
