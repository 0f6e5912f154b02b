// SPDX-License-Identifier: MIT

// Package tools is the synchronous request/response interface of the
// core: five named tools, each validating its input against a JSON
// schema and answering inside its latency budget.
package tools

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool names.
const (
	ToolLearnerModel       = "process_learner_model"
	ToolKnowledgeModel     = "process_knowledge_model"
	ToolTrackEngagement    = "track_engagement"
	ToolEvaluateAssessment = "evaluate_assessment"
	ToolTransitionDecision = "make_transition_decision"
)

// Input schemas, one per tool. Unknown extra fields pass through so
// clients can ship forward-compatibility data; missing required fields
// and wrong types are rejected before any handler runs.
var toolSchemas = map[string]string{
	ToolLearnerModel: `{
		"type": "object",
		"required": ["learner_id"],
		"properties": {
			"learner_id": {"type": "string", "minLength": 1},
			"static_profile": {
				"type": "object",
				"properties": {
					"age": {"type": "integer"},
					"location": {"type": "string"},
					"institution": {"type": "string"},
					"email": {"type": "string"},
					"phone": {"type": "string"},
					"legal_name": {"type": "string"},
					"address": {"type": "string"},
					"preferences": {"type": "object"}
				}
			},
			"dynamic_profile": {"type": "object"}
		}
	}`,
	ToolKnowledgeModel: `{
		"type": "object",
		"required": ["domain_id", "content_architecture"],
		"properties": {
			"domain_id": {"type": "string", "minLength": 1},
			"content_architecture": {
				"type": "object",
				"properties": {
					"prerequisite_completion": {"type": "number", "minimum": 0, "maximum": 1},
					"path_complexity": {"type": "number", "minimum": 0, "maximum": 1},
					"competency_gaps": {"type": "integer", "minimum": 0},
					"modules": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}`,
	ToolTrackEngagement: `{
		"type": "object",
		"required": ["session_id", "learner_id", "interaction_data"],
		"properties": {
			"session_id": {"type": "string", "minLength": 1},
			"learner_id": {"type": "string", "minLength": 1},
			"interaction_data": {
				"type": "object",
				"properties": {
					"engagement": {"type": "number", "minimum": 0, "maximum": 1},
					"attention": {"type": "number", "minimum": 0, "maximum": 1},
					"intrinsic_motivation": {"type": "number", "minimum": 0, "maximum": 1},
					"task_persistence": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}`,
	ToolEvaluateAssessment: `{
		"type": "object",
		"required": ["checkpoint_id", "assessment_type", "performance_data"],
		"properties": {
			"checkpoint_id": {"type": "string", "minLength": 1},
			"assessment_type": {"type": "string", "enum": ["formative", "authentic", "competency"]},
			"session_id": {"type": "string"},
			"performance_data": {
				"type": "object",
				"properties": {
					"competency": {"type": "number", "minimum": 0, "maximum": 1},
					"skill_scores": {"type": "array", "items": {"type": "number", "minimum": 0, "maximum": 1}},
					"accuracy": {"type": "number", "minimum": 0, "maximum": 1},
					"consistency": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}`,
	ToolTransitionDecision: `{
		"type": "object",
		"required": ["learner_id", "current_state", "model_inputs"],
		"properties": {
			"learner_id": {"type": "string", "minLength": 1},
			"current_state": {
				"type": "object",
				"required": ["current_event"],
				"properties": {
					"current_event": {"type": "string", "enum": ["onboarding", "introduction", "practice", "application", "mastery"]},
					"progress": {"type": "number", "minimum": 0, "maximum": 1},
					"value": {"type": "number", "minimum": 0, "maximum": 1},
					"adaptation_sensitivity": {"type": "string", "enum": ["low", "medium", "high"]}
				}
			},
			"model_inputs": {
				"type": "object",
				"required": ["learner_state", "knowledge_state", "engagement_metrics", "assessment_data"],
				"properties": {
					"learner_state": {"type": "object"},
					"knowledge_state": {"type": "object"},
					"engagement_metrics": {"type": "object"},
					"assessment_data": {"type": "object"},
					"educational_context": {"type": "object"}
				}
			}
		}
	}`,
}

// compileSchemas compiles every tool schema once at service start.
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	out := make(map[string]*jsonschema.Schema, len(toolSchemas))
	for tool, src := range toolSchemas {
		compiler := jsonschema.NewCompiler()
		url := "tools/" + tool + ".schema.json"
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("tools: add schema %s: %w", tool, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tools: compile schema %s: %w", tool, err)
		}
		out[tool] = schema
	}
	return out, nil
}
