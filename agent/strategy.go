package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/reactmesh/prompt"
)

// Strategy selects how an agent prompts the model and consumes its output.
type Strategy string

const (
	// StrategyReAct alternates Thought and Action across model turns.
	StrategyReAct Strategy = "react"
	// StrategyPlanReAct requires a Plan before the first Action.
	StrategyPlanReAct Strategy = "plan_react"
	// StrategySingleResponse expects the full trace in one generation.
	StrategySingleResponse Strategy = "single_response"
	// StrategySingleResponsePlan is StrategySingleResponse with a leading Plan.
	StrategySingleResponsePlan Strategy = "single_response_plan"
	// StrategyDirect answers in one generation without tools.
	StrategyDirect Strategy = "direct"
	// StrategyJSON answers with one JSON document, validated against
	// Options.OutputSchema when set.
	StrategyJSON Strategy = "json"
	// StrategyPlanner answers with a JSON task list (see PlannerSchema).
	StrategyPlanner Strategy = "planner"
	// StrategyVerifier answers "true" or "false".
	StrategyVerifier Strategy = "verifier"
)

// ParseStrategy resolves a strategy name. Matching ignores case and accepts
// dashes in place of underscores.
func ParseStrategy(s string) (Strategy, error) {
	normalized := Strategy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))

	switch normalized {
	case "":
		return StrategyReAct, nil
	case StrategyReAct, StrategyPlanReAct, StrategySingleResponse, StrategySingleResponsePlan,
		StrategyDirect, StrategyJSON, StrategyPlanner, StrategyVerifier:
		return normalized, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Iterative reports whether the strategy re-invokes the model after each Observation.
func (s Strategy) Iterative() bool {
	return s == StrategyReAct || s == StrategyPlanReAct
}

// RequiresPlan reports whether a Plan must precede the first Action.
func (s Strategy) RequiresPlan() bool {
	return s == StrategyPlanReAct || s == StrategySingleResponsePlan
}

// Structured reports whether the strategy expects a JSON document.
func (s Strategy) Structured() bool {
	return s == StrategyJSON || s == StrategyPlanner
}

func (s Strategy) template() prompt.Template {
	switch s {
	case StrategyPlanReAct:
		return prompt.PlanReAct
	case StrategySingleResponse:
		return prompt.SingleResponse
	case StrategySingleResponsePlan:
		return prompt.SingleResponsePlan
	case StrategyDirect:
		return prompt.Direct
	case StrategyJSON:
		return prompt.JSON
	case StrategyPlanner:
		return prompt.Planner
	case StrategyVerifier:
		return prompt.Verifier
	default:
		return prompt.ReAct
	}
}
