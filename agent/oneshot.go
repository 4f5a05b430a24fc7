package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/internal/util"
)

// PlannerSchema returns the JSON schema of a planner answer:
//
//	{"tasks": [{"id": "t1", "description": "...", "dependencies": ["t0"], "agent": "writer"}]}
func PlannerSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tasks": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":           map[string]any{"type": "string", "minLength": 1},
						"description":  map[string]any{"type": "string", "minLength": 1},
						"dependencies": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"agent":        map[string]any{"type": "string"},
					},
					"required": []string{"id", "description"},
				},
			},
		},
		"required": []string{"tasks"},
	}
}

// respond runs a non-iterative strategy.
func (r *run) respond(ctx context.Context) outcome {
	switch r.agent.opts.Strategy {
	case StrategyDirect:
		return r.direct(ctx)
	case StrategyJSON, StrategyPlanner:
		return r.structured(ctx)
	case StrategyVerifier:
		return r.verify(ctx)
	default:
		return r.single(ctx)
	}
}

// ask performs one model call and appends the response to the conversation.
// done reports a terminal outcome instead of a response.
func (r *run) ask(ctx context.Context) (string, outcome, bool) {
	if ctx.Err() != nil {
		return "", r.cancelled(ctx), true
	}

	if err := r.limiter.Acquire(); err != nil {
		return "", outcome{status: core.StatusMaxIterations}, true
	}

	text, err := r.generate(ctx)
	if err != nil {
		if core.KindOf(err) == core.KindCancellation {
			return "", r.cancelled(ctx), true
		}

		return "", outcome{status: core.StatusFailed, err: err}, true
	}

	r.say(core.NewAssistantMessage(r.agent.name, text))

	return text, outcome{}, false
}

// direct takes the whole response as the answer. A termination marker, when
// the model writes one anyway, narrows the answer to the text after it.
func (r *run) direct(ctx context.Context) outcome {
	text, out, done := r.ask(ctx)
	if done {
		return out
	}

	answer, ok := r.agent.parser.Terminal(text)
	if !ok {
		answer = core.FinalAnswer{Text: r.agent.parser.Clean(text)}
	}

	if answer.Text == "" {
		return outcome{status: core.StatusFailed, err: &core.ParseError{Reason: "empty response", Raw: text}}
	}

	r.record(answer)

	return outcome{status: core.StatusCompleted, result: answer.Text}
}

// structured expects a JSON document, validated against the output schema.
// Undecodable or invalid documents are corrected within the parse retry
// budget. The result is the compact encoding of the document.
func (r *run) structured(ctx context.Context) outcome {
	for {
		text, out, done := r.ask(ctx)
		if done {
			return out
		}

		doc, err := r.agent.document(text)
		if err == nil {
			r.record(core.FinalAnswer{Text: doc})
			return outcome{status: core.StatusCompleted, result: doc}
		}

		if out, done := r.correct(err, text); done {
			return out
		}
	}
}

func (a *Agent) document(text string) (string, error) {
	v, err := a.parser.Document(text)
	if err != nil {
		return "", err
	}

	if err := util.ValidateDocument(a.schema, v); err != nil {
		return "", &core.ParseError{Reason: "JSON document does not match the schema: " + err.Error(), Raw: text, Err: err}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// verify reduces the response to a verdict, "true" or "false". The reasoning
// is kept in the trace as a Thought.
func (r *run) verify(ctx context.Context) outcome {
	text, out, done := r.ask(ctx)
	if done {
		return out
	}

	clean := r.agent.parser.Clean(text)
	if clean != "" {
		r.record(core.Thought{Text: clean})
	}

	verdict := "false"
	if Verified(clean) {
		verdict = "true"
	}

	r.record(core.FinalAnswer{Text: verdict})

	return outcome{status: core.StatusCompleted, result: verdict}
}

var (
	rejectPattern  = regexp.MustCompile(`(?i)\b(not verified|unverified|verification failed|fails verification|does not pass verification)\b|^\W*no\b`)
	approvePattern = regexp.MustCompile(`(?i)\b(verified|verification passed|passes verification)\b|^\W*yes\b`)
)

// Verified reports whether a verifier response approves. Rejections win over
// approvals; a response with neither does not approve.
func Verified(response string) bool {
	response = strings.TrimSpace(response)

	if rejectPattern.MatchString(response) {
		return false
	}

	return approvePattern.MatchString(response)
}
