package agent

import (
	"context"
	"errors"

	"github.com/hupe1980/reactmesh/core"
)

// ErrSessionClosed is returned by Turn after the session ended.
var ErrSessionClosed = errors.New("session closed")

// Session runs an agent one turn at a time over a conversation that may be
// shared with other agents. Every turn is one model call; the caller decides
// who speaks next. A Session is not safe for concurrent use, and sessions
// sharing a conversation must take turns.
type Session struct {
	run    *run
	result *core.AgentResult
}

// NewSession starts a session over conv. The instruction is expected to be in
// conv already; in.Instruction is only used as the memory query.
func (a *Agent) NewSession(ctx context.Context, conv *core.Conversation, in Input) *Session {
	r, err := a.start(ctx, conv, in)
	s := &Session{run: r}

	if err != nil {
		s.result = r.finish(r.ctx, outcome{status: core.StatusFailed, err: err})
	}

	return s
}

// Agent returns the name of the agent behind the session.
func (s *Session) Agent() string { return s.run.agent.name }

// Turn performs one model call and processes its response. It reports whether
// the session ended; the outcome is then available from Result.
func (s *Session) Turn(ctx context.Context) (bool, error) {
	if s.result != nil {
		return true, ErrSessionClosed
	}

	if !s.run.agent.opts.Strategy.Iterative() {
		s.result = s.run.finish(ctx, s.run.respond(ctx))
		return true, nil
	}

	out, done := s.run.turn(ctx)
	if done {
		s.result = s.run.finish(ctx, out)
	}

	return done, nil
}

// Close ends a session that is still running with status and result, e.g.
// after another participant answered or the round budget ran out. Close on an
// ended session returns the existing result.
func (s *Session) Close(status core.Status, result string) *core.AgentResult {
	if s.result == nil {
		s.result = s.run.finish(s.run.ctx, outcome{status: status, result: result})
	}

	return s.result
}

// Result returns the session outcome, or nil while the session is running.
func (s *Session) Result() *core.AgentResult { return s.result }
