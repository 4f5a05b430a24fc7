// Package agent contains the execution loop that drives a single language
// model through reasoning and tool use until it produces a final answer.
//
// An Agent binds a model, a tool registry and a prompting Strategy:
//
//  1. ReAct: one model call per turn; each response is parsed step by step
//     and at most one Action per turn is executed, its Observation fed back
//  2. PlanReAct: like ReAct, but a Plan must be recorded before any Action
//  3. SingleResponse / SingleResponsePlan: one model call; every Action in the
//     response is executed and the model's imagined Observations replaced
//
// Design principles:
//   - Every run returns a *core.AgentResult with a definite status and the full
//     (possibly partial) trace; Run never panics and never returns an error
//   - Tool and parse failures are absorbed into the trace; provider failures
//     are retried with exponential backoff and cancellation ends the run
//   - Logging and instrumentation are explicit (Options.Logger, Options.Observer)
//
// Session exposes one turn at a time over a shared conversation so that a
// coordinator can interleave several agents.
package agent
