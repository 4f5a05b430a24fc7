// Package coordinator composes several agents into a collaboration workflow.
//
// A Plan names the agents and one of five patterns:
//
//   - Independent: every agent runs the instruction in isolation (bounded fan-out)
//   - Sequential: each agent receives the previous agent's result as context
//   - Joint: agents take turns on one shared conversation until one answers
//   - Hierarchical: the first agent calls the others as tools
//   - Broadcast: concurrent fan-out with optional quorum and fail-fast
//
// Every run returns a *Result with the per-agent results collected so far,
// also when the workflow as a whole fails.
package coordinator
