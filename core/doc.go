// Package core provides the foundational domain types shared by every layer of
// ReactMesh. It defines the core abstractions for:
//
//   - Messages and Conversations (the ordered context sent to a model)
//   - Steps (the closed set Plan, Thought, Action, Observation, FinalAnswer)
//   - Traces and AgentResults (the record and outcome of one agent run)
//   - The error taxonomy used to tag fatal and recoverable failures
//   - Observers (explicit instrumentation hooks passed at construction)
//
// The package keeps implementation concerns (parsing, tool dispatch, model
// providers, coordination) out of scope and exposes small value types so the
// higher layers can be composed and tested in isolation.
package core
