// Package parser turns raw model text into typed core.Steps.
//
// Model output is an untyped, label-based wire format:
//
//	Plan: 1. add the numbers 2. report
//	Thought: I should call the add tool.
//	Action: {"tool": "add", "args": {"a": 2, "b": 2}}
//	FINAL ANSWER: 4
//
// Two modes are supported. Next consumes a response one unit at a time for the
// iterative (ReAct) loop; ParseAll extracts the whole chain of a single-response
// generation and drops any Observation the model imagined. Labels are matched
// case-insensitively and may be markdown-bold or numbered. Action JSON is taken
// from the minimal balanced-brace span after the label, so code fences, doubled
// template braces and trailing commentary are tolerated; a single lenient repair
// pass runs before an Action is rejected.
package parser
