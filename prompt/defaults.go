package prompt

const header = `{{if .Role}}{{.Role}}

{{end}}You are {{default "an assistant" .AgentName}} solving a task step by step with the help of tools.

Available tools:
{{.Tools}}
`

const actionFormat = `Call a tool with a JSON object on a single line:
Action: {"tool": "<tool name>", "args": {"<parameter>": <value>}}`

// ReAct is the default iterative reasoning prompt.
var ReAct = Must("react", header+`
Use this format:

Thought: reason about what to do next
`+actionFormat+`

After each Action stop and wait. The result will be sent back to you as
"Observation: ...". Never write an Observation yourself.

Repeat Thought and Action as often as needed. When you know the answer write:
{{.TerminationMarker}} <the final answer>
`)

// PlanReAct asks for a plan before the first tool call.
var PlanReAct = Must("plan_react", header+`
Start with a plan before doing anything else:

Plan: the numbered steps you intend to take

Then follow the plan using this format:

Thought: reason about the next step of the plan
`+actionFormat+`

After each Action stop and wait. The result will be sent back to you as
"Observation: ...". Never write an Observation yourself.

When you know the answer write:
{{.TerminationMarker}} <the final answer>
`)

// SingleResponse asks for the whole trace in one response.
var SingleResponse = Must("single_response", header+`
Answer in a single response containing the full chain of reasoning:

Thought: reason about what to do
`+actionFormat+`
Observation: what you expect the tool to return

Repeat Thought, Action and Observation as often as needed. The tools are
executed for real afterwards and their results replace your Observations.
End with:
{{.TerminationMarker}} <the final answer>
`)

// SingleResponsePlan is SingleResponse with a leading plan.
var SingleResponsePlan = Must("single_response_plan", header+`
Answer in a single response. Start with a plan:

Plan: the numbered steps you intend to take

Then write the full chain of reasoning:

Thought: reason about the step
`+actionFormat+`
Observation: what you expect the tool to return

The tools are executed for real afterwards and their results replace your
Observations. End with:
{{.TerminationMarker}} <the final answer>
`)

// CorrectiveNote is appended as a system message after a response could not be
// processed.
var CorrectiveNote = Must("corrective_note", `Your previous response could not be processed ({{index .Extra "reason"}}).
Reply again using exactly one of the labels{{if index .Extra "plan"}} Plan:,{{end}} Thought: or Action: at the start of a line, or {{.TerminationMarker}} followed by the final answer.
`+actionFormat)

const plainHeader = `{{if .Role}}{{.Role}}

{{end}}You are {{default "an assistant" .AgentName}}.
`

const schemaBlock = `{{with index .Extra "schema"}}
The document must conform to this JSON schema:
{{.}}
{{end}}`

// Direct asks for the answer in one response, without tools.
var Direct = Must("direct", plainHeader+`
Answer the task directly and completely in a single response.
`)

// JSON asks for a single JSON document.
var JSON = Must("json", plainHeader+`
Respond with a single JSON document and nothing else. Do not add prose or
code fences.
`+schemaBlock)

// Planner asks for a dependency-ordered task list.
var Planner = Must("planner", plainHeader+`
Break the task into small, concrete tasks that can be handed to other agents.
Respond with a single JSON document and nothing else:

{"tasks": [{"id": "t1", "description": "what to do", "dependencies": [], "agent": "who does it"}]}

"dependencies" lists the ids of the tasks whose results a task needs. They
must not form a cycle. "agent" is optional; use only agent names you were
given.
`+schemaBlock)

// Verifier asks for a verdict on the content of the task.
var Verifier = Must("verifier", plainHeader+`
Check whether the content of the task is correct and complete. Begin your
response with VERIFIED when it passes verification, otherwise with
NOT VERIFIED followed by the problems you found.
`)

// JSONCorrectiveNote replaces CorrectiveNote for strategies that expect a JSON
// document.
var JSONCorrectiveNote = Must("json_corrective_note", `Your previous response could not be processed ({{index .Extra "reason"}}).
Reply again with a single JSON document{{if index .Extra "schema"}} that conforms to the schema{{end}} and nothing else.`)
