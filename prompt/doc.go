// Package prompt renders the system prompt an agent sends before its first
// model call. Templates use text/template syntax and receive Vars, which carry
// the rendered tool list and the termination marker the parser watches for.
package prompt
