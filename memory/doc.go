// Package memory contains read-only context providers consulted by an agent
// before its first model call. Depend on the Retriever interface in your code
// and select an implementation (like the in-memory store below) at wiring time;
// vector databases or embedding indexes plug in the same way.
package memory
