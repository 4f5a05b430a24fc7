// Package observe provides core.Observer implementations: a structured-log
// observer and an OpenTelemetry observer emitting spans and metrics.
//
// Observers are passed explicitly to agents through agent.Options.Observer;
// combine several with core.Observers.
package observe
