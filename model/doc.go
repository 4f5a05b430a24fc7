// Package model defines the provider-agnostic abstraction the execution loop
// uses to obtain model text, plus helpers for tests.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight scripting of model output for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface in sub-packages so
// higher layers (agents, coordinator) remain decoupled from vendor SDKs.
package model
