// Package harness provides a conformance testing framework for the
// session engine, driven by YAML scenario fixtures.
//
// Unlike a trace-manufacturing harness, every scenario step is executed
// against a real session.Engine backed by an in-memory durable log: there
// is no risk of a scenario passing by construction, because the engine's
// actual commit pipeline (log -> delta -> hub -> sink) runs for every
// step.
package harness
