// Package main is the entry point for the sandveil server.
//
// The server hosts micro-frontend applications in virtualized global
// scopes. Each mounted application runs against a proxy over a private
// global object, with classification rules deciding which keys stay
// scoped, which escape to the shared store, and which are forced through
// on write.
//
// The server provides:
//   - REST API for mounting, executing, and inspecting applications
//   - WebSocket streaming of per-application data-bus events
//   - UMD snapshot record and rebuild for singleton remounts
//   - Prometheus metrics and rate limiting
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000 -plugins rules.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
