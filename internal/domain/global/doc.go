// Package global implements the property layers behind a sandbox: the
// shared real global store, the per-sandbox virtual global object, and the
// descriptor bridge between them.
//
// Object preserves full descriptor semantics (value/accessor form,
// writability, enumerability, configurability, insertion-ordered own keys)
// so the sandbox traps can reroute storage without changing observable
// object-model behavior.
package global
