// Package runtime hosts application scripts in goja VMs bound to their
// sandboxes.
//
// Each Runtime owns one VM for one application. The sandbox is exposed to
// hosted code as a dynamic object, and every script executes inside a
// wrapper that binds window, self, and globalThis to that object, so all
// global reads and writes flow through the sandbox traps. Execution is
// serialized per runtime and interrupted on timeout or context
// cancellation.
package runtime
