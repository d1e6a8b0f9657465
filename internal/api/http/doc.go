// Package http exposes the application registry as a REST API: mount and
// unmount, script execution, snapshot control, and inspection endpoints.
package http
